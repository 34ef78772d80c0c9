// Package app wires the remote client, session, renderer and controllers
// into one client instance.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"dlclient/internal/config"
	"dlclient/internal/history"
	"dlclient/internal/metadata"
	"dlclient/internal/remote"
	"dlclient/internal/render"
	"dlclient/internal/session"
	"dlclient/internal/task"
	"dlclient/internal/urlnorm"
)

// Options are the collaborators New cannot derive from the config.
type Options struct {
	Renderer  render.Renderer
	Confirmer render.Confirmer
	// SaveArtifacts downloads completed files into the configured directory
	// before the renderer is told to navigate.
	SaveArtifacts bool
	// Transport replaces the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	// TracerProvider and Propagator override the otel globals.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// App is one running client.
type App struct {
	cfg        config.Config
	client     *remote.Client
	session    *session.Session
	renderer   render.Renderer
	confirmer  render.Confirmer
	resolver   *metadata.Resolver
	controller *task.Controller
	history    *history.Store
	tracker    *history.Tracker

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the client. ctx bounds background work such as polling and
// scheduled refreshes; Close releases it.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = render.Always(cfg.AssumeYes)
	}

	client, err := remote.New(remote.Options{
		BaseURL:        cfg.BaseURL,
		APIPrefix:      cfg.APIPrefix,
		Timeout:        cfg.RequestTimeout,
		Transport:      opts.Transport,
		TracerProvider: opts.TracerProvider,
		Propagator:     opts.Propagator,
	})
	if err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}

	sess, err := session.Load(cfg.StateFile)
	if err != nil {
		log.Warn().Str("path", cfg.StateFile).Err(err).Msg("ignoring unreadable session state")
		sess = session.New(cfg.StateFile)
	}

	a := &App{cfg: cfg, client: client, session: sess, confirmer: confirmer}
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.renderer = opts.Renderer
	if opts.SaveArtifacts {
		a.renderer = &savingRenderer{Renderer: opts.Renderer, app: a}
	}

	a.resolver = metadata.NewResolver(client, sess, a.renderer)
	a.history = history.NewStore(client, a.renderer, confirmer)
	a.tracker = history.NewTracker(a.history, a.renderer, a.history, history.TrackerConfig{
		Interval:        cfg.HistoryTick,
		DangerThreshold: cfg.DangerThreshold,
		ExpiryTolerance: cfg.ExpiryTolerance,
	})
	a.controller = task.NewController(a.ctx, task.Config{
		PollInterval: cfg.PollInterval,
		RefreshDelay: cfg.RefreshDelay,
	}, client, sess, a.renderer, confirmer, a.history)

	log.Debug().Str("base_url", cfg.BaseURL).Str("session", client.SessionID()).Msg("client ready")
	return a, nil
}

// Session exposes the shared session state.
func (a *App) Session() *session.Session { return a.session }

// Controller exposes the task lifecycle controller.
func (a *App) Controller() *task.Controller { return a.controller }

// History exposes the history store.
func (a *App) History() *history.Store { return a.history }

// Tracker exposes the expiry tracker.
func (a *App) Tracker() *history.Tracker { return a.tracker }

// Submit normalizes raw, reflects any rewrite back to the input field and
// resolves its metadata.
func (a *App) Submit(ctx context.Context, raw string) (remote.Metadata, error) {
	trimmed := strings.TrimSpace(raw)
	normalized := urlnorm.Normalize(trimmed)
	if normalized != trimmed {
		log.Info().Str("from", trimmed).Str("to", normalized).Msg("url rewritten")
		a.renderer.SetInputURL(normalized)
	}
	meta, err := a.resolver.Resolve(ctx, normalized)
	if err != nil {
		return meta, err
	}
	a.saveSession()
	return meta, nil
}

// Start begins a download of the resolved URL.
func (a *App) Start(ctx context.Context, opts task.Options) error {
	return a.controller.Start(ctx, opts)
}

// Wait blocks until the current task ends.
func (a *App) Wait(ctx context.Context) (task.Outcome, error) {
	return a.controller.Wait(ctx)
}

// Settle waits for the history refresh a completed download schedules, so
// a short-lived process still shows the refreshed listing.
func (a *App) Settle(ctx context.Context) error {
	return a.controller.Settle(ctx)
}

// Cancel requests cancellation of the task this process is tracking.
func (a *App) Cancel(ctx context.Context) error {
	return a.controller.Cancel(ctx)
}

// CancelRecorded requests cancellation of the task recorded in the session
// file, typically started by another process.
func (a *App) CancelRecorded(ctx context.Context) (string, error) {
	id := a.session.TaskID()
	if id == "" {
		return "", task.ErrNoActiveTask
	}
	if !a.confirmer.Confirm(fmt.Sprintf("Cancel task %s?", id)) {
		return id, task.ErrDeclined
	}
	if err := a.client.Cancel(ctx, id); err != nil {
		return id, fmt.Errorf("cancel %s: %w", id, err)
	}
	log.Info().Str("task_id", id).Msg("cancel requested")
	return id, nil
}

// RefreshHistory reloads the artifact listing.
func (a *App) RefreshHistory(ctx context.Context) error {
	return a.history.Refresh(ctx)
}

// Delete removes an artifact after confirmation and refreshes the listing.
func (a *App) Delete(ctx context.Context, name string) error {
	return a.history.Delete(ctx, name)
}

// RunTracker ticks the expiry countdowns until ctx is done.
func (a *App) RunTracker(ctx context.Context) {
	a.tracker.Run(ctx)
}

// CookiesStatus queries and renders the cookie indicator.
func (a *App) CookiesStatus(ctx context.Context) (bool, error) {
	exists, err := a.client.CookiesStatus(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("cookies status failed")
		return false, err
	}
	a.renderer.SetCookieIndicator(exists)
	return exists, nil
}

// UploadCookies sends a cookies file and refreshes the indicator.
func (a *App) UploadCookies(ctx context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // user-chosen file
	if err != nil {
		return fmt.Errorf("open cookies: %w", err)
	}
	defer f.Close()

	if err := a.client.UploadCookies(ctx, filepath.Base(path), f); err != nil {
		a.renderer.Notify("Error: " + err.Error())
		return err
	}
	a.renderer.Notify("Cookies updated")
	_, err = a.CookiesStatus(ctx)
	return err
}

// Close stops background work and persists the session.
func (a *App) Close() {
	a.controller.Close()
	a.cancel()
	a.saveSession()
}

func (a *App) saveSession() {
	if err := a.session.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
}
