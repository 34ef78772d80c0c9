// Package task drives one remote download job from the start request through
// status polling to a terminal outcome.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
	"dlclient/internal/render"
	"dlclient/internal/session"
)

// Client is the part of the remote client the controller needs.
type Client interface {
	StartDownload(ctx context.Context, req remote.DownloadRequest) (string, error)
	Status(ctx context.Context, taskID string) (remote.TaskStatus, error)
	Cancel(ctx context.Context, taskID string) error
}

// Refresher reloads the history listing.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds controller timings.
type Config struct {
	PollInterval time.Duration
	RefreshDelay time.Duration
}

type run struct {
	id      string
	gen     uint64
	state   State
	last    remote.TaskStatus
	done    chan struct{}
	once    sync.Once
	outcome Outcome
	stop    func() bool
}

// stopPolling cancels the loop started for r. Caller holds c.mu.
func (r *run) stopPolling() {
	if r.stop != nil {
		r.stop()
	}
}

func (r *run) finish(o Outcome) {
	r.once.Do(func() {
		r.outcome = o
		close(r.done)
	})
}

// Controller owns the single current task and its polling loop.
type Controller struct {
	client    Client
	session   *session.Session
	renderer  render.Renderer
	confirmer render.Confirmer
	history   Refresher
	poller    *Poller

	refreshDelay time.Duration
	baseCtx      context.Context

	mu      sync.Mutex
	gen     uint64
	current *run
	timers  []*time.Timer

	refreshes sync.WaitGroup
}

// NewController wires a controller. ctx bounds the polling loops and
// scheduled history refreshes; it should live as long as the client does.
// history may be nil.
func NewController(ctx context.Context, cfg Config, client Client, sess *session.Session, renderer render.Renderer, confirmer render.Confirmer, history Refresher) *Controller {
	if confirmer == nil {
		confirmer = render.Always(true)
	}
	return &Controller{
		client:       client,
		session:      sess,
		renderer:     renderer,
		confirmer:    confirmer,
		history:      history,
		poller:       NewPoller(cfg.PollInterval),
		refreshDelay: cfg.RefreshDelay,
		baseCtx:      ctx,
	}
}

// Poller exposes the polling loop for inspection.
func (c *Controller) Poller() *Poller { return c.poller }

// State returns the lifecycle state of the current task, or idle.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.state
}

// TaskID returns the id of the current task, empty before the remote
// service has assigned one.
func (c *Controller) TaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// Last returns the most recent status observed for the current task.
func (c *Controller) Last() remote.TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return remote.TaskStatus{}
	}
	return c.current.last
}

// Start requests a new download for the resolved URL and begins polling.
// Any previous task stops being tracked.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	url, ok := c.session.URL()
	if !ok {
		return ErrNoResolvedURL
	}

	c.poller.Stop()

	c.mu.Lock()
	c.gen++
	r := &run{gen: c.gen, state: StateRequesting, done: make(chan struct{})}
	prev := c.current
	c.current = r
	c.mu.Unlock()

	if prev != nil {
		prev.finish(Outcome{TaskID: prev.id, State: prev.state, Status: prev.last, Err: ErrSuperseded})
	}

	c.renderer.ShowStep(render.StepProgress)
	c.renderer.ShowProgress(render.Progress{Percent: 0, Speed: "0 MiB/s", ETA: "00:00", Text: "Starting...", Tone: render.ToneActive})

	req := remote.DownloadRequest{
		URL:              url,
		Format:           opts.format(),
		Quality:          opts.quality(),
		Subtitles:        opts.Subtitles,
		SubtitleLang:     c.session.SubtitleChoice(opts.SubtitleLang),
		DownloadPlaylist: opts.Playlist,
	}
	id, err := c.client.StartDownload(ctx, req)

	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		r.state = StateIdle
		c.mu.Unlock()

		log.Warn().Str("url", url).Err(err).Msg("download request failed")
		c.renderer.Notify("Error starting download: " + err.Error())
		c.resetForm()
		r.finish(Outcome{State: StateIdle, Err: err})
		return err
	}
	r.id = id
	r.state = StatePolling
	// under c.mu: a tick must never see r without its stop handle
	r.stop = c.poller.Start(c.baseCtx, func(ctx context.Context) { c.poll(ctx, r) })
	c.mu.Unlock()

	c.session.SetTask(id)
	c.saveSession()
	log.Info().Str("task_id", id).Str("url", url).Str("format", req.Format).Str("quality", req.Quality).Bool("playlist", req.DownloadPlaylist).Msg("download started")
	return nil
}

// Cancel asks the remote service to cancel the current task once the user
// confirms. The task stays in polling until the service reports cancelled.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	polling := r != nil && r.id != "" && r.state == StatePolling
	c.mu.Unlock()
	if !polling {
		return ErrNoActiveTask
	}
	if !c.confirmer.Confirm("Cancel the current download?") {
		return ErrDeclined
	}
	if err := c.client.Cancel(ctx, r.id); err != nil {
		log.Warn().Str("task_id", r.id).Err(err).Msg("cancel request failed")
		return err
	}
	log.Info().Str("task_id", r.id).Msg("cancel requested")
	return nil
}

// Wait blocks until the current task reaches an outcome or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return Outcome{}, ErrNoActiveTask
	}
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Close stops polling and any pending history refresh.
func (c *Controller) Close() {
	c.poller.Stop()
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		if t.Stop() {
			c.refreshes.Done()
		}
	}
}

// Settle blocks until every history refresh scheduled by a completion has
// run, or ctx is done.
func (c *Controller) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.refreshes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) poll(ctx context.Context, r *run) {
	st, err := c.client.Status(ctx, r.id)

	c.mu.Lock()
	if c.current != r || r.state != StatePolling || ctx.Err() != nil {
		// result for a task that is no longer tracked
		c.mu.Unlock()
		return
	}
	if err != nil {
		r.state = StateError
		r.stopPolling()
		c.mu.Unlock()

		log.Warn().Str("task_id", r.id).Err(err).Msg("status poll failed")
		c.renderer.Notify("Status: error\n" + err.Error())
		c.endTask(r)
		r.finish(Outcome{TaskID: r.id, State: StateError, Status: r.last, Err: err})
		return
	}
	r.last = st
	next := stateFor(st.Status)
	r.state = next
	if next.IsTerminal() {
		r.stopPolling()
	}
	c.mu.Unlock()

	c.renderer.ShowProgress(progressFor(st))

	switch next {
	case StateCompleted:
		c.completed(r, st)
	case StateError, StateCancelled:
		log.Warn().Str("task_id", r.id).Str("status", string(st.Status)).Str("error", st.Error).Msg("task ended")
		msg := "Status: " + string(st.Status)
		if st.Error != "" {
			msg += "\n" + st.Error
		}
		c.renderer.Notify(msg)
		c.endTask(r)
		r.finish(Outcome{TaskID: r.id, State: next, Status: st})
	}
}

func (c *Controller) completed(r *run, st remote.TaskStatus) {
	log.Info().Str("task_id", r.id).Str("filename", st.Filename).Bool("playlist", st.IsPlaylist).Msg("task completed")
	c.scheduleRefresh()
	c.session.ClearTask(r.id)
	c.saveSession()

	switch {
	case st.IsPlaylist:
		c.renderer.Notify("Playlist downloaded. Files are available in the history.")
		c.renderer.ShowStep(render.StepInput)
	case st.Filename != "":
		c.renderer.Navigate(remote.ArtifactPath(st.Filename))
		c.renderer.ShowStep(render.StepInput)
	default:
		c.renderer.Notify("Download completed. Check the history.")
		c.renderer.ShowStep(render.StepInput)
	}
	r.finish(Outcome{TaskID: r.id, State: StateCompleted, Status: st})
}

// endTask resets the entry form after a failed or cancelled task.
func (c *Controller) endTask(r *run) {
	c.session.ClearTask(r.id)
	c.resetForm()
}

func (c *Controller) resetForm() {
	c.session.ClearURL()
	c.saveSession()
	c.renderer.SetInputURL("")
	c.renderer.ShowStep(render.StepInput)
}

func (c *Controller) scheduleRefresh() {
	if c.history == nil {
		return
	}
	c.refreshes.Add(1)
	t := time.AfterFunc(c.refreshDelay, func() {
		defer c.refreshes.Done()
		if c.baseCtx.Err() != nil {
			return
		}
		if err := c.history.Refresh(c.baseCtx); err != nil {
			log.Warn().Err(err).Msg("history refresh after completion failed")
		}
	})
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
}

func (c *Controller) saveSession() {
	if err := c.session.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
}

func stateFor(s remote.Status) State {
	switch s {
	case remote.StatusCompleted:
		return StateCompleted
	case remote.StatusError:
		return StateError
	case remote.StatusCancelled:
		return StateCancelled
	default:
		return StatePolling
	}
}

func progressFor(st remote.TaskStatus) render.Progress {
	p := render.Progress{
		Percent: clampPercent(st.Progress),
		Speed:   orDash(st.Speed),
		ETA:     orDash(st.ETA),
		Tone:    render.ToneActive,
	}
	switch st.Status {
	case remote.StatusDownloading:
		if st.HasPlaylistPosition() {
			p.Text = fmt.Sprintf("Downloading item %d of %d...", st.PlaylistIndex, st.PlaylistCount)
		} else {
			p.Text = "Downloading..."
		}
	case remote.StatusProcessing:
		// playlist jobs keep the item position line instead
		if !st.IsPlaylist {
			p.Text = "Processing..."
			p.Tone = render.ToneProcessing
		}
	case remote.StatusCompleted:
		p.Percent = 100
		p.Text = "Completed!"
		p.Tone = render.ToneDone
	case remote.StatusError, remote.StatusCancelled:
		p.Text = "Status: " + string(st.Status)
	}
	return p
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}
