// Package metadata resolves a source URL into its title, duration and
// available subtitle languages before a download is started.
package metadata

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
	"dlclient/internal/render"
	"dlclient/internal/session"
)

// ErrEmptyURL is returned for blank input; no request is made.
var ErrEmptyURL = errors.New("url is empty")

// InfoClient is the part of the remote client the resolver needs.
type InfoClient interface {
	Info(ctx context.Context, url string) (remote.Metadata, error)
}

// Resolver calls the info endpoint and publishes the result.
type Resolver struct {
	client   InfoClient
	session  *session.Session
	renderer render.Renderer
}

// NewResolver wires a resolver to its collaborators.
func NewResolver(client InfoClient, sess *session.Session, renderer render.Renderer) *Resolver {
	return &Resolver{client: client, session: sess, renderer: renderer}
}

// Resolve fetches metadata for url. Overlapping calls are not ordered: the
// last one to return overwrites the session.
func (r *Resolver) Resolve(ctx context.Context, url string) (remote.Metadata, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return remote.Metadata{}, ErrEmptyURL
	}

	r.renderer.SetBusy(true)
	defer r.renderer.SetBusy(false)

	meta, err := r.client.Info(ctx, url)
	if err != nil {
		log.Warn().Str("url", url).Err(err).Msg("metadata resolution failed")
		r.renderer.Notify("Error: " + err.Error())
		return remote.Metadata{}, err
	}

	r.session.SetResolved(url, meta.Subtitles)
	log.Info().Str("url", url).Str("title", meta.Title).Int("subtitles", len(meta.Subtitles)).Msg("metadata resolved")

	r.renderer.ShowMetadata(meta)
	r.renderer.SetSubtitlesEnabled(false)
	r.renderer.SetSubtitleOptions(r.session.Subtitles())
	r.renderer.ShowStep(render.StepInfo)
	return meta, nil
}
