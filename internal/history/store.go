// Package history lists the artifacts the remote service still holds and
// keeps their expiry countdowns current.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
	"dlclient/internal/render"
)

// ErrDeclined is returned when the user does not confirm a deletion.
var ErrDeclined = errors.New("deletion declined")

// Client is the part of the remote client the store needs.
type Client interface {
	History(ctx context.Context) ([]remote.HistoryEntry, error)
	Delete(ctx context.Context, name string) error
}

// Store holds the last fetched history listing.
type Store struct {
	client    Client
	renderer  render.Renderer
	confirmer render.Confirmer

	mu      sync.RWMutex
	entries []remote.HistoryEntry
	loaded  bool
}

// NewStore creates an empty store. A nil confirmer approves everything.
func NewStore(client Client, renderer render.Renderer, confirmer render.Confirmer) *Store {
	if confirmer == nil {
		confirmer = render.Always(true)
	}
	return &Store{client: client, renderer: renderer, confirmer: confirmer}
}

// Refresh fetches the listing and replaces the rendered list in full. On
// failure the previous list stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	entries, err := s.client.History(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("history refresh failed")
		return fmt.Errorf("refresh history: %w", err)
	}

	s.mu.Lock()
	s.entries = append([]remote.HistoryEntry(nil), entries...)
	s.loaded = true
	s.mu.Unlock()

	log.Debug().Int("entries", len(entries)).Msg("history refreshed")
	s.renderer.RenderHistory(Rows(entries))
	return nil
}

// Entries returns a copy of the current listing.
func (s *Store) Entries() []remote.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]remote.HistoryEntry(nil), s.entries...)
}

// Loaded reports whether at least one refresh succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Delete removes name after confirmation and then refreshes exactly once,
// whether or not the deletion succeeded. The deletion error is returned but
// not rendered.
func (s *Store) Delete(ctx context.Context, name string) error {
	if !s.confirmer.Confirm(fmt.Sprintf("Delete %s?", name)) {
		return ErrDeclined
	}

	delErr := s.client.Delete(ctx, name)
	if delErr != nil {
		log.Warn().Str("name", name).Err(delErr).Msg("delete failed")
	} else {
		log.Info().Str("name", name).Msg("artifact deleted")
	}

	refreshErr := s.Refresh(ctx)
	if delErr != nil {
		return fmt.Errorf("delete %s: %w", name, delErr)
	}
	return refreshErr
}

// Rows converts entries to rendered rows. Folders get no download or view
// action.
func Rows(entries []remote.HistoryEntry) []render.HistoryRow {
	rows := make([]render.HistoryRow, 0, len(entries))
	for _, e := range entries {
		row := render.HistoryRow{
			Name:      e.Name,
			Kind:      e.Type,
			SizeText:  FormatSize(e.Size),
			ExpiresAt: e.ExpiresAt,
		}
		if !e.IsFolder() {
			row.DownloadPath = remote.ArtifactPath(e.Name)
			row.ViewPath = remote.ViewPath(e.Name)
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatSize renders a byte count in megabytes with two decimals.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}
