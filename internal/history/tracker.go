package history

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
	"dlclient/internal/render"
)

// Source supplies the entries to count down.
type Source interface {
	Entries() []remote.HistoryEntry
}

// Refresher reloads the listing.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TrackerConfig holds tracker thresholds.
type TrackerConfig struct {
	Interval        time.Duration
	DangerThreshold time.Duration
	ExpiryTolerance time.Duration
}

// Tracker renders a live countdown for every entry and asks for a refresh
// when an entry reaches its expiry.
type Tracker struct {
	source    Source
	renderer  render.Renderer
	refresher Refresher
	cfg       TrackerConfig

	mu    sync.Mutex
	fired map[string]struct{}
}

// NewTracker wires a tracker. refresher may be nil.
func NewTracker(source Source, renderer render.Renderer, refresher Refresher, cfg TrackerConfig) *Tracker {
	return &Tracker{
		source:    source,
		renderer:  renderer,
		refresher: refresher,
		cfg:       cfg,
		fired:     make(map[string]struct{}),
	}
}

// Tick renders countdowns for now and triggers at most one refresh.
func (t *Tracker) Tick(ctx context.Context, now time.Time) []render.Countdown {
	entries := t.source.Entries()
	nowSec := float64(now.UnixNano()) / float64(time.Second)
	tolerance := t.cfg.ExpiryTolerance.Seconds()

	countdowns := make([]render.Countdown, 0, len(entries))
	refresh := false
	seen := make(map[string]struct{}, len(entries))

	t.mu.Lock()
	for _, e := range entries {
		remaining := e.ExpiresAt - nowSec
		countdowns = append(countdowns, Countdown(e.Name, remaining, t.cfg.DangerThreshold))

		key := expiryKey(e)
		seen[key] = struct{}{}
		if remaining <= 0 && remaining > -tolerance {
			if _, done := t.fired[key]; !done {
				t.fired[key] = struct{}{}
				refresh = true
			}
		}
	}
	for key := range t.fired {
		if _, ok := seen[key]; !ok {
			delete(t.fired, key)
		}
	}
	t.mu.Unlock()

	t.renderer.RenderCountdowns(countdowns)

	if refresh && t.refresher != nil {
		log.Debug().Msg("history entry reached expiry, refreshing")
		if err := t.refresher.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("expiry refresh failed")
		}
	}
	return countdowns
}

// Run ticks every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Tick(ctx, now)
		}
	}
}

// Countdown builds the display for remaining seconds, clamped at zero.
func Countdown(name string, remaining float64, danger time.Duration) render.Countdown {
	shown := math.Max(0, remaining)
	tier := render.TierNormal
	if shown < danger.Seconds() {
		tier = render.TierDanger
	}
	return render.Countdown{Name: name, Text: FormatRemaining(shown), Tier: tier}
}

// FormatRemaining renders whole seconds as HH:MM:SS.
func FormatRemaining(seconds float64) string {
	total := int64(math.Floor(math.Max(0, seconds)))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func expiryKey(e remote.HistoryEntry) string {
	return fmt.Sprintf("%s@%.3f", e.Name, e.ExpiresAt)
}
