package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs a tick function on a fixed interval until stopped. At most one
// loop is scheduled at a time; Start replaces any previous loop.
type Poller struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64

	running atomic.Int32
	started atomic.Int64
}

// NewPoller creates a stopped poller.
func NewPoller(interval time.Duration) *Poller {
	return &Poller{interval: interval}
}

// Start stops any previous loop and schedules tick every interval. The first
// tick fires one interval after Start.
//
// The returned function stops this loop only. Once a later Start has
// replaced the loop it is a no-op reporting false, so an old owner cannot
// cancel its successor.
func (p *Poller) Start(ctx context.Context, tick func(ctx context.Context)) (stop func() bool) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.seq++
	seq := p.seq
	p.cancel = cancel
	p.mu.Unlock()

	p.running.Add(1)
	p.started.Add(1)
	go p.loop(loopCtx, tick)

	return func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.seq != seq || p.cancel == nil {
			cancel()
			return false
		}
		p.cancel()
		p.cancel = nil
		return true
	}
}

// Stop cancels the scheduled loop. Stopping a stopped poller is a no-op; the
// return value reports whether a loop was actually cancelled. Safe to call
// from inside tick.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return false
	}
	p.cancel()
	p.cancel = nil
	return true
}

// Active reports whether a loop is scheduled.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Running is the number of loop goroutines still alive. A stopped loop that
// is finishing an in-flight tick is counted until the tick returns.
func (p *Poller) Running() int { return int(p.running.Load()) }

// Started is the number of loops ever started.
func (p *Poller) Started() int64 { return p.started.Load() }

func (p *Poller) loop(ctx context.Context, tick func(ctx context.Context)) {
	defer p.running.Add(-1)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// select picks randomly when both are ready
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	}
}
