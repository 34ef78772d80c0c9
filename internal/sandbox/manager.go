// Package sandbox is a local, in-memory implementation of the download
// service the client talks to. Jobs are simulated: progress advances on a
// timer and finished artifacts are synthetic files under the data directory.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	fileutil "dlclient/internal/file"
	"dlclient/internal/remote"
)

const cookiesFile = ".cookies.txt"

// Manager owns the jobs and the artifact store.
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	opts      Options
	semaphore chan struct{}
	workersWG sync.WaitGroup
	baseCtx   context.Context
	store     ArtifactStore
	now       func() time.Time
}

// NewManagerWithOptions creates a manager with provided configuration.
func NewManagerWithOptions(opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		jobs:      make(map[string]*Job),
		opts:      opts,
		semaphore: make(chan struct{}, opts.MaxConcurrentTasks),
		baseCtx:   context.Background(),
		store:     NewFileStore(opts.DataDir, opts.TTL),
		now:       time.Now,
	}
}

// Store exposes the artifact store.
func (m *Manager) Store() ArtifactStore { return m.store }

// IsBusy reports whether every processing slot is taken.
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Info resolves metadata for a source URL.
func (m *Manager) Info(rawURL string) (Media, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Media{}, ErrURLRequired
	}
	return m.opts.Catalog(rawURL)
}

// CreateJob registers a job for req and starts simulating it.
func (m *Manager) CreateJob(req remote.DownloadRequest) (*Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, ErrURLRequired
	}
	media, err := m.opts.Catalog(req.URL)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	jobCtx, cancel := context.WithCancel(m.baseCtx)
	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Media:     media,
		State:     remote.TaskStatus{Status: remote.StatusPending},
		CreatedAt: m.now(),
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	log.Info().Str("task_id", job.ID).Str("url", req.URL).Str("format", req.Format).Bool("playlist", req.DownloadPlaylist).Msg("sandbox job created")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		defer cancel()
		m.process(jobCtx, job)
	}()
	return job, nil
}

// Status returns a snapshot of a job's state.
func (m *Manager) Status(id string) (remote.TaskStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return remote.TaskStatus{}, false
	}
	return job.State, true
}

// Cancel flags a job for cancellation. The job reports cancelled once the
// worker notices, which may take up to one step.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrJobNotFound
	}
	terminal := job.State.Status.IsTerminal()
	if !terminal {
		job.cancelRequested = true
	}
	m.mu.Unlock()

	if !terminal {
		job.cancel()
		log.Info().Str("task_id", id).Msg("sandbox job cancellation requested")
	}
	return nil
}

// SetBaseContext sets the context that bounds every job. Intended to be set
// at startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight jobs finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// CookiesExist reports whether a cookies file was uploaded.
func (m *Manager) CookiesExist() bool {
	_, err := os.Stat(filepath.Join(m.opts.DataDir, cookiesFile))
	return err == nil
}

// SaveCookies stores an uploaded cookies file.
func (m *Manager) SaveCookies(content io.Reader) error {
	if err := fileutil.CopyAtomic(filepath.Join(m.opts.DataDir, cookiesFile), content); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	log.Info().Msg("sandbox cookies updated")
	return nil
}

// RunJanitor removes expired artifacts every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.store.Sweep(m.now())
			if err != nil {
				log.Warn().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("expired artifacts removed")
			}
		}
	}
}

func (m *Manager) update(job *Job, fn func(s *remote.TaskStatus)) {
	m.mu.Lock()
	fn(&job.State)
	m.mu.Unlock()
}

func (m *Manager) cancelRequested(job *Job) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return job.cancelRequested
}
