package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dlclient/internal/remote"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManagerWithOptions(Options{
		DataDir:            t.TempDir(),
		StepDelay:          time.Millisecond,
		StepsPerItem:       2,
		ArtifactSize:       1024,
		MaxConcurrentTasks: 1,
	})
}

func waitTerminal(t *testing.T, m *Manager, id string) remote.TaskStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := m.Status(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		if st.Status.IsTerminal() {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return remote.TaskStatus{}
}

func TestSingleFileJobCompletes(t *testing.T) {
	m := newTestManager(t)
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://videos.example.org/watch/clip", Format: "video"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := waitTerminal(t, m, job.ID)
	if st.Status != remote.StatusCompleted || st.Filename != "clip.mp4" || st.Progress != 100 {
		t.Fatalf("unexpected final status %+v", st)
	}
	entries, err := m.Store().List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "clip.mp4" || entries[0].Size != 1024 || entries[0].Type != remote.KindFile {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestPlaylistJobWritesFolder(t *testing.T) {
	m := newTestManager(t)
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://v.example.org/playlist?list=Mix&items=2", Format: "audio", DownloadPlaylist: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := waitTerminal(t, m, job.ID)
	if st.Status != remote.StatusCompleted || !st.IsPlaylist || st.Filename != "Mix" {
		t.Fatalf("unexpected final status %+v", st)
	}
	if st.PlaylistIndex != 2 || st.PlaylistCount != 2 {
		t.Fatalf("expected last playlist position 2/2, got %d/%d", st.PlaylistIndex, st.PlaylistCount)
	}
	entries, _ := m.Store().List()
	if len(entries) != 1 || entries[0].Type != remote.KindPlaylist || entries[0].Size != 2048 {
		t.Fatalf("unexpected history %+v", entries)
	}
	if _, err := os.Stat(filepath.Join(m.opts.DataDir, "Mix", "01 - Mix.mp3")); err != nil {
		t.Fatalf("expected playlist item on disk: %v", err)
	}
}

func TestPlaylistSourceWithoutFlagHasNoFilename(t *testing.T) {
	m := newTestManager(t)
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://v.example.org/watch?v=one&list=Mix"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := waitTerminal(t, m, job.ID)
	if st.Status != remote.StatusCompleted || st.Filename != "" || st.IsPlaylist {
		t.Fatalf("unexpected final status %+v", st)
	}
}

func TestFailingJobReportsError(t *testing.T) {
	m := newTestManager(t)
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://v.example.org/x?fail=HTTP+Error+403"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := waitTerminal(t, m, job.ID)
	if st.Status != remote.StatusError || st.Error != "HTTP Error 403" {
		t.Fatalf("unexpected final status %+v", st)
	}
}

func TestCancelJob(t *testing.T) {
	m := NewManagerWithOptions(Options{DataDir: t.TempDir(), StepDelay: 50 * time.Millisecond, StepsPerItem: 100})
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://v.example.org/long"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	st := waitTerminal(t, m, job.ID)
	if st.Status != remote.StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", st)
	}
	if err := m.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCreateJobValidation(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateJob(remote.DownloadRequest{URL: "  "}); !errors.Is(err, ErrURLRequired) {
		t.Fatalf("expected ErrURLRequired, got %v", err)
	}
	if _, err := m.CreateJob(remote.DownloadRequest{URL: "ftp://x/y"}); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("expected ErrUnsupportedURL, got %v", err)
	}
}

func TestShutdownFailsRunningJobs(t *testing.T) {
	m := NewManagerWithOptions(Options{DataDir: t.TempDir(), StepDelay: 50 * time.Millisecond, StepsPerItem: 100})
	ctx, cancel := context.WithCancel(context.Background())
	m.SetBaseContext(ctx)
	job, err := m.CreateJob(remote.DownloadRequest{URL: "https://v.example.org/long"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if !m.WaitAll(waitCtx) {
		t.Fatalf("workers did not finish")
	}
	st, _ := m.Status(job.ID)
	if st.Status != remote.StatusError || !strings.Contains(st.Error, "shutting down") {
		t.Fatalf("unexpected status after shutdown %+v", st)
	}
}

func TestStoreSweepAndTouch(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, time.Hour)
	if err := s.WriteFile("old.mp4", strings.NewReader("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteFile("fresh.mp4", strings.NewReader("y")); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.mp4"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	n, err := s.Sweep(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("expected one removal, got %d (%v)", n, err)
	}
	entries, _ := s.List()
	if len(entries) != 1 || entries[0].Name != "fresh.mp4" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	later := time.Now().Add(30 * time.Minute)
	if err := s.Touch("fresh.mp4", later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	entries, _ = s.List()
	want := float64(later.Unix()) + time.Hour.Seconds()
	if got := entries[0].ExpiresAt; got < want-1 || got > want+1 {
		t.Fatalf("touch should push expiry to %v, got %v", want, got)
	}
}

func TestStoreRejectsEscapingNames(t *testing.T) {
	s := NewFileStore(t.TempDir(), time.Hour)
	for _, name := range []string{"", "..", "../etc", `a\b`, ".tmp-123"} {
		if _, err := s.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("expected ErrInvalidName for %q, got %v", name, err)
		}
	}
	if err := s.Delete("missing.mp4"); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestDefaultCatalog(t *testing.T) {
	m, err := DefaultCatalog("https://www.example.org/watch?v=abc&subs=en,es")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if m.Title != "abc" || m.Uploader != "example.org" || len(m.Subtitles) != 2 || m.Items != 0 {
		t.Fatalf("unexpected media %+v", m)
	}
	if _, err := DefaultCatalog("not a url"); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("expected ErrUnsupportedURL, got %v", err)
	}
}
