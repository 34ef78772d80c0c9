package sandbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	fileutil "dlclient/internal/file"
	"dlclient/internal/remote"
)

// ArtifactStore keeps finished artifacts on disk. Expiry is derived from the
// modification time, so serving an artifact extends its life.
type ArtifactStore interface {
	WriteFile(name string, content io.Reader) error
	WriteItem(folder, name string, content io.Reader) error
	List() ([]remote.HistoryEntry, error)
	Path(name string) (string, error)
	Touch(name string, now time.Time) error
	Delete(name string) error
	Sweep(now time.Time) (int, error)
}

// fileStore implements ArtifactStore under dataDir.
type fileStore struct {
	dataDir string
	ttl     time.Duration
}

// NewFileStore creates a store rooted at dataDir.
func NewFileStore(dataDir string, ttl time.Duration) ArtifactStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "sandbox-data"
	}
	return &fileStore{dataDir: dataDir, ttl: ttl}
}

// Path resolves a top-level artifact name, rejecting anything that would
// escape the data directory.
func (s *fileStore) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".tmp-") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dataDir, name), nil
}

func (s *fileStore) WriteFile(name string, content io.Reader) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	return fileutil.CopyAtomic(p, content) //nolint:wrapcheck
}

func (s *fileStore) WriteItem(folder, name string, content io.Reader) error {
	dir, err := s.Path(folder)
	if err != nil {
		return err
	}
	if _, err := s.Path(name); err != nil {
		return err
	}
	return fileutil.CopyAtomic(filepath.Join(dir, name), content) //nolint:wrapcheck
}

func (s *fileStore) List() ([]remote.HistoryEntry, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []remote.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	type listed struct {
		entry remote.HistoryEntry
		mtime time.Time
	}
	out := make([]listed, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		he := remote.HistoryEntry{
			Name:      e.Name(),
			ExpiresAt: float64(info.ModTime().UnixNano())/float64(time.Second) + s.ttl.Seconds(),
			Type:      remote.KindFile,
			Size:      info.Size(),
		}
		if e.IsDir() {
			he.Type = remote.KindPlaylist
			he.Size = dirSize(filepath.Join(s.dataDir, e.Name()))
		}
		out = append(out, listed{entry: he, mtime: info.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].mtime.After(out[j].mtime) })

	result := make([]remote.HistoryEntry, 0, len(out))
	for _, l := range out {
		result = append(result, l.entry)
	}
	return result, nil
}

func (s *fileStore) Touch(name string, now time.Time) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Chtimes(p, now, now); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("touch: %w", err)
	}
	return nil
}

func (s *fileStore) Delete(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("stat: %w", err)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Sweep removes every artifact older than the TTL and reports how many went.
func (s *fileStore) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dataDir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove expired %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries do not count
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
