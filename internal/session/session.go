// Package session holds the mutable client state shared by the resolver and
// the task controller: the resolved URL, the tracked task id and the
// remembered subtitle languages.
package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	fileutil "dlclient/internal/file"
)

// SubtitlesAll is the selection sentinel meaning every available language.
const SubtitlesAll = "all"

// Snapshot is the persisted form of a Session.
type Snapshot struct {
	URL       string    `json:"url,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Subtitles []string  `json:"subtitles,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is created once per client run and mutated only through its methods.
type Session struct {
	mu        sync.RWMutex
	url       string
	taskID    string
	subtitles []string
	path      string
}

// New returns an empty session. A non-empty path enables Save.
func New(path string) *Session {
	return &Session{path: path}
}

// Load restores a session saved at path. A missing file yields an empty session.
func Load(path string) (*Session, error) {
	s := New(path)
	var snap Snapshot
	if err := fileutil.ReadJSON(path, &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("load session: %w", err)
	}
	s.url = snap.URL
	s.taskID = snap.TaskID
	s.subtitles = append([]string(nil), snap.Subtitles...)
	return s, nil
}

// Save persists the session if it has a path.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}
	return fileutil.WriteJSONAtomic(s.path, s.Snapshot()) //nolint:wrapcheck
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		URL:       s.url,
		TaskID:    s.taskID,
		Subtitles: append([]string(nil), s.subtitles...),
		UpdatedAt: time.Now().UTC(),
	}
}

// SetResolved records a successful resolution. The subtitle list replaces
// the previous one entirely.
func (s *Session) SetResolved(url string, subtitles []string) {
	s.mu.Lock()
	s.url = url
	s.subtitles = append([]string(nil), subtitles...)
	s.mu.Unlock()
}

// URL returns the resolved URL and whether there is one.
func (s *Session) URL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url, s.url != ""
}

// ClearURL forgets the resolved URL, as a form reset does.
func (s *Session) ClearURL() {
	s.mu.Lock()
	s.url = ""
	s.mu.Unlock()
}

// Subtitles returns a copy of the remembered subtitle languages.
func (s *Session) Subtitles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.subtitles...)
}

// SubtitleChoice maps a requested language onto the remembered list.
// Languages not offered by the current resolution fall back to SubtitlesAll.
func (s *Session) SubtitleChoice(lang string) string {
	if lang == "" || lang == SubtitlesAll {
		return SubtitlesAll
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.subtitles {
		if l == lang {
			return lang
		}
	}
	return SubtitlesAll
}

// SetTask records the tracked task id.
func (s *Session) SetTask(id string) {
	s.mu.Lock()
	s.taskID = id
	s.mu.Unlock()
}

// TaskID returns the tracked task id, or "".
func (s *Session) TaskID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskID
}

// ClearTask drops the tracked task id if it still equals id.
func (s *Session) ClearTask(id string) {
	s.mu.Lock()
	if s.taskID == id {
		s.taskID = ""
	}
	s.mu.Unlock()
}
