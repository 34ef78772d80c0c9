package session

import (
	"path/filepath"
	"testing"
)

func TestSetResolvedReplacesSubtitles(t *testing.T) {
	s := New("")
	s.SetResolved("https://a", []string{"en", "fr"})
	s.SetResolved("https://b", nil)

	if got := s.Subtitles(); len(got) != 0 {
		t.Fatalf("expected subtitles replaced by empty list, got %v", got)
	}
	if got := s.SubtitleChoice("fr"); got != SubtitlesAll {
		t.Fatalf("stale language must not leak, got %q", got)
	}
	url, ok := s.URL()
	if !ok || url != "https://b" {
		t.Fatalf("unexpected url %q ok=%v", url, ok)
	}
}

func TestSubtitleChoice(t *testing.T) {
	s := New("")
	s.SetResolved("u", []string{"en", "es"})
	cases := map[string]string{"": SubtitlesAll, "all": SubtitlesAll, "es": "es", "de": SubtitlesAll}
	for in, want := range cases {
		if got := s.SubtitleChoice(in); got != want {
			t.Fatalf("SubtitleChoice(%q)=%q want %q", in, got, want)
		}
	}
}

func TestClearTaskOnlyMatching(t *testing.T) {
	s := New("")
	s.SetTask("t2")
	s.ClearTask("t1")
	if s.TaskID() != "t2" {
		t.Fatalf("clearing a stale id must not drop the current task")
	}
	s.ClearTask("t2")
	if s.TaskID() != "" {
		t.Fatalf("expected task cleared")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	s := New(path)
	s.SetResolved("https://a", []string{"en"})
	s.SetTask("t1")
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TaskID() != "t1" || len(loaded.Subtitles()) != 1 {
		t.Fatalf("unexpected loaded session %+v", loaded.Snapshot())
	}

	empty, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil || empty.TaskID() != "" {
		t.Fatalf("missing file should give empty session, err=%v", err)
	}
}
