package urlnorm

import (
	"regexp"
	"testing"
)

func TestNormalizeTwitchDashboard(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://dashboard.twitch.tv/u/someone/content/video-producer/edit/2625520227", "https://www.twitch.tv/videos/2625520227"},
		{"dashboard.twitch.tv/u/x_y/content/video-producer/edit/1", "https://www.twitch.tv/videos/1"},
		{"http://dashboard.twitch.tv/u/a/content/video-producer/edit/42?tab=details", "https://www.twitch.tv/videos/42"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdentity(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.twitch.tv/videos/123",
		"https://dashboard.twitch.tv/u/someone/content/video-producer/edit/",
		"https://dashboard.twitch.tv/u/someone/content/video-producer/edit/abc",
		"not a url at all",
	}
	for _, in := range inputs {
		if got := Normalize(in); got != in {
			t.Fatalf("Normalize(%q)=%q, expected identity", in, got)
		}
	}
}

func TestApplyFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Name: "a", Pattern: regexp.MustCompile(`^x(\d)`), Rewrite: func(m []string) string { return "a" + m[1] }},
		{Name: "b", Pattern: regexp.MustCompile(`^x`), Rewrite: func([]string) string { return "b" }},
	}
	if got := Apply(rules, "x7"); got != "a7" {
		t.Fatalf("expected first rule to win, got %q", got)
	}
	if got := Apply(rules, "xy"); got != "b" {
		t.Fatalf("expected fallback rule, got %q", got)
	}
	if got := Apply(nil, "xy"); got != "xy" {
		t.Fatalf("empty rule table must be identity, got %q", got)
	}
}
