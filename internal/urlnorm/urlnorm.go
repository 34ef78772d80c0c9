// Package urlnorm rewrites known non-canonical media links into the public
// form the download service understands. It never performs network access.
package urlnorm

import "regexp"

// Rule rewrites input matching Pattern. Rewrite receives the submatches.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Rewrite func(match []string) string
}

var twitchDashboard = regexp.MustCompile(`dashboard\.twitch\.tv/u/[^/]+/content/video-producer/edit/(\d+)`)

// DefaultRules is the rule table applied by Normalize, first match wins.
var DefaultRules = []Rule{
	{
		Name:    "twitch-dashboard",
		Pattern: twitchDashboard,
		Rewrite: func(m []string) string { return "https://www.twitch.tv/videos/" + m[1] },
	},
}

// Normalize applies DefaultRules. Unrecognized input is returned unchanged.
func Normalize(raw string) string {
	return Apply(DefaultRules, raw)
}

// Apply runs the first matching rule over raw.
func Apply(rules []Rule, raw string) string {
	for _, r := range rules {
		if m := r.Pattern.FindStringSubmatch(raw); m != nil {
			return r.Rewrite(m)
		}
	}
	return raw
}
