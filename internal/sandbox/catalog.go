package sandbox

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// DefaultCatalog derives deterministic media from the URL itself:
//
//	list=<anything> or /playlist   playlist of ?items=N entries (default 3)
//	subs=en,es                     available subtitle languages
//	fail=<message>                 job ends in error with message
//
// Anything that is not an absolute http(s) URL is unsupported.
func DefaultCatalog(raw string) (Media, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Media{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}
	q := u.Query()

	title := path.Base(strings.TrimRight(u.Path, "/"))
	if title == "." || title == "/" || title == "" {
		title = u.Host
	}
	if v := q.Get("v"); v != "" {
		title = v
	}

	m := Media{
		Title:     title,
		Duration:  "03:25",
		Uploader:  strings.TrimPrefix(u.Hostname(), "www."),
		Thumbnail: "https://" + u.Host + "/thumb/" + url.PathEscape(title) + ".jpg",
		ViewCount: int64(len(raw)) * 1000,
		Fail:      q.Get("fail"),
	}
	if subs := q.Get("subs"); subs != "" {
		for _, lang := range strings.Split(subs, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				m.Subtitles = append(m.Subtitles, lang)
			}
		}
	}
	if q.Has("list") || strings.Contains(u.Path, "/playlist") {
		m.Items = 3
		if n, err := strconv.Atoi(q.Get("items")); err == nil && n > 0 {
			m.Items = n
		}
		if l := q.Get("list"); l != "" {
			m.Title = l
		}
	}
	return m, nil
}
