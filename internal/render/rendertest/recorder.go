// Package rendertest provides a Renderer that records every call.
package rendertest

import (
	"sync"

	"dlclient/internal/remote"
	"dlclient/internal/render"
)

// Recorder implements render.Renderer and keeps everything it was sent.
type Recorder struct {
	mu          sync.Mutex
	Steps       []render.Step
	Busy        []bool
	InputURLs   []string
	Metadata    []remote.Metadata
	Subtitles   [][]string
	SubToggles  []bool
	Progress    []render.Progress
	Notices     []string
	Navigations []string
	Histories   [][]render.HistoryRow
	Countdowns  [][]render.Countdown
	Cookies     []bool
}

var _ render.Renderer = (*Recorder)(nil)

func (r *Recorder) ShowStep(step render.Step) {
	r.mu.Lock()
	r.Steps = append(r.Steps, step)
	r.mu.Unlock()
}

func (r *Recorder) SetBusy(busy bool) {
	r.mu.Lock()
	r.Busy = append(r.Busy, busy)
	r.mu.Unlock()
}

func (r *Recorder) SetInputURL(url string) {
	r.mu.Lock()
	r.InputURLs = append(r.InputURLs, url)
	r.mu.Unlock()
}

func (r *Recorder) ShowMetadata(meta remote.Metadata) {
	r.mu.Lock()
	r.Metadata = append(r.Metadata, meta)
	r.mu.Unlock()
}

func (r *Recorder) SetSubtitleOptions(langs []string) {
	r.mu.Lock()
	r.Subtitles = append(r.Subtitles, append([]string(nil), langs...))
	r.mu.Unlock()
}

func (r *Recorder) SetSubtitlesEnabled(on bool) {
	r.mu.Lock()
	r.SubToggles = append(r.SubToggles, on)
	r.mu.Unlock()
}

func (r *Recorder) ShowProgress(p render.Progress) {
	r.mu.Lock()
	r.Progress = append(r.Progress, p)
	r.mu.Unlock()
}

func (r *Recorder) Notify(msg string) {
	r.mu.Lock()
	r.Notices = append(r.Notices, msg)
	r.mu.Unlock()
}

func (r *Recorder) Navigate(path string) {
	r.mu.Lock()
	r.Navigations = append(r.Navigations, path)
	r.mu.Unlock()
}

func (r *Recorder) RenderHistory(rows []render.HistoryRow) {
	r.mu.Lock()
	r.Histories = append(r.Histories, append([]render.HistoryRow(nil), rows...))
	r.mu.Unlock()
}

func (r *Recorder) RenderCountdowns(countdowns []render.Countdown) {
	r.mu.Lock()
	r.Countdowns = append(r.Countdowns, append([]render.Countdown(nil), countdowns...))
	r.mu.Unlock()
}

func (r *Recorder) SetCookieIndicator(exists bool) {
	r.mu.Lock()
	r.Cookies = append(r.Cookies, exists)
	r.mu.Unlock()
}

// LastStep returns the most recent step, or "" if none was shown.
func (r *Recorder) LastStep() render.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1]
}

// NavigationCount returns how many navigations happened.
func (r *Recorder) NavigationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Navigations)
}

// NoticeList returns a copy of the notices.
func (r *Recorder) NoticeList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Notices...)
}

// LastSubtitles returns the latest subtitle options, or nil.
func (r *Recorder) LastSubtitles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Subtitles) == 0 {
		return nil
	}
	return r.Subtitles[len(r.Subtitles)-1]
}

// LastHistory returns the latest rendered rows, or nil.
func (r *Recorder) LastHistory() []render.HistoryRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Histories) == 0 {
		return nil
	}
	return r.Histories[len(r.Histories)-1]
}

// LastCountdowns returns the latest countdowns, or nil.
func (r *Recorder) LastCountdowns() []render.Countdown {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Countdowns) == 0 {
		return nil
	}
	return r.Countdowns[len(r.Countdowns)-1]
}

// ProgressCount returns how many progress updates were rendered.
func (r *Recorder) ProgressCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Progress)
}

// LastProgress returns the most recent progress update.
func (r *Recorder) LastProgress() render.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Progress) == 0 {
		return render.Progress{}
	}
	return r.Progress[len(r.Progress)-1]
}

// SubtitlesEnabled returns the latest subtitle toggle and whether it was set.
func (r *Recorder) SubtitlesEnabled() (on, set bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.SubToggles) == 0 {
		return false, false
	}
	return r.SubToggles[len(r.SubToggles)-1], true
}
