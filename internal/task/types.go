package task

import (
	"strings"

	"dlclient/internal/remote"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether the state ends a task.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

// IsActive reports whether a task is in flight.
func (s State) IsActive() bool {
	return s == StateRequesting || s == StatePolling
}

const (
	FormatVideo = "video"
	FormatAudio = "audio"

	QualityBest  = "best"
	Quality4K    = "4k"
	Quality1080p = "1080p"
	Quality720p  = "720p"
)

var qualities = map[string]struct{}{
	QualityBest:  {},
	Quality4K:    {},
	Quality1080p: {},
	Quality720p:  {},
}

// Options are the user's choices for a download.
type Options struct {
	Format       string
	Quality      string
	Subtitles    bool
	SubtitleLang string
	Playlist     bool
}

func (o Options) format() string {
	if strings.EqualFold(strings.TrimSpace(o.Format), FormatAudio) {
		return FormatAudio
	}
	return FormatVideo
}

func (o Options) quality() string {
	q := strings.ToLower(strings.TrimSpace(o.Quality))
	if _, ok := qualities[q]; ok {
		return q
	}
	return QualityBest
}

// Outcome describes how a task ended.
type Outcome struct {
	TaskID string
	State  State
	Status remote.TaskStatus
	Err    error
}
