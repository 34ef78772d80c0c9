// Package render defines the presentation sink the controllers write to and
// a line-oriented console implementation of it.
package render

import "dlclient/internal/remote"

// Step is one of the mutually exclusive views of the workflow.
type Step string

const (
	StepInput    Step = "url"
	StepInfo     Step = "info"
	StepProgress Step = "progress"
)

// Tone colours the progress bar.
type Tone string

const (
	ToneActive     Tone = "active"
	ToneProcessing Tone = "processing"
	ToneDone       Tone = "done"
)

// Tier is the urgency class of a history countdown.
type Tier string

const (
	TierNormal Tier = "normal"
	TierDanger Tier = "danger"
)

// Progress is everything the progress view shows for one poll.
// An empty Text leaves the previous status line in place.
type Progress struct {
	Percent float64
	Speed   string
	ETA     string
	Text    string
	Tone    Tone
}

// HistoryRow is one rendered history entry.
type HistoryRow struct {
	Name         string
	Kind         remote.Kind
	SizeText     string
	ExpiresAt    float64
	DownloadPath string // empty means the download action is disabled
	ViewPath     string // empty means no view action
}

// Countdown is the live expiry display for one history row.
type Countdown struct {
	Name string
	Text string
	Tier Tier
}

// Renderer is the sink every component writes UI state to.
type Renderer interface {
	ShowStep(step Step)
	SetBusy(busy bool)
	SetInputURL(url string)
	ShowMetadata(meta remote.Metadata)
	SetSubtitleOptions(langs []string)
	SetSubtitlesEnabled(on bool)
	ShowProgress(p Progress)
	Notify(msg string)
	Navigate(path string)
	RenderHistory(rows []HistoryRow)
	RenderCountdowns(countdowns []Countdown)
	SetCookieIndicator(exists bool)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(question string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(question string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(question string) bool { return f(question) }

// Always answers every question with the same value.
type Always bool

// Confirm implements Confirmer.
func (a Always) Confirm(string) bool { return bool(a) }
