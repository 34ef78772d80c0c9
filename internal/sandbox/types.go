package sandbox

import (
	"context"
	"time"

	"dlclient/internal/remote"
)

// Job is one simulated download tracked by the manager.
type Job struct {
	ID        string
	Request   remote.DownloadRequest
	Media     Media
	State     remote.TaskStatus
	CreatedAt time.Time

	cancel          context.CancelFunc
	cancelRequested bool
}

// Media is what the catalog knows about a source URL.
type Media struct {
	Title     string
	Duration  string
	Uploader  string
	Thumbnail string
	ViewCount int64
	Subtitles []string
	// Items is the number of entries for a playlist source, zero otherwise.
	Items int
	// Fail makes the job end in error with this message.
	Fail string
}

// Catalog resolves a source URL. A returned error is reported verbatim.
type Catalog func(url string) (Media, error)

// Options configures the simulated service.
type Options struct {
	DataDir            string
	TTL                time.Duration
	StepDelay          time.Duration
	StepsPerItem       int
	ArtifactSize       int
	MaxConcurrentTasks int
	Catalog            Catalog
}

const (
	defaultTTL           = 4 * time.Hour
	defaultStepDelay     = 200 * time.Millisecond
	defaultStepsPerItem  = 5
	defaultArtifactSize  = 64 * 1024
	defaultMaxConcurrent = 3
)

func (o *Options) setDefaults() {
	if o.DataDir == "" {
		o.DataDir = "sandbox-data"
	}
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.StepDelay <= 0 {
		o.StepDelay = defaultStepDelay
	}
	if o.StepsPerItem <= 0 {
		o.StepsPerItem = defaultStepsPerItem
	}
	if o.ArtifactSize <= 0 {
		o.ArtifactSize = defaultArtifactSize
	}
	if o.MaxConcurrentTasks <= 0 {
		o.MaxConcurrentTasks = defaultMaxConcurrent
	}
	if o.Catalog == nil {
		o.Catalog = DefaultCatalog
	}
}
