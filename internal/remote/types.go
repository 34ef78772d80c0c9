package remote

// Status is the job state reported by GET status/{id}.
type Status string

const (
	StatusPending     Status = "pending"
	StatusStarting    Status = "starting"
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether polling must stop on this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Kind discriminates history artifacts.
type Kind string

const (
	KindFile     Kind = "file"
	KindPlaylist Kind = "playlist"
)

// Metadata is the result of POST info.
type Metadata struct {
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  string   `json:"duration"`
	Uploader  string   `json:"uploader"`
	ViewCount int64    `json:"view_count,omitempty"`
	Subtitles []string `json:"subtitles"`
}

// DownloadRequest is the body of POST download.
type DownloadRequest struct {
	URL              string `json:"url"`
	Format           string `json:"format"`
	Quality          string `json:"quality"`
	Subtitles        bool   `json:"subtitles"`
	SubtitleLang     string `json:"subtitle_lang"`
	DownloadPlaylist bool   `json:"download_playlist"`
}

// TaskStatus is one poll snapshot of a job.
type TaskStatus struct {
	Status        Status  `json:"status"`
	Progress      float64 `json:"progress"`
	Speed         string  `json:"speed,omitempty"`
	ETA           string  `json:"eta,omitempty"`
	PlaylistIndex int     `json:"playlist_index,omitempty"`
	PlaylistCount int     `json:"playlist_count,omitempty"`
	IsPlaylist    bool    `json:"is_playlist,omitempty"`
	Filename      string  `json:"filename,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// HasPlaylistPosition reports whether both index and count are known.
func (s TaskStatus) HasPlaylistPosition() bool {
	return s.PlaylistIndex > 0 && s.PlaylistCount > 0
}

// HistoryEntry is one artifact listed by GET history.
type HistoryEntry struct {
	Name      string  `json:"name"`
	Size      int64   `json:"size"`
	ExpiresAt float64 `json:"expires_at"`
	Type      Kind    `json:"type"`
}

// IsFolder reports whether the artifact is a playlist folder.
func (e HistoryEntry) IsFolder() bool { return e.Type == KindPlaylist }

type envelope struct {
	Error string `json:"error,omitempty"`
}

type infoRequest struct {
	URL string `json:"url"`
}

type infoResponse struct {
	Metadata
	envelope
}

type downloadResponse struct {
	TaskID string `json:"task_id"`
	envelope
}

type cancelRequest struct {
	TaskID string `json:"task_id"`
}

type cookiesStatusResponse struct {
	Exists bool `json:"exists"`
}
