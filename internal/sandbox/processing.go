package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
)

// process walks a job through queued, downloading and processing, then
// writes its artifacts. It owns the job until a terminal status is set.
func (m *Manager) process(ctx context.Context, job *Job) {
	m.update(job, func(s *remote.TaskStatus) { s.Status = remote.StatusQueued })

	select {
	case m.semaphore <- struct{}{}:
	case <-ctx.Done():
		m.interrupted(job)
		return
	}
	defer func() { <-m.semaphore }()

	playlist := job.Media.Items > 0 && job.Request.DownloadPlaylist
	items := 1
	if playlist {
		items = job.Media.Items
	}
	total := items * m.opts.StepsPerItem

	m.update(job, func(s *remote.TaskStatus) {
		s.Status = remote.StatusStarting
		s.IsPlaylist = playlist
	})

	done := 0
	for item := 1; item <= items; item++ {
		for step := 1; step <= m.opts.StepsPerItem; step++ {
			if !m.sleep(ctx) {
				m.interrupted(job)
				return
			}
			if job.Media.Fail != "" {
				m.fail(job, job.Media.Fail)
				return
			}
			done++
			left := time.Duration(total-done) * m.opts.StepDelay
			m.update(job, func(s *remote.TaskStatus) {
				s.Status = remote.StatusDownloading
				s.Progress = float64(done) * 100 / float64(total)
				s.Speed = "1.00MiB/s"
				s.ETA = formatETA(left)
				if playlist {
					s.PlaylistIndex = item
					s.PlaylistCount = items
				}
			})
		}
	}

	m.update(job, func(s *remote.TaskStatus) {
		s.Status = remote.StatusProcessing
		s.Progress = 100
		s.ETA = ""
	})
	if !m.sleep(ctx) {
		m.interrupted(job)
		return
	}

	filename, err := m.writeArtifacts(job, playlist)
	if err != nil {
		m.fail(job, err.Error())
		return
	}

	m.update(job, func(s *remote.TaskStatus) {
		s.Status = remote.StatusCompleted
		s.Progress = 100
		s.Speed = ""
		s.Filename = filename
	})
	log.Info().Str("task_id", job.ID).Str("filename", filename).Bool("playlist", playlist).Msg("sandbox job completed")
}

func (m *Manager) sleep(ctx context.Context) bool {
	t := time.NewTimer(m.opts.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// interrupted ends a job whose context was cancelled, either by a user
// cancel or by shutdown.
func (m *Manager) interrupted(job *Job) {
	if m.cancelRequested(job) {
		m.update(job, func(s *remote.TaskStatus) {
			s.Status = remote.StatusCancelled
			s.Error = "Download cancelled by user"
		})
		log.Info().Str("task_id", job.ID).Msg("sandbox job cancelled")
		return
	}
	m.fail(job, "service shutting down")
}

func (m *Manager) fail(job *Job, msg string) {
	m.update(job, func(s *remote.TaskStatus) {
		s.Status = remote.StatusError
		s.Error = msg
	})
	log.Warn().Str("task_id", job.ID).Str("error", msg).Msg("sandbox job failed")
}

// writeArtifacts stores the synthetic output and returns the filename the
// status reports. A playlist source downloaded without the playlist flag
// reports no filename.
func (m *Manager) writeArtifacts(job *Job, playlist bool) (string, error) {
	title := sanitizeName(job.Media.Title)
	ext := ".mp4"
	if job.Request.Format == "audio" {
		ext = ".mp3"
	}

	if playlist {
		for i := 1; i <= job.Media.Items; i++ {
			name := fmt.Sprintf("%02d - %s%s", i, title, ext)
			if err := m.store.WriteItem(title, name, m.payload(job, i)); err != nil {
				return "", fmt.Errorf("write playlist item: %w", err)
			}
		}
		return title, nil
	}

	name := title + ext
	if err := m.store.WriteFile(name, m.payload(job, 1)); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	for _, lang := range subtitleLangs(job) {
		sub := fmt.Sprintf("%s.%s.vtt", title, lang)
		if err := m.store.WriteFile(sub, strings.NewReader("WEBVTT\n")); err != nil {
			return "", fmt.Errorf("write subtitles: %w", err)
		}
	}
	if job.Media.Items > 0 {
		return "", nil
	}
	return name, nil
}

func (m *Manager) payload(job *Job, item int) *bytes.Reader {
	header := fmt.Sprintf("%s #%d\n%s\n", job.Media.Title, item, job.Request.URL)
	buf := bytes.Repeat([]byte(header), m.opts.ArtifactSize/len(header)+1)
	return bytes.NewReader(buf[:m.opts.ArtifactSize])
}

func subtitleLangs(job *Job) []string {
	if !job.Request.Subtitles || len(job.Media.Subtitles) == 0 {
		return nil
	}
	lang := job.Request.SubtitleLang
	if lang == "" || lang == "all" {
		return job.Media.Subtitles
	}
	for _, l := range job.Media.Subtitles {
		if l == lang {
			return []string{l}
		}
	}
	return nil
}

func sanitizeName(title string) string {
	title = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	title = strings.TrimLeft(title, ".")
	if title == "" {
		return "download"
	}
	return title
}

func formatETA(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
