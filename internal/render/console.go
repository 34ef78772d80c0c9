package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"dlclient/internal/remote"
)

const barWidth = 30

// Console renders to a terminal, one line per update.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	lastText   string
	countdowns bool
	subtitles  bool
	onNavigate func(path string)
}

// NewConsole builds a console renderer. onNavigate receives artifact paths
// the controller wants opened; nil just prints them.
func NewConsole(out io.Writer, onNavigate func(path string)) *Console {
	return &Console{out: out, onNavigate: onNavigate}
}

// ShowCountdowns toggles printing of the per-second history countdowns.
func (c *Console) ShowCountdowns(on bool) {
	c.mu.Lock()
	c.countdowns = on
	c.mu.Unlock()
}

func (c *Console) ShowStep(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if step == StepProgress {
		c.lastText = ""
	}
}

func (c *Console) SetBusy(busy bool) {
	if busy {
		c.printf("resolving...\n")
	}
}

func (c *Console) SetInputURL(url string) { c.printf("url: %s\n", url) }

func (c *Console) ShowMetadata(meta remote.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "title:    %s\n", meta.Title)
	fmt.Fprintf(c.out, "uploader: %s\n", meta.Uploader)
	fmt.Fprintf(c.out, "duration: %s\n", meta.Duration)
	if meta.ViewCount > 0 {
		fmt.Fprintf(c.out, "views:    %d\n", meta.ViewCount)
	}
	if meta.Thumbnail != "" {
		fmt.Fprintf(c.out, "thumb:    %s\n", meta.Thumbnail)
	}
}

func (c *Console) SetSubtitleOptions(langs []string) {
	if len(langs) == 0 {
		c.printf("subtitles: none\n")
		return
	}
	c.mu.Lock()
	state := "off"
	if c.subtitles {
		state = "on"
	}
	c.mu.Unlock()
	c.printf("subtitles: all, %s (%s)\n", strings.Join(langs, ", "), state)
}

func (c *Console) SetSubtitlesEnabled(on bool) {
	c.mu.Lock()
	c.subtitles = on
	c.mu.Unlock()
}

func (c *Console) ShowProgress(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Text != "" {
		c.lastText = p.Text
	}
	fmt.Fprintf(c.out, "%s %5.1f%%  %s  eta %s  %s\n", bar(p.Percent), p.Percent, p.Speed, p.ETA, c.lastText)
}

func (c *Console) Notify(msg string) { c.printf("%s\n", msg) }

func (c *Console) Navigate(path string) {
	if c.onNavigate != nil {
		c.onNavigate(path)
		return
	}
	c.printf("ready: %s\n", path)
}

func (c *Console) RenderHistory(rows []HistoryRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "history: empty")
		return
	}
	for _, r := range rows {
		icon := "file"
		if r.Kind == remote.KindPlaylist {
			icon = "dir "
		}
		actions := make([]string, 0, 2)
		if r.ViewPath != "" {
			actions = append(actions, "view")
		}
		if r.DownloadPath != "" {
			actions = append(actions, "download")
		}
		fmt.Fprintf(c.out, "[%s] %-40s %10s  %s\n", icon, r.Name, r.SizeText, strings.Join(actions, ","))
	}
}

func (c *Console) RenderCountdowns(countdowns []Countdown) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.countdowns {
		return
	}
	for _, cd := range countdowns {
		marker := " "
		if cd.Tier == TierDanger {
			marker = "!"
		}
		fmt.Fprintf(c.out, "%s %s  %s\n", marker, cd.Text, cd.Name)
	}
}

func (c *Console) SetCookieIndicator(exists bool) {
	if exists {
		c.printf("cookies: active\n")
		return
	}
	c.printf("cookies: none\n")
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func bar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

// Prompt is a Confirmer reading y/n answers line by line.
type Prompt struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompt reads answers from in and writes questions to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{scanner: bufio.NewScanner(in), out: out}
}

// Confirm implements Confirmer. Anything but y/yes declines.
func (p *Prompt) Confirm(question string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	if !p.scanner.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
