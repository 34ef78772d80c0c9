package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL         = "http://localhost:5000"
	defaultAPIPrefix       = "/api/"
	defaultPollInterval    = 500 * time.Millisecond
	defaultHistoryTick     = time.Second
	defaultRefreshDelay    = 2 * time.Second
	defaultDangerThreshold = 300 * time.Second
	defaultExpiryTolerance = 2 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultDownloadDir     = "downloads"
	defaultStateFile       = ".dlclient/session.json"
)

// Config describes runtime configuration for the client.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	APIPrefix       string        `yaml:"api_prefix"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	HistoryTick     time.Duration `yaml:"history_tick"`
	RefreshDelay    time.Duration `yaml:"refresh_delay"`
	DangerThreshold time.Duration `yaml:"danger_threshold"`
	ExpiryTolerance time.Duration `yaml:"expiry_tolerance"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DownloadDir     string        `yaml:"download_dir"`
	StateFile       string        `yaml:"state_file"`
	AssumeYes       bool          `yaml:"assume_yes"`
}

// Default returns the timings the web client was built around.
func Default() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		APIPrefix:       defaultAPIPrefix,
		PollInterval:    defaultPollInterval,
		HistoryTick:     defaultHistoryTick,
		RefreshDelay:    defaultRefreshDelay,
		DangerThreshold: defaultDangerThreshold,
		ExpiryTolerance: defaultExpiryTolerance,
		RequestTimeout:  defaultRequestTimeout,
		DownloadDir:     defaultDownloadDir,
		StateFile:       defaultStateFile,
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is chosen by the user
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the lifecycle cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %q", c.BaseURL)
	}
	durations := []struct {
		name string
		val  time.Duration
	}{
		{"poll_interval", c.PollInterval},
		{"history_tick", c.HistoryTick},
		{"request_timeout", c.RequestTimeout},
	}
	for _, d := range durations {
		if d.val <= 0 {
			return fmt.Errorf("invalid %s: %s (must be > 0)", d.name, d.val)
		}
	}
	if c.RefreshDelay < 0 || c.DangerThreshold < 0 || c.ExpiryTolerance < 0 {
		return errors.New("refresh_delay, danger_threshold and expiry_tolerance must not be negative")
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.APIPrefix = normalizePrefix(c.APIPrefix)
	if c.DownloadDir == "" {
		c.DownloadDir = defaultDownloadDir
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile
	}
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return defaultAPIPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
