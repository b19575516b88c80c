// Package config assembles the daemon configuration. Precedence is
// environment over YAML file over built-in defaults; the YAML file is
// optional and named by YTDLDER_CONFIG.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig gates the durable upload stage.
type StorageConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Attempts      int           `yaml:"attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
}

// Config is the full daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// DataDir holds published artifacts (under artifacts/) and in-flight
	// staging files (under staging/).
	DataDir string `yaml:"data_dir"`
	// SiteURL is the externally reachable base for locally served
	// artifacts, e.g. "http://localhost:8080".
	SiteURL  string `yaml:"site_url"`
	LogLevel string `yaml:"log_level"`

	FFmpegBin         string        `yaml:"ffmpeg_bin"`
	FFmpegKillTimeout time.Duration `yaml:"ffmpeg_kill_timeout"`

	MaxConcurrentMerges int           `yaml:"max_concurrent_merges"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	MergeTimeout        time.Duration `yaml:"merge_timeout"`
	UploadTimeout       time.Duration `yaml:"upload_timeout"`

	Storage StorageConfig `yaml:"storage"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:          ":8080",
		DataDir:             "./data",
		SiteURL:             "http://localhost:8080",
		LogLevel:            "info",
		FFmpegBin:           "ffmpeg",
		FFmpegKillTimeout:   5 * time.Second,
		MaxConcurrentMerges: 2,
		FetchTimeout:        10 * time.Minute,
		MergeTimeout:        10 * time.Minute,
		UploadTimeout:       5 * time.Minute,
		Storage: StorageConfig{
			Attempts:  3,
			BaseDelay: time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file from
// YTDLDER_CONFIG, then environment overrides. The result is validated.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("YTDLDER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from the environment, using the current values
// as defaults so file settings survive when a variable is unset.
func (c *Config) applyEnv() {
	c.ListenAddr = ParseString("YTDLDER_LISTEN", c.ListenAddr)
	c.DataDir = ParseString("YTDLDER_DATA_DIR", c.DataDir)
	c.SiteURL = ParseString("YTDLDER_SITE_URL", c.SiteURL)
	c.LogLevel = ParseString("YTDLDER_LOG_LEVEL", c.LogLevel)

	c.FFmpegBin = ParseString("YTDLDER_FFMPEG_BIN", c.FFmpegBin)
	c.FFmpegKillTimeout = ParseDuration("YTDLDER_FFMPEG_KILL_TIMEOUT", c.FFmpegKillTimeout)

	c.MaxConcurrentMerges = ParseInt("YTDLDER_MAX_CONCURRENT_MERGES", c.MaxConcurrentMerges)
	c.FetchTimeout = ParseDuration("YTDLDER_FETCH_TIMEOUT", c.FetchTimeout)
	c.MergeTimeout = ParseDuration("YTDLDER_MERGE_TIMEOUT", c.MergeTimeout)
	c.UploadTimeout = ParseDuration("YTDLDER_UPLOAD_TIMEOUT", c.UploadTimeout)

	c.Storage.Enabled = ParseBool("YTDLDER_STORAGE_ENABLED", c.Storage.Enabled)
	c.Storage.Bucket = ParseString("YTDLDER_STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Region = ParseString("YTDLDER_STORAGE_REGION", c.Storage.Region)
	c.Storage.Endpoint = ParseString("YTDLDER_STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = ParseString("YTDLDER_STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = ParseString("YTDLDER_STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.PublicBaseURL = ParseString("YTDLDER_STORAGE_PUBLIC_URL", c.Storage.PublicBaseURL)
	c.Storage.Attempts = ParseInt("YTDLDER_STORAGE_ATTEMPTS", c.Storage.Attempts)
	c.Storage.BaseDelay = ParseDuration("YTDLDER_STORAGE_BASE_DELAY", c.Storage.BaseDelay)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	u, err := url.Parse(c.SiteURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site URL %q must be an absolute URL", c.SiteURL)
	}
	if c.MaxConcurrentMerges < 1 {
		return fmt.Errorf("max concurrent merges must be at least 1, got %d", c.MaxConcurrentMerges)
	}
	if c.FetchTimeout <= 0 || c.MergeTimeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("stage timeouts must be positive")
	}
	if c.Storage.Enabled {
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage is enabled but no bucket is configured")
		}
		if c.Storage.Attempts < 1 {
			return fmt.Errorf("storage attempts must be at least 1, got %d", c.Storage.Attempts)
		}
	}
	return nil
}

// ArtifactDir is where committed artifacts live.
func (c *Config) ArtifactDir() string {
	return filepath.Join(c.DataDir, "artifacts")
}

// StagingDir is where in-flight fetch and merge outputs live.
func (c *Config) StagingDir() string {
	return filepath.Join(c.DataDir, "staging")
}
