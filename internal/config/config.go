package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Pipeline contains stage engine and reconciler timing parameters.
type Pipeline struct {
	BatchSize              int `toml:"batch_size"`
	AdvanceIntervalSeconds int `toml:"advance_interval_seconds"`
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	ArchiveIntervalSeconds int `toml:"archive_interval_seconds"`
	PendingTimeoutMinutes  int `toml:"pending_timeout_minutes"`
	VideoCreditCost        int `toml:"video_credit_cost"`
}

// ScriptProvider describes one chat-completion provider endpoint.
type ScriptProvider struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// ScriptGen contains script generation provider configuration. The secondary
// provider is optional and is only consulted when the primary fails.
type ScriptGen struct {
	Primary        ScriptProvider `toml:"primary"`
	Secondary      ScriptProvider `toml:"secondary"`
	TimeoutSeconds int            `toml:"timeout_seconds"`
}

// Speech contains speech synthesis service configuration.
type Speech struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// VideoSynth contains video synthesis service credentials.
type VideoSynth struct {
	BaseURL        string `toml:"base_url"`
	AccountID      string `toml:"account_id"`
	UserID         string `toml:"user_id"`
	TokenID        string `toml:"token_id"`
	ClientID       string `toml:"client_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains durable object store (R2/S3) configuration.
type Storage struct {
	AccountID       string `toml:"account_id"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	Bucket          string `toml:"bucket"`
	Endpoint        string `toml:"endpoint"`
	PublicURL       string `toml:"public_url"`
}

// Ingest contains idea ingestion configuration.
type Ingest struct {
	Enabled   bool   `toml:"enabled"`
	PostLimit int    `toml:"post_limit"`
	UserAgent string `toml:"user_agent"`
}

// Notifications contains ntfy push notification configuration.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Archive        bool   `toml:"archive"`
	Errors         bool   `toml:"errors"`
}

// Config is the root configuration document.
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	ScriptGen     ScriptGen     `toml:"scriptgen"`
	Speech        Speech        `toml:"speech"`
	VideoSynth    VideoSynth    `toml:"videosynth"`
	Storage       Storage       `toml:"storage"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the conventional configuration file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reelforge.toml"
	}
	return filepath.Join(home, ".config", "reelforge", "config.toml")
}

// Load reads configuration from path, falling back to defaults for any value
// the file does not set. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the configured data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite state store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "pipeline.db")
}
