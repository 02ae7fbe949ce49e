package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelforge/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.Pipeline.BatchSize != 5 {
		t.Fatalf("expected default batch size, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.PendingTimeoutMinutes != 15 {
		t.Fatalf("expected default pending timeout, got %d", cfg.Pipeline.PendingTimeoutMinutes)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
log_level = "DEBUG"

[pipeline]
batch_size = 12
video_credit_cost = 25

[speech]
base_url = "https://speech.example.com/"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lowercased log level, got %q", cfg.LogLevel)
	}
	if cfg.Pipeline.BatchSize != 12 {
		t.Fatalf("expected batch size from file, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.VideoCreditCost != 25 {
		t.Fatalf("expected credit cost from file, got %d", cfg.Pipeline.VideoCreditCost)
	}
	if cfg.Speech.BaseURL != "https://speech.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Speech.BaseURL)
	}
	if cfg.Pipeline.AdvanceIntervalSeconds != 30 {
		t.Fatalf("expected untouched defaults preserved, got %d", cfg.Pipeline.AdvanceIntervalSeconds)
	}
}

func TestLoadRejectsInvalidLogFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("log_format = \"xml\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "log_format") {
		t.Fatalf("expected log_format validation error, got %v", err)
	}
}

func TestValidateRequiresEndpointWithBucket(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Bucket = "videos"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.endpoint") {
		t.Fatalf("expected storage endpoint error, got %v", err)
	}
}

func TestLoadDerivesR2EndpointFromAccountID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
[storage]
account_id = "acct123"
bucket = "videos"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Endpoint != "https://acct123.r2.cloudflarestorage.com" {
		t.Fatalf("expected derived endpoint, got %q", cfg.Storage.Endpoint)
	}
}

func TestWriteSampleRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		t.Fatal("expected sample config written")
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error for existing file")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, got %v %v", dir, info, err)
		}
	}
}
