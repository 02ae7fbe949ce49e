package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default returns the built-in configuration values.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Paths: Paths{
			DataDir: filepath.Join(home, ".local", "share", "reelforge"),
			LogDir:  filepath.Join(home, ".local", "share", "reelforge", "logs"),
		},
		Pipeline: Pipeline{
			BatchSize:              5,
			AdvanceIntervalSeconds: 30,
			PollIntervalSeconds:    10,
			ArchiveIntervalSeconds: 60,
			PendingTimeoutMinutes:  15,
			VideoCreditCost:        10,
		},
		ScriptGen: ScriptGen{
			Primary: ScriptProvider{
				Name:    "gemini",
				BaseURL: "https://generativelanguage.googleapis.com",
				Model:   "gemini-2.5-pro",
			},
			Secondary: ScriptProvider{
				Name:    "gpt",
				BaseURL: "https://api.openai.com",
				Model:   "gpt-4o-mini",
			},
			TimeoutSeconds: 60,
		},
		Speech: Speech{
			BaseURL:        "https://api.minimax.io",
			Model:          "speech-2.5-hd-preview",
			TimeoutSeconds: 30,
		},
		VideoSynth: VideoSynth{
			BaseURL:        "https://dapi.qcv.vn",
			TimeoutSeconds: 120,
		},
		Ingest: Ingest{
			PostLimit: 5,
			UserAgent: "reelforge-ingest/0.1",
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Archive:        true,
			Errors:         true,
		},
	}
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 5
	}
	if c.Pipeline.AdvanceIntervalSeconds <= 0 {
		c.Pipeline.AdvanceIntervalSeconds = 30
	}
	if c.Pipeline.PollIntervalSeconds <= 0 {
		c.Pipeline.PollIntervalSeconds = 10
	}
	if c.Pipeline.ArchiveIntervalSeconds <= 0 {
		c.Pipeline.ArchiveIntervalSeconds = 60
	}
	if c.Pipeline.PendingTimeoutMinutes <= 0 {
		c.Pipeline.PendingTimeoutMinutes = 15
	}
	if c.Pipeline.VideoCreditCost <= 0 {
		c.Pipeline.VideoCreditCost = 10
	}
	for _, p := range []*ScriptProvider{&c.ScriptGen.Primary, &c.ScriptGen.Secondary} {
		p.Name = strings.TrimSpace(p.Name)
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.Model = strings.TrimSpace(p.Model)
	}
	c.Speech.BaseURL = strings.TrimRight(strings.TrimSpace(c.Speech.BaseURL), "/")
	c.VideoSynth.BaseURL = strings.TrimRight(strings.TrimSpace(c.VideoSynth.BaseURL), "/")
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	c.Storage.PublicURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicURL), "/")
	if c.Storage.Endpoint == "" && c.Storage.AccountID != "" {
		c.Storage.Endpoint = "https://" + c.Storage.AccountID + ".r2.cloudflarestorage.com"
	}
	if c.Ingest.PostLimit <= 0 {
		c.Ingest.PostLimit = 5
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}
}
