// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/store"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedChannel creates a channel with automation enabled.
func SeedChannel(t testing.TB, st *store.Store, id, ownerID string) *store.Channel {
	t.Helper()

	channel := &store.Channel{
		ID:           id,
		OwnerID:      ownerID,
		Name:         id,
		AutomationOn: true,
		VoiceID:      "voice-1",
	}
	if err := st.UpsertChannel(context.Background(), channel); err != nil {
		t.Fatalf("store.UpsertChannel: %v", err)
	}
	return channel
}

// NewItem creates a work item for tests.
func NewItem(t testing.TB, st *store.Store, ownerID, channelID, idea string) *store.WorkItem {
	t.Helper()

	item, err := st.NewItem(context.Background(), ownerID, channelID, idea, "")
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	return item
}
