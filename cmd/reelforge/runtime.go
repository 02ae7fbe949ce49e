package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"reelforge/internal/archive"
	"reelforge/internal/config"
	"reelforge/internal/engine"
	"reelforge/internal/ingest"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/reconcile"
	"reelforge/internal/services/objectstore"
	"reelforge/internal/services/scriptgen"
	"reelforge/internal/services/speech"
	"reelforge/internal/services/videosynth"
	"reelforge/internal/store"
)

// runtime bundles the collaborators a command needs. Commands open it,
// run, and close it; the daemon keeps it open for its lifetime.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	notifier notifications.Service
}

func (c *commandContext) openRuntime(toFile bool) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	var logger *slog.Logger
	if toFile {
		logger, err = logging.NewForFile(cfg.LogLevel, cfg.LogFormat, cfg.Paths.LogDir, "reelforge.log")
	} else {
		logger, err = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	}
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		notifier: notifications.NewService(cfg),
	}, nil
}

func (r *runtime) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func (r *runtime) engine() *engine.Engine {
	return engine.New(
		r.store,
		r.cfg,
		r.logger,
		r.notifier,
		scriptgen.NewChain(r.cfg.ScriptGen),
		speech.NewClient(r.cfg.Speech),
		videosynth.NewClient(r.cfg.VideoSynth),
	)
}

func (r *runtime) reconciler() *reconcile.Reconciler {
	return reconcile.New(
		r.store,
		r.cfg,
		r.logger,
		r.notifier,
		speech.NewClient(r.cfg.Speech),
		videosynth.NewClient(r.cfg.VideoSynth),
	)
}

func (r *runtime) archiver(ctx context.Context) (*archive.Archiver, error) {
	objects, err := objectstore.New(ctx, r.cfg.Storage)
	if err != nil {
		return nil, err
	}
	return archive.New(r.store, r.cfg, r.logger, r.notifier, objects), nil
}

func (r *runtime) ingester() (*ingest.Ingester, error) {
	return ingest.New(r.store, r.cfg, r.logger, r.notifier)
}
