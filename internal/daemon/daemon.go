package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reelforge/internal/archive"
	"reelforge/internal/config"
	"reelforge/internal/engine"
	"reelforge/internal/ingest"
	"reelforge/internal/logging"
	"reelforge/internal/reconcile"
	"reelforge/internal/store"
)

const ingestInterval = time.Hour

// Daemon coordinates the background pipeline loops and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	archiver   *archive.Archiver
	ingester   *ingest.Ingester

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        store.HealthSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. The ingester may
// be nil when ingestion is disabled.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, eng *engine.Engine, rec *reconcile.Reconciler, arch *archive.Archiver, ing *ingest.Ingester) (*Daemon, error) {
	if cfg == nil || st == nil || eng == nil || rec == nil || arch == nil {
		return nil, errors.New("daemon requires config, store, engine, reconciler, and archiver")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "reelforged.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:      st,
		engine:     eng,
		reconciler: rec,
		archiver:   arch,
		ingester:   ing,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the pipeline loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)

	d.startLoop(runCtx, "advance", d.advanceInterval(), func(loopCtx context.Context) error {
		return d.engine.AdvanceAll(loopCtx)
	})
	d.startLoop(runCtx, "reconcile", d.pollInterval(), func(loopCtx context.Context) error {
		return d.reconciler.ReconcileAll(loopCtx)
	})
	d.startLoop(runCtx, "archive", d.archiveInterval(), func(loopCtx context.Context) error {
		_, err := d.archiver.Run(loopCtx)
		return err
	})
	if d.ingester != nil && d.cfg.Ingest.Enabled {
		d.startLoop(runCtx, "ingest", ingestInterval, func(loopCtx context.Context) error {
			_, err := d.ingester.Run(loopCtx)
			return err
		})
	}

	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop terminates the loops and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime information for the status command.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue health: %w", err)
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        health,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

// startLoop runs fn immediately, then on every tick until the context
// ends. Loop errors are logged and never stop the loop.
func (d *Daemon) startLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logger := d.logger.With(logging.String("loop", name))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("loop pass failed", logging.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *Daemon) advanceInterval() time.Duration {
	return secondsOrDefault(d.cfg.Pipeline.AdvanceIntervalSeconds, 30*time.Second)
}

func (d *Daemon) pollInterval() time.Duration {
	return secondsOrDefault(d.cfg.Pipeline.PollIntervalSeconds, 10*time.Second)
}

func (d *Daemon) archiveInterval() time.Duration {
	return secondsOrDefault(d.cfg.Pipeline.ArchiveIntervalSeconds, time.Minute)
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
