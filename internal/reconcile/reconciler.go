package reconcile

import (
	"context"
	"log/slog"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/services/speech"
	"reelforge/internal/services/videosynth"
	"reelforge/internal/store"
)

const defaultPendingTimeout = 15 * time.Minute

// SpeechPoller reports the state of one speech synthesis job.
type SpeechPoller interface {
	Poll(ctx context.Context, taskID string) (speech.PollResult, error)
}

// VideoLister exposes the provider's recent-work list and result URLs.
type VideoLister interface {
	Configured() bool
	ListRecent(ctx context.Context) ([]videosynth.RecentTask, error)
	DownloadURL(ctx context.Context, postID string) (string, error)
}

// Reconciler drives pending items to a terminal outcome for their current
// stage.
type Reconciler struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	speech   SpeechPoller
	video    VideoLister
	now      func() time.Time
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source (used in timeout tests).
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New assembles a reconciler over its collaborators.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger, notifier notifications.Service, speechClient SpeechPoller, videoClient VideoLister, opts ...Option) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	rec := &Reconciler{
		store:    st,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "reconcile")),
		notifier: notifier,
		speech:   speechClient,
		video:    videoClient,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// ReconcileAll runs one voice sweep followed by one video sweep.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	if _, err := r.ReconcileVoice(ctx); err != nil {
		return err
	}
	_, err := r.ReconcileVideo(ctx)
	return err
}

func (r *Reconciler) pendingTimeout() time.Duration {
	if r.cfg != nil && r.cfg.Pipeline.PendingTimeoutMinutes > 0 {
		return time.Duration(r.cfg.Pipeline.PendingTimeoutMinutes) * time.Minute
	}
	return defaultPendingTimeout
}

func (r *Reconciler) timedOut(task *store.ExternalTask) bool {
	return r.now().Sub(task.SubmittedAt) > r.pendingTimeout()
}

// failTask records the failure on the task first, then moves the item to
// the failed stage. Resolving the task removes it from future sweeps, so
// each failure is reported exactly once.
func (r *Reconciler) failTask(ctx context.Context, task *store.ExternalTask, failedStage store.Stage, reason string) {
	if err := r.store.ResolveTaskFailure(ctx, task.ID, reason); err != nil {
		r.logger.Error("resolve task failure",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
		return
	}
	if err := r.store.MarkFailed(ctx, task.ItemID, failedStage, reason); err != nil {
		r.logger.Error("mark item failed",
			logging.String(logging.FieldItemID, task.ItemID),
			logging.Error(err))
		return
	}
	if err := r.store.AppendActivity(ctx, task.ItemID, "failure", reason); err != nil {
		r.logger.Warn("record failure activity",
			logging.String(logging.FieldItemID, task.ItemID),
			logging.Error(err))
	}
	r.logger.Error("task failed",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldItemID, task.ItemID),
		logging.String(logging.FieldStage, string(failedStage)),
		logging.String("reason", reason))
	if err := r.notifier.NotifyStageFailed(ctx, task.ItemID, string(failedStage), reason); err != nil {
		r.logger.Warn("failure notification errored", logging.Error(err))
	}
}
