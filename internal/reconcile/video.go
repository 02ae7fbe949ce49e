package reconcile

import (
	"context"
	"fmt"

	"reelforge/internal/logging"
	"reelforge/internal/services/videosynth"
	"reelforge/internal/store"
)

// ReconcileVideo matches every unresolved video task against the
// provider's recent-work list. The list is the only status surface the
// provider exposes, so one list call serves the whole sweep. Tasks absent
// from the list past the pending timeout are treated as vanished and
// failed. A second sweep covers video_pending items whose task row is
// missing or already resolved. Returns the number of tasks and items
// resolved this sweep.
func (r *Reconciler) ReconcileVideo(ctx context.Context) (int, error) {
	tasks, err := r.store.UnresolvedTasks(ctx, store.TaskVideo)
	if err != nil {
		return 0, fmt.Errorf("list unresolved video tasks: %w", err)
	}

	resolved := 0
	if len(tasks) > 0 {
		if !r.video.Configured() {
			r.logger.Warn("video tasks pending but video service not configured",
				logging.Int("tasks", len(tasks)))
		} else {
			recent, err := r.video.ListRecent(ctx)
			if err != nil {
				return 0, fmt.Errorf("list recent video jobs: %w", err)
			}
			byRef := make(map[string]videosynth.RecentTask, len(recent))
			for _, entry := range recent {
				if entry.AnimateID != "" {
					byRef[entry.AnimateID] = entry
				}
			}
			for _, task := range tasks {
				if ctx.Err() != nil {
					return resolved, ctx.Err()
				}
				if r.reconcileVideoTask(ctx, task, byRef) {
					resolved++
				}
			}
		}
	}

	orphans, err := r.reconcileOrphans(ctx, store.StageVideoPending, store.StageVideoReady, store.StageFailedVideo,
		func(item *store.WorkItem) string { return item.VideoTaskID },
		func(item *store.WorkItem, task *store.ExternalTask) {})
	if err != nil {
		return resolved, err
	}
	return resolved + orphans, nil
}

func (r *Reconciler) reconcileVideoTask(ctx context.Context, task *store.ExternalTask, byRef map[string]videosynth.RecentTask) bool {
	if task.ProviderRef == "" {
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVideo, "video job never acquired a provider reference")
			return true
		}
		return false
	}

	entry, found := byRef[task.ProviderRef]
	if !found {
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVideo, "video job vanished from provider")
			return true
		}
		return false
	}

	switch {
	case entry.Succeeded():
		return r.completeVideoTask(ctx, task, entry)
	case entry.Failed():
		r.failTask(ctx, task, store.StageFailedVideo,
			fmt.Sprintf("video provider reported status %d", entry.WorkStatus))
		return true
	default:
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVideo, "video job timed out")
			return true
		}
		return false
	}
}

func (r *Reconciler) completeVideoTask(ctx context.Context, task *store.ExternalTask, entry videosynth.RecentTask) bool {
	resultURL, err := r.video.DownloadURL(ctx, entry.PostID)
	if err != nil {
		r.logger.Warn("resolve video download url",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
		return false
	}
	if err := r.store.ResolveTaskSuccess(ctx, task.ID, resultURL); err != nil {
		r.logger.Error("resolve video task",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
		return false
	}

	item, err := r.store.GetItem(ctx, task.ItemID)
	if err != nil || item == nil {
		r.logger.Error("load item for video task",
			logging.String(logging.FieldItemID, task.ItemID),
			logging.Error(err))
		return false
	}
	item.Stage = store.StageVideoReady
	flipped, err := r.store.UpdateItemIf(ctx, item, store.StageVideoPending)
	if err != nil {
		r.logger.Error("flip item to video_ready",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return false
	}
	if !flipped {
		r.logger.Warn("item moved during video reconciliation",
			logging.String(logging.FieldItemID, item.ID))
		return true
	}
	if err := r.store.AppendActivity(ctx, item.ID, "video", "video synthesis completed"); err != nil {
		r.logger.Warn("record video activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	r.logger.Info("video task resolved",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldItemID, item.ID))
	return true
}
