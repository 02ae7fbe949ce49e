package reconcile

import (
	"context"
	"fmt"

	"reelforge/internal/logging"
	"reelforge/internal/store"
)

// reconcileOrphans sweeps items parked at a pending stage that the task
// sweeps can no longer reach: a crash between the stage claim and the task
// insert leaves an item with no task row, and a crash between resolving the
// task and flipping the item leaves a resolved task under a still-pending
// item. The first class fails after the pending timeout; the second is
// replayed immediately from the task's recorded outcome. `apply` copies
// task artifacts onto the item before a successful flip.
func (r *Reconciler) reconcileOrphans(ctx context.Context, pending, ready, failed store.Stage, taskIDOf func(*store.WorkItem) string, apply func(*store.WorkItem, *store.ExternalTask)) (int, error) {
	items, err := r.store.List(ctx, pending)
	if err != nil {
		return 0, fmt.Errorf("list %s items: %w", pending, err)
	}

	resolved := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		var task *store.ExternalTask
		if taskID := taskIDOf(item); taskID != "" {
			task, err = r.store.GetTask(ctx, taskID)
			if err != nil {
				r.logger.Error("load task for pending item",
					logging.String(logging.FieldItemID, item.ID),
					logging.Error(err))
				continue
			}
		}

		if task == nil {
			if r.now().Sub(item.UpdatedAt) > r.pendingTimeout() {
				r.failOrphan(ctx, item, failed, "stage claimed but no provider task was submitted")
				resolved++
			}
			continue
		}

		switch task.ProviderStatus {
		case store.TaskStatusSuccess:
			apply(item, task)
			item.Stage = ready
			flipped, err := r.store.UpdateItemIf(ctx, item, pending)
			if err != nil {
				r.logger.Error("replay item flip",
					logging.String(logging.FieldItemID, item.ID),
					logging.Error(err))
				continue
			}
			if flipped {
				r.logger.Info("replayed lost stage flip",
					logging.String(logging.FieldItemID, item.ID),
					logging.String(logging.FieldStage, string(ready)))
			}
			resolved++
		case store.TaskStatusFailed:
			reason := task.ErrorMessage
			if reason == "" {
				reason = "provider task failed"
			}
			r.failOrphan(ctx, item, failed, reason)
			resolved++
		default:
			// Task is still unresolved; the task sweep owns it.
		}
	}
	return resolved, nil
}

func (r *Reconciler) failOrphan(ctx context.Context, item *store.WorkItem, failedStage store.Stage, reason string) {
	if err := r.store.MarkFailed(ctx, item.ID, failedStage, reason); err != nil {
		r.logger.Error("mark orphaned item failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}
	if err := r.store.AppendActivity(ctx, item.ID, "failure", reason); err != nil {
		r.logger.Warn("record failure activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	r.logger.Error("orphaned item failed",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStage, string(failedStage)),
		logging.String("reason", reason))
	if err := r.notifier.NotifyStageFailed(ctx, item.ID, string(failedStage), reason); err != nil {
		r.logger.Warn("failure notification errored", logging.Error(err))
	}
}
