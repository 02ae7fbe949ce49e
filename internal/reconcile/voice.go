package reconcile

import (
	"context"
	"fmt"

	"reelforge/internal/logging"
	"reelforge/internal/services/speech"
	"reelforge/internal/store"
)

// ReconcileVoice polls every unresolved speech task and moves finished
// items to voice_ready, then sweeps voice_pending items whose task row is
// missing or already resolved. Returns the number of tasks and items
// resolved this sweep.
func (r *Reconciler) ReconcileVoice(ctx context.Context) (int, error) {
	tasks, err := r.store.UnresolvedTasks(ctx, store.TaskVoice)
	if err != nil {
		return 0, fmt.Errorf("list unresolved voice tasks: %w", err)
	}

	resolved := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if r.reconcileVoiceTask(ctx, task) {
			resolved++
		}
	}

	orphans, err := r.reconcileOrphans(ctx, store.StageVoicePending, store.StageVoiceReady, store.StageFailedVoice,
		func(item *store.WorkItem) string { return item.VoiceTaskID },
		func(item *store.WorkItem, task *store.ExternalTask) { item.VoiceAudioURL = task.ArtifactURL })
	if err != nil {
		return resolved, err
	}
	return resolved + orphans, nil
}

func (r *Reconciler) reconcileVoiceTask(ctx context.Context, task *store.ExternalTask) bool {
	if task.ProviderRef == "" {
		// Submission wrote the task but never attached the provider id.
		// Nothing can ever resolve it, so only the timeout applies.
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVoice, "speech job never acquired a provider reference")
			return true
		}
		return false
	}

	result, err := r.speech.Poll(ctx, task.ProviderRef)
	if err != nil {
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVoice,
				fmt.Sprintf("speech job unreachable past deadline: %v", err))
			return true
		}
		r.logger.Warn("speech poll failed",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
		return false
	}

	switch result.Outcome {
	case speech.OutcomeSuccess:
		return r.completeVoiceTask(ctx, task, result.AudioURL)
	case speech.OutcomeError:
		reason := result.Message
		if reason == "" {
			reason = "speech provider reported failure"
		}
		r.failTask(ctx, task, store.StageFailedVoice, reason)
		return true
	default:
		if r.timedOut(task) {
			r.failTask(ctx, task, store.StageFailedVoice, "speech job timed out")
			return true
		}
		return false
	}
}

func (r *Reconciler) completeVoiceTask(ctx context.Context, task *store.ExternalTask, audioURL string) bool {
	if err := r.store.ResolveTaskSuccess(ctx, task.ID, audioURL); err != nil {
		r.logger.Error("resolve voice task",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err))
		return false
	}

	item, err := r.store.GetItem(ctx, task.ItemID)
	if err != nil || item == nil {
		r.logger.Error("load item for voice task",
			logging.String(logging.FieldItemID, task.ItemID),
			logging.Error(err))
		return false
	}
	item.VoiceAudioURL = audioURL
	item.Stage = store.StageVoiceReady
	flipped, err := r.store.UpdateItemIf(ctx, item, store.StageVoicePending)
	if err != nil {
		r.logger.Error("flip item to voice_ready",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return false
	}
	if !flipped {
		// An operator moved the item while the job ran. The artifact is
		// on the task; the item keeps whatever stage it was given.
		r.logger.Warn("item moved during voice reconciliation",
			logging.String(logging.FieldItemID, item.ID))
		return true
	}
	if err := r.store.AppendActivity(ctx, item.ID, "voice", "speech synthesis completed"); err != nil {
		r.logger.Warn("record voice activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	r.logger.Info("voice task resolved",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldItemID, item.ID))
	return true
}
