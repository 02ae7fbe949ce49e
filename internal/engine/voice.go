package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reelforge/internal/logging"
	"reelforge/internal/store"
)

// AdvanceVoice submits speech synthesis jobs for items with finished
// scripts. The item stays at voice_pending until the reconciler observes
// the provider outcome.
func (e *Engine) AdvanceVoice(ctx context.Context) (int, error) {
	return e.advance(ctx, store.StageContentReady, store.StageVoicePending, store.StageFailedVoice, e.submitVoice)
}

func (e *Engine) submitVoice(ctx context.Context, item *store.WorkItem) error {
	if strings.TrimSpace(item.Script) == "" {
		return skip("script not written yet")
	}
	channel, err := e.activeChannel(ctx, item)
	if err != nil {
		return err
	}
	if strings.TrimSpace(channel.VoiceID) == "" {
		return skip("channel %s has no voice configured", channel.ID)
	}

	providerRef, err := e.speech.Submit(ctx, item.Script, channel.VoiceID)
	if err != nil {
		return fmt.Errorf("submit speech job: %w", err)
	}

	task := &store.ExternalTask{
		ID:          uuid.NewString(),
		ProviderRef: providerRef,
		Kind:        store.TaskVoice,
		ItemID:      item.ID,
		OwnerID:     item.OwnerID,
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		return fmt.Errorf("record speech task: %w", err)
	}

	item.VoiceTaskID = task.ID
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("attach voice task: %w", err)
	}
	if err := e.store.AppendActivity(ctx, item.ID, "voice", fmt.Sprintf("speech job %s submitted", providerRef)); err != nil {
		e.logger.Warn("record voice activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	e.logger.Info("speech job submitted",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("provider_ref", providerRef))
	return nil
}
