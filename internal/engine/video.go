package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reelforge/internal/logging"
	"reelforge/internal/services"
	"reelforge/internal/store"
)

// AdvanceVideo starts video synthesis for items with finished audio. The
// credit debit and the task record are written in one transaction before
// anything is uploaded, so a crash mid-submit can never double-charge. The
// item stays at video_pending until the reconciler observes the provider
// outcome.
func (e *Engine) AdvanceVideo(ctx context.Context) (int, error) {
	return e.advance(ctx, store.StageVoiceReady, store.StageVideoPending, store.StageFailedVideo, e.submitVideo)
}

func (e *Engine) submitVideo(ctx context.Context, item *store.WorkItem) error {
	if strings.TrimSpace(item.VoiceAudioURL) == "" {
		return fmt.Errorf("item has no synthesized audio")
	}
	if !e.video.Configured() {
		return services.Wrap(services.ErrConfiguration, "video", "submit", "video service credentials not configured", nil)
	}
	channel, err := e.activeChannel(ctx, item)
	if err != nil {
		return err
	}

	// An empty pool is a channel misconfiguration, not a transient
	// condition: the item fails now and an operator retries after adding
	// assets. The allocation happens before the credit gate so a
	// misconfigured channel never costs anything.
	source, err := e.store.AllocateNext(ctx, channel.ID)
	if err != nil {
		return fmt.Errorf("allocate source asset: %w", err)
	}

	cost := int64(e.cfg.Pipeline.VideoCreditCost)
	task := &store.ExternalTask{
		ID:             uuid.NewString(),
		Kind:           store.TaskVideo,
		ItemID:         item.ID,
		OwnerID:        item.OwnerID,
		ProviderStatus: store.TaskStatusQueued,
	}
	ok, balance, err := e.store.CheckAndDeduct(ctx, item.OwnerID, cost, task)
	if err != nil {
		return fmt.Errorf("credit gate: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrInsufficientCredit, "video", "submit",
			fmt.Sprintf("balance below cost %d", cost), nil)
	}
	e.logger.Info("credits deducted",
		logging.String(logging.FieldItemID, item.ID),
		logging.Int64("cost", cost),
		logging.Int64("balance", balance))

	sourceBytes, _, err := services.Download(ctx, e.download, "video", source.URL)
	if err != nil {
		return fmt.Errorf("fetch source asset %q: %w", source.Name, err)
	}
	audioBytes, _, err := services.Download(ctx, e.download, "video", item.VoiceAudioURL)
	if err != nil {
		return fmt.Errorf("fetch synthesized audio: %w", err)
	}

	videoRef, err := e.video.UploadVideo(ctx, bytes.NewReader(sourceBytes))
	if err != nil {
		return fmt.Errorf("upload source video: %w", err)
	}
	animateID, err := e.video.UploadAudio(ctx, videoRef, bytes.NewReader(audioBytes))
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}

	if err := e.store.AttachProviderRef(ctx, task.ID, animateID); err != nil {
		return fmt.Errorf("attach provider ref: %w", err)
	}
	item.VideoTaskID = task.ID
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("attach video task: %w", err)
	}
	if err := e.store.AppendActivity(ctx, item.ID, "video", fmt.Sprintf("synthesis job %s submitted with source %q", animateID, source.Name)); err != nil {
		e.logger.Warn("record video activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	e.logger.Info("video job submitted",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("provider_ref", animateID),
		logging.String("source_asset", source.Name))
	return nil
}
