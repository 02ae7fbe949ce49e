// Package archive relocates finished videos from provider-hosted URLs to
// durable object storage. Storage keys are deterministic per item, and the
// archived-asset record is keyed by task, so re-running an interrupted
// archival converges on the same object and row.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/services"
	"reelforge/internal/store"
)

// ObjectPutter writes artifacts to the durable store.
type ObjectPutter interface {
	Put(ctx context.Context, key, contentType string, payload []byte) (string, error)
	URL(key string) string
}

// Archiver moves video_ready items to archived.
type Archiver struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	objects  ObjectPutter
	download *http.Client
	titler   cases.Caser
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithDownloadClient overrides the HTTP client used to fetch result videos.
func WithDownloadClient(client *http.Client) Option {
	return func(a *Archiver) {
		if client != nil {
			a.download = client
		}
	}
}

// New assembles an archiver over its collaborators.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger, notifier notifications.Service, objects ObjectPutter, opts ...Option) *Archiver {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	arch := &Archiver{
		store:    st,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "archive")),
		notifier: notifier,
		objects:  objects,
		download: &http.Client{},
		titler:   cases.Title(language.AmericanEnglish),
	}
	for _, opt := range opts {
		opt(arch)
	}
	return arch
}

func (a *Archiver) batchSize() int {
	if a.cfg != nil && a.cfg.Pipeline.BatchSize > 0 {
		return a.cfg.Pipeline.BatchSize
	}
	return 5
}

// Run archives one batch of video_ready items. Transient failures leave
// the item at video_ready with the error recorded, so the next sweep
// retries; items with unusable state move to failed_archive.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	items, err := a.store.ItemsByStage(ctx, store.StageVideoReady, a.batchSize())
	if err != nil {
		return 0, fmt.Errorf("list video_ready items: %w", err)
	}

	archived := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return archived, ctx.Err()
		}
		if err := a.archiveItem(ctx, item); err != nil {
			if ctx.Err() != nil {
				return archived, ctx.Err()
			}
			a.recordFailure(ctx, item, err)
			continue
		}
		archived++
	}
	return archived, nil
}

// StorageKey returns the deterministic object key for an item's final
// video.
func StorageKey(channelID, itemID string) string {
	return fmt.Sprintf("videos/%s/%s.mp4", channelID, itemID)
}

func (a *Archiver) archiveItem(ctx context.Context, item *store.WorkItem) error {
	if strings.TrimSpace(item.VideoTaskID) == "" {
		return services.Wrap(services.ErrValidation, "archive", "archive", "item has no video task", nil)
	}
	task, err := a.store.GetTask(ctx, item.VideoTaskID)
	if err != nil {
		return fmt.Errorf("load video task: %w", err)
	}
	if task == nil {
		return services.Wrap(services.ErrValidation, "archive", "archive", fmt.Sprintf("video task %s missing", item.VideoTaskID), nil)
	}
	if strings.TrimSpace(task.ArtifactURL) == "" {
		return services.Wrap(services.ErrValidation, "archive", "archive", "video task has no artifact url", nil)
	}

	payload, contentType, err := services.Download(ctx, a.download, "archive", task.ArtifactURL)
	if err != nil {
		return fmt.Errorf("download result video: %w", err)
	}
	if !strings.HasPrefix(contentType, "video/") {
		contentType = "video/mp4"
	}

	key := StorageKey(item.ChannelID, item.ID)
	assetURL, err := a.objects.Put(ctx, key, contentType, payload)
	if err != nil {
		return fmt.Errorf("upload to object store: %w", err)
	}

	asset, err := a.store.InsertArchivedAsset(ctx, &store.ArchivedAsset{
		ChannelID:   item.ChannelID,
		TaskID:      task.ID,
		StorageKey:  key,
		DisplayName: a.displayName(ctx, item),
	})
	if err != nil {
		return fmt.Errorf("record archived asset: %w", err)
	}

	item.ArchivedAssetID = asset.ID
	item.Stage = store.StageArchived
	item.ErrorMessage = ""
	if err := a.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("flip item to archived: %w", err)
	}
	if err := a.store.AppendActivity(ctx, item.ID, "archive", fmt.Sprintf("archived to %s", key)); err != nil {
		a.logger.Warn("record archive activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	a.logger.Info("item archived",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("storage_key", key),
		logging.Int("bytes", len(payload)))

	channelName := item.ChannelID
	if channel, chanErr := a.store.GetChannel(ctx, item.ChannelID); chanErr == nil && channel != nil {
		channelName = channel.Name
	}
	if err := a.notifier.NotifyArchived(ctx, channelName, assetURL); err != nil {
		a.logger.Warn("archive notification errored", logging.Error(err))
	}
	return nil
}

func (a *Archiver) displayName(ctx context.Context, item *store.WorkItem) string {
	name := item.ChannelID
	if channel, err := a.store.GetChannel(ctx, item.ChannelID); err == nil && channel != nil && channel.Name != "" {
		name = channel.Name
	}
	return fmt.Sprintf("%s %s", a.titler.String(name), item.CreatedAt.Format("2006-01-02"))
}

func (a *Archiver) recordFailure(ctx context.Context, item *store.WorkItem, cause error) {
	message := cause.Error()
	if errors.Is(cause, services.ErrValidation) {
		if err := a.store.MarkFailed(ctx, item.ID, store.StageFailedArchive, message); err != nil {
			a.logger.Error("mark item failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
		if err := a.notifier.NotifyStageFailed(ctx, item.ID, string(store.StageFailedArchive), message); err != nil {
			a.logger.Warn("failure notification errored", logging.Error(err))
		}
	} else {
		// Transient: stay at video_ready so the next sweep retries.
		item.ErrorMessage = message
		if err := a.store.UpdateItem(ctx, item); err != nil {
			a.logger.Error("record archive error",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
	}
	a.logger.Error("archive failed",
		logging.String(logging.FieldItemID, item.ID),
		logging.Error(cause))
}
