package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/services"
	"reelforge/internal/services/scriptgen"
	"reelforge/internal/store"
)

// ScriptGenerator produces a narration script from a prompt.
type ScriptGenerator interface {
	Generate(ctx context.Context, prompt string) (scriptgen.Result, error)
}

// SpeechSubmitter starts an asynchronous text-to-speech job.
type SpeechSubmitter interface {
	Submit(ctx context.Context, text, voiceID string) (string, error)
}

// VideoSubmitter uploads source material to the video synthesis provider
// and starts a synthesis job.
type VideoSubmitter interface {
	Configured() bool
	UploadVideo(ctx context.Context, video io.Reader) (string, error)
	UploadAudio(ctx context.Context, videoRef string, audio io.Reader) (string, error)
}

// Engine drives stage transitions over the shared store.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	scripts  ScriptGenerator
	speech   SpeechSubmitter
	video    VideoSubmitter
	download *http.Client
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDownloadClient overrides the HTTP client used to fetch source and
// audio artifacts before upload.
func WithDownloadClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.download = client
		}
	}
}

// New assembles an engine over its collaborators.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger, notifier notifications.Service, scripts ScriptGenerator, speechClient SpeechSubmitter, videoClient VideoSubmitter, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	eng := &Engine{
		store:    st,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "engine")),
		notifier: notifier,
		scripts:  scripts,
		speech:   speechClient,
		video:    videoClient,
		download: &http.Client{},
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// AdvanceAll runs one content, voice, and video pass in pipeline order.
func (e *Engine) AdvanceAll(ctx context.Context) error {
	passes := []func(context.Context) (int, error){
		e.AdvanceContent,
		e.AdvanceVoice,
		e.AdvanceVideo,
	}
	for _, pass := range passes {
		if _, err := pass(ctx); err != nil {
			return err
		}
	}
	return nil
}

// skipError releases a claimed item back to its previous stage. Used when a
// precondition is not satisfied yet: the item is neither advanced nor
// failed, and a later pass picks it up again.
type skipError struct {
	reason string
}

func (s *skipError) Error() string { return s.reason }

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

func (e *Engine) batchSize() int {
	if e.cfg != nil && e.cfg.Pipeline.BatchSize > 0 {
		return e.cfg.Pipeline.BatchSize
	}
	return 5
}

// advance claims up to one batch of items sitting at `from`, moves each to
// `to`, and runs the handler. Handler errors route the item to `failed`;
// skip errors release the claim. Items are processed oldest first so a
// poisoned item cannot starve the rest of the batch.
func (e *Engine) advance(ctx context.Context, from, to, failed store.Stage, fn func(context.Context, *store.WorkItem) error) (int, error) {
	items, err := e.store.ItemsByStage(ctx, from, e.batchSize())
	if err != nil {
		return 0, fmt.Errorf("list %s items: %w", from, err)
	}

	processed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		claimed, err := e.store.ClaimStage(ctx, item.ID, from, to)
		if err != nil {
			e.logger.Error("claim failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		item.Stage = to
		item.ErrorMessage = ""

		itemCtx := services.WithStage(services.WithItemID(ctx, item.ID), string(to))
		if err := fn(itemCtx, item); err != nil {
			var skipped *skipError
			if errors.As(err, &skipped) {
				if _, releaseErr := e.store.ClaimStage(ctx, item.ID, to, from); releaseErr != nil {
					e.logger.Error("release claim failed",
						logging.String(logging.FieldItemID, item.ID),
						logging.Error(releaseErr))
				}
				e.logger.Debug("item skipped",
					logging.String(logging.FieldItemID, item.ID),
					logging.String(logging.FieldStage, string(from)),
					logging.String("reason", skipped.reason))
				continue
			}
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			e.fail(ctx, item, failed, err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (e *Engine) fail(ctx context.Context, item *store.WorkItem, failed store.Stage, cause error) {
	message := cause.Error()
	if err := e.store.MarkFailed(ctx, item.ID, failed, message); err != nil {
		e.logger.Error("mark failed errored",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}
	if err := e.store.AppendActivity(ctx, item.ID, "failure", message); err != nil {
		e.logger.Warn("record failure activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	e.logger.Error("stage failed",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStage, string(failed)),
		logging.Error(cause))
	if err := e.notifier.NotifyStageFailed(ctx, item.ID, string(failed), message); err != nil {
		e.logger.Warn("failure notification errored", logging.Error(err))
	}
}

// activeChannel resolves an item's channel and reports whether automated
// progression is currently enabled for it.
func (e *Engine) activeChannel(ctx context.Context, item *store.WorkItem) (*store.Channel, error) {
	channel, err := e.store.GetChannel(ctx, item.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", item.ChannelID, err)
	}
	if channel == nil {
		return nil, skip("channel %s not found", item.ChannelID)
	}
	if !channel.AutomationOn {
		return nil, skip("automation disabled for channel %s", channel.ID)
	}
	return channel, nil
}
