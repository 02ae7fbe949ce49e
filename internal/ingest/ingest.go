// Package ingest pulls new video ideas into the pipeline from Reddit.
// Channels opt in by naming a subreddit; top posts become new work items,
// deduplicated by a per-post fingerprint so repeated sweeps never create
// duplicates.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/notifications"
	"reelforge/internal/store"
)

const defaultPostLimit = 10

// PostSource lists top posts for a subreddit. Satisfied by the go-reddit
// subreddit service; tests substitute a fake.
type PostSource interface {
	TopPosts(ctx context.Context, subreddit string, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error)
}

// Ingester sweeps subreddits configured on active channels.
type Ingester struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	source   PostSource
}

// Option customizes an Ingester.
type Option func(*Ingester)

// WithPostSource overrides the Reddit post source (used in tests).
func WithPostSource(source PostSource) Option {
	return func(i *Ingester) {
		if source != nil {
			i.source = source
		}
	}
}

// New assembles an ingester. Reddit access is read-only and anonymous.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger, notifier notifications.Service, opts ...Option) (*Ingester, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	ing := &Ingester{
		store:    st,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "ingest")),
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(ing)
	}
	if ing.source == nil {
		userAgent := strings.TrimSpace(cfg.Ingest.UserAgent)
		if userAgent == "" {
			userAgent = "reelforge-ingest/0.1"
		}
		client, err := reddit.NewReadonlyClient(reddit.WithUserAgent(userAgent))
		if err != nil {
			return nil, fmt.Errorf("build reddit client: %w", err)
		}
		ing.source = client.Subreddit
	}
	return ing, nil
}

func (i *Ingester) postLimit() int {
	if i.cfg != nil && i.cfg.Ingest.PostLimit > 0 {
		return i.cfg.Ingest.PostLimit
	}
	return defaultPostLimit
}

// Fingerprint returns the dedupe key for a Reddit post.
func Fingerprint(postID string) string {
	return "reddit:" + postID
}

// Run sweeps every active channel with a subreddit configured and returns
// the total number of items created.
func (i *Ingester) Run(ctx context.Context) (int, error) {
	channels, err := i.store.ActiveChannels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active channels: %w", err)
	}

	total := 0
	for _, channel := range channels {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if strings.TrimSpace(channel.Subreddit) == "" {
			continue
		}
		added, err := i.sweepChannel(ctx, channel)
		if err != nil {
			i.logger.Error("channel sweep failed",
				logging.String("channel", channel.ID),
				logging.String("subreddit", channel.Subreddit),
				logging.Error(err))
			continue
		}
		total += added
		if added > 0 {
			if err := i.notifier.NotifyIngestCompleted(ctx, channel.Name, added); err != nil {
				i.logger.Warn("ingest notification errored", logging.Error(err))
			}
		}
	}
	return total, nil
}

func (i *Ingester) sweepChannel(ctx context.Context, channel *store.Channel) (int, error) {
	posts, _, err := i.source.TopPosts(ctx, channel.Subreddit, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: i.postLimit()},
		Time:        "day",
	})
	if err != nil {
		return 0, fmt.Errorf("fetch top posts for r/%s: %w", channel.Subreddit, err)
	}

	added := 0
	for _, post := range posts {
		title := strings.TrimSpace(post.Title)
		if title == "" {
			continue
		}
		fingerprint := Fingerprint(post.ID)
		existing, err := i.store.FindByFingerprint(ctx, fingerprint)
		if err != nil {
			return added, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			continue
		}
		item, err := i.store.NewItem(ctx, channel.OwnerID, channel.ID, title, fingerprint)
		if err != nil {
			return added, fmt.Errorf("create item: %w", err)
		}
		added++
		i.logger.Info("idea ingested",
			logging.String(logging.FieldItemID, item.ID),
			logging.String("channel", channel.ID),
			logging.String("post", post.ID))
	}
	return added, nil
}
