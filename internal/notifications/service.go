package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/config"
)

const userAgent = "ReelForge-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyArchived(ctx context.Context, channelName, assetURL string) error
	NotifyStageFailed(ctx context.Context, itemID, stage, reason string) error
	NotifyIngestCompleted(ctx context.Context, channelName string, added int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		archiveEnabled: cfg.Notifications.Archive,
		errorsEnabled:  cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	archiveEnabled bool
	errorsEnabled  bool
}

func (n *ntfyService) NotifyArchived(ctx context.Context, channelName, assetURL string) error {
	if !n.archiveEnabled {
		return nil
	}
	channelName = strings.TrimSpace(channelName)
	message := fmt.Sprintf("Video archived for %s", channelName)
	if assetURL = strings.TrimSpace(assetURL); assetURL != "" {
		message = fmt.Sprintf("%s\n%s", message, assetURL)
	}
	data := payload{
		title:   "ReelForge - Archived",
		message: message,
		tags:    []string{"reelforge", "archive", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, itemID, stage, reason string) error {
	if !n.errorsEnabled {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "ReelForge - Stage Failed",
		message:  fmt.Sprintf("Item %s failed at %s: %s", itemID, stage, reason),
		tags:     []string{"reelforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIngestCompleted(ctx context.Context, channelName string, added int) error {
	if added <= 0 {
		return nil
	}
	data := payload{
		title:   "ReelForge - Ideas Ingested",
		message: fmt.Sprintf("Pulled %d new ideas for %s", added, strings.TrimSpace(channelName)),
		tags:    []string{"reelforge", "ingest", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "ReelForge - Test",
		message:  "Notification system test",
		tags:     []string{"reelforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyArchived(context.Context, string, string) error            { return nil }
func (noopService) NotifyStageFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyIngestCompleted(context.Context, string, int) error        { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
