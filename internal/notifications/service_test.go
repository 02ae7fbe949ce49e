package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/notifications"
)

type recorded struct {
	body     string
	title    string
	tags     string
	priority string
}

func newRecordingServer(t *testing.T, got *[]recorded) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*got = append(*got, recorded{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func newNtfyConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return cfg
}

func TestNotifyArchivedSendsAssetURL(t *testing.T) {
	var got []recorded
	server := newRecordingServer(t, &got)
	defer server.Close()

	service := notifications.NewService(newNtfyConfig(server.URL))
	err := service.NotifyArchived(context.Background(), "History Shorts", "https://cdn.example.com/videos/chan/item.mp4")
	if err != nil {
		t.Fatalf("NotifyArchived: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	if got[0].title != "ReelForge - Archived" {
		t.Fatalf("unexpected title %q", got[0].title)
	}
	if !strings.Contains(got[0].body, "History Shorts") {
		t.Fatalf("expected channel name in body, got %q", got[0].body)
	}
	if !strings.Contains(got[0].body, "https://cdn.example.com/videos/chan/item.mp4") {
		t.Fatalf("expected asset URL in body, got %q", got[0].body)
	}
}

func TestNotifyStageFailedSetsHighPriority(t *testing.T) {
	var got []recorded
	server := newRecordingServer(t, &got)
	defer server.Close()

	service := notifications.NewService(newNtfyConfig(server.URL))
	err := service.NotifyStageFailed(context.Background(), "item-1", "failed_video", "insufficient credit")
	if err != nil {
		t.Fatalf("NotifyStageFailed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("expected high priority, got %q", got[0].priority)
	}
	if !strings.Contains(got[0].tags, "error") {
		t.Fatalf("expected error tag, got %q", got[0].tags)
	}
	if !strings.Contains(got[0].body, "insufficient credit") {
		t.Fatalf("expected reason in body, got %q", got[0].body)
	}
}

func TestDisabledCategoriesStaySilent(t *testing.T) {
	var got []recorded
	server := newRecordingServer(t, &got)
	defer server.Close()

	cfg := newNtfyConfig(server.URL)
	cfg.Notifications.Archive = false
	cfg.Notifications.Errors = false
	service := notifications.NewService(cfg)

	if err := service.NotifyArchived(context.Background(), "chan", "url"); err != nil {
		t.Fatalf("NotifyArchived: %v", err)
	}
	if err := service.NotifyStageFailed(context.Background(), "item-1", "failed_voice", "boom"); err != nil {
		t.Fatalf("NotifyStageFailed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no requests, got %d", len(got))
	}
}

func TestNotifyIngestCompletedSkipsZeroAdds(t *testing.T) {
	var got []recorded
	server := newRecordingServer(t, &got)
	defer server.Close()

	service := notifications.NewService(newNtfyConfig(server.URL))
	if err := service.NotifyIngestCompleted(context.Background(), "chan", 0); err != nil {
		t.Fatalf("NotifyIngestCompleted: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no requests for zero adds, got %d", len(got))
	}

	if err := service.NotifyIngestCompleted(context.Background(), "chan", 3); err != nil {
		t.Fatalf("NotifyIngestCompleted: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].body, "3 new ideas") {
		t.Fatalf("expected ingest notification, got %#v", got)
	}
}

func TestUnconfiguredTopicIsNoop(t *testing.T) {
	service := notifications.NewService(config.Default())
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
}

func TestServerErrorSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("topic is reserved"))
	}))
	defer server.Close()

	service := notifications.NewService(newNtfyConfig(server.URL))
	err := service.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "topic is reserved") {
		t.Fatalf("expected error with response body, got %v", err)
	}
}
