package videosynth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/services"
	"reelforge/internal/services/videosynth"
)

func newTestClient(baseURL string) *videosynth.Client {
	return videosynth.NewClient(config.VideoSynth{
		BaseURL:        baseURL,
		AccountID:      "acct-1",
		UserID:         "user-1",
		TokenID:        "token-1",
		ClientID:       "client-1",
		TimeoutSeconds: 5,
	})
}

func TestUploadVideoReturnsFileURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload-video" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("accountId"); got != "acct-1" {
			t.Errorf("expected account credential, got %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected file part: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"file_url": "https://files.example.com/v/123.mp4"})
	}))
	defer server.Close()

	fileURL, err := newTestClient(server.URL).UploadVideo(context.Background(), strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("UploadVideo: %v", err)
	}
	if fileURL != "https://files.example.com/v/123.mp4" {
		t.Fatalf("unexpected file url %q", fileURL)
	}
}

func TestUploadAudioResolvesAvatarFromList(t *testing.T) {
	const videoRef = "https://files.example.com/v/123.mp4"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/avatar-list":
			_, _ = w.Write([]byte(`{"success":true,"data":{"avatars":[
				{"id":"av-old","path":"https://files.example.com/v/999.mp4"},
				{"id":"av-1","path":"` + videoRef + `"}]}}`))
		case "/upload-voice":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if got := r.FormValue("avatarId"); got != "av-1" {
				t.Errorf("expected matched avatar id, got %q", got)
			}
			_, _ = w.Write([]byte(`{"animate_id":"anim-7"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	animateID, err := newTestClient(server.URL).UploadAudio(context.Background(), videoRef, strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	if animateID != "anim-7" {
		t.Fatalf("unexpected animate id %q", animateID)
	}
}

func TestUploadAudioUnlistedVideoIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/avatar-list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"avatars":[]}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).UploadAudio(context.Background(), "https://files.example.com/v/123.mp4", strings.NewReader("audio"))
	if err == nil || !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for unlisted video, got %v", err)
	}
}

func TestListRecentMapsWorkStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video-list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("tokenId"); got != "token-1" {
			t.Errorf("expected token credential, got %q", got)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":"post-1","animate_id":"anim-1","web_work_status":200},
			{"id":"post-2","animate_id":"anim-2","web_work_status":30},
			{"id":"post-3","animate_id":"anim-3","web_work_status":-1}]}`))
	}))
	defer server.Close()

	tasks, err := newTestClient(server.URL).ListRecent(context.Background())
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if !tasks[0].Succeeded() || tasks[0].Failed() {
		t.Fatalf("expected task 0 succeeded, got %+v", tasks[0])
	}
	if tasks[1].Succeeded() || tasks[1].Failed() {
		t.Fatalf("expected task 1 in progress, got %+v", tasks[1])
	}
	if !tasks[2].Failed() {
		t.Fatalf("expected task 2 failed, got %+v", tasks[2])
	}
}

func TestClientErrorsClassifyByStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListRecent(context.Background())
	if err == nil || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for 401, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad token") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	client := videosynth.NewClient(config.VideoSynth{BaseURL: "https://example.com"})
	if client.Configured() {
		t.Fatal("expected unconfigured client")
	}
	_, err := client.UploadVideo(context.Background(), strings.NewReader("x"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
