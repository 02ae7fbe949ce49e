// Package videosynth wraps the talking-head video synthesis API. Source
// video and audio are uploaded through credentialed multipart calls; job
// progress is only observable through the provider's recent-work list.
package videosynth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// RecentTask is one entry from the provider's recent-work list.
type RecentTask struct {
	AnimateID    string
	PostID       string
	ThumbnailURL string
	WorkStatus   int
}

// Succeeded reports whether the provider marked the job complete.
func (t RecentTask) Succeeded() bool { return t.WorkStatus == 200 }

// Failed reports whether the provider signalled an explicit error.
func (t RecentTask) Failed() bool { return t.WorkStatus < 0 }

// Client calls the video synthesis service.
type Client struct {
	cfg        config.VideoSynth
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a video synthesis client.
func NewClient(cfg config.VideoSynth, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether provider credentials are present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.AccountID) != "" && strings.TrimSpace(c.cfg.TokenID) != ""
}

// UploadVideo uploads source video bytes and returns the provider-side file
// reference the audio upload must target.
func (c *Client) UploadVideo(ctx context.Context, video io.Reader) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "video", "upload-video", "video service credentials not configured", nil)
	}

	payload, err := c.postMultipart(ctx, "/upload-video", video, "video.mp4", nil)
	if err != nil {
		return "", err
	}
	var parsed uploadVideoResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("videosynth: decode upload response: %w", err)
	}
	if strings.TrimSpace(parsed.FileURL) == "" {
		return "", services.Wrap(services.ErrTransient, "video", "upload-video", "provider returned no file_url", nil)
	}
	return parsed.FileURL, nil
}

// UploadAudio attaches synthesized audio to an uploaded source video and
// returns the animate id that identifies the synthesis job. The provider
// exposes uploaded videos as avatars, so the reference is resolved through
// the avatar list first.
func (c *Client) UploadAudio(ctx context.Context, videoRef string, audio io.Reader) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "video", "upload-audio", "video service credentials not configured", nil)
	}

	avatarID, avatarPath, err := c.matchAvatar(ctx, videoRef)
	if err != nil {
		return "", err
	}

	extra := map[string]string{"avatarId": avatarID, "avatarPath": avatarPath}
	payload, err := c.postMultipart(ctx, "/upload-voice", audio, "audio.mp3", extra)
	if err != nil {
		return "", err
	}
	var parsed uploadAudioResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("videosynth: decode upload response: %w", err)
	}
	animateID := strings.TrimSpace(parsed.AnimateID)
	if animateID == "" && parsed.Data != nil {
		animateID = strings.TrimSpace(parsed.Data.AnimateID)
	}
	if animateID == "" {
		return "", services.Wrap(services.ErrTransient, "video", "upload-audio", "provider returned no animate_id", nil)
	}
	return animateID, nil
}

// ListRecent returns the provider's recent-work list for the configured
// credential. This is the only status surface the provider exposes; the
// reconciler matches animate ids against it.
func (c *Client) ListRecent(ctx context.Context) ([]RecentTask, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "video", "video-list", "video service credentials not configured", nil)
	}

	endpoint := c.cfg.BaseURL + "/video-list?" + c.credentials().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("videosynth: build request: %w", err)
	}
	payload, err := c.do(req, "video-list")
	if err != nil {
		return nil, err
	}

	var parsed videoListResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("videosynth: decode video list: %w", err)
	}
	if !parsed.Success {
		return nil, services.Wrap(services.ErrTransient, "video", "video-list", "provider reported failure", nil)
	}

	tasks := make([]RecentTask, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		tasks = append(tasks, RecentTask{
			AnimateID:    entry.AnimateID,
			PostID:       entry.ID,
			ThumbnailURL: entry.WorkWebpPath,
			WorkStatus:   entry.WebWorkStatus,
		})
	}
	return tasks, nil
}

// DownloadURL resolves the time-limited result URL for a completed job.
func (c *Client) DownloadURL(ctx context.Context, postID string) (string, error) {
	values := c.credentials()
	values.Set("id", postID)
	endpoint := c.cfg.BaseURL + "/download-url?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("videosynth: build request: %w", err)
	}
	payload, err := c.do(req, "download-url")
	if err != nil {
		return "", err
	}

	var parsed downloadURLResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("videosynth: decode download url: %w", err)
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return "", services.Wrap(services.ErrTransient, "video", "download-url", "provider returned no url", nil)
	}
	return parsed.URL, nil
}

func (c *Client) matchAvatar(ctx context.Context, videoRef string) (id, path string, err error) {
	values := c.credentials()
	values.Set("page_size", "20")
	endpoint := c.cfg.BaseURL + "/avatar-list?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("videosynth: build request: %w", err)
	}
	payload, err := c.do(req, "avatar-list")
	if err != nil {
		return "", "", err
	}

	var parsed avatarListResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", "", fmt.Errorf("videosynth: decode avatar list: %w", err)
	}
	for _, avatar := range parsed.Data.Avatars {
		if avatar.Path == videoRef {
			return avatar.ID, avatar.Path, nil
		}
	}
	return "", "", services.Wrap(services.ErrTransient, "video", "avatar-list", "uploaded video not yet listed", nil)
}

func (c *Client) credentials() url.Values {
	values := url.Values{}
	values.Set("accountId", c.cfg.AccountID)
	values.Set("userId", c.cfg.UserID)
	values.Set("tokenId", c.cfg.TokenID)
	values.Set("clientId", c.cfg.ClientID)
	return values
}

func (c *Client) postMultipart(ctx context.Context, path string, file io.Reader, filename string, extra map[string]string) ([]byte, error) {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"accountId": c.cfg.AccountID,
		"userId":    c.cfg.UserID,
		"tokenId":   c.cfg.TokenID,
		"clientId":  c.cfg.ClientID,
	}
	for key, value := range extra {
		fields[key] = value
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("videosynth: write field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("videosynth: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, services.Wrap(services.ErrTransient, "video", "upload", "copy payload", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("videosynth: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(body.String()))
	if err != nil {
		return nil, fmt.Errorf("videosynth: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, strings.TrimPrefix(path, "/"))
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "video", operation, "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "video", operation, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		detail := strings.TrimSpace(string(payload))
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return nil, services.Wrap(marker, "video", operation, fmt.Sprintf("http %d: %s", resp.StatusCode, detail), nil)
	}
	return payload, nil
}

type uploadVideoResponse struct {
	FileURL string `json:"file_url"`
}

type uploadAudioResponse struct {
	AnimateID string `json:"animate_id"`
	Data      *struct {
		AnimateID string `json:"animate_id"`
	} `json:"data"`
}

type videoListResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		ID            string `json:"id"`
		AnimateID     string `json:"animate_id"`
		WebWorkStatus int    `json:"web_work_status"`
		WorkWebpPath  string `json:"work_webp_path"`
	} `json:"data"`
}

type avatarListResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Avatars []struct {
			ID   string `json:"id"`
			Path string `json:"path"`
		} `json:"avatars"`
	} `json:"data"`
}

type downloadURLResponse struct {
	URL string `json:"url"`
}
