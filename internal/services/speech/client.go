// Package speech wraps the speech-synthesis task API: submit returns an
// asynchronous task handle, poll reports its progress.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

const defaultHTTPTimeout = 30 * time.Second

// Outcome classifies a polled task.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSuccess    Outcome = "success"
	OutcomeError      Outcome = "error"
)

// PollResult reports the provider-side state of a submitted task.
type PollResult struct {
	Outcome  Outcome
	AudioURL string
	Message  string
}

// Client calls the speech synthesis service.
type Client struct {
	cfg        config.Speech
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

// NewClient constructs a speech service client.
func NewClient(cfg config.Speech, opts ...Option) *Client {
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

// Submit requests synthesis of text with the given voice and returns the
// provider task id. The call returns as soon as the provider accepts the job.
func (c *Client) Submit(ctx context.Context, text, voiceID string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "voice", "submit", "speech api key not configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "voice", "submit", "text required", nil)
	}
	if strings.TrimSpace(voiceID) == "" {
		return "", services.Wrap(services.ErrValidation, "voice", "submit", "voice id required", nil)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "/v1m/task/text-to-speech")
	if err != nil {
		return "", fmt.Errorf("speech submit: build url: %w", err)
	}
	body := submitRequest{
		Text:         text,
		Model:        c.cfg.Model,
		VoiceSetting: voiceSetting{VoiceID: voiceID},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("speech submit: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("speech submit: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	payload, err := c.do(req, "submit")
	if err != nil {
		return "", err
	}

	var parsed submitResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("speech submit: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", services.Wrap(services.ErrTransient, "voice", "submit", "api error: "+parsed.Error, nil)
	}
	if strings.TrimSpace(parsed.TaskID) == "" {
		return "", services.Wrap(services.ErrTransient, "voice", "submit", "provider returned no task id", nil)
	}
	return parsed.TaskID, nil
}

// Poll reports the current provider status for a task.
func (c *Client) Poll(ctx context.Context, taskID string) (PollResult, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "/v1/task/", taskID)
	if err != nil {
		return PollResult{}, fmt.Errorf("speech poll: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("speech poll: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	payload, err := c.do(req, "poll")
	if err != nil {
		return PollResult{}, err
	}

	var parsed pollResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return PollResult{}, fmt.Errorf("speech poll: decode response: %w", err)
	}

	status := strings.ToLower(strings.TrimSpace(parsed.Data.Status))
	switch status {
	case "doing", "queued", "":
		return PollResult{Outcome: OutcomeInProgress}, nil
	case "success", "done", "completed":
		audio := strings.TrimSpace(parsed.Data.Metadata.AudioURL)
		if audio == "" {
			// Terminal status without an artifact is reported as still in
			// progress; the next sweep re-checks rather than marking ready.
			return PollResult{Outcome: OutcomeInProgress}, nil
		}
		return PollResult{Outcome: OutcomeSuccess, AudioURL: audio}, nil
	default:
		message := strings.TrimSpace(parsed.Data.ErrorMessage)
		if message == "" {
			message = "provider status " + status
		}
		return PollResult{Outcome: OutcomeError, Message: message}, nil
	}
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "voice", operation, "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "voice", operation, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "voice", operation, fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}
	return payload, nil
}

type submitRequest struct {
	Text         string       `json:"text"`
	Model        string       `json:"model"`
	VoiceSetting voiceSetting `json:"voice_setting"`
}

type voiceSetting struct {
	VoiceID string `json:"voice_id"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

type pollResponse struct {
	Data struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Metadata     struct {
			AudioURL string `json:"audio_url"`
		} `json:"metadata"`
	} `json:"data"`
}
