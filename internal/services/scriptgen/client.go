// Package scriptgen turns an idea prompt into a short video script using a
// primary chat-completion provider with an optional secondary fallback.
package scriptgen

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

const defaultHTTPTimeout = 60 * time.Second

// Provider generates script text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result carries generated text plus the provider that produced it.
type Result struct {
	Text     string
	Provider string
}

// Chain tries the primary provider and falls back to the secondary on
// retryable failure. Safety blocks are terminal and never fall through:
// a second provider would be handed the same blocked prompt.
type Chain struct {
	primary   Provider
	secondary Provider
}

// NewChain builds the provider chain from configuration. The secondary
// provider is omitted when it has no API key configured.
func NewChain(cfg config.ScriptGen, opts ...Option) *Chain {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	options := applyOptions(opts)
	client := options.httpClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	chain := &Chain{primary: newGeminiClient(cfg.Primary, client)}
	if strings.TrimSpace(cfg.Secondary.APIKey) != "" {
		chain.secondary = newOpenAIClient(cfg.Secondary, client)
	}
	return chain
}

// Option customizes chain construction.
type Option func(*chainOptions)

type chainOptions struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(o *chainOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func applyOptions(opts []Option) *chainOptions {
	options := &chainOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Generate produces script text, recording which provider served it.
func (c *Chain) Generate(ctx context.Context, prompt string) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{}, services.Wrap(services.ErrValidation, "content", "generate", "prompt required", nil)
	}

	text, primaryErr := c.primary.Generate(ctx, prompt)
	if primaryErr == nil {
		return Result{Text: text, Provider: c.primary.Name()}, nil
	}
	if c.secondary == nil || !services.IsRetryable(primaryErr) || ctx.Err() != nil {
		return Result{}, primaryErr
	}

	text, secondaryErr := c.secondary.Generate(ctx, prompt)
	if secondaryErr != nil {
		return Result{}, fmt.Errorf("%w (primary: %s)", secondaryErr, primaryErr)
	}
	return Result{Text: text, Provider: c.secondary.Name()}, nil
}

type geminiClient struct {
	cfg        config.ScriptProvider
	httpClient *http.Client
}

func newGeminiClient(cfg config.ScriptProvider, client *http.Client) *geminiClient {
	return &geminiClient{cfg: cfg, httpClient: client}
}

func (c *geminiClient) Name() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}
	return "gemini"
}

func (c *geminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "content", "generate", "gemini api key not configured", nil)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "/v1beta/models/"+c.cfg.Model+":generateContent")
	if err != nil {
		return "", fmt.Errorf("scriptgen: build url: %w", err)
	}
	endpoint += "?key=" + url.QueryEscape(c.cfg.APIKey)

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	payload, err := postJSON(ctx, c.httpClient, endpoint, nil, body)
	if err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("scriptgen: decode gemini response: %w", err)
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", services.Wrap(services.ErrSafetyBlocked, "content", "generate", "prompt blocked: "+parsed.PromptFeedback.BlockReason, nil)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", services.Wrap(services.ErrTransient, "content", "generate", "gemini returned no candidates", nil)
	}
	text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", services.Wrap(services.ErrTransient, "content", "generate", "gemini returned empty text", nil)
	}
	return text, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type openaiClient struct {
	cfg        config.ScriptProvider
	httpClient *http.Client
}

func newOpenAIClient(cfg config.ScriptProvider, client *http.Client) *openaiClient {
	return &openaiClient{cfg: cfg, httpClient: client}
}

func (c *openaiClient) Name() string {
	if c.cfg.Name != "" {
		return c.cfg.Name
	}
	return "gpt"
}

func (c *openaiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "content", "generate", "secondary api key not configured", nil)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("scriptgen: build url: %w", err)
	}
	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	payload, err := postJSON(ctx, c.httpClient, endpoint, headers, body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("scriptgen: decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", services.Wrap(services.ErrTransient, "content", "generate", "api error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, "content", "generate", "empty choices", nil)
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", services.Wrap(services.ErrTransient, "content", "generate", "empty content", nil)
	}
	return text, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("scriptgen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("scriptgen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "content", "generate", "request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "content", "generate", "read body", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return payload, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "content", "generate", fmt.Sprintf("http %d: %s", resp.StatusCode, trimBody(payload)), nil)
	default:
		return nil, services.Wrap(services.ErrValidation, "content", "generate", fmt.Sprintf("http %d: %s", resp.StatusCode, trimBody(payload)), nil)
	}
}

func trimBody(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 500 {
		text = text[:500]
	}
	return text
}
