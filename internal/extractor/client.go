package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"go.uber.org/zap"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	anthropicVersion = "2023-06-01"
	maxResponseBytes = 8 << 20
)

// Completion is the text and token usage of one model call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

// Client sends a single prompt to a model.
type Client interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Recorder receives LLM metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordLLMRequest(provider string, statusCode int)
	AddLLMTokens(input, output int)
}

type nopRecorder struct{}

func (nopRecorder) RecordLLMRequest(string, int) {}
func (nopRecorder) AddLLMTokens(int, int)        {}

// Backoff controls retries of rate-limited and failing requests.
type Backoff struct {
	Attempts       int
	Base           time.Duration
	RateLimitCap   time.Duration
	ServerErrorCap time.Duration
}

// DefaultBackoff retries five times starting at 2s.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:       5,
		Base:           2 * time.Second,
		RateLimitCap:   60 * time.Second,
		ServerErrorCap: 30 * time.Second,
	}
}

// Delay returns the wait after a failed attempt (1-based) with the given status.
func (b Backoff) Delay(attempt, status int) time.Duration {
	d := b.Base << uint(attempt-1)
	limit := b.ServerErrorCap
	if status == http.StatusTooManyRequests {
		limit = b.RateLimitCap
	}
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transport posts JSON and retries per Backoff.
type transport struct {
	provider   string
	httpClient *http.Client
	backoff    Backoff
	recorder   Recorder
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func newTransport(provider string, timeout time.Duration, attempts int, recorder Recorder, logger *zap.Logger) *transport {
	b := DefaultBackoff()
	if attempts > 0 {
		b.Attempts = attempts
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &transport{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		backoff:    b,
		recorder:   recorder,
		logger:     logger,
		sleep:      sleepContext,
	}
}

func (t *transport) post(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			t.recorder.RecordLLMRequest(t.provider, 0)
			return nil, apierrors.LLMRequest(t.provider, 0, err)
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		t.recorder.RecordLLMRequest(t.provider, resp.StatusCode)
		if err != nil {
			return nil, apierrors.LLMRequest(t.provider, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		cause := errors.New(snippet(respBody))
		if !retryable(resp.StatusCode) || attempt >= t.backoff.Attempts {
			return nil, apierrors.LLMRequest(t.provider, resp.StatusCode, cause).
				WithDetail("attempts", attempt)
		}

		delay := t.backoff.Delay(attempt, resp.StatusCode)
		t.logger.Warn("llm request retrying",
			zap.String("provider", t.provider),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.backoff.Attempts),
			zap.Duration("delay", delay))
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	transport *transport
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient creates a Messages API client.
func NewAnthropicClient(cfg config.LLMConfig, recorder Recorder, logger *zap.Logger) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    cfg.AnthropicAPIKey,
		baseURL:   strings.TrimRight(cfg.AnthropicBaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		transport: newTransport(ProviderAnthropic, cfg.Timeout, cfg.MaxAttempts, recorder, logger),
	}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	body, err := c.transport.post(ctx, c.baseURL+"/v1/messages", headers, reqBody)
	if err != nil {
		return Completion{}, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, apierrors.LLMRequest(ProviderAnthropic, http.StatusOK, fmt.Errorf("failed to decode response: %w", err))
	}
	if resp.Error != nil {
		return Completion{}, apierrors.LLMRequest(ProviderAnthropic, http.StatusOK, fmt.Errorf("%s: %s", resp.Error.Type, resp.Error.Message))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Completion{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Provider:     ProviderAnthropic,
		Model:        c.model,
	}, nil
}

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	transport *transport
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(cfg config.LLMConfig, recorder Recorder, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:    cfg.OpenAIAPIKey,
		baseURL:   strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		transport: newTransport(ProviderOpenAI, cfg.Timeout, cfg.MaxAttempts, recorder, logger),
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	reqBody := openAIRequest{
		Model:               c.model,
		Messages:            []openAIMessage{{Role: "user", Content: prompt}},
		MaxCompletionTokens: c.maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	body, err := c.transport.post(ctx, c.baseURL+"/v1/chat/completions", headers, reqBody)
	if err != nil {
		return Completion{}, err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Completion{}, apierrors.LLMRequest(ProviderOpenAI, http.StatusOK, fmt.Errorf("failed to decode response: %w", err))
	}
	if resp.Error != nil {
		return Completion{}, apierrors.LLMRequest(ProviderOpenAI, http.StatusOK, fmt.Errorf("%s: %s", resp.Error.Type, resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return Completion{}, apierrors.LLMRequest(ProviderOpenAI, http.StatusOK, fmt.Errorf("no choices returned"))
	}
	return Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Provider:     ProviderOpenAI,
		Model:        c.model,
	}, nil
}

// ProviderFor returns the provider serving model. Models prefixed gpt- go to
// OpenAI, gemini- to Gemini, everything else to Anthropic.
func ProviderFor(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-"):
		return ProviderOpenAI
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini
	}
	return ProviderAnthropic
}

// NewClient picks the client for cfg.Model and checks its API key.
func NewClient(cfg config.LLMConfig, recorder Recorder, logger *zap.Logger) (Client, error) {
	switch ProviderFor(cfg.Model) {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, apierrors.InvalidRequest("OPENAI_API_KEY is required for model " + cfg.Model)
		}
		return NewOpenAIClient(cfg, recorder, logger), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, apierrors.InvalidRequest("GEMINI_API_KEY is required for model " + cfg.Model)
		}
		return NewGeminiClient(context.Background(), cfg, recorder, logger)
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil, apierrors.InvalidRequest("ANTHROPIC_API_KEY is required for model " + cfg.Model)
		}
		return NewAnthropicClient(cfg, recorder, logger), nil
	}
}
