package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ProviderGemini serves models prefixed gemini-.
const ProviderGemini = "gemini"

// GeminiClient calls generateContent through the Google GenAI SDK. Retries
// reuse the backoff, sleep and recorder of the HTTP transport.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	retry     *transport
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, recorder Recorder, logger *zap.Logger) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.GeminiAPIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.GeminiBaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.GeminiBaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     newTransport(ProviderGemini, cfg.Timeout, cfg.MaxAttempts, recorder, logger),
	}, nil
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	gc := &genai.GenerateContentConfig{MaxOutputTokens: int32(c.maxTokens)}

	for attempt := 1; ; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), gc)
		if err == nil {
			c.retry.recorder.RecordLLMRequest(ProviderGemini, http.StatusOK)
			out := Completion{Text: resp.Text(), Provider: ProviderGemini, Model: c.model}
			if u := resp.UsageMetadata; u != nil {
				out.InputTokens = int(u.PromptTokenCount)
				out.OutputTokens = int(u.CandidatesTokenCount)
			}
			return out, nil
		}

		var apiErr genai.APIError
		if !errors.As(err, &apiErr) {
			c.retry.recorder.RecordLLMRequest(ProviderGemini, 0)
			return Completion{}, apierrors.LLMRequest(ProviderGemini, 0, err)
		}
		c.retry.recorder.RecordLLMRequest(ProviderGemini, apiErr.Code)
		if !retryable(apiErr.Code) || attempt >= c.retry.backoff.Attempts {
			return Completion{}, apierrors.LLMRequest(ProviderGemini, apiErr.Code, errors.New(apiErr.Message)).
				WithDetail("attempts", attempt)
		}

		delay := c.retry.backoff.Delay(attempt, apiErr.Code)
		c.retry.logger.Warn("llm request retrying",
			zap.String("provider", ProviderGemini),
			zap.Int("status", apiErr.Code),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.backoff.Attempts),
			zap.Duration("delay", delay))
		if err := c.retry.sleep(ctx, delay); err != nil {
			return Completion{}, err
		}
	}
}
