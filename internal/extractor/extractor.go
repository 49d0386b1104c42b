// Package extractor turns stripped carrier pages into structured plans with an LLM.
package extractor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"go.uber.org/zap"
)

const (
	// EstimatedOutputTokens is the assumed size of a JSON answer.
	EstimatedOutputTokens = 3000
	// InputTokenBudget is 20% of a 200K context window.
	InputTokenBudget = 40000

	charsPerToken = 4
)

// Tokens is the usage of one request.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Result is the outcome of extracting one scenario.
type Result struct {
	Success     bool                      `json:"success"`
	Scenario    string                    `json:"scenario"`
	Data        *model.ScenarioExtraction `json:"data,omitempty"`
	RawResponse string                    `json:"raw_response,omitempty"`
	Tokens      Tokens                    `json:"tokens"`
	Duration    time.Duration             `json:"-"`
	Error       string                    `json:"error,omitempty"`
	Err         error                     `json:"-"`
}

// TokenStats accumulates usage across requests.
type TokenStats struct {
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	RequestsCount     int64 `json:"requests_count"`
}

// Extractor runs scenario extractions against a model. It is safe for concurrent use.
type Extractor struct {
	client   Client
	recorder Recorder
	logger   *zap.Logger

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	requests     atomic.Int64
}

// New creates an extractor. recorder may be nil.
func New(client Client, recorder Recorder, logger *zap.Logger) *Extractor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Extractor{client: client, recorder: recorder, logger: logger}
}

// ExtractScenario prompts the model with one scenario and parses its answer.
// Failures are reported in the Result rather than returned.
func (e *Extractor) ExtractScenario(ctx context.Context, r Request) Result {
	res := Result{Scenario: r.Scenario}
	start := time.Now()

	fail := func(err error) Result {
		res.Err = err
		res.Error = err.Error()
		res.Duration = time.Since(start)
		e.logger.Warn("scenario extraction failed",
			zap.String("carrier", r.Carrier),
			zap.String("scenario", r.Scenario),
			zap.Error(err))
		return res
	}

	prompt, err := BuildPrompt(r)
	if err != nil {
		return fail(err)
	}

	completion, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return fail(err)
	}

	e.inputTokens.Add(int64(completion.InputTokens))
	e.outputTokens.Add(int64(completion.OutputTokens))
	e.requests.Add(1)
	e.recorder.AddLLMTokens(completion.InputTokens, completion.OutputTokens)

	res.RawResponse = completion.Text
	res.Tokens = Tokens{Input: completion.InputTokens, Output: completion.OutputTokens}

	data, err := ParseResponse(completion.Text)
	if err != nil {
		return fail(err)
	}

	res.Success = true
	res.Data = data
	res.Duration = time.Since(start)
	e.logger.Info("scenario extracted",
		zap.String("carrier", r.Carrier),
		zap.String("scenario", r.Scenario),
		zap.String("provider", completion.Provider),
		zap.Int("plans", len(data.Plans)),
		zap.Int("input_tokens", completion.InputTokens),
		zap.Int("output_tokens", completion.OutputTokens))
	return res
}

// Stats returns the accumulated token usage.
func (e *Extractor) Stats() TokenStats {
	return TokenStats{
		TotalInputTokens:  e.inputTokens.Load(),
		TotalOutputTokens: e.outputTokens.Load(),
		RequestsCount:     e.requests.Load(),
	}
}

// Estimate approximates the cost of a prompt without calling the model.
type Estimate struct {
	InputTokens  int  `json:"estimated_input_tokens"`
	OutputTokens int  `json:"estimated_output_tokens"`
	Total        int  `json:"estimated_total"`
	WithinBudget bool `json:"within_20_percent_limit"`
}

// EstimateTokens uses roughly four characters per token.
func EstimateTokens(prompt string) Estimate {
	in := len(prompt) / charsPerToken
	return Estimate{
		InputTokens:  in,
		OutputTokens: EstimatedOutputTokens,
		Total:        in + EstimatedOutputTokens,
		WithinBudget: in < InputTokenBudget,
	}
}
