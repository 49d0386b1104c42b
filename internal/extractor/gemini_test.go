package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func geminiServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "test-gemini", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiClient(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{
	  "candidates": [{"content": {"role": "model", "parts": [{"text": "{\"plans\":[]}"}]}}],
	  "usageMetadata": {"promptTokenCount": 21, "candidatesTokenCount": 6}
	}`)

	cfg := llmConfig("gemini-2.0-flash", srv.URL)
	cfg.GeminiAPIKey = "test-gemini"
	cfg.GeminiBaseURL = srv.URL

	rec := newRecorder()
	c, err := NewGeminiClient(context.Background(), cfg, rec, zap.NewNop())
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"plans":[]}`, got.Text)
	assert.Equal(t, 21, got.InputTokens)
	assert.Equal(t, 6, got.OutputTokens)
	assert.Equal(t, ProviderGemini, got.Provider)
	assert.Equal(t, []int{http.StatusOK}, rec.statuses())
}

func TestGeminiClientRejectsBadRequest(t *testing.T) {
	srv := geminiServer(t, http.StatusBadRequest,
		`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`)

	cfg := llmConfig("gemini-2.0-flash", srv.URL)
	cfg.GeminiAPIKey = "test-gemini"
	cfg.GeminiBaseURL = srv.URL

	c, err := NewGeminiClient(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.ErrorCodeLLMRequest))

	var pe *apierrors.PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.Details["status"])
}

func TestNewClientGemini(t *testing.T) {
	cfg := llmConfig("gemini-2.0-flash", "http://localhost")
	_, err := NewClient(cfg, nil, zap.NewNop())
	assert.True(t, apierrors.Is(err, apierrors.ErrorCodeInvalidRequest))

	cfg.GeminiAPIKey = "test-gemini"
	c, err := NewClient(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, c)
	assert.Equal(t, ProviderGemini, ProviderFor("Gemini-2.5-pro"))
}
