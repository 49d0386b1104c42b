package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dataset"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixture = `{
  "metadata": {"generated_at": "2025-03-01T09:05:00Z", "event_id": "20250301_090000", "brands": ["telus", "fido"], "total_brands": 2, "record_count": 3},
  "brands": {
    "telus": {"scenarios": {
      "1_line_mobile_only": {"plans": [
        {"planName": "Essential 60", "currentPrice": "$55/mo", "dataAmount": "60GB"}
      ]},
      "2_line_bundled": {"plans": [
        {"planName": "Family 250", "currentPrice": "$95", "dataAmount": "250 GB"}
      ]}
    }},
    "fido": {"scenarios": {
      "1_line_mobile_only": {"plans": [
        {"planName": "Fido 500MB", "currentPrice": "$20", "dataAmount": "500MB"}
      ]}
    }}
  },
  "records": []
}`

// mockSource is a mock implementation of Source.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) Active(ctx context.Context) (*dataset.Active, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dataset.Active), args.Error(1)
}

func (m *mockSource) Refresh() int {
	return m.Called().Int(0)
}

func newSource(t *testing.T) *mockSource {
	t.Helper()
	var ds model.Dataset
	require.NoError(t, json.Unmarshal([]byte(fixture), &ds))
	src := &mockSource{}
	src.On("Active", mock.Anything).Return(&dataset.Active{
		Path:    "data/consolidated/final_consolidated_plans_20250301_090000.json",
		Name:    "final_consolidated_plans_20250301_090000.json",
		ModTime: time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC),
		Dataset: &ds,
	}, nil).Maybe()
	return src
}

func newHandlers(src Source, onRefresh func()) *Handlers {
	logger := zap.NewNop()
	return NewHandlers(src, apierrors.NewHandler(logger), logger, onRefresh)
}

func serve(h http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestGetDataset(t *testing.T) {
	h := newHandlers(newSource(t), nil)
	rec := serve(h.GetDataset, http.MethodGet, "/v1/dataset")
	require.Equal(t, http.StatusOK, rec.Code)

	var view DatasetView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "final_consolidated_plans_20250301_090000.json", view.File)
	assert.Equal(t, "2025-03-01T09:05:00Z", view.ModifiedAt)
	assert.Equal(t, []string{"fido", "telus"}, view.Brands)
	assert.Equal(t, "20250301_090000", view.Metadata.EventID)
	assert.Contains(t, view.Scenarios, "2_line_bundled")
}

func TestGetPlans(t *testing.T) {
	h := newHandlers(newSource(t), nil)

	tests := []struct {
		name     string
		query    string
		scenario string
		count    int
	}{
		{name: "default scenario", query: "", scenario: "1_line_mobile_only", count: 2},
		{name: "all scenarios", query: "?scenario=all", scenario: "all", count: 3},
		{name: "brand filter", query: "?brand=telus", scenario: "1_line_mobile_only", count: 1},
		{name: "price filter", query: "?min_price=30&max_price=60", scenario: "1_line_mobile_only", count: 1},
		{name: "explicit scenario", query: "?scenario=2_line_bundled", scenario: "2_line_bundled", count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.GetPlans, http.MethodGet, "/v1/plans"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Scenario string `json:"scenario"`
				Count    int    `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.scenario, resp.Scenario)
			assert.Equal(t, tt.count, resp.Count)
		})
	}
}

func TestGetPlansRejectsBadQuery(t *testing.T) {
	h := newHandlers(newSource(t), nil)
	for _, q := range []string{
		"?brand=acme", "?min_price=abc", "?min_price=80&max_price=20", "?scenario=9_line",
		"?min_price=NaN", "?max_price=Inf", "?min_price=-Infinity",
	} {
		t.Run(q, func(t *testing.T) {
			rec := serve(h.GetPlans, http.MethodGet, "/v1/plans"+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp apierrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, apierrors.ErrorCodeInvalidRequest, resp.ErrorCode)
		})
	}
}

func TestGetGrid(t *testing.T) {
	h := newHandlers(newSource(t), nil)
	rec := serve(h.GetGrid, http.MethodGet, "/v1/grid")
	require.Equal(t, http.StatusOK, rec.Code)

	var view GridView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "1_line_mobile_only", view.Scenario)
	assert.Equal(t, 2, view.TotalPlans)
	assert.Equal(t, 2, view.Displayed)
	assert.NotEmpty(t, view.Tiers)
}

func TestGetTable(t *testing.T) {
	h := newHandlers(newSource(t), nil)
	rec := serve(h.GetTable, http.MethodGet, "/v1/table?brand=telus&scenario=2_line_bundled")
	require.Equal(t, http.StatusOK, rec.Code)

	var view TableView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Telus", view.Brand)
	assert.Equal(t, 1, view.Count)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Family 250", view.Rows[0].PlanName)
}

func TestNoConsolidatedFiles(t *testing.T) {
	src := &mockSource{}
	src.On("Active", mock.Anything).Return(nil, apierrors.NoConsolidatedFiles([]string{"data/consolidated", "."}))
	h := newHandlers(src, nil)

	rec := serve(h.GetDataset, http.MethodGet, "/v1/dataset")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apierrors.ErrorCodeNoConsolidatedFiles, resp.ErrorCode)

	rec = serve(h.GridPage, http.MethodGet, "/")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "NO_CONSOLIDATED_FILES")
	src.AssertNumberOfCalls(t, "Active", 2)
}

func TestRefresh(t *testing.T) {
	src := newSource(t)
	src.On("Refresh").Return(2).Once()
	called := 0
	h := newHandlers(src, func() { called++ })

	rec := serve(h.Refresh, http.MethodPost, "/v1/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","cleared":2}`, rec.Body.String())
	assert.Equal(t, 1, called)
	src.AssertExpectations(t)
}

func TestRefreshFormRedirects(t *testing.T) {
	tests := []struct {
		referer string
		want    string
	}{
		{"", "/"},
		{"http://example.com/table?brand=telus", "/table?brand=telus"},
		{"http://evil.test/table", "/"},
		{"http://example.com//evil.test/table", "/"},
		{"http://example.com/\\evil.test", "/"},
		{"/grid", "/grid"},
	}
	for _, tt := range tests {
		t.Run(tt.referer, func(t *testing.T) {
			src := newSource(t)
			src.On("Refresh").Return(2).Once()
			h := newHandlers(src, nil)
			req := httptest.NewRequest(http.MethodPost, "http://example.com/refresh", nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()
			h.RefreshForm(rec, req)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
			src.AssertExpectations(t)
		})
	}
}

func TestPagesRender(t *testing.T) {
	h := newHandlers(newSource(t), nil)

	rec := serve(h.GridPage, http.MethodGet, "/?scenario=all")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Essential 60")
	assert.NotContains(t, body, "ZgotmplZ")

	rec = serve(h.TablePage, http.MethodGet, "/table")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Family 250"))
}
