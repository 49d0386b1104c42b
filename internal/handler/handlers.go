// Package handler provides the HTTP handlers of the dashboard.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dataset"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"go.uber.org/zap"
)

// Source provides the active dataset.
type Source interface {
	Active(ctx context.Context) (*dataset.Active, error)
	Refresh() int
}

// Handlers holds the HTTP handlers of the dashboard.
type Handlers struct {
	source       Source
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	pages        *Pages
	onRefresh    func()
}

// NewHandlers creates handlers. onRefresh, if set, runs after every cache clear.
func NewHandlers(source Source, errorHandler *apierrors.Handler, logger *zap.Logger, onRefresh func()) *Handlers {
	return &Handlers{
		source:       source,
		errorHandler: errorHandler,
		logger:       logger,
		pages:        NewPages(),
		onRefresh:    onRefresh,
	}
}

// RefreshResponse is the body of POST /v1/refresh.
type RefreshResponse struct {
	Status  string `json:"status"`
	Cleared int    `json:"cleared"`
}

// PlansResponse is the body of GET /v1/plans.
type PlansResponse struct {
	File     string      `json:"file"`
	Scenario string      `json:"scenario"`
	Count    int         `json:"count"`
	Plans    interface{} `json:"plans"`
}

// GetDataset handles GET /v1/dataset.
func (h *Handlers) GetDataset(w http.ResponseWriter, r *http.Request) {
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BuildDataset(active))
}

// GetPlans handles GET /v1/plans.
func (h *Handlers) GetPlans(w http.ResponseWriter, r *http.Request) {
	gq, err := ParseGridQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	view, plans, err := BuildGrid(active, gq)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	// brand and price filters apply to the listing as they do to the grid
	filtered := plans[:0:0]
	for _, p := range plans {
		if view.BrandSelected(p.Brand) && p.Price >= view.MinPrice && p.Price <= view.MaxPrice {
			filtered = append(filtered, p)
		}
	}

	h.writeJSON(w, http.StatusOK, PlansResponse{
		File:     view.File,
		Scenario: scenarioLabel(view.Scenario),
		Count:    len(filtered),
		Plans:    filtered,
	})
}

// GetGrid handles GET /v1/grid.
func (h *Handlers) GetGrid(w http.ResponseWriter, r *http.Request) {
	gq, err := ParseGridQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	view, _, err := BuildGrid(active, gq)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	view.Scenario = scenarioLabel(view.Scenario)
	h.writeJSON(w, http.StatusOK, view)
}

// GetTable handles GET /v1/table.
func (h *Handlers) GetTable(w http.ResponseWriter, r *http.Request) {
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BuildTable(active, r.URL.Query()))
}

// Refresh handles POST /v1/refresh.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cleared := h.refresh()
	h.writeJSON(w, http.StatusOK, RefreshResponse{Status: "ok", Cleared: cleared})
}

func (h *Handlers) refresh() int {
	cleared := h.source.Refresh()
	if h.onRefresh != nil {
		h.onRefresh()
	}
	return cleared
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func scenarioLabel(s string) string {
	if s == "" {
		return AllScenarios
	}
	return s
}
