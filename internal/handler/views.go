package handler

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dashboard"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dataset"
	planerrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

// AllScenarios is the scenario query value selecting every scenario.
const AllScenarios = "all"

// GridView is the comparison grid for one set of filters.
type GridView struct {
	File            string     `json:"file"`
	EventID         string     `json:"event_id"`
	GeneratedAt     string     `json:"generated_at"`
	Scenario        string     `json:"scenario"`
	ScenarioOptions []string   `json:"scenario_options"`
	Brands          []string   `json:"brands"`
	MinPrice        float64    `json:"min_price"`
	MaxPrice        float64    `json:"max_price"`
	TotalPlans      int        `json:"total_plans"`
	Displayed       int        `json:"displayed"`
	Tiers           []TierView `json:"tiers"`
	Notice          string     `json:"notice,omitempty"`
}

// AllSelected reports whether the grid spans every scenario.
func (g GridView) AllSelected() bool {
	return g.Scenario == ""
}

// BrandSelected reports whether brand is in the filter.
func (g GridView) BrandSelected(brand string) bool {
	return slices.Contains(g.Brands, brand)
}

// TierView is one tier row of the grid.
type TierView struct {
	dashboard.TierSummary
	Gradient    string        `json:"-"`
	BorderColor string        `json:"-"`
	Columns     []BrandColumn `json:"columns"`
}

// BrandColumn holds one brand's plans within a tier.
type BrandColumn struct {
	Brand string               `json:"brand"`
	Plans []dashboard.GridPlan `json:"plans"`
}

// GridQuery holds parsed grid filters.
type GridQuery struct {
	Scenario    string
	ScenarioSet bool
	Brands      []string
	MinPrice    *float64
	MaxPrice    *float64
}

// ParseGridQuery validates the grid query string.
func ParseGridQuery(q url.Values) (GridQuery, error) {
	var gq GridQuery

	if vals, ok := q["scenario"]; ok && len(vals) > 0 {
		gq.ScenarioSet = true
		gq.Scenario = strings.TrimSpace(vals[0])
	}

	for _, b := range q["brand"] {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		brand := dashboard.Capitalize(b)
		if !slices.Contains(dashboard.Brands, brand) {
			return gq, planerrors.InvalidRequest(fmt.Sprintf("unknown brand %q", b))
		}
		if !slices.Contains(gq.Brands, brand) {
			gq.Brands = append(gq.Brands, brand)
		}
	}

	var err error
	if gq.MinPrice, err = parsePriceParam(q, "min_price"); err != nil {
		return gq, err
	}
	if gq.MaxPrice, err = parsePriceParam(q, "max_price"); err != nil {
		return gq, err
	}
	if gq.MinPrice != nil && gq.MaxPrice != nil && *gq.MinPrice > *gq.MaxPrice {
		return gq, planerrors.InvalidRequest("min_price must not exceed max_price")
	}
	return gq, nil
}

func parsePriceParam(q url.Values, key string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, planerrors.InvalidRequest(fmt.Sprintf("%s must be a non-negative number", key))
	}
	return &v, nil
}

// resolveScenario maps the query to a dashboard scenario filter ("" for all).
func resolveScenario(gq GridQuery, options []string) (string, error) {
	if !gq.ScenarioSet || gq.Scenario == "" {
		return dashboard.ChooseScenario(options), nil
	}
	if strings.EqualFold(gq.Scenario, AllScenarios) {
		return "", nil
	}
	if !slices.Contains(options, gq.Scenario) {
		return "", planerrors.InvalidRequest(fmt.Sprintf("unknown scenario %q", gq.Scenario))
	}
	return gq.Scenario, nil
}

// BuildGrid computes the grid for the active dataset.
func BuildGrid(active *dataset.Active, gq GridQuery) (GridView, []dashboard.GridPlan, error) {
	ds := active.Dataset
	options := dashboard.Scenarios(ds)

	scenario, err := resolveScenario(gq, options)
	if err != nil {
		return GridView{}, nil, err
	}

	plans := dashboard.GridPlans(ds, scenario)

	view := GridView{
		File:            active.Name,
		EventID:         ds.Metadata.EventID,
		GeneratedAt:     ds.Metadata.GeneratedAt,
		Scenario:        scenario,
		ScenarioOptions: options,
		Brands:          gq.Brands,
		TotalPlans:      len(plans),
		Tiers:           []TierView{},
	}
	if len(view.Brands) == 0 {
		view.Brands = slices.Clone(dashboard.Brands)
	}

	view.MinPrice, view.MaxPrice = 0, 150
	if lo, hi, ok := dashboard.PriceBounds(plans); ok {
		view.MinPrice, view.MaxPrice = float64(int(lo)), float64(int(hi)+10)
	}
	if gq.MinPrice != nil {
		view.MinPrice = *gq.MinPrice
	}
	if gq.MaxPrice != nil {
		view.MaxPrice = *gq.MaxPrice
	}

	if len(plans) == 0 {
		view.Notice = "No plans found in the data file for the selected scenario."
		return view, plans, nil
	}

	switch scenario {
	case "":
		view.Notice = "All scenarios selected: duplicate plans are collapsed to their 1_line_mobile_only version when one exists."
	case dashboard.DefaultScenario:
		view.Notice = "The comparison grid shows 1-line mobile-only plans (BYOD). Use the detailed table for all scenarios."
	}

	organized := dashboard.OrganizeByTier(plans, view.Brands, view.MinPrice, view.MaxPrice)
	for _, summary := range dashboard.Summarize(organized) {
		if summary.Count == 0 {
			continue
		}
		tier, _ := dashboard.TierByName(summary.Tier)
		tv := TierView{
			TierSummary: summary,
			Gradient:    tier.Gradient,
			BorderColor: tier.BorderColor,
		}
		for _, brand := range dashboard.Brands {
			tv.Columns = append(tv.Columns, BrandColumn{Brand: brand, Plans: organized[summary.Tier][brand]})
		}
		view.Displayed += summary.Count
		view.Tiers = append(view.Tiers, tv)
	}
	return view, plans, nil
}

// TableView is the detailed table for one set of filters.
type TableView struct {
	File            string          `json:"file"`
	Metadata        model.Metadata  `json:"metadata"`
	BrandOptions    []string        `json:"brand_options"`
	Brand           string          `json:"brand"`
	ScenarioOptions []string        `json:"scenario_options"`
	Scenarios       []string        `json:"scenarios"`
	Count           int             `json:"count"`
	Rows            []dashboard.Row `json:"rows"`
	Notice          string          `json:"notice,omitempty"`
}

// ScenarioSelected reports whether scenario is in the filter.
func (t TableView) ScenarioSelected(scenario string) bool {
	return slices.Contains(t.Scenarios, scenario)
}

// RecordCount is metadata.record_count, falling back to the row count.
func (t TableView) RecordCount() int {
	if t.Metadata.RecordCount > 0 {
		return t.Metadata.RecordCount
	}
	return t.Count
}

// BuildTable computes the detailed table. A scenario key present with no
// values is an explicit empty selection.
func BuildTable(active *dataset.Active, q url.Values) TableView {
	rows := dashboard.TableRows(active.Dataset)

	brand := strings.TrimSpace(q.Get("brand"))
	if strings.EqualFold(brand, "all") {
		brand = ""
	}
	if brand != "" {
		brand = dashboard.Capitalize(brand)
	}

	options := dashboard.RowScenarios(rows, brand)
	selected := options
	if vals, ok := q["scenario"]; ok {
		selected = nil
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" && !slices.Contains(selected, v) {
				selected = append(selected, v)
			}
		}
	}

	filtered := dashboard.FilterRows(rows, brand, selected)
	if filtered == nil {
		filtered = []dashboard.Row{}
	}

	view := TableView{
		File:            active.Name,
		Metadata:        active.Dataset.Metadata,
		BrandOptions:    dashboard.RowBrands(rows),
		Brand:           brand,
		ScenarioOptions: options,
		Scenarios:       selected,
		Count:           len(filtered),
		Rows:            filtered,
	}
	switch {
	case len(rows) == 0:
		view.Notice = "No plan records found in the consolidated file."
	case len(selected) == 0:
		view.Notice = "Select at least one scenario to display."
	}
	return view
}

// DatasetView describes the active file.
type DatasetView struct {
	File       string         `json:"file"`
	Path       string         `json:"path"`
	ModifiedAt string         `json:"modified_at"`
	Metadata   model.Metadata `json:"metadata"`
	Brands     []string       `json:"brands"`
	Scenarios  []string       `json:"scenarios"`
}

// BuildDataset describes the active dataset.
func BuildDataset(active *dataset.Active) DatasetView {
	brands := make([]string, 0, len(active.Dataset.Brands))
	for b := range active.Dataset.Brands {
		brands = append(brands, b)
	}
	slices.Sort(brands)

	return DatasetView{
		File:       active.Name,
		Path:       active.Path,
		ModifiedAt: active.ModTime.Format(time.RFC3339),
		Metadata:   active.Dataset.Metadata,
		Brands:     brands,
		Scenarios:  dashboard.Scenarios(active.Dataset),
	}
}
