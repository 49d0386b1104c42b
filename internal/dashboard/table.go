package dashboard

import (
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

// Row is one line of the detailed plan table.
type Row struct {
	Brand                     string `json:"brand"`
	Scenario                  string `json:"scenario"`
	PlanName                  string `json:"plan_name"`
	Price                     string `json:"price"`
	Data                      string `json:"data"`
	Network                   string `json:"network"`
	Features                  string `json:"features"`
	RoamingClassification     string `json:"roaming_classification"`
	SpeedFeatures             string `json:"speed_features"`
	RoamingFeatures           string `json:"roaming_features"`
	InternationalTextFeatures string `json:"international_text_features"`
	CallingFeatures           string `json:"calling_features"`
	OtherFeatures             string `json:"other_features"`
}

// TableRows flattens every named plan in the dataset.
func TableRows(ds *model.Dataset) []Row {
	var rows []Row
	for _, brand := range sortedKeys(ds.Brands) {
		scenarios := ds.Brands[brand].Scenarios
		for _, scenario := range sortedKeys(scenarios) {
			for _, plan := range scenarios[scenario].Plans {
				name := strings.TrimSpace(plan.PlanName)
				if name == "" {
					continue
				}
				rows = append(rows, Row{
					Brand:                     Capitalize(brand),
					Scenario:                  scenario,
					PlanName:                  name,
					Price:                     plan.DisplayPrice(),
					Data:                      plan.DataAmount,
					Network:                   plan.NetworkLabel(),
					Features:                  JoinList(plan.Features),
					RoamingClassification:     plan.RoamingClassification(),
					SpeedFeatures:             JoinList(plan.SpeedFeatures),
					RoamingFeatures:           JoinList(plan.RoamingFeatures),
					InternationalTextFeatures: JoinList(plan.InternationalTextFeatures),
					CallingFeatures:           JoinList(plan.CallingFeatures),
					OtherFeatures:             JoinList(plan.OtherFeatures),
				})
			}
		}
	}
	return rows
}

// JoinList joins non-empty items with ", ".
func JoinList(items []string) string {
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if item != "" {
			kept = append(kept, item)
		}
	}
	return strings.Join(kept, ", ")
}

// FilterRows keeps rows of brand ("" for all) whose scenario is selected.
// An empty selection keeps nothing.
func FilterRows(rows []Row, brand string, scenarios []string) []Row {
	if len(scenarios) == 0 {
		return nil
	}
	selected := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		selected[s] = true
	}

	var out []Row
	for _, r := range rows {
		if brand != "" && r.Brand != brand {
			continue
		}
		if !selected[r.Scenario] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RowBrands returns the sorted distinct brands of rows.
func RowBrands(rows []Row) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		set[r.Brand] = struct{}{}
	}
	return sortedKeys(set)
}

// RowScenarios returns the sorted distinct scenarios of rows for brand ("" for all).
func RowScenarios(rows []Row, brand string) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		if brand != "" && r.Brand != brand {
			continue
		}
		set[r.Scenario] = struct{}{}
	}
	return sortedKeys(set)
}
