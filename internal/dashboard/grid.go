package dashboard

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

// DefaultScenario is preselected on the comparison grid when the dataset has it.
const DefaultScenario = "1_line_mobile_only"

// GridPlan is a plan placed on the comparison grid.
type GridPlan struct {
	Brand      string  `json:"brand"`
	PlanName   string  `json:"planName"`
	DataAmount string  `json:"dataAmount"`
	DataGB     float64 `json:"dataGB"`
	Price      float64 `json:"price"`
	PriceStr   string  `json:"priceStr"`
	Tier       string  `json:"tier"`
	Scenario   string  `json:"scenario"`
}

// DisplayName is the truncated plan name shown on cards.
func (p GridPlan) DisplayName() string {
	return Truncate(p.PlanName)
}

// ScenarioPriority ranks scenarios when the same plan appears in several.
// Lower wins.
func ScenarioPriority(name string) int {
	switch {
	case name == "1_line_mobile_only":
		return 0
	case name == "1_line_bundled":
		return 1
	case strings.Contains(name, "1_line"):
		return 2
	case strings.Contains(name, "2_line"):
		return 3
	case strings.Contains(name, "3_line"):
		return 4
	case strings.Contains(name, "4_line"):
		return 5
	default:
		return 6
	}
}

// GridPlans collects priced, named plans from the dataset. An empty scenario
// selects every scenario and collapses duplicates to the best-ranked scenario.
func GridPlans(ds *model.Dataset, scenario string) []GridPlan {
	var plans []GridPlan
	index := make(map[string]int)

	for _, brand := range sortedKeys(ds.Brands) {
		brandData := ds.Brands[brand]
		for _, scenarioName := range sortedKeys(brandData.Scenarios) {
			if scenario != "" && scenarioName != scenario {
				continue
			}
			for _, plan := range brandData.Scenarios[scenarioName].Plans {
				gp, ok := toGridPlan(brand, scenarioName, plan)
				if !ok {
					continue
				}
				if scenario != "" {
					plans = append(plans, gp)
					continue
				}

				key := dedupKey(gp)
				if i, seen := index[key]; seen {
					if ScenarioPriority(scenarioName) < ScenarioPriority(plans[i].Scenario) {
						plans[i] = gp
					}
					continue
				}
				index[key] = len(plans)
				plans = append(plans, gp)
			}
		}
	}
	return plans
}

func toGridPlan(brand, scenario string, plan model.Plan) (GridPlan, bool) {
	name := strings.TrimSpace(plan.PlanName)
	if name == "" {
		return GridPlan{}, false
	}
	priceStr := plan.DisplayPrice()
	price, ok := ParsePrice(priceStr)
	if !ok {
		return GridPlan{}, false
	}
	gb := ParseDataAmount(plan.DataAmount)
	return GridPlan{
		Brand:      Capitalize(brand),
		PlanName:   name,
		DataAmount: plan.DataAmount,
		DataGB:     gb,
		Price:      price,
		PriceStr:   priceStr,
		Tier:       Categorize(gb, price),
		Scenario:   scenario,
	}, true
}

func dedupKey(p GridPlan) string {
	return strings.Join([]string{
		p.Brand,
		p.PlanName,
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		strconv.FormatFloat(p.DataGB, 'f', -1, 64),
	}, "|")
}

// Organized maps tier name to brand to plans.
type Organized map[string]map[string][]GridPlan

// OrganizeByTier buckets plans of the selected brands within [minPrice, maxPrice].
// Every tier has an entry for every known brand, and each list is sorted by data.
func OrganizeByTier(plans []GridPlan, brands []string, minPrice, maxPrice float64) Organized {
	selected := make(map[string]bool, len(brands))
	for _, b := range brands {
		selected[b] = true
	}

	organized := make(Organized, len(Tiers))
	for _, t := range Tiers {
		organized[t.Name] = make(map[string][]GridPlan, len(Brands))
		for _, b := range Brands {
			organized[t.Name][b] = nil
		}
	}

	for _, p := range plans {
		if !selected[p.Brand] {
			continue
		}
		if p.Price < minPrice || p.Price > maxPrice {
			continue
		}
		byBrand, ok := organized[p.Tier]
		if !ok {
			continue
		}
		if _, known := byBrand[p.Brand]; !known {
			continue
		}
		byBrand[p.Brand] = append(byBrand[p.Brand], p)
	}

	for _, byBrand := range organized {
		for _, list := range byBrand {
			sort.SliceStable(list, func(i, j int) bool { return list[i].DataGB < list[j].DataGB })
		}
	}
	return organized
}

// TierSummary describes one tier header.
type TierSummary struct {
	Tier       string   `json:"tier"`
	DataLabel  string   `json:"data_label"`
	PriceLabel string   `json:"price_label"`
	Count      int      `json:"count"`
	MinPrice   *float64 `json:"min_price"`
	MaxPrice   *float64 `json:"max_price"`
}

// Summarize returns a summary per tier in display order.
func Summarize(organized Organized) []TierSummary {
	out := make([]TierSummary, 0, len(Tiers))
	for _, t := range Tiers {
		s := TierSummary{Tier: t.Name, DataLabel: t.DataLabel(), PriceLabel: t.PriceLabel()}
		for _, list := range organized[t.Name] {
			for _, p := range list {
				s.Count++
				if s.MinPrice == nil || p.Price < *s.MinPrice {
					v := p.Price
					s.MinPrice = &v
				}
				if s.MaxPrice == nil || p.Price > *s.MaxPrice {
					v := p.Price
					s.MaxPrice = &v
				}
			}
		}
		out = append(out, s)
	}
	return out
}

// PriceBounds returns the lowest and highest price among plans.
func PriceBounds(plans []GridPlan) (float64, float64, bool) {
	if len(plans) == 0 {
		return 0, 0, false
	}
	lo, hi := plans[0].Price, plans[0].Price
	for _, p := range plans[1:] {
		if p.Price < lo {
			lo = p.Price
		}
		if p.Price > hi {
			hi = p.Price
		}
	}
	return lo, hi, true
}

// Scenarios returns the sorted union of scenario names in the dataset.
func Scenarios(ds *model.Dataset) []string {
	set := make(map[string]struct{})
	for _, b := range ds.Brands {
		for name := range b.Scenarios {
			set[name] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// ChooseScenario picks the grid's default scenario: 1_line_mobile_only when
// present, otherwise all scenarios ("").
func ChooseScenario(scenarios []string) string {
	for _, s := range scenarios {
		if s == DefaultScenario {
			return DefaultScenario
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
