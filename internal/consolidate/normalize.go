package consolidate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

var (
	freedomFormattedRe = regexp.MustCompile(`(?i)^\d+\s*GB\s+(5G\+?|4G|LTE)`)
	freedomCardRe      = regexp.MustCompile(`(?i)^plan-card-(\d+)(gb|mb)-?(\d+g|5g\+?|4g|lte|data)?`)
)

// NormalizeFreedomPlanName rewrites Freedom's DOM-derived names such as
// "plan-card-10gb-5g" into "10GB 5G+". Other names pass through unchanged.
func NormalizeFreedomPlanName(name, dataAmount, network string) string {
	if name == "" || freedomFormattedRe.MatchString(name) {
		return name
	}
	m := freedomCardRe.FindStringSubmatch(name)
	if m == nil {
		return name
	}

	amount, unit := m[1], strings.ToUpper(m[2])
	netPart := strings.ToUpper(m[3])
	switch netPart {
	case "5G":
		netPart = "5G+"
	case "", "DATA":
		netPart = networkLabel(network)
	}
	return fmt.Sprintf("%s%s %s", amount, unit, netPart)
}

// networkLabel maps a free-form network field to Freedom's label, defaulting to 5G+.
func networkLabel(network string) string {
	n := strings.ToUpper(network)
	switch {
	case strings.Contains(n, "5G"):
		return "5G+"
	case strings.Contains(n, "4G"), strings.Contains(n, "LTE"):
		return "4G LTE"
	default:
		return "5G+"
	}
}

// NormalizeRecord flattens a plan into the record shape the dashboard table reads.
func NormalizeRecord(brand, scenario string, plan model.Plan) model.Record {
	name := plan.PlanName
	if strings.EqualFold(brand, "freedom") && name != "" {
		name = NormalizeFreedomPlanName(name, plan.DataAmount, plan.NetworkLabel())
	}

	rec := model.Record{
		Brand:                     orDefault(titleCase(brand), "Unknown"),
		Scenario:                  orDefault(scenario, "Unknown"),
		Name:                      orDefault(name, "N/A"),
		Price:                     orDefault(plan.CurrentPrice, "N/A"),
		RegularPrice:              plan.RegularPrice,
		Data:                      orDefault(plan.DataAmount, "N/A"),
		Network:                   plan.NetworkSpeed,
		Features:                  firstList(plan.Features, plan.OtherFeatures),
		SpeedFeatures:             firstList(plan.SpeedFeatures),
		RoamingFeatures:           firstList(plan.RoamingFeatures),
		InternationalTextFeatures: firstList(plan.InternationalTextFeatures),
		CallingFeatures:           firstList(plan.CallingFeatures),
		OtherFeatures:             firstList(plan.OtherFeatures),
		Roaming:                   plan.Roaming,
		BundledPrice:              plan.BundledPrice,
		Promotions:                firstList(plan.Promotions, plan.BonusOffers),
	}
	if rec.Roaming == nil {
		rec.Roaming = map[string]any{}
	}
	if rec.BundledPrice == nil {
		rec.BundledPrice = map[string]any{}
	}
	if c := plan.RoamingClassification(); c != "" {
		rec.RoamingClassification = &c
	}
	return rec
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// firstList returns the first non-empty list, or an empty one.
func firstList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return []string{}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
