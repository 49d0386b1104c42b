package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{
  "metadata": {"event_id": "20251103_100000", "brands": ["telus", "fido"]},
  "brands": {
    "telus": {"scenarios": {
      "1_line_mobile_only": {"plans": [
        {"planName": "Essential 60", "currentPrice": "$55/mo", "dataAmount": "60GB", "networkSpeed": "5G+",
         "speedFeatures": ["5G+ speeds", ""], "roaming": {"classification": "US included"}},
        {"planName": "Talk & Text", "currentPrice": "$15", "dataAmount": "pay-as-you-go"},
        {"planName": "", "currentPrice": "$40"},
        {"planName": "No price", "currentPrice": "call us"}
      ]},
      "2_line_mobile_only": {"plans": [
        {"planName": "Essential 60", "currentPrice": "$55/mo", "dataAmount": "60GB"},
        {"planName": "Family 250", "regularPrice": "$95", "dataAmount": "250 GB", "network": "5G"}
      ]},
      "1_line_bundled": {"plans": [
        {"planName": "Essential 60", "currentPrice": "$55/mo", "dataAmount": "60GB"}
      ]}
    }},
    "fido": {"scenarios": {
      "1_line_mobile_only": {"plans": [
        {"planName": "Fido 500MB", "currentPrice": "$20", "dataAmount": "500MB"}
      ]}
    }}
  }
}`

func loadFixture(t *testing.T) *model.Dataset {
	t.Helper()
	var ds model.Dataset
	require.NoError(t, json.Unmarshal([]byte(fixture), &ds))
	return &ds
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$30", 30, true},
		{"$30.50 per month", 30.5, true},
		{"  65/mo ", 65, true},
		{"", 0, false},
		{"free", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDataAmount(t *testing.T) {
	tests := map[string]float64{
		"":              0,
		"60GB":          60,
		"100 GB 5G+":    100,
		"500MB":         0.5,
		"1.5 GB":        1.5,
		"Pay-as-you-go": 0,
		"No data":       0,
		"N/A":           0,
		"Unlimited":     0,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.InDelta(t, want, ParseDataAmount(in), 1e-9)
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		gb, price float64
		want      string
	}{
		{2, 20, "Basic"},
		{20, 40, "Standard"},
		{60, 55, "Advanced"},
		{100, 65, "Premium"},
		{250, 95, "Elite"},
		{500, 100, "Elite"},
		// price outside every band, data-only fallback
		{60, 200, "Advanced"},
		{3, 99, "Basic"},
		// data gaps round down
		{5, 99, "Basic"},
		{55, 99, "Standard"},
		{90, 99, "Advanced"},
		{180, 10, "Premium"},
		// overlapping price bands pick the first data+price match
		{0, 34, "Basic"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.gb, tt.price), "gb=%v price=%v", tt.gb, tt.price)
	}
}

func TestTierLabels(t *testing.T) {
	basic, ok := TierByName("Basic")
	require.True(t, ok)
	assert.Equal(t, "0-3 GB", basic.DataLabel())
	assert.Equal(t, "$15-$35/mo", basic.PriceLabel())

	elite, _ := TierByName("Elite")
	assert.Equal(t, "200+ GB", elite.DataLabel())

	_, ok = TierByName("Platinum")
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Short name", Truncate("Short name"))
	assert.Equal(t, "abcdefghijklmnopqrstuvwxy", Truncate("abcdefghijklmnopqrstuvwxy"))
	assert.Equal(t, "Unlimited Ultra Premiu...", Truncate("Unlimited Ultra Premium 5G+ Plan"))
}

func TestGridPlans_AllScenariosDeduplicates(t *testing.T) {
	ds := loadFixture(t)

	plans := GridPlans(ds, "")

	var essential []GridPlan
	for _, p := range plans {
		if p.PlanName == "Essential 60" {
			essential = append(essential, p)
		}
	}
	require.Len(t, essential, 1)
	assert.Equal(t, "1_line_mobile_only", essential[0].Scenario)
	assert.Equal(t, "Telus", essential[0].Brand)
	assert.Equal(t, "Advanced", essential[0].Tier)

	// unnamed and unpriced plans are dropped
	assert.Len(t, plans, 4)
	for _, p := range plans {
		assert.NotEqual(t, "No price", p.PlanName)
	}
}

func TestGridPlans_SingleScenarioKeepsDuplicates(t *testing.T) {
	ds := loadFixture(t)

	plans := GridPlans(ds, "2_line_mobile_only")
	require.Len(t, plans, 2)

	family := plans[1]
	assert.Equal(t, "Family 250", family.PlanName)
	assert.Equal(t, "$95", family.PriceStr)
	assert.Equal(t, 250.0, family.DataGB)
	assert.Equal(t, "Elite", family.Tier)
}

func TestScenarioPriority(t *testing.T) {
	assert.Equal(t, 0, ScenarioPriority("1_line_mobile_only"))
	assert.Equal(t, 1, ScenarioPriority("1_line_bundled"))
	assert.Equal(t, 2, ScenarioPriority("1_line_other"))
	assert.Equal(t, 3, ScenarioPriority("2_line_bundled"))
	assert.Equal(t, 4, ScenarioPriority("3_line_mobile_only"))
	assert.Equal(t, 5, ScenarioPriority("4_line_mobile_only"))
	assert.Equal(t, 6, ScenarioPriority("single_pricing"))
}

func TestOrganizeByTier(t *testing.T) {
	plans := []GridPlan{
		{Brand: "Telus", PlanName: "B", DataGB: 50, Price: 50, Tier: "Standard"},
		{Brand: "Telus", PlanName: "A", DataGB: 20, Price: 40, Tier: "Standard"},
		{Brand: "Fido", PlanName: "F", DataGB: 20, Price: 40, Tier: "Standard"},
		{Brand: "Telus", PlanName: "X", DataGB: 250, Price: 120, Tier: "Elite"},
	}

	organized := OrganizeByTier(plans, []string{"Telus"}, 0, 100)

	require.Len(t, organized, len(Tiers))
	for _, tier := range Tiers {
		assert.Len(t, organized[tier.Name], len(Brands))
	}

	standard := organized["Standard"]["Telus"]
	require.Len(t, standard, 2)
	assert.Equal(t, "A", standard[0].PlanName)
	assert.Equal(t, "B", standard[1].PlanName)
	assert.Empty(t, organized["Standard"]["Fido"])
	assert.Empty(t, organized["Elite"]["Telus"])

	summary := Summarize(organized)
	require.Len(t, summary, len(Tiers))
	assert.Equal(t, "Standard", summary[1].Tier)
	assert.Equal(t, 2, summary[1].Count)
	require.NotNil(t, summary[1].MinPrice)
	assert.Equal(t, 40.0, *summary[1].MinPrice)
	assert.Equal(t, 50.0, *summary[1].MaxPrice)
	assert.Nil(t, summary[0].MinPrice)
	assert.Equal(t, "200+ GB", summary[4].DataLabel)
}

func TestPriceBounds(t *testing.T) {
	_, _, ok := PriceBounds(nil)
	assert.False(t, ok)

	lo, hi, ok := PriceBounds([]GridPlan{{Price: 40}, {Price: 15}, {Price: 95}})
	require.True(t, ok)
	assert.Equal(t, 15.0, lo)
	assert.Equal(t, 95.0, hi)
}

func TestScenariosAndDefault(t *testing.T) {
	ds := loadFixture(t)

	scenarios := Scenarios(ds)
	assert.Equal(t, []string{"1_line_bundled", "1_line_mobile_only", "2_line_mobile_only"}, scenarios)
	assert.Equal(t, "1_line_mobile_only", ChooseScenario(scenarios))
	assert.Equal(t, "", ChooseScenario([]string{"2_line_bundled"}))
}

func TestTableRows(t *testing.T) {
	ds := loadFixture(t)

	rows := TableRows(ds)
	// every named plan, priced or not
	assert.Len(t, rows, 7)

	var essential Row
	for _, r := range rows {
		if r.PlanName == "Essential 60" && r.Scenario == "1_line_mobile_only" {
			essential = r
		}
	}
	assert.Equal(t, "Telus", essential.Brand)
	assert.Equal(t, "$55/mo", essential.Price)
	assert.Equal(t, "5G+", essential.Network)
	assert.Equal(t, "5G+ speeds", essential.SpeedFeatures)
	assert.Equal(t, "US included", essential.RoamingClassification)

	var family Row
	for _, r := range rows {
		if r.PlanName == "Family 250" {
			family = r
		}
	}
	assert.Equal(t, "5G", family.Network)
	assert.Equal(t, "$95", family.Price)
}

func TestFilterRows(t *testing.T) {
	rows := TableRows(loadFixture(t))

	assert.Empty(t, FilterRows(rows, "", nil))
	assert.Len(t, FilterRows(rows, "Fido", []string{"1_line_mobile_only"}), 1)
	assert.Len(t, FilterRows(rows, "", []string{"1_line_mobile_only"}), 4)
	assert.Len(t, FilterRows(rows, "Telus", []string{"1_line_bundled", "2_line_mobile_only"}), 3)

	assert.Equal(t, []string{"Fido", "Telus"}, RowBrands(rows))
	assert.Equal(t, []string{"1_line_mobile_only"}, RowScenarios(rows, "Fido"))
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "a, b", JoinList([]string{"a", "", "b"}))
	assert.Equal(t, "", JoinList(nil))
}
