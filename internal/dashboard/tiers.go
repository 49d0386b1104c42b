// Package dashboard turns a consolidated dataset into the comparison grid and detailed table views.
package dashboard

import "fmt"

// Tier is a band of plans grouped by data allowance and price.
type Tier struct {
	Name        string
	DataMin     float64
	DataMax     float64
	PriceMin    float64
	PriceMax    float64
	OpenEnded   bool
	Gradient    string
	BorderColor string
}

// Tiers in display order.
var Tiers = []Tier{
	{Name: "Basic", DataMin: 0, DataMax: 3, PriceMin: 15, PriceMax: 35,
		Gradient: "linear-gradient(135deg, #8569C4 0%, #7069CC 100%)", BorderColor: "#8569C4"},
	{Name: "Standard", DataMin: 10, DataMax: 50, PriceMin: 34, PriceMax: 55,
		Gradient: "linear-gradient(135deg, #7069CC 0%, #5D54A2 100%)", BorderColor: "#7069CC"},
	{Name: "Advanced", DataMin: 60, DataMax: 80, PriceMin: 39, PriceMax: 70,
		Gradient: "linear-gradient(135deg, #5D54A2 0%, #36366D 100%)", BorderColor: "#5D54A2"},
	{Name: "Premium", DataMin: 100, DataMax: 175, PriceMin: 59, PriceMax: 85,
		Gradient: "linear-gradient(135deg, #36366D 0%, #141E41 100%)", BorderColor: "#36366D"},
	{Name: "Elite", DataMin: 200, DataMax: 250, PriceMin: 69, PriceMax: 105, OpenEnded: true,
		Gradient: "linear-gradient(135deg, #141E41 0%, #36366D 100%)", BorderColor: "#141E41"},
}

// Brands in column order.
var Brands = []string{"Bell", "Fido", "Freedom", "Koodo", "Rogers", "Telus", "Virgin"}

// TierByName looks up a tier.
func TierByName(name string) (Tier, bool) {
	for _, t := range Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// DataLabel renders the data band, e.g. "0-3 GB" or "200+ GB".
func (t Tier) DataLabel() string {
	if t.OpenEnded {
		return fmt.Sprintf("%g+ GB", t.DataMin)
	}
	return fmt.Sprintf("%g-%g GB", t.DataMin, t.DataMax)
}

// PriceLabel renders the price band, e.g. "$15-$35/mo".
func (t Tier) PriceLabel() string {
	return fmt.Sprintf("$%g-$%g/mo", t.PriceMin, t.PriceMax)
}

func (t Tier) containsData(gb float64) bool {
	if t.OpenEnded {
		return gb >= t.DataMin
	}
	return gb >= t.DataMin && gb <= t.DataMax
}

func (t Tier) containsPrice(price float64) bool {
	return price >= t.PriceMin && price <= t.PriceMax
}

// Categorize places a plan in the first tier matching both data and price.
// Plans outside every price band fall back to data alone; data gaps between
// bands round down to the lower band.
func Categorize(gb, price float64) string {
	for _, t := range Tiers {
		if t.containsData(gb) && t.containsPrice(price) {
			return t.Name
		}
	}

	switch {
	case gb <= 3:
		return "Basic"
	case gb >= 10 && gb <= 50:
		return "Standard"
	case gb >= 60 && gb <= 80:
		return "Advanced"
	case gb >= 100 && gb <= 175:
		return "Premium"
	case gb >= 200:
		return "Elite"
	}

	switch {
	case gb < 10:
		return "Basic"
	case gb < 60:
		return "Standard"
	case gb < 100:
		return "Advanced"
	default:
		return "Premium"
	}
}
