package stripper

import "strings"

// Matcher selects plan tile elements. Every non-empty criterion must hold.
type Matcher struct {
	// Tag is the element name, e.g. "ds-tile".
	Tag string `yaml:"tag"`
	// Class is a substring of the class attribute.
	Class string `yaml:"class"`
	// TestIDs are substrings that must all appear in data-testid.
	TestIDs []string `yaml:"test_ids"`
	// Attr is an attribute the element must carry.
	Attr string `yaml:"attr"`
}

// Profile describes how plan tiles look on one carrier's page.
type Profile struct {
	Carrier string    `yaml:"carrier"`
	Tiles   []Matcher `yaml:"tiles"`
	// NameClass, if set, marks the element holding the plan name.
	NameClass string `yaml:"name_class"`
	// NameTags are tried, in order, before the paragraph heuristic.
	NameTags []string `yaml:"name_tags"`
}

var headings = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

// Profiles are the built-in tile layouts, keyed by carrier.
var Profiles = map[string]Profile{
	"rogers": {
		Carrier: "rogers",
		Tiles: []Matcher{
			{Tag: "ds-tile"}, {Tag: "dsa-vertical-tile"},
			{Class: "dsa-vertical-tile"}, {Class: "ds-tile"},
		},
	},
	"fido": {
		Carrier:   "fido",
		Tiles:     []Matcher{{Tag: "ds-tile"}, {Class: "ds-tile"}, {Class: "plan-card"}},
		NameClass: "text-title-5",
		NameTags:  headings,
	},
	"telus": {
		Carrier: "telus",
		Tiles: []Matcher{
			{TestIDs: []string{"mfe-rate-plan-tile-", "-container"}},
			{TestIDs: []string{"mfe-rate-plan-card-id-"}},
		},
		NameTags: []string{"h3"},
	},
	"koodo": {
		Carrier: "koodo",
		Tiles: []Matcher{
			{TestIDs: []string{"mfe-rate-plan-tile-", "-container"}},
			{TestIDs: []string{"mfe-rate-plan-card-id-"}},
		},
		NameTags: []string{"h3"},
	},
	"bell": {
		Carrier:  "bell",
		Tiles:    []Matcher{{Attr: "data-product-id"}},
		NameTags: []string{"h3"},
	},
	"freedom": {
		Carrier:  "freedom",
		Tiles:    []Matcher{{TestIDs: []string{"planComponent"}}},
		NameTags: headings,
	},
	"virgin": {
		Carrier:  "virgin",
		Tiles:    []Matcher{{Tag: "plan-container"}},
		NameTags: headings,
	},
}

// ProfileFor returns the built-in profile of carrier. Unknown carriers get an
// empty profile, which always takes the generic cleanup path.
func ProfileFor(carrier string) Profile {
	key := strings.ToLower(carrier)
	if p, ok := Profiles[key]; ok {
		return p
	}
	return Profile{Carrier: key}
}
