// Package scraper fetches carrier plan pages and stores raw and stripped copies.
package scraper

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultScenario is the only scenario of single-page carriers.
const DefaultScenario = "1_line_mobile_only"

var scenarioNameRe = regexp.MustCompile(`^([1-4])_line_(mobile_only|bundled)$`)

// carrierOrder is the processing order when every carrier runs.
var carrierOrder = []string{"telus", "rogers", "bell", "freedom", "koodo", "fido", "virgin"}

// Scenario is one pricing context of a carrier page.
type Scenario struct {
	Name    string `yaml:"name"`
	Lines   int    `yaml:"lines"`
	Bundled bool   `yaml:"bundled"`
	URL     string `yaml:"url"`
}

// Carrier is a catalogue entry.
type Carrier struct {
	Name         string     `yaml:"-"`
	WaitSelector string     `yaml:"wait_selector"`
	Scenarios    []Scenario `yaml:"scenarios"`
}

// Scenario returns the named scenario.
func (c Carrier) Scenario(name string) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Catalog lists the carriers the pipeline knows how to scrape.
type Catalog struct {
	Carriers map[string]Carrier `yaml:"carriers"`
}

// LoadCatalog reads a YAML catalogue.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read carrier catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalogue.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse carrier catalog: %w", err)
	}
	normalized := make(map[string]Carrier, len(c.Carriers))
	for name, carrier := range c.Carriers {
		name = strings.ToLower(name)
		carrier.Name = name
		normalized[name] = carrier
	}
	c.Carriers = normalized
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks scenario names and URLs.
func (c *Catalog) Validate() error {
	if len(c.Carriers) == 0 {
		return fmt.Errorf("carrier catalog is empty")
	}
	for name, carrier := range c.Carriers {
		if len(carrier.Scenarios) == 0 {
			return fmt.Errorf("carrier %s has no scenarios", name)
		}
		seen := make(map[string]bool)
		for _, s := range carrier.Scenarios {
			if !scenarioNameRe.MatchString(s.Name) {
				return fmt.Errorf("carrier %s: invalid scenario name %q", name, s.Name)
			}
			if seen[s.Name] {
				return fmt.Errorf("carrier %s: duplicate scenario %s", name, s.Name)
			}
			seen[s.Name] = true
			if s.URL == "" {
				return fmt.Errorf("carrier %s: scenario %s has no url", name, s.Name)
			}
		}
	}
	return nil
}

// Carrier returns the named carrier.
func (c *Catalog) Carrier(name string) (Carrier, bool) {
	carrier, ok := c.Carriers[strings.ToLower(name)]
	return carrier, ok
}

// Names lists the carriers, known carriers first in their usual order, the rest sorted.
func (c *Catalog) Names() []string {
	var names []string
	known := make(map[string]bool)
	for _, name := range carrierOrder {
		known[name] = true
		if _, ok := c.Carriers[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range c.Carriers {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// ParseScenarioName returns the line count and bundling of a scenario name.
func ParseScenarioName(name string) (lines int, bundled bool, ok bool) {
	m := scenarioNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false, false
	}
	lines, _ = strconv.Atoi(m[1])
	return lines, m[2] == "bundled", true
}

// multiScenario builds the eight line-count by bundling scenarios of a carrier.
func multiScenario(url func(lines int, bundled bool) string) []Scenario {
	var out []Scenario
	for lines := 1; lines <= 4; lines++ {
		for _, bundled := range []bool{false, true} {
			kind := "mobile_only"
			if bundled {
				kind = "bundled"
			}
			out = append(out, Scenario{
				Name:    fmt.Sprintf("%d_line_%s", lines, kind),
				Lines:   lines,
				Bundled: bundled,
				URL:     url(lines, bundled),
			})
		}
	}
	return out
}

func single(url string) []Scenario {
	return []Scenario{{Name: DefaultScenario, Lines: 1, URL: url}}
}

// DefaultCatalog is used when no catalogue file is configured.
func DefaultCatalog() *Catalog {
	query := func(base string) func(int, bool) string {
		return func(lines int, bundled bool) string {
			return fmt.Sprintf("%s?lines=%d&bundle=%t", base, lines, bundled)
		}
	}
	carriers := map[string]Carrier{
		"telus":   {WaitSelector: `[data-testid*="mfe-rate-plan-tile"]`, Scenarios: multiScenario(query("https://www.telus.com/en/mobility/plans"))},
		"rogers":  {WaitSelector: "ds-tile, [class*=ds-tile]", Scenarios: multiScenario(query("https://www.rogers.com/plans"))},
		"bell":    {WaitSelector: "[data-product-id]", Scenarios: multiScenario(query("https://www.bell.ca/Mobility/Cell_phone_plans"))},
		"freedom": {WaitSelector: `[data-testid="planComponent"]`, Scenarios: single("https://www.freedommobile.ca/en-CA/plans")},
		"koodo":   {WaitSelector: `[data-testid*="mfe-rate-plan-tile"]`, Scenarios: single("https://www.koodomobile.com/en/rate-plans")},
		"fido":    {WaitSelector: "[class*=ds-price]", Scenarios: single("https://www.fido.ca/phones/bring-your-own-device")},
		"virgin":  {WaitSelector: "plan-container", Scenarios: single("https://www.virginplus.ca/en/plans/index.html")},
	}
	for name, c := range carriers {
		c.Name = name
		carriers[name] = c
	}
	return &Catalog{Carriers: carriers}
}
