package model

import (
	"encoding/json"
	"time"
)

// EventIDLayout is the Go layout of pipeline event IDs and filename timestamps (YYYYMMDD_HHMMSS).
const EventIDLayout = "20060102_150405"

// NewEventID formats t as an event ID.
func NewEventID(t time.Time) string {
	return t.Format(EventIDLayout)
}

// Dataset is the consolidated file served by the dashboard.
type Dataset struct {
	Metadata Metadata             `json:"metadata"`
	Brands   map[string]BrandData `json:"brands"`
	Records  []Record             `json:"records"`
}

// Metadata describes a consolidation run.
type Metadata struct {
	GeneratedAt string   `json:"generated_at"`
	TotalBrands int      `json:"total_brands"`
	Brands      []string `json:"brands"`
	RecordCount int      `json:"record_count"`
	EventID     string   `json:"event_id"`
}

// BrandData holds every scenario extracted for one brand.
type BrandData struct {
	Scenarios     map[string]ScenarioData `json:"scenarios"`
	ScenarioCount int                     `json:"scenario_count"`
}

// ScenarioData holds the plans of one pricing scenario.
type ScenarioData struct {
	SourceFiles []string `json:"source_files"`
	Plans       []Plan   `json:"plans"`
}

// UnmarshalJSON tolerates a missing or mistyped plans array.
func (s *ScenarioData) UnmarshalJSON(data []byte) error {
	var raw struct {
		SourceFiles []string        `json:"source_files"`
		Plans       json.RawMessage `json:"plans"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SourceFiles = raw.SourceFiles
	s.Plans = DecodePlans(raw.Plans)
	return nil
}

// Record is the flat, dashboard-friendly form of a plan.
type Record struct {
	Brand                     string         `json:"brand"`
	Scenario                  string         `json:"scenario"`
	Name                      string         `json:"name"`
	Price                     string         `json:"price"`
	RegularPrice              string         `json:"regular_price"`
	Data                      string         `json:"data"`
	Network                   string         `json:"network"`
	Features                  []string       `json:"features"`
	SpeedFeatures             []string       `json:"speed_features"`
	RoamingFeatures           []string       `json:"roaming_features"`
	InternationalTextFeatures []string       `json:"international_text_features"`
	CallingFeatures           []string       `json:"calling_features"`
	OtherFeatures             []string       `json:"other_features"`
	Roaming                   map[string]any `json:"roaming"`
	RoamingClassification     *string        `json:"roaming_classification"`
	BundledPrice              map[string]any `json:"bundled_price"`
	Promotions                []string       `json:"promotions"`
}

// ScenarioExtraction is the LLM output for a single scenario.
type ScenarioExtraction struct {
	Scenario        string `json:"scenario"`
	Carrier         string `json:"carrier"`
	LineCount       int    `json:"line_count"`
	Bundled         bool   `json:"bundled"`
	StateContext    string `json:"state_context,omitempty"`
	ExtractionNotes string `json:"extraction_notes,omitempty"`
	Plans           []Plan `json:"plans"`
	EventID         string `json:"eventId,omitempty"`
}

// UnmarshalJSON tolerates mistyped line counts, bundled flags and plan arrays in LLM output.
func (s *ScenarioExtraction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ScenarioExtraction{
		Scenario:        stringField(raw["scenario"]),
		Carrier:         stringField(raw["carrier"]),
		LineCount:       intField(raw["line_count"]),
		StateContext:    stringField(raw["state_context"]),
		ExtractionNotes: stringField(raw["extraction_notes"]),
		Plans:           DecodePlans(raw["plans"]),
		EventID:         stringField(raw["eventId"]),
		Bundled:         boolField(raw["bundled"]),
	}
	return nil
}

// BrandRollup gathers every scenario extraction of one carrier for one event.
// It is the input the consolidator reads.
type BrandRollup struct {
	Carrier     string                    `json:"carrier"`
	EventID     string                    `json:"event_id"`
	GeneratedAt string                    `json:"generated_at"`
	Scenarios   map[string]RollupScenario `json:"scenarios"`
}

// RollupScenario is one scenario inside a BrandRollup.
type RollupScenario struct {
	Plans []Plan `json:"plans"`
}
