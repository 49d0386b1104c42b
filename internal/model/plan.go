package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Plan is a single rate plan as produced by the LLM extractor.
// Decoding is tolerant: mistyped lists decode as empty, mistyped objects as nil,
// and fields the extractor adds beyond the known set are preserved in Extra.
type Plan struct {
	Index                     int
	PlanName                  string
	RegularPrice              string
	CurrentPrice              string
	BundledPrice              map[string]any
	DataAmount                string
	NetworkSpeed              string
	Network                   string
	Roaming                   map[string]any
	Features                  []string
	SpeedFeatures             []string
	RoamingFeatures           []string
	InternationalTextFeatures []string
	CallingFeatures           []string
	OtherFeatures             []string
	BonusOffers               []string
	Promotions                []string
	OtherIdentifiers          map[string]any

	Extra map[string]json.RawMessage
}

var knownPlanKeys = map[string]bool{
	"index": true, "planName": true, "regularPrice": true, "currentPrice": true,
	"bundledPrice": true, "dataAmount": true, "networkSpeed": true, "network": true,
	"roaming": true, "features": true, "speedFeatures": true, "roamingFeatures": true,
	"internationalTextFeatures": true, "callingFeatures": true, "otherFeatures": true,
	"bonusOffers": true, "promotions": true, "otherIdentifiers": true,
}

// UnmarshalJSON decodes a plan object field by field.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Plan{
		Index:                     intField(raw["index"]),
		PlanName:                  stringField(raw["planName"]),
		RegularPrice:              stringField(raw["regularPrice"]),
		CurrentPrice:              stringField(raw["currentPrice"]),
		BundledPrice:              objectField(raw["bundledPrice"]),
		DataAmount:                stringField(raw["dataAmount"]),
		NetworkSpeed:              stringField(raw["networkSpeed"]),
		Network:                   stringField(raw["network"]),
		Roaming:                   objectField(raw["roaming"]),
		Features:                  stringListField(raw["features"]),
		SpeedFeatures:             stringListField(raw["speedFeatures"]),
		RoamingFeatures:           stringListField(raw["roamingFeatures"]),
		InternationalTextFeatures: stringListField(raw["internationalTextFeatures"]),
		CallingFeatures:           stringListField(raw["callingFeatures"]),
		OtherFeatures:             stringListField(raw["otherFeatures"]),
		BonusOffers:               stringListField(raw["bonusOffers"]),
		Promotions:                stringListField(raw["promotions"]),
		OtherIdentifiers:          objectField(raw["otherIdentifiers"]),
	}

	for k, v := range raw {
		if knownPlanKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

// MarshalJSON writes the known fields and any preserved extras.
// Empty strings are written as null, matching the extractor's output contract.
func (p Plan) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"index":                     p.Index,
		"planName":                  nullable(p.PlanName),
		"regularPrice":              nullable(p.RegularPrice),
		"currentPrice":              nullable(p.CurrentPrice),
		"bundledPrice":              nullableObject(p.BundledPrice),
		"dataAmount":                nullable(p.DataAmount),
		"networkSpeed":              nullable(p.NetworkSpeed),
		"roaming":                   nullableObject(p.Roaming),
		"speedFeatures":             emptyList(p.SpeedFeatures),
		"roamingFeatures":           emptyList(p.RoamingFeatures),
		"internationalTextFeatures": emptyList(p.InternationalTextFeatures),
		"callingFeatures":           emptyList(p.CallingFeatures),
		"otherFeatures":             emptyList(p.OtherFeatures),
		"bonusOffers":               emptyList(p.BonusOffers),
		"otherIdentifiers":          nullableObject(p.OtherIdentifiers),
	}
	if p.Network != "" {
		out["network"] = p.Network
	}
	if p.Features != nil {
		out["features"] = p.Features
	}
	if p.Promotions != nil {
		out["promotions"] = p.Promotions
	}
	for k, v := range p.Extra {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}

	return json.Marshal(out)
}

// NetworkLabel returns networkSpeed, falling back to network.
func (p Plan) NetworkLabel() string {
	if p.NetworkSpeed != "" {
		return p.NetworkSpeed
	}
	return p.Network
}

// DisplayPrice returns currentPrice, falling back to regularPrice.
func (p Plan) DisplayPrice() string {
	if p.CurrentPrice != "" {
		return p.CurrentPrice
	}
	return p.RegularPrice
}

// RoamingClassification returns roaming.classification when it is a string.
func (p Plan) RoamingClassification() string {
	if p.Roaming == nil {
		return ""
	}
	s, _ := p.Roaming["classification"].(string)
	return s
}

// Identifier returns otherIdentifiers[key] when it is a non-empty string.
func (p Plan) Identifier(key string) string {
	if p.OtherIdentifiers == nil {
		return ""
	}
	s, _ := p.OtherIdentifiers[key].(string)
	return s
}

// DecodePlans decodes a JSON array of plans, dropping entries that are not objects.
// A value that is not an array yields nil.
func DecodePlans(raw json.RawMessage) []Plan {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	plans := make([]Plan, 0, len(items))
	for _, item := range items {
		var p Plan
		if err := json.Unmarshal(item, &p); err != nil {
			continue
		}
		plans = append(plans, p)
	}
	return plans
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func intField(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
	}
	return 0
}

// boolField accepts JSON booleans, "true"/"false"-style strings and 0/1.
func boolField(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y":
			return true
		}
		v, _ := strconv.ParseBool(strings.TrimSpace(s))
		return v
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, _ := n.Float64()
		return f != 0
	}
	return false
}

func objectField(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func stringListField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableObject(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func emptyList(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
