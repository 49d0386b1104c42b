package extractor

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("prompt").
	Funcs(template.FuncMap{"upper": strings.ToUpper}).
	Parse(promptText))

// Request is one scenario to extract.
type Request struct {
	Carrier  string
	Scenario string
	Lines    int
	Bundled  bool
	URL      string
	HTML     string
}

// PricingMode is "Bundled" or "Mobile Only".
func (r Request) PricingMode() string {
	if r.Bundled {
		return "Bundled"
	}
	return "Mobile Only"
}

// RequestFromMeta builds a request from the header comments of a stripped page.
func RequestFromMeta(carrier, scenario string, meta map[string]string, html string) Request {
	return Request{
		Carrier:  carrier,
		Scenario: scenario,
		Lines:    NormalizeLines(meta["Lines"]),
		Bundled:  NormalizeBundled(meta["Bundled"]),
		URL:      meta["Source URL"],
		HTML:     html,
	}
}

// NormalizeLines converts a line count of any type, falling back to 1.
func NormalizeLines(v any) int {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case float64:
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 1
		}
		n = parsed
	default:
		return 1
	}
	if n < 1 {
		return 1
	}
	return n
}

// NormalizeBundled accepts a bool or the string "true" in any case.
func NormalizeBundled(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

// BuildPrompt renders the extraction prompt for r.
func BuildPrompt(r Request) (string, error) {
	r.Lines = NormalizeLines(r.Lines)
	data := struct {
		Request
		PricingMode string
	}{Request: r, PricingMode: r.PricingMode()}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
