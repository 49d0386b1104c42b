// Package stripper reduces carrier plan pages to the minimal HTML the LLM
// extractor needs.
package stripper

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CharsPerToken approximates LLM tokenisation.
const CharsPerToken = 4

const (
	maxFeatures  = 12
	maxDiscounts = 10
	unknown      = "unknown"
)

var (
	dollarRe       = regexp.MustCompile(`\$\d+(?:\.\d+)?`)
	monthlyPriceRe = regexp.MustCompile(`(?i)\$\d+(?:\.\d+)?(?:\s*per\s*mo|\s*/mo)?`)
	dataRe         = regexp.MustCompile(`(?i)(\d+\s*GB|Unlimited)`)
	trailingNumRe  = regexp.MustCompile(`\d+$`)
	bulletRe       = regexp.MustCompile(`^\s*[•\-\*]\s*`)
	beforeRe       = regexp.MustCompile(`(?i)price before incentives`)
)

var nameLabels = map[string]bool{
	"features": true, "plan perks": true, "after auto-pay": true,
	"price before incentives": true, "rogers satellite included": true,
	"get 3% cash back value with a rogers red credit card": true,
}

var discountKeywords = []string{"discount", "savings", "price lock", "bundle", "family", "per line"}

// Stats describes the size reduction of one strip.
type Stats struct {
	OriginalSize     int     `json:"original_size"`
	StrippedSize     int     `json:"stripped_size"`
	OriginalTokens   int     `json:"original_tokens"`
	StrippedTokens   int     `json:"stripped_tokens"`
	TokensSaved      int     `json:"tokens_saved"`
	ReductionPercent float64 `json:"reduction_percent"`
	PlanCount        int     `json:"plan_count"`
	TilesBeforeDedup int     `json:"tiles_before_dedup"`
	TilesAfterDedup  int     `json:"tiles_after_dedup"`
}

// Result is the stripped page and its stats.
type Result struct {
	HTML     string `json:"html"`
	Stats    Stats  `json:"stats"`
	Fallback bool   `json:"fallback"`
}

// Plan is the normalised content of one tile.
type Plan struct {
	Name         string
	Price        string
	RegularPrice string
	Data         string
	Network      string
	Features     []string
	Discounts    []string
}

// Strip strips raw using the built-in profile of carrier.
func Strip(carrier, raw string) (Result, error) {
	return StripWithProfile(ProfileFor(carrier), raw)
}

// StripWithProfile extracts plan tiles described by p. Pages without matching
// tiles get the generic cleanup.
func StripWithProfile(p Profile, raw string) (Result, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse html: %w", err)
	}

	tiles := findTiles(doc, p.Tiles)
	if len(tiles) == 0 {
		out, err := cleanup(doc)
		if err != nil {
			return Result{}, err
		}
		return Result{HTML: out, Stats: newStats(raw, out, 0, 0, 0), Fallback: true}, nil
	}

	seen := make(map[string]bool)
	var plans []Plan
	for _, tile := range tiles {
		plan, ok := extractPlan(p, tile)
		if !ok {
			continue
		}
		key := plan.Name + "|" + plan.Price + "|" + plan.Data
		if seen[key] {
			continue
		}
		seen[key] = true
		plans = append(plans, plan)
	}

	out := Render(plans)
	return Result{HTML: out, Stats: newStats(raw, out, len(plans), len(tiles), len(plans))}, nil
}

func newStats(raw, out string, plans, before, after int) Stats {
	s := Stats{
		OriginalSize:     utf8.RuneCountInString(raw),
		StrippedSize:     utf8.RuneCountInString(out),
		PlanCount:        plans,
		TilesBeforeDedup: before,
		TilesAfterDedup:  after,
	}
	s.OriginalTokens = s.OriginalSize / CharsPerToken
	s.StrippedTokens = s.StrippedSize / CharsPerToken
	s.TokensSaved = s.OriginalTokens - s.StrippedTokens
	if s.OriginalSize > 0 {
		pct := float64(s.OriginalSize-s.StrippedSize) / float64(s.OriginalSize) * 100
		s.ReductionPercent = math.Round(pct*100) / 100
	}
	return s
}

func extractPlan(p Profile, tile *html.Node) (Plan, bool) {
	name := planName(p, tile)
	if name == "" {
		return Plan{}, false
	}
	plan := Plan{
		Name:         name,
		Price:        finalPrice(tile),
		RegularPrice: regularPrice(tile),
		Data:         dataAmount(tile),
		Network:      network(tile),
		Features:     features(tile),
	}
	for _, f := range plan.Features {
		lower := strings.ToLower(f)
		for _, kw := range discountKeywords {
			if strings.Contains(lower, kw) {
				plan.Discounts = append(plan.Discounts, f)
				break
			}
		}
		if len(plan.Discounts) == maxDiscounts {
			break
		}
	}
	return plan, true
}

func planName(p Profile, tile *html.Node) string {
	if p.NameClass != "" {
		for _, n := range findAll(tile, func(n *html.Node) bool {
			class, _ := attr(n, "class")
			return n.Type == html.ElementNode && strings.Contains(class, p.NameClass)
		}) {
			if t := text(n, atom.Sup); t != "" {
				return t
			}
		}
	}
	for _, tag := range p.NameTags {
		for _, n := range findAll(tile, isElement(tag)) {
			if t := text(n, atom.Sup); t != "" && !strings.Contains(t, "$") {
				return t
			}
		}
	}
	for _, n := range findAll(tile, isElement("p")) {
		if t := text(n, atom.Sup); looksLikeName(t) {
			return t
		}
	}
	return ""
}

// looksLikeName accepts short capitalised phrases that are not prices or labels.
func looksLikeName(t string) bool {
	if utf8.RuneCountInString(t) < 2 || utf8.RuneCountInString(t) >= 50 {
		return false
	}
	lower := strings.ToLower(t)
	if nameLabels[lower] || strings.Contains(t, "$") ||
		strings.Contains(lower, "per mo") || strings.Contains(lower, "/mo") {
		return false
	}
	first, _ := utf8.DecodeRuneInString(t)
	return unicode.IsUpper(first) && len(strings.Fields(t)) <= 3
}

func isPriceElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "ds-price" {
		return true
	}
	class, _ := attr(n, "class")
	return strings.Contains(strings.ToLower(class), "price")
}

func finalPrice(tile *html.Node) string {
	for _, n := range findAll(tile, isPriceElement) {
		t := text(n, atom.Sup)
		if beforeRe.MatchString(t) {
			continue
		}
		if m := monthlyPriceRe.FindString(t); m != "" {
			return strings.TrimSpace(m)
		}
	}
	for _, n := range findAll(tile, isElement("span")) {
		t := text(n, atom.Sup)
		lower := strings.ToLower(t)
		if !strings.Contains(lower, "per mo") && !strings.Contains(lower, "/mo") {
			continue
		}
		if m := dollarRe.FindString(t); m != "" {
			return m + "/mo"
		}
	}
	return unknown
}

func regularPrice(tile *html.Node) string {
	for _, n := range findAll(tile, func(n *html.Node) bool {
		return n.Type == html.TextNode && beforeRe.MatchString(n.Data)
	}) {
		scope := n.Parent
		if scope == nil {
			continue
		}
		if m := dollarRe.FindString(text(scope)); m != "" {
			return m
		}
		if scope.Parent != nil {
			if m := dollarRe.FindString(text(scope.Parent)); m != "" {
				return m
			}
		}
	}
	return ""
}

func dataAmount(tile *html.Node) string {
	for _, li := range findAll(tile, isElement("li")) {
		if m := dataRe.FindString(text(li)); m != "" {
			return m
		}
	}
	return unknown
}

func network(tile *html.Node) string {
	t := text(tile)
	switch {
	case strings.Contains(t, "5G+"):
		return "5G+"
	case strings.Contains(t, "5G"):
		return "5G"
	case strings.Contains(t, "LTE"), strings.Contains(t, "4G"):
		return "4G LTE"
	}
	return ""
}

// features flattens every list item of the tile. Nested lists contribute their
// own items rather than being folded into the parent.
func features(tile *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	for _, li := range findAll(tile, isElement("li")) {
		t := text(li, atom.Sup, atom.Ul, atom.Ol)
		lower := strings.ToLower(t)
		if t == "" || lower == "features" || lower == "feature" {
			continue
		}
		t = strings.TrimSpace(trailingNumRe.ReplaceAllString(t, ""))
		t = bulletRe.ReplaceAllString(t, "")
		t = strings.Join(strings.Fields(t), " ")
		if utf8.RuneCountInString(t) <= 3 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxFeatures {
			break
		}
	}
	return out
}

// Render writes plans as minimal <div class="plan"> blocks.
func Render(plans []Plan) string {
	esc := html.EscapeString
	var parts []string
	for _, p := range plans {
		parts = append(parts, `<div class="plan">`, "  <h2>"+esc(p.Name)+"</h2>")
		if p.RegularPrice != "" && p.Price != "" && p.RegularPrice != p.Price {
			parts = append(parts, `  <p class="regular-price">Regular price: `+esc(p.RegularPrice)+`</p>`)
		}
		if p.Price != "" && p.Price != unknown {
			parts = append(parts, `  <p class="price">Current price: `+esc(p.Price)+`</p>`)
		}
		if p.Data != "" && p.Data != unknown {
			parts = append(parts, `  <p class="data">Data: `+esc(p.Data)+`</p>`)
		}
		if p.Network != "" {
			parts = append(parts, `  <p class="network">`+esc(p.Network)+`</p>`)
		}
		parts = appendList(parts, "features", p.Features)
		parts = appendList(parts, "discounts", p.Discounts)
		parts = append(parts, `</div>`)
	}
	return strings.Join(parts, "\n")
}

func appendList(parts []string, class string, items []string) []string {
	if len(items) == 0 {
		return parts
	}
	parts = append(parts, `  <ul class="`+class+`">`)
	for _, item := range items {
		parts = append(parts, "    <li>"+html.EscapeString(item)+"</li>")
	}
	return append(parts, "  </ul>")
}

var removedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Svg: true,
	atom.Iframe: true, atom.Button: true, atom.Form: true, atom.Sup: true,
}

var voidElements = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.Img: true, atom.Input: true, atom.Meta: true, atom.Link: true,
}

// cleanup is the generic path: noise elements and comments go, attributes other
// than class are dropped and empty elements are collapsed.
func cleanup(doc *html.Node) (string, error) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch {
			case c.Type == html.CommentNode,
				c.Type == html.ElementNode && (removedElements[c.DataAtom] || c.Data == "svg"):
				n.RemoveChild(c)
			case c.Type == html.ElementNode:
				keep := c.Attr[:0]
				for _, a := range c.Attr {
					if a.Key == "class" {
						keep = append(keep, a)
					}
				}
				c.Attr = keep
				walk(c)
				if isEmpty(c) {
					n.RemoveChild(c)
				}
			}
			c = next
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return buf.String(), nil
}

func isEmpty(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Html, atom.Head, atom.Body:
		return false
	}
	if voidElements[n.DataAtom] {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return false
		}
	}
	return true
}
