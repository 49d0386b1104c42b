package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/stripper"
	"go.uber.org/zap"
)

// metadataLines is how far into a stripped file the header comments are read.
const metadataLines = 20

var (
	trailingTSRe = regexp.MustCompile(`_(\d{8}_\d{6})$`)

	// legacyScenarios maps old single-page scenario names.
	legacyScenarios = map[string]map[string]string{
		"freedom": {"single_pricing": DefaultScenario},
		"fido":    {"single_pricing": DefaultScenario},
		"virgin":  {"single_pricing": DefaultScenario},
		"koodo":   {"single_pricing": DefaultScenario},
	}
)

// Paths returns the input directories of a carrier under dataDir.
func Paths(dataDir, carrier string) (raw, stripped string) {
	base := filepath.Join(dataDir, carrier, "input")
	return filepath.Join(base, "raw_html"), filepath.Join(base, "stripped_html")
}

// ScenarioResult is the outcome of scraping one scenario.
type ScenarioResult struct {
	Success      bool            `json:"success"`
	RawFile      string          `json:"raw_file,omitempty"`
	StrippedFile string          `json:"output_file,omitempty"`
	Stats        *stripper.Stats `json:"stats,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Result is the outcome of scraping one carrier.
type Result struct {
	Carrier   string                    `json:"carrier"`
	Success   bool                      `json:"success"`
	Scenarios map[string]ScenarioResult `json:"scenarios"`
}

// Scraper fetches and strips carrier pages.
type Scraper struct {
	catalog *Catalog
	fetcher Fetcher
	dataDir string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a scraper writing under dataDir.
func New(catalog *Catalog, fetcher Fetcher, dataDir string, logger *zap.Logger) *Scraper {
	return &Scraper{
		catalog: catalog,
		fetcher: fetcher,
		dataDir: dataDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Scrape fetches every scenario of carrier. Failed scenarios are recorded and
// the rest continue; the error is non-nil only when no scenario succeeded.
func (s *Scraper) Scrape(ctx context.Context, carrier, eventID string) (*Result, error) {
	c, ok := s.catalog.Carrier(carrier)
	if !ok {
		return nil, apierrors.ScrapeFailed(carrier, "", fmt.Errorf("carrier not in catalog"))
	}

	rawDir, strippedDir := Paths(s.dataDir, c.Name)
	for _, dir := range []string{rawDir, strippedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	result := &Result{Carrier: c.Name, Scenarios: make(map[string]ScenarioResult)}
	var lastErr error
	for _, sc := range c.Scenarios {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sr, err := s.scrapeScenario(ctx, c, sc, eventID, rawDir, strippedDir)
		if err != nil {
			lastErr = err
			sr.Error = err.Error()
			s.logger.Warn("scenario scrape failed",
				zap.String("carrier", c.Name),
				zap.String("scenario", sc.Name),
				zap.Error(err))
		} else {
			result.Success = true
			s.logger.Info("scenario scraped",
				zap.String("carrier", c.Name),
				zap.String("scenario", sc.Name),
				zap.String("stripped", sr.StrippedFile),
				zap.Float64("reduction_percent", sr.Stats.ReductionPercent))
		}
		result.Scenarios[sc.Name] = sr
	}

	if !result.Success {
		return result, apierrors.ScrapeFailed(c.Name, "", lastErr)
	}
	return result, nil
}

func (s *Scraper) scrapeScenario(ctx context.Context, c Carrier, sc Scenario, eventID, rawDir, strippedDir string) (ScenarioResult, error) {
	var sr ScenarioResult

	page, err := s.fetcher.Fetch(ctx, Target{URL: sc.URL, WaitSelector: c.WaitSelector})
	if err != nil {
		return sr, apierrors.ScrapeFailed(c.Name, sc.Name, err)
	}

	ts := model.NewEventID(s.now())
	sr.RawFile = filepath.Join(rawDir, fmt.Sprintf("%s_%s_raw_%s.html", c.Name, sc.Name, ts))
	if err := os.WriteFile(sr.RawFile, []byte(page), 0o644); err != nil {
		return sr, fmt.Errorf("failed to write raw html: %w", err)
	}

	stripped, err := stripper.Strip(c.Name, page)
	if err != nil {
		return sr, apierrors.ScrapeFailed(c.Name, sc.Name, err)
	}
	sr.Stats = &stripped.Stats

	sr.StrippedFile = filepath.Join(strippedDir, fmt.Sprintf("%s_%s_stripped_%s.html", c.Name, sc.Name, ts))
	body := Header(eventID, c.Name, sc) + stripped.HTML
	if err := os.WriteFile(sr.StrippedFile, []byte(body), 0o644); err != nil {
		return sr, fmt.Errorf("failed to write stripped html: %w", err)
	}

	sr.Success = true
	return sr, nil
}

// Header is the comment block that opens every stripped file.
func Header(eventID, carrier string, sc Scenario) string {
	var b strings.Builder
	line := func(key, value string) {
		fmt.Fprintf(&b, "<!-- %s: %s -->\n", key, value)
	}
	if eventID != "" {
		line("Extraction Event ID", eventID)
	}
	line("Carrier", carrier)
	line("Scenario", sc.Name)
	line("Lines", strconv.Itoa(sc.Lines))
	line("Bundled", strconv.FormatBool(sc.Bundled))
	line("Source URL", sc.URL)
	return b.String()
}

// ScenarioInput is a stripped page ready for extraction.
type ScenarioInput struct {
	Name    string
	Path    string
	HTML    string
	Lines   int
	Bundled bool
	EventID string
	// Meta holds every header comment, keyed by its label.
	Meta map[string]string
}

// LoadScenarios returns the newest stripped page of each scenario of carrier.
// When catalog lists the carrier, scenarios it does not know are ignored.
func LoadScenarios(dataDir, carrier string, catalog *Catalog) (map[string]ScenarioInput, error) {
	carrier = strings.ToLower(carrier)
	_, strippedDir := Paths(dataDir, carrier)

	matches, err := filepath.Glob(filepath.Join(strippedDir, carrier+"_*_stripped_*.html"))
	if err != nil {
		return nil, err
	}

	var entry Carrier
	var known bool
	if catalog != nil {
		entry, known = catalog.Carrier(carrier)
	}

	newest := make(map[string]string)
	newestTS := make(map[string]string)
	for _, path := range matches {
		name, ts := scenarioFromFile(carrier, path)
		if mapped, ok := legacyScenarios[carrier][name]; ok {
			name = mapped
		}
		if known {
			if _, ok := entry.Scenario(name); !ok {
				continue
			}
		}
		if prev, ok := newestTS[name]; !ok || ts > prev || (ts == prev && path > newest[name]) {
			newest[name] = path
			newestTS[name] = ts
		}
	}

	names := make([]string, 0, len(newest))
	for name := range newest {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ScenarioInput, len(names))
	for _, name := range names {
		path := newest[name]
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		in := ScenarioInput{Name: name, Path: path, HTML: string(raw), Meta: ReadHeader(string(raw))}

		lines, bundled, _ := ParseScenarioName(name)
		if sc, ok := entry.Scenario(name); ok {
			lines, bundled = sc.Lines, sc.Bundled
		}
		if v, err := strconv.Atoi(in.Meta["Lines"]); err == nil && v > 0 {
			lines = v
		}
		if v, err := strconv.ParseBool(in.Meta["Bundled"]); err == nil {
			bundled = v
		}
		in.Lines, in.Bundled = lines, bundled
		in.EventID = in.Meta["Extraction Event ID"]
		out[name] = in
	}
	return out, nil
}

// scenarioFromFile parses <carrier>_<scenario>_stripped_<ts>.html.
func scenarioFromFile(carrier, path string) (name, ts string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.ReplaceAll(stem, "_stripped", "")
	if m := trailingTSRe.FindStringSubmatch(stem); m != nil {
		ts = m[1]
		stem = strings.TrimSuffix(stem, m[0])
	}
	_, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return "unknown", ts
	}
	return name, ts
}

// ReadHeader parses "<!-- Key: value -->" comments in the first lines of a page.
func ReadHeader(page string) map[string]string {
	meta := make(map[string]string)
	lines := strings.SplitN(page, "\n", metadataLines+1)
	if len(lines) > metadataLines {
		lines = lines[:metadataLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "<!--") {
			continue
		}
		body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "<!--"), "-->"))
		key, value, ok := strings.Cut(body, ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return meta
}
