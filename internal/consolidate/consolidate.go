// Package consolidate merges per-carrier LLM roll-ups into the single
// consolidated file the dashboard serves.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dataset"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"go.uber.org/zap"
)

var (
	fileWithTSRe = regexp.MustCompile(`^[a-zA-Z]+_(.+?)_(\d{8}_\d{6})$`)
	fileNoTSRe   = regexp.MustCompile(`^[a-zA-Z]+_(.+)$`)
	priceRe      = regexp.MustCompile(`\$.*?\d+(?:\.\d+)?`)
)

// promotionalKeywords mark discount blurbs the extractor mistook for plans.
var promotionalKeywords = []string{
	"after auto-pay", "after autopay", "auto-pay discount", "autopay discount",
	"workplace discount", "accessibility", "exclusively with",
}

// skippedDirs are data/ children that are not carriers.
var skippedDirs = map[string]bool{"pipeline_runs": true, "consolidated": true}

// ParseFileName extracts the scenario and YYYYMMDD_HHMMSS suffix from a
// name like "bell_1_line_mobile_only_20250101_120000.json".
func ParseFileName(path string) (scenario, ts string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := fileWithTSRe.FindStringSubmatch(stem); m != nil {
		return m[1], m[2]
	}
	if m := fileNoTSRe.FindStringSubmatch(stem); m != nil {
		return m[1], ""
	}
	return "", ""
}

// BrandFile is one brand roll-up read from disk.
type BrandFile struct {
	Path string
	TS   string
	Data map[string]json.RawMessage
}

// LoadBrandOutputs reads <brand>_llm_output_all_plans_*.json from brandDir/output.
// Files for another carrier, for another event (when eventID is set), or that
// fail to parse are skipped.
func LoadBrandOutputs(brandDir, eventID string) []BrandFile {
	brand := strings.ToLower(filepath.Base(brandDir))
	pattern := filepath.Join(brandDir, "output", brand+"_llm_output_all_plans_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)

	var files []BrandFile
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var data map[string]json.RawMessage
		if err := json.Unmarshal(raw, &data); err != nil {
			continue
		}
		if c := payloadCarrier(data); c != "" && !strings.EqualFold(c, brand) {
			continue
		}
		if eventID != "" && stringValue(data["event_id"]) != eventID {
			continue
		}
		_, ts := ParseFileName(path)
		files = append(files, BrandFile{Path: path, TS: ts, Data: data})
	}
	return files
}

func payloadCarrier(data map[string]json.RawMessage) string {
	if c := stringValue(data["carrier"]); c != "" {
		return c
	}
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(data["data"], &inner); err == nil {
		return stringValue(inner["carrier"])
	}
	return ""
}

func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// BrandResult is the consolidated view of one brand.
type BrandResult struct {
	Scenarios map[string]model.ScenarioData
	Records   []model.Record
}

// ConsolidateBrand keeps the newest roll-up, filters non-plans, de-duplicates
// plans per scenario and flattens them into records.
func ConsolidateBrand(brand string, files []BrandFile) BrandResult {
	result := BrandResult{Scenarios: make(map[string]model.ScenarioData)}
	if len(files) == 0 {
		return result
	}

	sorted := make([]BrandFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS > sorted[j].TS })
	entry := sorted[0]

	var scenarios map[string]json.RawMessage
	if err := json.Unmarshal(entry.Data["scenarios"], &scenarios); err == nil && len(scenarios) > 0 {
		names := make([]string, 0, len(scenarios))
		for name := range scenarios {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			var sdata map[string]json.RawMessage
			_ = json.Unmarshal(scenarios[name], &sdata)
			plans := keepPlans(brand, model.DecodePlans(sdata["plans"]), true)
			result.add(brand, name, entry.Path, plans)
		}
		return result
	}

	// single-scenario shape written by older extractor runs
	name := stringValue(entry.Data["scenario"])
	if name == "" {
		name = "unknown"
	}
	payload := entry.Data
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(entry.Data["data"], &inner); err == nil && inner != nil {
		payload = inner
	}
	result.add(brand, name, entry.Path, keepPlans(brand, model.DecodePlans(payload["plans"]), false))
	return result
}

func (r *BrandResult) add(brand, scenario, source string, plans []model.Plan) {
	r.Scenarios[scenario] = model.ScenarioData{SourceFiles: []string{source}, Plans: plans}
	for _, p := range plans {
		r.Records = append(r.Records, NormalizeRecord(brand, scenario, p))
	}
}

// keepPlans de-duplicates plans. With filter set it also drops nameless,
// promotional and unpriced entries and normalises Freedom names.
func keepPlans(brand string, plans []model.Plan, filter bool) []model.Plan {
	kept := make([]model.Plan, 0, len(plans))
	seen := make(map[string]bool)
	for _, p := range plans {
		if filter && !isRealPlan(p) {
			continue
		}
		key := dedupKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true

		if filter && strings.EqualFold(brand, "freedom") && p.PlanName != "" {
			p.PlanName = NormalizeFreedomPlanName(p.PlanName, p.DataAmount, p.NetworkLabel())
		}
		kept = append(kept, p)
	}
	return kept
}

func isRealPlan(p model.Plan) bool {
	name := strings.ToLower(strings.TrimSpace(p.PlanName))
	switch name {
	case "", "unknown", "none", "n/a":
		return false
	}
	for _, kw := range promotionalKeywords {
		if strings.Contains(name, kw) {
			return false
		}
	}
	return priceRe.MatchString(p.CurrentPrice + p.RegularPrice)
}

func dedupKey(p model.Plan) string {
	if soc := p.Identifier("ratePlanSoc"); soc != "" {
		return soc
	}
	if id := p.Identifier("productId"); id != "" {
		return id
	}
	return p.PlanName + "|" + p.DataAmount + "|" + p.CurrentPrice
}

// Result summarises a consolidation run.
type Result struct {
	EventID    string
	Path       string
	LegacyPath string
	Brands     []string
	Records    int
}

// Consolidator writes consolidated files from the carrier directories under dataDir.
type Consolidator struct {
	dataDir string
	rootDir string
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a consolidator. The legacy copy of each output is written to rootDir.
func New(dataDir, rootDir string, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		dataDir: dataDir,
		rootDir: rootDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Run consolidates every carrier. A non-empty eventID restricts input to that
// pipeline event and names the output after it.
func (c *Consolidator) Run(ctx context.Context, eventID string) (*Result, error) {
	now := c.now()
	ts := eventID
	if ts == "" {
		ts = model.NewEventID(now)
	}

	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", c.dataDir, err)
	}

	ds := model.Dataset{Brands: make(map[string]model.BrandData), Records: []model.Record{}}
	var brands []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		brand := strings.ToLower(entry.Name())
		if !entry.IsDir() || skippedDirs[brand] {
			continue
		}

		files := LoadBrandOutputs(filepath.Join(c.dataDir, entry.Name()), eventID)
		if len(files) == 0 {
			continue
		}
		br := ConsolidateBrand(brand, files)
		ds.Brands[brand] = model.BrandData{Scenarios: br.Scenarios, ScenarioCount: len(br.Scenarios)}
		ds.Records = append(ds.Records, br.Records...)
		brands = append(brands, brand)

		c.logger.Debug("brand consolidated",
			zap.String("brand", brand),
			zap.Int("scenarios", len(br.Scenarios)),
			zap.Int("records", len(br.Records)))
	}
	if brands == nil {
		brands = []string{}
	}

	ds.Metadata = model.Metadata{
		GeneratedAt: now.Format(time.RFC3339),
		TotalBrands: len(brands),
		Brands:      brands,
		RecordCount: len(ds.Records),
		EventID:     ts,
	}

	name := strings.Replace(dataset.FilePattern, "*", ts, 1)
	result := &Result{
		EventID: ts,
		Path:    filepath.Join(c.dataDir, "consolidated", name),
		Brands:  brands,
		Records: len(ds.Records),
	}
	if err := WriteJSON(result.Path, ds); err != nil {
		return nil, err
	}

	legacy := filepath.Join(c.rootDir, name)
	if err := WriteJSON(legacy, ds); err != nil {
		c.logger.Warn("failed to write legacy copy", zap.String("path", legacy), zap.Error(err))
	} else {
		result.LegacyPath = legacy
	}

	c.logger.Info("consolidation complete",
		zap.String("event_id", ts),
		zap.String("path", result.Path),
		zap.Int("brands", len(brands)),
		zap.Int("records", result.Records))
	return result, nil
}

// WriteJSON writes v as indented JSON, creating parent directories. The
// file is written under a dot-prefixed temp name and renamed into place, so
// readers of the directory never see a partial file.
func WriteJSON(path string, v interface{}) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
