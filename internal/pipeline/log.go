package pipeline

import (
	"sort"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/extractor"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/publish"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/workerpool"
)

// Log is the record of one run, written to data/pipeline_runs.
type Log struct {
	TimestampStart     string                    `json:"timestamp_start"`
	EventID            string                    `json:"event_id"`
	Carriers           map[string]*CarrierResult `json:"carriers"`
	GlobalStats        GlobalStats               `json:"global_stats"`
	SummaryFile        string                    `json:"summary_file,omitempty"`
	Consolidated       *ConsolidatedOutput       `json:"consolidated_output,omitempty"`
	ConsolidationError string                    `json:"consolidation_error,omitempty"`
	Publish            *publish.Result           `json:"publish,omitempty"`
	PublishError       string                    `json:"publish_error,omitempty"`

	LogFile string `json:"-"`
}

// GlobalStats summarises a run.
type GlobalStats struct {
	TotalDuration      float64               `json:"total_duration"`
	CarriersProcessed  int                   `json:"carriers_processed"`
	SuccessfulCarriers int                   `json:"successful_carriers"`
	ScenariosExtracted int                   `json:"scenarios_extracted"`
	TimestampEnd       string                `json:"timestamp_end"`
	Tokens             *extractor.TokenStats `json:"tokens,omitempty"`
	Pool               workerpool.Stats      `json:"worker_pool"`
}

// ConsolidatedOutput names the files consolidation produced.
type ConsolidatedOutput struct {
	Path       string   `json:"path"`
	LegacyPath string   `json:"legacy_path"`
	Brands     []string `json:"brands"`
	Records    int      `json:"records"`
}

// CarrierResult is the outcome of one carrier.
type CarrierResult struct {
	Carrier    string                     `json:"carrier"`
	Timestamp  string                     `json:"timestamp"`
	Success    bool                       `json:"success"`
	Steps      Steps                      `json:"steps"`
	Scenarios  map[string]ScenarioOutcome `json:"scenarios"`
	RollupFile string                     `json:"rollup_file,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Steps holds the per-step outcome of a carrier.
type Steps struct {
	Scraping      *Step `json:"scraping,omitempty"`
	LLMExtraction *Step `json:"llm_extraction,omitempty"`
}

// Step is the outcome of one step.
type Step struct {
	Success   bool                              `json:"success"`
	Skipped   bool                              `json:"skipped,omitempty"`
	Count     int                               `json:"scenario_count,omitempty"`
	Scenarios map[string]scraper.ScenarioResult `json:"scenarios,omitempty"`
	Error     string                            `json:"error,omitempty"`
}

// ScenarioOutcome is the extraction outcome of one scenario.
type ScenarioOutcome struct {
	Success    bool             `json:"success"`
	Skipped    bool             `json:"skipped,omitempty"`
	InputFile  string           `json:"input_file,omitempty"`
	OutputFile string           `json:"output_file,omitempty"`
	Plans      int              `json:"plans_count"`
	Tokens     extractor.Tokens `json:"tokens"`
	Error      string           `json:"error,omitempty"`
}

// Summary is the cross-carrier extraction file written next to the carrier
// directories.
type Summary struct {
	Metadata SummaryMetadata           `json:"metadata"`
	Carriers map[string]SummaryCarrier `json:"carriers"`
}

// SummaryMetadata describes the run a summary belongs to.
type SummaryMetadata struct {
	GeneratedAt          string   `json:"generated_at"`
	Carriers             []string `json:"carriers"`
	TotalCarriers        int      `json:"total_carriers"`
	LLMExtractionSkipped bool     `json:"llm_extraction_skipped"`
	ScrapingSkipped      bool     `json:"scraping_skipped"`
	EventID              string   `json:"event_id"`
}

// SummaryCarrier is one carrier of a summary.
type SummaryCarrier struct {
	Success              bool                       `json:"success"`
	Scenarios            map[string]ScenarioOutcome `json:"scenarios,omitempty"`
	ScenarioCount        int                        `json:"scenario_count"`
	LLMExtractionSkipped bool                       `json:"llm_extraction_skipped,omitempty"`
	Error                string                     `json:"error,omitempty"`
}

func buildSummary(l *Log, opts Options, now time.Time) *Summary {
	names := make([]string, 0, len(l.Carriers))
	for name := range l.Carriers {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Summary{
		Metadata: SummaryMetadata{
			GeneratedAt:          now.Format(time.RFC3339),
			Carriers:             names,
			TotalCarriers:        len(names),
			LLMExtractionSkipped: opts.SkipLLM,
			ScrapingSkipped:      opts.SkipScrape,
			EventID:              l.EventID,
		},
		Carriers: make(map[string]SummaryCarrier, len(names)),
	}
	for _, name := range names {
		c := l.Carriers[name]
		if !c.Success {
			s.Carriers[name] = SummaryCarrier{Error: c.Error}
			continue
		}
		s.Carriers[name] = SummaryCarrier{
			Success:              true,
			Scenarios:            c.Scenarios,
			ScenarioCount:        len(c.Scenarios),
			LLMExtractionSkipped: opts.SkipLLM,
		}
	}
	return s
}
