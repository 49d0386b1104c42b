// Package pipeline runs scraping, LLM extraction, consolidation and publishing
// for a set of carriers as one extraction event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/consolidate"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/extractor"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/publish"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/workerpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scraper fetches and strips the pages of one carrier.
type Scraper interface {
	Scrape(ctx context.Context, carrier, eventID string) (*scraper.Result, error)
}

// Extractor extracts plans from one scenario.
type Extractor interface {
	ExtractScenario(ctx context.Context, r extractor.Request) extractor.Result
	Stats() extractor.TokenStats
}

// Consolidator merges the roll-ups of an event.
type Consolidator interface {
	Run(ctx context.Context, eventID string) (*consolidate.Result, error)
}

// Publisher commits and pushes consolidated files.
type Publisher interface {
	Publish(ctx context.Context, eventID string, files []string) (*publish.Result, error)
}

// Recorder receives pipeline metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordScenarioExtraction(carrier string, success bool)
	RecordPipelineRun(success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordScenarioExtraction(string, bool) {}
func (nopRecorder) RecordPipelineRun(bool)                {}

// Options select what a run does.
type Options struct {
	// Carriers to process; empty means every catalogue carrier.
	Carriers    []string
	SkipScrape  bool
	SkipLLM     bool
	Publish     bool
	Concurrency int
}

// Deps are the collaborators of a pipeline. Extractor may be nil when runs
// skip the LLM; Publisher may be nil when runs never publish.
type Deps struct {
	DataDir      string
	Catalog      *scraper.Catalog
	Scraper      Scraper
	Extractor    Extractor
	Consolidator Consolidator
	Publisher    Publisher
	Recorder     Recorder
	Logger       *zap.Logger
}

// Pipeline orchestrates one extraction event at a time.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = scraper.DefaultCatalog()
	}
	return &Pipeline{deps: deps, now: time.Now}
}

// Run processes every selected carrier, then consolidates and optionally
// publishes. Carrier failures are recorded in the log and do not stop the
// others; the error is non-nil only when ctx ends or the log cannot be written.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Log, error) {
	start := p.now()
	eventID := model.NewEventID(start)
	logger := p.deps.Logger.With(zap.String("event_id", eventID))

	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if !opts.SkipLLM && p.deps.Extractor == nil {
		return nil, errors.New("no extractor configured")
	}

	carriers := p.selectCarriers(opts.Carriers)
	runLog := &Log{
		TimestampStart: start.Format(time.RFC3339),
		EventID:        eventID,
		Carriers:       make(map[string]*CarrierResult, len(carriers)),
	}
	logger.Info("pipeline started",
		zap.Strings("carriers", carriers),
		zap.Bool("skip_scrape", opts.SkipScrape),
		zap.Bool("skip_llm", opts.SkipLLM))

	pool := workerpool.New(workerpool.Config{
		Name:      "llm-extraction",
		Workers:   opts.Concurrency,
		QueueSize: 64,
		Logger:    logger,
	})

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, carrier := range carriers {
		carrier := carrier
		g.Go(func() error {
			res := p.processCarrier(gctx, carrier, eventID, opts, pool, logger)
			mu.Lock()
			runLog.Carriers[carrier] = res
			mu.Unlock()
			return gctx.Err()
		})
	}
	groupErr := g.Wait()
	if err := pool.Stop(30 * time.Second); err != nil {
		logger.Warn("worker pool did not stop cleanly", zap.Error(err))
	}
	if groupErr != nil {
		return runLog, groupErr
	}

	summary := buildSummary(runLog, opts, p.now())
	if path, err := p.writeSummary(summary, eventID, opts.SkipLLM); err != nil {
		logger.Error("failed to write run summary", zap.Error(err))
	} else if path != "" {
		runLog.SummaryFile = path
	}

	if extracted(runLog) > 0 {
		p.consolidateAndPublish(ctx, runLog, opts, logger)
	} else {
		logger.Info("no scenarios extracted; consolidation skipped")
	}

	end := p.now()
	runLog.GlobalStats = GlobalStats{
		TotalDuration:      end.Sub(start).Round(10 * time.Millisecond).Seconds(),
		CarriersProcessed:  len(runLog.Carriers),
		SuccessfulCarriers: successful(runLog),
		ScenariosExtracted: extracted(runLog),
		TimestampEnd:       end.Format(time.RFC3339),
		Pool:               pool.Stats(),
	}
	if p.deps.Extractor != nil {
		stats := p.deps.Extractor.Stats()
		runLog.GlobalStats.Tokens = &stats
	}

	success := runLog.GlobalStats.SuccessfulCarriers > 0
	p.deps.Recorder.RecordPipelineRun(success)

	logPath := filepath.Join(p.deps.DataDir, "pipeline_runs", fmt.Sprintf("pipeline_log_%s.json", model.NewEventID(end)))
	if err := consolidate.WriteJSON(logPath, runLog); err != nil {
		return runLog, err
	}
	runLog.LogFile = logPath

	logger.Info("pipeline finished",
		zap.Int("carriers", runLog.GlobalStats.CarriersProcessed),
		zap.Int("successful", runLog.GlobalStats.SuccessfulCarriers),
		zap.Int("scenarios_extracted", runLog.GlobalStats.ScenariosExtracted),
		zap.Float64("duration_seconds", runLog.GlobalStats.TotalDuration),
		zap.String("log", logPath))
	return runLog, nil
}

func (p *Pipeline) selectCarriers(requested []string) []string {
	if len(requested) == 0 {
		return p.deps.Catalog.Names()
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range requested {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (p *Pipeline) processCarrier(ctx context.Context, carrier, eventID string, opts Options, pool *workerpool.Pool, logger *zap.Logger) *CarrierResult {
	logger = logger.With(zap.String("carrier", carrier))
	res := &CarrierResult{
		Carrier:   carrier,
		Timestamp: p.now().Format(time.RFC3339),
		Scenarios: make(map[string]ScenarioOutcome),
	}

	if _, ok := p.deps.Catalog.Carrier(carrier); !ok {
		res.Error = "unknown carrier"
		logger.Warn("unknown carrier skipped")
		return res
	}

	if opts.SkipScrape {
		res.Steps.Scraping = &Step{Success: true, Skipped: true}
	} else {
		scraped, err := p.deps.Scraper.Scrape(ctx, carrier, eventID)
		step := &Step{Success: err == nil}
		if scraped != nil {
			step.Scenarios = scraped.Scenarios
		}
		if err != nil {
			step.Error = err.Error()
			res.Steps.Scraping = step
			res.Error = "Scraping failed"
			logger.Error("scraping failed", zap.Error(err))
			return res
		}
		res.Steps.Scraping = step
	}

	inputs, err := scraper.LoadScenarios(p.deps.DataDir, carrier, p.deps.Catalog)
	if err != nil {
		res.Error = err.Error()
		res.Steps.LLMExtraction = &Step{Error: err.Error()}
		return res
	}

	if opts.SkipLLM {
		res.Steps.LLMExtraction = &Step{Success: true, Skipped: true}
		for name, in := range inputs {
			res.Scenarios[name] = ScenarioOutcome{Skipped: true, InputFile: in.Path}
		}
		res.Success = true
		return res
	}

	if len(inputs) == 0 {
		res.Error = "No scenarios found"
		res.Steps.LLMExtraction = &Step{Error: res.Error}
		logger.Warn("no stripped scenarios found")
		return res
	}

	outcomes, plans := p.extractAll(ctx, carrier, eventID, inputs, pool, logger)
	res.Scenarios = outcomes
	ok := 0
	for _, o := range outcomes {
		if o.Success {
			ok++
		}
	}
	res.Steps.LLMExtraction = &Step{Success: ok > 0, Count: len(outcomes)}
	if ok == 0 {
		res.Error = "LLM extraction failed for every scenario"
		return res
	}

	rollup, err := p.writeRollup(carrier, eventID, plans)
	if err != nil {
		res.Error = err.Error()
		logger.Error("failed to write roll-up", zap.Error(err))
		return res
	}
	res.RollupFile = rollup
	res.Success = true
	return res
}

// extractAll runs one pool task per scenario and waits for all of them.
func (p *Pipeline) extractAll(ctx context.Context, carrier, eventID string, inputs map[string]scraper.ScenarioInput, pool *workerpool.Pool, logger *zap.Logger) (map[string]ScenarioOutcome, map[string][]model.Plan) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make(map[string]ScenarioOutcome, len(inputs))
		plans    = make(map[string][]model.Plan)
	)
	record := func(name string, o ScenarioOutcome, ps []model.Plan) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[name] = o
		if o.Success {
			plans[name] = ps
		}
	}

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in := inputs[name]
		wg.Add(1)
		err := pool.SubmitWithContext(ctx, workerpool.Task{
			ID:      carrier + "/" + name,
			Context: ctx,
			Fn: func(ctx context.Context) error {
				defer wg.Done()
				o, ps := p.extractOne(ctx, carrier, eventID, in)
				p.deps.Recorder.RecordScenarioExtraction(carrier, o.Success)
				record(in.Name, o, ps)
				if !o.Success {
					return errors.New(o.Error)
				}
				return nil
			},
		})
		if err != nil {
			wg.Done()
			record(name, ScenarioOutcome{Error: err.Error()}, nil)
			logger.Warn("scenario not submitted", zap.String("scenario", name), zap.Error(err))
		}
	}
	wg.Wait()
	return outcomes, plans
}

func (p *Pipeline) extractOne(ctx context.Context, carrier, eventID string, in scraper.ScenarioInput) (ScenarioOutcome, []model.Plan) {
	req := extractor.Request{
		Carrier:  DisplayName(carrier),
		Scenario: in.Name,
		Lines:    in.Lines,
		Bundled:  in.Bundled,
		URL:      in.Meta["Source URL"],
		HTML:     in.HTML,
	}
	res := p.deps.Extractor.ExtractScenario(ctx, req)
	o := ScenarioOutcome{
		Success:   res.Success,
		InputFile: in.Path,
		Tokens:    res.Tokens,
		Error:     res.Error,
	}
	if !res.Success {
		return o, nil
	}

	data := res.Data
	if data.Scenario == "" {
		data.Scenario = in.Name
	}
	if data.Carrier == "" {
		data.Carrier = req.Carrier
	}
	data.EventID = eventID

	dir := filepath.Join(p.deps.DataDir, carrier, "output", "llm_output")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", carrier, in.Name, model.NewEventID(p.now())))
	if err := consolidate.WriteJSON(path, data); err != nil {
		o.Success = false
		o.Error = err.Error()
		return o, nil
	}
	o.OutputFile = path
	o.Plans = len(data.Plans)
	return o, data.Plans
}

func (p *Pipeline) writeRollup(carrier, eventID string, plans map[string][]model.Plan) (string, error) {
	rollup := model.BrandRollup{
		Carrier:     carrier,
		EventID:     eventID,
		GeneratedAt: p.now().Format(time.RFC3339),
		Scenarios:   make(map[string]model.RollupScenario, len(plans)),
	}
	for name, ps := range plans {
		rollup.Scenarios[name] = model.RollupScenario{Plans: ps}
	}
	path := filepath.Join(p.deps.DataDir, carrier, "output", fmt.Sprintf("%s_llm_output_all_plans_%s.json", carrier, eventID))
	if err := consolidate.WriteJSON(path, rollup); err != nil {
		return "", err
	}
	return path, nil
}

// writeSummary writes the run summary. Nothing is written when the LLM was
// skipped and no carrier has scenario inputs.
func (p *Pipeline) writeSummary(s *Summary, eventID string, skipLLM bool) (string, error) {
	hasScenarios := false
	for _, c := range s.Carriers {
		if c.Success && len(c.Scenarios) > 0 {
			hasScenarios = true
			break
		}
	}
	if skipLLM && !hasScenarios {
		return "", nil
	}

	name := fmt.Sprintf("all_carriers_extraction_%s.json", eventID)
	if skipLLM {
		name = fmt.Sprintf("all_carriers_extraction_NO_LLM_%s.json", eventID)
	}
	if err := os.MkdirAll(p.deps.DataDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.deps.DataDir, name)
	return path, consolidate.WriteJSON(path, s)
}

func (p *Pipeline) consolidateAndPublish(ctx context.Context, runLog *Log, opts Options, logger *zap.Logger) {
	result, err := p.deps.Consolidator.Run(ctx, runLog.EventID)
	if err != nil {
		runLog.ConsolidationError = err.Error()
		logger.Error("consolidation failed", zap.Error(err))
		return
	}
	runLog.Consolidated = &ConsolidatedOutput{
		Path:       result.Path,
		LegacyPath: result.LegacyPath,
		Brands:     result.Brands,
		Records:    result.Records,
	}

	if !opts.Publish || p.deps.Publisher == nil {
		return
	}
	pub, err := p.deps.Publisher.Publish(ctx, runLog.EventID, []string{result.Path, result.LegacyPath})
	if err != nil {
		runLog.PublishError = err.Error()
		logger.Error("publish failed", zap.Error(err))
		return
	}
	runLog.Publish = pub
}

// DisplayName is the carrier name as the prompt shows it: "telus" becomes "Telus".
func DisplayName(carrier string) string {
	if carrier == "" {
		return carrier
	}
	return strings.ToUpper(carrier[:1]) + carrier[1:]
}

func successful(l *Log) int {
	n := 0
	for _, c := range l.Carriers {
		if c.Success {
			n++
		}
	}
	return n
}

func extracted(l *Log) int {
	n := 0
	for _, c := range l.Carriers {
		for _, o := range c.Scenarios {
			if o.Success {
				n++
			}
		}
	}
	return n
}
