package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/consolidate"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/extractor"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/pipeline"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/publish"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	carriers    []string
	skipScrape  bool
	skipLLM     bool
	publish     bool
	model       string
	concurrency int
	metricsPort int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: scrape, extract, consolidate and optionally publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			applyRunFlags(cmd, cfg, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, err := runPipeline(ctx, cfg, opts, logger)
			if log != nil {
				printRunSummary(cmd, log)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.carriers, "carriers", nil, "carriers to process (default: all)")
	f.BoolVar(&opts.skipScrape, "skip-scrape", false, "use existing stripped pages")
	f.BoolVar(&opts.skipLLM, "skip-llm", false, "scrape only, no LLM extraction")
	f.BoolVar(&opts.publish, "publish", false, "commit and push consolidated files")
	f.StringVar(&opts.model, "model", "", "LLM model (default from config)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "parallel carriers and LLM requests")
	f.IntVar(&opts.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port while running")
	return cmd
}

// applyRunFlags lets explicit flags override the pipeline section of cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	f := cmd.Flags()
	if !f.Changed("carriers") {
		opts.carriers = cfg.Pipeline.Carriers
	}
	if !f.Changed("skip-scrape") {
		opts.skipScrape = cfg.Pipeline.SkipScrape
	}
	if !f.Changed("skip-llm") {
		opts.skipLLM = cfg.Pipeline.SkipLLM
	}
	if !f.Changed("publish") {
		opts.publish = cfg.Pipeline.AutoPublish
	}
	if !f.Changed("concurrency") {
		opts.concurrency = cfg.Pipeline.Concurrency
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
}

func runPipeline(ctx context.Context, cfg *config.Config, opts *runOptions, logger *zap.Logger) (*pipeline.Log, error) {
	catalog, err := loadCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	if opts.metricsPort > 0 {
		ms := metrics.NewMetricsServer(opts.metricsPort, cfg.Metrics.Path, logger)
		go func() {
			if err := ms.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	deps := pipeline.Deps{
		DataDir:      cfg.Data.Dir,
		Catalog:      catalog,
		Consolidator: consolidate.New(cfg.Data.Dir, cfg.Data.RootDir, logger),
		Recorder:     m,
		Logger:       logger,
	}

	if !opts.skipScrape {
		fetcher, closeFetcher := newFetcher(cfg.Scraper, logger)
		defer closeFetcher()
		deps.Scraper = scraper.New(catalog, fetcher, cfg.Data.Dir, logger)
	}

	if !opts.skipLLM {
		client, err := extractor.NewClient(cfg.LLM, m, logger)
		if err != nil {
			return nil, err
		}
		deps.Extractor = extractor.New(client, m, logger)
	}

	if opts.publish {
		runner, err := publish.LookGit()
		if err != nil {
			logger.Warn("publishing disabled", zap.Error(err))
		} else {
			deps.Publisher = publish.New(runner, cfg.Publish, logger)
		}
	}

	return pipeline.New(deps).Run(ctx, pipeline.Options{
		Carriers:    opts.carriers,
		SkipScrape:  opts.skipScrape,
		SkipLLM:     opts.skipLLM,
		Publish:     opts.publish,
		Concurrency: opts.concurrency,
	})
}

func newFetcher(cfg config.ScraperConfig, logger *zap.Logger) (scraper.Fetcher, func()) {
	if !cfg.Browser {
		return scraper.NewHTTPFetcher(cfg.Timeout, cfg.UserAgent), func() {}
	}
	f := scraper.NewBrowserFetcher(cfg.BrowserBin, cfg.Timeout, cfg.SettleDelay, logger)
	return f, func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close browser", zap.Error(err))
		}
	}
}

func printRunSummary(cmd *cobra.Command, log *pipeline.Log) {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	s := log.GlobalStats
	fmt.Fprintf(out, "event %s: %d/%d carriers succeeded, %d scenarios extracted in %.1fs\n",
		log.EventID, s.SuccessfulCarriers, s.CarriersProcessed, s.ScenariosExtracted, s.TotalDuration)
	if s.Pool.SubmittedTasks > 0 {
		fmt.Fprintf(out, "llm pool: %d tasks, %.0f%% succeeded\n", s.Pool.SubmittedTasks, s.Pool.SuccessRate())
	}
	for _, name := range sortedKeys(log.Carriers) {
		c := log.Carriers[name]
		status := st.ok.Render("ok")
		if !c.Success {
			status = st.failed.Render("failed: " + c.Error)
		}
		fmt.Fprintf(out, "  %-10s %s\n", name, status)
	}
	if log.Consolidated != nil {
		fmt.Fprintf(out, "consolidated: %s (%d records)\n", log.Consolidated.Path, log.Consolidated.Records)
	}
	if log.Publish != nil {
		fmt.Fprintf(out, "publish: %s %s\n", log.Publish.Status, log.Publish.Reason)
	}
	if log.LogFile != "" {
		fmt.Fprintf(out, "log: %s\n", log.LogFile)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(raw), nil
}
