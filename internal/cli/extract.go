package cli

import (
	"fmt"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/consolidate"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/extractor"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/pipeline"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/spf13/cobra"
)

type extractOptions struct {
	carrier  string
	scenario string
	model    string
	out      string
	estimate bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <stripped.html>",
		Short: "Extract the plans of one stripped page with the LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := readFile(args[0])
			if err != nil {
				return err
			}
			req := requestFor(page, opts)

			if opts.estimate {
				prompt, err := extractor.BuildPrompt(req)
				if err != nil {
					return err
				}
				return writeJSON(cmd, extractor.EstimateTokens(prompt))
			}

			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if opts.model != "" {
				cfg.LLM.Model = opts.model
			}

			m := metrics.NewMetrics()
			client, err := extractor.NewClient(cfg.LLM, m, logger)
			if err != nil {
				return err
			}
			res := extractor.New(client, m, logger).ExtractScenario(cmd.Context(), req)
			if !res.Success {
				return res.Err
			}
			if opts.out != "" {
				if err := consolidate.WriteJSON(opts.out, res.Data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d plans (%d input, %d output tokens)\n",
					opts.out, len(res.Data.Plans), res.Tokens.Input, res.Tokens.Output)
				return nil
			}
			return writeJSON(cmd, res.Data)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.carrier, "carrier", "", "carrier name (default from the page header)")
	f.StringVar(&opts.scenario, "scenario", "", "scenario name (default from the page header)")
	f.StringVar(&opts.model, "model", "", "LLM model (default from config)")
	f.StringVarP(&opts.out, "out", "o", "", "write the extraction JSON here instead of stdout")
	f.BoolVar(&opts.estimate, "estimate", false, "print a token estimate without calling the model")
	return cmd
}

// requestFor builds the extraction request from the page header, letting flags win.
func requestFor(page string, opts *extractOptions) extractor.Request {
	meta := scraper.ReadHeader(page)
	carrier := opts.carrier
	if carrier == "" {
		carrier = meta["Carrier"]
	}
	scenario := opts.scenario
	if scenario == "" {
		scenario = meta["Scenario"]
	}
	if scenario == "" {
		scenario = scraper.DefaultScenario
	}
	req := extractor.RequestFromMeta(pipeline.DisplayName(strings.ToLower(carrier)), scenario, meta, page)
	if _, ok := meta["Lines"]; !ok {
		if lines, bundled, ok := scraper.ParseScenarioName(scenario); ok {
			req.Lines, req.Bundled = lines, bundled
		}
	}
	return req
}
