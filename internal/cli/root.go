// Package cli implements planctl, the command line front end of the extraction pipeline.
package cli

import (
	"errors"
	"os"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/logging"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/scraper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	dataDir    string
}

// NewRootCmd builds the planctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "planctl",
		Short:        "Scrape carrier rate plans, extract them with an LLM and consolidate the results",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override data.dir")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newConsolidateCmd(opts))
	cmd.AddCommand(newStripCmd())
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newCarriersCmd(opts))
	cmd.AddCommand(versionCmd())
	return cmd
}

// Execute runs planctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.dataDir != "" {
		cfg.Data.Dir = o.dataDir
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

// loadCatalog reads the configured catalogue, falling back to the built-in
// one when the file does not exist.
func loadCatalog(cfg *config.Config, logger *zap.Logger) (*scraper.Catalog, error) {
	path := cfg.Scraper.CatalogPath
	if path == "" {
		return scraper.DefaultCatalog(), nil
	}
	catalog, err := scraper.LoadCatalog(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("carrier catalog not found, using built-in catalog", zap.String("path", path))
		return scraper.DefaultCatalog(), nil
	}
	return catalog, err
}
