package cli

import (
	"fmt"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/consolidate"
	"github.com/spf13/cobra"
)

func newConsolidateCmd(root *rootOptions) *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge carrier roll-ups into a consolidated dataset file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			res, err := consolidate.New(cfg.Data.Dir, cfg.Data.RootDir, logger).Run(cmd.Context(), eventID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "consolidated %d brands, %d records\n", len(res.Brands), res.Records)
			fmt.Fprintf(out, "  %s\n", res.Path)
			if res.LegacyPath != "" {
				fmt.Fprintf(out, "  %s\n", res.LegacyPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventID, "event-id", "", "only include roll-ups of this extraction event")
	return cmd
}
