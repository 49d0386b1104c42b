package cli

import (
	"fmt"
	"os"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/stripper"
	"github.com/spf13/cobra"
)

func newStripCmd() *cobra.Command {
	var out string
	var stats bool
	cmd := &cobra.Command{
		Use:   "strip <carrier> <raw.html>",
		Short: "Strip a saved carrier page down to its plan tiles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readFile(args[1])
			if err != nil {
				return err
			}
			res, err := stripper.Strip(args[0], raw)
			if err != nil {
				return err
			}
			if stats {
				return writeJSON(cmd, res.Stats)
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), res.HTML)
				return err
			}
			if err := os.WriteFile(out, []byte(res.HTML), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			s := res.Stats
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d plans, %d -> %d bytes (%.1f%% smaller)\n",
				out, s.PlanCount, s.OriginalSize, s.StrippedSize, s.ReductionPercent)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the stripped page here instead of stdout")
	cmd.Flags().BoolVar(&stats, "stats", false, "print reduction stats as JSON instead of the page")
	return cmd
}
