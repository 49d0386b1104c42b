package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newCarriersCmd(root *rootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "carriers",
		Short: "List the carriers and scenarios of the catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			st := newStyles(out)
			for _, name := range catalog.Names() {
				c, _ := catalog.Carrier(name)
				fmt.Fprintf(out, "%s (%d scenarios)\n", st.name.Render(name), len(c.Scenarios))
				if !verbose {
					continue
				}
				for _, sc := range c.Scenarios {
					fmt.Fprintf(out, "  %-20s %s\n", sc.Name, sc.URL)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also list scenarios and URLs")
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
