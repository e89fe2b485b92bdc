package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/registry"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models and aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()

			pricing := make(map[string]registry.PricingOverride, len(cfg.Pricing))
			for model, p := range cfg.Pricing {
				pricing[model] = registry.PricingOverride{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
			}
			reg := registry.New(pricing)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tWINDOW\tIN $/1K\tOUT $/1K")
			for _, id := range reg.Models() {
				p, _ := reg.Lookup(id)
				fmt.Fprintf(w, "%s\t%s\t%d\t%.5f\t%.5f\n",
					id, p.Provider, p.ContextWindow, p.InputCostPer1K, p.OutputCostPer1K)
			}
			w.Flush()

			aliases := reg.Aliases()
			names := make([]string, 0, len(aliases))
			for a := range aliases {
				names = append(names, a)
			}
			sort.Strings(names)

			fmt.Fprintln(cmd.OutOrStdout(), "\nAliases:")
			for _, a := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-10s -> %s\n", a, aliases[a])
			}
			return nil
		},
	}
}
