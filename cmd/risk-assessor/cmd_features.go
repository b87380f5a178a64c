package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/viacare/risk-assessor/internal/domain"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Show the observation schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tLABEL\tUNIT\tRANGE\tDEFAULT")
			for _, f := range domain.ObservationSchema {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s-%s\t%s\n",
					f.Key, f.Label, f.Unit,
					domain.FormatValue(f.Min), domain.FormatValue(f.Max),
					domain.FormatValue(f.Default))
			}
			return w.Flush()
		},
	}
}
