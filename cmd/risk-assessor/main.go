package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/viacare/risk-assessor/internal/api"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "risk-assessor",
		Short: "Maternal health risk assessment from sequential prenatal visits",
		Long: `Submit prenatal visit observations to the risk prediction service and
explain the resulting scores.

Each visit records Age, SystolicBP, DiastolicBP, BS, BodyTemp and HeartRate.
The prediction service returns one score and one set of per-feature
contributions per visit; scores are classified as Low (<= 1.5),
Medium (<= 2.5) or High, explained from the three strongest factors and
summarized into an average tier and a trend across visits.

Examples:
  risk-assessor serve                          # Run the HTTP API
  risk-assessor assess --visits visits.yaml    # Assess visits from a file
  risk-assessor assess --visits v.json -o json # JSON output for automation
  risk-assessor features                       # Show the observation schema`,
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"Config file (default: config.yaml in ., ./config or /etc/risk-assessor/)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAssessCmd(opts))
	rootCmd.AddCommand(newFeaturesCmd())

	return rootCmd
}
