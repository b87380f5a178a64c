package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/viacare/risk-assessor/internal/domain"
)

type assessOptions struct {
	visitsFile string
	output     string
	failOn     string
	timeout    time.Duration
}

func newAssessCmd(root *rootOptions) *cobra.Command {
	opts := &assessOptions{}

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess a sequence of visits from a file",
		Long: `Submit the visits in a YAML or JSON file and print the per-visit
explanations followed by the trend summary.

The file holds either a list of visits or a mapping with a "visits" key.
Features left out of a visit take their default values.

With --fail-on, the command still prints the assessment but exits with an
error when any visit reaches the given tier.

Examples:
  risk-assessor assess --visits visits.yaml
  risk-assessor assess --visits visits.yaml --fail-on High
  cat visits.json | risk-assessor assess --visits - --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssess(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.visitsFile, "visits", "f", "",
		"Visits file (YAML or JSON, '-' for stdin)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text",
		"Output format: text or json")
	cmd.Flags().StringVar(&opts.failOn, "fail-on", "",
		"Exit with an error when a visit reaches this tier (Low, Medium or High)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute,
		"Give up on the prediction service after this long")
	_ = cmd.MarkFlagRequired("visits")

	return cmd
}

func runAssess(cmd *cobra.Command, root *rootOptions, opts *assessOptions) error {
	switch opts.output {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	var threshold domain.RiskTier
	if opts.failOn != "" {
		tier, err := domain.ParseRiskTier(opts.failOn)
		if err != nil {
			return fmt.Errorf("invalid --fail-on: %w", err)
		}
		threshold = tier
	}

	visits, err := loadVisits(opts.visitsFile)
	if err != nil {
		return err
	}

	app, err := newApplication(root.configFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	assessment, err := app.assessor.Assess(ctx, visits)
	if err != nil {
		return describeFailure(err)
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assessment); err != nil {
			return err
		}
	} else {
		renderAssessment(out, assessment)
	}

	if threshold != "" {
		return checkThreshold(assessment, threshold)
	}
	return nil
}

// checkThreshold fails on the first visit whose tier is at or above threshold.
func checkThreshold(a *domain.Assessment, threshold domain.RiskTier) error {
	for _, v := range a.Visits {
		if v.Tier.Level() >= threshold.Level() {
			return fmt.Errorf("visit #%d is %s risk (%.2f), at or above --fail-on %s",
				v.Index, v.Tier, v.Score, threshold)
		}
	}
	return nil
}

// describeFailure adds the service's detail lines to the error text.
func describeFailure(err error) error {
	var problems domain.ValidationErrors
	if errors.As(err, &problems) {
		return fmt.Errorf("visits failed validation:\n  %s", strings.Join(problems.Messages(), "\n  "))
	}
	return err
}

func renderAssessment(w io.Writer, a *domain.Assessment) {
	for _, v := range a.Visits {
		fmt.Fprintf(w, "Visit #%d: %s (%.2f)\n", v.Index, v.Tier, v.Score)

		factors := make([]string, 0, len(v.TopFactors))
		for _, f := range v.TopFactors {
			factors = append(factors, fmt.Sprintf("%s=%s (%+.3f)", f.Feature, domain.FormatValue(f.ObservedValue), f.Value))
		}
		fmt.Fprintf(w, "  Top factors: %s\n", strings.Join(factors, ", "))

		for _, line := range strings.Split(v.Explanation, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}

	s := a.Summary
	fmt.Fprintf(w, "Summary over %d visit(s): average %.2f (%s), max %.2f, trend %s",
		s.VisitCount, s.AverageScore, s.AverageTier, s.MaxScore, s.Direction)
	if s.VisitCount > 1 {
		fmt.Fprintf(w, " (%+.2f)", s.Difference)
	}
	fmt.Fprintln(w)
}
