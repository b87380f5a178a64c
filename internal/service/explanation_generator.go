package service

import (
	"fmt"
	"strings"

	"github.com/viacare/risk-assessor/internal/domain"
)

// DefaultTopFactors is how many ranked contributions an explanation considers.
const DefaultTopFactors = 3

// Substituted when a factor list would otherwise be empty.
const (
	increasingPlaceholder = "these key factors"
	decreasingPlaceholder = "no individual factor"
)

// ExplanationGenerator writes the narrative shown for a single visit.
type ExplanationGenerator struct {
	topFactors int
}

// NewExplanationGenerator creates a generator considering the topFactors
// strongest contributions. Non-positive values fall back to DefaultTopFactors.
func NewExplanationGenerator(topFactors int) *ExplanationGenerator {
	if topFactors <= 0 {
		topFactors = DefaultTopFactors
	}
	return &ExplanationGenerator{topFactors: topFactors}
}

// TopFactors ranks the contributions of a visit and keeps the strongest ones.
func (g *ExplanationGenerator) TopFactors(observation domain.Observation, set domain.ContributionSet) []domain.RankedContribution {
	return TopContributions(RankContributions(observation, set), g.topFactors)
}

// Explain classifies score and describes the visit from its strongest factors.
func (g *ExplanationGenerator) Explain(observation domain.Observation, set domain.ContributionSet, score float64) string {
	return g.Compose(domain.ClassifyRisk(score), score, g.TopFactors(observation, set))
}

// Compose renders the tier template for already ranked factors.
func (g *ExplanationGenerator) Compose(tier domain.RiskTier, score float64, top []domain.RankedContribution) string {
	var increasing, decreasing []string
	for _, f := range top {
		switch {
		case f.IncreasesRisk():
			increasing = append(increasing, describeFactor(f))
		case f.DecreasesRisk():
			decreasing = append(decreasing, describeFactor(f))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The risk of complications for this visit is assessed as %s (%.2f).", tier, score)

	switch tier {
	case domain.RiskHigh:
		fmt.Fprintf(&b, " This is a warning sign. The main factors pushing the risk up are: %s.",
			joinOr(increasing, increasingPlaceholder))
		fmt.Fprintf(&b, "\nAnalysis: immediate monitoring is essential. The values of %s require further evaluation and intervention.",
			firstOr(increasing, increasingPlaceholder))

	case domain.RiskMedium:
		if len(increasing) > 0 {
			fmt.Fprintf(&b, " Although not critical, the prediction is influenced by warning signs. Factors increasing the risk include: %s.",
				strings.Join(increasing, ", "))
			fmt.Fprintf(&b, "\nAnalysis: maintain heightened vigilance on %s. Preventive measures should be reinforced if these factors persist.",
				increasing[0])
		} else {
			fmt.Fprintf(&b, " The patient is at a Medium level mainly because of the baseline value, but %s partially offset it.",
				joinOr(decreasing, decreasingPlaceholder))
			b.WriteString("\nAnalysis: current measures appear to help. Close monitoring is recommended.")
		}

	default:
		fmt.Fprintf(&b, " The patient's profile is reassuring for this visit. The factors contributing most to keeping the risk low are: %s.",
			joinOr(decreasing, decreasingPlaceholder))
		b.WriteString("\nAnalysis: the patient presents normal values. The attending physician should decide on the next steps of care.")
	}

	return b.String()
}

func describeFactor(f domain.RankedContribution) string {
	return fmt.Sprintf("%s (%s)", f.Label, domain.FormatValue(f.ObservedValue))
}

func joinOr(items []string, placeholder string) string {
	if len(items) == 0 {
		return placeholder
	}
	return strings.Join(items, ", ")
}

func firstOr(items []string, placeholder string) string {
	if len(items) == 0 {
		return placeholder
	}
	return items[0]
}
