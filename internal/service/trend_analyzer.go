package service

import (
	"github.com/viacare/risk-assessor/internal/domain"
)

// DefaultTrendThreshold is the score change a trend must exceed to leave Stable.
const DefaultTrendThreshold = 0.2

// TrendAnalyzer summarizes the scores of a visit sequence.
type TrendAnalyzer struct {
	threshold float64
}

// NewTrendAnalyzer creates an analyzer. An unset (zero) threshold falls back to
// DefaultTrendThreshold; configuration validation rejects non-positive values.
func NewTrendAnalyzer(threshold float64) *TrendAnalyzer {
	if threshold <= 0 {
		threshold = DefaultTrendThreshold
	}
	return &TrendAnalyzer{threshold: threshold}
}

// Summarize returns nil for an empty sequence. Only the first and last scores
// decide the direction, and the threshold itself counts as Stable.
func (a *TrendAnalyzer) Summarize(scores []float64) *domain.TrendSummary {
	if len(scores) == 0 {
		return nil
	}

	sum := 0.0
	maxScore := scores[0]
	for _, s := range scores {
		sum += s
		if s > maxScore {
			maxScore = s
		}
	}
	average := sum / float64(len(scores))

	summary := &domain.TrendSummary{
		AverageScore: average,
		AverageTier:  domain.ClassifyRisk(average),
		MaxScore:     maxScore,
		Direction:    domain.TrendStable,
		VisitCount:   len(scores),
	}

	if len(scores) < 2 {
		return summary
	}

	// Plain float64 subtraction: 1.6-1.4 exceeds 0.2 while 1.5-1.3 does not.
	summary.Difference = scores[len(scores)-1] - scores[0]
	switch {
	case summary.Difference > a.threshold:
		summary.Direction = domain.TrendUp
	case summary.Difference < -a.threshold:
		summary.Direction = domain.TrendDown
	}
	return summary
}
