package domain

import (
	"time"
)

// RankedContribution is a contribution joined with the value that was
// observed for the same feature.
type RankedContribution struct {
	Feature       FeatureKey `json:"feature"`
	Label         string     `json:"label"`
	Value         float64    `json:"value"`
	ObservedValue float64    `json:"observed_value"`
}

// IncreasesRisk reports whether the feature pushed the score up.
func (r RankedContribution) IncreasesRisk() bool {
	return r.Value > 0
}

// DecreasesRisk reports whether the feature pulled the score down.
func (r RankedContribution) DecreasesRisk() bool {
	return r.Value < 0
}

// TrendSummary aggregates the scores of a whole visit sequence.
type TrendSummary struct {
	AverageScore float64        `json:"average_score"`
	AverageTier  RiskTier       `json:"average_tier"`
	MaxScore     float64        `json:"max_score"`
	Direction    TrendDirection `json:"direction"`
	Difference   float64        `json:"difference"`
	VisitCount   int            `json:"visit_count"`
}

// VisitAssessment is the derived presentation data for one visit.
type VisitAssessment struct {
	Index             int                  `json:"index"`
	Observation       Observation          `json:"observation"`
	Score             float64              `json:"score"`
	Tier              RiskTier             `json:"tier"`
	BaseValue         float64              `json:"base_value"`
	ContributionTotal float64              `json:"contribution_total"` // sum of all feature contributions
	TopFactors        []RankedContribution `json:"top_factors"`
	Explanation       string               `json:"explanation"`
}

// Assessment is the complete result of one submission. A new assessment
// replaces any earlier one; results are never merged.
type Assessment struct {
	ID             string            `json:"id"`
	Visits         []VisitAssessment `json:"visits"`
	Summary        TrendSummary      `json:"summary"`
	AssessedAt     time.Time         `json:"assessed_at"`
	ProcessingTime time.Duration     `json:"processing_time"`
}
