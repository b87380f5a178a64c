// Package domain contains the core entities for maternal health risk assessment:
// the clinical observation schema, prediction results returned by the remote
// model, feature contributions, risk tiers and the submission error taxonomy.
//
// Scores are produced on a 1.0-3.0 scale where 1 is low risk, 2 medium risk and
// 3 high risk. Values outside that scale are accepted and fall into the nearest tier.
package domain

import (
	"errors"
	"fmt"
)

// RiskTier is the discrete severity derived from a continuous risk score.
// A tier is never stored on its own; it is always recomputed from a score.
type RiskTier string

const (
	RiskLow    RiskTier = "Low"
	RiskMedium RiskTier = "Medium"
	RiskHigh   RiskTier = "High"
)

// Tier thresholds. Each boundary belongs to the lower tier.
const (
	LowRiskUpperBound    = 1.5
	MediumRiskUpperBound = 2.5
)

// TrendDirection describes how risk moved between the first and last visit.
type TrendDirection string

const (
	TrendUp     TrendDirection = "Up"
	TrendDown   TrendDirection = "Down"
	TrendStable TrendDirection = "Stable"
)

var (
	ErrInvalidRiskTier = errors.New("invalid risk tier")
	ErrEmptySequence   = errors.New("observation sequence is empty")
	ErrLastVisit       = errors.New("at least one visit is required")
)

// ClassifyRisk maps a score to its tier: score <= 1.5 is Low, score <= 2.5 is
// Medium and anything above is High. Out-of-range scores are not rejected.
func ClassifyRisk(score float64) RiskTier {
	if score <= LowRiskUpperBound {
		return RiskLow
	}
	if score <= MediumRiskUpperBound {
		return RiskMedium
	}
	return RiskHigh
}

// IsValid reports whether the tier is one of the three defined tiers.
func (t RiskTier) IsValid() bool {
	switch t {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of RiskTier
func (t RiskTier) String() string {
	return string(t)
}

// Level returns the nominal point of the tier on the 1-3 scale.
func (t RiskTier) Level() int {
	switch t {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// ParseRiskTier converts a string to a RiskTier.
func ParseRiskTier(s string) (RiskTier, error) {
	t := RiskTier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRiskTier, s)
	}
	return t, nil
}

// String returns the string representation of TrendDirection
func (d TrendDirection) String() string {
	return string(d)
}
