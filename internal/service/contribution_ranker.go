package service

import (
	"math"
	"sort"

	"github.com/viacare/risk-assessor/internal/domain"
)

// RankContributions orders the contributions of one visit by descending
// magnitude and joins each with the value observed for that feature. Equal
// magnitudes keep schema order. The input set is not modified.
func RankContributions(observation domain.Observation, set domain.ContributionSet) []domain.RankedContribution {
	ranked := make([]domain.RankedContribution, 0, len(set.Contributions))
	for _, c := range set.Contributions {
		observed, _ := observation.Value(c.Feature)
		ranked = append(ranked, domain.RankedContribution{
			Feature:       c.Feature,
			Label:         c.Feature.Label(),
			Value:         c.Value,
			ObservedValue: observed,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})
	return ranked
}

// TopContributions returns at most n entries of ranked.
func TopContributions(ranked []domain.RankedContribution, n int) []domain.RankedContribution {
	if n < 0 {
		n = 0
	}
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
