// Package risk maps fraud probabilities to discrete tiers, ranks feature
// contributions, and selects recommendations.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Tier thresholds on the 0-100 risk score, inclusive at the lower edge.
const (
	criticalThreshold = 80
	highThreshold     = 60
	mediumThreshold   = 40
)

// Score converts a probability to an integer risk score in [0,100].
func Score(probability float64) int {
	s := int(math.Round(probability * 100))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Level maps a risk score to its tier. The bands have no gaps or overlaps:
// exactly 80 is critical, exactly 60 is high, exactly 40 is medium.
func Level(score int) domain.RiskLevel {
	switch {
	case score >= criticalThreshold:
		return domain.RiskCritical
	case score >= highThreshold:
		return domain.RiskHigh
	case score >= mediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Contributions builds the full ranked feature explanation for a vector.
// contribution_score(i) = value(i) * importance(i); ranked by descending
// absolute contribution with ties kept in original feature order, so the
// output is deterministic.
func Contributions(v domain.FeatureVector, importances []float64) []domain.RiskFactor {
	n := len(v)
	if len(importances) < n {
		n = len(importances)
	}

	factors := make([]domain.RiskFactor, n)
	for i := 0; i < n; i++ {
		factors[i] = domain.RiskFactor{
			Feature:           domain.FeatureNames[i],
			Value:             v[i],
			Importance:        importances[i],
			ContributionScore: v[i] * importances[i],
		}
	}

	sort.SliceStable(factors, func(a, b int) bool {
		return math.Abs(factors[a].ContributionScore) > math.Abs(factors[b].ContributionScore)
	})

	return factors
}

// TopFactors returns the first n entries of a ranked factor list.
func TopFactors(factors []domain.RiskFactor, n int) []domain.RiskFactor {
	if n <= 0 || n > len(factors) {
		n = len(factors)
	}
	return factors[:n]
}

// DefaultTopFactors is the number of factors exposed when the caller does
// not ask for more.
const DefaultTopFactors = 5

// Recommend returns the actionable recommendation for a tier, with the
// numeric score interpolated into the message. An unknown tier falls back
// to the low entry.
func Recommend(level domain.RiskLevel, score int) domain.Recommendation {
	switch level {
	case domain.RiskCritical:
		return domain.Recommendation{
			Action:   domain.ActionRejectOrInvestigate,
			Message:  fmt.Sprintf("Klaim memiliki risiko fraud sangat tinggi (%d%%). Investigasi mendalam atau penolakan disarankan.", score),
			Priority: "URGENT",
		}
	case domain.RiskHigh:
		return domain.Recommendation{
			Action:   domain.ActionDetailedReview,
			Message:  fmt.Sprintf("Klaim memiliki risiko fraud tinggi (%d%%). Review mendetail diperlukan.", score),
			Priority: "HIGH",
		}
	case domain.RiskMedium:
		return domain.Recommendation{
			Action:   domain.ActionStandardReview,
			Message:  fmt.Sprintf("Klaim memiliki risiko sedang (%d%%). Review standar dengan perhatian.", score),
			Priority: "NORMAL",
		}
	default:
		return domain.Recommendation{
			Action:   domain.ActionApproveWithMonitoring,
			Message:  fmt.Sprintf("Klaim memiliki risiko rendah (%d%%). Proses standar.", score),
			Priority: "LOW",
		}
	}
}
