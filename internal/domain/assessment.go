package domain

import (
	"time"
)

// RiskLevel is one of four ordered bands derived from the risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Recommendation actions, one per risk level.
const (
	ActionRejectOrInvestigate   = "REJECT_OR_INVESTIGATE"
	ActionDetailedReview        = "DETAILED_REVIEW"
	ActionStandardReview        = "STANDARD_REVIEW"
	ActionApproveWithMonitoring = "APPROVE_WITH_MONITORING"
)

// RiskAssessment is the complete scoring result for a claim.
type RiskAssessment struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ClaimID  string `json:"claimId"`

	IsFraud          bool      `json:"isFraud"`
	FraudProbability float64   `json:"fraudProbability"`
	RiskScore        int       `json:"riskScore"`
	RiskLevel        RiskLevel `json:"riskLevel"`

	TopRiskFactors []RiskFactor   `json:"topRiskFactors"`
	Recommendation Recommendation `json:"recommendation"`

	// Advisory flags from the screening rule engine. Never influence
	// the probability, score, or level.
	ScreenFlags []ScreenFlag `json:"screenFlags,omitempty"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// RiskFactor is one entry of the ranked feature explanation.
type RiskFactor struct {
	Feature    string  `json:"feature"`
	Value      float64 `json:"value"`
	Importance float64 `json:"importance"`

	// ContributionScore is the heuristic product value*importance,
	// used only for ranking, never for the probability itself.
	ContributionScore float64 `json:"contribution_score"`
}

// Recommendation is the actionable outcome for a risk level.
type Recommendation struct {
	Action   string `json:"action"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// ScreenFlag is the result of one triggered screening rule.
type ScreenFlag struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId"`
	IngestMs      int64  `json:"ingestMs"`
	ScoreMs       int64  `json:"scoreMs"`
	TotalMs       int64  `json:"totalMs"`
	ModelVersion  string `json:"modelVersion"`
	EngineVersion string `json:"engineVersion"`
}

// ProviderStats holds the running history counters for one provider.
// Maintained outside the scoring path; the core only ever reads the
// caller-supplied copies.
type ProviderStats struct {
	ProviderID    string    `json:"providerId"`
	TenantID      string    `json:"tenantId"`
	ClaimsCount   int64     `json:"claimsCount"`
	HighCostCount int64     `json:"highCostCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HighCostRate returns the historical share of high-cost claims in [0,1].
func (s *ProviderStats) HighCostRate() float64 {
	if s.ClaimsCount <= 0 {
		return 0
	}
	return float64(s.HighCostCount) / float64(s.ClaimsCount)
}
