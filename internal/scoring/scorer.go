// Package scoring composes the feature pipeline, the classifier, and the
// risk explainer into one claim-scoring transaction.
package scoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/feature"
	"github.com/opensource-health/kestrel/internal/risk"
	"github.com/opensource-health/kestrel/internal/screen"
)

// EngineVersion is stamped into assessment metadata.
const EngineVersion = "kestrel-1.0"

// Scorer orchestrates one request-to-assessment transaction. The scoring
// artifacts are set once after load and treated as immutable; scoring
// itself is stateless and safe for unlimited concurrent callers.
type Scorer struct {
	mu           sync.RWMutex
	classifier   domain.Classifier
	encoders     *domain.Encoders
	modelVersion string

	screener *screen.Engine
}

// NewScorer creates a scorer without artifacts. Until SetArtifacts is
// called every Score returns domain.ErrModelUnavailable. screener may be
// nil to disable advisory screening.
func NewScorer(screener *screen.Engine) *Scorer {
	return &Scorer{screener: screener}
}

// SetArtifacts installs the loaded classifier and encoder tables.
func (s *Scorer) SetArtifacts(classifier domain.Classifier, encoders *domain.Encoders, modelVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier = classifier
	s.encoders = encoders
	s.modelVersion = modelVersion
}

// Ready reports whether the classifier artifact is loaded.
func (s *Scorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classifier != nil && s.encoders != nil
}

// ModelVersion returns the loaded artifact version, or "" when degraded.
func (s *Scorer) ModelVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelVersion
}

// FeatureImportances returns the loaded classifier's global importances,
// or nil when no artifact is loaded.
func (s *Scorer) FeatureImportances() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.classifier == nil {
		return nil
	}
	return s.classifier.FeatureImportances()
}

// Score validates a request and runs the fixed pipeline:
// derive -> encode -> assemble -> classify -> explain.
//
// Failure modes: *domain.MissingFieldError for an absent required field
// (checked before anything else, the classifier is never invoked),
// domain.ErrModelUnavailable when no artifact is loaded, and
// *domain.ComputationError for unexpected classifier failures. On error no
// partial assessment is returned.
func (s *Scorer) Score(ctx context.Context, tenantID string, req *domain.ClaimRequest) (*domain.Claim, *domain.RiskAssessment, error) {
	if field := req.MissingField(); field != "" {
		return nil, nil, &domain.MissingFieldError{Field: field}
	}

	s.mu.RLock()
	classifier := s.classifier
	encoders := s.encoders
	modelVersion := s.modelVersion
	s.mu.RUnlock()

	if classifier == nil || encoders == nil {
		return nil, nil, domain.ErrModelUnavailable
	}

	start := time.Now()

	claim := req.ToClaim()
	claim.TenantID = tenantID
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}

	derived := feature.Derive(claim)
	encoded := feature.EncodeClaim(encoders, claim)
	vector := feature.Assemble(claim, derived, encoded)

	probability, err := classifier.PredictProbability(vector)
	if err != nil {
		return nil, nil, &domain.ComputationError{Stage: "predict_probability", Err: err}
	}
	isFraud, err := classifier.Predict(vector)
	if err != nil {
		return nil, nil, &domain.ComputationError{Stage: "predict", Err: err}
	}

	score := risk.Score(probability)
	level := risk.Level(score)

	assessment := &domain.RiskAssessment{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		ClaimID:          claim.ID,
		IsFraud:          isFraud,
		FraudProbability: probability,
		RiskScore:        score,
		RiskLevel:        level,
		TopRiskFactors:   risk.Contributions(vector, classifier.FeatureImportances()),
		Recommendation:   risk.Recommend(level, score),
		Timestamp:        time.Now().UTC(),
	}

	if s.screener != nil {
		assessment.ScreenFlags = s.screener.Evaluate(ctx, claim, derived)
	}

	assessment.Metadata = domain.AssessmentMetadata{
		ScoreMs:       time.Since(start).Milliseconds(),
		ModelVersion:  modelVersion,
		EngineVersion: EngineVersion,
	}

	return claim, assessment, nil
}
