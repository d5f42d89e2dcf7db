package feature

import (
	"github.com/opensource-health/kestrel/internal/domain"
)

// Assembly-time defaults for optional inputs, matching the values the
// classifier saw during training.
const (
	DefaultPatientAge           = 50
	DefaultProviderClaimsCount  = 1
	DefaultProviderHighCostRate = 0.0
)

// Assemble orders derived, provided, and encoded values into the exact
// vector the classifier expects. The position of every value is pinned by
// domain.FeatureNames; changing this function without retraining the model
// silently corrupts every prediction.
func Assemble(claim *domain.Claim, derived domain.DerivedFeatures, encoded domain.EncodedCategoricals) domain.FeatureVector {
	patientAge := DefaultPatientAge
	if claim.PatientAge != nil {
		patientAge = *claim.PatientAge
	}
	providerClaims := DefaultProviderClaimsCount
	if claim.ProviderClaimsCount != nil {
		providerClaims = *claim.ProviderClaimsCount
	}
	highCostRate := DefaultProviderHighCostRate
	if claim.ProviderHighCostRate != nil {
		highCostRate = *claim.ProviderHighCostRate
	}

	return domain.FeatureVector{
		// Tariff features
		derived.TariffRatio,
		derived.TariffDiffPct,
		derived.TariffDifference,
		claim.TarifINACBG,
		claim.TarifRS,
		derived.TariffPerDay,

		// Clinical features
		float64(claim.LOSDays),
		float64(claim.NumProcedures),
		derived.ProcedureIntensity,
		float64(patientAge),

		// Provider features
		float64(providerClaims),
		highCostRate,

		// Encoded categoricals
		float64(encoded.Hospital),
		float64(encoded.Doctor),
		float64(encoded.ICD10),
		float64(encoded.Gender),
		float64(encoded.CareClass),

		// Binary flags
		boolFeature(derived.IsHighCost),
		boolFeature(derived.IsLongStay),
		boolFeature(derived.HasProcedures),
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
