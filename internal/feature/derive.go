// Package feature turns raw claims into the fixed-order numeric vector the
// classifier consumes.
package feature

import (
	"github.com/opensource-health/kestrel/internal/domain"
)

// highCostRatioThreshold flags claims billed more than 30% above the
// INA-CBG reference tariff.
const highCostRatioThreshold = 1.3

// longStayDaysThreshold flags admissions longer than 5 days.
const longStayDaysThreshold = 5

// Derive computes the intermediate quantities for a claim. Total function:
// every division-by-zero case has a defined fallback, so it cannot fail.
// No rounding happens here; presentation-time rounding only, to keep
// compounding error out of the prediction.
func Derive(claim *domain.Claim) domain.DerivedFeatures {
	d := domain.DerivedFeatures{
		TariffRatio:      1.0,
		TariffDifference: claim.TarifRS - claim.TarifINACBG,
	}

	// Ratio and percentage fall back to neutral defaults when the
	// reference tariff is zero or missing.
	if claim.TarifINACBG > 0 {
		d.TariffRatio = claim.TarifRS / claim.TarifINACBG
		d.TariffDiffPct = d.TariffDifference / claim.TarifINACBG * 100
	}

	// A non-positive length of stay leaves per-day quantities undivided.
	if claim.LOSDays > 0 {
		d.TariffPerDay = claim.TarifRS / float64(claim.LOSDays)
		d.ProcedureIntensity = float64(claim.NumProcedures) / float64(claim.LOSDays)
	} else {
		d.TariffPerDay = claim.TarifRS
		d.ProcedureIntensity = float64(claim.NumProcedures)
	}

	d.IsHighCost = d.TariffRatio > highCostRatioThreshold
	d.IsLongStay = claim.LOSDays > longStayDaysThreshold
	d.HasProcedures = claim.NumProcedures > 0

	return d
}
