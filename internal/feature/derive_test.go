package feature

import (
	"math"
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestDeriveTariffFeatures(t *testing.T) {
	claim := &domain.Claim{
		TarifINACBG:   4850000,
		TarifRS:       5000000,
		LOSDays:       3,
		NumProcedures: 2,
	}

	d := Derive(claim)

	if !almostEqual(d.TariffRatio, 5000000.0/4850000.0) {
		t.Errorf("expected ratio %v, got %v", 5000000.0/4850000.0, d.TariffRatio)
	}
	if !almostEqual(d.TariffDifference, 150000) {
		t.Errorf("expected difference 150000, got %v", d.TariffDifference)
	}
	if !almostEqual(d.TariffDiffPct, 150000.0/4850000.0*100) {
		t.Errorf("expected diff pct %v, got %v", 150000.0/4850000.0*100, d.TariffDiffPct)
	}
	if !almostEqual(d.TariffPerDay, 5000000.0/3.0) {
		t.Errorf("expected per-day %v, got %v", 5000000.0/3.0, d.TariffPerDay)
	}
	if !almostEqual(d.ProcedureIntensity, 2.0/3.0) {
		t.Errorf("expected intensity %v, got %v", 2.0/3.0, d.ProcedureIntensity)
	}
	if d.IsHighCost {
		t.Error("ratio 1.031 should not be high cost")
	}
	if d.IsLongStay {
		t.Error("3 days should not be a long stay")
	}
	if !d.HasProcedures {
		t.Error("expected has_procedures with 2 procedures")
	}
}

func TestDeriveZeroReferenceTariff(t *testing.T) {
	claim := &domain.Claim{
		TarifINACBG: 0,
		TarifRS:     5000000,
		LOSDays:     2,
	}

	d := Derive(claim)

	if d.TariffRatio != 1.0 {
		t.Errorf("expected neutral ratio 1.0, got %v", d.TariffRatio)
	}
	if d.TariffDiffPct != 0 {
		t.Errorf("expected diff pct 0, got %v", d.TariffDiffPct)
	}
	// Difference is still well-defined without a divisor.
	if !almostEqual(d.TariffDifference, 5000000) {
		t.Errorf("expected difference 5000000, got %v", d.TariffDifference)
	}
}

func TestDeriveZeroLengthOfStay(t *testing.T) {
	claim := &domain.Claim{
		TarifINACBG:   3000000,
		TarifRS:       3500000,
		LOSDays:       0,
		NumProcedures: 4,
	}

	d := Derive(claim)

	if !almostEqual(d.TariffPerDay, 3500000) {
		t.Errorf("expected per-day to equal billed tariff, got %v", d.TariffPerDay)
	}
	if !almostEqual(d.ProcedureIntensity, 4) {
		t.Errorf("expected intensity to equal procedure count, got %v", d.ProcedureIntensity)
	}
}

func TestDeriveFlagBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		claim      domain.Claim
		highCost   bool
		longStay   bool
		procedures bool
	}{
		{"RatioExactly1.3", domain.Claim{TarifINACBG: 1000, TarifRS: 1300, LOSDays: 1}, false, false, false},
		{"RatioAbove1.3", domain.Claim{TarifINACBG: 1000, TarifRS: 1301, LOSDays: 1}, true, false, false},
		{"StayExactly5", domain.Claim{TarifINACBG: 1000, TarifRS: 1000, LOSDays: 5}, false, false, false},
		{"StayAbove5", domain.Claim{TarifINACBG: 1000, TarifRS: 1000, LOSDays: 6}, false, true, false},
		{"OneProcedure", domain.Claim{TarifINACBG: 1000, TarifRS: 1000, LOSDays: 1, NumProcedures: 1}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Derive(&tt.claim)
			if d.IsHighCost != tt.highCost {
				t.Errorf("is_high_cost = %v, want %v", d.IsHighCost, tt.highCost)
			}
			if d.IsLongStay != tt.longStay {
				t.Errorf("is_long_stay = %v, want %v", d.IsLongStay, tt.longStay)
			}
			if d.HasProcedures != tt.procedures {
				t.Errorf("has_procedures = %v, want %v", d.HasProcedures, tt.procedures)
			}
		})
	}
}
