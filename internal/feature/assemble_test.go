package feature

import (
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
)

func testEncoders() *domain.Encoders {
	return &domain.Encoders{
		Hospital:  map[string]int{"RS001": 0, "RS002": 1, "RS003": 2},
		Doctor:    map[string]int{"DR001": 0, "DR002": 1},
		ICD10:     map[string]int{"J18.9": 5, "I10": 3},
		Gender:    map[string]int{"L": 0, "P": 1},
		CareClass: map[string]int{"1": 0, "2": 1, "3": 2},
	}
}

func TestEncodeKnownCategories(t *testing.T) {
	enc := testEncoders()

	claim := &domain.Claim{
		HospitalCode:  "RS002",
		DoctorID:      "DR002",
		ICD10Code:     "J18.9",
		PatientGender: "P",
		CareClass:     "3",
	}

	codes := EncodeClaim(enc, claim)

	if codes.Hospital != 1 {
		t.Errorf("hospital code = %d, want 1", codes.Hospital)
	}
	if codes.Doctor != 1 {
		t.Errorf("doctor code = %d, want 1", codes.Doctor)
	}
	if codes.ICD10 != 5 {
		t.Errorf("icd10 code = %d, want 5", codes.ICD10)
	}
	if codes.Gender != 1 {
		t.Errorf("gender code = %d, want 1", codes.Gender)
	}
	if codes.CareClass != 2 {
		t.Errorf("care class code = %d, want 2", codes.CareClass)
	}
}

func TestEncodeUnknownCategoryFallsBackToZero(t *testing.T) {
	enc := testEncoders()

	for _, value := range []string{"ZZZZ", "", "not a code", "rs001"} {
		got := Encode(enc.Hospital, value)
		if got != UnknownCategoryCode {
			t.Errorf("Encode(%q) = %d, want %d", value, got, UnknownCategoryCode)
		}
		// Idempotent across repeated calls.
		if again := Encode(enc.Hospital, value); again != got {
			t.Errorf("Encode(%q) not deterministic: %d then %d", value, got, again)
		}
	}
}

// TestAssembleOrderContract pins the 20-value vector order. If this test
// fails the classifier contract has drifted and the model must be retrained.
func TestAssembleOrderContract(t *testing.T) {
	age := 45
	claims := 12
	rate := 0.25

	claim := &domain.Claim{
		HospitalCode:         "RS001",
		DoctorID:             "DR001",
		ICD10Code:            "J18.9",
		PatientGender:        "L",
		CareClass:            "2",
		TarifINACBG:          4000000,
		TarifRS:              5000000,
		LOSDays:              4,
		NumProcedures:        2,
		PatientAge:           &age,
		ProviderClaimsCount:  &claims,
		ProviderHighCostRate: &rate,
	}
	derived := Derive(claim)
	encoded := EncodeClaim(testEncoders(), claim)

	vec := Assemble(claim, derived, encoded)

	if len(vec) != domain.NumFeatures {
		t.Fatalf("vector length = %d, want %d", len(vec), domain.NumFeatures)
	}

	want := map[string]float64{
		"tariff_ratio":            1.25,
		"tariff_diff_percentage":  25,
		"tariff_difference":       1000000,
		"tarif_inacbg":            4000000,
		"tarif_rs":                5000000,
		"tariff_per_day":          1250000,
		"los_days":                4,
		"num_procedures":          2,
		"procedure_intensity":     0.5,
		"patient_age":             45,
		"provider_claims_count":   12,
		"provider_high_cost_rate": 0.25,
		"hospital_encoded":        0,
		"doctor_encoded":          0,
		"icd10_encoded":           5,
		"gender_encoded":          0,
		"care_class_encoded":      1,
		"is_high_cost":            0,
		"is_long_stay":            0,
		"has_procedures":          1,
	}

	for i, name := range domain.FeatureNames {
		if !almostEqual(vec[i], want[name]) {
			t.Errorf("vec[%d] %s = %v, want %v", i, name, vec[i], want[name])
		}
	}
}

func TestAssembleDefaults(t *testing.T) {
	claim := &domain.Claim{
		HospitalCode:  "RS001",
		DoctorID:      "DR001",
		ICD10Code:     "J18.9",
		PatientGender: "L",
		CareClass:     "1",
		TarifINACBG:   1000000,
		TarifRS:       1000000,
		LOSDays:       1,
	}

	vec := Assemble(claim, Derive(claim), EncodeClaim(testEncoders(), claim))

	idx := make(map[string]int, domain.NumFeatures)
	for i, name := range domain.FeatureNames {
		idx[name] = i
	}

	if got := vec[idx["patient_age"]]; got != DefaultPatientAge {
		t.Errorf("patient_age default = %v, want %d", got, DefaultPatientAge)
	}
	if got := vec[idx["provider_claims_count"]]; got != DefaultProviderClaimsCount {
		t.Errorf("provider_claims_count default = %v, want %d", got, DefaultProviderClaimsCount)
	}
	if got := vec[idx["provider_high_cost_rate"]]; got != DefaultProviderHighCostRate {
		t.Errorf("provider_high_cost_rate default = %v, want %v", got, DefaultProviderHighCostRate)
	}
}
