package domain

import (
	"time"
)

// Claim represents an incoming hospital claim to be scored.
type Claim struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Provider identifiers
	HospitalCode string `json:"hospitalCode"`
	DoctorID     string `json:"doctorId"`

	// Clinical details
	ICD10Code     string `json:"icd10Code"`
	PatientAge    *int   `json:"patientAge,omitempty"`
	PatientGender string `json:"patientGender"`
	CareClass     string `json:"careClass"`
	LOSDays       int    `json:"losDays"`
	NumProcedures int    `json:"numProcedures"`

	// Comma-separated ICD-9 procedure codes. Informational only,
	// never part of the feature vector.
	Procedures string `json:"procedures,omitempty"`

	// Financial details (IDR)
	TarifINACBG float64 `json:"tarifInacbg"`
	TarifRS     float64 `json:"tarifRs"`

	// Provider history counters supplied by the caller. When absent the
	// assembler substitutes the training-time defaults.
	ProviderClaimsCount  *int     `json:"providerClaimsCount,omitempty"`
	ProviderHighCostRate *float64 `json:"providerHighCostRate,omitempty"`

	// Temporal
	SubmittedAt time.Time `json:"submittedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ClaimRequest is the API request payload for claim scoring.
// Required fields are pointers so a missing key can be told apart
// from a zero value.
type ClaimRequest struct {
	ClaimID string `json:"claim_id,omitempty"`

	HospitalCode  *string  `json:"hospital_code"`
	DoctorID      *string  `json:"doctor_id"`
	ICD10Code     *string  `json:"icd10_code"`
	PatientGender *string  `json:"patient_gender"`
	CareClass     *string  `json:"care_class"`
	TarifINACBG   *float64 `json:"tarif_inacbg"`
	TarifRS       *float64 `json:"tarif_rs"`

	PatientAge           *int     `json:"patient_age,omitempty"`
	LOSDays              *int     `json:"los_days,omitempty"`
	NumProcedures        *int     `json:"num_procedures,omitempty"`
	Procedures           string   `json:"procedures,omitempty"`
	ProviderClaimsCount  *int     `json:"provider_claims_count,omitempty"`
	ProviderHighCostRate *float64 `json:"provider_high_cost_rate,omitempty"`
}

// RequiredClaimFields lists the request fields that must be present,
// in the order they are validated.
var RequiredClaimFields = []string{
	"hospital_code",
	"doctor_id",
	"icd10_code",
	"patient_gender",
	"care_class",
	"tarif_inacbg",
	"tarif_rs",
}

// MissingField returns the name of the first absent required field,
// or "" when the request is complete.
func (r *ClaimRequest) MissingField() string {
	checks := []struct {
		name   string
		absent bool
	}{
		{"hospital_code", r.HospitalCode == nil},
		{"doctor_id", r.DoctorID == nil},
		{"icd10_code", r.ICD10Code == nil},
		{"patient_gender", r.PatientGender == nil},
		{"care_class", r.CareClass == nil},
		{"tarif_inacbg", r.TarifINACBG == nil},
		{"tarif_rs", r.TarifRS == nil},
	}
	for _, c := range checks {
		if c.absent {
			return c.name
		}
	}
	return ""
}

// ToClaim converts a complete request to a Claim domain object.
// Optional clinical fields receive their documented defaults
// (los_days=1, num_procedures=0); an explicit zero is kept as given.
func (r *ClaimRequest) ToClaim() *Claim {
	now := time.Now().UTC()

	losDays := 1
	if r.LOSDays != nil {
		losDays = *r.LOSDays
	}
	numProcedures := 0
	if r.NumProcedures != nil {
		numProcedures = *r.NumProcedures
	}

	return &Claim{
		ID:                   r.ClaimID,
		HospitalCode:         *r.HospitalCode,
		DoctorID:             *r.DoctorID,
		ICD10Code:            *r.ICD10Code,
		PatientGender:        *r.PatientGender,
		CareClass:            *r.CareClass,
		TarifINACBG:          *r.TarifINACBG,
		TarifRS:              *r.TarifRS,
		PatientAge:           r.PatientAge,
		LOSDays:              losDays,
		NumProcedures:        numProcedures,
		Procedures:           r.Procedures,
		ProviderClaimsCount:  r.ProviderClaimsCount,
		ProviderHighCostRate: r.ProviderHighCostRate,
		SubmittedAt:          now,
		CreatedAt:            now,
	}
}
