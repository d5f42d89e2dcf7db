package feature

import (
	"github.com/opensource-health/kestrel/internal/domain"
)

// UnknownCategoryCode is substituted for any category the encoders have not
// seen. Zero is the most common class under the training-time label
// encoding, so unknown values degrade to the safest assumption instead of
// failing the request.
const UnknownCategoryCode = 0

// Encode looks up value in a single encoder table. Unknown, empty, and
// malformed values all map to UnknownCategoryCode, deterministically.
func Encode(table map[string]int, value string) int {
	if code, ok := table[value]; ok {
		return code
	}
	return UnknownCategoryCode
}

// EncodeClaim encodes the five categorical domains of a claim.
func EncodeClaim(enc *domain.Encoders, claim *domain.Claim) domain.EncodedCategoricals {
	return domain.EncodedCategoricals{
		Hospital:  Encode(enc.Hospital, claim.HospitalCode),
		Doctor:    Encode(enc.Doctor, claim.DoctorID),
		ICD10:     Encode(enc.ICD10, claim.ICD10Code),
		Gender:    Encode(enc.Gender, claim.PatientGender),
		CareClass: Encode(enc.CareClass, claim.CareClass),
	}
}
