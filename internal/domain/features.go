package domain

// NumFeatures is the width of the feature vector contract.
const NumFeatures = 20

// FeatureNames is the ordered schema of the feature vector. The order is a
// contract shared with the trained classifier: the assembler produces values
// in this order, the model bundle is rejected at load time if its recorded
// order differs, and the explainer reports factors under these names.
// Reordering silently invalidates every prediction.
var FeatureNames = [NumFeatures]string{
	// Tariff features
	"tariff_ratio",
	"tariff_diff_percentage",
	"tariff_difference",
	"tarif_inacbg",
	"tarif_rs",
	"tariff_per_day",

	// Clinical features
	"los_days",
	"num_procedures",
	"procedure_intensity",
	"patient_age",

	// Provider features
	"provider_claims_count",
	"provider_high_cost_rate",

	// Encoded categoricals
	"hospital_encoded",
	"doctor_encoded",
	"icd10_encoded",
	"gender_encoded",
	"care_class_encoded",

	// Binary flags
	"is_high_cost",
	"is_long_stay",
	"has_procedures",
}

// FeatureVector is an ordered sequence of NumFeatures numeric values,
// laid out per FeatureNames.
type FeatureVector []float64

// DerivedFeatures holds the intermediate quantities computed from a claim
// before assembly. Created once per request, never mutated.
type DerivedFeatures struct {
	TariffRatio        float64 `json:"tariffRatio"`
	TariffDifference   float64 `json:"tariffDifference"`
	TariffDiffPct      float64 `json:"tariffDiffPercentage"`
	TariffPerDay       float64 `json:"tariffPerDay"`
	ProcedureIntensity float64 `json:"procedureIntensity"`
	IsHighCost         bool    `json:"isHighCost"`
	IsLongStay         bool    `json:"isLongStay"`
	HasProcedures      bool    `json:"hasProcedures"`
}

// EncodedCategoricals holds the integer codes for the five categorical
// feature domains.
type EncodedCategoricals struct {
	Hospital  int `json:"hospital"`
	Doctor    int `json:"doctor"`
	ICD10     int `json:"icd10"`
	Gender    int `json:"gender"`
	CareClass int `json:"careClass"`
}

// Encoders maps known category strings to the small integer codes the
// classifier was trained on, one table per categorical domain. Values
// unseen at training time encode to 0.
type Encoders struct {
	Hospital  map[string]int `json:"hospital"`
	Doctor    map[string]int `json:"doctor"`
	ICD10     map[string]int `json:"icd10"`
	Gender    map[string]int `json:"gender"`
	CareClass map[string]int `json:"care_class"`
}

// Classifier is the capability contract for a trained fraud model.
// Implementations must be safe for unlimited concurrent readers; the
// engine never mutates a classifier after load.
type Classifier interface {
	// Predict returns the model's own thresholded fraud label.
	Predict(v FeatureVector) (bool, error)

	// PredictProbability returns the probability of fraud in [0,1].
	PredictProbability(v FeatureVector) (float64, error)

	// FeatureImportances returns the per-feature global importances,
	// aligned with FeatureNames. Fixed per classifier, not per input.
	FeatureImportances() []float64
}
