package domain

import "testing"

// TestFeatureSchema guards the vector-width contract: the named schema,
// the declared width, and a trained bundle's recorded order must all
// agree or every prediction is silently misaligned.
func TestFeatureSchema(t *testing.T) {
	if len(FeatureNames) != NumFeatures {
		t.Fatalf("schema has %d names, NumFeatures = %d", len(FeatureNames), NumFeatures)
	}

	seen := make(map[string]bool, NumFeatures)
	for i, name := range FeatureNames {
		if name == "" {
			t.Errorf("feature %d has an empty name", i)
		}
		if seen[name] {
			t.Errorf("duplicate feature name %q", name)
		}
		seen[name] = true
	}

	if FeatureNames[0] != "tariff_ratio" {
		t.Errorf("first feature = %q, want tariff_ratio", FeatureNames[0])
	}
	if FeatureNames[NumFeatures-1] != "has_procedures" {
		t.Errorf("last feature = %q, want has_procedures", FeatureNames[NumFeatures-1])
	}
}
