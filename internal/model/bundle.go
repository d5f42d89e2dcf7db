package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Bundle holds the immutable scoring artifacts exported by the training
// pipeline: the classifier, the categorical encoder tables, and the feature
// schema they were built against. Loaded once at startup and never mutated.
type Bundle struct {
	Version    string
	TrainedAt  time.Time
	Classifier domain.Classifier
	Encoders   *domain.Encoders
}

// bundleFile is the on-disk JSON layout of an exported model bundle.
type bundleFile struct {
	Version            string          `json:"version"`
	TrainedAt          time.Time       `json:"trained_at"`
	FeatureNames       []string        `json:"feature_names"`
	FeatureImportances []float64       `json:"feature_importances"`
	DecisionThreshold  float64         `json:"decision_threshold"`
	Encoders           domain.Encoders `json:"encoders"`
	Forest             []Tree          `json:"forest"`
}

// LoadBundle reads and validates a model bundle from path. The recorded
// feature order must match domain.FeatureNames exactly; a bundle trained
// against a different schema is rejected rather than silently misapplied.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model bundle: %w", err)
	}
	return ParseBundle(data)
}

// ParseBundle validates and assembles a bundle from raw JSON.
func ParseBundle(data []byte) (*Bundle, error) {
	var bf bundleFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse model bundle: %w", err)
	}

	if err := checkFeatureSchema(bf.FeatureNames); err != nil {
		return nil, err
	}

	forest, err := NewForest(bf.Forest, bf.FeatureImportances, bf.DecisionThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid forest: %w", err)
	}

	enc := bf.Encoders
	ensureTables(&enc)

	return &Bundle{
		Version:    bf.Version,
		TrainedAt:  bf.TrainedAt,
		Classifier: forest,
		Encoders:   &enc,
	}, nil
}

// checkFeatureSchema rejects bundles whose recorded feature order has
// drifted from the vector contract.
func checkFeatureSchema(names []string) error {
	if len(names) != domain.NumFeatures {
		return fmt.Errorf("bundle records %d features, engine expects %d", len(names), domain.NumFeatures)
	}
	for i, name := range names {
		if name != domain.FeatureNames[i] {
			return fmt.Errorf("feature order mismatch at %d: bundle has %q, engine expects %q", i, name, domain.FeatureNames[i])
		}
	}
	return nil
}

// ensureTables replaces nil encoder tables with empty ones so every lookup
// falls through to the unknown-category code instead of a nil map read.
func ensureTables(enc *domain.Encoders) {
	if enc.Hospital == nil {
		enc.Hospital = map[string]int{}
	}
	if enc.Doctor == nil {
		enc.Doctor = map[string]int{}
	}
	if enc.ICD10 == nil {
		enc.ICD10 = map[string]int{}
	}
	if enc.Gender == nil {
		enc.Gender = map[string]int{}
	}
	if enc.CareClass == nil {
		enc.CareClass = map[string]int{}
	}
}
