// Package model loads and serves the trained fraud classifier.
package model

import (
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Node is one node of a serialized decision tree. Interior nodes route on
// Feature <= Threshold; leaves carry the fraud fraction observed at
// training time.
type Node struct {
	// Feature is the feature index to split on, or -1 for a leaf.
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`

	// Prob is the leaf's fraud probability. Ignored on interior nodes.
	Prob float64 `json:"p"`
}

// Tree is a single decision tree, nodes indexed from the root at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is an ensemble of decision trees implementing domain.Classifier.
// The probability of fraud is the mean of the leaf fractions across trees.
// Immutable after construction, safe for unlimited concurrent readers.
type Forest struct {
	trees       []Tree
	importances []float64
	threshold   float64
}

// NewForest builds a classifier from serialized trees. importances must be
// aligned with domain.FeatureNames. threshold is the probability at or above
// which Predict reports fraud.
func NewForest(trees []Tree, importances []float64, threshold float64) (*Forest, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	if len(importances) != domain.NumFeatures {
		return nil, fmt.Errorf("expected %d feature importances, got %d", domain.NumFeatures, len(importances))
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &Forest{
		trees:       trees,
		importances: importances,
		threshold:   threshold,
	}, nil
}

// PredictProbability returns the probability of fraud for a feature vector.
func (f *Forest) PredictProbability(v domain.FeatureVector) (float64, error) {
	if len(v) != domain.NumFeatures {
		return 0, fmt.Errorf("feature vector has %d values, want %d", len(v), domain.NumFeatures)
	}

	var sum float64
	for i := range f.trees {
		p, err := f.trees[i].traverse(v)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(f.trees)), nil
}

// Predict returns the thresholded fraud label.
func (f *Forest) Predict(v domain.FeatureVector) (bool, error) {
	p, err := f.PredictProbability(v)
	if err != nil {
		return false, err
	}
	return p >= f.threshold, nil
}

// FeatureImportances returns the global per-feature importances.
// The returned slice is shared and must not be modified.
func (f *Forest) FeatureImportances() []float64 {
	return f.importances
}

// Threshold returns the decision threshold for the fraud label.
func (f *Forest) Threshold() float64 {
	return f.threshold
}

// TreeCount returns the ensemble size.
func (f *Forest) TreeCount() int {
	return len(f.trees)
}

// traverse walks the tree from the root to a leaf. The step budget bounds
// malformed trees with index cycles.
func (t *Tree) traverse(v domain.FeatureVector) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, fmt.Errorf("tree has no nodes")
	}

	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", idx)
		}
		n := t.Nodes[idx]

		if n.Feature < 0 {
			return n.Prob, nil
		}
		if n.Feature >= len(v) {
			return 0, fmt.Errorf("split feature %d out of range", n.Feature)
		}

		if v[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return 0, fmt.Errorf("tree traversal did not reach a leaf")
}
