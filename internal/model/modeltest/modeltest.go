// Package modeltest builds small artifacts for tests.
package modeltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
)

// Stump returns an artifact with an identity scaler and one depth-1 tree:
// feature <= threshold is legitimate, above it phishing.
func Stump(feature string, threshold float64) *model.Artifact {
	ix, ok := features.Index(feature)
	if !ok {
		panic("modeltest: unknown feature " + feature)
	}
	mean := make([]float64, features.Count)
	scale := make([]float64, features.Count)
	for i := range scale {
		scale[i] = 1
	}
	return &model.Artifact{
		Schema:       features.SchemaVersion,
		FeatureNames: features.Names[:],
		Scaler:       model.ScalerParams{Mean: mean, Scale: scale},
		Forest: model.ForestParams{
			Classes: []int{0, 1},
			Trees: []model.TreeParams{{
				ChildrenLeft:  []int{1, -1, -1},
				ChildrenRight: []int{2, -1, -1},
				Feature:       []int{ix, -2, -2},
				Threshold:     []float64{threshold, -2, -2},
				Value:         [][]float64{{5, 5}, {10, 0}, {0, 10}},
			}},
		},
	}
}

// MustModel builds a model from a, failing the test on error.
func MustModel(t testing.TB, a *model.Artifact) *model.Model {
	t.Helper()
	m, err := model.New(a)
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	return m
}

// WriteFile stores a as JSON in a temp dir and returns the path.
func WriteFile(t testing.TB, a *model.Artifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}
