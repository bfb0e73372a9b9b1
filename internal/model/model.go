package model

import (
	"fmt"

	"github.com/phishguard/phishguard-go/internal/features"
)

// Verdict is the user-facing classification.
type Verdict string

const (
	Legitimate Verdict = "legitimate"
	Phishing   Verdict = "phishing"
)

// VerdictFor maps the training label to a verdict: 1 is phishing, anything
// else legitimate.
func VerdictFor(label int) Verdict {
	if label == 1 {
		return Phishing
	}
	return Legitimate
}

// Prediction is the outcome of one inference.
type Prediction struct {
	Label       int     `json:"label"`
	Verdict     Verdict `json:"prediction"`
	Probability float64 `json:"probability"`
}

// Model pairs the fitted scaler with the forest. It is immutable once built
// and safe for concurrent use.
type Model struct {
	schema  string
	scaler  *Scaler
	forest  *Forest
	phishIx int
	meta    map[string]any
}

// New validates an artifact against the compiled feature schema.
func New(a *Artifact) (*Model, error) {
	if a.Schema != features.SchemaVersion {
		return nil, fmt.Errorf("%w: artifact schema %q, service schema %q", ErrSchemaMismatch, a.Schema, features.SchemaVersion)
	}
	// the count alone cannot catch a reordered column layout
	if len(a.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: artifact does not list its feature names", ErrSchemaMismatch)
	}
	if err := features.CheckNames(a.FeatureNames); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	scaler, err := newScaler(a.Scaler)
	if err != nil {
		return nil, err
	}
	if scaler.Dim() != features.Count {
		return nil, fmt.Errorf("%w: scaler fitted on %d features, schema has %d", ErrSchemaMismatch, scaler.Dim(), features.Count)
	}
	forest, err := newForest(a.Forest, features.Count)
	if err != nil {
		return nil, err
	}

	phishIx := -1
	for i, c := range forest.Classes() {
		if c == 1 {
			phishIx = i
		}
	}
	if phishIx < 0 {
		return nil, fmt.Errorf("%w: forest has no phishing class (label 1)", ErrMalformed)
	}

	return &Model{
		schema:  features.SchemaVersion,
		scaler:  scaler,
		forest:  forest,
		phishIx: phishIx,
		meta:    a.Metadata,
	}, nil
}

// Schema is the feature schema version the model was validated against.
func (m *Model) Schema() string { return m.schema }

// NumTrees is the size of the forest.
func (m *Model) NumTrees() int { return m.forest.NumTrees() }

// Metadata returns the free-form metadata stored in the artifact.
func (m *Model) Metadata() map[string]any { return m.meta }

// Predict scales v and runs the forest.
func (m *Model) Predict(v features.Vector) (Prediction, error) {
	return m.PredictSlice(v[:])
}

// PredictSlice is Predict for callers holding a plain slice. The length is
// checked before the scaler runs.
func (m *Model) PredictSlice(x []float64) (Prediction, error) {
	if len(x) != m.scaler.Dim() {
		return Prediction{}, fmt.Errorf("%w: model expects %d features, got %d", ErrDimension, m.scaler.Dim(), len(x))
	}
	scaled, err := m.scaler.Transform(x)
	if err != nil {
		return Prediction{}, err
	}
	proba, err := m.forest.PredictProba(scaled)
	if err != nil {
		return Prediction{}, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	label := m.forest.Classes()[best]
	return Prediction{
		Label:       label,
		Verdict:     VerdictFor(label),
		Probability: proba[m.phishIx],
	}, nil
}
