// Package model loads the fitted scaler and random forest and runs inference.
package model

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrSchemaMismatch means the artifact was fitted on a different feature layout.
	ErrSchemaMismatch = errors.New("model schema mismatch")
	// ErrDimension means a vector's length disagrees with the fitted dimensionality.
	ErrDimension = errors.New("feature dimension mismatch")
	// ErrMalformed means the artifact is structurally invalid.
	ErrMalformed = errors.New("malformed model artifact")
)

// Artifact is the on-disk form of a fitted model: a JSON export of a
// StandardScaler and a RandomForestClassifier.
type Artifact struct {
	Schema       string         `json:"schema"`
	FeatureNames []string       `json:"feature_names"`
	Scaler       ScalerParams   `json:"scaler"`
	Forest       ForestParams   `json:"forest"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ScalerParams are the fitted per-feature mean and scale.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ForestParams are the fitted trees and their class labels.
type ForestParams struct {
	Classes []int        `json:"classes"`
	Trees   []TreeParams `json:"trees"`
}

// TreeParams is one decision tree in parallel-array form. A node is a leaf
// when ChildrenLeft is -1.
type TreeParams struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Load reads an artifact from path. Gzip-compressed files are detected by
// their magic bytes.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Model, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompress model: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress model: %w", err)
		}
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return New(&a)
}
