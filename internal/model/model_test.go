package model_test

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
	"github.com/phishguard/phishguard-go/internal/model/modeltest"
)

func TestStumpPredict(t *testing.T) {
	m := modeltest.MustModel(t, modeltest.Stump("ip", 0.5))
	assert.Equal(t, features.SchemaVersion, m.Schema())
	assert.Equal(t, 1, m.NumTrees())

	p, err := m.Predict(features.Extract("http://192.168.1.1/login"))
	require.NoError(t, err)
	assert.Equal(t, model.Phishing, p.Verdict)
	assert.Equal(t, 1, p.Label)
	assert.Equal(t, 1.0, p.Probability)

	p, err = m.Predict(features.Extract("https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Legitimate, p.Verdict)
	assert.Equal(t, 0.0, p.Probability)
}

func TestScalerIsApplied(t *testing.T) {
	a := modeltest.Stump("length_url", 0)
	ix, _ := features.Index("length_url")
	a.Scaler.Mean[ix] = 20
	a.Scaler.Scale[ix] = 2
	m := modeltest.MustModel(t, a)

	// (10-20)/2 = -5 <= 0
	var v features.Vector
	v[ix] = 10
	p, err := m.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, model.Legitimate, p.Verdict)

	// (30-20)/2 = 5 > 0
	v[ix] = 30
	p, err = m.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, model.Phishing, p.Verdict)
}

func TestZeroScaleColumn(t *testing.T) {
	a := modeltest.Stump("ip", 0.5)
	for i := range a.Scaler.Scale {
		a.Scaler.Scale[i] = 0
	}
	m := modeltest.MustModel(t, a)
	var v features.Vector
	v[2] = 1
	p, err := m.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, model.Phishing, p.Verdict)
}

func TestForestAveraging(t *testing.T) {
	a := modeltest.Stump("ip", 0.5)
	// second tree always votes 70% phishing
	a.Forest.Trees = append(a.Forest.Trees, model.TreeParams{
		ChildrenLeft:  []int{-1},
		ChildrenRight: []int{-1},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         [][]float64{{3, 7}},
	})
	m := modeltest.MustModel(t, a)

	p, err := m.Predict(features.Vector{})
	require.NoError(t, err)
	assert.InDelta(t, 0.35, p.Probability, 1e-9)
	assert.Equal(t, model.Legitimate, p.Verdict)
}

func TestPredictSliceDimension(t *testing.T) {
	m := modeltest.MustModel(t, modeltest.Stump("ip", 0.5))
	_, err := m.PredictSlice(make([]float64, 11))
	assert.ErrorIs(t, err, model.ErrDimension)
}

func TestNewRejectsMismatches(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *model.Artifact)
		want   error
	}{
		{"schema tag", func(a *model.Artifact) { a.Schema = "url-11/v0" }, model.ErrSchemaMismatch},
		{"missing schema tag", func(a *model.Artifact) { a.Schema = "" }, model.ErrSchemaMismatch},
		{"missing feature names", func(a *model.Artifact) { a.FeatureNames = nil }, model.ErrSchemaMismatch},
		{"missing schema and names", func(a *model.Artifact) {
			a.Schema = ""
			a.FeatureNames = nil
		}, model.ErrSchemaMismatch},
		{"feature names", func(a *model.Artifact) {
			names := append([]string(nil), a.FeatureNames...)
			names[0], names[1] = names[1], names[0]
			a.FeatureNames = names
		}, model.ErrSchemaMismatch},
		{"scaler dimension", func(a *model.Artifact) {
			a.Scaler.Mean = a.Scaler.Mean[:11]
			a.Scaler.Scale = a.Scaler.Scale[:11]
		}, model.ErrSchemaMismatch},
		{"scaler arrays", func(a *model.Artifact) { a.Scaler.Scale = a.Scaler.Scale[:10] }, model.ErrMalformed},
		{"no trees", func(a *model.Artifact) { a.Forest.Trees = nil }, model.ErrMalformed},
		{"one class", func(a *model.Artifact) { a.Forest.Classes = []int{0} }, model.ErrMalformed},
		{"no phishing class", func(a *model.Artifact) { a.Forest.Classes = []int{0, 2} }, model.ErrMalformed},
		{"feature out of range", func(a *model.Artifact) { a.Forest.Trees[0].Feature[0] = features.Count }, model.ErrMalformed},
		{"backward child", func(a *model.Artifact) { a.Forest.Trees[0].ChildrenRight[0] = 0 }, model.ErrMalformed},
		{"ragged arrays", func(a *model.Artifact) { a.Forest.Trees[0].Threshold = []float64{0} }, model.ErrMalformed},
		{"leaf classes", func(a *model.Artifact) { a.Forest.Trees[0].Value[1] = []float64{1} }, model.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := modeltest.Stump("ip", 0.5)
			tt.mutate(a)
			_, err := model.New(a)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadJSONAndGzip(t *testing.T) {
	a := modeltest.Stump("nb_at", 0.5)
	path := modeltest.WriteFile(t, a)
	m, err := model.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumTrees())

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	m, err = model.Parse(buf.Bytes())
	require.NoError(t, err)
	p, err := m.Predict(features.Extract("http://user@example.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Phishing, p.Verdict)
}

func TestParseGarbage(t *testing.T) {
	_, err := model.Parse([]byte("{not json"))
	assert.ErrorIs(t, err, model.ErrMalformed)

	_, err = model.Load("/nonexistent/model.json")
	assert.Error(t, err)
}
