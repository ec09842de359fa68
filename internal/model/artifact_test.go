package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/renewcast/internal/contracts"
)

func linearArtifact() *Artifact {
	return &Artifact{
		GenerationType: contracts.Solar,
		SchemaVersion:  "solar.v1",
		Features:       []string{"A", "B"},
		Scaler:         &Scaler{Mean: []float64{1, 2}, Scale: []float64{2, 4}},
		Regressor:      Regressor{Kind: KindLinear, Intercept: 10, Coefficients: []float64{3, -1}},
	}
}

func TestLinearPredictWithScaler(t *testing.T) {
	a := linearArtifact()
	require.NoError(t, a.Validate())

	// x = ((5-1)/2, (10-2)/4) = (2, 2); y = 10 + 6 - 2
	out, err := a.Predict([][]float64{{5, 10}, {1, 2}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{14, 10}, out, 1e-9)
}

func TestForestPredictIsMeanOfTrees(t *testing.T) {
	stump := func(threshold, low, high float64) Tree {
		return Tree{Nodes: []Node{
			{Feature: 0, Threshold: threshold, Left: 1, Right: 2},
			{Left: -1, Value: low},
			{Left: -1, Value: high},
		}}
	}
	a := &Artifact{
		GenerationType: contracts.Wind,
		SchemaVersion:  "wind.v1",
		Features:       []string{"WindSpeed"},
		Regressor:      Regressor{Kind: KindForest, Trees: []Tree{stump(5, 0, 100), stump(10, 20, 200)}},
	}
	require.NoError(t, a.Validate())

	out, err := a.Predict([][]float64{{4}, {7}, {12}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{10, 60, 150}, out, 1e-9)
}

func TestPredictRejectsRowWidth(t *testing.T) {
	_, err := linearArtifact().Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"unknown type", func(a *Artifact) { a.GenerationType = "tidal" }},
		{"missing schema", func(a *Artifact) { a.SchemaVersion = "" }},
		{"no features", func(a *Artifact) { a.Features = nil }},
		{"scaler length", func(a *Artifact) { a.Scaler.Mean = []float64{1} }},
		{"zero scale", func(a *Artifact) { a.Scaler.Scale = []float64{1, 0} }},
		{"coefficient count", func(a *Artifact) { a.Regressor.Coefficients = []float64{1} }},
		{"unknown kind", func(a *Artifact) { a.Regressor.Kind = "svm" }},
		{"empty forest", func(a *Artifact) { a.Regressor = Regressor{Kind: KindForest} }},
		{"backward child", func(a *Artifact) {
			a.Regressor = Regressor{Kind: KindForest, Trees: []Tree{{Nodes: []Node{
				{Feature: 0, Left: 0, Right: 1},
				{Left: -1},
			}}}}
		}},
		{"split feature out of range", func(a *Artifact) {
			a.Regressor = Regressor{Kind: KindForest, Trees: []Tree{{Nodes: []Node{
				{Feature: 7, Left: 1, Right: 2},
				{Left: -1},
				{Left: -1},
			}}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := linearArtifact()
			tt.mutate(a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestParseArtifact(t *testing.T) {
	doc := `{
		"generation_type": "solar",
		"schema_version": "solar.v1",
		"features": ["A", "B"],
		"regressor": {"kind": "linear", "intercept": 1.5, "coefficients": [1, 1]},
		"trained_at": "2024-01-01"
	}`
	a, err := ParseArtifact([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, a.Scaler)

	out, err := a.Predict([][]float64{{1, 2}})
	require.NoError(t, err)
	assert.InDelta(t, 4.5, out[0], 1e-9)

	_, err = ParseArtifact([]byte(`{not json`))
	assert.Error(t, err)
}
