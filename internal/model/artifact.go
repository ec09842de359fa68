package model

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/wonny/renewcast/internal/contracts"
)

// Regressor kinds
const (
	KindLinear = "linear"
	KindForest = "forest"
)

// Artifact is a trained regression model exported as JSON.
// Inputs are standardised with Scaler (when present) before the regressor runs.
type Artifact struct {
	GenerationType contracts.GenerationType `json:"generation_type"`
	SchemaVersion  string                   `json:"schema_version"`
	Features       []string                 `json:"features"`
	Scaler         *Scaler                  `json:"scaler,omitempty"`
	Regressor      Regressor                `json:"regressor"`

	// Checksum is the sha256 of the artifact file, set by the loader
	Checksum string `json:"-"`
}

// Scaler is a standard scaler: (x - mean) / scale
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Regressor is either a linear model or a forest of regression trees
type Regressor struct {
	Kind         string    `json:"kind"`
	Intercept    float64   `json:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`
	Trees        []Tree    `json:"trees,omitempty"`
}

// Tree is a flat array of nodes; node 0 is the root.
// A node with Left == -1 is a leaf and yields Value.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is one split or leaf of a Tree
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// ParseArtifact decodes and validates an artifact document
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the artifact is internally consistent
func (a *Artifact) Validate() error {
	if !a.GenerationType.Valid() {
		return fmt.Errorf("artifact generation_type %q invalid", a.GenerationType)
	}
	if a.SchemaVersion == "" {
		return fmt.Errorf("artifact schema_version required")
	}
	n := len(a.Features)
	if n == 0 {
		return fmt.Errorf("artifact features required")
	}

	if a.Scaler != nil {
		if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
			return fmt.Errorf("scaler has %d means and %d scales for %d features", len(a.Scaler.Mean), len(a.Scaler.Scale), n)
		}
		for i, s := range a.Scaler.Scale {
			if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
				return fmt.Errorf("scaler scale[%d] = %v", i, s)
			}
		}
	}

	switch a.Regressor.Kind {
	case KindLinear:
		if len(a.Regressor.Coefficients) != n {
			return fmt.Errorf("linear regressor has %d coefficients for %d features", len(a.Regressor.Coefficients), n)
		}
	case KindForest:
		if len(a.Regressor.Trees) == 0 {
			return fmt.Errorf("forest regressor has no trees")
		}
		for i, t := range a.Regressor.Trees {
			if err := t.validate(n); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown regressor kind %q", a.Regressor.Kind)
	}
	return nil
}

// children must point forward so evaluation always terminates
func (t Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, node := range t.Nodes {
		if node.Left == -1 {
			continue
		}
		if node.Feature < 0 || node.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d", i, node.Feature)
		}
		if node.Left <= i || node.Left >= len(t.Nodes) || node.Right <= i || node.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, node.Left, node.Right)
		}
	}
	return nil
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Left == -1 {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// Predict evaluates the model row by row
func (a *Artifact) Predict(matrix [][]float64) ([]float64, error) {
	out := make([]float64, len(matrix))
	x := make([]float64, len(a.Features))
	for r, row := range matrix {
		if len(row) != len(a.Features) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", r, len(row), len(a.Features))
		}
		copy(x, row)
		if a.Scaler != nil {
			for i := range x {
				x[i] = (x[i] - a.Scaler.Mean[i]) / a.Scaler.Scale[i]
			}
		}
		out[r] = a.predictRow(x)
	}
	return out, nil
}

func (a *Artifact) predictRow(x []float64) float64 {
	switch a.Regressor.Kind {
	case KindLinear:
		y := a.Regressor.Intercept
		for i, c := range a.Regressor.Coefficients {
			y += c * x[i]
		}
		return y
	default:
		var sum float64
		for _, t := range a.Regressor.Trees {
			sum += t.predict(x)
		}
		return sum / float64(len(a.Regressor.Trees))
	}
}
