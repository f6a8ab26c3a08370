// Package predictor loads pre-trained CLV regressors and evaluates them on a
// feature vector laid out in models.FeatureOrder.
package predictor

import (
	"fmt"
)

// Predictor maps one feature vector to one forecast.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// Linear is w·x + b.
type Linear struct {
	Coefficients []float64
	Intercept    float64
}

func (m *Linear) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("linear model expects %d features, got %d", len(m.Coefficients), len(x))
	}
	y := m.Intercept
	for i, w := range m.Coefficients {
		y += w * x[i]
	}
	return y, nil
}

// Node is one entry of a flattened binary regression tree. A node with
// Left < 0 is a leaf. Otherwise x[Feature] <= Threshold goes left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks that every split refers to a real feature and that children
// come after their parent, which rules out cycles.
func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d splits on feature %d, have %d", i, n.Feature, numFeatures)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children %d/%d out of order", i, n.Left, n.Right)
		}
	}
	return nil
}

// Aggregation controls how tree outputs are combined.
type Aggregation string

const (
	// AggregateSum is boosting: base + rate * sum(trees).
	AggregateSum Aggregation = "sum"
	// AggregateMean is bagging: base + mean(trees).
	AggregateMean Aggregation = "mean"
)

type TreeEnsemble struct {
	Trees        []Tree
	BaseScore    float64
	LearningRate float64
	Aggregation  Aggregation
	NumFeatures  int
}

func (m *TreeEnsemble) Predict(x []float64) (float64, error) {
	if len(x) != m.NumFeatures {
		return 0, fmt.Errorf("tree ensemble expects %d features, got %d", m.NumFeatures, len(x))
	}
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].eval(x)
	}
	if m.Aggregation == AggregateMean && len(m.Trees) > 0 {
		return m.BaseScore + sum/float64(len(m.Trees)), nil
	}
	return m.BaseScore + m.LearningRate*sum, nil
}
