package predictor

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"clv-dashboard/internal/models"
)

const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// artifact is the on-disk JSON form of a trained model.
type artifact struct {
	Kind     string   `json:"kind"`
	Features []string `json:"features"`

	Coefficients []float64 `json:"coefficients,omitempty"`
	Intercept    *float64  `json:"intercept,omitempty"`

	Trees        []Tree      `json:"trees,omitempty"`
	BaseScore    *float64    `json:"base_score,omitempty"`
	LearningRate *float64    `json:"learning_rate,omitempty"`
	Aggregation  Aggregation `json:"aggregation,omitempty"`
}

// foreignFields names the fields set on a that belong to another kind.
func (a *artifact) foreignFields() []string {
	var fields []string
	switch a.Kind {
	case KindLinear:
		if a.Trees != nil {
			fields = append(fields, "trees")
		}
		if a.BaseScore != nil {
			fields = append(fields, "base_score")
		}
		if a.LearningRate != nil {
			fields = append(fields, "learning_rate")
		}
		if a.Aggregation != "" {
			fields = append(fields, "aggregation")
		}
	case KindTreeEnsemble:
		if a.Coefficients != nil {
			fields = append(fields, "coefficients")
		}
		if a.Intercept != nil {
			fields = append(fields, "intercept")
		}
	}
	return fields
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// LoadFile reads a model artefact from disk.
func LoadFile(filename string) (Predictor, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses a model artefact. The artefact must be a single JSON object
// carrying only the fields of its kind and listing exactly the features in
// models.FeatureOrder, in that order.
func Decode(r io.Reader) (Predictor, error) {
	var a artifact
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode model: trailing data after artefact")
	}
	if fields := a.foreignFields(); len(fields) > 0 {
		return nil, fmt.Errorf("%s model has fields of another kind: %v", a.Kind, fields)
	}

	if !slices.Equal(a.Features, models.FeatureOrder[:]) {
		return nil, fmt.Errorf("model trained on features %v, want %v", a.Features, models.FeatureOrder)
	}

	switch a.Kind {
	case KindLinear:
		if len(a.Coefficients) != models.NumFeatures {
			return nil, fmt.Errorf("linear model has %d coefficients, want %d", len(a.Coefficients), models.NumFeatures)
		}
		return &Linear{Coefficients: a.Coefficients, Intercept: valueOr(a.Intercept, 0)}, nil

	case KindTreeEnsemble:
		if len(a.Trees) == 0 {
			return nil, fmt.Errorf("tree ensemble has no trees")
		}
		for i := range a.Trees {
			if err := a.Trees[i].validate(models.NumFeatures); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		agg := a.Aggregation
		if agg == "" {
			agg = AggregateSum
		}
		if agg != AggregateSum && agg != AggregateMean {
			return nil, fmt.Errorf("unknown aggregation %q", agg)
		}
		return &TreeEnsemble{
			Trees:        a.Trees,
			BaseScore:    valueOr(a.BaseScore, 0),
			LearningRate: valueOr(a.LearningRate, 1),
			Aggregation:  agg,
			NumFeatures:  models.NumFeatures,
		}, nil

	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}
