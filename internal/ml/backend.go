// Package ml provides the classifier backends used to predict pump maintenance,
// the evaluator that scores them, and the selector that picks a winner.
//
// Backends share one contract (Backend) so the pipeline can train, compare and
// persist them interchangeably. Two tree-ensemble variants are provided: a
// bagged random forest and gradient-boosted trees.
package ml

import (
	"fmt"
	"io"
	"math"

	"pump-predictor/internal/common"
)

// Backend is a trainable binary classifier.
type Backend interface {
	// Train fits the model, replacing any previous state.
	Train(X [][]float64, y []int) error

	// Predict returns one 0/1 label per row.
	Predict(X [][]float64) ([]int, error)

	// FeatureImportance maps feature names to non-negative scores.
	FeatureImportance() (map[string]float64, error)

	// Save writes the trained state; Load replaces the state with a saved one.
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Candidate is a named backend taking part in selection.
type Candidate struct {
	Name    string
	Backend Backend
}

// NewBackend builds a backend by kind. params must be the matching params
// record or nil for defaults.
func NewBackend(kind string, params any, featureNames []string) (Backend, error) {
	switch kind {
	case common.BackendRandomForest:
		p := DefaultRandomForestParams()
		if params != nil {
			v, ok := params.(RandomForestParams)
			if !ok {
				return nil, common.ConfigError("ml.NewBackend", "params", fmt.Sprintf("%T", params), "expected RandomForestParams")
			}
			p = v
		}
		return NewRandomForest(p, featureNames)
	case common.BackendGradientBoosting:
		p := DefaultGradientBoostingParams()
		if params != nil {
			v, ok := params.(GradientBoostingParams)
			if !ok {
				return nil, common.ConfigError("ml.NewBackend", "params", fmt.Sprintf("%T", params), "expected GradientBoostingParams")
			}
			p = v
		}
		return NewGradientBoosting(p, featureNames)
	}
	return nil, common.ConfigError("ml.NewBackend", "kind", kind, "unknown backend")
}

// validateTrainInput checks the shape and content of a training set and
// returns the feature width.
func validateTrainInput(op string, X [][]float64, y []int, width int) (int, error) {
	if len(X) == 0 {
		return 0, common.TrainingError(op, "rows", 0, "empty training set")
	}
	if len(X) != len(y) {
		return 0, common.TrainingError(op, "labels", len(y), "features have %d rows, labels %d", len(X), len(y))
	}
	if width == 0 {
		width = len(X[0])
	}
	if width == 0 {
		return 0, common.TrainingError(op, "features", 0, "rows have no features")
	}
	for i, row := range X {
		if len(row) != width {
			return 0, common.TrainingError(op, "row", i, "has %d features, want %d", len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, common.TrainingError(op, "value", v, "row %d feature %d is not finite", i, j)
			}
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return 0, common.TrainingError(op, "label", label, "row %d: labels must be 0 or 1", i)
		}
	}
	return width, nil
}

func validatePredictInput(op string, X [][]float64, width int) error {
	for i, row := range X {
		if len(row) != width {
			return common.DataError(op, "row", i, "has %d features, model expects %d", len(row), width)
		}
	}
	return nil
}

func defaultFeatureNames(width int) []string {
	names := make([]string, width)
	for i := range names {
		names[i] = fmt.Sprintf("f%d", i)
	}
	return names
}

func importanceMap(names []string, scores []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = scores[i]
	}
	return out
}

func labelsFromProba(proba []float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p > common.DecisionThreshold {
			out[i] = 1
		}
	}
	return out
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
