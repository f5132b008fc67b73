// Package ml holds the baseline models the pipeline fits: a standardised
// logistic regression for contract outcomes and a standardised ridge
// regression for odds. The ridge system is solved in closed form with
// gonum/mat, the logistic log loss is minimised with gonum/optimize, and both
// serialise to plain JSON.
package ml

import (
	"errors"
	"fmt"
)

// ErrEmptyTrainingSet is returned when no usable rows remain after masking.
var ErrEmptyTrainingSet = errors.New("empty training set")

// Model is anything fitted on a feature matrix and a target vector.
type Model interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
}

// Regressor predicts a continuous target.
type Regressor interface {
	Model
}

// Classifier predicts a binary target; Predict returns 0/1 labels.
type Classifier interface {
	Model
	PredictProba(X [][]float64) []float64
}

// Serialised model kinds.
const (
	KindLogistic = "logistic"
	KindLinear   = "linear"
)

// KindOf names the concrete model type for persistence.
func KindOf(m Model) (string, error) {
	switch m.(type) {
	case *LogisticRegression:
		return KindLogistic, nil
	case *LinearRegression:
		return KindLinear, nil
	}
	return "", fmt.Errorf("unsupported model type %T", m)
}

// NewModel returns an empty model of the given kind, ready to unmarshal into.
func NewModel(kind string) (Model, error) {
	switch kind {
	case KindLogistic:
		return &LogisticRegression{}, nil
	case KindLinear:
		return &LinearRegression{}, nil
	}
	return nil, fmt.Errorf("unknown model kind %q", kind)
}

// FitConfig are the solver hyperparameters. L2 is the ridge penalty on the
// standardised weights; the bias is never penalised. MaxIterations bounds the
// logistic optimiser.
type FitConfig struct {
	MaxIterations int     `json:"max_iterations"`
	L2            float64 `json:"l2"`
}

func DefaultFitConfig() FitConfig {
	return FitConfig{MaxIterations: 200, L2: 1e-4}
}
