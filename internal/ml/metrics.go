package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// MetricRow is one line of a metric table. Metrics that do not apply to the
// model kind are NaN.
type MetricRow struct {
	Target   string  `json:"target" parquet:"target"`
	Train    int64   `json:"train_rows" parquet:"train_rows"`
	Test     int64   `json:"test_rows" parquet:"test_rows"`
	AUC      float64 `json:"auc" parquet:"auc"`
	Accuracy float64 `json:"accuracy" parquet:"accuracy"`
	Brier    float64 `json:"brier" parquet:"brier"`
	MAE      float64 `json:"mae" parquet:"mae"`
	RMSE     float64 `json:"rmse" parquet:"rmse"`
}

// AUC is the trapezoidal area under the ROC curve. Tied scores share one
// cutoff. NaN when only one class is present.
func AUC(y, score []float64) float64 {
	var pos, neg int
	for _, v := range y {
		if v == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}

	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return score[idx[a]] < score[idx[b]] })
	sorted := make([]float64, len(y))
	classes := make([]bool, len(y))
	for k, i := range idx {
		sorted[k] = score[i]
		classes[k] = y[i] == 1
	}
	tpr, fpr, _ := stat.ROC(nil, sorted, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Accuracy of thresholded probabilities against 0/1 labels.
func Accuracy(y, proba []float64, threshold float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	hit := 0
	for i, v := range y {
		pred := 0.0
		if proba[i] >= threshold {
			pred = 1
		}
		if pred == v {
			hit++
		}
	}
	return float64(hit) / float64(len(y))
}

// Brier is the mean squared error of probabilities.
func Brier(y, proba []float64) float64 {
	return mse(y, proba)
}

func MAE(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	return floats.Distance(pred, y, 1) / float64(len(y))
}

func RMSE(y, pred []float64) float64 {
	return math.Sqrt(mse(y, pred))
}

func mse(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	d := floats.Distance(pred, y, 2)
	return d * d / float64(len(y))
}
