package ml

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-updown-study/internal/frame"
)

func TestAUC(t *testing.T) {
	assert.Equal(t, 1.0, AUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}))
	assert.Equal(t, 0.0, AUC([]float64{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}))
	assert.Equal(t, 0.5, AUC([]float64{0, 1}, []float64{0.5, 0.5}))
	assert.True(t, math.IsNaN(AUC([]float64{1, 1}, []float64{0.2, 0.3})))
	// one tied pos/neg pair counts half
	assert.InDelta(t, 0.875, AUC([]float64{0, 1, 1, 0}, []float64{0.2, 0.2, 0.7, 0.1}), 1e-12)
}

func TestPointMetrics(t *testing.T) {
	y := []float64{0, 1, 1, 0}
	p := []float64{0.2, 0.6, 0.4, 0.5}
	assert.Equal(t, 0.5, Accuracy(y, p, 0.5))
	assert.InDelta(t, (0.04+0.16+0.36+0.25)/4, Brier(y, p), 1e-12)
	assert.InDelta(t, 0.5, MAE([]float64{1, 2}, []float64{1.5, 1.5}), 1e-12)
	assert.InDelta(t, 0.5, RMSE([]float64{1, 2}, []float64{1.5, 1.5}), 1e-12)
	assert.True(t, math.IsNaN(MAE(nil, nil)))
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(10, 0.3, 42, nil)
	assert.Len(t, test, 3)
	assert.Len(t, train, 7)

	again, _ := TrainTestSplit(10, 0.3, 42, nil)
	assert.Equal(t, train, again)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 10)
}

func TestTrainTestSplitStratified(t *testing.T) {
	labels := []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	_, test := TrainTestSplit(len(labels), 0.3, 42, labels)
	ones := 0
	for _, i := range test {
		ones += int(labels[i])
	}
	assert.Len(t, test, 6)
	assert.Equal(t, 3, ones)
}

func TestScalerConstantFeature(t *testing.T) {
	var s StandardScaler
	s.Fit([][]float64{{1, 5}, {3, 5}})
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, s.Transform([][]float64{{1, 5}, {3, 5}}))
}

func TestLinearRegressionRecoversLine(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 50; i++ {
		x := float64(i) / 10
		X = append(X, []float64{x})
		y = append(y, 3*x+1)
	}
	m := NewLinearRegression(FitConfig{})
	require.NoError(t, m.Fit(X, y))
	pred := m.Predict([][]float64{{2}, {4}})
	assert.InDelta(t, 7, pred[0], 1e-9)
	assert.InDelta(t, 13, pred[1], 1e-9)
}

func TestLinearRegressionRidge(t *testing.T) {
	// two identical columns share the slope evenly once penalised
	X := [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	y := []float64{2, 4, 6, 8}
	m := NewLinearRegression(FitConfig{L2: 1e-6})
	require.NoError(t, m.Fit(X, y))
	assert.InDelta(t, m.Weights[0], m.Weights[1], 1e-9)
	assert.InDelta(t, 10, m.Predict([][]float64{{5, 5}})[0], 1e-3)

	strong := NewLinearRegression(FitConfig{L2: 1})
	require.NoError(t, strong.Fit(X, y))
	assert.Less(t, strong.Weights[0], m.Weights[0])
	assert.Equal(t, 5.0, strong.Bias)

	assert.ErrorIs(t, m.Fit([][]float64{{}, {}}, []float64{1, 2}), ErrNoFeatures)
}

func TestLogisticRegressionSeparates(t *testing.T) {
	X := [][]float64{{-2}, {-1.5}, {-1}, {-0.5}, {0.5}, {1}, {1.5}, {2}}
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	m := NewLogisticRegression(DefaultFitConfig())
	require.NoError(t, m.Fit(X, y))
	p := m.PredictProba([][]float64{{-2}, {2}})
	assert.Less(t, p[0], 0.2)
	assert.Greater(t, p[1], 0.8)
	assert.Equal(t, []float64{0, 1}, m.Predict([][]float64{{-1}, {1}}))

	assert.Error(t, m.Fit(X, []float64{0, 0, 0, 0, 1, 1, 1, 2}))
	assert.ErrorIs(t, m.Fit(nil, nil), ErrEmptyTrainingSet)
}

func TestLogisticRegressionPenaltyBoundsWeights(t *testing.T) {
	X := [][]float64{{-2}, {-1.5}, {-1}, {-0.5}, {0.5}, {1}, {1.5}, {2}}
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	loose := NewLogisticRegression(FitConfig{MaxIterations: 200, L2: 1e-4})
	require.NoError(t, loose.Fit(X, y))
	tight := NewLogisticRegression(FitConfig{MaxIterations: 200, L2: 1})
	require.NoError(t, tight.Fit(X, y))

	assert.Greater(t, tight.Weights[0], 0.0)
	assert.Less(t, tight.Weights[0], loose.Weights[0])
	assert.InDelta(t, 0, tight.Bias, 1e-6)
}

func syntheticDataset(n int) *frame.Frame {
	rng := rand.New(rand.NewPCG(1, 2))
	ts := make([]time.Time, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	up := make([]float64, n)
	odds := make([]float64, n)
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = base.Add(time.Duration(i) * time.Minute)
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		if x1[i]+0.1*rng.NormFloat64() > 0 {
			up[i] = 1
		}
		odds[i] = 0.5 + 0.1*x1[i] - 0.05*x2[i]
	}
	up[3] = math.NaN()
	f := frame.New(ts)
	f.Set("x1", x1)
	f.Set("x2", x2)
	f.Set("m15_outcome_up", up)
	f.Set("m15_price_up_mid", odds)
	return f
}

func TestTrainOutcomeClassifiers(t *testing.T) {
	f := syntheticDataset(400)
	a, err := TrainOutcomeClassifiers(context.Background(), f, []string{"x1", "x2"},
		map[string]string{"m15": "m15_outcome_up"}, DefaultClassifierConfig())
	require.NoError(t, err)
	require.Len(t, a.Metrics, 1)

	row := a.Metrics[0]
	assert.Equal(t, "m15", row.Target)
	assert.Equal(t, int64(399), row.Train+row.Test)
	assert.Greater(t, row.AUC, 0.9)
	assert.Greater(t, row.Accuracy, 0.8)
	assert.True(t, math.IsNaN(row.MAE))
	assert.Equal(t, []string{"m15_outcome_up"}, a.TargetColumns)

	out, err := PredictClassifications(f, a)
	require.NoError(t, err)
	p := out.Col("pred_proba_m15")
	require.Len(t, p, f.Len())
	for _, v := range p {
		assert.True(t, v >= 0 && v <= 1)
	}
	assert.False(t, f.Has("pred_proba_m15"))
}

func TestTrainOddsRegressors(t *testing.T) {
	f := syntheticDataset(300)
	a, err := TrainOddsRegressors(context.Background(), f, []string{"x1", "x2"}, []string{"m15_price_up_mid"}, DefaultRegressorConfig())
	require.NoError(t, err)
	require.Len(t, a.Metrics, 1)
	assert.Less(t, a.Metrics[0].MAE, 1e-3)
	assert.Equal(t, int64(60), a.Metrics[0].Test)

	out, err := PredictRegressions(f, a)
	require.NoError(t, err)
	assert.InDeltaSlice(t, f.Col("m15_price_up_mid"), out.Col("pred_m15_price_up_mid"), 1e-3)
}

func TestTrainMissingColumns(t *testing.T) {
	f := syntheticDataset(20)
	_, err := TrainOddsRegressors(context.Background(), f, []string{"nope"}, []string{"m15_price_up_mid"}, DefaultRegressorConfig())
	assert.ErrorIs(t, err, frame.ErrMissingColumn)

	_, err = TrainOutcomeClassifiers(context.Background(), f, []string{"x1"}, map[string]string{"h1": "h1_outcome_up"}, DefaultClassifierConfig())
	assert.ErrorIs(t, err, frame.ErrMissingColumn)
}

func TestPredictIncompleteRowsAreNaN(t *testing.T) {
	f := syntheticDataset(100)
	a, err := TrainOddsRegressors(context.Background(), f, []string{"x1", "x2"}, []string{"m15_price_up_mid"}, DefaultRegressorConfig())
	require.NoError(t, err)

	x1 := append([]float64(nil), f.Col("x1")...)
	x1[5] = math.NaN()
	g := f.Clone()
	g.Set("x1", x1)
	out, err := PredictRegressions(g, a)
	require.NoError(t, err)
	pred := out.Col("pred_m15_price_up_mid")
	assert.True(t, math.IsNaN(pred[5]))
	assert.False(t, math.IsNaN(pred[6]))
}

func TestKinds(t *testing.T) {
	k, err := KindOf(NewLogisticRegression(DefaultFitConfig()))
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, k)
	m, err := NewModel(KindLinear)
	require.NoError(t, err)
	assert.IsType(t, &LinearRegression{}, m)
	_, err = NewModel("forest")
	assert.Error(t, err)
}
