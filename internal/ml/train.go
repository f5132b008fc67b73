package ml

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/service"
)

// Artifacts is a set of fitted models sharing one feature layout.
type Artifacts struct {
	Models         map[string]Model
	FeatureColumns []string
	TargetColumns  []string
	Metrics        []MetricRow
}

// Names returns model names in sorted order.
func (a *Artifacts) Names() []string {
	out := make([]string, 0, len(a.Models))
	for n := range a.Models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TrainConfig controls a training run.
type TrainConfig struct {
	TestFraction float64
	Seed         uint64
	Fit          FitConfig
	Workers      int
}

// DefaultClassifierConfig holds 30% out, stratified by label, seed 42.
func DefaultClassifierConfig() TrainConfig {
	return TrainConfig{TestFraction: 0.3, Seed: 42, Fit: DefaultFitConfig(), Workers: 4}
}

// DefaultRegressorConfig holds 20% out, seed 17.
func DefaultRegressorConfig() TrainConfig {
	return TrainConfig{TestFraction: 0.2, Seed: 17, Fit: DefaultFitConfig(), Workers: 4}
}

// ApplyConfig overrides split and solver settings from configuration.
func (c TrainConfig) ApplyConfig(cfg service.ModelConfig) TrainConfig {
	if cfg.TestFraction > 0 && cfg.TestFraction < 1 {
		c.TestFraction = cfg.TestFraction
	}
	c.Seed = cfg.Seed
	if cfg.MaxIterations > 0 {
		c.Fit.MaxIterations = cfg.MaxIterations
	}
	if cfg.L2 > 0 {
		c.Fit.L2 = cfg.L2
	}
	return c
}

// matrix extracts the feature rows of f. valid[i] is false when any feature
// of row i is NaN.
func matrix(f *frame.Frame, cols []string) ([][]float64, []bool, error) {
	if err := f.Require(cols...); err != nil {
		return nil, nil, err
	}
	src := make([][]float64, len(cols))
	for j, c := range cols {
		src[j] = f.Col(c)
	}
	X := make([][]float64, f.Len())
	valid := make([]bool, f.Len())
	for i := range X {
		row := make([]float64, len(cols))
		ok := true
		for j := range cols {
			row[j] = src[j][i]
			if math.IsNaN(row[j]) {
				ok = false
			}
		}
		X[i] = row
		valid[i] = ok
	}
	return X, valid, nil
}

// usable keeps the rows whose features are complete and whose target is set.
func usable(X [][]float64, valid []bool, y []float64) ([][]float64, []float64) {
	var xs [][]float64
	var ys []float64
	for i := range X {
		if valid[i] && !math.IsNaN(y[i]) {
			xs = append(xs, X[i])
			ys = append(ys, y[i])
		}
	}
	return xs, ys
}

type fitResult struct {
	name  string
	model Model
	row   MetricRow
}

// trainEach fits one model per target concurrently.
func trainEach(ctx context.Context, names []string, workers int, fit func(name string) (fitResult, error)) (map[string]Model, []MetricRow, error) {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	var mu sync.Mutex
	models := make(map[string]Model, len(names))
	rows := make([]MetricRow, len(names))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := fit(name)
			if err != nil {
				return fmt.Errorf("train %s: %w", name, err)
			}
			mu.Lock()
			models[res.name] = res.model
			mu.Unlock()
			rows[i] = res.row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return models, rows, nil
}

// TrainOutcomeClassifiers fits one logistic model per named binary target
// (name -> column). Rows with a NaN target are masked out per target.
// Metrics are AUC, accuracy at 0.5 and Brier score on the held-out rows.
func TrainOutcomeClassifiers(ctx context.Context, dataset *frame.Frame, featureCols []string, targets map[string]string, cfg TrainConfig) (*Artifacts, error) {
	X, valid, err := matrix(dataset, featureCols)
	if err != nil {
		return nil, fmt.Errorf("train classifiers: %w", err)
	}
	names := make([]string, 0, len(targets))
	cols := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := dataset.Require(targets[name]); err != nil {
			return nil, fmt.Errorf("train classifiers: %w", err)
		}
		cols = append(cols, targets[name])
	}

	models, rows, err := trainEach(ctx, names, cfg.Workers, func(name string) (fitResult, error) {
		xs, ys := usable(X, valid, dataset.Col(targets[name]))
		if len(xs) < 2 {
			return fitResult{}, ErrEmptyTrainingSet
		}
		trainIdx, testIdx := TrainTestSplit(len(xs), cfg.TestFraction, cfg.Seed, ys)
		m := NewLogisticRegression(cfg.Fit)
		if err := m.Fit(rowsAt(xs, trainIdx), valuesAt(ys, trainIdx)); err != nil {
			return fitResult{}, err
		}
		yTest := valuesAt(ys, testIdx)
		proba := m.PredictProba(rowsAt(xs, testIdx))
		row := MetricRow{
			Target:   name,
			Train:    int64(len(trainIdx)),
			Test:     int64(len(testIdx)),
			AUC:      AUC(yTest, proba),
			Accuracy: Accuracy(yTest, proba, 0.5),
			Brier:    Brier(yTest, proba),
			MAE:      math.NaN(),
			RMSE:     math.NaN(),
		}
		service.Logger.Info("classifier trained",
			zap.String("target", name),
			zap.Int("train", len(trainIdx)),
			zap.Int("test", len(testIdx)),
			zap.Float64("auc", row.AUC),
			zap.Float64("accuracy", row.Accuracy),
			zap.Float64("brier", row.Brier))
		return fitResult{name: name, model: m, row: row}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Artifacts{Models: models, FeatureColumns: featureCols, TargetColumns: cols, Metrics: rows}, nil
}

// TrainOddsRegressors fits one linear model per target column, each on the
// same seeded shuffle. Metrics are MAE and RMSE on the held-out rows.
func TrainOddsRegressors(ctx context.Context, dataset *frame.Frame, featureCols, targets []string, cfg TrainConfig) (*Artifacts, error) {
	X, valid, err := matrix(dataset, featureCols)
	if err != nil {
		return nil, fmt.Errorf("train regressors: %w", err)
	}
	if err := dataset.Require(targets...); err != nil {
		return nil, fmt.Errorf("train regressors: %w", err)
	}

	models, rows, err := trainEach(ctx, targets, cfg.Workers, func(target string) (fitResult, error) {
		xs, ys := usable(X, valid, dataset.Col(target))
		if len(xs) < 2 {
			return fitResult{}, ErrEmptyTrainingSet
		}
		trainIdx, testIdx := TrainTestSplit(len(xs), cfg.TestFraction, cfg.Seed, nil)
		m := NewLinearRegression(cfg.Fit)
		if err := m.Fit(rowsAt(xs, trainIdx), valuesAt(ys, trainIdx)); err != nil {
			return fitResult{}, err
		}
		yTest := valuesAt(ys, testIdx)
		pred := m.Predict(rowsAt(xs, testIdx))
		row := MetricRow{
			Target:   target,
			Train:    int64(len(trainIdx)),
			Test:     int64(len(testIdx)),
			AUC:      math.NaN(),
			Accuracy: math.NaN(),
			Brier:    math.NaN(),
			MAE:      MAE(yTest, pred),
			RMSE:     RMSE(yTest, pred),
		}
		service.Logger.Info("regressor trained",
			zap.String("target", target),
			zap.Float64("mae", row.MAE),
			zap.Float64("rmse", row.RMSE))
		return fitResult{name: target, model: m, row: row}, nil
	})
	if err != nil {
		return nil, err
	}
	return &Artifacts{Models: models, FeatureColumns: featureCols, TargetColumns: targets, Metrics: rows}, nil
}

// PredictClassifications adds pred_proba_<name> for every classifier.
// Rows with incomplete features get NaN.
func PredictClassifications(f *frame.Frame, a *Artifacts) (*frame.Frame, error) {
	return predict(f, a, func(name string) string { return "pred_proba_" + name }, func(m Model, X [][]float64) ([]float64, error) {
		c, ok := m.(Classifier)
		if !ok {
			return nil, fmt.Errorf("model %T is not a classifier", m)
		}
		return c.PredictProba(X), nil
	})
}

// PredictRegressions adds pred_<target> for every regressor.
func PredictRegressions(f *frame.Frame, a *Artifacts) (*frame.Frame, error) {
	return predict(f, a, func(name string) string { return "pred_" + name }, func(m Model, X [][]float64) ([]float64, error) {
		return m.Predict(X), nil
	})
}

func predict(f *frame.Frame, a *Artifacts, colName func(string) string, run func(Model, [][]float64) ([]float64, error)) (*frame.Frame, error) {
	X, valid, err := matrix(f, a.FeatureColumns)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	var rows [][]float64
	var at []int
	for i := range X {
		if valid[i] {
			rows = append(rows, X[i])
			at = append(at, i)
		}
	}
	out := f.Clone()
	for _, name := range a.Names() {
		col := frame.Filled(f.Len(), math.NaN())
		if len(rows) > 0 {
			vals, err := run(a.Models[name], rows)
			if err != nil {
				return nil, fmt.Errorf("predict %s: %w", name, err)
			}
			for k, i := range at {
				col[i] = vals[k]
			}
		}
		out.Set(colName(name), col)
	}
	return out, nil
}
