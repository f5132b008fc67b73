package ml

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"btc-updown-study/internal/service"
)

// ErrNoFeatures is returned when the design matrix has no columns.
var ErrNoFeatures = errors.New("no feature columns")

// linearCore is the scaler plus affine map shared by both baselines.
type linearCore struct {
	Scaler  StandardScaler `json:"scaler"`
	Weights []float64      `json:"weights"`
	Bias    float64        `json:"bias"`
	Config  FitConfig      `json:"config"`
}

func (c *linearCore) score(row []float64) float64 {
	z := c.Bias
	for j, v := range row {
		z += c.Weights[j] * (v - c.Scaler.Mean[j]) / c.Scaler.Scale[j]
	}
	return z
}

// design fits the scaler on X and returns the standardised matrix.
func (c *linearCore) design(X [][]float64, y []float64) (*mat.Dense, error) {
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("fit: %d rows but %d targets", len(X), len(y))
	}
	if len(X[0]) == 0 {
		return nil, ErrNoFeatures
	}
	c.Scaler.Fit(X)
	return c.Scaler.TransformDense(X), nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

// LinearRegression is ridge regression on standardised features, solved
// through the normal equations (Z'Z + n*L2*I) w = Z'(y - mean(y)).
type LinearRegression struct {
	linearCore
}

func NewLinearRegression(cfg FitConfig) *LinearRegression {
	return &LinearRegression{linearCore{Config: cfg}}
}

func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	Z, err := m.design(X, y)
	if err != nil {
		return err
	}
	n, d := Z.Dims()

	// standardised columns are centred, so the intercept is the target mean
	yMean := stat.Mean(y, nil)
	centred := make([]float64, n)
	for i, v := range y {
		centred[i] = v - yMean
	}

	var gram mat.SymDense
	gram.SymOuterK(1, Z.T())
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Config.L2*float64(n))
	}
	var rhs mat.VecDense
	rhs.MulVec(Z.T(), mat.NewVecDense(n, centred))

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return fmt.Errorf("fit linear: normal equations are singular, set a positive l2")
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("fit linear: %w", err)
		}
		service.Logger.Warn("linear fit ill-conditioned", zap.Float64("condition", float64(cond)))
	}
	m.Weights = make([]float64, d)
	for j := range m.Weights {
		m.Weights[j] = w.AtVec(j)
	}
	m.Bias = yMean
	return nil
}

func (m *LinearRegression) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.score(row)
	}
	return out
}

// LogisticRegression minimises mean log loss plus an L2 penalty on
// standardised features with L-BFGS. Targets must be 0 or 1.
type LogisticRegression struct {
	linearCore
}

func NewLogisticRegression(cfg FitConfig) *LogisticRegression {
	return &LogisticRegression{linearCore{Config: cfg}}
}

func (m *LogisticRegression) Fit(X [][]float64, y []float64) error {
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("fit logistic: target %d is %v, want 0 or 1", i, v)
		}
	}
	Z, err := m.design(X, y)
	if err != nil {
		return err
	}
	n, d := Z.Dims()
	nf := float64(n)
	l2 := m.Config.L2
	iters := m.Config.MaxIterations
	if iters <= 0 {
		iters = DefaultFitConfig().MaxIterations
	}

	// params holds the d weights followed by the bias
	raw := make([]float64, n)
	z := mat.NewVecDense(n, raw)
	scores := func(params []float64) {
		z.MulVec(Z, mat.NewVecDense(d, params[:d]))
		floats.AddConst(params[d], raw)
	}
	resid := make([]float64, n)
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			scores(params)
			loss := 0.0
			for i := 0; i < n; i++ {
				zi := raw[i]
				loss += softplus(zi) - y[i]*zi
			}
			w := params[:d]
			return loss/nf + 0.5*l2*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			scores(params)
			for i := range resid {
				resid[i] = sigmoid(raw[i]) - y[i]
			}
			g := mat.NewVecDense(d, grad[:d])
			g.MulVec(Z.T(), mat.NewVecDense(n, resid))
			g.ScaleVec(1/nf, g)
			floats.AddScaled(grad[:d], l2, params[:d])
			grad[d] = floats.Sum(resid) / nf
		},
	}
	settings := &optimize.Settings{MajorIterations: iters, GradientThreshold: 1e-8}
	res, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if res == nil {
		return fmt.Errorf("fit logistic: %w", err)
	}
	if floats.HasNaN(res.X) {
		return fmt.Errorf("fit logistic: optimiser diverged (%v)", res.Status)
	}
	if err != nil {
		service.Logger.Warn("logistic fit stopped early", zap.Stringer("status", res.Status), zap.Error(err))
	}
	m.Weights = append([]float64(nil), res.X[:d]...)
	m.Bias = res.X[d]
	return nil
}

// PredictProba returns P(y=1) per row.
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = sigmoid(m.score(row))
	}
	return out
}

func (m *LogisticRegression) Predict(X [][]float64) []float64 {
	p := m.PredictProba(X)
	for i, v := range p {
		if v >= 0.5 {
			p[i] = 1
		} else {
			p[i] = 0
		}
	}
	return p
}
