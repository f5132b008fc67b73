package fomo

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"btc-updown-study/internal/contract"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/pricing"
	"btc-updown-study/internal/service"
)

// ErrMissingColumn is returned when a configured input column is absent.
var ErrMissingColumn = frame.ErrMissingColumn

const (
	// Epsilon bounds the simulated odds away from 0 and 1.
	Epsilon  = 1e-4
	atrFloor = 1e-6
)

// Columns names the simulator inputs.
type Columns struct {
	Prob          string
	TimeRemaining string
	ATR           string
	Close         string
	Open          string
	High          string
	Low           string
	Contract      string
}

// DefaultColumns matches the frame produced by MakeFomoInput.
func DefaultColumns() Columns {
	return Columns{
		Prob:          "prob_up",
		TimeRemaining: "time_remaining_ratio",
		ATR:           "atr_15m",
		Close:         "tf_close_to_now",
		Open:          "tf_open",
		High:          "tf_high_to_now",
		Low:           "tf_low_to_now",
		Contract:      "contract_id",
	}
}

func (c Columns) all() []string {
	return []string{c.Prob, c.TimeRemaining, c.ATR, c.Close, c.Open, c.High, c.Low, c.Contract}
}

type options struct {
	cols    Columns
	seed    uint64
	workers int
}

type Option func(*options)

// WithColumns overrides the input column names.
func WithColumns(c Columns) Option { return func(o *options) { o.cols = c } }

// WithSeed sets the base seed of the noise generators.
func WithSeed(seed uint64) Option { return func(o *options) { o.seed = seed } }

// WithWorkers bounds the number of contract groups simulated concurrently.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// SimulateFomoOdds returns a copy of f with one odds_<name> column per
// scenario. Each contract group is a sequential scan in row order; groups and
// scenarios are simulated concurrently. Noise is drawn from a generator seeded
// per (seed, scenario, contract), so results do not depend on scheduling.
// Rows with a NaN input get NaN odds and leave the scan state untouched.
func SimulateFomoOdds(ctx context.Context, f *frame.Frame, scenarios []Scenario, opts ...Option) (*frame.Frame, error) {
	o := options{cols: DefaultColumns(), workers: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if err := f.Require(o.cols.all()...); err != nil {
		return nil, fmt.Errorf("simulate fomo odds: %w", err)
	}

	ids := f.Col(o.cols.Contract)
	var order []float64
	members := map[float64][]int{}
	for i, id := range ids {
		if math.IsNaN(id) {
			continue
		}
		if _, ok := members[id]; !ok {
			order = append(order, id)
		}
		members[id] = append(members[id], i)
	}

	in := inputs{
		prob:      f.Col(o.cols.Prob),
		remaining: f.Col(o.cols.TimeRemaining),
		atr:       f.Col(o.cols.ATR),
		close:     f.Col(o.cols.Close),
		open:      f.Col(o.cols.Open),
		high:      f.Col(o.cols.High),
		low:       f.Col(o.cols.Low),
	}

	g, ctx := errgroup.WithContext(ctx)
	if o.workers > 0 {
		g.SetLimit(o.workers)
	}
	outputs := make([][]float64, len(scenarios))
	for s, sc := range scenarios {
		outputs[s] = frame.Filled(f.Len(), math.NaN())
		dst := outputs[s]
		for _, id := range order {
			rows := members[id]
			rng := noiseSource(o.seed, sc, id)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				simulateGroup(sc, in, rows, dst, rng)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := f.Clone()
	for s, sc := range scenarios {
		out.Set(sc.Column(), outputs[s])
	}
	service.Logger.Debug("fomo odds simulated",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("contracts", len(order)),
		zap.Int("rows", f.Len()))
	return out, nil
}

type inputs struct {
	prob, remaining, atr, close, open, high, low []float64
}

func noiseSource(seed uint64, sc Scenario, contractID float64) *rand.Rand {
	if sc.Noise <= 0 {
		return nil
	}
	h := fnv.New64a()
	h.Write([]byte(sc.Name))
	return rand.New(rand.NewPCG(seed^h.Sum64(), math.Float64bits(contractID)))
}

// simulateGroup runs the odds recurrence over one contract's rows and writes
// into dst at those rows only.
func simulateGroup(sc Scenario, in inputs, rows []int, dst []float64, rng *rand.Rand) {
	prev := math.NaN()
	for _, i := range rows {
		p, t := in.prob[i], in.remaining[i]
		atr := math.Max(in.atr[i]*sc.KATR, atrFloor)
		zDist := (in.close[i] - in.open[i]) / atr
		zRange := (in.high[i] - in.low[i]) / atr
		if math.IsNaN(p) || math.IsNaN(t) || math.IsNaN(in.atr[i]) || math.IsNaN(zDist) || math.IsNaN(zRange) {
			continue
		}

		endBoost := math.Pow(1-t, sc.Gamma)
		bias := sc.Aggressiveness * math.Tanh(sc.Alpha*zDist+sc.Beta*zRange) * endBoost
		target := clamp(p + bias)

		proposal := target
		if !math.IsNaN(prev) {
			proposal = sc.Stickiness*prev + (1-sc.Stickiness)*target
		}
		blended := sc.FomoIndex*p + (1-sc.FomoIndex)*proposal
		if rng != nil {
			blended += rng.NormFloat64() * sc.Noise
		}
		dst[i] = clamp(blended)
		prev = dst[i]
	}
}

func clamp(v float64) float64 {
	return math.Min(math.Max(v, Epsilon), 1-Epsilon)
}

// fomoInputColumns maps a timeframe's table columns to simulator inputs.
func fomoInputColumns(timeframe string) ([][2]string, error) {
	spec, err := contract.Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	d := DefaultColumns()
	return [][2]string{
		{spec.Col(pricing.ColProbUp), d.Prob},
		{spec.Col(contract.ColRemaining), d.TimeRemaining},
		{"atr_15m", d.ATR},
		{spec.Col(contract.ColCloseToNow), d.Close},
		{spec.Col(contract.ColOpen), d.Open},
		{spec.Col(contract.ColHighToNow), d.High},
		{spec.Col(contract.ColLowToNow), d.Low},
		{spec.Col(contract.ColContractID), d.Contract},
	}, nil
}

// MakeFomoInput selects and renames a timeframe table's columns into the
// simulator's default layout. Every source column must be present.
func MakeFomoInput(f *frame.Frame, timeframe string) (*frame.Frame, error) {
	mapping, err := fomoInputColumns(timeframe)
	if err != nil {
		return nil, err
	}
	src := make([]string, len(mapping))
	rename := make(map[string]string, len(mapping))
	for i, m := range mapping {
		src[i] = m[0]
		rename[m[0]] = m[1]
	}
	sel, err := f.Select(src...)
	if err != nil {
		return nil, fmt.Errorf("make fomo input %s: %w", timeframe, err)
	}
	return sel.Rename(rename), nil
}
