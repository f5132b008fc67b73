package contract

import (
	"math"
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/service"
)

// Column suffixes written by this package, prefixed by the timeframe label.
const (
	ColContractClose = "contract_close"
	ColContractStart = "contract_start"
	ColRemaining     = "time_remaining_ratio"
	ColElapsed       = "time_elapsed_ratio"
	ColContractID    = "contract_id"
	ColOpen          = "tf_open"
	ColHighToNow     = "tf_high_to_now"
	ColLowToNow      = "tf_low_to_now"
	ColCloseToNow    = "tf_close_to_now"
	ColFuturePrice   = "future_price"
	ColFutureReturn  = "future_return"
	ColTargetUp      = "target_up"
	ColOutcomeUp     = "outcome_up"
)

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix())
}

// AssignContracts returns a time-sorted copy of f with the contract window of
// every row: close/start (unix seconds), contract_id (the close) and the
// remaining/elapsed fractions of the contract duration.
func AssignContracts(f *frame.Frame, timeframe string) (*frame.Frame, error) {
	spec, err := Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	out := f.SortByTime().Clone()
	n := out.Len()
	closes, starts := make([]float64, n), make([]float64, n)
	remaining, elapsed := make([]float64, n), make([]float64, n)
	total := spec.Duration.Seconds()
	for i, ts := range out.Timestamps() {
		c := spec.Close(ts)
		o := c.Add(-spec.Duration)
		closes[i] = unixSeconds(c)
		starts[i] = unixSeconds(o)
		frac := math.Min(math.Max(ts.Sub(o).Seconds()/total, 0), 1)
		remaining[i] = 1 - frac
		elapsed[i] = frac
	}
	out.Set(spec.Col(ColContractClose), closes)
	out.Set(spec.Col(ColContractStart), starts)
	out.Set(spec.Col(ColRemaining), remaining)
	out.Set(spec.Col(ColElapsed), elapsed)
	out.Set(spec.Col(ColContractID), closes)
	return out, nil
}

// groups returns the [start, end) row ranges of consecutive equal ids.
func groups(ids []float64) [][2]int {
	var out [][2]int
	start := 0
	for i := 1; i <= len(ids); i++ {
		if i == len(ids) || ids[i] != ids[start] {
			out = append(out, [2]int{start, i})
			start = i
		}
	}
	return out
}

// ComputeContractPriceFeatures assigns contracts and adds the causal
// intra-contract state: first price of the contract, running high and low,
// and the current price. Statistics reset at the first row of each contract.
func ComputeContractPriceFeatures(f *frame.Frame, timeframe, priceCol string) (*frame.Frame, error) {
	if err := f.Require(priceCol); err != nil {
		return nil, err
	}
	out, err := AssignContracts(f, timeframe)
	if err != nil {
		return nil, err
	}
	spec := specs[Timeframe(timeframe)]
	price := out.Col(priceCol)
	n := out.Len()
	open, high, low := make([]float64, n), make([]float64, n), make([]float64, n)
	closeNow := make([]float64, n)
	copy(closeNow, price)

	for _, g := range groups(out.Col(spec.Col(ColContractID))) {
		first := math.NaN()
		for i := g[0]; i < g[1]; i++ {
			if !math.IsNaN(price[i]) {
				first = price[i]
				break
			}
		}
		hi, lo := math.NaN(), math.NaN()
		for i := g[0]; i < g[1]; i++ {
			open[i] = first
			p := price[i]
			if math.IsNaN(p) {
				high[i], low[i] = math.NaN(), math.NaN()
				continue
			}
			if math.IsNaN(hi) || p > hi {
				hi = p
			}
			if math.IsNaN(lo) || p < lo {
				lo = p
			}
			high[i], low[i] = hi, lo
		}
	}
	out.Set(spec.Col(ColOpen), open)
	out.Set(spec.Col(ColHighToNow), high)
	out.Set(spec.Col(ColLowToNow), low)
	out.Set(spec.Col(ColCloseToNow), closeNow)
	return out, nil
}

// ComputeForwardReturns assigns contracts and adds the price exactly one
// contract duration later (looked up by timestamp, not by row offset), the
// forward return and the up label. All three are NaN when no row exists at
// t + duration, in particular near the end of the series.
func ComputeForwardReturns(f *frame.Frame, timeframe, priceCol string) (*frame.Frame, error) {
	if err := f.Require(priceCol); err != nil {
		return nil, err
	}
	out, err := AssignContracts(f, timeframe)
	if err != nil {
		return nil, err
	}
	spec := specs[Timeframe(timeframe)]
	price := out.Col(priceCol)
	ts := out.Timestamps()

	byTime := make(map[int64]float64, len(ts))
	for i, t := range ts {
		byTime[t.UnixNano()] = price[i]
	}

	n := out.Len()
	future, ret, target := make([]float64, n), make([]float64, n), make([]float64, n)
	undefined := 0
	for i, t := range ts {
		fp, ok := byTime[t.Add(spec.Duration).UnixNano()]
		if !ok {
			fp = math.NaN()
		}
		future[i] = fp
		ret[i] = fp/price[i] - 1
		if math.IsNaN(ret[i]) {
			target[i] = math.NaN()
			undefined++
			continue
		}
		target[i] = frame.Bool(ret[i] >= 0)
	}
	out.Set(spec.Col(ColFuturePrice), future)
	out.Set(spec.Col(ColFutureReturn), ret)
	out.Set(spec.Col(ColTargetUp), target)

	service.Logger.Debug("forward returns computed",
		zap.String("timeframe", timeframe),
		zap.Int("rows", n),
		zap.Int("undefined", undefined))
	return out, nil
}

// ComputeContractOutcomes assigns contracts and adds the settled outcome of
// each row's contract: 1 when the last price observed before close is at or
// above the contract's first price, else 0. Contracts whose close lies beyond
// the last timestamp of the series are unsettled and get NaN.
func ComputeContractOutcomes(f *frame.Frame, timeframe, priceCol string) (*frame.Frame, error) {
	out, err := ComputeContractPriceFeatures(f, timeframe, priceCol)
	if err != nil {
		return nil, err
	}
	spec := specs[Timeframe(timeframe)]
	n := out.Len()
	outcome := frame.Filled(n, math.NaN())
	if n == 0 {
		out.Set(spec.Col(ColOutcomeUp), outcome)
		return out, nil
	}
	last := unixSeconds(out.Timestamps()[n-1])
	price := out.Col(priceCol)
	open := out.Col(spec.Col(ColOpen))
	closes := out.Col(spec.Col(ColContractClose))

	for _, g := range groups(out.Col(spec.Col(ColContractID))) {
		if closes[g[0]] > last {
			continue
		}
		settle := math.NaN()
		for i := g[1] - 1; i >= g[0]; i-- {
			if !math.IsNaN(price[i]) {
				settle = price[i]
				break
			}
		}
		if math.IsNaN(settle) {
			continue
		}
		v := frame.Bool(settle >= open[g[0]])
		for i := g[0]; i < g[1]; i++ {
			outcome[i] = v
		}
	}
	out.Set(spec.Col(ColOutcomeUp), outcome)
	return out, nil
}
