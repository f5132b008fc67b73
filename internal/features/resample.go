package features

import (
	"math"
	"time"

	"btc-updown-study/internal/frame"
	"btc-updown-study/pkg/ta"
)

// Rule is a higher-resolution bar size and the label used in column names.
type Rule struct {
	Every time.Duration
	Label string
}

var (
	DefaultMACDRules = []Rule{
		{Every: 5 * time.Minute, Label: "5m"},
		{Every: 15 * time.Minute, Label: "15m"},
	}
	DefaultLiquidityRules = []Rule{
		{Every: 15 * time.Minute, Label: "15m"},
		{Every: time.Hour, Label: "1h"},
		{Every: 4 * time.Hour, Label: "4h"},
	}
)

// htfBar is one resampled bar keyed by the instant it closes.
type htfBar struct {
	end   time.Time
	close float64
}

// resampleLast buckets rows into UTC-aligned bars of the given size and keeps
// the last non-NaN value of each. Bars without a value are dropped.
func resampleLast(ts []time.Time, values []float64, every time.Duration) []htfBar {
	var bars []htfBar
	for i, t := range ts {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		end := t.Truncate(every).Add(every)
		if k := len(bars) - 1; k >= 0 && bars[k].end.Equal(end) {
			bars[k].close = v
			continue
		}
		bars = append(bars, htfBar{end: end, close: v})
	}
	return bars
}

// AddMACDFromResample computes MACD on resampled closes and carries each bar's
// values forward onto the native rows from the moment the bar closes. Rows
// before the first closed bar get NaN.
func AddMACDFromResample(f *frame.Frame, cfg Config, rules []Rule) *frame.Frame {
	out := f.Clone()
	ts := f.Timestamps()
	price := f.Col(cfg.PriceCol)
	for _, rule := range rules {
		bars := resampleLast(ts, price, rule.Every)
		if len(bars) == 0 {
			continue
		}
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.close
		}
		line, sig, hist := ta.MACD(closes, macdFast, macdSlow, macdSignal)
		slope := ta.Diff(line, 1)
		spread := make([]float64, len(bars))
		for i := range spread {
			spread[i] = line[i] - sig[i]
		}
		cross := ta.Sign(spread)

		series := [][]float64{line, sig, hist, slope, cross}
		names := []string{"macd_line", "macd_signal", "macd_hist", "macd_slope", "macd_cross"}
		cols := make([][]float64, len(series))
		for k := range cols {
			cols[k] = ta.NaNs(len(ts))
		}
		j := -1
		for i, t := range ts {
			for j+1 < len(bars) && !bars[j+1].end.After(t) {
				j++
			}
			if j < 0 {
				continue
			}
			for k := range series {
				cols[k][i] = series[k][j]
			}
		}
		for k, name := range names {
			out.Set(cfg.name(name, rule.Label), cols[k])
		}
	}
	return out
}

// AddLiquidityFeatures adds higher-resolution liquidity levels per rule:
// the running high/low of the bar in progress, the close relative to them,
// and flags for a native bar that pierced the previous completed bar's
// high (low) and closed back inside it.
func AddLiquidityFeatures(f *frame.Frame, cfg Config, rules []Rule) *frame.Frame {
	if f.Col(cfg.HighCol) == nil || f.Col(cfg.LowCol) == nil || f.Col(cfg.PriceCol) == nil {
		return f
	}
	out := f.Clone()
	ts := f.Timestamps()
	high, low, price := f.Col(cfg.HighCol), f.Col(cfg.LowCol), f.Col(cfg.PriceCol)
	n := len(ts)

	for _, rule := range rules {
		htfHigh, htfLow := ta.NaNs(n), ta.NaNs(n)
		overHigh, overLow := ta.NaNs(n), ta.NaNs(n)
		grabHigh, grabLow := make([]float64, n), make([]float64, n)

		var bin time.Time
		curHigh, curLow := math.NaN(), math.NaN()
		prevHigh, prevLow := math.NaN(), math.NaN()
		for i, t := range ts {
			if start := t.Truncate(rule.Every); i == 0 || !start.Equal(bin) {
				if !math.IsNaN(curHigh) {
					prevHigh, prevLow = curHigh, curLow
				}
				bin = start
				curHigh, curLow = math.NaN(), math.NaN()
			}
			curHigh = nanMax(curHigh, high[i])
			curLow = nanMin(curLow, low[i])

			htfHigh[i], htfLow[i] = curHigh, curLow
			overHigh[i] = price[i]/(curHigh+ta.EPS) - 1
			overLow[i] = price[i]/(curLow+ta.EPS) - 1
			grabHigh[i] = frame.Bool(high[i] > prevHigh && price[i] < prevHigh)
			grabLow[i] = frame.Bool(low[i] < prevLow && price[i] > prevLow)
		}
		out.Set(cfg.name("htf_high", rule.Label), htfHigh)
		out.Set(cfg.name("htf_low", rule.Label), htfLow)
		out.Set(cfg.name("close_over_htf_high", rule.Label), overHigh)
		out.Set(cfg.name("close_over_htf_low", rule.Label), overLow)
		out.Set(cfg.name("liquidity_grab_htf_high", rule.Label), grabHigh)
		out.Set(cfg.name("liquidity_grab_htf_low", rule.Label), grabLow)
	}
	return out
}

func nanMax(acc, v float64) float64 {
	if math.IsNaN(acc) || v > acc {
		return v
	}
	return acc
}

func nanMin(acc, v float64) float64 {
	if math.IsNaN(acc) || v < acc {
		return v
	}
	return acc
}
