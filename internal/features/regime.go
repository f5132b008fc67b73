package features

import (
	"math"

	"btc-updown-study/internal/frame"
	"btc-updown-study/pkg/ta"
)

const (
	volRegimeWindow     = 720
	volRegimeMinPeriods = 60
	volRegimeRefWindow  = 60
)

// AddRegimeFeatures adds session (day/night) and volatility-regime flags and
// the whole-sample z-scores of the short log returns within each regime.
// Nothing is added when the frame has no hour column.
func AddRegimeFeatures(f *frame.Frame, cfg Config) *frame.Frame {
	if !f.Has("hour") {
		return f
	}
	out := f.Clone()
	n := f.Len()

	day := make([]float64, n)
	night := make([]float64, n)
	for i, ts := range f.Timestamps() {
		day[i] = frame.Bool(InSession(ts, cfg.SessionStartHour, cfg.SessionEndHour))
		night[i] = 1 - day[i]
	}
	out.Set(cfg.name("session_day"), day)
	out.Set(cfg.name("session_night"), night)

	volRef := f.Col(cfg.name("realized_vol", volRegimeRefWindow))
	if volRef == nil {
		return out
	}
	median := ta.RollingMedian(volRef, volRegimeWindow, volRegimeMinPeriods)
	high := make([]float64, n)
	low := make([]float64, n)
	for i := range high {
		// NaN comparisons are false, so warm-up rows count as low volatility
		high[i] = frame.Bool(!math.IsNaN(median[i]) && volRef[i] > median[i])
		low[i] = 1 - high[i]
	}
	out.Set(cfg.name("vol_regime_high"), high)
	out.Set(cfg.name("vol_regime_low"), low)

	for _, w := range []int{1, 5} {
		col := cfg.name("log_return", w)
		values := f.Col(col)
		if values == nil {
			continue
		}
		out.Set(col+"_session_z", ta.GroupZScore(values, day))
		out.Set(col+"_volreg_z", ta.GroupZScore(values, high))
	}
	return out
}
