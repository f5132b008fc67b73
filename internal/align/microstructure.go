package align

import (
	"fmt"
	"math"

	"btc-updown-study/internal/features"
	"btc-updown-study/internal/frame"
	"btc-updown-study/pkg/ta"
)

// Tick-count lookbacks. Quotes arrive once per second, so these read as seconds.
var (
	spotReturnLags    = []int{1, 5, 30, 60}
	spotMomentumLags  = []int{5, 15, 30, 60}
	spotVolWindows    = []int{10, 30, 60, 120}
	spotRangeWindow   = 60
	spotZScoreWindow  = 120
	spotRealizedVolAt = 60
)

const spotPrefix = "spot"

func spotName(parts ...any) string {
	return frame.Join(append([]any{spotPrefix}, parts...)...)
}

// AddMicrostructureFeatures adds the tick-level spot_* columns computed from
// priceCol with lookbacks measured in ticks. Session hours are UTC.
func AddMicrostructureFeatures(f *frame.Frame, priceCol string, sessionStart, sessionEnd int) (*frame.Frame, error) {
	price, err := f.Column(priceCol)
	if err != nil {
		return nil, err
	}
	out := f.Clone()
	n := f.Len()

	second, position, session := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, ts := range f.Timestamps() {
		second[i] = float64(ts.Second())
		position[i] = second[i] / 60
		session[i] = frame.Bool(features.InSession(ts, sessionStart, sessionEnd))
	}
	out.Set(spotName("second"), second)
	out.Set(spotName("position_in_minute"), position)
	out.Set(spotName("session_day"), session)

	for _, k := range spotReturnLags {
		out.Set(spotName("return", secLabel(k)), ta.PctChange(price, k))
	}
	for _, k := range spotMomentumLags {
		out.Set(spotName("momentum", secLabel(k)), ta.Diff(price, k))
	}

	up, down := ta.ConsecutiveMoves(price)
	out.Set(spotName("consecutive_up"), up)
	out.Set(spotName("consecutive_down"), down)

	ret1 := ta.CleanInf(ta.PctChange(price, 1))
	for _, w := range spotVolWindows {
		out.Set(spotName("volatility", secLabel(w)), ta.RollingStd(ret1, w))
	}
	vol := out.Col(spotName("volatility", secLabel(spotRealizedVolAt)))
	out.Set(spotName("realized_vol", secLabel(spotRealizedVolAt)), vol)

	median := ta.Median(vol)
	regime := make([]float64, n)
	for i, v := range vol {
		regime[i] = frame.Bool(v > median)
	}
	out.Set(spotName("vol_regime_high"), regime)

	hi := ta.RollingMax(price, spotRangeWindow)
	lo := ta.RollingMin(price, spotRangeWindow)
	rangeRatio := make([]float64, n)
	for i := range rangeRatio {
		rangeRatio[i] = (hi[i] - lo[i]) / (price[i] + ta.EPS)
	}
	out.Set(spotName("price_max", secLabel(spotRangeWindow)), hi)
	out.Set(spotName("price_min", secLabel(spotRangeWindow)), lo)
	out.Set(spotName("range_ratio", secLabel(spotRangeWindow)), rangeRatio)

	mean := ta.RollingMean(price, spotZScoreWindow)
	std := ta.RollingStd(price, spotZScoreWindow)
	z := make([]float64, n)
	for i := range z {
		z[i] = (price[i] - mean[i]) / (std[i] + ta.EPS)
	}
	out.Set(spotName("zscore", secLabel(spotZScoreWindow)), z)

	return cleanInf(out, f), nil
}

func secLabel(w int) string {
	return fmt.Sprintf("%ds", w)
}

// cleanInf replaces ±Inf with NaN in the columns added on top of base.
func cleanInf(out, base *frame.Frame) *frame.Frame {
	for _, name := range out.Names() {
		if base.Has(name) {
			continue
		}
		col := out.Col(name)
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
			}
		}
	}
	return out
}
