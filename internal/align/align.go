// Package align joins the 1-minute feature series onto the 1-second quote
// series and derives the tick-level microstructure features.
package align

import (
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/service"
	"btc-updown-study/pkg/ta"
)

// DefaultTolerance bounds how stale a joined feature row may be.
const DefaultTolerance = 5 * time.Minute

// CollisionSuffix is appended to right-hand columns whose name already exists
// on the left.
const CollisionSuffix = "_ohlc"

// AlignToOHLC is a backward as-of join: every event row receives the columns
// of the latest feature row with timestamp <= its own, provided the gap is at
// most tolerance. Unmatched rows get NaN. Both inputs are left untouched.
func AlignToOHLC(events, features *frame.Frame, tolerance time.Duration) *frame.Frame {
	left := events.SortByTime()
	right := features.SortByTime()
	out := left.Clone()
	if left.Len() == 0 {
		return out
	}

	match := make([]int, left.Len())
	rts := right.Timestamps()
	j := -1
	matched := 0
	for i, t := range left.Timestamps() {
		for j+1 < len(rts) && !rts[j+1].After(t) {
			j++
		}
		match[i] = -1
		if j >= 0 && t.Sub(rts[j]) <= tolerance {
			match[i] = j
			matched++
		}
	}

	for _, name := range right.Names() {
		src := right.Col(name)
		dst := ta.NaNs(left.Len())
		for i, k := range match {
			if k >= 0 {
				dst[i] = src[k]
			}
		}
		target := name
		if left.Has(name) {
			target = name + CollisionSuffix
		}
		out.Set(target, dst)
	}

	service.Logger.Debug("as-of join",
		zap.Int("events", left.Len()),
		zap.Int("feature_rows", right.Len()),
		zap.Int("matched", matched),
		zap.Duration("tolerance", tolerance))
	return out
}

// ResampleSecondsToMinutes folds 1-second prices into 1-minute OHLC bars with
// a volume_proxy column holding the number of ticks per bar. Minutes without
// ticks produce no row.
func ResampleSecondsToMinutes(f *frame.Frame, priceCol string) (*frame.Frame, error) {
	if err := f.Require(priceCol); err != nil {
		return nil, err
	}
	sorted := f.SortByTime()
	price := sorted.Col(priceCol)
	agg := model.NewBarAggregator(time.Minute)
	for i, ts := range sorted.Timestamps() {
		agg.ProcessTick(ts, price[i])
	}
	bars := agg.Flush()
	out := model.BarsToFrame(bars)
	if out.Has(model.ColVolume) {
		out = out.Rename(map[string]string{model.ColVolume: "volume_proxy"})
	} else {
		out.Set("volume_proxy", make([]float64, out.Len()))
	}
	return out, nil
}
