package model

import (
	"math"
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/service"
)

// BarAggregator folds time-ordered price ticks into fixed-interval bars.
// Volume counts the ticks that fell inside the bar. Intervals without ticks
// produce no bar.
type BarAggregator struct {
	Interval time.Duration
	Current  PriceBar // bar under construction; Timestamp == 0 before the first tick
	bars     []PriceBar
	dropped  int
}

// NewBarAggregator returns an aggregator for the given bar interval.
func NewBarAggregator(interval time.Duration) *BarAggregator {
	return &BarAggregator{Interval: interval}
}

// ProcessTick adds one tick. Ticks older than the bar under construction are
// dropped; NaN prices are ignored.
func (agg *BarAggregator) ProcessTick(ts time.Time, price float64) {
	if math.IsNaN(price) {
		return
	}
	start := ts.Truncate(agg.Interval).UnixMilli()

	if agg.Current.Timestamp != 0 && start < agg.Current.Timestamp {
		agg.dropped++
		return
	}

	// a tick in a later interval completes the current bar
	if agg.Current.Timestamp != 0 && start > agg.Current.Timestamp {
		agg.bars = append(agg.bars, agg.Current)
		agg.Current = PriceBar{}
	}

	if agg.Current.Timestamp == 0 {
		agg.Current = PriceBar{
			Timestamp: start,
			Open:      price,
			High:      price,
			Low:       price,
		}
	}

	agg.Current.Close = price
	agg.Current.High = math.Max(agg.Current.High, price)
	agg.Current.Low = math.Min(agg.Current.Low, price)
	agg.Current.Volume++
}

// Flush completes the bar under construction and returns every bar so far.
func (agg *BarAggregator) Flush() []PriceBar {
	if agg.Current.Timestamp != 0 {
		agg.bars = append(agg.bars, agg.Current)
		agg.Current = PriceBar{}
	}
	if agg.dropped > 0 {
		service.Logger.Warn("out-of-order ticks dropped",
			zap.String("interval", service.FormatInterval(agg.Interval)),
			zap.Int("dropped", agg.dropped))
	}
	out := agg.bars
	agg.bars = nil
	agg.dropped = 0
	return out
}
