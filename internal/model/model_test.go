package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)

func TestBarAggregatorBuildsMinuteBars(t *testing.T) {
	agg := NewBarAggregator(time.Minute)
	prices := []struct {
		sec   int
		price float64
	}{
		{0, 100}, {10, 102}, {59, 99}, // minute 0
		{125, 101}, {130, 100}, // minute 2 (minute 1 is empty)
	}
	for _, p := range prices {
		agg.ProcessTick(t0.Add(time.Duration(p.sec)*time.Second), p.price)
	}
	agg.ProcessTick(t0, 500) // stale, dropped
	agg.ProcessTick(t0.Add(131*time.Second), math.NaN())

	bars := agg.Flush()
	require.Len(t, bars, 2)
	assert.Equal(t, PriceBar{Timestamp: t0.UnixMilli(), Open: 100, High: 102, Low: 99, Close: 99, Volume: 3}, bars[0])
	assert.Equal(t, PriceBar{Timestamp: t0.Add(2 * time.Minute).UnixMilli(), Open: 101, High: 101, Low: 100, Close: 100, Volume: 2}, bars[1])
	assert.Empty(t, agg.Flush())
}

func TestBarsFrameRoundTrip(t *testing.T) {
	bars := []PriceBar{
		{Timestamp: t0.UnixMilli(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: math.NaN()},
		{Timestamp: t0.Add(time.Minute).UnixMilli(), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: math.NaN()},
	}
	f := BarsToFrame(bars)
	assert.False(t, f.Has(ColVolume))
	assert.Equal(t, []float64{1.5, 1.8}, f.Col(ColClose))

	back, err := FrameToBars(f)
	require.NoError(t, err)
	assert.Equal(t, bars[1].Timestamp, back[1].Timestamp)
	assert.True(t, math.IsNaN(back[0].Volume))
}

func TestQuotesToFrameDedupsAndFillsMissingSides(t *testing.T) {
	ticks := []QuoteTick{
		{Timestamp: t0.Add(time.Second), SpotPrice: 101, Sides: map[string]QuoteSide{"m15": {AskUp: .6, AskDown: .45, SpreadUp: .02, SpreadDown: .02}}},
		{Timestamp: t0, SpotPrice: 100},
		{Timestamp: t0.Add(time.Second), SpotPrice: 102, Sides: map[string]QuoteSide{"m15": {AskUp: .62, AskDown: .43, SpreadUp: .02, SpreadDown: .02}}},
	}
	f := QuotesToFrame(ticks, []string{"m15"})
	require.Equal(t, 2, f.Len())
	assert.Equal(t, []float64{100, 102}, f.Col(ColSpot))
	assert.True(t, math.IsNaN(f.Col("m15_buy")[0]))
	assert.Equal(t, .62, f.Col("m15_buy")[1])
	assert.Equal(t, .43, f.Col("m15_sell")[1])
}
