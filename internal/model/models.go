package model

import (
	"math"
	"time"

	"btc-updown-study/internal/frame"
)

// PriceBar is one 1-minute spot candle. Volume is NaN when the feed has none.
type PriceBar struct {
	Timestamp int64   `json:"t" parquet:"t"` // unix milliseconds, bar open
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    float64 `json:"v" parquet:"v"`
}

func (b PriceBar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

// QuoteSide is the raw prediction-market quote of one timeframe:
// ask prices of the up ("buy") and down ("sell") shares and their spreads.
type QuoteSide struct {
	AskUp      float64
	AskDown    float64
	SpreadUp   float64
	SpreadDown float64
}

// QuoteTick is one 1-second observation of spot and contract quotes.
type QuoteTick struct {
	Timestamp time.Time
	SpotPrice float64
	Sides     map[string]QuoteSide // keyed by timeframe label
}

// Raw quote column names of a timeframe, as they appear in the quote feed.
func QuoteColumns(tf string) (askUp, askDown, spreadUp, spreadDown string) {
	return frame.Join(tf, "buy"), frame.Join(tf, "sell"), frame.Join(tf, "spread", "up"), frame.Join(tf, "spread", "down")
}

const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
	ColSpot   = "spot_price"
)

// BarsToFrame lays bars out as open/high/low/close/volume columns.
// The volume column is omitted when every bar lacks volume.
func BarsToFrame(bars []PriceBar) *frame.Frame {
	ts := make([]time.Time, len(bars))
	o := make([]float64, len(bars))
	h := make([]float64, len(bars))
	l := make([]float64, len(bars))
	c := make([]float64, len(bars))
	v := make([]float64, len(bars))
	hasVolume := false
	for i, b := range bars {
		ts[i] = b.Time()
		o[i], h[i], l[i], c[i], v[i] = b.Open, b.High, b.Low, b.Close, b.Volume
		if !math.IsNaN(b.Volume) {
			hasVolume = true
		}
	}
	f := frame.New(ts)
	f.Set(ColOpen, o)
	f.Set(ColHigh, h)
	f.Set(ColLow, l)
	f.Set(ColClose, c)
	if hasVolume {
		f.Set(ColVolume, v)
	}
	return f
}

// FrameToBars reads bars back from a frame holding the OHLC columns.
func FrameToBars(f *frame.Frame) ([]PriceBar, error) {
	if err := f.Require(ColOpen, ColHigh, ColLow, ColClose); err != nil {
		return nil, err
	}
	vol := f.Col(ColVolume)
	bars := make([]PriceBar, f.Len())
	for i, t := range f.Timestamps() {
		bars[i] = PriceBar{
			Timestamp: t.UnixMilli(),
			Open:      f.Col(ColOpen)[i],
			High:      f.Col(ColHigh)[i],
			Low:       f.Col(ColLow)[i],
			Close:     f.Col(ColClose)[i],
			Volume:    math.NaN(),
		}
		if vol != nil {
			bars[i].Volume = vol[i]
		}
	}
	return bars, nil
}

// QuotesToFrame lays ticks out as spot_price plus the raw quote columns of each
// timeframe. A tick missing a timeframe gets NaN in that timeframe's columns.
func QuotesToFrame(ticks []QuoteTick, timeframes []string) *frame.Frame {
	ts := make([]time.Time, len(ticks))
	spot := make([]float64, len(ticks))
	for i, q := range ticks {
		ts[i] = q.Timestamp
		spot[i] = q.SpotPrice
	}
	f := frame.New(ts)
	f.Set(ColSpot, spot)
	for _, tf := range timeframes {
		au, ad, su, sd := QuoteColumns(tf)
		cols := [4][]float64{}
		for k := range cols {
			cols[k] = frame.Filled(len(ticks), math.NaN())
		}
		for i, q := range ticks {
			s, ok := q.Sides[tf]
			if !ok {
				continue
			}
			cols[0][i], cols[1][i], cols[2][i], cols[3][i] = s.AskUp, s.AskDown, s.SpreadUp, s.SpreadDown
		}
		f.Set(au, cols[0])
		f.Set(ad, cols[1])
		f.Set(su, cols[2])
		f.Set(sd, cols[3])
	}
	return f.DedupKeepLast()
}
