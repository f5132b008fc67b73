package features

import (
	"math"
	"time"

	"btc-updown-study/internal/frame"
)

// AddTimeFeatures adds unprefixed calendar columns from the row timestamps
// (UTC): hour, minute, second, day_of_week (Monday = 0), is_weekend and
// sin/cos encodings of hour, minute and second.
func AddTimeFeatures(f *frame.Frame) *frame.Frame {
	out := f.Clone()
	n := f.Len()
	cols := map[string][]float64{}
	names := []string{"hour", "minute", "day_of_week", "is_weekend",
		"hour_sin", "hour_cos", "minute_sin", "minute_cos",
		"second", "second_sin", "second_cos"}
	for _, name := range names {
		cols[name] = make([]float64, n)
	}
	for i, ts := range f.Timestamps() {
		h, m, s := float64(ts.Hour()), float64(ts.Minute()), float64(ts.Second())
		dow := float64((int(ts.Weekday()) + 6) % 7)
		cols["hour"][i] = h
		cols["minute"][i] = m
		cols["day_of_week"][i] = dow
		cols["is_weekend"][i] = frame.Bool(ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday)
		cols["hour_sin"][i], cols["hour_cos"][i] = cyclic(h, 24)
		cols["minute_sin"][i], cols["minute_cos"][i] = cyclic(m, 60)
		cols["second"][i] = s
		cols["second_sin"][i], cols["second_cos"][i] = cyclic(s, 60)
	}
	for _, name := range names {
		out.Set(name, cols[name])
	}
	return out
}

func cyclic(v, period float64) (float64, float64) {
	a := 2 * math.Pi * v / period
	return math.Sin(a), math.Cos(a)
}

// InSession reports whether the UTC hour lies in [start, end).
func InSession(ts time.Time, start, end int) bool {
	h := ts.Hour()
	return h >= start && h < end
}
