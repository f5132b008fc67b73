package ta

import "math"

// EWM is the recursive exponential mean y[i] = a*x[i] + (1-a)*y[i-1], seeded with
// the first non-NaN value. Leading NaNs stay NaN; interior NaNs hold the last value.
func EWM(x []float64, alpha float64) []float64 {
	out := NaNs(len(x))
	seeded := false
	prev := 0.0
	for i, v := range x {
		switch {
		case math.IsNaN(v) && !seeded:
			continue
		case math.IsNaN(v):
			out[i] = prev
		case !seeded:
			prev, seeded = v, true
			out[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}
	return out
}

// EMA is EWM with alpha = 2/(span+1).
func EMA(x []float64, span int) []float64 {
	return EWM(x, 2/(float64(span)+1))
}

// RSI uses Wilder smoothing (alpha = 1/w) of gains and losses.
func RSI(x []float64, w int) []float64 {
	delta := Diff(x, 1)
	gain := make([]float64, len(x))
	loss := make([]float64, len(x))
	for i, d := range delta {
		switch {
		case math.IsNaN(d):
			gain[i], loss[i] = math.NaN(), math.NaN()
		case d > 0:
			gain[i] = d
		default:
			loss[i] = -d
		}
	}
	alpha := 1 / float64(w)
	avgGain := EWM(gain, alpha)
	avgLoss := EWM(loss, alpha)
	out := make([]float64, len(x))
	for i := range out {
		rs := avgGain[i] / (avgLoss[i] + EPS)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// TrueRange is the largest of high-low, |high-prevClose| and |low-prevClose|,
// ignoring terms that are undefined (so the first row is high-low).
func TrueRange(high, low, close []float64) []float64 {
	prev := Shift(close, 1)
	out := make([]float64, len(close))
	for i := range out {
		best := math.NaN()
		for _, r := range []float64{high[i] - low[i], math.Abs(high[i] - prev[i]), math.Abs(low[i] - prev[i])} {
			if math.IsNaN(r) {
				continue
			}
			if math.IsNaN(best) || r > best {
				best = r
			}
		}
		out[i] = best
	}
	return out
}

// ATR is the simple rolling mean of the true range.
func ATR(high, low, close []float64, w int) []float64 {
	return RollingMean(TrueRange(high, low, close), w)
}

// MACD returns the fast-slow EMA spread, its signal EMA and the histogram.
func MACD(x []float64, fast, slow, signal int) (line, sig, hist []float64) {
	ef := EMA(x, fast)
	es := EMA(x, slow)
	line = make([]float64, len(x))
	for i := range line {
		line[i] = ef[i] - es[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(x))
	for i := range hist {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Stochastic returns %K over w bars and %D, its 3-bar mean.
func Stochastic(high, low, close []float64, w int) (k, d []float64) {
	hh := RollingMax(high, w)
	ll := RollingMin(low, w)
	k = make([]float64, len(close))
	for i := range k {
		k[i] = 100 * (close[i] - ll[i]) / (hh[i] - ll[i] + EPS)
	}
	return k, RollingMean(k, 3)
}

// WilliamsR is -100*(highest-close)/(highest-lowest) over w bars.
func WilliamsR(high, low, close []float64, w int) []float64 {
	hh := RollingMax(high, w)
	ll := RollingMin(low, w)
	out := make([]float64, len(close))
	for i := range out {
		out[i] = -100 * (hh[i] - close[i]) / (hh[i] - ll[i] + EPS)
	}
	return out
}

// TypicalPrice is (high+low+close)/3.
func TypicalPrice(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range out {
		out[i] = (high[i] + low[i] + close[i]) / 3
	}
	return out
}

// CCI uses the rolling mean absolute deviation of the typical price from its SMA.
func CCI(high, low, close []float64, w int) []float64 {
	tp := TypicalPrice(high, low, close)
	sma := RollingMean(tp, w)
	dev := make([]float64, len(tp))
	for i := range dev {
		dev[i] = math.Abs(tp[i] - sma[i])
	}
	mad := RollingMean(dev, w)
	out := make([]float64, len(tp))
	for i := range out {
		out[i] = (tp[i] - sma[i]) / (0.015*mad[i] + EPS)
	}
	return out
}

// VWAP is the rolling volume-weighted typical price over w bars.
func VWAP(high, low, close, volume []float64, w int) []float64 {
	tp := TypicalPrice(high, low, close)
	pv := make([]float64, len(tp))
	for i := range pv {
		pv[i] = tp[i] * volume[i]
	}
	num := RollingSum(pv, w)
	den := RollingSum(volume, w)
	out := make([]float64, len(tp))
	for i := range out {
		out[i] = num[i] / (den[i] + EPS)
	}
	return out
}

// ConsecutiveMoves counts the length of the current run of strictly rising
// (up) and strictly falling (down) values. Flat or undefined steps reset both.
func ConsecutiveMoves(x []float64) (up, down []float64) {
	up = make([]float64, len(x))
	down = make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			up[i] = up[i-1] + 1
		}
		if d < 0 {
			down[i] = down[i-1] + 1
		}
	}
	return up, down
}

// Sign maps a value to -1, 0 or 1; NaN maps to 0.
func Sign(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		}
	}
	return out
}

// Parkinson is the per-bar high/low variance estimate ln(h/l)^2 / (4 ln 2).
func Parkinson(high, low []float64) []float64 {
	out := make([]float64, len(high))
	for i := range out {
		hl := finite(math.Log(high[i] / low[i]))
		out[i] = hl * hl / (4 * math.Ln2)
	}
	return out
}

// GarmanKlass is the per-bar estimate 0.5 ln(h/l)^2 - (2 ln 2 - 1) ln(c/o)^2.
func GarmanKlass(open, high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range out {
		hl := finite(math.Log(high[i] / low[i]))
		co := finite(math.Log(close[i] / (open[i] + EPS)))
		out[i] = 0.5*hl*hl - (2*math.Ln2-1)*co*co
	}
	return out
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// GroupZScore standardises values within each group using the whole-sample
// mean and sample std of that group. Groups with std below EPS get 0; rows with
// an undefined group get NaN.
func GroupZScore(values, groups []float64) []float64 {
	type acc struct{ sum, sq, n float64 }
	stats := map[float64]*acc{}
	for i, g := range groups {
		if math.IsNaN(g) {
			continue
		}
		a, ok := stats[g]
		if !ok {
			a = &acc{}
			stats[g] = a
		}
		if v := values[i]; !math.IsNaN(v) {
			a.sum += v
			a.n++
		}
	}
	mean := map[float64]float64{}
	for g, a := range stats {
		mean[g] = a.sum / a.n
	}
	for i, g := range groups {
		if math.IsNaN(g) || math.IsNaN(values[i]) {
			continue
		}
		d := values[i] - mean[g]
		stats[g].sq += d * d
	}
	out := NaNs(len(values))
	for i, g := range groups {
		if math.IsNaN(g) {
			continue
		}
		a := stats[g]
		std := math.Sqrt(a.sq / (a.n - 1))
		if math.IsNaN(std) || std < EPS {
			out[i] = 0
			continue
		}
		out[i] = (values[i] - mean[g]) / std
	}
	return out
}
