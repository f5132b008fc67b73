// Package ta computes rolling technical indicators over whole series.
//
// Every function returns a new slice of the input length. Windows are trailing
// (never centred) and need a full window of non-missing values, so the first
// window-1 outputs are NaN. Gap-free inputs go through go-talib; inputs that
// carry NaN use the NaN-aware loops here.
package ta

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
)

// EPS guards denominators.
const EPS = 1e-9

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func HasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// talibWindow runs a talib rolling function and masks its warm-up zeros as NaN.
func talibWindow(fn func([]float64, int) []float64, x []float64, w int) []float64 {
	res := fn(x, w)
	out := make([]float64, len(x))
	for i := range out {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = res[i]
	}
	return out
}

// useTalib reports whether the series is safe for talib: no NaN, long enough, window >= 2.
func useTalib(x []float64, w int) bool {
	return w >= 2 && len(x) >= w && !HasNaN(x)
}

// RollingMean is the trailing simple moving average.
func RollingMean(x []float64, w int) []float64 {
	if useTalib(x, w) {
		return talibWindow(talib.Sma, x, w)
	}
	out := RollingSum(x, w)
	for i := range out {
		out[i] /= float64(w)
	}
	return out
}

// RollingSum is the trailing window sum.
func RollingSum(x []float64, w int) []float64 {
	if useTalib(x, w) {
		return talibWindow(talib.Sum, x, w)
	}
	out := NaNs(len(x))
	if w < 1 {
		return out
	}
	sum, nans := 0.0, 0
	for i, v := range x {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= w {
			old := x[i-w]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= w-1 && nans == 0 {
			out[i] = sum
		}
	}
	return out
}

// RollingMax is the trailing window maximum.
func RollingMax(x []float64, w int) []float64 {
	if useTalib(x, w) {
		return talibWindow(talib.Max, x, w)
	}
	return rollingExtreme(x, w, math.Max)
}

// RollingMin is the trailing window minimum.
func RollingMin(x []float64, w int) []float64 {
	if useTalib(x, w) {
		return talibWindow(talib.Min, x, w)
	}
	return rollingExtreme(x, w, math.Min)
}

func rollingExtreme(x []float64, w int, pick func(a, b float64) float64) []float64 {
	out := NaNs(len(x))
	if w < 1 {
		return out
	}
	for i := w - 1; i < len(x); i++ {
		acc := x[i-w+1]
		for j := i - w + 2; j <= i && !math.IsNaN(acc); j++ {
			acc = pick(acc, x[j])
		}
		out[i] = acc
	}
	return out
}

// RollingStd is the trailing sample standard deviation (n-1 denominator).
func RollingStd(x []float64, w int) []float64 {
	out := NaNs(len(x))
	if w < 2 {
		return out
	}
	nans := 0
	for i, v := range x {
		if math.IsNaN(v) {
			nans++
		}
		if i >= w && math.IsNaN(x[i-w]) {
			nans--
		}
		if i < w-1 || nans > 0 {
			continue
		}
		win := x[i-w+1 : i+1]
		mean := 0.0
		for _, u := range win {
			mean += u
		}
		mean /= float64(w)
		ss := 0.0
		for _, u := range win {
			d := u - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w-1))
	}
	return out
}

// RollingMedian is the trailing median over the non-NaN values of each window,
// defined once at least minPeriods of them are present.
func RollingMedian(x []float64, w, minPeriods int) []float64 {
	out := NaNs(len(x))
	if w < 1 {
		return out
	}
	sorted := make([]float64, 0, w)
	for i, v := range x {
		if !math.IsNaN(v) {
			k := sort.SearchFloat64s(sorted, v)
			sorted = append(sorted, 0)
			copy(sorted[k+1:], sorted[k:])
			sorted[k] = v
		}
		if i >= w {
			old := x[i-w]
			if !math.IsNaN(old) {
				k := sort.SearchFloat64s(sorted, old)
				sorted = append(sorted[:k], sorted[k+1:]...)
			}
		}
		n := len(sorted)
		if n == 0 || n < minPeriods {
			continue
		}
		if n%2 == 1 {
			out[i] = sorted[n/2]
		} else {
			out[i] = (sorted[n/2-1] + sorted[n/2]) / 2
		}
	}
	return out
}

// Median of the non-NaN values; NaN when there are none.
func Median(x []float64) float64 {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// Shift moves values k rows later (k > 0 looks into the past).
func Shift(x []float64, k int) []float64 {
	out := NaNs(len(x))
	for i := range x {
		j := i - k
		if j >= 0 && j < len(x) {
			out[i] = x[j]
		}
	}
	return out
}

// Diff is x[i] - x[i-k].
func Diff(x []float64, k int) []float64 {
	prev := Shift(x, k)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] - prev[i]
	}
	return out
}

// PctChange is x[i]/x[i-k] - 1.
func PctChange(x []float64, k int) []float64 {
	prev := Shift(x, k)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i]/prev[i] - 1
	}
	return out
}

// LogReturn is ln(x[i]/x[i-k]).
func LogReturn(x []float64, k int) []float64 {
	prev := Shift(x, k)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Log(x[i] / prev[i])
	}
	return out
}

// CleanInf replaces ±Inf with NaN in place on a slice the caller owns.
func CleanInf(x []float64) []float64 {
	for i, v := range x {
		if math.IsInf(v, 0) {
			x[i] = math.NaN()
		}
	}
	return x
}

// FFill carries the last non-NaN value forward into a new slice.
func FFill(x []float64) []float64 {
	out := make([]float64, len(x))
	last := math.NaN()
	for i, v := range x {
		if !math.IsNaN(v) {
			last = v
		}
		out[i] = last
	}
	return out
}
