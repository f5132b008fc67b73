package features

import (
	"math"

	"btc-updown-study/internal/frame"
	"btc-updown-study/pkg/ta"
)

var (
	logReturnWindows   = []int{1, 5, 15, 30, 60}
	momentumWindows    = []int{1, 3, 5, 10, 20, 60, 120}
	movingAvgWindows   = []int{5, 20, 60, 120, 240}
	rsiWindows         = []int{3, 7, 14, 21}
	realizedVolWindows = []int{10, 30, 60, 120}
	rangeVolWindows    = []int{15, 30, 60, 120}
	oscillatorWindows  = []int{14, 28}
	vwapWindows        = []int{60, 240}
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	atrWindow  = 14
)

// AddPriceFeatures adds returns, averages, oscillators, volatility, candle
// geometry, run counts and the volume block to a copy of f.
func AddPriceFeatures(f *frame.Frame, cfg Config) *frame.Frame {
	out := f.Clone()
	n := f.Len()
	price := f.Col(cfg.PriceCol)
	high := f.Col(cfg.HighCol)
	low := f.Col(cfg.LowCol)
	open := f.Col(cfg.OpenCol)
	if open == nil {
		open = ta.Shift(price, 1)
	}
	volume := f.Col(cfg.VolumeCol)

	for _, w := range logReturnWindows {
		out.Set(cfg.name("log_return", w), ta.LogReturn(price, w))
	}
	for _, w := range momentumWindows {
		out.Set(cfg.name("momentum", w), ta.Diff(price, w))
	}

	for _, w := range movingAvgWindows {
		label := frame.WindowLabel(w)
		sma := ta.RollingMean(price, w)
		ema := ta.EMA(price, w)
		std := ta.RollingStd(price, w)
		up, lo, width := make([]float64, n), make([]float64, n), make([]float64, n)
		overSMA, overEMA := make([]float64, n), make([]float64, n)
		for i := 0; i < n; i++ {
			up[i] = sma[i] + 2*std[i]
			lo[i] = sma[i] - 2*std[i]
			width[i] = 2 * std[i] / (sma[i] + ta.EPS)
			overSMA[i] = price[i]/(sma[i]+ta.EPS) - 1
			overEMA[i] = price[i]/(ema[i]+ta.EPS) - 1
		}
		out.Set(cfg.name("sma", label), sma)
		out.Set(cfg.name("ema", label), ema)
		out.Set(cfg.name("boll_mid", label), sma)
		out.Set(cfg.name("boll_up", label), up)
		out.Set(cfg.name("boll_low", label), lo)
		out.Set(cfg.name("boll_width", label), width)
		out.Set(cfg.name("close_over_sma", label), overSMA)
		out.Set(cfg.name("close_over_ema", label), overEMA)
	}

	for _, w := range rsiWindows {
		out.Set(cfg.name("rsi", w), ta.RSI(price, w))
	}

	line, sig, hist := ta.MACD(price, macdFast, macdSlow, macdSignal)
	out.Set(cfg.name("macd_line"), line)
	out.Set(cfg.name("macd_signal"), sig)
	out.Set(cfg.name("macd_hist"), hist)

	atr := ta.ATR(high, low, price, atrWindow)
	out.Set(cfg.name("atr", atrWindow), atr)
	out.Set(cfg.name("atr_slope", 1), ta.Diff(atr, 1))
	out.Set(cfg.name("atr_slope", 5), ta.Diff(atr, 5))

	ret1 := out.Col(cfg.name("log_return", 1))
	for _, w := range realizedVolWindows {
		out.Set(cfg.name("realized_vol", w), ta.RollingStd(ret1, w))
	}

	parkinson := ta.Parkinson(high, low)
	gk := ta.GarmanKlass(open, high, low, price)
	for _, w := range rangeVolWindows {
		out.Set(cfg.name("parkinson_vol", w), ta.RollingMean(parkinson, w))
		out.Set(cfg.name("gk_vol", w), ta.RollingMean(gk, w))
	}

	addCandleFeatures(out, cfg, open, high, low, price)

	up, down := ta.ConsecutiveMoves(price)
	persistence := make([]float64, n)
	for i := range persistence {
		persistence[i] = up[i] - down[i]
	}
	out.Set(cfg.name("consecutive_up"), up)
	out.Set(cfg.name("consecutive_down"), down)
	out.Set(cfg.name("trend_direction"), ta.Sign(ta.Diff(price, 1)))
	out.Set(cfg.name("trend_persistence"), persistence)

	for _, w := range oscillatorWindows {
		k, d := ta.Stochastic(high, low, price, w)
		out.Set(cfg.name("stoch_k", w), k)
		out.Set(cfg.name("stoch_d", w), d)
		out.Set(cfg.name("williams_r", w), ta.WilliamsR(high, low, price, w))
		out.Set(cfg.name("cci", w), ta.CCI(high, low, price, w))
	}

	if volume != nil {
		addVolumeFeatures(out, cfg, high, low, price, volume)
	}
	return out
}

func addCandleFeatures(out *frame.Frame, cfg Config, open, high, low, price []float64) {
	n := len(price)
	cols := map[string][]float64{}
	names := []string{"range", "body_abs", "range_ratio", "upper_wick", "lower_wick",
		"wick_ratio", "position_in_range", "close_over_open", "range_pct"}
	for _, name := range names {
		cols[name] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		body := math.Abs(price[i] - open[i])
		rng := math.Abs(high[i] - low[i])
		upper := clipLow(high[i] - math.Max(price[i], open[i]))
		lower := clipLow(math.Min(price[i], open[i]) - low[i])
		cols["range"][i] = rng
		cols["body_abs"][i] = body
		cols["range_ratio"][i] = rng / (body + ta.EPS)
		cols["upper_wick"][i] = upper
		cols["lower_wick"][i] = lower
		cols["wick_ratio"][i] = (upper + lower) / (body + ta.EPS)
		cols["position_in_range"][i] = (price[i] - low[i]) / (rng + ta.EPS)
		cols["close_over_open"][i] = price[i]/(open[i]+ta.EPS) - 1
		cols["range_pct"][i] = rng / (price[i] + ta.EPS)
	}
	for _, name := range names {
		out.Set(cfg.name(name), cols[name])
	}

	grabHigh, grabLow := make([]float64, n), make([]float64, n)
	for i := 1; i < n; i++ {
		grabHigh[i] = frame.Bool(high[i] > high[i-1] && price[i] < high[i-1])
		grabLow[i] = frame.Bool(low[i] < low[i-1] && price[i] > low[i-1])
	}
	out.Set(cfg.name("liquidity_grab_high"), grabHigh)
	out.Set(cfg.name("liquidity_grab_low"), grabLow)
}

// clipLow clips at zero from below, keeping NaN.
func clipLow(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func addVolumeFeatures(out *frame.Frame, cfg Config, high, low, price, volume []float64) {
	n := len(price)
	out.Set(cfg.name("vol_sma", 20), ta.RollingMean(volume, 20))
	mean60 := ta.RollingMean(volume, 60)
	std60 := ta.RollingStd(volume, 60)
	z := make([]float64, n)
	for i := range z {
		z[i] = (volume[i] - mean60[i]) / (std60[i] + ta.EPS)
	}
	out.Set(cfg.name("vol_zscore"), z)

	for _, w := range vwapWindows {
		label := frame.WindowLabel(w)
		vwap := ta.VWAP(high, low, price, volume, w)
		over := make([]float64, n)
		for i := range over {
			over[i] = price[i]/(vwap[i]+ta.EPS) - 1
		}
		out.Set(cfg.name("vwap", label), vwap)
		out.Set(cfg.name("close_over_vwap", label), over)
	}
}
