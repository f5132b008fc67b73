package features

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-updown-study/internal/frame"
)

var t0 = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) // Monday

func syntheticBars(n int, withVolume bool) *frame.Frame {
	ts := make([]time.Time, n)
	o, h, l, c, v := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		ts[i] = t0.Add(time.Duration(i) * time.Minute)
		c[i] = 100 + 5*math.Sin(float64(i)/10) + 0.01*float64(i)
		h[i] = c[i] + 0.5
		l[i] = c[i] - 0.5
		o[i] = c[i] - 0.1
		v[i] = 10 + float64(i%7)
	}
	f := frame.New(ts)
	f.Set("open", o)
	f.Set("high", h)
	f.Set("low", l)
	f.Set("close", c)
	if withVolume {
		f.Set("volume", v)
	}
	return f
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestBuildFeatureMatrixColumns(t *testing.T) {
	in := syntheticBars(300, true)
	inCols := in.Names()

	out, err := BuildFeatureMatrix(in, DefaultConfig("m1"), false)
	require.NoError(t, err)
	assert.Equal(t, 300, out.Len())
	assert.Equal(t, inCols, in.Names(), "input frame must not gain columns")

	for _, name := range []string{
		"m1_log_return_60", "m1_momentum_120", "m1_sma_4h", "m1_boll_width_20m",
		"m1_close_over_ema_1h", "m1_rsi_21", "m1_macd_hist", "m1_atr_14", "m1_atr_slope_5",
		"m1_realized_vol_120", "m1_parkinson_vol_15", "m1_gk_vol_120", "m1_wick_ratio",
		"m1_liquidity_grab_low", "m1_trend_persistence", "m1_stoch_d_28", "m1_williams_r_14",
		"m1_cci_28", "m1_vol_zscore", "m1_vwap_4h", "m1_close_over_vwap_1h",
		"hour", "minute_cos", "second_sin", "is_weekend",
		"m1_session_day", "m1_vol_regime_low", "m1_log_return_1_session_z", "m1_log_return_5_volreg_z",
		"m1_macd_cross_5m", "m1_macd_slope_15m", "m1_htf_high_4h", "m1_liquidity_grab_htf_low_15m",
	} {
		assert.True(t, out.Has(name), name)
	}
	for _, name := range out.Names() {
		for i, v := range out.Col(name) {
			require.Falsef(t, math.IsInf(v, 0), "%s[%d] is infinite", name, i)
		}
	}

	rsi := out.Col("m1_rsi_14")
	assert.True(t, math.IsNaN(rsi[0]))
	for _, v := range rsi[1:] {
		assert.True(t, v >= 0 && v <= 100)
	}
}

func TestBuildFeatureMatrixWithoutVolumeOrOpen(t *testing.T) {
	in := syntheticBars(50, false)
	in.Drop("open")
	out, err := BuildFeatureMatrix(in, DefaultConfig("m1"), false)
	require.NoError(t, err)
	assert.False(t, out.Has("m1_vwap_1h"))
	assert.False(t, out.Has("m1_vol_sma_20"))
	assert.True(t, math.IsNaN(out.Col("m1_body_abs")[0]))
	assert.False(t, math.IsNaN(out.Col("m1_body_abs")[1]))
}

func TestBuildFeatureMatrixMissingColumn(t *testing.T) {
	in := syntheticBars(10, false)
	in.Drop("high")
	_, err := BuildFeatureMatrix(in, DefaultConfig("m1"), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrMissingColumn))
}

func TestBuildFeatureMatrixDropNA(t *testing.T) {
	out, err := BuildFeatureMatrix(syntheticBars(300, true), DefaultConfig("m1"), true)
	require.NoError(t, err)
	require.Greater(t, out.Len(), 0)
	for _, name := range out.Names() {
		for _, v := range out.Col(name) {
			require.False(t, math.IsNaN(v), name)
		}
	}
}

// Changing a bar must not change any causal feature of earlier rows.
func TestFeaturesAreCausal(t *testing.T) {
	const n, k = 300, 200
	base := syntheticBars(n, true)
	bumped := base.Clone()
	for _, col := range []string{"close", "high", "low"} {
		vals := append([]float64(nil), base.Col(col)...)
		vals[k] += 7
		bumped.Set(col, vals)
	}

	a, err := BuildFeatureMatrix(base, DefaultConfig("m1"), false)
	require.NoError(t, err)
	b, err := BuildFeatureMatrix(bumped, DefaultConfig("m1"), false)
	require.NoError(t, err)

	for _, name := range a.Names() {
		if strings.HasSuffix(name, "_z") {
			continue // whole-sample regime statistics
		}
		ca, cb := a.Col(name), b.Col(name)
		for i := 0; i < k; i++ {
			require.Truef(t, sameValue(ca[i], cb[i]), "%s[%d]: %v != %v", name, i, ca[i], cb[i])
		}
	}
}

func TestMACDFromResampleUsesClosedBarsOnly(t *testing.T) {
	in := syntheticBars(60, false)
	cfg := DefaultConfig("m1")
	out := AddMACDFromResample(in, cfg, []Rule{{Every: 5 * time.Minute, Label: "5m"}})

	line := out.Col("m1_macd_line_5m")
	for i := 0; i < 5; i++ {
		assert.Truef(t, math.IsNaN(line[i]), "row %d sees an unclosed bar", i)
	}
	// the first 5m bar closes at minute 5 with a seeded MACD of zero
	assert.Equal(t, 0.0, line[5])
	assert.Equal(t, line[5], line[9])
	assert.NotEqual(t, line[9], line[10])
}

func TestLiquidityGrabAgainstPreviousBar(t *testing.T) {
	ts := make([]time.Time, 4)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i*10) * time.Minute) // minutes 0, 10 | 20 | 30
	}
	f := frame.New(ts)
	f.Set("high", []float64{101, 103, 105, 102})
	f.Set("low", []float64{99, 98, 97, 99})
	f.Set("close", []float64{100, 102, 102, 100})
	cfg := DefaultConfig("m1")
	out := AddLiquidityFeatures(f, cfg, []Rule{{Every: 15 * time.Minute, Label: "15m"}})

	assert.Equal(t, []float64{101, 103, 105, 102}, out.Col("m1_htf_high_15m"))
	assert.Equal(t, []float64{99, 98, 97, 99}, out.Col("m1_htf_low_15m"))
	// minute 20 pierces 103 and closes back under it
	assert.Equal(t, []float64{0, 0, 1, 0}, out.Col("m1_liquidity_grab_htf_high_15m"))
	// minute 20 pierces 98 and closes above it
	assert.Equal(t, []float64{0, 0, 1, 0}, out.Col("m1_liquidity_grab_htf_low_15m"))
}

func TestTimeFeatures(t *testing.T) {
	f := frame.New([]time.Time{
		time.Date(2025, 1, 6, 10, 30, 15, 0, time.UTC),
		time.Date(2025, 1, 11, 23, 0, 0, 0, time.UTC),
	})
	out := AddTimeFeatures(f)
	assert.Equal(t, []float64{10, 23}, out.Col("hour"))
	assert.Equal(t, []float64{30, 0}, out.Col("minute"))
	assert.Equal(t, []float64{15, 0}, out.Col("second"))
	assert.Equal(t, []float64{0, 5}, out.Col("day_of_week"))
	assert.Equal(t, []float64{0, 1}, out.Col("is_weekend"))
	assert.InDelta(t, -1, out.Col("minute_cos")[0], 1e-12)
}

func TestRegimeSessionBoundaries(t *testing.T) {
	f := frame.New([]time.Time{
		time.Date(2025, 1, 6, 7, 59, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 20, 0, 0, 0, time.UTC),
	})
	out := AddRegimeFeatures(AddTimeFeatures(f), DefaultConfig("m1"))
	assert.Equal(t, []float64{0, 1, 0}, out.Col("m1_session_day"))
	assert.Equal(t, []float64{1, 0, 1}, out.Col("m1_session_night"))
	assert.False(t, out.Has("m1_vol_regime_high"))
}

func TestConfigColumnOwnership(t *testing.T) {
	cfg := DefaultConfig("feat")
	assert.Equal(t, "feat_atr_14", cfg.ATRCol())
	assert.True(t, cfg.Owns("feat_rsi_14"))
	assert.False(t, cfg.Owns("feature"))
	assert.False(t, cfg.Owns("m1_rsi_14"))
	assert.False(t, DefaultConfig("").Owns("rsi_14"))
}
