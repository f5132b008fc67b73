package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-updown-study/internal/contract"
	"btc-updown-study/internal/features"
	"btc-updown-study/internal/fomo"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
)

var t0 = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func minuteBars(n int) *frame.Frame {
	ts := make([]time.Time, n)
	o, h, l, c, v := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i) * time.Minute)
		c[i] = 100 + 5*math.Sin(float64(i)/10) + 0.01*float64(i)
		h[i] = c[i] + 0.5
		l[i] = c[i] - 0.5
		o[i] = c[i] - 0.1
		v[i] = 10 + float64(i%7)
	}
	f := frame.New(ts)
	f.Set(model.ColOpen, o)
	f.Set(model.ColHigh, h)
	f.Set(model.ColLow, l)
	f.Set(model.ColClose, c)
	f.Set(model.ColVolume, v)
	return f
}

// secondQuotes starts at from and carries m15 quotes only.
func secondQuotes(from time.Time, n int) *frame.Frame {
	ts := make([]time.Time, n)
	spot := make([]float64, n)
	for i := range ts {
		ts[i] = from.Add(time.Duration(i) * time.Second)
		spot[i] = 100 + math.Sin(float64(i)/30)
	}
	f := frame.New(ts)
	f.Set(model.ColSpot, spot)
	au, ad, su, sd := model.QuoteColumns("m15")
	f.Set(au, frame.Filled(n, 0.55))
	f.Set(ad, frame.Filled(n, 0.47))
	f.Set(su, frame.Filled(n, 0.02))
	f.Set(sd, frame.Filled(n, 0.03))
	return f
}

func noNaN(t *testing.T, f *frame.Frame) {
	t.Helper()
	for _, n := range f.Names() {
		for i, v := range f.Col(n) {
			require.Falsef(t, math.IsNaN(v), "%s[%d]", n, i)
		}
	}
}

func ohlcFeatures(t *testing.T) *frame.Frame {
	t.Helper()
	return ohlcFeaturesWithPrefix(t, "m1")
}

func ohlcFeaturesWithPrefix(t *testing.T, prefix string) *frame.Frame {
	t.Helper()
	feats, err := PrepareOHLCFeatures(minuteBars(420), features.DefaultConfig(prefix))
	require.NoError(t, err)
	return feats
}

func TestPrepareOHLCFeatures(t *testing.T) {
	feats := ohlcFeatures(t)
	require.Greater(t, feats.Len(), 0)
	assert.Less(t, feats.Len(), 420)
	assert.True(t, feats.Has(ColATR))
	assert.True(t, feats.Has("m1_rsi_14"))
	noNaN(t, feats)
}

func TestEnrichQuotesWithFeatures(t *testing.T) {
	feats := ohlcFeatures(t)
	from := t0.Add(6 * time.Hour)
	quotes := secondQuotes(from, 1200)

	out, err := EnrichQuotesWithFeatures(quotes, feats, DefaultEnrichOptions())
	require.NoError(t, err)
	require.Equal(t, 1200, out.Len())
	for _, col := range []string{"m1_rsi_14", ColATR, "second_sin", "spot_return_60s", "spot_zscore_120s"} {
		require.True(t, out.Has(col), col)
	}
	assert.False(t, math.IsNaN(out.Col("m1_rsi_14")[0]))
	assert.False(t, math.IsNaN(out.Col(ColATR)[0]))
	assert.Equal(t, 5.0, out.Col("second")[5])

	opts := DefaultEnrichOptions()
	opts.Stride, opts.Offset = 10, 13
	sub, err := EnrichQuotesWithFeatures(quotes, feats, opts)
	require.NoError(t, err)
	assert.Equal(t, 120, sub.Len())
	assert.True(t, sub.Timestamps()[0].Equal(from.Add(3*time.Second)))

	quotes.Drop(model.ColSpot)
	_, err = EnrichQuotesWithFeatures(quotes, feats, DefaultEnrichOptions())
	assert.ErrorIs(t, err, frame.ErrMissingColumn)
}

func timeframeTable(t *testing.T) *frame.Frame {
	t.Helper()
	return timeframeTableWithPrefix(t, "m1")
}

func timeframeTableWithPrefix(t *testing.T, prefix string) *frame.Frame {
	t.Helper()
	enriched, err := EnrichQuotesWithFeatures(secondQuotes(t0.Add(6*time.Hour), 1200), ohlcFeaturesWithPrefix(t, prefix), DefaultEnrichOptions())
	require.NoError(t, err)
	table, err := PrepareTimeframeTables(enriched, "m15", model.ColSpot, prefix)
	require.NoError(t, err)
	return table
}

func TestPrepareTimeframeTables(t *testing.T) {
	table := timeframeTable(t)
	for _, col := range []string{
		"m15_prob_up_market", "m15_price_up_ask", "m15_tf_open", "m15_outcome_up",
		"m15_target_up", "m15_time_remaining_ratio", "m15_prob_base", ColATR,
	} {
		require.True(t, table.Has(col), col)
	}
	assert.Equal(t, table.Col("m15_prob_up_market"), table.Col("m15_prob_base"))
	assert.InDelta(t, 0.54/0.995, table.Col("m15_prob_up_market")[0], 1e-9)

	// 06:00 to 06:20: the 06:15 contract settles, the 06:30 one does not
	outcome := table.Col("m15_outcome_up")
	assert.False(t, math.IsNaN(outcome[0]))
	assert.True(t, math.IsNaN(outcome[1199]))
	// forward price exists only for the first 5 minutes
	target := table.Col("m15_target_up")
	assert.False(t, math.IsNaN(target[299]))
	assert.True(t, math.IsNaN(target[300]))

	_, err := PrepareTimeframeTables(table, "weekly", model.ColSpot, "m1")
	assert.ErrorIs(t, err, contract.ErrUnknownTimeframe)
	_, err = PrepareTimeframeTables(table, "h1", model.ColSpot, "m1")
	assert.ErrorIs(t, err, frame.ErrMissingColumn)
}

func TestPrepareTimeframeTablesComputesMissingATR(t *testing.T) {
	quotes := secondQuotes(t0, 100)
	table, err := PrepareTimeframeTables(quotes, "m15", model.ColSpot, "m1")
	require.NoError(t, err)
	atr := table.Col(ColATR)
	assert.True(t, math.IsNaN(atr[0]))
	assert.False(t, math.IsNaN(atr[99]))
}

func TestBuildClassificationDataset(t *testing.T) {
	ds, err := BuildClassificationDataset(timeframeTable(t), "m15", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m15_target_up"}, ds.Targets)
	assert.Contains(t, ds.Features, "m1_rsi_14")
	assert.Contains(t, ds.Features, "spot_return_1s")
	assert.Contains(t, ds.Features, "hour_sin")
	assert.Contains(t, ds.Features, ColATR)
	for _, f := range ds.Features {
		assert.NotContains(t, []string{"m15_prob_up_market", "m15_price_up_ask", "m15_future_return", "m15_contract_id", "m15_target_up"}, f)
	}
	require.Greater(t, ds.Frame.Len(), 0)
	assert.LessOrEqual(t, ds.Frame.Len(), 300)
	noNaN(t, ds.Frame)
}

func TestBuildClassificationDatasetCustomPrefix(t *testing.T) {
	def, err := BuildClassificationDataset(timeframeTable(t), "m15", "m1")
	require.NoError(t, err)
	custom, err := BuildClassificationDataset(timeframeTableWithPrefix(t, "feat"), "m15", "feat")
	require.NoError(t, err)

	assert.Len(t, custom.Features, len(def.Features))
	assert.Contains(t, custom.Features, "feat_rsi_14")
	assert.Contains(t, custom.Features, "feat_atr_14")
	for _, f := range custom.Features {
		assert.NotContains(t, f, "m1_")
	}

	_, err = BuildClassificationDataset(timeframeTable(t), "m15", "")
	assert.ErrorIs(t, err, ErrNoFeaturePrefix)
}

func TestPrepareTimeframeTablesUsesMinuteATR(t *testing.T) {
	quotes := secondQuotes(t0, 100)
	quotes.Set("feat_atr_14", frame.Filled(100, 1.5))
	table, err := PrepareTimeframeTables(quotes, "m15", model.ColSpot, "feat")
	require.NoError(t, err)
	assert.Equal(t, frame.Filled(100, 1.5), table.Col(ColATR))

	// under another prefix the column is not recognised and ATR is recomputed
	other, err := PrepareTimeframeTables(quotes, "m15", model.ColSpot, "m1")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(other.Col(ColATR)[0]))
}

func TestBuildRegressionDataset(t *testing.T) {
	ds, err := BuildRegressionDataset(timeframeTable(t), "m15")
	require.NoError(t, err)
	assert.Equal(t, []string{"m15_price_up_mid", "m15_price_down_mid", "m15_prob_up_market"}, ds.Targets)
	assert.Contains(t, ds.Features, "m15_buy")
	assert.NotContains(t, ds.Features, "m15_prob_base")
	assert.NotContains(t, ds.Features, "m15_future_price")
	assert.NotContains(t, ds.Features, "m15_outcome_up")
	require.Greater(t, ds.Frame.Len(), 0)
	noNaN(t, ds.Frame)
}

func TestMakeFomoInputFromTable(t *testing.T) {
	table := timeframeTable(t)
	in, err := MakeFomoInput(table, "m15")
	require.NoError(t, err)
	assert.Equal(t, table.Col("m15_prob_up_market"), in.Col(fomo.DefaultColumns().Prob))

	scenarios, err := fomo.DefaultScenarios("m15")
	require.NoError(t, err)
	odds, err := fomo.SimulateFomoOdds(context.Background(), in, scenarios)
	require.NoError(t, err)
	assert.True(t, odds.Has(scenarios[0].Column()))
}

func TestPrepareMinuteHistory(t *testing.T) {
	feats := ohlcFeatures(t)
	hist, err := PrepareMinuteHistory(feats, "m15")
	require.NoError(t, err)
	require.Greater(t, hist.Len(), 0)
	assert.Equal(t, hist.Col(model.ColClose), hist.Col(model.ColSpot))
	assert.True(t, hist.Has("m15_target_up"))
	noNaN(t, hist)
	assert.False(t, feats.Has(model.ColSpot))
}

func TestSelectRecentRows(t *testing.T) {
	ts := make([]time.Time, 10)
	vals := make([]float64, 10)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i) * time.Second)
		vals[i] = float64(i)
	}
	f := frame.New(ts)
	f.Set("x", vals)

	assert.Equal(t, []float64{5, 7, 9}, SelectRecentRows(f, 3, 2, 1).Col("x"))
	assert.Equal(t, vals, SelectRecentRows(f, 0, 1, 0).Col("x"))
	assert.Equal(t, []float64{1, 4, 7}, SelectRecentRows(f, 0, 3, 4).Col("x"))
	assert.Equal(t, 10, SelectRecentRows(f, 50, 1, 0).Len())
}

func TestEstimateAverageSpreads(t *testing.T) {
	table := timeframeTable(t)
	spreads, err := EstimateAverageSpreads(table, []string{"m15"})
	require.NoError(t, err)
	assert.InDelta(t, 0.02, spreads["m15"].Up, 1e-12)
	assert.InDelta(t, 0.03, spreads["m15"].Down, 1e-12)

	_, err = EstimateAverageSpreads(table, []string{"h1"})
	assert.ErrorIs(t, err, frame.ErrMissingColumn)
}
