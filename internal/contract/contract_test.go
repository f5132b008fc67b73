package contract

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-updown-study/internal/frame"
)

func seriesEvery(start time.Time, step time.Duration, prices []float64) *frame.Frame {
	ts := make([]time.Time, len(prices))
	for i := range prices {
		ts[i] = start.Add(time.Duration(i) * step)
	}
	f := frame.New(ts)
	f.Set("spot_price", prices)
	return f
}

func TestLookupUnknownTimeframe(t *testing.T) {
	_, err := Lookup("m5")
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))

	_, err = AssignContracts(frame.New(nil), "weekly")
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))
}

func TestCloseBoundaries(t *testing.T) {
	m15, _ := Lookup("m15")
	ts := time.Date(2025, 1, 6, 10, 7, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 15, 0, 0, time.UTC), m15.Close(ts))
	assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), m15.Open(ts))

	onBoundary := time.Date(2025, 1, 6, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC), m15.Close(onBoundary))

	daily, _ := Lookup("daily")
	// 11:59 EST -> settles at 12:00 EST the same day (17:00 UTC)
	assert.Equal(t, time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC), daily.Close(time.Date(2025, 1, 6, 16, 59, 0, 0, time.UTC)))
	// exactly 12:00 EST rolls to the next day
	assert.Equal(t, time.Date(2025, 1, 7, 17, 0, 0, 0, time.UTC), daily.Close(time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC)))
	// summer time: 12:00 EDT is 16:00 UTC
	assert.Equal(t, time.Date(2025, 7, 1, 16, 0, 0, 0, time.UTC), daily.Close(time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)))
}

func TestContractsTileTheTimeline(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	prices := make([]float64, 20*24*4)
	for i := range prices {
		prices[i] = 100
	}
	f := seriesEvery(start, 15*time.Minute, prices)

	for _, tf := range All {
		t.Run(string(tf), func(t *testing.T) {
			out, err := AssignContracts(f, string(tf))
			require.NoError(t, err)
			spec, _ := Lookup(string(tf))
			closes := out.Col(spec.Col(ColContractClose))
			starts := out.Col(spec.Col(ColContractStart))
			for i := 1; i < out.Len(); i++ {
				if closes[i] == closes[i-1] {
					continue
				}
				if tf == Daily {
					prevClose := time.Unix(int64(closes[i-1]), 0)
					// 2025-03-09 is the spring-forward day: the window overlaps by an hour
					if prevClose.In(eastern).Month() == time.March && prevClose.In(eastern).Day() == 8 {
						assert.Equal(t, closes[i-1]-3600, starts[i])
						continue
					}
				}
				assert.Equalf(t, closes[i-1], starts[i], "gap or overlap at row %d", i)
			}
		})
	}
}

func TestBoundaryTickOpensNextContract(t *testing.T) {
	start := time.Date(2025, 1, 6, 12, 14, 59, 0, time.UTC)
	f := seriesEvery(start, time.Second, []float64{100, 101, 102})
	out, err := ComputeContractPriceFeatures(f, "m15", "spot_price")
	require.NoError(t, err)

	close1215 := float64(time.Date(2025, 1, 6, 12, 15, 0, 0, time.UTC).Unix())
	close1230 := float64(time.Date(2025, 1, 6, 12, 30, 0, 0, time.UTC).Unix())
	assert.Equal(t, []float64{close1215, close1230, close1230}, out.Col("m15_contract_id"))

	rem := out.Col("m15_time_remaining_ratio")
	assert.InDelta(t, 1.0/900, rem[0], 1e-12)
	assert.Equal(t, 1.0, rem[1])
	assert.InDelta(t, 899.0/900, rem[2], 1e-12)
	// 12:15:00 is the first price of the 12:30 contract
	assert.Equal(t, []float64{100, 101, 101}, out.Col("m15_tf_open"))
}

func TestRemainingRatio(t *testing.T) {
	f := seriesEvery(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), 5*time.Minute, []float64{1, 2, 3, 4})
	out, err := AssignContracts(f, "m15")
	require.NoError(t, err)
	rem := out.Col("m15_time_remaining_ratio")
	assert.InDelta(t, 1, rem[0], 1e-12)
	assert.InDelta(t, 2.0/3, rem[1], 1e-12)
	assert.InDelta(t, 1.0/3, rem[2], 1e-12)
	assert.InDelta(t, 1, rem[3], 1e-12)
	assert.InDelta(t, 2.0/3, out.Col("m15_time_elapsed_ratio")[2], 1e-12)
}

func TestRunningExtremaResetPerContract(t *testing.T) {
	prices := []float64{100, 102, 101, 105, 99, 98, 103, 104}
	f := seriesEvery(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), 4*time.Minute, prices) // 4 rows per 15m (0,4,8,12)

	out, err := ComputeContractPriceFeatures(f, "m15", "spot_price")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 100, 100, 100, 99, 99, 99, 99}, out.Col("m15_tf_open"))
	assert.Equal(t, []float64{100, 102, 102, 105, 99, 99, 103, 104}, out.Col("m15_tf_high_to_now"))
	assert.Equal(t, []float64{100, 100, 100, 100, 99, 98, 98, 98}, out.Col("m15_tf_low_to_now"))
	assert.Equal(t, prices, out.Col("m15_tf_close_to_now"))

	_, err = ComputeContractPriceFeatures(f, "m15", "close")
	assert.True(t, errors.Is(err, frame.ErrMissingColumn))
}

func TestForwardReturnsIncreasingPrice(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	f := seriesEvery(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), time.Minute, prices)

	out, err := ComputeForwardReturns(f, "m15", "spot_price")
	require.NoError(t, err)
	fp := out.Col("m15_future_price")
	target := out.Col("m15_target_up")
	for i := range prices {
		if i+15 < len(prices) {
			assert.Equal(t, prices[i+15], fp[i])
			assert.Equal(t, 1.0, target[i])
			continue
		}
		assert.True(t, math.IsNaN(fp[i]))
		assert.True(t, math.IsNaN(target[i]), "row %d must be unlabeled", i)
	}
}

func TestForwardReturnsUseTimestampsNotRows(t *testing.T) {
	base := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	f := frame.New([]time.Time{base, base.Add(5 * time.Minute), base.Add(15 * time.Minute), base.Add(21 * time.Minute)})
	f.Set("spot_price", []float64{100, 101, 95, 99})

	out, err := ComputeForwardReturns(f, "m15", "spot_price")
	require.NoError(t, err)
	fp := out.Col("m15_future_price")
	assert.Equal(t, 95.0, fp[0])
	assert.True(t, math.IsNaN(fp[1]), "no tick at 10:20")
	assert.InDelta(t, -0.05, out.Col("m15_future_return")[0], 1e-12)
	assert.Equal(t, 0.0, out.Col("m15_target_up")[0])
}

func TestContractOutcomes(t *testing.T) {
	base := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	f := seriesEvery(base, 5*time.Minute, []float64{100, 101, 99, 102, 103, 101})
	// rows at 10:00 10:05 10:10 | 10:15 10:20 10:25 ; series ends before 10:30

	out, err := ComputeContractOutcomes(f, "m15", "spot_price")
	require.NoError(t, err)
	outcome := out.Col("m15_outcome_up")
	assert.Equal(t, []float64{0, 0, 0}, outcome[:3], "99 < 100")
	for _, v := range outcome[3:] {
		assert.True(t, math.IsNaN(v), "unsettled contract")
	}
}
