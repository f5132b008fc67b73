// Package pipeline chains the feature, alignment, contract and pricing stages
// into the per-timeframe tables and model datasets.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/align"
	"btc-updown-study/internal/contract"
	"btc-updown-study/internal/features"
	"btc-updown-study/internal/fomo"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/pricing"
	"btc-updown-study/internal/service"
	"btc-updown-study/pkg/ta"
)

// ColATR is the 15-bar ATR carried from the minute series to the quotes.
const ColATR = "atr_15m"

// ColProbBase suffixes the copy of the market probability that odds
// scenarios are measured against.
const ColProbBase = "prob_base"

const atrWindow = 15

// PrepareOHLCFeatures builds the minute feature matrix plus atr_15m and drops
// every row that still has a missing value.
func PrepareOHLCFeatures(ohlc *frame.Frame, cfg features.Config) (*frame.Frame, error) {
	in := ohlc.SortByTime()
	feats, err := features.BuildFeatureMatrix(in, cfg, false)
	if err != nil {
		return nil, err
	}
	feats.Set(ColATR, ta.ATR(in.Col(cfg.HighCol), in.Col(cfg.LowCol), in.Col(cfg.PriceCol), atrWindow))
	out := feats.DropNA()
	service.Logger.Info("ohlc features prepared",
		zap.Int("rows_in", in.Len()),
		zap.Int("rows_out", out.Len()),
		zap.Int("columns", len(out.Names())))
	return out, nil
}

// EnrichOptions controls EnrichQuotesWithFeatures.
type EnrichOptions struct {
	Stride       int
	Offset       int
	Tolerance    time.Duration
	SessionStart int
	SessionEnd   int
}

func DefaultEnrichOptions() EnrichOptions {
	return EnrichOptions{Stride: 1, Tolerance: align.DefaultTolerance, SessionStart: 8, SessionEnd: 20}
}

// EnrichOptionsFromConfig maps the feature section of the run configuration.
func EnrichOptionsFromConfig(cfg service.FeatureConfig) EnrichOptions {
	o := DefaultEnrichOptions()
	o.Stride = cfg.Stride
	o.Offset = cfg.Offset
	if cfg.AlignTolerance > 0 {
		o.Tolerance = cfg.AlignTolerance
	}
	o.SessionStart = cfg.SessionStartHour
	o.SessionEnd = cfg.SessionEndHour
	return o
}

// strided keeps every stride-th row starting at offset mod stride.
func strided(f *frame.Frame, stride, offset int) *frame.Frame {
	stride = max(stride, 1)
	offset = offset % stride
	if stride == 1 && offset == 0 {
		return f
	}
	var idx []int
	for i := offset; i < f.Len(); i += stride {
		idx = append(idx, i)
	}
	return f.Take(idx)
}

// EnrichQuotesWithFeatures subsamples the 1-second quotes, joins the minute
// features onto them, adds time and spot microstructure features and drops
// rows without a spot price.
func EnrichQuotesWithFeatures(quotes, ohlcFeatures *frame.Frame, opts EnrichOptions) (*frame.Frame, error) {
	if err := quotes.Require(model.ColSpot); err != nil {
		return nil, fmt.Errorf("enrich quotes: %w", err)
	}
	base := strided(quotes.SortByTime(), opts.Stride, opts.Offset)
	merged := align.AlignToOHLC(base, ohlcFeatures, opts.Tolerance)
	if !merged.Has(ColATR) && merged.Has(ColATR+align.CollisionSuffix) {
		merged.Set(ColATR, merged.Col(ColATR+align.CollisionSuffix))
	}
	merged = features.AddTimeFeatures(merged)
	merged, err := align.AddMicrostructureFeatures(merged, model.ColSpot, opts.SessionStart, opts.SessionEnd)
	if err != nil {
		return nil, fmt.Errorf("enrich quotes: %w", err)
	}
	for _, n := range merged.Names() {
		col := merged.Col(n)
		if hasInf(col) {
			merged.Set(n, ta.CleanInf(append([]float64(nil), col...)))
		}
	}
	if merged.Has(ColATR) {
		merged.Set(ColATR, ta.FFill(merged.Col(ColATR)))
	}
	out := merged.DropNA(model.ColSpot)
	service.Logger.Info("quotes enriched",
		zap.Int("quotes", quotes.Len()),
		zap.Int("rows_out", out.Len()),
		zap.Int("columns", len(out.Names())))
	return out, nil
}

func hasInf(x []float64) bool {
	for _, v := range x {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// PrepareTimeframeTables adds the market pricing, contract state, settled
// outcome and forward-return columns of one timeframe, guarantees an atr_15m
// column and records the unperturbed market probability as <tf>_prob_base.
// featurePrefix is the prefix the minute features were built with.
func PrepareTimeframeTables(dataset *frame.Frame, timeframe, priceCol, featurePrefix string) (*frame.Frame, error) {
	spec, err := contract.Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	df, err := pricing.ComputeMarketProbabilities(dataset, timeframe)
	if err != nil {
		return nil, err
	}
	if df, err = contract.ComputeContractOutcomes(df, timeframe, priceCol); err != nil {
		return nil, err
	}
	if df, err = contract.ComputeForwardReturns(df, timeframe, priceCol); err != nil {
		return nil, err
	}

	minuteATR := features.Config{Prefix: featurePrefix}.ATRCol()
	atr := df.Col(ColATR)
	switch {
	case atr != nil:
	case df.Has(ColATR + align.CollisionSuffix):
		atr = df.Col(ColATR + align.CollisionSuffix)
	case df.Has(minuteATR):
		atr = df.Col(minuteATR)
	default:
		high, low := df.Col(model.ColHigh), df.Col(model.ColLow)
		if high == nil {
			high = df.Col(priceCol)
		}
		if low == nil {
			low = df.Col(priceCol)
		}
		atr = ta.ATR(high, low, df.Col(priceCol), atrWindow)
	}
	df.Set(ColATR, ta.FFill(atr))
	df.Set(spec.Col(ColProbBase), df.Col(spec.Col(pricing.ColProbUp)))

	service.Logger.Info("timeframe table prepared",
		zap.String("timeframe", timeframe),
		zap.Int("rows", df.Len()),
		zap.Int("columns", len(df.Names())))
	return df, nil
}

// MakeFomoInput maps a prepared timeframe table onto the odds simulator's
// input layout.
func MakeFomoInput(table *frame.Frame, timeframe string) (*frame.Frame, error) {
	return fomo.MakeFomoInput(table, timeframe)
}

// Dataset is a complete-case model table with its feature and target columns.
type Dataset struct {
	Frame    *frame.Frame
	Features []string
	Targets  []string
}

// BuildRegressionDataset targets the mid prices and the market probability of
// the timeframe and uses every other column except forward-looking ones and
// the copy of the probability kept as <tf>_prob_base.
func BuildRegressionDataset(table *frame.Frame, timeframe string) (*Dataset, error) {
	spec, err := contract.Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	targets := []string{
		spec.Col(pricing.ColPriceUpMid),
		spec.Col(pricing.ColPriceDnMid),
		spec.Col(pricing.ColProbUp),
	}
	exclude := map[string]bool{
		spec.Col(contract.ColFuturePrice):  true,
		spec.Col(contract.ColFutureReturn): true,
		spec.Col(contract.ColTargetUp):     true,
		spec.Col(contract.ColContractID):   true,
		spec.Col(contract.ColOutcomeUp):    true,
		spec.Col(ColProbBase):              true,
	}
	for _, t := range targets {
		exclude[t] = true
	}
	var feats []string
	for _, n := range table.Names() {
		if !exclude[n] {
			feats = append(feats, n)
		}
	}
	return complete(table, feats, targets, "regression", timeframe)
}

var classificationPrefixes = []string{
	"hour", "minute", "second", "day_of_week", "is_weekend", "spot_", ColATR,
}

// ErrNoFeaturePrefix is returned when minute features cannot be told apart
// from other columns.
var ErrNoFeaturePrefix = errors.New("empty feature prefix")

// BuildClassificationDataset targets <tf>_target_up from the minute features
// under featurePrefix and the time, spot and ATR features, excluding anything
// derived from the timeframe's own prices or probabilities.
func BuildClassificationDataset(table *frame.Frame, timeframe, featurePrefix string) (*Dataset, error) {
	spec, err := contract.Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	if featurePrefix == "" {
		return nil, fmt.Errorf("build classification dataset %s: %w", timeframe, ErrNoFeaturePrefix)
	}
	minute := features.Config{Prefix: featurePrefix}
	target := spec.Col(contract.ColTargetUp)
	disallow := map[string]bool{
		target:                             true,
		spec.Col(contract.ColFuturePrice):  true,
		spec.Col(contract.ColFutureReturn): true,
		spec.Col(contract.ColContractID):   true,
	}
	var feats []string
	for _, n := range table.Names() {
		if disallow[n] || strings.HasPrefix(n, spec.Col("price")) || strings.HasPrefix(n, spec.Col("prob")) {
			continue
		}
		if minute.Owns(n) {
			feats = append(feats, n)
			continue
		}
		for _, p := range classificationPrefixes {
			if strings.HasPrefix(n, p) {
				feats = append(feats, n)
				break
			}
		}
	}
	return complete(table, feats, []string{target}, "classification", timeframe)
}

func complete(table *frame.Frame, feats, targets []string, kind, timeframe string) (*Dataset, error) {
	cols := append(append([]string(nil), feats...), targets...)
	sel, err := table.Select(cols...)
	if err != nil {
		return nil, fmt.Errorf("build %s dataset %s: %w", kind, timeframe, err)
	}
	out := sel.DropNA()
	service.Logger.Info("dataset built",
		zap.String("kind", kind),
		zap.String("timeframe", timeframe),
		zap.Int("features", len(feats)),
		zap.Int("rows_in", table.Len()),
		zap.Int("rows_out", out.Len()))
	return &Dataset{Frame: out, Features: feats, Targets: targets}, nil
}

// PrepareMinuteHistory turns the minute feature matrix into a contract table
// keyed on the close, for replaying history without quotes.
func PrepareMinuteHistory(ohlcFeatures *frame.Frame, timeframe string) (*frame.Frame, error) {
	if err := ohlcFeatures.Require(model.ColClose); err != nil {
		return nil, fmt.Errorf("minute history: %w", err)
	}
	df := ohlcFeatures.Clone()
	df.Set(model.ColSpot, df.Col(model.ColClose))
	df, err := contract.ComputeContractPriceFeatures(df, timeframe, model.ColSpot)
	if err != nil {
		return nil, err
	}
	if df, err = contract.ComputeForwardReturns(df, timeframe, model.ColSpot); err != nil {
		return nil, err
	}
	return df.DropNA(), nil
}

// SelectRecentRows keeps the last n*stride rows and then every stride-th of
// them starting at offset mod stride. n <= 0 keeps the whole frame.
func SelectRecentRows(f *frame.Frame, n, stride, offset int) *frame.Frame {
	stride = max(stride, 1)
	sorted := f.SortByTime()
	start := 0
	if n > 0 {
		start = max(sorted.Len()-n*stride, 0)
	}
	idx := make([]int, 0, sorted.Len()-start)
	for i := start + offset%stride; i < sorted.Len(); i += stride {
		idx = append(idx, i)
	}
	return sorted.Take(idx)
}

// Spreads are the mean quoted spreads of one timeframe.
type Spreads struct {
	Up   float64
	Down float64
}

// EstimateAverageSpreads averages <tf>_spread_up and <tf>_spread_down over the
// non-missing rows of each timeframe.
func EstimateAverageSpreads(dataset *frame.Frame, timeframes []string) (map[string]Spreads, error) {
	out := make(map[string]Spreads, len(timeframes))
	for _, tf := range timeframes {
		spec, err := contract.Lookup(tf)
		if err != nil {
			return nil, err
		}
		up, err := dataset.Column(spec.Col(pricing.ColSpreadUp))
		if err != nil {
			return nil, fmt.Errorf("average spreads: %w", err)
		}
		down, err := dataset.Column(spec.Col(pricing.ColSpreadDown))
		if err != nil {
			return nil, fmt.Errorf("average spreads: %w", err)
		}
		out[tf] = Spreads{Up: nanMean(up), Down: nanMean(down)}
	}
	return out, nil
}

func nanMean(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
