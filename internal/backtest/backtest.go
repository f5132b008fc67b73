// Package backtest replays model predictions against market probabilities
// and contract outcomes and produces trade ledgers and equity curves under a
// fractional-stake and a fixed-share capital policy.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"btc-updown-study/internal/contract"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/pricing"
	"btc-updown-study/internal/service"
)

// ErrInvalidParams is returned for unusable capital or threshold settings.
var ErrInvalidParams = errors.New("invalid backtest params")

// Params configures one run.
type Params struct {
	Timeframe     string
	PredictionCol string
	MarketProbCol string
	OutcomeCol    string
	PriceUpCol    string
	PriceDownCol  string

	Threshold           float64
	InitialCapital      float64
	CapitalRiskFraction float64
	ShareFraction       float64
}

// DefaultParams trades predictionCol against a timeframe's market
// probability, ask prices and settled outcome with the standard sizing.
func DefaultParams(timeframe, predictionCol string) Params {
	spec := contract.Spec{Label: contract.Timeframe(timeframe)}
	return Params{
		Timeframe:           timeframe,
		PredictionCol:       predictionCol,
		MarketProbCol:       spec.Col(pricing.ColProbUp),
		OutcomeCol:          spec.Col(contract.ColOutcomeUp),
		PriceUpCol:          spec.Col(pricing.ColPriceUpAsk),
		PriceDownCol:        spec.Col(pricing.ColPriceDnAsk),
		Threshold:           0.05,
		InitialCapital:      1000,
		CapitalRiskFraction: 0.02,
		ShareFraction:       0.04,
	}
}

// ApplyConfig overrides the sizing fields from configuration.
func (p Params) ApplyConfig(cfg service.BacktestConfig) Params {
	p.Threshold = cfg.Threshold
	p.InitialCapital = cfg.InitialCapital
	p.CapitalRiskFraction = cfg.CapitalRiskFraction
	p.ShareFraction = cfg.ShareFraction
	return p
}

func (p Params) validate() error {
	switch {
	case math.IsNaN(p.Threshold):
		return fmt.Errorf("%w: threshold is NaN", ErrInvalidParams)
	case !(p.InitialCapital > 0):
		return fmt.Errorf("%w: initial capital %v", ErrInvalidParams, p.InitialCapital)
	case p.CapitalRiskFraction < 0 || p.CapitalRiskFraction > 1:
		return fmt.Errorf("%w: capital risk fraction %v", ErrInvalidParams, p.CapitalRiskFraction)
	case p.ShareFraction < 0:
		return fmt.Errorf("%w: share fraction %v", ErrInvalidParams, p.ShareFraction)
	}
	return nil
}

// Results of one run. Equity curves have one entry per input row.
type Results struct {
	Params           Params
	Trades           []model.TradeRecord
	EquityFractional []float64
	EquityShare      []float64
	Summary          []model.PolicySummary
}

// RunBacktest replays dataset in timestamp order. Capital state is local to
// the call.
func RunBacktest(params Params, dataset *frame.Frame) (*Results, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := dataset.Require(params.PredictionCol, params.MarketProbCol, params.OutcomeCol,
		params.PriceUpCol, params.PriceDownCol); err != nil {
		return nil, fmt.Errorf("run backtest: %w", err)
	}
	rows := dataset.SortByTime()
	pred := rows.Col(params.PredictionCol)
	market := rows.Col(params.MarketProbCol)
	outcome := rows.Col(params.OutcomeCol)
	up := rows.Col(params.PriceUpCol)
	down := rows.Col(params.PriceDownCol)

	logger := service.Logger.With(zap.String("timeframe", params.Timeframe), zap.String("prediction", params.PredictionCol))
	sim := NewSimulator(params, rows.Len(), logger)
	for i, ts := range rows.Timestamps() {
		sim.Step(Tick{
			Timestamp:  ts,
			Pred:       pred[i],
			MarketProb: market[i],
			PriceUp:    up[i],
			PriceDown:  down[i],
			OutcomeUp:  outcome[i],
		})
	}

	res := &Results{
		Params:           params,
		Trades:           sim.Trades(),
		EquityFractional: sim.fractional.curve,
		EquityShare:      sim.share.curve,
		Summary:          sim.Summary(),
	}
	for _, s := range res.Summary {
		logger.Info("backtest summary",
			zap.String("strategy", s.Strategy),
			zap.Int64("trades", s.Trades),
			zap.Float64("winrate", s.WinRate),
			zap.Float64("total_pnl", s.TotalPnL),
			zap.Float64("final_equity", s.FinalEquity),
			zap.Float64("max_drawdown", s.MaxDrawdown))
	}
	return res, nil
}

// RunBacktests runs independent parameter sets concurrently over the same
// read-only dataset. Results keep the order of params.
func RunBacktests(ctx context.Context, params []Params, dataset *frame.Frame) ([]*Results, error) {
	// sort once so concurrent runs only read
	sorted := dataset.SortByTime()
	out := make([]*Results, len(params))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range params {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := RunBacktest(p, sorted)
			if err != nil {
				return fmt.Errorf("params %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
