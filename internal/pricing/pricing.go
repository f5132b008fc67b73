// Package pricing converts prediction-market quotes to implied probabilities
// and probabilities back to quotes.
package pricing

import (
	"fmt"
	"math"

	"btc-updown-study/internal/contract"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
)

// Epsilon bounds probabilities and prices away from 0 and 1.
const Epsilon = 1e-4

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Quote is the two-sided quote of one contract.
type Quote struct {
	AskUp, AskDown       float64
	SpreadUp, SpreadDown float64
}

// Implied is the result of the forward conversion.
type Implied struct {
	ProbUp, ProbDown float64
	BidUp, BidDown   float64
	MidUp, MidDown   float64
}

// MarketProbabilities derives bids (ask - spread, clamped to [0, 1]), mids and
// the normalised mid probabilities. A zero mid total yields probabilities of 0.
func MarketProbabilities(q Quote) Implied {
	bidUp := clamp(q.AskUp-q.SpreadUp, 0, 1)
	bidDown := clamp(q.AskDown-q.SpreadDown, 0, 1)
	midUp := (q.AskUp + bidUp) / 2
	midDown := (q.AskDown + bidDown) / 2
	total := midUp + midDown
	if total == 0 {
		total = 1
	}
	return Implied{
		ProbUp:   midUp / total,
		ProbDown: midDown / total,
		BidUp:    bidUp,
		BidDown:  bidDown,
		MidUp:    midUp,
		MidDown:  midDown,
	}
}

// Prices is the result of the inverse conversion.
type Prices struct {
	ProbUp, ProbDown float64
	AskUp, BidUp     float64
	AskDown, BidDown float64
}

// ProbabilitiesToPrices quotes a probability: ask = prob + spread/2 and
// bid = ask - spread, everything clamped to [Epsilon, 1-Epsilon]. Clamping
// makes this only an approximate inverse of MarketProbabilities.
func ProbabilitiesToPrices(probUp, spreadUp, spreadDown float64) Prices {
	up := clamp(probUp, Epsilon, 1-Epsilon)
	down := clamp(1-up, Epsilon, 1-Epsilon)
	askUp := clamp(up+spreadUp/2, Epsilon, 1-Epsilon)
	askDown := clamp(down+spreadDown/2, Epsilon, 1-Epsilon)
	return Prices{
		ProbUp:   up,
		ProbDown: down,
		AskUp:    askUp,
		BidUp:    clamp(askUp-spreadUp, Epsilon, 1-Epsilon),
		AskDown:  askDown,
		BidDown:  clamp(askDown-spreadDown, Epsilon, 1-Epsilon),
	}
}

// Output column suffixes of ComputeMarketProbabilities.
const (
	ColProbUp     = "prob_up_market"
	ColProbDown   = "prob_down_market"
	ColPriceUpAsk = "price_up_ask"
	ColPriceDnAsk = "price_down_ask"
	ColPriceUpBid = "price_up_bid"
	ColPriceDnBid = "price_down_bid"
	ColPriceUpMid = "price_up_mid"
	ColPriceDnMid = "price_down_mid"
	ColSpreadUp   = "spread_up"
	ColSpreadDown = "spread_down"
)

// ComputeMarketProbabilities converts the raw quote columns of a timeframe
// into probability, ask, bid, mid and spread columns. Frame-level
// probabilities are additionally clamped to [Epsilon, 1-Epsilon]; rows with a
// missing quote stay NaN.
func ComputeMarketProbabilities(f *frame.Frame, timeframe string) (*frame.Frame, error) {
	spec, err := contract.Lookup(timeframe)
	if err != nil {
		return nil, err
	}
	au, ad, su, sd := model.QuoteColumns(timeframe)
	if err := f.Require(au, ad, su, sd); err != nil {
		return nil, fmt.Errorf("market probabilities %s: %w", timeframe, err)
	}
	askUp, askDown, spreadUp, spreadDown := f.Col(au), f.Col(ad), f.Col(su), f.Col(sd)

	n := f.Len()
	probUp, probDown := make([]float64, n), make([]float64, n)
	bidUp, bidDown := make([]float64, n), make([]float64, n)
	midUp, midDown := make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		q := Quote{AskUp: askUp[i], AskDown: askDown[i], SpreadUp: spreadUp[i], SpreadDown: spreadDown[i]}
		imp := MarketProbabilities(q)
		probUp[i] = clamp(imp.ProbUp, Epsilon, 1-Epsilon)
		probDown[i] = clamp(imp.ProbDown, Epsilon, 1-Epsilon)
		bidUp[i], bidDown[i] = imp.BidUp, imp.BidDown
		midUp[i], midDown[i] = imp.MidUp, imp.MidDown
	}

	out := f.Clone()
	out.Set(spec.Col(ColProbUp), probUp)
	out.Set(spec.Col(ColProbDown), probDown)
	out.Set(spec.Col(ColPriceUpAsk), askUp)
	out.Set(spec.Col(ColPriceDnAsk), askDown)
	out.Set(spec.Col(ColPriceUpBid), bidUp)
	out.Set(spec.Col(ColPriceDnBid), bidDown)
	out.Set(spec.Col(ColPriceUpMid), midUp)
	out.Set(spec.Col(ColPriceDnMid), midDown)
	out.Set(spec.Col(ColSpreadUp), spreadUp)
	out.Set(spec.Col(ColSpreadDown), spreadDown)
	return out, nil
}
