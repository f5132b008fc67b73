// Package strategy turns model probabilities into trade decisions on binary
// up/down contracts.
package strategy

import (
	"math"
	"time"

	"btc-updown-study/internal/model"
)

// EdgeStrategy buys the up share when the model is more bullish than the
// market by more than Threshold and the down share when it is more bearish
// by more than Threshold.
type EdgeStrategy struct {
	Threshold float64
}

func NewEdgeStrategy(threshold float64) *EdgeStrategy {
	return &EdgeStrategy{Threshold: threshold}
}

// Generate decides for one observation. NaN inputs never open a position.
func (e *EdgeStrategy) Generate(ts time.Time, pred, market, priceUp, priceDown float64) Signal {
	sig := Signal{Timestamp: ts, Action: ActionNone, Pred: pred, MarketProb: market}

	edgeUp := pred - market
	edgeDown := (1 - pred) - (1 - market)
	switch {
	case edgeUp > e.Threshold:
		sig.Side, sig.Edge, sig.Price = model.SideUp, edgeUp, priceUp
	case edgeDown > e.Threshold:
		sig.Side, sig.Edge, sig.Price = model.SideDown, edgeDown, priceDown
	default:
		sig.Reason = "edge below threshold"
		return sig
	}
	if math.IsNaN(sig.Price) {
		sig.Reason = "no quote"
		return sig
	}
	sig.Action = ActionOpen
	sig.Reason = "edge above threshold"
	return sig
}
