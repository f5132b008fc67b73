package model

import (
	"fmt"
	"time"
)

// Side is the contract share a trade buys.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

func (s Side) String() string {
	return string(s)
}

// TradeRecord is one backtest fill. Both capital policies see the same signal;
// their P&L and running capital are recorded side by side.
type TradeRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	Side              Side      `json:"side"`
	Pred              float64   `json:"pred"`
	MarketProb        float64   `json:"market_prob"`
	Edge              float64   `json:"edge"`
	PriceUp           float64   `json:"price_up"`
	PriceDown         float64   `json:"price_down"`
	PayoffPerShare    float64   `json:"payoff_per_share"`
	PnLFractional     float64   `json:"pnl_fractional"`
	PnLShare          float64   `json:"pnl_share"`
	CapitalFractional float64   `json:"capital_fractional"`
	CapitalShare      float64   `json:"capital_share"`
	OutcomeUp         float64   `json:"outcome_up"`
}

func (t TradeRecord) String() string {
	return fmt.Sprintf("TRADE [%s] %s | pred %.3f mkt %.3f edge %.3f | payoff %.4f | frac %.2f share %.2f",
		t.Side, t.Timestamp.Format(time.RFC3339), t.Pred, t.MarketProb, t.Edge, t.PayoffPerShare,
		t.CapitalFractional, t.CapitalShare)
}

// Capital policy names used in summaries.
const (
	PolicyFractional = "fractional"
	PolicyShareFixed = "share_fixed"
)

// PolicySummary aggregates one capital policy over a run. WinRate is NaN
// when no trade was taken.
type PolicySummary struct {
	Strategy    string  `json:"strategy" parquet:"strategy"`
	Trades      int64   `json:"trades" parquet:"trades"`
	WinRate     float64 `json:"winrate" parquet:"winrate"`
	TotalPnL    float64 `json:"total_pnl" parquet:"total_pnl"`
	FinalEquity float64 `json:"final_equity" parquet:"final_equity"`
	MaxDrawdown float64 `json:"max_drawdown" parquet:"max_drawdown"`
}
