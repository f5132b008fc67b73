package backtest

import (
	"math"
	"time"

	"go.uber.org/zap"

	"btc-updown-study/internal/model"
	"btc-updown-study/internal/strategy"
)

// minEntryPrice keeps the fractional stake finite for near-zero prices.
const minEntryPrice = 1e-6

// account is the running state of one capital policy.
type account struct {
	capital   float64
	maxEquity float64 // highest capital seen, for drawdown
	maxDD     float64 // largest fractional drop from maxEquity
	curve     []float64
}

func newAccount(initial float64, n int) *account {
	return &account{capital: initial, maxEquity: initial, curve: make([]float64, 0, n)}
}

// mark appends the current capital to the equity curve and updates drawdown.
func (a *account) mark() {
	a.curve = append(a.curve, a.capital)
	if a.capital > a.maxEquity {
		a.maxEquity = a.capital
	}
	if a.maxEquity > 0 {
		if dd := (a.maxEquity - a.capital) / a.maxEquity; dd > a.maxDD {
			a.maxDD = dd
		}
	}
}

// Tick is one row of backtest input.
type Tick struct {
	Timestamp  time.Time
	Pred       float64
	MarketProb float64
	PriceUp    float64
	PriceDown  float64
	OutcomeUp  float64
}

// Simulator replays ticks against two capital policies: a fractional stake
// of current capital and a fixed number of shares set once from the initial
// capital. State is private to one run.
type Simulator struct {
	params    Params
	shareSize float64
	strategy  *strategy.EdgeStrategy
	logger    *zap.Logger

	fractional *account
	share      *account

	tradeHistory []model.TradeRecord
}

// NewSimulator creates a simulator for n ticks.
func NewSimulator(params Params, n int, logger *zap.Logger) *Simulator {
	return &Simulator{
		params:     params,
		shareSize:  params.InitialCapital * params.ShareFraction,
		strategy:   strategy.NewEdgeStrategy(params.Threshold),
		logger:     logger,
		fractional: newAccount(params.InitialCapital, n),
		share:      newAccount(params.InitialCapital, n),
	}
}

// Step processes one tick. Both equity curves grow by one entry whether or
// not a trade is taken.
func (s *Simulator) Step(t Tick) {
	defer func() {
		s.fractional.mark()
		s.share.mark()
	}()

	sig := s.strategy.Generate(t.Timestamp, t.Pred, t.MarketProb, t.PriceUp, t.PriceDown)
	// an unknown outcome cannot be settled
	if sig.Action != strategy.ActionOpen || math.IsNaN(t.OutcomeUp) {
		return
	}
	side, edge, entry := sig.Side, sig.Edge, sig.Price

	payoff := payoffPerShare(side, entry, t.OutcomeUp)

	stake := s.fractional.capital * s.params.CapitalRiskFraction
	shares := stake / math.Max(entry, minEntryPrice)
	pnlFractional := shares * payoff
	s.fractional.capital += pnlFractional

	pnlShare := s.shareSize * payoff
	s.share.capital += pnlShare

	rec := model.TradeRecord{
		Timestamp:         t.Timestamp,
		Side:              side,
		Pred:              t.Pred,
		MarketProb:        t.MarketProb,
		Edge:              edge,
		PriceUp:           t.PriceUp,
		PriceDown:         t.PriceDown,
		PayoffPerShare:    payoff,
		PnLFractional:     pnlFractional,
		PnLShare:          pnlShare,
		CapitalFractional: s.fractional.capital,
		CapitalShare:      s.share.capital,
		OutcomeUp:         t.OutcomeUp,
	}
	s.tradeHistory = append(s.tradeHistory, rec)
	s.logger.Debug("trade", zap.Stringer("record", rec))
}

// payoffPerShare is 1 - price when the bet side wins, -price otherwise.
func payoffPerShare(side model.Side, price, outcomeUp float64) float64 {
	won := outcomeUp == 1
	if side == model.SideDown {
		won = outcomeUp == 0
	}
	if won {
		return 1 - price
	}
	return -price
}

// Trades returns the ledger so far.
func (s *Simulator) Trades() []model.TradeRecord {
	out := make([]model.TradeRecord, len(s.tradeHistory))
	copy(out, s.tradeHistory)
	return out
}

// Summary reports both policies.
func (s *Simulator) Summary() []model.PolicySummary {
	return []model.PolicySummary{
		s.summarize(model.PolicyFractional, s.fractional, func(r model.TradeRecord) float64 { return r.PnLFractional }),
		s.summarize(model.PolicyShareFixed, s.share, func(r model.TradeRecord) float64 { return r.PnLShare }),
	}
}

func (s *Simulator) summarize(name string, a *account, pnl func(model.TradeRecord) float64) model.PolicySummary {
	sum := model.PolicySummary{
		Strategy:    name,
		Trades:      int64(len(s.tradeHistory)),
		WinRate:     math.NaN(),
		FinalEquity: a.capital,
		MaxDrawdown: a.maxDD,
	}
	if len(s.tradeHistory) == 0 {
		return sum
	}
	wins := 0
	for _, r := range s.tradeHistory {
		p := pnl(r)
		sum.TotalPnL += p
		if p > 0 {
			wins++
		}
	}
	sum.WinRate = float64(wins) / float64(len(s.tradeHistory))
	return sum
}
