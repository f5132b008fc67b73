package strategy

import (
	"fmt"
	"time"

	"btc-updown-study/internal/model"
)

// ActionType is what a signal asks the simulator to do.
type ActionType string

const (
	ActionNone ActionType = "NONE" // stand aside
	ActionOpen ActionType = "OPEN" // buy shares of Side
)

// Signal is the decision for one observation.
type Signal struct {
	Timestamp  time.Time
	Action     ActionType
	Side       model.Side
	Pred       float64 // model probability of up
	MarketProb float64 // market probability of up
	Edge       float64 // advantage on the chosen side
	Price      float64 // ask of the chosen side
	Reason     string
}

func (s Signal) String() string {
	return fmt.Sprintf("SIGNAL [%s | %s] @ %.4f | pred %.3f mkt %.3f edge %.3f | %s",
		s.Action, s.Side, s.Price, s.Pred, s.MarketProb, s.Edge, s.Reason)
}
