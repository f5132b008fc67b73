// Package fomo simulates path-dependent prediction-market odds from
// model-implied probabilities: odds drift towards the recent price
// displacement late in a contract and stick to their previous value.
package fomo

import (
	"fmt"

	"btc-updown-study/internal/contract"
)

// Scenario parameterises one simulated market. It holds no state.
type Scenario struct {
	Name           string
	FomoIndex      float64 // weight of the base probability in the output
	Aggressiveness float64 // amplitude of the displacement bias
	Stickiness     float64 // weight of the previous output
	Noise          float64 // std of gaussian noise; 0 disables it
	Alpha          float64 // weight of the distance from open
	Beta           float64 // weight of the contract range
	Gamma          float64 // exponent of the end-of-contract boost
	KATR           float64 // ATR multiple used to normalise distances
}

// NewScenario fills the shape parameters with their defaults
// (alpha 4, beta 2, gamma 1, k_atr 1, no noise).
func NewScenario(name string, fomoIndex, aggressiveness, stickiness float64) Scenario {
	return Scenario{
		Name:           name,
		FomoIndex:      fomoIndex,
		Aggressiveness: aggressiveness,
		Stickiness:     stickiness,
		Alpha:          4,
		Beta:           2,
		Gamma:          1,
		KATR:           1,
	}
}

// Column is the output column of the scenario.
func (s Scenario) Column() string {
	return "odds_" + s.Name
}

// DefaultScenarios returns the preset scenarios of a timeframe.
func DefaultScenarios(timeframe string) ([]Scenario, error) {
	switch contract.Timeframe(timeframe) {
	case contract.M15:
		return []Scenario{
			NewScenario("m15_moderate", 0.5, 0.15, 0.6),
			NewScenario("m15_aggressive", 0.3, 0.25, 0.4),
			NewScenario("m15_conservative", 0.7, 0.1, 0.75),
		}, nil
	case contract.H1:
		return []Scenario{
			NewScenario("h1_moderate", 0.55, 0.12, 0.65),
			NewScenario("h1_trend", 0.4, 0.2, 0.5),
		}, nil
	case contract.Daily:
		return []Scenario{
			NewScenario("daily_slow", 0.65, 0.1, 0.8),
			NewScenario("daily_impulse", 0.45, 0.18, 0.6),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", contract.ErrUnknownTimeframe, timeframe)
}
