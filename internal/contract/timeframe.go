// Package contract maps a price series onto the fixed-duration binary
// contracts of each timeframe and derives per-tick contract state and labels.
//
// A timestamp t belongs to the contract whose interval [open, close) contains
// it: close is the first boundary strictly after t and open = close - duration.
// A tick exactly on a boundary therefore opens the next contract.
package contract

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"btc-updown-study/internal/frame"
)

// ErrUnknownTimeframe is returned for a label other than m15, h1 or daily.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

type Timeframe string

const (
	M15   Timeframe = "m15"
	H1    Timeframe = "h1"
	Daily Timeframe = "daily"
)

// All lists the supported timeframes, shortest first.
var All = []Timeframe{M15, H1, Daily}

// dailyCloseHour is the US-Eastern wall-clock hour daily contracts settle at.
const dailyCloseHour = 12

var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("contract: load %s: %v", name, err))
	}
	return loc
}

// Spec describes one timeframe.
type Spec struct {
	Label    Timeframe
	Duration time.Duration
}

var specs = map[Timeframe]Spec{
	M15:   {Label: M15, Duration: 15 * time.Minute},
	H1:    {Label: H1, Duration: time.Hour},
	Daily: {Label: Daily, Duration: 24 * time.Hour},
}

// Lookup returns the spec of a timeframe label.
func Lookup(label string) (Spec, error) {
	s, ok := specs[Timeframe(label)]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownTimeframe, label)
	}
	return s, nil
}

// Close is the settlement instant of the contract containing ts.
func (s Spec) Close(ts time.Time) time.Time {
	if s.Label == Daily {
		return dailyClose(ts)
	}
	return ts.UTC().Truncate(s.Duration).Add(s.Duration)
}

// Open is Close(ts) - Duration.
func (s Spec) Open(ts time.Time) time.Time {
	return s.Close(ts).Add(-s.Duration)
}

// Col names a timeframe column: Col("tf", "open") -> "m15_tf_open".
func (s Spec) Col(parts ...any) string {
	return frame.Join(append([]any{string(s.Label)}, parts...)...)
}

// dailyClose is the next 12:00 US-Eastern strictly after ts. Around DST
// changes the 24h contract window then overlaps or leaves a gap of one hour
// with its neighbour.
func dailyClose(ts time.Time) time.Time {
	local := ts.In(eastern)
	y, m, d := local.Date()
	c := time.Date(y, m, d, dailyCloseHour, 0, 0, 0, eastern)
	if !c.After(ts) {
		c = time.Date(y, m, d+1, dailyCloseHour, 0, 0, 0, eastern)
	}
	return c.UTC()
}
