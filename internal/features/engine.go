// Package features builds the technical feature matrix of a 1-minute OHLC(V) series.
//
// All windows are trailing. Higher-resolution context (resampled MACD and
// liquidity levels) becomes visible on the native index only once the
// higher-resolution bar has closed.
package features

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/service"
	"btc-updown-study/pkg/ta"
)

// Config names the input columns and the prefix of generated columns.
// OpenCol and VolumeCol are optional: without an open the previous close is
// used, without a volume the volume block is skipped.
type Config struct {
	PriceCol  string
	OpenCol   string
	HighCol   string
	LowCol    string
	VolumeCol string
	Prefix    string

	// Session is [SessionStartHour, SessionEndHour) in UTC hours.
	SessionStartHour int
	SessionEndHour   int
}

// DefaultConfig is the standard OHLCV layout with the given prefix.
func DefaultConfig(prefix string) Config {
	return Config{
		PriceCol:         "close",
		OpenCol:          "open",
		HighCol:          "high",
		LowCol:           "low",
		VolumeCol:        "volume",
		Prefix:           prefix,
		SessionStartHour: 8,
		SessionEndHour:   20,
	}
}

func (c Config) name(parts ...any) string {
	return frame.Join(append([]any{c.Prefix}, parts...)...)
}

// ATRCol is the column holding the 14-bar ATR of the minute series.
func (c Config) ATRCol() string {
	return c.name("atr", atrWindow)
}

// Owns reports whether col was produced under this configuration's prefix.
// With an empty prefix no column can be attributed.
func (c Config) Owns(col string) bool {
	if c.Prefix == "" {
		return false
	}
	return strings.HasPrefix(col, frame.Join(c.Prefix)+"_")
}

// BuildFeatureMatrix runs every feature group over f and returns a new frame.
// Infinite values are replaced by NaN. With dropna, rows with any NaN are removed.
func BuildFeatureMatrix(f *frame.Frame, cfg Config, dropna bool) (*frame.Frame, error) {
	if err := f.Require(cfg.PriceCol, cfg.HighCol, cfg.LowCol); err != nil {
		return nil, fmt.Errorf("build feature matrix: %w", err)
	}
	in := f.SortByTime()
	before := len(in.Names())

	out := AddPriceFeatures(in, cfg)
	out = AddTimeFeatures(out)
	out = AddRegimeFeatures(out, cfg)
	out = AddMACDFromResample(out, cfg, DefaultMACDRules)
	out = AddLiquidityFeatures(out, cfg, DefaultLiquidityRules)
	out = replaceInf(out)

	rows := out.Len()
	if dropna {
		out = out.DropNA()
	}
	service.Logger.Debug("feature matrix built",
		zap.String("prefix", cfg.Prefix),
		zap.Int("columns_added", len(out.Names())-before),
		zap.Int("rows_in", rows),
		zap.Int("rows_out", out.Len()))
	return out, nil
}

// replaceInf copies any column that holds ±Inf with those cells set to NaN.
func replaceInf(f *frame.Frame) *frame.Frame {
	out := f.Clone()
	for _, n := range f.Names() {
		col := f.Col(n)
		for _, v := range col {
			if math.IsInf(v, 0) {
				cp := make([]float64, len(col))
				copy(cp, col)
				out.Set(n, ta.CleanInf(cp))
				break
			}
		}
	}
	return out
}
