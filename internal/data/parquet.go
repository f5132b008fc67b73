package data

import (
	"fmt"
	"sort"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/service"
)

// LoadBarsParquet reads 1-minute bars written by WriteBarsParquet, sorted by
// open time with the last duplicate kept.
func LoadBarsParquet(path string) ([]model.PriceBar, error) {
	bars, err := parquet.ReadFile[model.PriceBar](path)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", path, err)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	out := bars[:0]
	for i, b := range bars {
		if i+1 < len(bars) && bars[i+1].Timestamp == b.Timestamp {
			continue
		}
		out = append(out, b)
	}
	service.Logger.Info("parquet bars loaded", zap.String("path", path), zap.Int("bars", len(out)))
	return out, nil
}

// WriteBarsParquet stores bars as a parquet file.
func WriteBarsParquet(path string, bars []model.PriceBar) error {
	if err := parquet.WriteFile(path, bars); err != nil {
		return fmt.Errorf("write bars %s: %w", path, err)
	}
	return nil
}

// LoadOHLC loads the spot candle series in the given format ("csv" or "parquet").
func LoadOHLC(path, format string) (*frame.Frame, error) {
	switch format {
	case "", "csv":
		return LoadCSV(path, DefaultTimestampCol)
	case "parquet":
		bars, err := LoadBarsParquet(path)
		if err != nil {
			return nil, err
		}
		return model.BarsToFrame(bars), nil
	}
	return nil, fmt.Errorf("unsupported ohlc format %q", format)
}
