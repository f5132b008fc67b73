// Package store persists fitted models, their metric tables and trade
// ledgers under one artifact directory.
//
// A saved model set with id "outcome" is laid out as
//
//	outcome_meta.json      model paths and kinds, feature and target columns
//	outcome_<name>.json    one file per fitted model
//	outcome_metrics.parquet
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"btc-updown-study/internal/ml"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/service"
)

// Default ids of the two model families.
const (
	OutcomeID = "outcome"
	OddsID    = "odds"
)

// Meta is the JSON index of a saved model set.
type Meta struct {
	ModelPaths     map[string]string `json:"model_paths"`
	ModelKinds     map[string]string `json:"model_kinds"`
	FeatureColumns []string          `json:"feature_columns"`
	TargetColumns  []string          `json:"target_columns"`
	MetricsPath    string            `json:"metrics_path"`
	SavedAt        time.Time         `json:"saved_at"`
}

type Store struct {
	dir string
}

// New opens (creating if needed) an artifact directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id, suffix string) string {
	return filepath.Join(s.dir, id+"_"+suffix)
}

// Save writes every model, the metric table and the meta index.
func (s *Store) Save(id string, a *ml.Artifacts) (*Meta, error) {
	meta := &Meta{
		ModelPaths:     make(map[string]string, len(a.Models)),
		ModelKinds:     make(map[string]string, len(a.Models)),
		FeatureColumns: a.FeatureColumns,
		TargetColumns:  a.TargetColumns,
		MetricsPath:    s.path(id, "metrics.parquet"),
		SavedAt:        time.Now().UTC(),
	}
	for _, name := range a.Names() {
		m := a.Models[name]
		kind, err := ml.KindOf(m)
		if err != nil {
			return nil, fmt.Errorf("save %s/%s: %w", id, name, err)
		}
		p := s.path(id, name+".json")
		if err := writeJSON(p, m); err != nil {
			return nil, fmt.Errorf("save %s/%s: %w", id, name, err)
		}
		meta.ModelPaths[name] = p
		meta.ModelKinds[name] = kind
	}
	if err := parquet.WriteFile(meta.MetricsPath, a.Metrics); err != nil {
		return nil, fmt.Errorf("save %s metrics: %w", id, err)
	}
	if err := writeJSON(s.path(id, "meta.json"), meta); err != nil {
		return nil, fmt.Errorf("save %s meta: %w", id, err)
	}
	service.Logger.Info("artifacts saved",
		zap.String("id", id),
		zap.Int("models", len(a.Models)),
		zap.String("dir", s.dir))
	return meta, nil
}

// Load reads a model set back through its meta index.
func (s *Store) Load(id string) (*ml.Artifacts, error) {
	var meta Meta
	if err := readJSON(s.path(id, "meta.json"), &meta); err != nil {
		return nil, fmt.Errorf("load %s meta: %w", id, err)
	}
	a := &ml.Artifacts{
		Models:         make(map[string]ml.Model, len(meta.ModelPaths)),
		FeatureColumns: meta.FeatureColumns,
		TargetColumns:  meta.TargetColumns,
	}
	for name, p := range meta.ModelPaths {
		m, err := ml.NewModel(meta.ModelKinds[name])
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", id, name, err)
		}
		if err := readJSON(p, m); err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", id, name, err)
		}
		a.Models[name] = m
	}
	metrics, err := parquet.ReadFile[ml.MetricRow](meta.MetricsPath)
	if err != nil {
		return nil, fmt.Errorf("load %s metrics: %w", id, err)
	}
	a.Metrics = metrics
	return a, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// tradeRow is the parquet layout of a TradeRecord.
type tradeRow struct {
	Timestamp         int64   `parquet:"t"` // unix milliseconds
	Side              string  `parquet:"side"`
	Pred              float64 `parquet:"pred"`
	MarketProb        float64 `parquet:"market_prob"`
	Edge              float64 `parquet:"edge"`
	PriceUp           float64 `parquet:"price_up"`
	PriceDown         float64 `parquet:"price_down"`
	PayoffPerShare    float64 `parquet:"payoff_per_share"`
	PnLFractional     float64 `parquet:"pnl_fractional"`
	PnLShare          float64 `parquet:"pnl_share"`
	CapitalFractional float64 `parquet:"capital_fractional"`
	CapitalShare      float64 `parquet:"capital_share"`
	OutcomeUp         float64 `parquet:"outcome_up"`
}

// SaveTrades writes a trade ledger to <id>_trades.parquet and returns its path.
func (s *Store) SaveTrades(id string, trades []model.TradeRecord) (string, error) {
	rows := make([]tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = tradeRow{
			Timestamp:         t.Timestamp.UnixMilli(),
			Side:              t.Side.String(),
			Pred:              t.Pred,
			MarketProb:        t.MarketProb,
			Edge:              t.Edge,
			PriceUp:           t.PriceUp,
			PriceDown:         t.PriceDown,
			PayoffPerShare:    t.PayoffPerShare,
			PnLFractional:     t.PnLFractional,
			PnLShare:          t.PnLShare,
			CapitalFractional: t.CapitalFractional,
			CapitalShare:      t.CapitalShare,
			OutcomeUp:         t.OutcomeUp,
		}
	}
	p := s.path(id, "trades.parquet")
	if err := parquet.WriteFile(p, rows); err != nil {
		return "", fmt.Errorf("save %s trades: %w", id, err)
	}
	return p, nil
}

// LoadTrades reads a ledger written by SaveTrades.
func (s *Store) LoadTrades(id string) ([]model.TradeRecord, error) {
	rows, err := parquet.ReadFile[tradeRow](s.path(id, "trades.parquet"))
	if err != nil {
		return nil, fmt.Errorf("load %s trades: %w", id, err)
	}
	out := make([]model.TradeRecord, len(rows))
	for i, r := range rows {
		out[i] = model.TradeRecord{
			Timestamp:         time.UnixMilli(r.Timestamp).UTC(),
			Side:              model.Side(r.Side),
			Pred:              r.Pred,
			MarketProb:        r.MarketProb,
			Edge:              r.Edge,
			PriceUp:           r.PriceUp,
			PriceDown:         r.PriceDown,
			PayoffPerShare:    r.PayoffPerShare,
			PnLFractional:     r.PnLFractional,
			PnLShare:          r.PnLShare,
			CapitalFractional: r.CapitalFractional,
			CapitalShare:      r.CapitalShare,
			OutcomeUp:         r.OutcomeUp,
		}
	}
	return out, nil
}

// SaveSummaries writes per-policy run summaries to <id>_summary.parquet.
func (s *Store) SaveSummaries(id string, summaries []model.PolicySummary) (string, error) {
	p := s.path(id, "summary.parquet")
	if err := parquet.WriteFile(p, summaries); err != nil {
		return "", fmt.Errorf("save %s summary: %w", id, err)
	}
	return p, nil
}
