package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"btc-updown-study/internal/backtest"
	"btc-updown-study/internal/data"
	"btc-updown-study/internal/features"
	"btc-updown-study/internal/fomo"
	"btc-updown-study/internal/frame"
	"btc-updown-study/internal/ml"
	"btc-updown-study/internal/model"
	"btc-updown-study/internal/pipeline"
	"btc-updown-study/internal/pricing"
	"btc-updown-study/internal/service"
	"btc-updown-study/internal/store"
)

func main() {
	configPath := pflag.String("config", "config", "directory holding config.yaml")
	mode := pflag.String("mode", "train", "train | infer")
	recent := pflag.Int("recent", 900, "quote rows used by infer mode")
	pflag.Parse()

	service.InitLogger("info")
	cfg, err := service.LoadConfig(*configPath)
	if err != nil {
		service.Logger.Fatal("load config", zap.Error(err))
	}
	service.InitLogger(cfg.Log.Level)
	defer service.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Store.Dir)
	if err != nil {
		service.Logger.Fatal("open store", zap.Error(err))
	}

	switch *mode {
	case "train":
		err = train(ctx, cfg, st)
	case "infer":
		err = infer(cfg, st, *recent)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		service.Logger.Fatal("run failed", zap.String("mode", *mode), zap.Error(err))
	}
}

func featureConfig(cfg *service.Config) features.Config {
	fc := features.DefaultConfig(cfg.Features.Prefix)
	fc.SessionStartHour = cfg.Features.SessionStartHour
	fc.SessionEndHour = cfg.Features.SessionEndHour
	return fc
}

// loadEnriched reads both raw series and returns the quote rows carrying the
// minute features. limit > 0 keeps only the most recent quote rows.
func loadEnriched(cfg *service.Config, limit int) (*frame.Frame, error) {
	quotes, err := data.LoadCSV(cfg.Data.QuotesPath, data.DefaultTimestampCol)
	if err != nil {
		return nil, err
	}
	ohlc, err := data.LoadOHLC(cfg.Data.OHLCPath, cfg.Data.Format)
	if err != nil {
		return nil, err
	}
	ohlcFeatures, err := pipeline.PrepareOHLCFeatures(ohlc, featureConfig(cfg))
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		quotes = pipeline.SelectRecentRows(quotes, limit, 1, 0)
	}
	return pipeline.EnrichQuotesWithFeatures(quotes, ohlcFeatures, pipeline.EnrichOptionsFromConfig(cfg.Features))
}

func train(ctx context.Context, cfg *service.Config, st *store.Store) error {
	enriched, err := loadEnriched(cfg, 0)
	if err != nil {
		return err
	}
	for _, tf := range cfg.Timeframes {
		if err := trainTimeframe(ctx, cfg, st, enriched, tf); err != nil {
			return fmt.Errorf("timeframe %s: %w", tf, err)
		}
	}
	return nil
}

func trainTimeframe(ctx context.Context, cfg *service.Config, st *store.Store, enriched *frame.Frame, tf string) error {
	logger := service.Logger.With(zap.String("timeframe", tf))

	table, err := pipeline.PrepareTimeframeTables(enriched, tf, model.ColSpot, cfg.Features.Prefix)
	if err != nil {
		return err
	}
	spreads, err := pipeline.EstimateAverageSpreads(table, []string{tf})
	if err != nil {
		return err
	}
	logger.Info("average spreads", zap.Float64("up", spreads[tf].Up), zap.Float64("down", spreads[tf].Down))

	// synthetic odds paths, kept alongside the market probability
	fomoIn, err := pipeline.MakeFomoInput(table, tf)
	if err != nil {
		return err
	}
	scenarios, err := fomo.DefaultScenarios(tf)
	if err != nil {
		return err
	}
	odds, err := fomo.SimulateFomoOdds(ctx, fomoIn, scenarios,
		fomo.WithSeed(cfg.Fomo.Seed), fomo.WithWorkers(cfg.Fomo.Workers))
	if err != nil {
		return err
	}

	cls, err := pipeline.BuildClassificationDataset(table, tf, cfg.Features.Prefix)
	if err != nil {
		return err
	}
	outcome, err := ml.TrainOutcomeClassifiers(ctx, cls.Frame, cls.Features,
		map[string]string{tf: cls.Targets[0]}, ml.DefaultClassifierConfig().ApplyConfig(cfg.Model))
	if err != nil {
		return err
	}
	if _, err := st.Save(store.OutcomeID+"_"+tf, outcome); err != nil {
		return err
	}

	reg, err := pipeline.BuildRegressionDataset(table, tf)
	if err != nil {
		return err
	}
	if reg.Frame.Len() >= 2 {
		oddsModels, err := ml.TrainOddsRegressors(ctx, reg.Frame, reg.Features, reg.Targets, ml.DefaultRegressorConfig())
		if err != nil {
			return err
		}
		if _, err := st.Save(store.OddsID+"_"+tf, oddsModels); err != nil {
			return err
		}
	} else {
		logger.Warn("regression dataset empty, odds models skipped")
	}

	predicted, err := ml.PredictClassifications(table, outcome)
	if err != nil {
		return err
	}
	params := []backtest.Params{
		backtest.DefaultParams(tf, "pred_proba_"+tf).ApplyConfig(cfg.Backtest),
	}
	for _, sc := range scenarios {
		predicted.Set(sc.Column(), odds.Col(sc.Column()))
		p := params[0]
		p.MarketProbCol = sc.Column()
		params = append(params, p)
	}
	results, err := backtest.RunBacktests(ctx, params, predicted)
	if err != nil {
		return err
	}
	for _, res := range results {
		id := tf + "_" + res.Params.MarketProbCol
		if _, err := st.SaveTrades(id, res.Trades); err != nil {
			return err
		}
		if _, err := st.SaveSummaries(id, res.Summary); err != nil {
			return err
		}
		logger.Info("run stored", zap.String("market", res.Params.MarketProbCol), zap.Int("trades", len(res.Trades)))
	}
	return nil
}

// infer scores the most recent quotes with the stored outcome models and
// logs the edge over the market probability.
func infer(cfg *service.Config, st *store.Store, recent int) error {
	enriched, err := loadEnriched(cfg, recent)
	if err != nil {
		return err
	}
	for _, tf := range cfg.Timeframes {
		artifacts, err := st.Load(store.OutcomeID + "_" + tf)
		if err != nil {
			return err
		}
		table, err := pipeline.PrepareTimeframeTables(enriched, tf, model.ColSpot, cfg.Features.Prefix)
		if err != nil {
			return err
		}
		scored, err := ml.PredictClassifications(table, artifacts)
		if err != nil {
			return err
		}
		pred := scored.Col("pred_proba_" + tf)
		market := scored.Col(tf + "_" + pricing.ColProbUp)
		ts := scored.Timestamps()
		for i := max(len(ts)-10, 0); i < len(ts); i++ {
			service.Logger.Info("prediction",
				zap.String("timeframe", tf),
				zap.Time("timestamp", ts[i]),
				zap.Float64("predicted_prob_up", pred[i]),
				zap.Float64("edge", pred[i]-market[i]))
		}
	}
	return nil
}
