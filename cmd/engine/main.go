package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"crypto-decision-engine/config"
	"crypto-decision-engine/internal/api"
	"crypto-decision-engine/internal/audit"
	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/backtest"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/engine"
	"crypto-decision-engine/internal/indicators"
	"crypto-decision-engine/internal/logging"
	"crypto-decision-engine/internal/market"
	"crypto-decision-engine/internal/patterns"
	"crypto-decision-engine/internal/prediction"
	"crypto-decision-engine/internal/risk"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to config file (default config.json)")
		candlesPath  = flag.String("candles", "", "CSV candle file for replay/backtest")
		runBacktest  = flag.Bool("backtest", false, "run a backtest over the candle file and exit")
		prettyOutput = flag.Bool("pretty", false, "human-readable log output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, *prettyOutput)

	if *candlesPath == "" {
		logger.Fatal().Msg("a candle source is required: pass -candles with a CSV file")
	}
	series, err := market.LoadCSV(*candlesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load candles")
	}

	if *runBacktest {
		btCfg := backtest.DefaultConfig()
		btCfg.Symbol = cfg.Engine.Symbols[0]
		btCfg.Timeframe = cfg.Engine.Timeframe
		btCfg.Fusion = cfg.Decision
		btCfg.Risk = cfg.Risk
		btCfg.Ind = cfg.Indicators
		btCfg.Pat = cfg.Patterns

		report, err := backtest.New(btCfg, logger).Run(context.Background(), series)
		if err != nil {
			logger.Fatal().Err(err).Msg("backtest failed")
		}
		logger.Info().
			Int("cycles", report.Cycles).
			Int("trades", report.Trades).
			Int("wins", report.Wins).
			Int("losses", report.Losses).
			Float64("realized_pnl", report.RealizedPnL).
			Float64("final_equity", report.FinalEquity).
			Msg("backtest report")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Risk state: Redis when configured, in-memory otherwise.
	var store risk.StateStore
	if cfg.RedisURL != "" {
		redisStore, err := risk.NewRedisStore(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create redis risk store")
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		store = risk.NewMemoryStore()
	}

	// Audit sink: Postgres when configured, bounded memory ring otherwise.
	var recorder audit.Recorder
	if cfg.DatabaseURL != "" {
		pgRecorder, err := audit.NewPostgresRecorder(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create audit store")
		}
		defer pgRecorder.Close()
		recorder = pgRecorder
	} else {
		recorder = audit.NewMemoryRecorder(0)
	}

	riskMgr := risk.NewManager(cfg.Risk, store, logger)
	controller := autonomy.NewController(
		cfg.Autonomy,
		autonomy.NewPaperExecutor(logger),
		riskMgr,
		cfg.Engine.AccountID,
		logger,
	)

	supplier := market.NewReplaySupplier(series, cfg.Engine.MinWindow)
	accounts := &market.StaticAccountSupplier{Snapshot: market.AccountSnapshot{
		Equity:         10000,
		DayStartEquity: 10000,
	}}

	eng := engine.New(
		cfg.Engine,
		supplier,
		accounts,
		indicators.NewEngine(cfg.Indicators, logger),
		patterns.NewDetector(cfg.Patterns, logger),
		prediction.DefaultEnsemble(logger),
		decision.NewEngine(cfg.Decision, logger),
		riskMgr,
		controller,
		recorder,
		logger,
	)

	server := api.NewServer(cfg.API, recorder, controller, riskMgr, cfg.Engine.AccountID, logger)
	eng.OnResult(func(res engine.CycleResult) {
		server.Hub().Broadcast(res)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error {
		controller.Run(gctx, 10*time.Second)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("engine exited with error")
	}
	logger.Info().Msg("shutdown complete")
}
