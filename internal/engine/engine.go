// Package engine orchestrates one decision cycle per symbol: candle
// window in, fused decision through risk and autonomy out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"crypto-decision-engine/internal/audit"
	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/indicators"
	"crypto-decision-engine/internal/market"
	"crypto-decision-engine/internal/metrics"
	"crypto-decision-engine/internal/patterns"
	"crypto-decision-engine/internal/prediction"
	"crypto-decision-engine/internal/risk"
)

type Config struct {
	Symbols   []string      `json:"symbols"`
	Timeframe string        `json:"timeframe"`
	Interval  time.Duration `json:"interval"`
	AccountID string        `json:"account_id"`
	// MinWindow is the minimum candle count requested from the feed.
	// Indicators needing longer windows abstain individually.
	MinWindow int `json:"min_window"`
	// MoveScale maps the ensemble's expected fractional move onto a
	// [-1,1] direction: a move of MoveScale or more saturates it.
	MoveScale float64 `json:"move_scale"`
}

func DefaultConfig() Config {
	return Config{
		Symbols:   []string{"BTCUSDT"},
		Timeframe: "1h",
		Interval:  time.Minute,
		AccountID: "default",
		MinWindow: 30,
		MoveScale: 0.02,
	}
}

// CycleResult is the auditable outcome of one symbol's cycle. When no
// source produced anything to fuse, NoDecision is set and the remaining
// fields are empty; this is an explicit outcome, not an error.
type CycleResult struct {
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	NoDecision bool               `json:"no_decision,omitempty"`
	Decision   *decision.Decision `json:"decision,omitempty"`
	Verdict    risk.Verdict       `json:"verdict,omitempty"`
	Outcome    autonomy.Status    `json:"outcome,omitempty"`
	// TrailingStop is the recomputed stop for an already-open position
	// on this symbol, for the execution collaborator to apply.
	TrailingStop float64 `json:"trailing_stop,omitempty"`
}

type Engine struct {
	cfg        Config
	supplier   market.Supplier
	accounts   market.AccountSupplier
	indicators *indicators.Engine
	patterns   *patterns.Detector
	ensemble   *prediction.Ensemble
	fusion     *decision.Engine
	riskMgr    *risk.Manager
	controller *autonomy.Controller
	recorder   audit.Recorder
	logger     zerolog.Logger
	notify     func(CycleResult)
}

func New(
	cfg Config,
	supplier market.Supplier,
	accounts market.AccountSupplier,
	ind *indicators.Engine,
	pat *patterns.Detector,
	ens *prediction.Ensemble,
	fusion *decision.Engine,
	riskMgr *risk.Manager,
	controller *autonomy.Controller,
	recorder audit.Recorder,
	logger zerolog.Logger,
) *Engine {
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = 30
	}
	if cfg.MoveScale <= 0 {
		cfg.MoveScale = 0.02
	}
	return &Engine{
		cfg:        cfg,
		supplier:   supplier,
		accounts:   accounts,
		indicators: ind,
		patterns:   pat,
		ensemble:   ens,
		fusion:     fusion,
		riskMgr:    riskMgr,
		controller: controller,
		recorder:   recorder,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// OnResult registers a callback invoked after every completed cycle.
// Used by the websocket stream.
func (e *Engine) OnResult(fn func(CycleResult)) { e.notify = fn }

// Run executes decision cycles for every configured symbol on the
// configured interval until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info().
		Strs("symbols", e.cfg.Symbols).
		Str("timeframe", e.cfg.Timeframe).
		Dur("interval", e.cfg.Interval).
		Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.runAll(ctx)
		}
	}
}

// runAll fans out one cycle per symbol. A failed cycle is logged and
// never stops the other symbols.
func (e *Engine) runAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range e.cfg.Symbols {
		symbol := symbol
		g.Go(func() error {
			if _, err := e.RunCycle(gctx, symbol); err != nil {
				e.logger.Error().Err(err).Str("symbol", symbol).Msg("cycle failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RunCycle executes one full decision cycle for a symbol.
func (e *Engine) RunCycle(ctx context.Context, symbol string) (CycleResult, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
	}()

	result := CycleResult{Symbol: symbol, Timeframe: e.cfg.Timeframe}

	window, err := e.supplier.GetWindow(ctx, symbol, e.cfg.Timeframe, e.cfg.MinWindow)
	if err != nil {
		return result, err
	}

	signals, snapshot, err := e.collect(ctx, window)
	if err != nil {
		return result, err
	}

	d, err := e.fusion.Fuse(symbol, e.cfg.Timeframe, window.Last().Close, signals)
	if errors.Is(err, decision.ErrNoDecision) {
		// Nothing to fuse: every source abstained. Emit the explicit
		// no-decision outcome instead of failing the cycle.
		result.NoDecision = true
		e.logger.Warn().Str("symbol", symbol).Msg("no sources available, no decision")
		e.emit(result)
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.Decision = d
	metrics.DecisionsTotal.WithLabelValues(string(d.Category)).Inc()

	account, err := e.accounts.GetAccount(ctx)
	if err != nil {
		return result, err
	}
	state, err := e.riskMgr.Store().Snapshot(ctx, e.cfg.AccountID, account.Equity)
	if err != nil {
		return result, err
	}

	if pos, ok := account.PositionFor(symbol); ok {
		result.TrailingStop = e.riskMgr.RecomputeTrailingStop(pos, window.Last().Close, snapshot.ATR)
	}

	verdict := e.riskMgr.Evaluate(d, account, state, snapshot.ATR)
	result.Verdict = verdict
	if verdict.Vetoed() {
		metrics.VetoesTotal.WithLabelValues(string(verdict.Reason)).Inc()
	}

	outcome, err := e.controller.Dispatch(ctx, d, verdict, account.Equity)
	result.Outcome = outcome.Status
	if err != nil {
		e.logger.Error().Err(err).Str("decision_id", d.ID).Msg("dispatch failed")
	}

	if recErr := e.recorder.Record(ctx, audit.Record{
		Decision:  d,
		Verdict:   verdict,
		Outcome:   outcome.Status,
		CreatedAt: d.CreatedAt,
	}); recErr != nil {
		e.logger.Error().Err(recErr).Str("decision_id", d.ID).Msg("audit record failed")
	}

	metrics.OpenTrades.Set(float64(state.OpenTradeCount))
	metrics.DailyPnL.Set(state.DailyRealizedPnL)

	e.emit(result)
	return result, nil
}

// collect runs the three sub-engines concurrently and merges their
// signal sets. A sub-engine that abstains contributes nothing.
func (e *Engine) collect(ctx context.Context, window market.Window) ([]decision.Signal, indicators.Snapshot, error) {
	var (
		indSignals []decision.Signal
		snapshot   indicators.Snapshot
		patSignals []decision.Signal
		ensSignal  *decision.Signal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		indSignals, snapshot = e.indicators.Analyze(window)
		return nil
	})
	g.Go(func() error {
		patSignals = e.patterns.Detect(window)
		return nil
	})
	g.Go(func() error {
		res, err := e.ensemble.Predict(gctx, window)
		if errors.Is(err, prediction.ErrNoPrediction) {
			return nil // ensemble abstains, fusion quorum shrinks
		}
		if err != nil {
			return err
		}
		s := e.ensembleSignal(res)
		ensSignal = &s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, indicators.Snapshot{}, err
	}

	signals := make([]decision.Signal, 0, len(indSignals)+len(patSignals)+1)
	signals = append(signals, indSignals...)
	signals = append(signals, patSignals...)
	if ensSignal != nil {
		signals = append(signals, *ensSignal)
	}
	return signals, snapshot, nil
}

// ensembleSignal converts the combined forecast into a signal: an
// expected move of MoveScale or beyond saturates direction at +/-1.
func (e *Engine) ensembleSignal(res prediction.EnsembleResult) decision.Signal {
	dir := res.ExpectedMove / e.cfg.MoveScale
	if dir > 1 {
		dir = 1
	} else if dir < -1 {
		dir = -1
	}
	return decision.Signal{
		Source:     decision.SourceEnsemble,
		Name:       "prediction",
		Direction:  dir,
		Confidence: res.Confidence,
		Detail: fmt.Sprintf("ensemble predicts %+.2f%% (%s)",
			res.ExpectedMove*100, strings.Join(res.ContributingModels, ",")),
	}
}

func (e *Engine) emit(result CycleResult) {
	if e.notify != nil {
		e.notify(result)
	}
}
