// Package backtest replays a historical candle series through the full
// decision pipeline with stubbed clocks, so identical inputs always
// produce identical decisions and verdicts.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/indicators"
	"crypto-decision-engine/internal/market"
	"crypto-decision-engine/internal/patterns"
	"crypto-decision-engine/internal/prediction"
	"crypto-decision-engine/internal/risk"
)

type Config struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	// WindowSize is how many candles each cycle sees.
	WindowSize int `json:"window_size"`
	// WarmupCandles are skipped before the first cycle runs.
	WarmupCandles int     `json:"warmup_candles"`
	Equity        float64 `json:"equity"`
	MoveScale     float64 `json:"move_scale"`

	Fusion decision.Config   `json:"fusion"`
	Risk   risk.Config       `json:"risk"`
	Ind    indicators.Config `json:"indicators"`
	Pat    patterns.Config   `json:"patterns"`
}

func DefaultConfig() Config {
	return Config{
		Symbol:        "BTCUSDT",
		Timeframe:     "1h",
		WindowSize:    250,
		WarmupCandles: 30,
		Equity:        10000,
		MoveScale:     0.02,
		Fusion:        decision.DefaultConfig(),
		Risk:          risk.DefaultConfig(),
		Ind:           indicators.DefaultConfig(),
		Pat:           patterns.DefaultConfig(),
	}
}

// Report summarizes one replay.
type Report struct {
	Cycles       int                       `json:"cycles"`
	NoDecision   int                       `json:"no_decision"`
	ByCategory   map[decision.Category]int `json:"by_category"`
	Actionable   int                       `json:"actionable"`
	Approved     int                       `json:"approved"`
	VetoesByRule map[risk.VetoReason]int   `json:"vetoes_by_rule"`
	Executed     int                       `json:"executed"`
	Trades       int                       `json:"trades"`
	Wins         int                       `json:"wins"`
	Losses       int                       `json:"losses"`
	RealizedPnL  float64                   `json:"realized_pnl"`
	FinalEquity  float64                   `json:"final_equity"`
	Decisions    []*decision.Decision      `json:"-"`
}

// simPosition is a hypothetical open trade tracked across candles.
type simPosition struct {
	side       string
	entry      float64
	quantity   float64
	stopLoss   float64
	takeProfit float64
}

// acceptAllExecutor simulates fills at the decision price.
type acceptAllExecutor struct{}

func (acceptAllExecutor) Submit(_ context.Context, d *decision.Decision, v risk.Verdict) (autonomy.Fill, error) {
	return autonomy.Fill{Executed: true, Price: d.Price, Quantity: v.PositionSize}, nil
}

type Backtester struct {
	cfg    Config
	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Backtester {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 250
	}
	if cfg.WarmupCandles <= 0 {
		cfg.WarmupCandles = 30
	}
	if cfg.MoveScale <= 0 {
		cfg.MoveScale = 0.02
	}
	return &Backtester{cfg: cfg, logger: logger.With().Str("component", "backtest").Logger()}
}

// Run replays the series candle by candle. The clock for every
// component is the close time of the candle under evaluation.
func (b *Backtester) Run(ctx context.Context, series market.Window) (*Report, error) {
	if err := series.Validate(b.cfg.WarmupCandles + 1); err != nil {
		return nil, fmt.Errorf("backtest series: %w", err)
	}

	var cursor time.Time
	clock := func() time.Time { return cursor }
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("bt-%06d", seq)
	}

	ind := indicators.NewEngine(b.cfg.Ind, b.logger)
	pat := patterns.NewDetector(b.cfg.Pat, b.logger)
	ens := prediction.DefaultEnsemble(b.logger)
	fusion := decision.NewEngine(b.cfg.Fusion, b.logger).WithClock(clock, nextID)

	store := risk.NewMemoryStore().WithClock(clock)
	riskMgr := risk.NewManager(b.cfg.Risk, store, b.logger)
	controller := autonomy.NewController(
		autonomy.Config{Mode: autonomy.ModeFullAuto},
		acceptAllExecutor{}, riskMgr, "backtest", b.logger,
	).WithClock(clock, nextID)

	report := &Report{
		ByCategory:   make(map[decision.Category]int),
		VetoesByRule: make(map[risk.VetoReason]int),
	}
	equity := b.cfg.Equity
	var pos *simPosition

	closeTrade := func(exit float64) error {
		pnl := (exit - pos.entry) * pos.quantity
		if pos.side == market.SideShort {
			pnl = -pnl
		}
		equity += pnl
		report.Trades++
		report.RealizedPnL += pnl
		if pnl >= 0 {
			report.Wins++
		} else {
			report.Losses++
		}
		pos = nil
		_, err := riskMgr.CommitClose(ctx, "backtest", equity, pnl)
		return err
	}

	for i := b.cfg.WarmupCandles; i < len(series); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		lo := i + 1 - b.cfg.WindowSize
		if lo < 0 {
			lo = 0
		}
		window := series[lo : i+1]
		candle := window.Last()
		cursor = candle.ClosedAt()
		report.Cycles++

		// Stop and take-profit fills against the new candle's range.
		if pos != nil {
			var exit float64
			switch {
			case pos.side == market.SideLong && candle.Low <= pos.stopLoss:
				exit = pos.stopLoss
			case pos.side == market.SideLong && candle.High >= pos.takeProfit:
				exit = pos.takeProfit
			case pos.side == market.SideShort && candle.High >= pos.stopLoss:
				exit = pos.stopLoss
			case pos.side == market.SideShort && candle.Low <= pos.takeProfit:
				exit = pos.takeProfit
			}
			if exit > 0 {
				if err := closeTrade(exit); err != nil {
					return report, err
				}
			}
		}

		signals, snapshot := ind.Analyze(window)
		signals = append(signals, pat.Detect(window)...)
		if res, err := ens.Predict(ctx, window); err == nil {
			signals = append(signals, b.ensembleSignal(res))
		}

		account := market.AccountSnapshot{Equity: equity, DayStartEquity: b.cfg.Equity}
		if pos != nil {
			mp := market.Position{
				Symbol:     b.cfg.Symbol,
				Side:       pos.side,
				EntryPrice: pos.entry,
				Quantity:   pos.quantity,
				StopLoss:   pos.stopLoss,
			}
			pos.stopLoss = riskMgr.RecomputeTrailingStop(mp, candle.Close, snapshot.ATR)
			mp.StopLoss = pos.stopLoss
			account.OpenPositions = []market.Position{mp}
		}

		d, err := fusion.Fuse(b.cfg.Symbol, b.cfg.Timeframe, candle.Close, signals)
		if errors.Is(err, decision.ErrNoDecision) {
			report.NoDecision++
			continue
		}
		if err != nil {
			return report, err
		}

		report.ByCategory[d.Category]++
		if d.Actionable {
			report.Actionable++
		}
		report.Decisions = append(report.Decisions, d)

		state, err := store.Snapshot(ctx, "backtest", equity)
		if err != nil {
			return report, err
		}
		verdict := riskMgr.Evaluate(d, account, state, snapshot.ATR)
		if verdict.Vetoed() {
			report.VetoesByRule[verdict.Reason]++
			continue
		}
		if !verdict.Approved {
			continue
		}
		report.Approved++

		if verdict.Closing && pos != nil {
			if err := closeTrade(candle.Close); err != nil {
				return report, err
			}
			continue
		}

		// One simulated position at a time: a second entry in the same
		// direction would commit a fill the replay never tracks.
		if pos != nil {
			continue
		}
		outcome, err := controller.Dispatch(ctx, d, verdict, equity)
		if err != nil {
			return report, err
		}
		if outcome.Status == autonomy.StatusExecuted {
			report.Executed++
			side := market.SideLong
			if d.IsShort() {
				side = market.SideShort
			}
			pos = &simPosition{
				side:       side,
				entry:      candle.Close,
				quantity:   verdict.PositionSize,
				stopLoss:   verdict.StopLoss,
				takeProfit: verdict.TakeProfit,
			}
		}
	}
	report.FinalEquity = equity

	b.logger.Info().
		Int("cycles", report.Cycles).
		Int("actionable", report.Actionable).
		Int("approved", report.Approved).
		Int("trades", report.Trades).
		Float64("realized_pnl", report.RealizedPnL).
		Float64("final_equity", report.FinalEquity).
		Msg("backtest complete")
	return report, nil
}

func (b *Backtester) ensembleSignal(res prediction.EnsembleResult) decision.Signal {
	dir := res.ExpectedMove / b.cfg.MoveScale
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
		Detail:     fmt.Sprintf("ensemble predicts %+.2f%%", res.ExpectedMove*100),
	}
}
