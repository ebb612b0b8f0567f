package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/audit"
	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/indicators"
	"crypto-decision-engine/internal/market"
	"crypto-decision-engine/internal/patterns"
	"crypto-decision-engine/internal/prediction"
	"crypto-decision-engine/internal/risk"
)

type fakeSupplier struct {
	window market.Window
	err    error
}

func (f *fakeSupplier) GetWindow(context.Context, string, string, int) (market.Window, error) {
	return f.window, f.err
}

func trendingWindow(n int) market.Window {
	w := make(market.Window, n)
	price := 100.0
	for i := range w {
		w[i] = market.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1)*60000 - 1,
			Open:      price,
			High:      price * 1.004,
			Low:       price * 0.997,
			Close:     price * 1.002,
			Volume:    1000,
		}
		price *= 1.002
	}
	return w
}

// signalFreeWindow holds two same-color candles with ordinary bodies so
// every indicator, pattern and predictor abstains.
func signalFreeWindow() market.Window {
	return market.Window{
		{OpenTime: 0, CloseTime: 59999, Open: 100, High: 101.2, Low: 99.9, Close: 101, Volume: 10},
		{OpenTime: 60000, CloseTime: 119999, Open: 101, High: 102.2, Low: 100.9, Close: 102, Volume: 10},
	}
}

func newTestEngine(t *testing.T, supplier market.Supplier, account market.AccountSnapshot, mode autonomy.Mode) (*Engine, *risk.Manager, *audit.MemoryRecorder) {
	t.Helper()
	logger := zerolog.Nop()

	riskMgr := risk.NewManager(risk.DefaultConfig(), risk.NewMemoryStore(), logger)
	autonomyCfg := autonomy.DefaultConfig()
	autonomyCfg.Mode = mode
	controller := autonomy.NewController(autonomyCfg, autonomy.NewPaperExecutor(logger), riskMgr, "default", logger)
	recorder := audit.NewMemoryRecorder(100)

	eng := New(
		DefaultConfig(),
		supplier,
		&market.StaticAccountSupplier{Snapshot: account},
		indicators.NewEngine(indicators.DefaultConfig(), logger),
		patterns.NewDetector(patterns.DefaultConfig(), logger),
		prediction.DefaultEnsemble(logger),
		decision.NewEngine(decision.DefaultConfig(), logger),
		riskMgr,
		controller,
		recorder,
		logger,
	)
	return eng, riskMgr, recorder
}

func TestRunCycleProducesDecision(t *testing.T) {
	supplier := &fakeSupplier{window: trendingWindow(250)}
	account := market.AccountSnapshot{Equity: 10000, DayStartEquity: 10000}
	eng, _, recorder := newTestEngine(t, supplier, account, autonomy.ModeFullAuto)

	var emitted []CycleResult
	eng.OnResult(func(r CycleResult) { emitted = append(emitted, r) })

	result, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.NoDecision || result.Decision == nil {
		t.Fatal("expected a fused decision from a full trending window")
	}
	if len(result.Decision.Reasoning) == 0 {
		t.Error("decision carries no reasoning")
	}
	if result.Outcome == "" {
		t.Error("cycle result has no outcome status")
	}
	if result.Verdict.Approved {
		if result.Verdict.StopLoss <= 0 || result.Verdict.TakeProfit <= 0 {
			t.Errorf("approved verdict missing stop/TP: %+v", result.Verdict)
		}
	}

	records, err := recorder.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 || records[0].Decision.ID != result.Decision.ID {
		t.Errorf("audit trail: got %d records, want the cycle's decision", len(records))
	}
	if len(emitted) != 1 {
		t.Errorf("OnResult fired %d times, want 1", len(emitted))
	}
}

func TestRunCycleNoSources(t *testing.T) {
	supplier := &fakeSupplier{window: signalFreeWindow()}
	account := market.AccountSnapshot{Equity: 10000, DayStartEquity: 10000}
	eng, _, recorder := newTestEngine(t, supplier, account, autonomy.ModeFullAuto)

	var emitted []CycleResult
	eng.OnResult(func(r CycleResult) { emitted = append(emitted, r) })

	result, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.NoDecision {
		t.Fatal("expected explicit no-decision when every source abstains")
	}
	if result.Decision != nil {
		t.Errorf("no-decision carries a decision: %+v", result.Decision)
	}

	records, _ := recorder.Recent(context.Background(), 10)
	if len(records) != 0 {
		t.Errorf("no-decision cycle produced %d audit records", len(records))
	}
	if len(emitted) != 1 {
		t.Errorf("no-decision must still be emitted, got %d", len(emitted))
	}
}

func TestRunCycleSupplierError(t *testing.T) {
	supplier := &fakeSupplier{err: market.ErrInsufficientData}
	account := market.AccountSnapshot{Equity: 10000}
	eng, _, _ := newTestEngine(t, supplier, account, autonomy.ModeFullAuto)

	_, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if !errors.Is(err, market.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestRunCycleEmergencyShutdownVetoes(t *testing.T) {
	supplier := &fakeSupplier{window: trendingWindow(250)}
	account := market.AccountSnapshot{Equity: 10000, DayStartEquity: 10000}
	eng, riskMgr, recorder := newTestEngine(t, supplier, account, autonomy.ModeFullAuto)

	if err := riskMgr.TriggerEmergency(context.Background(), "default", "manual stop"); err != nil {
		t.Fatalf("TriggerEmergency: %v", err)
	}

	result, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Decision == nil {
		t.Fatal("shutdown must not suppress decision generation, only execution")
	}
	if !result.Verdict.Vetoed() || result.Verdict.Reason != risk.ReasonEmergencyShutdown {
		t.Fatalf("verdict = %+v, want emergency shutdown veto", result.Verdict)
	}
	if result.Outcome != autonomy.StatusVetoed {
		t.Errorf("outcome = %s, want vetoed", result.Outcome)
	}

	records, _ := recorder.Recent(context.Background(), 10)
	if len(records) != 1 || records[0].Outcome != autonomy.StatusVetoed {
		t.Error("vetoed cycle must still be audited")
	}
}

func TestRunCycleSignalOnlyNeverExecutes(t *testing.T) {
	supplier := &fakeSupplier{window: trendingWindow(250)}
	account := market.AccountSnapshot{Equity: 10000, DayStartEquity: 10000}
	eng, riskMgr, _ := newTestEngine(t, supplier, account, autonomy.ModeSignalOnly)

	result, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Outcome == autonomy.StatusExecuted || result.Outcome == autonomy.StatusPendingApproval {
		t.Fatalf("signal-only outcome = %s", result.Outcome)
	}

	st, err := riskMgr.Store().Snapshot(context.Background(), "default", account.Equity)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if st.OpenTradeCount != 0 {
		t.Errorf("signal-only committed %d trades", st.OpenTradeCount)
	}
}

func TestRunCycleRecomputesTrailingStop(t *testing.T) {
	w := trendingWindow(250)
	last := w.Last().Close
	account := market.AccountSnapshot{
		Equity:         10000,
		DayStartEquity: 10000,
		OpenPositions: []market.Position{{
			Symbol:     "BTCUSDT",
			Side:       market.SideLong,
			EntryPrice: last * 0.95,
			Quantity:   0.1,
			StopLoss:   last * 0.90,
		}},
	}
	eng, _, _ := newTestEngine(t, &fakeSupplier{window: w}, account, autonomy.ModeSignalOnly)

	result, err := eng.RunCycle(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.TrailingStop <= account.OpenPositions[0].StopLoss {
		t.Errorf("trailing stop %v did not ratchet above %v", result.TrailingStop, account.OpenPositions[0].StopLoss)
	}
	if result.TrailingStop >= last {
		t.Errorf("trailing stop %v at or above last close %v", result.TrailingStop, last)
	}
}
