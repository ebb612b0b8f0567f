package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/market"
)

// syntheticSeries builds a trending series with a sine overlay so every
// indicator has something to chew on. Fully deterministic.
func syntheticSeries(n int) market.Window {
	w := make(market.Window, n)
	for i := range w {
		base := 100 + float64(i)*0.05 + 3*math.Sin(float64(i)/9)
		open := base
		close := base + 0.4*math.Sin(float64(i)/4)
		high := math.Max(open, close) * 1.004
		low := math.Min(open, close) * 0.996
		w[i] = market.Candle{
			OpenTime:  int64(i) * 3600000,
			CloseTime: int64(i+1)*3600000 - 1,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    500,
		}
	}
	return w
}

func TestRunDeterministic(t *testing.T) {
	series := syntheticSeries(400)
	ctx := context.Background()

	a, err := New(DefaultConfig(), zerolog.Nop()).Run(ctx, series)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := New(DefaultConfig(), zerolog.Nop()).Run(ctx, series)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if a.Cycles != b.Cycles || a.NoDecision != b.NoDecision ||
		a.Actionable != b.Actionable || a.Approved != b.Approved ||
		a.Trades != b.Trades || a.RealizedPnL != b.RealizedPnL ||
		a.FinalEquity != b.FinalEquity {
		t.Fatalf("replays diverged:\n%+v\n%+v", a, b)
	}
	if len(a.Decisions) != len(b.Decisions) {
		t.Fatalf("decision counts differ: %d vs %d", len(a.Decisions), len(b.Decisions))
	}
	for i := range a.Decisions {
		da, db := a.Decisions[i], b.Decisions[i]
		if da.ID != db.ID || da.Category != db.Category ||
			da.Score != db.Score || da.Confidence != db.Confidence ||
			!da.CreatedAt.Equal(db.CreatedAt) {
			t.Errorf("decision %d differs: %+v vs %+v", i, da, db)
		}
	}
}

func TestRunAccounting(t *testing.T) {
	series := syntheticSeries(400)
	cfg := DefaultConfig()

	report, err := New(cfg, zerolog.Nop()).Run(context.Background(), series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	warmup := cfg.WarmupCandles
	if report.Cycles != len(series)-warmup {
		t.Errorf("cycles = %d, want %d", report.Cycles, len(series)-warmup)
	}
	if report.Trades != report.Wins+report.Losses {
		t.Errorf("trades %d != wins %d + losses %d", report.Trades, report.Wins, report.Losses)
	}
	if got := cfg.Equity + report.RealizedPnL; math.Abs(report.FinalEquity-got) > 1e-9 {
		t.Errorf("final equity %v != starting %v + realized %v", report.FinalEquity, cfg.Equity, report.RealizedPnL)
	}

	var categorized int
	for _, n := range report.ByCategory {
		categorized += n
	}
	if categorized+report.NoDecision != report.Cycles {
		t.Errorf("category counts %d + no-decision %d != cycles %d", categorized, report.NoDecision, report.Cycles)
	}
}

func TestRunRejectsShortSeries(t *testing.T) {
	series := syntheticSeries(10)
	if _, err := New(DefaultConfig(), zerolog.Nop()).Run(context.Background(), series); err == nil {
		t.Fatal("expected error for a series shorter than the warmup")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	series := syntheticSeries(400)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig(), zerolog.Nop()).Run(ctx, series)
	if err == nil {
		t.Fatal("expected context error")
	}
}
