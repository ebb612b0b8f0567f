package indicators

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/market"
)

func testEngine() *Engine {
	return NewEngine(DefaultConfig(), zerolog.Nop())
}

func window(closes []float64) market.Window {
	w := make(market.Window, len(closes))
	for i, c := range closes {
		w[i] = market.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1)*60000 - 1,
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    100,
		}
	}
	return w
}

func trending(n int, start, step float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price += step
	}
	return out
}

func names(w market.Window, e *Engine) map[string]bool {
	signals, _ := e.Analyze(w)
	out := make(map[string]bool, len(signals))
	for _, s := range signals {
		out[s.Name] = true
	}
	return out
}

func TestShortWindowAbstainsLongIndicators(t *testing.T) {
	e := testEngine()

	// 30 candles: the 200-period SMA trend and 100-period EMA trend must
	// abstain while RSI, Bollinger and stochastic still contribute.
	got := names(window(trending(30, 100, 0.5)), e)
	if got["sma_trend"] {
		t.Error("sma_trend should abstain on a 30-candle window")
	}
	if got["ema_trend"] {
		t.Error("ema_trend should abstain on a 30-candle window")
	}
	if !got["rsi"] {
		t.Error("rsi should contribute on a 30-candle window")
	}
	if !got["stochastic"] {
		t.Error("stochastic should contribute on a 30-candle window")
	}
}

func TestFullWindowEmitsTrendSignals(t *testing.T) {
	e := testEngine()
	got := names(window(trending(250, 100, 0.2)), e)
	for _, want := range []string{"sma_trend", "ema_trend", "rsi", "macd", "stochastic"} {
		if !got[want] {
			t.Errorf("missing %s on a full window", want)
		}
	}
}

func TestUptrendLeansBullish(t *testing.T) {
	e := testEngine()
	signals, _ := e.Analyze(window(trending(250, 100, 0.2)))
	for _, s := range signals {
		if s.Name == "sma_trend" || s.Name == "ema_trend" {
			if s.Direction <= 0 {
				t.Errorf("%s direction = %v in a steady uptrend, want > 0", s.Name, s.Direction)
			}
		}
	}
}

func TestRSINormalization(t *testing.T) {
	e := testEngine()

	// Relentless gains push RSI to 100: direction (50-RSI)/50 -> -1.
	signals, snap := e.Analyze(window(trending(30, 100, 1)))
	if snap.RSI < 99 {
		t.Fatalf("RSI on pure gains = %v, want ~100", snap.RSI)
	}
	for _, s := range signals {
		if s.Name == "rsi" {
			if math.Abs(s.Direction-(-1)) > 1e-9 {
				t.Errorf("rsi direction = %v, want -1 at RSI~100", s.Direction)
			}
			if s.Detail == "" || s.Detail[:4] != "RSI=" {
				t.Errorf("rsi detail = %q", s.Detail)
			}
		}
	}
}

func TestAllDirectionsInRange(t *testing.T) {
	e := testEngine()
	cases := [][]float64{
		trending(250, 100, 0.5),
		trending(250, 500, -1),
		trending(30, 100, 0),
	}
	for _, closes := range cases {
		signals, _ := e.Analyze(window(closes))
		for _, s := range signals {
			if s.Direction < -1 || s.Direction > 1 {
				t.Errorf("%s direction %v outside [-1,1]", s.Name, s.Direction)
			}
			if s.Confidence < 0 || s.Confidence > 1 {
				t.Errorf("%s confidence %v outside [0,1]", s.Name, s.Confidence)
			}
		}
	}
}

func TestSnapshotCarriesATR(t *testing.T) {
	e := testEngine()
	_, snap := e.Analyze(window(trending(30, 100, 0.5)))
	if !snap.HasATR || snap.ATR <= 0 {
		t.Errorf("snapshot ATR = %v (has %v), want positive", snap.ATR, snap.HasATR)
	}

	// Too short for ATR(14): snapshot must mark it absent, not zero-fill.
	_, snap = e.Analyze(window(trending(10, 100, 0.5)))
	if snap.HasATR {
		t.Error("ATR should abstain on a 10-candle window")
	}
}

func TestEmptyWindow(t *testing.T) {
	e := testEngine()
	signals, snap := e.Analyze(market.Window{})
	if len(signals) != 0 {
		t.Errorf("empty window produced %d signals", len(signals))
	}
	if snap.HasATR || snap.HasADX {
		t.Error("empty window should have no snapshot values")
	}
}

func findSignal(signals []decision.Signal, name string) (decision.Signal, bool) {
	for _, s := range signals {
		if s.Name == name {
			return s, true
		}
	}
	return decision.Signal{}, false
}

func TestVolumeSpikeConfirmsDirection(t *testing.T) {
	e := testEngine()

	// Bullish marubozu-style candle on 2x the average volume.
	w := window(trending(30, 100, 0.1))
	last := len(w) - 1
	w[last].Open = 114
	w[last].Close = 115
	w[last].High = 115.05
	w[last].Low = 113.9
	w[last].Volume = 200

	signals, snap := e.Analyze(w)
	if snap.VolRatio < 1.9 || snap.VolRatio > 2.1 {
		t.Fatalf("volume ratio = %v, want ~2.0", snap.VolRatio)
	}
	vol, ok := findSignal(signals, "volume")
	if !ok {
		t.Fatal("no volume signal on a 2x spike behind a bullish candle")
	}
	if vol.Direction <= 0 {
		t.Errorf("volume direction = %v on a bullish spike, want > 0", vol.Direction)
	}

	// Same spike on a bearish candle with a clean lower edge leans sell.
	w[last].Open = 115
	w[last].Close = 114
	w[last].High = 115.2
	w[last].Low = 113.95
	signals, _ = e.Analyze(w)
	vol, ok = findSignal(signals, "volume")
	if !ok {
		t.Fatal("no volume signal on a 2x spike behind a bearish candle")
	}
	if vol.Direction >= 0 {
		t.Errorf("volume direction = %v on a bearish spike, want < 0", vol.Direction)
	}
}

func TestVolumeSignalAbstains(t *testing.T) {
	e := testEngine()

	// Flat volume: every candle equals the average, no spike to report.
	signals, snap := e.Analyze(window(trending(30, 100, 0.1)))
	if _, ok := findSignal(signals, "volume"); ok {
		t.Error("volume signal emitted without a spike")
	}
	if math.Abs(snap.VolRatio-1) > 1e-9 {
		t.Errorf("flat-volume ratio = %v, want 1", snap.VolRatio)
	}

	// A spike absorbed by a long upper wick carries no direction.
	w := window(trending(30, 100, 0.1))
	last := len(w) - 1
	w[last].Open = 114
	w[last].Close = 114.2
	w[last].High = 115.5
	w[last].Low = 113.9
	w[last].Volume = 300
	signals, _ = e.Analyze(w)
	if _, ok := findSignal(signals, "volume"); ok {
		t.Error("volume signal emitted for an absorbed spike")
	}

	// Window shorter than the averaging period abstains entirely.
	w = window(trending(15, 100, 0.1))
	w[len(w)-1].Volume = 500
	signals, _ = e.Analyze(w)
	if _, ok := findSignal(signals, "volume"); ok {
		t.Error("volume signal emitted on a 15-candle window")
	}
}

func TestAnalyzeDeterminism(t *testing.T) {
	e := testEngine()
	w := window(trending(250, 100, 0.3))
	a, snapA := e.Analyze(w)
	b, snapB := e.Analyze(w)
	if len(a) != len(b) || snapA != snapB {
		t.Fatalf("identical windows produced different analyses")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("signal %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
