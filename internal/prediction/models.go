package prediction

import (
	"context"
	"math"

	"crypto-decision-engine/internal/market"
)

// MomentumPredictor extrapolates recent rate of change. It compares the
// mean return of the short lookback against the long lookback and
// projects continuation when they align.
type MomentumPredictor struct {
	Short int
	Long  int
}

func NewMomentumPredictor() *MomentumPredictor {
	return &MomentumPredictor{Short: 5, Long: 20}
}

func (p *MomentumPredictor) Name() string { return "momentum" }

func (p *MomentumPredictor) Predict(_ context.Context, w market.Window) (Forecast, error) {
	closes := w.Closes()
	if len(closes) < p.Long+1 {
		return Forecast{}, ErrUnavailable
	}
	short := meanReturn(closes[len(closes)-p.Short-1:])
	long := meanReturn(closes[len(closes)-p.Long-1:])

	move := short * float64(p.Short)
	conf := 0.4
	if sameSign(short, long) {
		conf += 0.3
	}
	conf += math.Min(math.Abs(short)*50, 0.2)
	return Forecast{ExpectedMove: move, Confidence: clamp01(conf)}, nil
}

// TrendPredictor uses an EMA crossover slope: direction from the fast
// EMA relative to the slow EMA, magnitude from the fast EMA's slope.
type TrendPredictor struct {
	Fast int
	Slow int
}

func NewTrendPredictor() *TrendPredictor {
	return &TrendPredictor{Fast: 12, Slow: 26}
}

func (p *TrendPredictor) Name() string { return "trend" }

func (p *TrendPredictor) Predict(_ context.Context, w market.Window) (Forecast, error) {
	closes := w.Closes()
	if len(closes) < p.Slow+2 {
		return Forecast{}, ErrUnavailable
	}
	fastNow := emaLast(closes, p.Fast)
	fastPrev := emaLast(closes[:len(closes)-1], p.Fast)
	slowNow := emaLast(closes, p.Slow)
	if slowNow == 0 || fastPrev == 0 {
		return Forecast{}, ErrUnavailable
	}

	spread := (fastNow - slowNow) / slowNow
	slope := (fastNow - fastPrev) / fastPrev

	move := slope * float64(p.Fast)
	conf := 0.4
	if sameSign(spread, slope) {
		conf += 0.3
	}
	conf += math.Min(math.Abs(spread)*20, 0.2)
	return Forecast{ExpectedMove: move, Confidence: clamp01(conf)}, nil
}

// MeanReversionPredictor expects price stretched far from its moving
// average to come back. Forecast points toward the mean, scaled by the
// deviation in standard deviations.
type MeanReversionPredictor struct {
	Period int
}

func NewMeanReversionPredictor() *MeanReversionPredictor {
	return &MeanReversionPredictor{Period: 20}
}

func (p *MeanReversionPredictor) Name() string { return "mean_reversion" }

func (p *MeanReversionPredictor) Predict(_ context.Context, w market.Window) (Forecast, error) {
	closes := w.Closes()
	if len(closes) < p.Period {
		return Forecast{}, ErrUnavailable
	}
	window := closes[len(closes)-p.Period:]
	mean, std := meanStd(window)
	if std == 0 || mean == 0 {
		return Forecast{}, ErrUnavailable
	}
	price := closes[len(closes)-1]
	z := (price - mean) / std
	if math.Abs(z) < 1 {
		// Price near its mean carries no reversion edge.
		return Forecast{}, ErrUnavailable
	}

	// Project a partial retrace toward the mean.
	move := (mean - price) / price * 0.5
	conf := clamp01(0.4 + 0.15*(math.Abs(z)-1))
	return Forecast{ExpectedMove: move, Confidence: conf}, nil
}

func meanReturn(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	sum := 0.0
	n := 0
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		sum += (closes[i] - closes[i-1]) / closes[i-1]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func emaLast(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	varSum := 0.0
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(values)))
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
