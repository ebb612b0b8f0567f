package indicators

import (
	"fmt"

	"crypto-decision-engine/internal/decision"
)

// pivot is a local extremum in a series.
type pivot struct {
	index int
	value float64
}

const pivotWing = 2 // candles on each side required to confirm an extremum

// pivotLows returns local minima confirmed by pivotWing neighbors.
func pivotLows(values []float64) []pivot {
	var out []pivot
	for i := pivotWing; i < len(values)-pivotWing; i++ {
		isLow := true
		for j := i - pivotWing; j <= i+pivotWing; j++ {
			if values[j] < values[i] {
				isLow = false
				break
			}
		}
		if isLow {
			out = append(out, pivot{index: i, value: values[i]})
		}
	}
	return out
}

// pivotHighs returns local maxima confirmed by pivotWing neighbors.
func pivotHighs(values []float64) []pivot {
	var out []pivot
	for i := pivotWing; i < len(values)-pivotWing; i++ {
		isHigh := true
		for j := i - pivotWing; j <= i+pivotWing; j++ {
			if values[j] > values[i] {
				isHigh = false
				break
			}
		}
		if isHigh {
			out = append(out, pivot{index: i, value: values[i]})
		}
	}
	return out
}

// detectDivergence compares the two most recent price extrema against the
// RSI extrema over the configured lookback. A bullish divergence is price
// making a lower low while RSI makes a higher low; bearish is the mirror
// on highs. The emitted direction is opposite the plain RSI reading.
func (e *Engine) detectDivergence(closes []float64) (decision.Signal, bool) {
	lookback := e.cfg.DivergenceLookback
	if len(closes) < lookback || lookback <= e.cfg.RSIPeriod {
		return decision.Signal{}, false
	}

	rsis := rsiSeries(closes, e.cfg.RSIPeriod)
	if len(rsis) < lookback-e.cfg.RSIPeriod {
		return decision.Signal{}, false
	}
	rsiWindow := rsis[len(rsis)-(lookback-e.cfg.RSIPeriod):]
	// RSI needs RSIPeriod candles of warmup, so the comparable price
	// window starts there: index i in both slices is the same candle.
	window := closes[len(closes)-(lookback-e.cfg.RSIPeriod):]

	// Bullish: price lower low, RSI higher low.
	priceLows := pivotLows(window)
	rsiLows := pivotLows(rsiWindow)
	if len(priceLows) >= 2 && len(rsiLows) >= 2 {
		pPrev, pLast := priceLows[len(priceLows)-2], priceLows[len(priceLows)-1]
		rPrev, rLast := rsiLows[len(rsiLows)-2], rsiLows[len(rsiLows)-1]
		if pLast.value < pPrev.value && rLast.value > rPrev.value {
			return decision.Signal{
				Source:     decision.SourceIndicators,
				Name:       "rsi_divergence",
				Direction:  0.8,
				Confidence: 0.6,
				Detail: fmt.Sprintf("bullish divergence: price %.4f<%.4f, RSI %.1f>%.1f",
					pLast.value, pPrev.value, rLast.value, rPrev.value),
			}, true
		}
	}

	// Bearish: price higher high, RSI lower high.
	priceHighs := pivotHighs(window)
	rsiHighs := pivotHighs(rsiWindow)
	if len(priceHighs) >= 2 && len(rsiHighs) >= 2 {
		pPrev, pLast := priceHighs[len(priceHighs)-2], priceHighs[len(priceHighs)-1]
		rPrev, rLast := rsiHighs[len(rsiHighs)-2], rsiHighs[len(rsiHighs)-1]
		if pLast.value > pPrev.value && rLast.value < rPrev.value {
			return decision.Signal{
				Source:     decision.SourceIndicators,
				Name:       "rsi_divergence",
				Direction:  -0.8,
				Confidence: 0.6,
				Detail: fmt.Sprintf("bearish divergence: price %.4f>%.4f, RSI %.1f<%.1f",
					pLast.value, pPrev.value, rLast.value, rPrev.value),
			}, true
		}
	}

	return decision.Signal{}, false
}
