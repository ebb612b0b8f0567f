package indicators

import "math"

// Series math helpers. All functions operate on plain float64 slices and
// return a zero value when the input is shorter than the period; callers
// are responsible for abstaining before that happens.

// sma returns the simple moving average of the last period values.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// emaSeries returns the EMA series seeded with the SMA of the first
// period values. out[i] corresponds to values index i+period-1.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)
	out = append(out, ema)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// ema returns the last EMA value for the period.
func ema(values []float64, period int) float64 {
	s := emaSeries(values, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// rsiAt computes RSI over values[i-period..i] using simple averages of
// gains and losses, the same formulation the original engine used.
func rsiAt(closes []float64, i, period int) float64 {
	if i < period || i >= len(closes) {
		return 50
	}
	gains := 0.0
	losses := 0.0
	for j := i - period + 1; j <= i; j++ {
		change := closes[j] - closes[j-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// rsiSeries computes the RSI for every index >= period. out[i]
// corresponds to closes index i+period.
func rsiSeries(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	out := make([]float64, 0, len(closes)-period)
	for i := period; i < len(closes); i++ {
		out = append(out, rsiAt(closes, i, period))
	}
	return out
}

// macd returns the last MACD line, signal line and histogram values.
// Requires len(closes) >= slow+signal-1.
func macd(closes []float64, fast, slow, signal int) (line, signalLine, histogram float64, ok bool) {
	if len(closes) < slow+signal-1 {
		return 0, 0, 0, false
	}
	fastS := emaSeries(closes, fast)
	slowS := emaSeries(closes, slow)

	// Align both EMA series on the close index and build the MACD series
	// from the first index where the slow EMA exists.
	offset := slow - fast
	macdS := make([]float64, len(slowS))
	for i := range slowS {
		macdS[i] = fastS[i+offset] - slowS[i]
	}

	sigS := emaSeries(macdS, signal)
	if len(sigS) == 0 {
		return 0, 0, 0, false
	}
	line = macdS[len(macdS)-1]
	signalLine = sigS[len(sigS)-1]
	return line, signalLine, line - signalLine, true
}

// bollinger returns the upper, middle and lower band for the period.
func bollinger(closes []float64, period int, stdDev float64) (upper, middle, lower float64, ok bool) {
	if len(closes) < period {
		return 0, 0, 0, false
	}
	middle = sma(closes, period)
	variance := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - middle
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)
	return middle + stdDev*sd, middle, middle - stdDev*sd, true
}

// atr returns the average true range over the period using a simple mean
// of true ranges. Requires period+1 candles.
func atr(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period), true
}

// stochastic returns %K and %D (SMA of the last dPeriod %K values).
func stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d float64, ok bool) {
	n := len(closes)
	if n < kPeriod+dPeriod-1 {
		return 0, 0, false
	}
	kAt := func(i int) float64 {
		lo := math.MaxFloat64
		hi := -math.MaxFloat64
		for j := i - kPeriod + 1; j <= i; j++ {
			if lows[j] < lo {
				lo = lows[j]
			}
			if highs[j] > hi {
				hi = highs[j]
			}
		}
		if hi == lo {
			return 50
		}
		return 100 * (closes[i] - lo) / (hi - lo)
	}
	k = kAt(n - 1)
	sum := 0.0
	for i := n - dPeriod; i < n; i++ {
		sum += kAt(i)
	}
	return k, sum / float64(dPeriod), true
}

// adx returns the average directional index over the period, computed
// with rolling simple means of +DM/-DM against the ATR. Requires at
// least 2*period+1 candles.
func adx(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if n < 2*period+1 {
		return 0, false
	}

	dxAt := func(i int) float64 {
		plusSum := 0.0
		minusSum := 0.0
		trSum := 0.0
		for j := i - period + 1; j <= i; j++ {
			up := highs[j] - highs[j-1]
			down := lows[j-1] - lows[j]
			if up > down && up > 0 {
				plusSum += up
			}
			if down > up && down > 0 {
				minusSum += down
			}
			tr := highs[j] - lows[j]
			if hc := math.Abs(highs[j] - closes[j-1]); hc > tr {
				tr = hc
			}
			if lc := math.Abs(lows[j] - closes[j-1]); lc > tr {
				tr = lc
			}
			trSum += tr
		}
		if trSum == 0 {
			return 0
		}
		plusDI := 100 * plusSum / trSum
		minusDI := 100 * minusSum / trSum
		if plusDI+minusDI == 0 {
			return 0
		}
		return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += dxAt(i)
	}
	return sum / float64(period), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
