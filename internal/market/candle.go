package market

import (
	"errors"
	"time"
)

// Candle represents a single OHLCV bar. Times are Unix milliseconds,
// matching the common exchange kline format.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Body returns the absolute candle body size.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-to-low range.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// UpperWick returns the distance from the body top to the high.
func (c Candle) UpperWick() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerWick returns the distance from the body bottom to the low.
func (c Candle) LowerWick() float64 {
	if c.Close > c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// ClosedAt returns the close time as a time.Time.
func (c Candle) ClosedAt() time.Time {
	return time.Unix(c.CloseTime/1000, 0).UTC()
}

// Window is an ordered sequence of closed candles for one symbol/timeframe.
// A window is immutable once handed to the engine; helpers return copies.
type Window []Candle

var (
	// ErrInsufficientData is returned by suppliers when fewer candles than
	// requested are available.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrUnorderedWindow is returned by Validate for out-of-order candles.
	ErrUnorderedWindow = errors.New("candle window is not time-ordered")
)

// Validate checks that the window holds at least minLength candles and
// is strictly time-ordered.
func (w Window) Validate(minLength int) error {
	if minLength < 1 {
		minLength = 1
	}
	if len(w) < minLength {
		return ErrInsufficientData
	}
	for i := 1; i < len(w); i++ {
		if w[i].OpenTime <= w[i-1].OpenTime {
			return ErrUnorderedWindow
		}
	}
	return nil
}

// Last returns the most recent candle. The window must be non-empty.
func (w Window) Last() Candle {
	return w[len(w)-1]
}

// Closes returns the close price series.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high price series.
func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.High
	}
	return out
}

// Lows returns the low price series.
func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the volume series.
func (w Window) Volumes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Volume
	}
	return out
}
