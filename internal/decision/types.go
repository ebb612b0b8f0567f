package decision

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which sub-engine produced a signal.
type Source string

const (
	SourceIndicators Source = "indicators"
	SourcePatterns   Source = "patterns"
	SourceEnsemble   Source = "ensemble"
)

// Signal is a normalized directional opinion from one analysis source.
// Direction is in [-1,1] (positive = bullish), Confidence in [0,1].
// Detail carries the human-readable rationale, e.g. "RSI=72, overbought".
type Signal struct {
	Source     Source  `json:"source"`
	Name       string  `json:"name"`
	Direction  float64 `json:"direction"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"` // weight applied during fusion, filled by the engine
	Detail     string  `json:"detail"`
}

// Clamp forces direction and confidence into their closed ranges.
func (s *Signal) Clamp() {
	s.Direction = clamp(s.Direction, -1, 1)
	s.Confidence = clamp(s.Confidence, 0, 1)
}

// Category is the discrete trading category derived from score/confidence.
type Category string

const (
	StrongBuy    Category = "strong_buy"
	Buy          Category = "buy"
	Hold         Category = "hold"
	Sell         Category = "sell"
	StrongSell   Category = "strong_sell"
	Undetermined Category = "undetermined"
)

// IsEntry reports whether the category opens or extends market exposure.
func (c Category) IsEntry() bool {
	switch c {
	case StrongBuy, Buy, Sell, StrongSell:
		return true
	}
	return false
}

// Decision is the fused, scored and explained output of one cycle.
// It is immutable once created; the reasoning trace is mandatory output.
type Decision struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Price      float64   `json:"price"` // last close when the decision was fused
	Score      float64   `json:"score"`      // [-1,1]
	Confidence float64   `json:"confidence"` // [0,1]
	Category   Category  `json:"category"`
	Actionable bool      `json:"actionable"`
	Reasoning  []Signal  `json:"reasoning"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsLong reports whether the decision leans long.
func (d *Decision) IsLong() bool {
	return d.Category == Buy || d.Category == StrongBuy
}

// IsShort reports whether the decision leans short.
func (d *Decision) IsShort() bool {
	return d.Category == Sell || d.Category == StrongSell
}

func newDecisionID() string {
	return uuid.New().String()
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
