package patterns

import (
	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/market"
)

// PatternType identifies a detected candlestick or chart pattern.
type PatternType string

const (
	Doji             PatternType = "doji"
	Hammer           PatternType = "hammer"
	InvertedHammer   PatternType = "inverted_hammer"
	ShootingStar     PatternType = "shooting_star"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	MorningStar      PatternType = "morning_star"
	EveningStar      PatternType = "evening_star"

	SupportTouch    PatternType = "support_touch"
	ResistanceTouch PatternType = "resistance_touch"
	DoubleTop       PatternType = "double_top"
	DoubleBottom    PatternType = "double_bottom"
	HeadShoulders   PatternType = "head_and_shoulders"
)

// Config holds the fixed heuristic thresholds for pattern classification.
type Config struct {
	DojiBodyRatio    float64 `json:"doji_body_ratio"`    // body <= ratio*range, default 0.10
	WickBodyMultiple float64 `json:"wick_body_multiple"` // dominant wick >= multiple*body, default 2.0
	StarBodyRatio    float64 `json:"star_body_ratio"`    // star body <= ratio*first body, default 0.3

	LevelTolerance   float64 `json:"level_tolerance"`   // merge pivots within this fraction, default 0.02
	ProximityRatio   float64 `json:"proximity_ratio"`   // close counts as "at" a level within this, default 0.01
	MinRetracement   float64 `json:"min_retracement"`   // double top/bottom valley depth, default 0.03
	ShoulderSymmetry float64 `json:"shoulder_symmetry"` // H&S shoulder tolerance, default 0.05
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		DojiBodyRatio:    0.10,
		WickBodyMultiple: 2.0,
		StarBodyRatio:    0.3,
		LevelTolerance:   0.02,
		ProximityRatio:   0.01,
		MinRetracement:   0.03,
		ShoulderSymmetry: 0.05,
	}
}

// Detected records one pattern occurrence with its directional polarity.
type Detected struct {
	Type       PatternType
	Direction  float64 // fixed polarity: +1 bullish, -1 bearish, 0 neutral
	Confidence float64
	Detail     string
}

// Detector classifies candlestick patterns on the most recent candles and
// chart-level patterns over the full window.
type Detector struct {
	cfg    Config
	logger zerolog.Logger
}

// NewDetector creates a pattern detector.
func NewDetector(cfg Config, logger zerolog.Logger) *Detector {
	if cfg.DojiBodyRatio <= 0 {
		cfg = DefaultConfig()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With().Str("component", "patterns").Logger(),
	}
}

// Detect runs candlestick and chart detection and converts every hit to a
// normalized signal. An empty result means nothing was detected; the
// pattern source then simply does not contribute to fusion. Opposing
// detections on the same window are both emitted; the fusion agreement
// penalty resolves the conflict.
func (d *Detector) Detect(w market.Window) []decision.Signal {
	detected := d.detectCandlestick(w)
	detected = append(detected, d.detectChart(w)...)

	signals := make([]decision.Signal, 0, len(detected))
	for _, p := range detected {
		signals = append(signals, decision.Signal{
			Source:     decision.SourcePatterns,
			Name:       string(p.Type),
			Direction:  p.Direction,
			Confidence: p.Confidence,
			Detail:     p.Detail,
		})
	}

	d.logger.Debug().Int("window", len(w)).Int("patterns", len(detected)).Msg("pattern scan complete")
	return signals
}
