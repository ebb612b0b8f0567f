package decision

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoDecision indicates that no source contributed anything to fuse.
// This is the only fatal fusion outcome; callers emit an explicit
// no-decision record instead of crashing the cycle.
var ErrNoDecision = errors.New("no signals available to fuse")

// Config holds fusion parameters. All thresholds are configuration, not
// hard invariants; defaults follow DefaultConfig.
type Config struct {
	IndicatorWeight float64 `json:"indicator_weight"` // default 0.4
	PatternWeight   float64 `json:"pattern_weight"`   // default 0.2
	EnsembleWeight  float64 `json:"ensemble_weight"`  // default 0.4

	StrongThreshold     float64 `json:"strong_threshold"`     // |score| >= -> strong, default 0.6
	WeakThreshold       float64 `json:"weak_threshold"`       // |score| >= -> buy/sell, default 0.2
	ConfidenceThreshold float64 `json:"confidence_threshold"` // actionable floor, default 0.7
	MinSources          int     `json:"min_sources"`          // quorum, default 2
}

// DefaultConfig returns the default fusion configuration.
func DefaultConfig() Config {
	return Config{
		IndicatorWeight:     0.4,
		PatternWeight:       0.2,
		EnsembleWeight:      0.4,
		StrongThreshold:     0.6,
		WeakThreshold:       0.2,
		ConfidenceThreshold: 0.7,
		MinSources:          2,
	}
}

// Engine fuses signals from the indicator engine, pattern detector and
// prediction ensemble into one scored, explained decision. Fuse is a pure
// function of its inputs, which keeps backtests deterministic.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewEngine creates a fusion engine.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.IndicatorWeight <= 0 && cfg.PatternWeight <= 0 && cfg.EnsembleWeight <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.MinSources <= 0 {
		cfg.MinSources = 2
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "decision_engine").Logger(),
		now:    time.Now,
		newID:  newDecisionID,
	}
}

// WithClock overrides the time source. Used by backtests to keep decision
// timestamps reproducible.
func (e *Engine) WithClock(now func() time.Time, newID func() string) *Engine {
	e.now = now
	e.newID = newID
	return e
}

func (e *Engine) sourceWeight(s Source) float64 {
	switch s {
	case SourceIndicators:
		return e.cfg.IndicatorWeight
	case SourcePatterns:
		return e.cfg.PatternWeight
	case SourceEnsemble:
		return e.cfg.EnsembleWeight
	default:
		return 0
	}
}

// Fuse combines the present signals into one decision. Signals from absent
// sources are simply missing; omission changes the quorum, never the score.
func (e *Engine) Fuse(symbol, timeframe string, price float64, signals []Signal) (*Decision, error) {
	if len(signals) == 0 {
		return nil, ErrNoDecision
	}

	// Aggregate per source group first, then combine groups with the
	// configured per-source weights.
	type groupAgg struct {
		score float64 // mean of direction*confidence
		conf  float64 // mean confidence
		n     int
	}
	groups := make(map[Source]*groupAgg)

	reasoning := make([]Signal, 0, len(signals))
	for _, s := range signals {
		s.Clamp()
		w := e.sourceWeight(s.Source)
		if w <= 0 {
			continue
		}
		g := groups[s.Source]
		if g == nil {
			g = &groupAgg{}
			groups[s.Source] = g
		}
		g.score += s.Direction * s.Confidence
		g.conf += s.Confidence
		g.n++

		s.Weight = w
		reasoning = append(reasoning, s)
	}
	if len(reasoning) == 0 {
		return nil, ErrNoDecision
	}

	// Fixed source order: float accumulation must not depend on map
	// iteration order or replays stop being bit-identical.
	var weightSum, score, conf float64
	var posWeight, negWeight float64
	for _, src := range []Source{SourceIndicators, SourcePatterns, SourceEnsemble} {
		g := groups[src]
		if g == nil {
			continue
		}
		w := e.sourceWeight(src)
		gScore := g.score / float64(g.n)
		gConf := g.conf / float64(g.n)
		score += w * gScore
		conf += w * gConf
		weightSum += w
		if gScore > 0 {
			posWeight += w
		} else if gScore < 0 {
			negWeight += w
		}
	}
	score = clamp(score/weightSum, -1, 1)
	conf = clamp(conf/weightSum, 0, 1)

	// Cross-source agreement penalty: sources pulling in opposite
	// directions reduce combined confidence. With full agreement the
	// factor is 1; an even split halves confidence.
	if posWeight+negWeight > 0 {
		disagreement := math.Min(posWeight, negWeight) / (posWeight + negWeight)
		conf *= 1 - disagreement
	}

	category := e.categorize(score)
	if len(reasoning) < e.cfg.MinSources {
		// Quorum not met: the decision is still emitted for audit but is
		// forced to Undetermined regardless of the computed score.
		category = Undetermined
	}

	d := &Decision{
		ID:         e.newID(),
		Symbol:     symbol,
		Timeframe:  timeframe,
		Price:      price,
		Score:      score,
		Confidence: conf,
		Category:   category,
		Actionable: category != Undetermined && conf >= e.cfg.ConfidenceThreshold,
		Reasoning:  reasoning,
		CreatedAt:  e.now().UTC(),
	}

	e.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Float64("score", d.Score).
		Float64("confidence", d.Confidence).
		Str("category", string(d.Category)).
		Bool("actionable", d.Actionable).
		Int("signals", len(reasoning)).
		Msg("decision fused")

	return d, nil
}

func (e *Engine) categorize(score float64) Category {
	switch {
	case score >= e.cfg.StrongThreshold:
		return StrongBuy
	case score >= e.cfg.WeakThreshold:
		return Buy
	case score <= -e.cfg.StrongThreshold:
		return StrongSell
	case score <= -e.cfg.WeakThreshold:
		return Sell
	default:
		return Hold
	}
}
