package prediction

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/market"
)

// singleModelFactor degrades confidence when only one model survives:
// a lone forecast has no cross-check.
const singleModelFactor = 0.7

// EnsembleResult is the combined forecast with its provenance.
type EnsembleResult struct {
	ExpectedMove       float64
	Confidence         float64
	ContributingModels []string
}

// Ensemble combines independent predictors into one forecast. A
// predictor returning ErrUnavailable is skipped silently; any other
// error is logged and the predictor skipped for this window.
type Ensemble struct {
	predictors []Predictor
	logger     zerolog.Logger
}

func NewEnsemble(logger zerolog.Logger, predictors ...Predictor) *Ensemble {
	return &Ensemble{
		predictors: predictors,
		logger:     logger.With().Str("component", "prediction").Logger(),
	}
}

// DefaultEnsemble wires the three built-in models.
func DefaultEnsemble(logger zerolog.Logger) *Ensemble {
	return NewEnsemble(logger,
		NewMomentumPredictor(),
		NewTrendPredictor(),
		NewMeanReversionPredictor(),
	)
}

type contribution struct {
	name string
	f    Forecast
}

// Predict runs every model and returns the confidence-weighted
// combination. Disagreement between models reduces confidence; when no
// model produces a forecast it returns ErrNoPrediction.
func (e *Ensemble) Predict(ctx context.Context, w market.Window) (EnsembleResult, error) {
	var contribs []contribution

	for _, p := range e.predictors {
		if err := ctx.Err(); err != nil {
			return EnsembleResult{}, err
		}
		f, err := p.Predict(ctx, w)
		if err != nil {
			if err != ErrUnavailable {
				e.logger.Warn().Err(err).Str("model", p.Name()).Msg("predictor failed, skipping")
			}
			continue
		}
		if f.Confidence <= 0 {
			continue
		}
		contribs = append(contribs, contribution{name: p.Name(), f: f})
	}

	if len(contribs) == 0 {
		return EnsembleResult{}, ErrNoPrediction
	}

	var weightSum, moveSum, confSum float64
	names := make([]string, 0, len(contribs))
	for _, c := range contribs {
		weightSum += c.f.Confidence
		moveSum += c.f.ExpectedMove * c.f.Confidence
		confSum += c.f.Confidence
		names = append(names, c.name)
	}
	move := moveSum / weightSum
	conf := confSum / float64(len(contribs))

	if len(contribs) == 1 {
		conf *= singleModelFactor
	} else {
		conf *= 1 - disagreement(contribs, move)
	}

	result := EnsembleResult{
		ExpectedMove:       move,
		Confidence:         clamp01(conf),
		ContributingModels: names,
	}
	e.logger.Debug().
		Float64("expected_move", result.ExpectedMove).
		Float64("confidence", result.Confidence).
		Strs("models", names).
		Msg("ensemble forecast")
	return result, nil
}

// disagreement measures the spread of the forecasts around the combined
// move, normalized so identical forecasts cost nothing and strongly
// opposed forecasts cost up to half the confidence.
func disagreement(contribs []contribution, combined float64) float64 {
	var varSum float64
	scale := math.Abs(combined)
	for _, c := range contribs {
		d := c.f.ExpectedMove - combined
		varSum += d * d
		if m := math.Abs(c.f.ExpectedMove); m > scale {
			scale = m
		}
	}
	if scale == 0 {
		return 0
	}
	spread := math.Sqrt(varSum/float64(len(contribs))) / scale
	if spread > 0.5 {
		spread = 0.5
	}
	return spread
}
