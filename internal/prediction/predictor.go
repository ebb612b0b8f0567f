package prediction

import (
	"context"
	"errors"

	"crypto-decision-engine/internal/market"
)

var (
	// ErrUnavailable is returned by a predictor that cannot produce a
	// forecast for the given window, e.g. not enough history. The
	// ensemble treats it as an abstention, not a failure.
	ErrUnavailable = errors.New("predictor unavailable for window")

	// ErrNoPrediction is returned by the ensemble when every predictor
	// abstained or failed.
	ErrNoPrediction = errors.New("no predictor produced a forecast")
)

// Forecast is a single model's view of the next move.
type Forecast struct {
	// ExpectedMove is the anticipated fractional price change over the
	// prediction horizon. Positive means up.
	ExpectedMove float64
	// Confidence in [0,1].
	Confidence float64
}

// Predictor produces a forecast from a candle window. Implementations
// must be safe for concurrent use.
type Predictor interface {
	Name() string
	Predict(ctx context.Context, w market.Window) (Forecast, error)
}
