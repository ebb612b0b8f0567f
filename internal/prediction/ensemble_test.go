package prediction

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/market"
)

// stubPredictor returns a fixed forecast or error.
type stubPredictor struct {
	name string
	f    Forecast
	err  error
}

func (s stubPredictor) Name() string { return s.name }
func (s stubPredictor) Predict(context.Context, market.Window) (Forecast, error) {
	return s.f, s.err
}

func trendingWindow(n int, start, step float64) market.Window {
	w := make(market.Window, n)
	price := start
	for i := range w {
		w[i] = market.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1)*60000 - 1,
			Open:      price,
			High:      price + math.Abs(step),
			Low:       price - math.Abs(step),
			Close:     price + step,
			Volume:    100,
		}
		price += step
	}
	return w
}

func TestEnsembleWeightedAverage(t *testing.T) {
	e := NewEnsemble(zerolog.Nop(),
		stubPredictor{name: "a", f: Forecast{ExpectedMove: 0.02, Confidence: 0.8}},
		stubPredictor{name: "b", f: Forecast{ExpectedMove: 0.01, Confidence: 0.4}},
	)
	res, err := e.Predict(context.Background(), trendingWindow(30, 100, 0.5))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	want := (0.02*0.8 + 0.01*0.4) / (0.8 + 0.4)
	if math.Abs(res.ExpectedMove-want) > 1e-12 {
		t.Errorf("expected move = %v, want %v", res.ExpectedMove, want)
	}
	if len(res.ContributingModels) != 2 {
		t.Errorf("contributing models = %v, want both", res.ContributingModels)
	}
}

func TestEnsembleSingleSurvivorDegradation(t *testing.T) {
	e := NewEnsemble(zerolog.Nop(),
		stubPredictor{name: "a", f: Forecast{ExpectedMove: 0.02, Confidence: 0.8}},
		stubPredictor{name: "b", err: ErrUnavailable},
	)
	res, err := e.Predict(context.Background(), trendingWindow(30, 100, 0.5))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := 0.8 * singleModelFactor
	if math.Abs(res.Confidence-want) > 1e-12 {
		t.Errorf("single-survivor confidence = %v, want %v", res.Confidence, want)
	}
	if len(res.ContributingModels) != 1 || res.ContributingModels[0] != "a" {
		t.Errorf("contributing models = %v, want [a]", res.ContributingModels)
	}
}

func TestEnsembleNoPrediction(t *testing.T) {
	e := NewEnsemble(zerolog.Nop(),
		stubPredictor{name: "a", err: ErrUnavailable},
		stubPredictor{name: "b", err: errors.New("model crashed")},
	)
	if _, err := e.Predict(context.Background(), trendingWindow(30, 100, 0.5)); !errors.Is(err, ErrNoPrediction) {
		t.Errorf("all predictors out: got %v, want ErrNoPrediction", err)
	}
}

func TestEnsembleDisagreementPenalty(t *testing.T) {
	agree := NewEnsemble(zerolog.Nop(),
		stubPredictor{name: "a", f: Forecast{ExpectedMove: 0.02, Confidence: 0.8}},
		stubPredictor{name: "b", f: Forecast{ExpectedMove: 0.02, Confidence: 0.8}},
	)
	disagree := NewEnsemble(zerolog.Nop(),
		stubPredictor{name: "a", f: Forecast{ExpectedMove: 0.02, Confidence: 0.8}},
		stubPredictor{name: "b", f: Forecast{ExpectedMove: -0.02, Confidence: 0.8}},
	)

	w := trendingWindow(30, 100, 0.5)
	resAgree, err := agree.Predict(context.Background(), w)
	if err != nil {
		t.Fatalf("agree: %v", err)
	}
	resDisagree, err := disagree.Predict(context.Background(), w)
	if err != nil {
		t.Fatalf("disagree: %v", err)
	}
	if resDisagree.Confidence >= resAgree.Confidence {
		t.Errorf("disagreement should lower confidence: %v >= %v",
			resDisagree.Confidence, resAgree.Confidence)
	}
	if resAgree.Confidence != 0.8 {
		t.Errorf("identical forecasts should carry no penalty, got %v", resAgree.Confidence)
	}
}

func TestMomentumPredictorDirections(t *testing.T) {
	p := NewMomentumPredictor()

	up, err := p.Predict(context.Background(), trendingWindow(30, 100, 0.5))
	if err != nil {
		t.Fatalf("uptrend: %v", err)
	}
	if up.ExpectedMove <= 0 {
		t.Errorf("uptrend expected move = %v, want > 0", up.ExpectedMove)
	}

	down, err := p.Predict(context.Background(), trendingWindow(30, 100, -0.5))
	if err != nil {
		t.Fatalf("downtrend: %v", err)
	}
	if down.ExpectedMove >= 0 {
		t.Errorf("downtrend expected move = %v, want < 0", down.ExpectedMove)
	}
}

func TestPredictorsAbstainOnShortWindows(t *testing.T) {
	w := trendingWindow(5, 100, 0.5)
	for _, p := range []Predictor{
		NewMomentumPredictor(),
		NewTrendPredictor(),
		NewMeanReversionPredictor(),
	} {
		if _, err := p.Predict(context.Background(), w); !errors.Is(err, ErrUnavailable) {
			t.Errorf("%s on short window: got %v, want ErrUnavailable", p.Name(), err)
		}
	}
}

func TestTrendPredictorFollowsSlope(t *testing.T) {
	p := NewTrendPredictor()
	res, err := p.Predict(context.Background(), trendingWindow(40, 100, 1))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ExpectedMove <= 0 {
		t.Errorf("steady uptrend expected move = %v, want > 0", res.ExpectedMove)
	}
	if res.Confidence <= 0.4 {
		t.Errorf("aligned spread and slope should add confidence, got %v", res.Confidence)
	}
}

func TestMeanReversionPointsBackToMean(t *testing.T) {
	p := NewMeanReversionPredictor()

	// Flat series with a final spike far above the mean.
	w := trendingWindow(25, 100, 0)
	for i := range w {
		w[i].Close = 100 + 0.3*math.Sin(float64(i))
	}
	w[len(w)-1].Close = 103

	res, err := p.Predict(context.Background(), w)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ExpectedMove >= 0 {
		t.Errorf("price above mean: expected move = %v, want < 0", res.ExpectedMove)
	}
}
