package autonomy

import (
	"context"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/risk"
)

// PaperExecutor simulates immediate fills at the decision price. Used
// when no real execution collaborator is wired, so the engine can run
// end to end without touching an exchange.
type PaperExecutor struct {
	logger zerolog.Logger
}

func NewPaperExecutor(logger zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{logger: logger.With().Str("component", "paper_executor").Logger()}
}

func (p *PaperExecutor) Submit(_ context.Context, d *decision.Decision, v risk.Verdict) (Fill, error) {
	p.logger.Info().
		Str("decision_id", d.ID).
		Str("symbol", d.Symbol).
		Str("category", string(d.Category)).
		Float64("price", d.Price).
		Float64("quantity", v.PositionSize).
		Bool("closing", v.Closing).
		Msg("paper fill")
	return Fill{Executed: true, Price: d.Price, Quantity: v.PositionSize}, nil
}
