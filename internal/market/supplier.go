package market

import "context"

// Supplier provides closed candle windows. Implementations live outside
// the decision core (exchange feed, database replay, test fixtures).
type Supplier interface {
	// GetWindow returns at least minLength ordered candles for the
	// symbol/timeframe, or ErrInsufficientData.
	GetWindow(ctx context.Context, symbol, timeframe string, minLength int) (Window, error)
}

const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Position is an open position as reported by the account collaborator.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // SideLong or SideShort
	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`
	StopLoss   float64 `json:"stop_loss"`
}

// AccountSnapshot is a point-in-time view of the trading account.
type AccountSnapshot struct {
	Equity         float64    `json:"equity"`
	DayStartEquity float64    `json:"day_start_equity"`
	OpenPositions  []Position `json:"open_positions"`
}

// PositionFor returns the open position for a symbol, if any.
func (a AccountSnapshot) PositionFor(symbol string) (Position, bool) {
	for _, p := range a.OpenPositions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// AccountSupplier provides account snapshots for risk evaluation.
type AccountSupplier interface {
	GetAccount(ctx context.Context) (AccountSnapshot, error)
}
