package risk

import "crypto-decision-engine/internal/market"

// RecomputeTrailingStop returns the updated stop for an open position at
// the current price. The stop only ever tightens toward price: for a
// long it is max(previous, price - distance), for a short the mirror.
// Distance uses the ATR multiple when atr is available, otherwise the
// configured trail percent of price.
func (m *Manager) RecomputeTrailingStop(pos market.Position, price, atr float64) float64 {
	distance := price * m.cfg.TrailPercent
	if m.cfg.StopMode == StopModeATR && atr > 0 {
		distance = m.cfg.ATRMultiplier * atr
	}

	if pos.Side == market.SideShort {
		candidate := price + distance
		if pos.StopLoss > 0 && pos.StopLoss < candidate {
			return pos.StopLoss
		}
		return candidate
	}

	candidate := price - distance
	if pos.StopLoss > candidate {
		return pos.StopLoss
	}
	return candidate
}
