package risk

import (
	"context"

	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/market"
)

// StopMode selects how the stop-loss distance is derived.
type StopMode string

const (
	StopModeFixed    StopMode = "fixed"
	StopModeTrailing StopMode = "trailing"
	StopModeATR      StopMode = "atr"
)

type Config struct {
	MaxDailyLossPercent float64  `json:"max_daily_loss_percent"`
	MaxOpenTrades       int      `json:"max_open_trades"`
	RiskFraction        float64  `json:"risk_fraction"`
	MaxPositionSize     float64  `json:"max_position_size"`
	StopMode            StopMode `json:"stop_mode"`
	FixedStopPercent    float64  `json:"fixed_stop_percent"`
	TrailPercent        float64  `json:"trail_percent"`
	ATRMultiplier       float64  `json:"atr_multiplier"`
	RiskRewardRatio     float64  `json:"risk_reward_ratio"`
}

func DefaultConfig() Config {
	return Config{
		MaxDailyLossPercent: 0.05,
		MaxOpenTrades:       3,
		RiskFraction:        0.02,
		MaxPositionSize:     1.0,
		StopMode:            StopModeATR,
		FixedStopPercent:    0.02,
		TrailPercent:        0.02,
		ATRMultiplier:       2.0,
		RiskRewardRatio:     2.0,
	}
}

// Manager validates decisions against account risk state. Evaluate is a
// pure function of its inputs; all mutation goes through the StateStore.
type Manager struct {
	cfg    Config
	store  StateStore
	logger zerolog.Logger
}

func NewManager(cfg Config, store StateStore, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

func (m *Manager) Store() StateStore { return m.store }

// Evaluate applies the risk rules in order; the first failing rule wins.
// atr may be zero when the indicator abstained, in which case ATR stop
// mode falls back to the fixed percent distance.
func (m *Manager) Evaluate(d *decision.Decision, account market.AccountSnapshot, st State, atr float64) Verdict {
	v := Verdict{DecisionID: d.ID}

	closing := m.isClosing(d, account)
	v.Closing = closing
	entry := d.Category.IsEntry() && d.Actionable && !closing

	if st.EmergencyShutdown && !closing {
		v.Reason = ReasonEmergencyShutdown
		m.logVeto(d, v.Reason)
		return v
	}
	if entry && st.DayStartEquity > 0 &&
		st.DailyRealizedPnL <= -(m.cfg.MaxDailyLossPercent*st.DayStartEquity) {
		v.Reason = ReasonDailyLossLimit
		m.logVeto(d, v.Reason)
		return v
	}
	if entry && st.OpenTradeCount >= m.cfg.MaxOpenTrades {
		v.Reason = ReasonMaxOpenTrades
		m.logVeto(d, v.Reason)
		return v
	}
	if !entry && !closing {
		v.NoOp = true
		return v
	}

	price := d.Price
	stopDistance := m.stopDistance(price, atr)
	if stopDistance <= 0 || price <= 0 {
		v.NoOp = true
		return v
	}

	size := (account.Equity * m.cfg.RiskFraction) / stopDistance
	if size > m.cfg.MaxPositionSize {
		size = m.cfg.MaxPositionSize
	}

	v.Approved = true
	v.PositionSize = size
	if d.IsLong() {
		v.StopLoss = price - stopDistance
		v.TakeProfit = price + stopDistance*m.cfg.RiskRewardRatio
	} else {
		v.StopLoss = price + stopDistance
		v.TakeProfit = price - stopDistance*m.cfg.RiskRewardRatio
	}

	m.logger.Info().
		Str("decision_id", d.ID).
		Str("symbol", d.Symbol).
		Float64("position_size", v.PositionSize).
		Float64("stop_loss", v.StopLoss).
		Float64("take_profit", v.TakeProfit).
		Msg("risk verdict approved")
	return v
}

// isClosing reports whether the decision reduces an existing position:
// a sell against an open long or a buy against an open short.
func (m *Manager) isClosing(d *decision.Decision, account market.AccountSnapshot) bool {
	pos, ok := account.PositionFor(d.Symbol)
	if !ok {
		return false
	}
	if pos.Side == market.SideLong && d.IsShort() {
		return true
	}
	if pos.Side == market.SideShort && d.IsLong() {
		return true
	}
	return false
}

func (m *Manager) stopDistance(price, atr float64) float64 {
	switch m.cfg.StopMode {
	case StopModeATR:
		if atr > 0 {
			return m.cfg.ATRMultiplier * atr
		}
		return price * m.cfg.FixedStopPercent
	case StopModeTrailing:
		return price * m.cfg.TrailPercent
	default:
		return price * m.cfg.FixedStopPercent
	}
}

func (m *Manager) logVeto(d *decision.Decision, reason VetoReason) {
	m.logger.Warn().
		Str("decision_id", d.ID).
		Str("symbol", d.Symbol).
		Str("reason", string(reason)).
		Msg("decision vetoed")
}

// TriggerEmergency sets the account's emergency shutdown flag. All
// subsequent entry verdicts are vetoed until ResetEmergency.
func (m *Manager) TriggerEmergency(ctx context.Context, accountID, reason string) error {
	_, err := m.store.Commit(ctx, accountID, 0, func(s State) State {
		s.EmergencyShutdown = true
		return s
	})
	if err == nil {
		m.logger.Error().
			Str("account", accountID).
			Str("reason", reason).
			Msg("emergency shutdown triggered")
	}
	return err
}

func (m *Manager) ResetEmergency(ctx context.Context, accountID string) error {
	_, err := m.store.Commit(ctx, accountID, 0, func(s State) State {
		s.EmergencyShutdown = false
		return s
	})
	if err == nil {
		m.logger.Info().Str("account", accountID).Msg("emergency shutdown reset")
	}
	return err
}

// CommitFill records a confirmed entry fill, incrementing the open
// trade count. Called only after the execution collaborator confirms.
func (m *Manager) CommitFill(ctx context.Context, accountID string, equity float64) (State, error) {
	return m.store.Commit(ctx, accountID, equity, func(s State) State {
		s.OpenTradeCount++
		return s
	})
}

// CommitClose records a confirmed close, applying realized P&L.
func (m *Manager) CommitClose(ctx context.Context, accountID string, equity, realizedPnL float64) (State, error) {
	return m.store.Commit(ctx, accountID, equity, func(s State) State {
		if s.OpenTradeCount > 0 {
			s.OpenTradeCount--
		}
		s.DailyRealizedPnL += realizedPnL
		return s
	})
}
