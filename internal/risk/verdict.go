package risk

// VetoReason identifies which rule rejected a decision.
type VetoReason string

const (
	ReasonEmergencyShutdown VetoReason = "emergency_shutdown"
	ReasonDailyLossLimit    VetoReason = "daily_loss_limit"
	ReasonMaxOpenTrades     VetoReason = "max_open_trades"
)

// Verdict is the outcome of evaluating one decision against risk state.
// A decision without an approved verdict must never reach execution.
type Verdict struct {
	DecisionID string     `json:"decision_id"`
	Approved   bool       `json:"approved"`
	// NoOp marks decisions with nothing to validate (Hold, Undetermined,
	// non-actionable). Not a veto and not an approval.
	NoOp bool `json:"no_op,omitempty"`
	// Closing marks verdicts that reduce an existing position rather
	// than opening a new one. Closing actions bypass the entry limits.
	Closing      bool       `json:"closing,omitempty"`
	Reason       VetoReason `json:"reason,omitempty"`
	PositionSize float64    `json:"position_size,omitempty"`
	StopLoss     float64    `json:"stop_loss,omitempty"`
	TakeProfit   float64    `json:"take_profit,omitempty"`
}

// Vetoed reports whether the verdict is an actual rejection, as opposed
// to a no-op or an approval.
func (v Verdict) Vetoed() bool {
	return !v.Approved && !v.NoOp
}
