package risk

import (
	"context"
	"sync"
	"time"
)

// State is the per-account mutable risk record. Evaluation reads a
// snapshot of it; mutation happens only through a StateStore commit
// after the execution collaborator confirms a fill.
type State struct {
	DailyRealizedPnL  float64   `json:"daily_realized_pnl"`
	OpenTradeCount    int       `json:"open_trade_count"`
	EmergencyShutdown bool      `json:"emergency_shutdown"`
	DayStartEquity    float64   `json:"day_start_equity"`
	Day               time.Time `json:"day"`
}

// rolled returns the state after applying a day-boundary reset if now
// has crossed into a new UTC day. Daily P&L resets; open trades and the
// shutdown flag carry over. The equity anchor only moves to a positive
// equity: readers that pass no equity (the risk-state endpoint, the
// emergency switch) must never zero the anchor, or the daily-loss rule
// would be disabled for the rest of the day.
func (s State) rolled(now time.Time, equity float64) State {
	day := now.UTC().Truncate(24 * time.Hour)
	if s.Day.Equal(day) {
		if s.DayStartEquity <= 0 && equity > 0 {
			s.DayStartEquity = equity
		}
		return s
	}
	s.Day = day
	s.DailyRealizedPnL = 0
	if equity > 0 {
		s.DayStartEquity = equity
	}
	return s
}

// StateStore serializes all reads and writes of one account's risk
// state. Commit runs fn with the current state and persists whatever fn
// returns; two concurrent commits for the same account never interleave.
type StateStore interface {
	// Snapshot returns the current state with the day boundary applied.
	Snapshot(ctx context.Context, accountID string, equity float64) (State, error)
	// Commit applies fn to the current state under the per-account lock.
	Commit(ctx context.Context, accountID string, equity float64, fn func(State) State) (State, error)
}

// MemoryStore keeps risk state in process. Used directly in backtests
// and as the fallback when Redis is unreachable.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State), now: time.Now}
}

// WithClock overrides the store's clock for deterministic replays.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Snapshot(_ context.Context, accountID string, equity float64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[accountID].rolled(m.now(), equity)
	m.states[accountID] = st
	return st, nil
}

func (m *MemoryStore) Commit(_ context.Context, accountID string, equity float64, fn func(State) State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := fn(m.states[accountID].rolled(m.now(), equity))
	m.states[accountID] = st
	return st, nil
}
