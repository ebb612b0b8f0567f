package autonomy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/metrics"
	"crypto-decision-engine/internal/risk"
)

// Mode is the configured execution autonomy level.
type Mode string

const (
	ModeFullAuto   Mode = "full_auto"
	ModeSemiAuto   Mode = "semi_auto"
	ModeSignalOnly Mode = "signal_only"
)

// Status is the terminal (or pending) state of one dispatched decision.
type Status string

const (
	StatusExecuted        Status = "executed"
	StatusPendingApproval Status = "pending_approval"
	StatusSignalOnly      Status = "signal_only"
	StatusVetoed          Status = "vetoed"
	StatusNoOp            Status = "no_op"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
	StatusSuperseded      Status = "superseded"
	StatusRejected        Status = "rejected"
)

// Fill is the execution collaborator's confirmation of a submitted order.
type Fill struct {
	Executed    bool    `json:"executed"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	RealizedPnL float64 `json:"realized_pnl"` // nonzero only for closes
}

// Executor is the external order-placement collaborator.
type Executor interface {
	Submit(ctx context.Context, d *decision.Decision, v risk.Verdict) (Fill, error)
}

// PendingApproval is a semi-auto decision awaiting human confirmation.
type PendingApproval struct {
	ID        string             `json:"id"`
	Decision  *decision.Decision `json:"decision"`
	Verdict   risk.Verdict       `json:"verdict"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
	Status    Status             `json:"status"`
	Equity    float64            `json:"-"`
}

// Outcome is what Dispatch reports back to the cycle.
type Outcome struct {
	Status   Status
	Approval *PendingApproval // set only when Status is pending
	Fill     *Fill            // set only when Status is executed
}

var ErrApprovalNotFound = errors.New("pending approval not found or no longer pending")

type Config struct {
	Mode        Mode          `json:"mode"`
	ApprovalTTL time.Duration `json:"approval_ttl"`
}

func DefaultConfig() Config {
	return Config{Mode: ModeSemiAuto, ApprovalTTL: 5 * time.Minute}
}

// Controller maps validated decisions to actions per the configured
// autonomy mode and owns the pending-approval lifecycle.
type Controller struct {
	cfg       Config
	executor  Executor
	riskMgr   *risk.Manager
	accountID string
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]*PendingApproval // keyed by symbol, one live approval per symbol
	byID    map[string]*PendingApproval

	now   func() time.Time
	newID func() string
}

func NewController(cfg Config, executor Executor, riskMgr *risk.Manager, accountID string, logger zerolog.Logger) *Controller {
	if cfg.ApprovalTTL <= 0 {
		cfg.ApprovalTTL = 5 * time.Minute
	}
	return &Controller{
		cfg:       cfg,
		executor:  executor,
		riskMgr:   riskMgr,
		accountID: accountID,
		logger:    logger.With().Str("component", "autonomy").Logger(),
		pending:   make(map[string]*PendingApproval),
		byID:      make(map[string]*PendingApproval),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// WithClock overrides the time and id sources for deterministic tests.
func (c *Controller) WithClock(now func() time.Time, newID func() string) *Controller {
	c.now = now
	c.newID = newID
	return c
}

func (c *Controller) Mode() Mode { return c.cfg.Mode }

// Dispatch routes one decision/verdict pair. A vetoed verdict always
// terminates in Vetoed regardless of mode; a no-op verdict in NoOp.
func (c *Controller) Dispatch(ctx context.Context, d *decision.Decision, v risk.Verdict, equity float64) (Outcome, error) {
	if v.Vetoed() {
		return Outcome{Status: StatusVetoed}, nil
	}
	if v.NoOp {
		return Outcome{Status: StatusNoOp}, nil
	}

	switch c.cfg.Mode {
	case ModeFullAuto:
		return c.execute(ctx, d, v, equity)
	case ModeSemiAuto:
		return c.enqueue(d, v, equity), nil
	default:
		c.logger.Info().
			Str("decision_id", d.ID).
			Str("symbol", d.Symbol).
			Msg("signal-only mode, not forwarding to execution")
		return Outcome{Status: StatusSignalOnly}, nil
	}
}

// execute forwards to the execution collaborator and commits risk state
// only once the fill is confirmed.
func (c *Controller) execute(ctx context.Context, d *decision.Decision, v risk.Verdict, equity float64) (Outcome, error) {
	fill, err := c.executor.Submit(ctx, d, v)
	if err != nil {
		return Outcome{Status: StatusRejected}, err
	}
	if !fill.Executed {
		c.logger.Warn().Str("decision_id", d.ID).Msg("execution collaborator rejected order")
		return Outcome{Status: StatusRejected}, nil
	}

	if v.Closing {
		_, err = c.riskMgr.CommitClose(ctx, c.accountID, equity, fill.RealizedPnL)
	} else {
		_, err = c.riskMgr.CommitFill(ctx, c.accountID, equity)
	}
	if err != nil {
		return Outcome{Status: StatusExecuted, Fill: &fill}, err
	}

	c.logger.Info().
		Str("decision_id", d.ID).
		Str("symbol", d.Symbol).
		Float64("fill_price", fill.Price).
		Float64("quantity", fill.Quantity).
		Msg("order executed")
	return Outcome{Status: StatusExecuted, Fill: &fill}, nil
}

// enqueue creates a pending approval, superseding any live approval for
// the same symbol. The superseded approval is logged and never executed.
func (c *Controller) enqueue(d *decision.Decision, v risk.Verdict, equity float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.pending[d.Symbol]; ok && old.Status == StatusPendingApproval {
		c.resolveLocked(old, StatusSuperseded)
		c.logger.Info().
			Str("approval_id", old.ID).
			Str("symbol", d.Symbol).
			Str("new_decision_id", d.ID).
			Msg("pending approval superseded by new decision")
	}

	now := c.now()
	pa := &PendingApproval{
		ID:        c.newID(),
		Decision:  d,
		Verdict:   v,
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.ApprovalTTL),
		Status:    StatusPendingApproval,
		Equity:    equity,
	}
	c.pending[d.Symbol] = pa
	c.byID[pa.ID] = pa

	c.logger.Info().
		Str("approval_id", pa.ID).
		Str("decision_id", d.ID).
		Str("symbol", d.Symbol).
		Time("expires_at", pa.ExpiresAt).
		Msg("pending approval created")
	return Outcome{Status: StatusPendingApproval, Approval: pa}
}

// Confirm executes a pending approval. An expired approval is refused
// even if the expiry sweep has not run yet.
func (c *Controller) Confirm(ctx context.Context, approvalID string) (Outcome, error) {
	c.mu.Lock()
	pa, ok := c.byID[approvalID]
	if !ok || pa.Status != StatusPendingApproval {
		c.mu.Unlock()
		return Outcome{}, ErrApprovalNotFound
	}
	if c.now().After(pa.ExpiresAt) {
		c.expireLocked(pa)
		c.mu.Unlock()
		return Outcome{Status: StatusExpired}, ErrApprovalNotFound
	}
	c.resolveLocked(pa, StatusExecuted)
	c.mu.Unlock()

	return c.execute(ctx, pa.Decision, pa.Verdict, pa.Equity)
}

// Cancel discards a pending approval. No risk state rollback is needed
// because nothing was committed.
func (c *Controller) Cancel(approvalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pa, ok := c.byID[approvalID]
	if !ok || pa.Status != StatusPendingApproval {
		return ErrApprovalNotFound
	}
	c.resolveLocked(pa, StatusCancelled)
	c.logger.Info().Str("approval_id", pa.ID).Msg("pending approval cancelled")
	return nil
}

// Pending lists the live approvals.
func (c *Controller) Pending() []*PendingApproval {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PendingApproval, 0, len(c.byID))
	for _, pa := range c.byID {
		out = append(out, pa)
	}
	return out
}

// ExpireDue marks every approval past its deadline as expired and
// returns them. Called by the sweep loop and by tests directly.
func (c *Controller) ExpireDue() []*PendingApproval {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var expired []*PendingApproval
	for _, pa := range c.byID {
		if now.After(pa.ExpiresAt) {
			expired = append(expired, pa)
		}
	}
	for _, pa := range expired {
		c.expireLocked(pa)
	}
	return expired
}

func (c *Controller) expireLocked(pa *PendingApproval) {
	c.resolveLocked(pa, StatusExpired)
	c.logger.Info().
		Str("approval_id", pa.ID).
		Str("symbol", pa.Decision.Symbol).
		Msg("pending approval expired, never executed")
}

// resolveLocked moves an approval to a terminal status, drops it from
// both indexes and records the outcome. Every approval resolves through
// here exactly once, so the counter matches the lifecycle rather than
// whichever surface triggered the transition.
func (c *Controller) resolveLocked(pa *PendingApproval, status Status) {
	pa.Status = status
	delete(c.byID, pa.ID)
	delete(c.pending, pa.Decision.Symbol)
	metrics.ApprovalsTotal.WithLabelValues(string(status)).Inc()
}

// Run sweeps expired approvals until the context is cancelled.
func (c *Controller) Run(ctx context.Context, sweepEvery time.Duration) {
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Second
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ExpireDue()
		}
	}
}
