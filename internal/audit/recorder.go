package audit

import (
	"context"
	"sync"
	"time"

	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/risk"
)

// Record is one completed decision cycle: the fused decision, its risk
// verdict and the autonomy outcome. Records are immutable and keyed by
// decision id, so delivery can be retried without re-running the cycle.
type Record struct {
	Decision  *decision.Decision `json:"decision"`
	Verdict   risk.Verdict       `json:"verdict"`
	Outcome   autonomy.Status    `json:"outcome"`
	CreatedAt time.Time          `json:"created_at"`
}

// Recorder persists decision records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// MemoryRecorder keeps the most recent records in a bounded ring. Used
// in backtests and whenever no database is configured.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records []Record
	max     int
}

func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRecorder{max: max}
}

func (m *MemoryRecorder) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.Decision.ID == rec.Decision.ID {
			return nil
		}
	}
	m.records = append(m.records, rec)
	if len(m.records) > m.max {
		m.records = m.records[len(m.records)-m.max:]
	}
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]Record, limit)
	// Newest first.
	for i := 0; i < limit; i++ {
		out[i] = m.records[len(m.records)-1-i]
	}
	return out, nil
}
