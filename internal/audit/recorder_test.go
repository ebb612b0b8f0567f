package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
)

func record(id string, ts time.Time) Record {
	return Record{
		Decision:  &decision.Decision{ID: id, Symbol: "BTCUSDT"},
		Outcome:   autonomy.StatusExecuted,
		CreatedAt: ts,
	}
}

func TestMemoryRecorderIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder(10)
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := r.Record(ctx, record("d-1", ts)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := r.Record(ctx, record("d-1", ts.Add(time.Minute))); err != nil {
		t.Fatalf("Record retry: %v", err)
	}

	got, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("duplicate decision id stored twice: %d records", len(got))
	}
	if !got[0].CreatedAt.Equal(ts) {
		t.Error("retry overwrote the original record")
	}
}

func TestMemoryRecorderRecentOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder(10)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := r.Record(ctx, record(fmt.Sprintf("d-%d", i), ts.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	got, err := r.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit ignored: got %d records", len(got))
	}
	for i, want := range []string{"d-4", "d-3", "d-2"} {
		if got[i].Decision.ID != want {
			t.Errorf("Recent[%d] = %s, want %s (newest first)", i, got[i].Decision.ID, want)
		}
	}
}

func TestMemoryRecorderBounded(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder(3)
	ts := time.Now()
	for i := 0; i < 8; i++ {
		_ = r.Record(ctx, record(fmt.Sprintf("d-%d", i), ts))
	}

	got, _ := r.Recent(ctx, 100)
	if len(got) != 3 {
		t.Fatalf("ring holds %d records, want 3", len(got))
	}
	if got[0].Decision.ID != "d-7" {
		t.Errorf("newest record = %s, want d-7", got[0].Decision.ID)
	}
}
