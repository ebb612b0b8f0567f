package risk

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreDayRollover(t *testing.T) {
	now := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.Commit(ctx, "acct", 10000, func(s State) State {
		s.DailyRealizedPnL = -300
		s.OpenTradeCount = 2
		s.EmergencyShutdown = true
		return s
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Crossing the UTC day boundary resets the daily figures but keeps
	// open trades and the shutdown flag.
	now = now.Add(2 * time.Hour)
	st, err := store.Snapshot(ctx, "acct", 9700)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.DailyRealizedPnL != 0 {
		t.Errorf("daily pnl after rollover = %v, want 0", st.DailyRealizedPnL)
	}
	if st.DayStartEquity != 9700 {
		t.Errorf("day start equity = %v, want 9700", st.DayStartEquity)
	}
	if st.OpenTradeCount != 2 {
		t.Errorf("open trades after rollover = %v, want 2", st.OpenTradeCount)
	}
	if !st.EmergencyShutdown {
		t.Error("shutdown flag must survive the day rollover")
	}
}

func TestRolloverKeepsAnchorOnEquitylessRead(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := store.Snapshot(ctx, "acct", 10000); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// First touch after midnight is an equity-less read, the way the
	// risk-state endpoint and the emergency switch read state. It must
	// not move the equity anchor to zero.
	now = now.Add(13 * time.Hour)
	st, err := store.Snapshot(ctx, "acct", 0)
	if err != nil {
		t.Fatalf("snapshot after midnight: %v", err)
	}
	if st.DayStartEquity != 10000 {
		t.Fatalf("day start equity after equity-less roll = %v, want 10000", st.DayStartEquity)
	}
	if st.DailyRealizedPnL != 0 {
		t.Errorf("daily pnl after rollover = %v, want 0", st.DailyRealizedPnL)
	}
}

func TestMemoryStoreSerializedCommits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const commits = 100
	var wg sync.WaitGroup
	for i := 0; i < commits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Commit(ctx, "acct", 10000, func(s State) State {
				s.OpenTradeCount++
				return s
			})
		}()
	}
	wg.Wait()

	st, err := store.Snapshot(ctx, "acct", 10000)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.OpenTradeCount != commits {
		t.Errorf("lost updates: open trades = %d, want %d", st.OpenTradeCount, commits)
	}
}

func TestMemoryStoreAccountsIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, _ = store.Commit(ctx, "a", 10000, func(s State) State {
		s.OpenTradeCount = 3
		return s
	})
	st, err := store.Snapshot(ctx, "b", 10000)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if st.OpenTradeCount != 0 {
		t.Errorf("account b sees account a's trades: %d", st.OpenTradeCount)
	}
}

func TestEmergencyTriggerAndReset(t *testing.T) {
	m := testManager(DefaultConfig())
	ctx := context.Background()

	if err := m.TriggerEmergency(ctx, "acct", "flash crash"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	st, _ := m.Store().Snapshot(ctx, "acct", 10000)
	if !st.EmergencyShutdown {
		t.Fatal("shutdown flag not set after trigger")
	}

	if err := m.ResetEmergency(ctx, "acct"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st, _ = m.Store().Snapshot(ctx, "acct", 10000)
	if st.EmergencyShutdown {
		t.Fatal("shutdown flag still set after reset")
	}
}

func TestCommitFillAndClose(t *testing.T) {
	m := testManager(DefaultConfig())
	ctx := context.Background()

	st, err := m.CommitFill(ctx, "acct", 10000)
	if err != nil {
		t.Fatalf("commit fill: %v", err)
	}
	if st.OpenTradeCount != 1 {
		t.Errorf("open trades = %d, want 1", st.OpenTradeCount)
	}

	st, err = m.CommitClose(ctx, "acct", 9900, -100)
	if err != nil {
		t.Fatalf("commit close: %v", err)
	}
	if st.OpenTradeCount != 0 {
		t.Errorf("open trades after close = %d, want 0", st.OpenTradeCount)
	}
	if st.DailyRealizedPnL != -100 {
		t.Errorf("daily pnl = %v, want -100", st.DailyRealizedPnL)
	}
}
