package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/subathon-tools/subtimer/internal/timer"
)

// memStore is an in-memory Store for saver tests.
type memStore struct {
	mu    sync.Mutex
	saves []Snapshot
	fail  bool
}

func (m *memStore) Load() (*Snapshot, error) { return nil, ErrNoSnapshot }

func (m *memStore) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.saves = append(m.saves, snap)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func waitForSaves(t *testing.T, m *memStore, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("saves = %d, want at least %d", m.count(), n)
}

func testSnapshotSource() func() Snapshot {
	return func() Snapshot {
		return Snapshot{TimeRemaining: 42, Settings: timer.DefaultSettings()}
	}
}

func TestSaver_cadenceAndTrigger(t *testing.T) {
	clk := clockwork.NewFakeClock()
	store := &memStore{}
	saver := NewSaver(store, testSnapshotSource(), clk, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()

	clk.BlockUntil(1) // ticker armed
	clk.Advance(30 * time.Second)
	waitForSaves(t, store, 1)

	saver.Trigger()
	waitForSaves(t, store, 2)

	cancel()
	<-done
	// Final save on shutdown.
	if store.count() < 3 {
		t.Errorf("saves = %d, want final shutdown save", store.count())
	}

	store.mu.Lock()
	last := store.saves[len(store.saves)-1]
	store.mu.Unlock()
	if last.LastSaved != clk.Now().UnixMilli() {
		t.Errorf("lastSaved = %d, want stamped at save time %d", last.LastSaved, clk.Now().UnixMilli())
	}
}

func TestSaver_writeFailureIsAbsorbed(t *testing.T) {
	clk := clockwork.NewFakeClock()
	store := &memStore{fail: true}
	saver := NewSaver(store, testSnapshotSource(), clk, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(ctx)
		close(done)
	}()

	saver.Trigger()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("saver did not survive store failures")
	}
}
