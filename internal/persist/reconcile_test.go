package persist

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/subathon-tools/subtimer/internal/timer"
)

func TestReconcileDecision(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		snap      Snapshot
		wantRem   int
		wantStart bool
	}{
		{
			name:      "active saved 30s ago resumes adjusted",
			snap:      Snapshot{TimeRemaining: 100, IsActive: true, LastSaved: now.Add(-30 * time.Second).UnixMilli()},
			wantRem:   70,
			wantStart: true,
		},
		{
			name:    "active saved six minutes ago loads frozen",
			snap:    Snapshot{TimeRemaining: 100, IsActive: true, LastSaved: now.Add(-6 * time.Minute).UnixMilli()},
			wantRem: 100,
		},
		{
			name:    "active but expired during downtime",
			snap:    Snapshot{TimeRemaining: 20, IsActive: true, LastSaved: now.Add(-90 * time.Second).UnixMilli()},
			wantRem: 0,
		},
		{
			name:    "inactive loads as-is",
			snap:    Snapshot{TimeRemaining: 500, IsActive: false, LastSaved: now.Add(-time.Hour).UnixMilli()},
			wantRem: 500,
		},
		{
			name:    "snapshot from the future loads frozen",
			snap:    Snapshot{TimeRemaining: 100, IsActive: true, LastSaved: now.Add(time.Minute).UnixMilli()},
			wantRem: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reconcileDecision(&tt.snap, now)
			if d.remaining != tt.wantRem || d.autoStart != tt.wantStart {
				t.Errorf("decision = {remaining:%d autoStart:%v}, want {%d %v}",
					d.remaining, d.autoStart, tt.wantRem, tt.wantStart)
			}
		})
	}
}

func TestReconcile_resumesEngine(t *testing.T) {
	clk := clockwork.NewFakeClock()
	eng := timer.NewEngine(clk)

	store := openTestStore(t)
	settings := timer.DefaultSettings()
	settings.Tier2SubTime = 777
	mustSave(t, store, Snapshot{
		TimeRemaining: 100,
		IsActive:      true,
		Settings:      settings,
		LastSaved:     clk.Now().Add(-30 * time.Second).UnixMilli(),
	})

	Reconcile(store, eng, clk.Now())

	st := eng.GetState()
	if !st.IsActive {
		t.Fatal("engine should be running after resume")
	}
	if st.TimeRemaining < 69 || st.TimeRemaining > 71 {
		t.Errorf("remaining = %d, want ~70", st.TimeRemaining)
	}
	if st.Settings.Tier2SubTime != 777 {
		t.Errorf("settings not restored: tier2 = %d", st.Settings.Tier2SubTime)
	}

	// The resumed countdown must actually tick.
	clk.Advance(5 * time.Second)
	if got := eng.GetState().TimeRemaining; got > 66 {
		t.Errorf("resumed countdown did not advance: remaining = %d", got)
	}
}

func TestReconcile_staleSnapshotStaysStopped(t *testing.T) {
	clk := clockwork.NewFakeClock()
	eng := timer.NewEngine(clk)

	store := openTestStore(t)
	mustSave(t, store, Snapshot{
		TimeRemaining: 100,
		IsActive:      true,
		Settings:      timer.DefaultSettings(),
		LastSaved:     clk.Now().Add(-6 * time.Minute).UnixMilli(),
	})

	Reconcile(store, eng, clk.Now())

	st := eng.GetState()
	if st.IsActive {
		t.Error("stale snapshot must not auto-start")
	}
	if st.TimeRemaining != 100 {
		t.Errorf("remaining = %d, want unchanged 100", st.TimeRemaining)
	}
}

func TestReconcile_missingSnapshotStartsFresh(t *testing.T) {
	clk := clockwork.NewFakeClock()
	eng := timer.NewEngine(clk)
	store := openTestStore(t)

	Reconcile(store, eng, clk.Now())

	st := eng.GetState()
	if st.IsActive || st.TimeRemaining != timer.DefaultDuration {
		t.Errorf("fresh start expected, got %+v", st)
	}
}

func TestBoltStore_roundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Load on empty store = %v, want ErrNoSnapshot", err)
	}

	in := Snapshot{TimeRemaining: 1234, IsActive: true, Settings: timer.DefaultSettings(), LastSaved: 1700000000000}
	mustSave(t, store, in)

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.TimeRemaining != in.TimeRemaining || out.IsActive != in.IsActive || out.LastSaved != in.LastSaved {
		t.Errorf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := OpenBolt(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustSave(t *testing.T, store Store, snap Snapshot) {
	t.Helper()
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
