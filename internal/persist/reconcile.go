package persist

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subathon-tools/subtimer/internal/timer"
)

// maxResumeGap bounds how long a process may have been down for an active
// snapshot to still be trusted to resume. Beyond it the countdown loads
// frozen and is never auto-started.
const maxResumeGap = 5 * time.Minute

// decision is the outcome of reconciling a snapshot against elapsed wall
// clock: the remaining seconds to seed and whether the countdown resumes.
type decision struct {
	remaining int
	autoStart bool
}

func reconcileDecision(snap *Snapshot, now time.Time) decision {
	if !snap.IsActive {
		return decision{remaining: snap.TimeRemaining}
	}

	gap := now.Sub(snap.SavedAt())
	if gap < 0 || gap >= maxResumeGap {
		log.Info().Dur("gap", gap).Msg("snapshot too old to resume, loading frozen")
		return decision{remaining: snap.TimeRemaining}
	}

	adjusted := snap.TimeRemaining - int(gap/time.Second)
	if adjusted <= 0 {
		log.Info().Dur("gap", gap).Msg("countdown expired during downtime")
		return decision{remaining: 0}
	}
	return decision{remaining: adjusted, autoStart: true}
}

// Reconcile seeds the engine from the store's snapshot. An active snapshot
// younger than five minutes resumes as if the countdown had run through the
// gap; anything stale loads frozen; a missing or corrupt snapshot means a
// fresh start and is only worth a log line.
func Reconcile(store Store, eng *timer.Engine, now time.Time) {
	snap, err := store.Load()
	if err != nil {
		log.Info().Err(err).Msg("no usable snapshot, starting fresh")
		return
	}

	d := reconcileDecision(snap, now)
	eng.Restore(d.remaining, snap.Settings, d.autoStart)
	log.Info().
		Int("time_remaining", d.remaining).
		Bool("resumed", d.autoStart).
		Time("saved_at", snap.SavedAt()).
		Msg("snapshot reconciled")
}
