package timer

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Health is a computed diagnostic view of the engine's internal consistency
// and broadcast subsystem.
type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues"`
}

// Health inspects the engine for inconsistencies: an active flag without a
// tick schedule (or the reverse), a saturated broadcast error counter, and a
// broadcast subsystem that has gone silent for over a minute.
func (e *Engine) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()

	var issues []string
	if e.active && e.tickTimer == nil {
		issues = append(issues, "timer is active but no tick is scheduled")
	}
	if !e.active && e.tickTimer != nil {
		issues = append(issues, "tick is scheduled while timer is inactive")
	}
	if e.errorCount >= maxBroadcastErrors {
		issues = append(issues, fmt.Sprintf("broadcast error count reached limit (%d)", e.errorCount))
	}
	if e.everBroadcast {
		now := e.clock.Now()
		if e.lastDelivered.IsZero() || now.Sub(e.lastDelivered) > broadcastStaleAfter {
			issues = append(issues, "no successful broadcast in the last 60 seconds")
		}
	}

	return Health{Healthy: len(issues) == 0, Issues: issues}
}

// Recover attempts to bring the engine back to a consistent state: any stray
// tick schedule is cancelled, the broadcast error counter is cleared, and a
// countdown the engine believed active with time left is fully restarted.
// Attempts inside the cooldown window are rejected with
// ErrRecoveryThrottled.
func (e *Engine) Recover() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if !e.lastRecovery.IsZero() && now.Sub(e.lastRecovery) < recoveryCooldown {
		log.Warn().Time("last_attempt", e.lastRecovery).Msg("recovery rejected: cooldown in effect")
		return false, ErrRecoveryThrottled
	}
	e.lastRecovery = now

	wasActive := e.active
	remaining := e.remainingLocked(now)

	// Tear down whatever tick state exists, stray or not, and clear the
	// broadcast backoff so delivery attempts resume.
	if e.active {
		e.haltLocked(now)
	} else {
		e.cancelTicksLocked()
	}
	e.errorCount = 0

	if wasActive && remaining > 0 {
		e.remaining = remaining
		e.startLocked(now)
		e.broadcastLocked(StateEvent{Type: EventTimerStarted, TimeRemaining: e.remaining, IsActive: true})
		log.Info().Int("time_remaining", remaining).Msg("recovery restarted countdown")
	} else {
		e.lastUpdate = now
		log.Info().Int("time_remaining", e.remaining).Msg("recovery confirmed inactive state")
	}
	return true, nil
}
