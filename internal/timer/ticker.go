package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Tick scheduling. Each tick is a one-shot timer: when it fires, the true
// remaining time is recomputed from the absolute start timestamp and the
// next wake-up is scheduled at one second minus the observed drift, so the
// cadence self-corrects toward one tick per second regardless of scheduler
// jitter. A fixed repeating ticker would accumulate that jitter over a
// multi-day run.

// scheduleTickLocked arms the next tick for the given generation. Caller
// holds the mutex. Ticks from a superseded generation are ignored when they
// fire, and stopCh releases the waiting goroutine when the run is cancelled.
func (e *Engine) scheduleTickLocked(gen uint64, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	t := e.clock.NewTimer(delay)
	e.tickTimer = t
	stop := e.stopCh

	go func() {
		select {
		case <-t.Chan():
			e.onTick(gen)
		case <-stop:
			stopAndDrainTimer(t)
		}
	}()
}

// onTick runs once per scheduled wake-up.
func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.tickGen || !e.active {
		// A stale tick from a cancelled run must never resurrect a stopped
		// countdown.
		return
	}

	now := e.clock.Now()
	elapsed := now.Sub(e.startedAt)
	remaining := e.baseRemaining - int(elapsed/time.Second)

	if remaining <= 0 {
		e.remaining = 0
		e.active = false
		e.startedAt = time.Time{}
		e.baseRemaining = 0
		e.cancelTicksLocked()
		e.lastUpdate = now

		log.Info().Msg("countdown reached zero")
		e.broadcastLocked(StateEvent{Type: EventTimerEnded, TimeRemaining: 0, IsActive: false})
		e.requestSaveLocked()
		return
	}

	e.remaining = remaining
	e.lastUpdate = now

	// Next wake-up at the next whole-second boundary since start.
	drift := elapsed % time.Second
	e.scheduleTickLocked(gen, time.Second-drift)

	e.broadcastLocked(StateEvent{Type: EventTimerUpdate, TimeRemaining: remaining, IsActive: true})
}

// cancelTicksLocked deterministically stops the tick schedule: the
// generation bump invalidates any tick already in flight and the pending
// timer is stopped and drained. Caller holds the mutex.
func (e *Engine) cancelTicksLocked() {
	e.tickGen++
	if e.tickTimer != nil {
		stopAndDrainTimer(e.tickTimer)
		e.tickTimer = nil
	}
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired, per the time.Timer.Stop contract.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
