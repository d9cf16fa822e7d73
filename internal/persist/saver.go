package persist

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSaveInterval is the cadence snapshots are written on when the
// engine is quiet.
const DefaultSaveInterval = 30 * time.Second

// Saver writes snapshots on a fixed cadence, on demand via Trigger, and once
// more at shutdown. Write failures are logged and never propagate.
type Saver struct {
	store    Store
	state    func() Snapshot
	clock    clockwork.Clock
	interval time.Duration
	trigger  chan struct{}
}

// NewSaver builds a saver around a snapshot source. interval <= 0 selects
// DefaultSaveInterval.
func NewSaver(store Store, state func() Snapshot, clock clockwork.Clock, interval time.Duration) *Saver {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	return &Saver{
		store:    store,
		state:    state,
		clock:    clock,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a save without blocking the caller. Coalesces with any
// already-pending request; safe to call from inside the engine's lock.
func (s *Saver) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run loops until the context is cancelled, then writes a final snapshot.
func (s *Saver) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("snapshot saver started")
	for {
		select {
		case <-ctx.Done():
			s.save()
			log.Info().Msg("snapshot saver stopped")
			return
		case <-ticker.Chan():
			s.save()
		case <-s.trigger:
			s.save()
		}
	}
}

func (s *Saver) save() {
	snap := s.state()
	snap.LastSaved = s.clock.Now().UnixMilli()
	if err := s.store.Save(snap); err != nil {
		log.Warn().Err(err).Msg("snapshot write failed")
	}
}
