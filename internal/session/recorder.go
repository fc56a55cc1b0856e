package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/storage"
)

const storeCallTimeout = 5 * time.Second

// Recorder gates transitions behind a per-identity, per-direction cooldown
// and forwards accepted ones to the store. The cooldown mark and the
// acceptance callback fire only after the store confirms the write, so a
// refused duplicate never consumes the cooldown window.
type Recorder struct {
	store  storage.Store
	cool   *Cooldown
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	entryCooldown time.Duration
	exitCooldown  time.Duration

	onAccept func(model.TransitionEvent)
}

func NewRecorder(store storage.Store, logger *slog.Logger, entryCooldown, exitCooldown time.Duration) *Recorder {
	return &Recorder{
		store:         store,
		cool:          NewCooldown(),
		logger:        logger,
		now:           time.Now,
		entryCooldown: entryCooldown,
		exitCooldown:  exitCooldown,
	}
}

func (r *Recorder) SetCooldowns(entry, exit time.Duration) {
	r.mu.Lock()
	r.entryCooldown = entry
	r.exitCooldown = exit
	r.mu.Unlock()
}

func (r *Recorder) cooldownFor(dir model.Direction) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dir == model.DirectionEntered {
		return r.entryCooldown
	}
	return r.exitCooldown
}

// Apply returns whether the event was accepted and durably recorded.
func (r *Recorder) Apply(ev model.TransitionEvent) bool {
	now := r.now()
	key := cooldownKey(ev.Direction, ev.Identity)
	if !r.cool.Ready(key, r.cooldownFor(ev.Direction), now) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	var recorded bool
	var err error
	switch ev.Direction {
	case model.DirectionEntered:
		recorded, err = r.store.RecordEntry(ctx, ev.Identity)
	case model.DirectionExited:
		recorded, err = r.store.RecordExit(ctx, ev.Identity)
	default:
		return false
	}
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("attendance write failed",
				"identity", ev.Identity,
				"direction", ev.Direction,
				"err", err,
			)
		}
		return false
	}
	if !recorded {
		// Already on record for today; normal, not an error.
		return false
	}

	r.cool.Mark(key, now)
	if r.onAccept != nil {
		r.onAccept(ev)
	}
	return true
}

func (r *Recorder) ResetCooldowns() {
	r.cool.Reset()
}
