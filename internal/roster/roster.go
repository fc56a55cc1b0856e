// Package roster holds the set of enrolled students the matcher is allowed
// to report. Observations for identities outside the roster are dropped
// before they reach tracking when enforcement is on.
package roster

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/storage"
)

type Roster struct {
	store  storage.Store
	logger *slog.Logger
	byID   atomic.Value // map[model.Identity]model.Student
}

func New(store storage.Store, logger *slog.Logger) *Roster {
	r := &Roster{store: store, logger: logger}
	r.byID.Store(map[model.Identity]model.Student{})
	return r
}

func (r *Roster) Refresh(ctx context.Context) error {
	students, err := r.store.Students(ctx)
	if err != nil {
		return err
	}
	byID := make(map[model.Identity]model.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	r.byID.Store(byID)
	return nil
}

func (r *Roster) Lookup(id model.Identity) (model.Student, bool) {
	st, ok := r.set()[id]
	return st, ok
}

func (r *Roster) Size() int {
	return len(r.set())
}

// Students returns a copy of the enrolled set in map order; callers that
// need a stable order sort it themselves.
func (r *Roster) Students() []model.Student {
	set := r.set()
	out := make([]model.Student, 0, len(set))
	for _, st := range set {
		out = append(out, st)
	}
	return out
}

func (r *Roster) set() map[model.Identity]model.Student {
	if v := r.byID.Load(); v != nil {
		return v.(map[model.Identity]model.Student)
	}
	return nil
}

// Watch refreshes the roster on a fixed interval until ctx is done.
func (r *Roster) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := r.Refresh(refreshCtx)
			cancel()
			if err != nil && r.logger != nil {
				r.logger.Warn("roster refresh failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
