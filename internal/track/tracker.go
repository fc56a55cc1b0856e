package track

import (
	"sort"
	"sync"
	"time"

	"rollcall/internal/model"
)

// State is the per-identity debounce record. Exactly one of PositiveFrames
// and NegativeFrames is nonzero at any time.
type State struct {
	Identity       model.Identity
	Name           string
	Present        bool
	PositiveFrames int
	NegativeFrames int
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Tracker turns a per-tick stream of seen/not-seen signals into stable
// presence flips. State is created lazily on first positive sighting and
// only dropped by Reset. All mutation happens on the polling worker; the
// mutex exists so snapshot reads can come from other goroutines.
type Tracker struct {
	mu             sync.Mutex
	entryThreshold int
	exitThreshold  int
	states         map[model.Identity]*State
}

func New(entryThreshold, exitThreshold int) *Tracker {
	if entryThreshold < 1 {
		entryThreshold = 1
	}
	if exitThreshold < 1 {
		exitThreshold = 1
	}
	return &Tracker{
		entryThreshold: entryThreshold,
		exitThreshold:  exitThreshold,
		states:         make(map[model.Identity]*State),
	}
}

func (t *Tracker) SetThresholds(entry, exit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry >= 1 {
		t.entryThreshold = entry
	}
	if exit >= 1 {
		t.exitThreshold = exit
	}
}

// Observe records one frame-level signal for an identity. Absence signals
// for identities never seen are ignored so an identity cannot accumulate
// exit bookkeeping before it ever entered.
func (t *Tracker) Observe(id model.Identity, name string, seen bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observeLocked(id, name, seen, now)
}

func (t *Tracker) observeLocked(id model.Identity, name string, seen bool, now time.Time) {
	s, ok := t.states[id]
	if !ok {
		if !seen {
			return
		}
		s = &State{Identity: id, Name: name, FirstSeen: now}
		t.states[id] = s
	}
	if seen {
		if name != "" {
			s.Name = name
		}
		s.LastSeen = now
		s.PositiveFrames++
		s.NegativeFrames = 0
	} else {
		s.NegativeFrames++
		s.PositiveFrames = 0
	}
}

// MarkTick applies one polling tick worth of sightings: every identity in
// the map is seen, every other tracked identity is implicitly not seen.
func (t *Tracker) MarkTick(sightings map[model.Identity]string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.states {
		if _, seen := sightings[id]; !seen {
			t.observeLocked(id, "", false, now)
		}
	}
	for id, name := range sightings {
		t.observeLocked(id, name, true, now)
	}
}

// DrainTransitions flips identities whose counters crossed a threshold and
// returns the resulting events, at most one per identity. Identities are
// visited in sorted order so output is deterministic.
func (t *Tracker) DrainTransitions(now time.Time) []model.TransitionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.TransitionEvent
	for _, id := range t.sortedIdentitiesLocked() {
		s := t.states[id]
		switch {
		case !s.Present && s.PositiveFrames >= t.entryThreshold:
			s.Present = true
			out = append(out, model.TransitionEvent{
				Timestamp: now,
				Identity:  id,
				Name:      s.Name,
				Direction: model.DirectionEntered,
			})
		case s.Present && s.NegativeFrames >= t.exitThreshold:
			s.Present = false
			out = append(out, model.TransitionEvent{
				Timestamp: now,
				Identity:  id,
				Name:      s.Name,
				Direction: model.DirectionExited,
			})
		}
	}
	return out
}

func (t *Tracker) sortedIdentitiesLocked() []model.Identity {
	ids := make([]model.Identity, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[model.Identity]*State)
}

func (t *Tracker) PresentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, s := range t.states {
		if s.Present {
			count++
		}
	}
	return count
}

// Present returns the identities currently marked present.
func (t *Tracker) Present() map[model.Identity]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Identity]struct{})
	for id, s := range t.states {
		if s.Present {
			out[id] = struct{}{}
		}
	}
	return out
}

// Snapshot returns copies of all tracking states, sorted by identity.
func (t *Tracker) Snapshot() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, 0, len(t.states))
	for _, id := range t.sortedIdentitiesLocked() {
		out = append(out, *t.states[id])
	}
	return out
}
