package track

import (
	"testing"
	"time"

	"rollcall/internal/model"
)

func TestEntryRequiresThreshold(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	for i := 0; i < 2; i++ {
		tr.Observe(42, "alice", true, now)
		if events := tr.DrainTransitions(now); len(events) != 0 {
			t.Fatalf("unexpected transition after %d frames", i+1)
		}
	}
	tr.Observe(42, "alice", true, now)
	events := tr.DrainTransitions(now)
	if len(events) != 1 {
		t.Fatalf("expected one transition, got %d", len(events))
	}
	if events[0].Identity != 42 || events[0].Direction != model.DirectionEntered {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if tr.PresentCount() != 1 {
		t.Fatalf("present count: %d", tr.PresentCount())
	}
}

func TestNoRepeatedEntered(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	for i := 0; i < 10; i++ {
		tr.Observe(42, "alice", true, now)
		for _, ev := range tr.DrainTransitions(now) {
			if i >= 3 && ev.Direction == model.DirectionEntered {
				t.Fatalf("second entered without intervening exited at frame %d", i+1)
			}
		}
	}
}

func TestExitRequiresPresence(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	// An identity that was never seen accumulates nothing.
	tr.Observe(7, "", false, now)
	if len(tr.Snapshot()) != 0 {
		t.Fatalf("absence created tracking state")
	}
	// Seen once then gone: never crossed entry threshold, so no exit either.
	tr.Observe(7, "bob", true, now)
	for i := 0; i < 10; i++ {
		tr.Observe(7, "", false, now)
	}
	if events := tr.DrainTransitions(now); len(events) != 0 {
		t.Fatalf("exit emitted for identity that never entered: %+v", events)
	}
}

func TestExitAfterThreshold(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	for i := 0; i < 3; i++ {
		tr.Observe(42, "alice", true, now)
	}
	if events := tr.DrainTransitions(now); len(events) != 1 {
		t.Fatalf("expected entered, got %d events", len(events))
	}
	for i := 0; i < 4; i++ {
		tr.Observe(42, "", false, now)
		if events := tr.DrainTransitions(now); len(events) != 0 {
			t.Fatalf("premature exit after %d absent frames", i+1)
		}
	}
	tr.Observe(42, "", false, now)
	events := tr.DrainTransitions(now)
	if len(events) != 1 || events[0].Direction != model.DirectionExited {
		t.Fatalf("expected exited, got %+v", events)
	}
	if tr.PresentCount() != 0 {
		t.Fatalf("present count after exit: %d", tr.PresentCount())
	}
}

func TestCountersMutuallyExclusive(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	signals := []bool{true, true, false, true, false, false, true}
	for _, seen := range signals {
		tr.Observe(42, "alice", seen, now)
		tr.DrainTransitions(now)
		for _, s := range tr.Snapshot() {
			if s.PositiveFrames != 0 && s.NegativeFrames != 0 {
				t.Fatalf("both counters nonzero: %+v", s)
			}
		}
	}
}

func TestSightingResetsAbsenceRun(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	for i := 0; i < 3; i++ {
		tr.Observe(42, "alice", true, now)
	}
	tr.DrainTransitions(now)
	// Brief occlusion must not accumulate toward exit.
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 4; i++ {
			tr.Observe(42, "", false, now)
		}
		tr.Observe(42, "alice", true, now)
		if events := tr.DrainTransitions(now); len(events) != 0 {
			t.Fatalf("flapped on cycle %d: %+v", cycle, events)
		}
	}
	if tr.PresentCount() != 1 {
		t.Fatalf("present count: %d", tr.PresentCount())
	}
}

func TestResetClearsCounters(t *testing.T) {
	tr := New(3, 5)
	now := time.Now()
	tr.Observe(42, "alice", true, now)
	tr.Observe(42, "alice", true, now)
	tr.Reset()
	tr.Observe(42, "alice", true, now)
	if events := tr.DrainTransitions(now); len(events) != 0 {
		t.Fatalf("residual counters survived reset: %+v", events)
	}
	tr.Observe(42, "alice", true, now)
	tr.Observe(42, "alice", true, now)
	if events := tr.DrainTransitions(now); len(events) != 1 {
		t.Fatalf("expected entered after full threshold, got %d events", len(events))
	}
}

func TestMarkTickImplicitAbsence(t *testing.T) {
	tr := New(2, 2)
	now := time.Now()
	both := map[model.Identity]string{1: "alice", 2: "bob"}
	tr.MarkTick(both, now)
	tr.MarkTick(both, now)
	events := tr.DrainTransitions(now)
	if len(events) != 2 {
		t.Fatalf("expected two entered, got %d", len(events))
	}
	// Only alice keeps showing up; bob's absence is implicit.
	onlyAlice := map[model.Identity]string{1: "alice"}
	tr.MarkTick(onlyAlice, now)
	tr.MarkTick(onlyAlice, now)
	events = tr.DrainTransitions(now)
	if len(events) != 1 {
		t.Fatalf("expected one exited, got %d", len(events))
	}
	if events[0].Identity != 2 || events[0].Direction != model.DirectionExited {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestDrainOrderIsSorted(t *testing.T) {
	tr := New(1, 1)
	now := time.Now()
	tr.MarkTick(map[model.Identity]string{9: "i", 3: "c", 7: "g", 1: "a"}, now)
	events := tr.DrainTransitions(now)
	if len(events) != 4 {
		t.Fatalf("expected four events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].Identity >= events[i].Identity {
			t.Fatalf("events not ordered by identity: %+v", events)
		}
	}
}
