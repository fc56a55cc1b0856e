package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/model"
	"rollcall/internal/roster"
)

var errTest = errors.New("store unavailable")

func newTestController(store *fakeStore) (*Controller, chan model.Observation, *time.Time) {
	cfg := config.DefaultConfig()
	in := make(chan model.Observation, 64)
	c := NewController(cfg, nil, store, nil, in)
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	c.recorder.now = c.now
	return c, in, &clock
}

func observe(in chan model.Observation, id model.Identity, name string, ts time.Time) {
	in <- model.Observation{Timestamp: ts, Identity: id, Name: name, Source: "test"}
}

func TestControllerEntryExitFlow(t *testing.T) {
	store := newFakeStore()
	c, in, clock := newTestController(store)

	// Two consecutive sightings are not enough.
	for i := 0; i < 2; i++ {
		observe(in, 42, "alice", *clock)
		c.tick()
		*clock = clock.Add(time.Second)
	}
	if got := store.entryCount(42); got != 0 {
		t.Fatalf("entry recorded before threshold: %d", got)
	}

	observe(in, 42, "alice", *clock)
	c.tick()
	*clock = clock.Add(time.Second)

	if got := store.entryCount(42); got != 1 {
		t.Fatalf("entries recorded: %d", got)
	}
	if stats := c.Stats(); stats.TotalEntries != 1 || stats.TotalExits != 0 {
		t.Fatalf("stats after entry: %+v", stats)
	}

	// Four silent ticks are still within the exit debounce.
	for i := 0; i < 4; i++ {
		c.tick()
		*clock = clock.Add(time.Second)
	}
	if got := store.exitCount(42); got != 0 {
		t.Fatalf("exit recorded before threshold: %d", got)
	}

	c.tick()
	if got := store.exitCount(42); got != 1 {
		t.Fatalf("exits recorded: %d", got)
	}
	if stats := c.Stats(); stats.TotalEntries != 1 || stats.TotalExits != 1 {
		t.Fatalf("stats after exit: %+v", stats)
	}

	log := c.RecentLog(0)
	if len(log) != 2 {
		t.Fatalf("log entries: %d", len(log))
	}
	if log[0].Action != model.DirectionEntered || log[1].Action != model.DirectionExited {
		t.Fatalf("log order wrong: %+v", log)
	}
	if log[0].Identity != 42 || log[0].Name != "alice" {
		t.Fatalf("log entry fields: %+v", log[0])
	}
}

func TestControllerOcclusionDoesNotFlap(t *testing.T) {
	store := newFakeStore()
	c, in, clock := newTestController(store)

	for i := 0; i < 3; i++ {
		observe(in, 42, "alice", *clock)
		c.tick()
		*clock = clock.Add(time.Second)
	}
	// Gone for four ticks, seen again, repeatedly. Never exits.
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 4; i++ {
			c.tick()
			*clock = clock.Add(time.Second)
		}
		observe(in, 42, "alice", *clock)
		c.tick()
		*clock = clock.Add(time.Second)
	}
	if got := store.exitCount(42); got != 0 {
		t.Fatalf("exit recorded during occlusion cycles: %d", got)
	}
	if got := store.entryCount(42); got != 1 {
		t.Fatalf("entries recorded: %d", got)
	}
}

func TestControllerStartStop(t *testing.T) {
	store := newFakeStore()
	c, _, _ := newTestController(store)

	if !c.Start() {
		t.Fatalf("start refused on idle controller")
	}
	if c.Start() {
		t.Fatalf("second start accepted while running")
	}
	if !c.Running() {
		t.Fatalf("not running after start")
	}
	if c.Stats().SessionID == "" {
		t.Fatalf("no session id assigned")
	}

	if !c.Stop() {
		t.Fatalf("stop refused on running controller")
	}
	if c.Stop() {
		t.Fatalf("second stop accepted while idle")
	}
	if c.Running() {
		t.Fatalf("still running after stop")
	}
	store.mu.Lock()
	calls := store.summaryCalls
	store.mu.Unlock()
	if calls != 1 {
		t.Fatalf("daily summary calls: %d", calls)
	}
}

func TestControllerResetClearsEverything(t *testing.T) {
	store := newFakeStore()
	c, in, clock := newTestController(store)

	for i := 0; i < 3; i++ {
		observe(in, 42, "alice", *clock)
		c.tick()
		*clock = clock.Add(time.Second)
	}
	if c.events.Len() == 0 {
		t.Fatalf("expected a log entry before reset")
	}

	c.Reset()
	if got := c.Stats(); got.TotalEntries != 0 || got.SessionID != "" {
		t.Fatalf("stats survived reset: %+v", got)
	}
	if c.events.Len() != 0 {
		t.Fatalf("event log survived reset")
	}
	if got := c.Status(); got.CurrentPresent != 0 {
		t.Fatalf("presence survived reset: %+v", got)
	}

	// Counters start from scratch: two sightings no longer suffice.
	observe(in, 42, "alice", *clock)
	c.tick()
	observe(in, 42, "alice", *clock)
	c.tick()
	if got := store.entryCount(42); got != 1 {
		t.Fatalf("entry recorded below threshold after reset: %d", got)
	}
}

func TestControllerRosterEnforcement(t *testing.T) {
	store := newFakeStore()
	store.students = []model.Student{{ID: 7, Name: "alice", StudentNo: "S-007"}}
	ros := roster.New(store, nil)
	if err := ros.Refresh(context.Background()); err != nil {
		t.Fatalf("roster refresh: %v", err)
	}

	cfg := config.DefaultConfig()
	in := make(chan model.Observation, 64)
	c := NewController(cfg, nil, store, ros, in)
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	c.recorder.now = c.now

	// Unenrolled identities are dropped before they reach tracking.
	for i := 0; i < 5; i++ {
		observe(in, 99, "mallory", clock)
		c.tick()
		clock = clock.Add(time.Second)
	}
	if got := store.entryCount(99); got != 0 {
		t.Fatalf("unenrolled identity recorded: %d entries", got)
	}
	if got := c.Status(); got.CurrentPresent != 0 {
		t.Fatalf("unenrolled identity tracked: %+v", got)
	}

	// Enrolled identities pass through, and a blank matcher name is filled
	// from the roster.
	for i := 0; i < 3; i++ {
		observe(in, 7, "", clock)
		c.tick()
		clock = clock.Add(time.Second)
	}
	if got := store.entryCount(7); got != 1 {
		t.Fatalf("enrolled identity entries: %d", got)
	}
	log := c.RecentLog(0)
	if len(log) != 1 {
		t.Fatalf("log entries: %d", len(log))
	}
	if log[0].Identity != 7 || log[0].Name != "alice" {
		t.Fatalf("roster name not applied: %+v", log[0])
	}
}

func TestControllerStatusAggregates(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.rows = []model.AttendanceRow{
		{Identity: 1, Name: "alice", EntryTime: &now, Status: "present"},
		{Identity: 2, Name: "bob", EntryTime: &now, Status: "present"},
		{Identity: 3, Name: "carol", Status: "absent"},
	}
	c, _, _ := newTestController(store)

	st := c.Status()
	if st.TotalStudents != 3 || st.PresentToday != 2 || st.AbsentToday != 1 {
		t.Fatalf("status counts: %+v", st)
	}
	if st.AttendancePercentage < 66.6 || st.AttendancePercentage > 66.7 {
		t.Fatalf("attendance percentage: %f", st.AttendancePercentage)
	}
	if st.SessionDuration != "00:00:00" {
		t.Fatalf("idle session duration: %q", st.SessionDuration)
	}

	sum := c.DailySummary()
	if sum.TotalStudents != 3 || sum.PresentCount != 2 || sum.AbsentCount != 1 {
		t.Fatalf("summary counts: %+v", sum)
	}
	if sum.Date != "2026-03-02" {
		t.Fatalf("summary date: %q", sum.Date)
	}
}

func TestControllerStatusDegradesOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.rowsErr = errTest
	c, in, clock := newTestController(store)

	for i := 0; i < 3; i++ {
		observe(in, 42, "alice", *clock)
		c.tick()
	}
	st := c.Status()
	if st.CurrentPresent != 1 || st.TotalEntriesSession != 1 {
		t.Fatalf("live counters lost on store error: %+v", st)
	}
	if st.TotalStudents != 0 || st.PresentToday != 0 {
		t.Fatalf("daily figures not zeroed on store error: %+v", st)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-5 * time.Second, "00:00:00"},
		{42 * time.Second, "00:00:42"},
		{90 * time.Minute, "01:30:00"},
		{25*time.Hour + 3*time.Minute + 7*time.Second, "25:03:07"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Fatalf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
