package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/config"
	"rollcall/internal/model"
	"rollcall/internal/roster"
	"rollcall/internal/storage"
	"rollcall/internal/track"
)

// Controller owns the tracking session lifecycle: it runs the polling
// worker while a session is active and serves snapshot reads to the API.
// Session stats and the event log are mutated only on the worker's
// acceptance path; every read surface copies out under a lock.
type Controller struct {
	logger   *slog.Logger
	store    storage.Store
	roster   *roster.Roster
	in       <-chan model.Observation
	tracker  *track.Tracker
	recorder *Recorder
	events   *EventLog
	cfg      atomic.Value // *config.Config
	now      func() time.Time

	mu           sync.Mutex
	running      bool
	stats        model.SessionStats
	lastDuration time.Duration
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewController(cfg *config.Config, logger *slog.Logger, store storage.Store, ros *roster.Roster, in <-chan model.Observation) *Controller {
	c := &Controller{
		logger:  logger,
		store:   store,
		roster:  ros,
		in:      in,
		tracker: track.New(cfg.Tracking.EntryThreshold, cfg.Tracking.ExitThreshold),
		events:  NewEventLog(cfg.Tracking.LogCapacity),
		now:     time.Now,
	}
	c.cfg.Store(cfg)
	c.recorder = NewRecorder(store, logger, cfg.Tracking.EntryCooldown, cfg.Tracking.ExitCooldown)
	c.recorder.onAccept = c.noteAccepted
	return c
}

func (c *Controller) config() *config.Config {
	if v := c.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// UpdateConfig applies the tracking knobs that can change while running.
func (c *Controller) UpdateConfig(cfg *config.Config) {
	c.cfg.Store(cfg)
	c.tracker.SetThresholds(cfg.Tracking.EntryThreshold, cfg.Tracking.ExitThreshold)
	c.recorder.SetCooldowns(cfg.Tracking.EntryCooldown, cfg.Tracking.ExitCooldown)
}

// Start begins a tracking session. Returns false if one is already running.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return false
	}
	c.tracker.Reset()
	c.stats = model.SessionStats{
		SessionID: uuid.NewString(),
		StartTime: c.now(),
	}
	c.lastDuration = 0
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.running = true
	sessionID := c.stats.SessionID
	c.mu.Unlock()

	go c.run(ctx, done)
	if c.logger != nil {
		c.logger.Info("attendance tracking started", "session_id", sessionID)
	}
	return true
}

// Stop ends the running session. The worker join is best effort: after the
// configured stop timeout the call proceeds even if the worker is still
// mid-iteration. Returns false if no session is running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return false
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	start := c.stats.StartTime
	sessionID := c.stats.SessionID
	c.mu.Unlock()

	cancel()
	timeout := c.config().Tracking.StopTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		if c.logger != nil {
			c.logger.Warn("tracking worker did not stop within timeout", "timeout", timeout)
		}
	}

	ctx, cancelSummary := context.WithTimeout(context.Background(), storeCallTimeout)
	if err := c.store.UpdateDailySummary(ctx); err != nil && c.logger != nil {
		c.logger.Warn("daily summary update failed", "err", err)
	}
	cancelSummary()

	duration := c.now().Sub(start)
	c.mu.Lock()
	c.lastDuration = duration
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("attendance tracking stopped",
			"session_id", sessionID,
			"duration", duration.Round(time.Second).String(),
		)
	}
	return true
}

// Reset stops any running session and clears stats, the event log, cooldown
// state and all tracking counters.
func (c *Controller) Reset() {
	c.Stop()
	c.mu.Lock()
	c.stats = model.SessionStats{}
	c.lastDuration = 0
	c.mu.Unlock()
	c.events.Clear()
	c.recorder.ResetCooldowns()
	c.tracker.Reset()
	if c.logger != nil {
		c.logger.Info("session reset")
	}
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := c.config().Tracking.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick drains everything the matcher produced since the previous tick,
// feeds the tracker and applies the resulting transitions in order.
func (c *Controller) tick() {
	sightings := c.drainObservations()
	now := c.now()
	c.tracker.MarkTick(sightings, now)
	for _, ev := range c.tracker.DrainTransitions(now) {
		c.recorder.Apply(ev)
	}
}

func (c *Controller) drainObservations() map[model.Identity]string {
	sightings := make(map[model.Identity]string)
	cfg := c.config()
	for {
		select {
		case obs := <-c.in:
			if c.roster != nil && cfg.Roster.Enforce {
				st, known := c.roster.Lookup(obs.Identity)
				if !known {
					if c.logger != nil {
						c.logger.Debug("dropping observation for unknown identity",
							"identity", obs.Identity, "source", obs.Source)
					}
					continue
				}
				if obs.Name == "" {
					obs.Name = st.Name
				}
			}
			sightings[obs.Identity] = obs.Name
		default:
			return sightings
		}
	}
}

func (c *Controller) noteAccepted(ev model.TransitionEvent) {
	c.mu.Lock()
	switch ev.Direction {
	case model.DirectionEntered:
		c.stats.TotalEntries++
	case model.DirectionExited:
		c.stats.TotalExits++
	}
	sessionID := c.stats.SessionID
	c.mu.Unlock()

	c.events.Append(model.LogEntry{
		Timestamp: ev.Timestamp,
		SessionID: sessionID,
		Identity:  ev.Identity,
		Name:      ev.Name,
		Action:    ev.Direction,
	})
	if c.logger != nil {
		c.logger.Info("attendance recorded",
			"identity", ev.Identity,
			"name", ev.Name,
			"action", ev.Direction,
		)
	}
}

// Status assembles the dashboard snapshot. Store failures degrade to zeroed
// daily figures rather than an error; the session counters are always live.
func (c *Controller) Status() model.Status {
	c.mu.Lock()
	running := c.running
	stats := c.stats
	lastDuration := c.lastDuration
	c.mu.Unlock()

	st := model.Status{
		Tracking:            running,
		SessionID:           stats.SessionID,
		CurrentPresent:      c.tracker.PresentCount(),
		TotalEntriesSession: stats.TotalEntries,
		TotalExitsSession:   stats.TotalExits,
	}

	duration := lastDuration
	if running {
		duration = c.now().Sub(stats.StartTime)
	}
	st.SessionDuration = formatDuration(duration)

	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	rows, err := c.store.TodayAttendance(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("today attendance query failed", "err", err)
		}
		return st
	}
	st.TotalStudents = len(rows)
	for _, row := range rows {
		if row.Status == "present" {
			st.PresentToday++
		}
	}
	st.AbsentToday = st.TotalStudents - st.PresentToday
	if st.TotalStudents > 0 {
		st.AttendancePercentage = float64(st.PresentToday) / float64(st.TotalStudents) * 100
	}
	return st
}

func (c *Controller) RecentLog(limit int) []model.LogEntry {
	if limit <= 0 {
		limit = 100
	}
	return c.events.List(limit)
}

func (c *Controller) LogSince(ts time.Time) []model.LogEntry {
	return c.events.Since(ts)
}

// DailySummary computes today's summary from the attendance rows rather
// than the persisted daily_summary table so it is correct mid-session.
func (c *Controller) DailySummary() model.DailySummary {
	summary := model.DailySummary{Date: c.now().Format("2006-01-02")}
	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	rows, err := c.store.TodayAttendance(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("today attendance query failed", "err", err)
		}
		return summary
	}
	summary.TotalStudents = len(rows)
	for _, row := range rows {
		if row.Status == "present" {
			summary.PresentCount++
		}
	}
	summary.AbsentCount = summary.TotalStudents - summary.PresentCount
	if summary.TotalStudents > 0 {
		summary.AttendancePercentage = float64(summary.PresentCount) / float64(summary.TotalStudents) * 100
	}
	return summary
}

// CurrentRoster merges the enrolled roster with the live presence set.
func (c *Controller) CurrentRoster() []model.RosterRow {
	if c.roster == nil {
		return nil
	}
	present := c.tracker.Present()
	students := c.roster.Students()
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	out := make([]model.RosterRow, 0, len(students))
	for _, st := range students {
		_, isPresent := present[st.ID]
		status := "absent"
		if isPresent {
			status = "present"
		}
		out = append(out, model.RosterRow{
			Identity:  st.ID,
			Name:      st.Name,
			StudentNo: st.StudentNo,
			Present:   isPresent,
			Status:    status,
		})
	}
	return out
}

// Stats returns a copy of the session counters.
func (c *Controller) Stats() model.SessionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
