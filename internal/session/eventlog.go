package session

import (
	"sync"
	"time"

	"rollcall/internal/model"
)

// EventLog is a bounded append-only ring of accepted attendance events.
// Oldest entries are dropped silently past the cap.
type EventLog struct {
	mu    sync.RWMutex
	buf   []model.LogEntry
	limit int
}

func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = 1000
	}
	return &EventLog{limit: limit}
}

func (l *EventLog) Append(entry model.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) < l.limit {
		l.buf = append(l.buf, entry)
		return
	}
	copy(l.buf, l.buf[1:])
	l.buf[len(l.buf)-1] = entry
}

// List returns up to limit of the most recent entries, oldest first.
func (l *EventLog) List(limit int) []model.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.buf) {
		limit = len(l.buf)
	}
	out := make([]model.LogEntry, 0, limit)
	start := len(l.buf) - limit
	for i := start; i < len(l.buf); i++ {
		out = append(out, l.buf[i])
	}
	return out
}

func (l *EventLog) Since(ts time.Time) []model.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.LogEntry, 0)
	for _, e := range l.buf {
		if !e.Timestamp.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = nil
}
