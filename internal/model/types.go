package model

import "time"

// Identity is the stable key of an enrolled student. Display names are
// carried alongside for logging only and never affect equality.
type Identity int64

type Direction string

const (
	DirectionEntered Direction = "entered"
	DirectionExited  Direction = "exited"
)

// Observation is one positive sighting of an identity in a processed frame.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  Identity  `json:"identity"`
	Name      string    `json:"name,omitempty"`
	Source    string    `json:"source,omitempty"`
	Raw       string    `json:"raw,omitempty"`
}

// TransitionEvent is a stable entered/exited state change derived from
// sustained observations.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  Identity  `json:"identity"`
	Name      string    `json:"name,omitempty"`
	Direction Direction `json:"direction"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Identity  Identity  `json:"identity"`
	Name      string    `json:"name,omitempty"`
	Action    Direction `json:"action"`
}

type SessionStats struct {
	SessionID    string    `json:"session_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	TotalEntries int       `json:"total_entries"`
	TotalExits   int       `json:"total_exits"`
}

type Status struct {
	Tracking             bool    `json:"tracking"`
	SessionID            string  `json:"session_id,omitempty"`
	CurrentPresent       int     `json:"current_present"`
	TotalStudents        int     `json:"total_students"`
	PresentToday         int     `json:"present_today"`
	AbsentToday          int     `json:"absent_today"`
	AttendancePercentage float64 `json:"attendance_percentage"`
	SessionDuration      string  `json:"session_duration"`
	TotalEntriesSession  int     `json:"total_entries_session"`
	TotalExitsSession    int     `json:"total_exits_session"`
}

type Student struct {
	ID        Identity  `json:"id"`
	Name      string    `json:"name"`
	StudentNo string    `json:"student_no,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AttendanceRow is one student's record for a given day, absent students
// included (entry/exit nil, status "absent").
type AttendanceRow struct {
	Identity  Identity   `json:"identity"`
	Name      string     `json:"name"`
	StudentNo string     `json:"student_no,omitempty"`
	EntryTime *time.Time `json:"entry_time,omitempty"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`
	Status    string     `json:"status"`
}

// HistoryRow is one day of a student's attendance history.
type HistoryRow struct {
	Date      string     `json:"date"`
	EntryTime *time.Time `json:"entry_time,omitempty"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`
	Status    string     `json:"status"`
}

type DailySummary struct {
	Date                 string  `json:"date"`
	TotalStudents        int     `json:"total_students"`
	PresentCount         int     `json:"present_count"`
	AbsentCount          int     `json:"absent_count"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// RosterRow is the realtime per-student view served to dashboards.
type RosterRow struct {
	Identity  Identity `json:"identity"`
	Name      string   `json:"name"`
	StudentNo string   `json:"student_no,omitempty"`
	Present   bool     `json:"present"`
	Status    string   `json:"status"`
}
