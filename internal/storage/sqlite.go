package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rollcall/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:attendance.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			student_no TEXT UNIQUE,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			entry_time TEXT,
			exit_time TEXT,
			status TEXT NOT NULL DEFAULT 'present',
			FOREIGN KEY (student_id) REFERENCES students (id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance(student_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date)`,
		`CREATE TABLE IF NOT EXISTS daily_summary (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT UNIQUE NOT NULL,
			total_students INTEGER NOT NULL DEFAULT 0,
			present_count INTEGER NOT NULL DEFAULT 0,
			absent_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) RecordEntry(ctx context.Context, id model.Identity) (bool, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM attendance WHERE student_id = ? AND date = ? AND entry_time IS NOT NULL`,
		int64(id), today(),
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attendance (student_id, date, entry_time, status) VALUES (?, ?, ?, 'present')`,
		int64(id), today(), time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) RecordExit(ctx context.Context, id model.Identity) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET exit_time = ? WHERE student_id = ? AND date = ? AND exit_time IS NULL`,
		time.Now().Format(time.RFC3339), int64(id), today(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) TodayAttendance(ctx context.Context) ([]model.AttendanceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, COALESCE(s.student_no, ''), a.entry_time, a.exit_time, a.status
		FROM students s
		LEFT JOIN attendance a ON s.id = a.student_id AND a.date = ?
		ORDER BY s.name`,
		today(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRow
	for rows.Next() {
		var row model.AttendanceRow
		var entry, exit, status sql.NullString
		if err := rows.Scan(&row.Identity, &row.Name, &row.StudentNo, &entry, &exit, &status); err != nil {
			return nil, err
		}
		row.EntryTime = parseNullTime(entry)
		row.ExitTime = parseNullTime(exit)
		row.Status = "absent"
		if status.Valid && status.String != "" {
			row.Status = status.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Headcount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE date = ? AND entry_time IS NOT NULL AND exit_time IS NULL`,
		today(),
	).Scan(&count)
	return count, err
}

func (s *sqliteStore) StudentHistory(ctx context.Context, id model.Identity, days int) ([]model.HistoryRow, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, entry_time, exit_time, status FROM attendance
		WHERE student_id = ? AND date >= ?
		ORDER BY date DESC`,
		int64(id), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.HistoryRow
	for rows.Next() {
		var row model.HistoryRow
		var entry, exit, status sql.NullString
		if err := rows.Scan(&row.Date, &entry, &exit, &status); err != nil {
			return nil, err
		}
		row.EntryTime = parseNullTime(entry)
		row.ExitTime = parseNullTime(exit)
		row.Status = "absent"
		if status.Valid && status.String != "" {
			row.Status = status.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateDailySummary(ctx context.Context) error {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return err
	}
	var present int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE date = ? AND entry_time IS NOT NULL`,
		today(),
	).Scan(&present); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO daily_summary (date, total_students, present_count, absent_count)
		VALUES (?, ?, ?, ?)`,
		today(), total, present, total-present,
	)
	return err
}

func (s *sqliteStore) Students(ctx context.Context) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(student_no, ''), created_at FROM students ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Student
	for rows.Next() {
		var st model.Student
		var created string
		if err := rows.Scan(&st.ID, &st.Name, &st.StudentNo, &created); err != nil {
			return nil, err
		}
		st.CreatedAt = parseStoredTime(created)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) StudentByID(ctx context.Context, id model.Identity) (*model.Student, error) {
	var st model.Student
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(student_no, ''), created_at FROM students WHERE id = ?`,
		int64(id),
	).Scan(&st.ID, &st.Name, &st.StudentNo, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.CreatedAt = parseStoredTime(created)
	return &st, nil
}

func (s *sqliteStore) AddStudent(ctx context.Context, name, studentNo string) (model.Identity, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO students (name, student_no) VALUES (?, ?)`,
		name, nullIfEmpty(studentNo),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return model.Identity(id), nil
}

func (s *sqliteStore) DeleteStudent(ctx context.Context, id model.Identity) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = ?`, int64(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = ?`, int64(id))
	return true, err
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseStoredTime(v.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseStoredTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
