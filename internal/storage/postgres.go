package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rollcall/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/rollcall?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			student_no TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES students(id),
			date DATE NOT NULL,
			entry_time TIMESTAMPTZ,
			exit_time TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'present'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance(student_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date)`,
		`CREATE TABLE IF NOT EXISTS daily_summary (
			id BIGSERIAL PRIMARY KEY,
			date DATE UNIQUE NOT NULL,
			total_students INTEGER NOT NULL DEFAULT 0,
			present_count INTEGER NOT NULL DEFAULT 0,
			absent_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) RecordEntry(ctx context.Context, id model.Identity) (bool, error) {
	var existing int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM attendance WHERE student_id = $1 AND date = $2 AND entry_time IS NOT NULL`,
		int64(id), today(),
	).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attendance (student_id, date, entry_time, status) VALUES ($1, $2, $3, 'present')`,
		int64(id), today(), time.Now(),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *postgresStore) RecordExit(ctx context.Context, id model.Identity) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET exit_time = $1 WHERE student_id = $2 AND date = $3 AND exit_time IS NULL`,
		time.Now(), int64(id), today(),
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

func (s *postgresStore) TodayAttendance(ctx context.Context) ([]model.AttendanceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, COALESCE(s.student_no, ''), a.entry_time, a.exit_time, a.status
		FROM students s
		LEFT JOIN attendance a ON s.id = a.student_id AND a.date = $1
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
		var entry, exit sql.NullTime
		var status sql.NullString
		if err := rows.Scan(&row.Identity, &row.Name, &row.StudentNo, &entry, &exit, &status); err != nil {
			return nil, err
		}
		if entry.Valid {
			t := entry.Time
			row.EntryTime = &t
		}
		if exit.Valid {
			t := exit.Time
			row.ExitTime = &t
		}
		row.Status = "absent"
		if status.Valid && status.String != "" {
			row.Status = status.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *postgresStore) Headcount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE date = $1 AND entry_time IS NOT NULL AND exit_time IS NULL`,
		today(),
	).Scan(&count)
	return count, err
}

func (s *postgresStore) StudentHistory(ctx context.Context, id model.Identity, days int) ([]model.HistoryRow, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).Format(dateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, entry_time, exit_time, status FROM attendance
		WHERE student_id = $1 AND date >= $2
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
		var date time.Time
		var entry, exit sql.NullTime
		var status sql.NullString
		if err := rows.Scan(&date, &entry, &exit, &status); err != nil {
			return nil, err
		}
		row.Date = date.Format(dateLayout)
		if entry.Valid {
			t := entry.Time
			row.EntryTime = &t
		}
		if exit.Valid {
			t := exit.Time
			row.ExitTime = &t
		}
		row.Status = "absent"
		if status.Valid && status.String != "" {
			row.Status = status.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *postgresStore) UpdateDailySummary(ctx context.Context) error {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return err
	}
	var present int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE date = $1 AND entry_time IS NOT NULL`,
		today(),
	).Scan(&present); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_summary (date, total_students, present_count, absent_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET
			total_students = EXCLUDED.total_students,
			present_count = EXCLUDED.present_count,
			absent_count = EXCLUDED.absent_count`,
		today(), total, present, total-present,
	)
	return err
}

func (s *postgresStore) Students(ctx context.Context) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(student_no, ''), created_at FROM students ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.StudentNo, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *postgresStore) StudentByID(ctx context.Context, id model.Identity) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(student_no, ''), created_at FROM students WHERE id = $1`,
		int64(id),
	).Scan(&st.ID, &st.Name, &st.StudentNo, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *postgresStore) AddStudent(ctx context.Context, name, studentNo string) (model.Identity, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO students (name, student_no) VALUES ($1, $2) RETURNING id`,
		name, nullIfEmpty(studentNo),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return model.Identity(id), nil
}

func (s *postgresStore) DeleteStudent(ctx context.Context, id model.Identity) (bool, error) {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = $1`, int64(id))
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, int64(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
