package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/model"
)

// Store is the durable attendance boundary. RecordEntry/RecordExit report
// whether the write actually changed anything: an entry already recorded
// for the day or an exit with no open entry both return false with no error.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	RecordEntry(ctx context.Context, id model.Identity) (bool, error)
	RecordExit(ctx context.Context, id model.Identity) (bool, error)
	TodayAttendance(ctx context.Context) ([]model.AttendanceRow, error)
	Headcount(ctx context.Context) (int, error)
	StudentHistory(ctx context.Context, id model.Identity, days int) ([]model.HistoryRow, error)
	UpdateDailySummary(ctx context.Context) error

	Students(ctx context.Context) ([]model.Student, error)
	StudentByID(ctx context.Context, id model.Identity) (*model.Student, error)
	AddStudent(ctx context.Context, name, studentNo string) (model.Identity, error)
	DeleteStudent(ctx context.Context, id model.Identity) (bool, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

const dateLayout = "2006-01-02"

func today() string {
	return time.Now().Format(dateLayout)
}
