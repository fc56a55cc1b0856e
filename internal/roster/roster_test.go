package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollcall/internal/model"
)

type fakeStore struct {
	students []model.Student
	err      error
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }
func (f *fakeStore) RecordEntry(context.Context, model.Identity) (bool, error) {
	return false, nil
}
func (f *fakeStore) RecordExit(context.Context, model.Identity) (bool, error) {
	return false, nil
}
func (f *fakeStore) TodayAttendance(context.Context) ([]model.AttendanceRow, error) {
	return nil, nil
}
func (f *fakeStore) Headcount(context.Context) (int, error)   { return 0, nil }
func (f *fakeStore) UpdateDailySummary(context.Context) error { return nil }
func (f *fakeStore) Students(context.Context) ([]model.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.students, nil
}
func (f *fakeStore) StudentByID(context.Context, model.Identity) (*model.Student, error) {
	return nil, nil
}
func (f *fakeStore) AddStudent(context.Context, string, string) (model.Identity, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeStore) DeleteStudent(context.Context, model.Identity) (bool, error) {
	return false, nil
}
func (f *fakeStore) StudentHistory(context.Context, model.Identity, int) ([]model.HistoryRow, error) {
	return nil, nil
}

func TestRefreshAndLookup(t *testing.T) {
	store := &fakeStore{students: []model.Student{
		{ID: 7, Name: "alice", StudentNo: "S-007"},
		{ID: 9, Name: "bob"},
	}}
	r := New(store, nil)
	if r.Size() != 0 {
		t.Fatalf("size before refresh: %d", r.Size())
	}
	if _, ok := r.Lookup(7); ok {
		t.Fatalf("lookup hit before refresh")
	}

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if r.Size() != 2 {
		t.Fatalf("size after refresh: %d", r.Size())
	}
	st, ok := r.Lookup(7)
	if !ok || st.Name != "alice" || st.StudentNo != "S-007" {
		t.Fatalf("lookup 7: %+v ok=%v", st, ok)
	}
	if _, ok := r.Lookup(42); ok {
		t.Fatalf("lookup hit for unenrolled identity")
	}
}

func TestRefreshErrorKeepsPreviousSet(t *testing.T) {
	store := &fakeStore{students: []model.Student{{ID: 7, Name: "alice"}}}
	r := New(store, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	store.err = errors.New("database is locked")
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error from failed refresh")
	}
	if r.Size() != 1 {
		t.Fatalf("failed refresh dropped the set: size %d", r.Size())
	}
	if _, ok := r.Lookup(7); !ok {
		t.Fatalf("failed refresh lost enrolled identity")
	}
}

func TestStudentsReturnsCopy(t *testing.T) {
	store := &fakeStore{students: []model.Student{
		{ID: 7, Name: "alice"},
		{ID: 9, Name: "bob"},
	}}
	r := New(store, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	list := r.Students()
	if len(list) != 2 {
		t.Fatalf("students length: %d", len(list))
	}
	list[0].Name = "scribbled"
	st, _ := r.Lookup(list[0].ID)
	if st.Name == "scribbled" {
		t.Fatalf("mutating the returned slice reached the roster")
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	r := New(&fakeStore{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Zero interval falls back to the default; the cancelled context
		// must still win immediately.
		r.Watch(ctx, 0)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watch did not stop on cancelled context")
	}
}
