package attendance

import (
	"context"
	"errors"
	"testing"
)

type fakeAdminStore struct {
	events []Event
	regs   []Registration
	resets int
	err    error
}

func (s *fakeAdminStore) ToggleAttendance(_ context.Context, id string) (Status, error) {
	if s.err != nil {
		return "", s.err
	}
	for i := range s.regs {
		if s.regs[i].ID == id {
			s.regs[i].Attendance = s.regs[i].Attendance.Flip()
			return s.regs[i].Attendance, nil
		}
	}
	return "", ErrRegistrationNotFound
}

func (s *fakeAdminStore) ResetAttendance(_ context.Context, _ string) (int64, error) {
	s.resets++
	return 0, s.err
}

func (s *fakeAdminStore) ListEvents(context.Context) ([]Event, error) {
	return s.events, s.err
}

func (s *fakeAdminStore) ListAccepted(context.Context, string) ([]Registration, error) {
	return s.regs, s.err
}

func TestAdminToggle(t *testing.T) {
	store := &fakeAdminStore{regs: []Registration{{ID: "r1", Approval: Invalid, Attendance: Absent}}}
	admin := NewAdmin(store, quietLogger())

	status, err := admin.Toggle(context.Background(), " r1 ")
	if err != nil || status != Present {
		t.Fatalf("expected Present, got %s %v", status, err)
	}
	if _, err := admin.Toggle(context.Background(), ""); !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatalf("empty id should be not found, got %v", err)
	}
	if _, err := admin.Toggle(context.Background(), "r9"); !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}
}

func TestAdminResetRequiresEvent(t *testing.T) {
	store := &fakeAdminStore{}
	admin := NewAdmin(store, quietLogger())

	if err := admin.ResetAll(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty event id")
	}
	if store.resets != 0 {
		t.Fatal("store must not be called without an event id")
	}
	if err := admin.ResetAll(context.Background(), "ev-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	store.err = errors.New("db down")
	if err := admin.ResetAll(context.Background(), "ev-1"); err == nil || !errors.Is(err, store.err) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestAdminRosterOrdering(t *testing.T) {
	store := &fakeAdminStore{regs: []Registration{
		{ID: "a", Email: "zed@example.com", Attendance: Absent},
		{ID: "b", Email: "amy@example.com", Attendance: Absent},
		{ID: "c", Email: "yan@example.com", Attendance: Present},
		{ID: "d", Email: "bob@example.com", Attendance: Present},
	}}
	admin := NewAdmin(store, quietLogger())

	roster, err := admin.Roster(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	var order []string
	for _, r := range roster.Registrations {
		order = append(order, r.ID)
	}
	want := []string{"d", "c", "b", "a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if roster.Present != 2 || roster.Total != 4 {
		t.Fatalf("expected 2/4, got %d/%d", roster.Present, roster.Total)
	}
}

func TestAdminListEventsNeverNil(t *testing.T) {
	admin := NewAdmin(&fakeAdminStore{}, quietLogger())
	events, err := admin.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if events == nil {
		t.Fatal("expected empty slice, got nil")
	}
}
