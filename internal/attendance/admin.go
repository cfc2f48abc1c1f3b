package attendance

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Roster is the per-event listing used by the admin screen.
type Roster struct {
	EventID       string         `json:"event_id"`
	Registrations []Registration `json:"registrations"`
	Present       int            `json:"present"`
	Total         int            `json:"total"`
}

// Admin runs the administrative overrides. Unlike Reconcile it has no session
// guard and no approval precondition.
type Admin struct {
	store AdminStore
	log   *slog.Logger
}

// NewAdmin creates an admin service.
func NewAdmin(store AdminStore, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{store: store, log: logger}
}

// Toggle flips attendance of a registration and returns the new status.
func (a *Admin) Toggle(ctx context.Context, registrationID string) (Status, error) {
	id := strings.TrimSpace(registrationID)
	if id == "" {
		return "", ErrRegistrationNotFound
	}
	status, err := a.store.ToggleAttendance(ctx, id)
	if err != nil {
		return "", fmt.Errorf("toggle attendance: %w", err)
	}
	a.log.Info("attendance toggled", "id", id, "attendance", string(status))
	return status, nil
}

// ResetAll sets every registration of the event to Absent. Callers confirm first.
func (a *Admin) ResetAll(ctx context.Context, eventID string) error {
	id := strings.TrimSpace(eventID)
	if id == "" {
		return errors.New("event id required")
	}
	n, err := a.store.ResetAttendance(ctx, id)
	if err != nil {
		return fmt.Errorf("reset attendance: %w", err)
	}
	a.log.Info("attendance reset", "event_id", id, "rows", n)
	return nil
}

// ListEvents returns events newest first.
func (a *Admin) ListEvents(ctx context.Context) ([]Event, error) {
	events, err := a.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Roster lists accepted registrations of an event, Present first then by email.
func (a *Admin) Roster(ctx context.Context, eventID string) (Roster, error) {
	regs, err := a.store.ListAccepted(ctx, eventID)
	if err != nil {
		return Roster{}, fmt.Errorf("list registrations: %w", err)
	}
	if regs == nil {
		regs = []Registration{}
	}
	slices.SortStableFunc(regs, func(x, y Registration) int {
		if x.Attendance != y.Attendance {
			if x.Attendance == Present {
				return -1
			}
			return 1
		}
		return cmp.Compare(x.Email, y.Email)
	})
	roster := Roster{EventID: eventID, Registrations: regs, Total: len(regs)}
	for _, reg := range regs {
		if reg.Attendance == Present {
			roster.Present++
		}
	}
	return roster, nil
}
