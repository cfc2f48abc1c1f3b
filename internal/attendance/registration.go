package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ApprovalStatus mirrors the registration-status enum of the remote store.
type ApprovalStatus string

const (
	Submitted ApprovalStatus = "SUBMITTED"
	Accepted  ApprovalStatus = "ACCEPTED"
	Rejected  ApprovalStatus = "REJECTED"
	Invalid   ApprovalStatus = "INVALID"
)

// Status is the attendance enum of the remote store.
type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
)

// Flip returns the opposite attendance status.
func (s Status) Flip() Status {
	if s == Present {
		return Absent
	}
	return Present
}

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEventNotFound        = errors.New("event not found")
)

// Registration is a participant's record for one event. Its ID is the QR payload.
type Registration struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	EventTitle string          `json:"event_title"`
	Email      string          `json:"registration_email"`
	Approval   ApprovalStatus  `json:"is_approved"`
	Attendance Status          `json:"attendance"`
	Details    json.RawMessage `json:"details,omitempty"`
	TicketID   int64           `json:"ticket_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Event is the listing view of an event.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// AtomicOutcome is what the single-call reconcile procedure reports.
type AtomicOutcome struct {
	Found      bool
	Approval   ApprovalStatus
	Attendance Status
	EventTitle string
	Email      string
	Marked     bool
}

// Store is the remote store as seen by the reconciliation core.
type Store interface {
	// Registration returns nil, nil when no row matches id.
	Registration(ctx context.Context, id string) (*Registration, error)
	// MarkPresent sets Present only on rows matching id, ACCEPTED and Absent.
	MarkPresent(ctx context.Context, id string) (int64, error)
	AttendanceOf(ctx context.Context, id string) (Status, error)
	// MarkAttendance is the server-side idempotent mark procedure.
	MarkAttendance(ctx context.Context, id string) error
}

// AtomicStore collapses lookup, conditional update and verification into one call.
type AtomicStore interface {
	ReconcileAtomic(ctx context.Context, id string) (AtomicOutcome, error)
}

// AdminStore carries the administrative operations.
type AdminStore interface {
	ToggleAttendance(ctx context.Context, id string) (Status, error)
	ResetAttendance(ctx context.Context, eventID string) (int64, error)
	ListEvents(ctx context.Context) ([]Event, error)
	ListAccepted(ctx context.Context, eventID string) ([]Registration, error)
}

// HistoryEntry is handed to the recorder after a successful mark. Station is
// the scanning device the entry belongs to.
type HistoryEntry struct {
	Station    string    `json:"station,omitempty"`
	Identifier string    `json:"identifier"`
	ScannedAt  time.Time `json:"scanned_at"`
	EventTitle string    `json:"event_title"`
	Display    string    `json:"display,omitempty"`
}

// Recorder persists history entries. It dedupes by station and identifier.
type Recorder interface {
	Append(ctx context.Context, entry HistoryEntry) (bool, error)
}
