package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	_ Store       = (*Repository)(nil)
	_ AtomicStore = (*Repository)(nil)
	_ AdminStore  = (*Repository)(nil)
)

// Repository persists registrations in Postgres (driver "pgx") or SQLite (driver "sqlite").
type Repository struct {
	db       *sql.DB
	postgres bool
}

// NewRepository creates a repo for the given database/sql driver name.
func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{db: db, postgres: driver == "pgx"}
}

const registrationColumns = `id, event_id, event_title, registration_email, is_approved, attendance, details, ticket_id, created_at`

// Registration returns a registration by id, or nil when none matches.
func (r *Repository) Registration(ctx context.Context, id string) (*Registration, error) {
	if !r.validKey(id) {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT `+registrationColumns+` FROM eventsregistrations WHERE id = ?`), id)
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// MarkPresent is the guarded update: only rows still ACCEPTED and Absent change.
func (r *Repository) MarkPresent(ctx context.Context, id string) (int64, error) {
	if !r.validKey(id) {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE eventsregistrations
		SET attendance = 'Present'
		WHERE id = ? AND is_approved = 'ACCEPTED' AND attendance = 'Absent'
	`), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AttendanceOf reads the current attendance of a registration.
func (r *Repository) AttendanceOf(ctx context.Context, id string) (Status, error) {
	if !r.validKey(id) {
		return "", ErrRegistrationNotFound
	}
	var status string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT attendance FROM eventsregistrations WHERE id = ?`), id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRegistrationNotFound
		}
		return "", err
	}
	return Status(status), nil
}

// MarkAttendance calls the mark_attendance procedure.
func (r *Repository) MarkAttendance(ctx context.Context, id string) error {
	if !r.validKey(id) {
		return ErrRegistrationNotFound
	}
	if r.postgres {
		_, err := r.db.ExecContext(ctx, `SELECT mark_attendance($1)`, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE eventsregistrations
		SET attendance = 'Present'
		WHERE id = ? AND is_approved = 'ACCEPTED'
	`, id)
	return err
}

// ReconcileAtomic runs lookup, guarded update and read-back as one unit.
func (r *Repository) ReconcileAtomic(ctx context.Context, id string) (AtomicOutcome, error) {
	if !r.validKey(id) {
		return AtomicOutcome{}, nil
	}
	if r.postgres {
		var out AtomicOutcome
		var approval, status, title, email sql.NullString
		err := r.db.QueryRowContext(ctx, `
			SELECT found, approval, attendance, event_title, email, marked
			FROM reconcile_attendance($1)
		`, id).Scan(&out.Found, &approval, &status, &title, &email, &out.Marked)
		if err != nil {
			return AtomicOutcome{}, err
		}
		out.Approval = ApprovalStatus(approval.String)
		out.Attendance = Status(status.String)
		out.EventTitle = title.String
		out.Email = email.String
		return out, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return AtomicOutcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE eventsregistrations
		SET attendance = 'Present'
		WHERE id = ? AND is_approved = 'ACCEPTED' AND attendance = 'Absent'
	`, id)
	if err != nil {
		return AtomicOutcome{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return AtomicOutcome{}, err
	}
	out := AtomicOutcome{Marked: n == 1}
	var approval, status string
	err = tx.QueryRowContext(ctx, `
		SELECT is_approved, attendance, event_title, registration_email
		FROM eventsregistrations WHERE id = ?
	`, id).Scan(&approval, &status, &out.EventTitle, &out.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AtomicOutcome{}, nil
		}
		return AtomicOutcome{}, err
	}
	out.Found = true
	out.Approval = ApprovalStatus(approval)
	out.Attendance = Status(status)
	if err := tx.Commit(); err != nil {
		return AtomicOutcome{}, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

// ToggleAttendance flips Present and Absent regardless of approval.
func (r *Repository) ToggleAttendance(ctx context.Context, id string) (Status, error) {
	if !r.validKey(id) {
		return "", ErrRegistrationNotFound
	}
	var status sql.NullString
	var err error
	if r.postgres {
		err = r.db.QueryRowContext(ctx, `SELECT toggle_attendance($1)::text`, id).Scan(&status)
	} else {
		err = r.db.QueryRowContext(ctx, `
			UPDATE eventsregistrations
			SET attendance = CASE attendance WHEN 'Present' THEN 'Absent' ELSE 'Present' END
			WHERE id = ?
			RETURNING attendance
		`, id).Scan(&status)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRegistrationNotFound
		}
		return "", err
	}
	if !status.Valid {
		return "", ErrRegistrationNotFound
	}
	return Status(status.String), nil
}

// ResetAttendance sets every registration of an event to Absent and returns the rows changed.
func (r *Repository) ResetAttendance(ctx context.Context, eventID string) (int64, error) {
	if !r.validKey(eventID) {
		return 0, nil
	}
	if r.postgres {
		var n int64
		err := r.db.QueryRowContext(ctx, `SELECT reset_attendance($1)`, eventID).Scan(&n)
		return n, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE eventsregistrations
		SET attendance = 'Absent'
		WHERE event_id = ? AND attendance = 'Present'
	`, eventID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListEvents returns events newest first.
func (r *Repository) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Title); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListAccepted returns the ACCEPTED registrations of one event, by email.
// An unknown event is ErrEventNotFound on both dialects.
func (r *Repository) ListAccepted(ctx context.Context, eventID string) ([]Registration, error) {
	if !r.validKey(eventID) {
		return nil, ErrEventNotFound
	}
	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM events WHERE id = ?`), eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+registrationColumns+`
		FROM eventsregistrations
		WHERE event_id = ? AND is_approved = 'ACCEPTED'
		ORDER BY registration_email
	`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, rows.Err()
}

// InsertEvent writes a new event.
func (r *Repository) InsertEvent(ctx context.Context, title string) (Event, error) {
	e := Event{ID: uuid.NewString(), Title: title}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO events (id, title, created_at) VALUES (?, ?, ?)`), e.ID, e.Title, time.Now().UTC())
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

// InsertRegistration writes a new registration. Empty enum fields take the store defaults.
func (r *Repository) InsertRegistration(ctx context.Context, reg Registration) (Registration, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Approval == "" {
		reg.Approval = Submitted
	}
	if reg.Attendance == "" {
		reg.Attendance = Absent
	}
	if len(reg.Details) == 0 {
		reg.Details = json.RawMessage(`{}`)
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO eventsregistrations (id, event_id, event_title, registration_email, is_approved, attendance, details, ticket_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), reg.ID, reg.EventID, reg.EventTitle, reg.Email, string(reg.Approval), string(reg.Attendance), string(reg.Details), reg.TicketID, reg.CreatedAt)
	if err != nil {
		return Registration{}, err
	}
	return reg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (Registration, error) {
	var reg Registration
	var approval, status string
	var details []byte
	if err := row.Scan(&reg.ID, &reg.EventID, &reg.EventTitle, &reg.Email, &approval, &status, &details, &reg.TicketID, &reg.CreatedAt); err != nil {
		return Registration{}, err
	}
	reg.Approval = ApprovalStatus(approval)
	reg.Attendance = Status(status)
	reg.Details = json.RawMessage(details)
	return reg, nil
}

// validKey rejects identifiers Postgres would refuse to compare with a uuid column.
func (r *Repository) validKey(id string) bool {
	if id == "" {
		return false
	}
	if r.postgres {
		return uuid.Validate(id) == nil
	}
	return true
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
