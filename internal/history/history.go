// Package history keeps each station's list of successfully reconciled scans.
package history

import (
	"context"
	"errors"

	"qrattend/internal/attendance"
)

// ErrEntryNotFound is returned by Delete for an unknown identifier.
var ErrEntryNotFound = errors.New("history entry not found")

// Store persists history entries per station, deduped by identifier within a
// station. Append files an entry under entry.Station.
type Store interface {
	attendance.Recorder
	// List returns the station's entries newest first.
	List(ctx context.Context, station string) ([]attendance.HistoryEntry, error)
	Delete(ctx context.Context, station, identifier string) error
	Clear(ctx context.Context, station string) error
}
