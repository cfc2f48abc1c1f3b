package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"qrattend/internal/attendance"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the history database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS station_history (
			station     TEXT NOT NULL DEFAULT '',
			identifier  TEXT NOT NULL,
			scanned_at  INTEGER NOT NULL,
			event_title TEXT NOT NULL DEFAULT '',
			display     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (station, identifier)
		);
		CREATE INDEX IF NOT EXISTS idx_station_history_scanned_at ON station_history(station, scanned_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}
	return nil
}

// Append inserts entry unless the station already has its identifier.
func (s *SQLiteStore) Append(ctx context.Context, entry attendance.HistoryEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO station_history (station, identifier, scanned_at, event_title, display)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station, identifier) DO NOTHING
	`, entry.Station, entry.Identifier, entry.ScannedAt.UnixNano(), entry.EventTitle, entry.Display)
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns the station's entries newest first.
func (s *SQLiteStore) List(ctx context.Context, station string) ([]attendance.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT station, identifier, scanned_at, event_title, display
		FROM station_history
		WHERE station = ?
		ORDER BY scanned_at DESC, identifier
	`, station)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	entries := []attendance.HistoryEntry{}
	for rows.Next() {
		var e attendance.HistoryEntry
		var nanos int64
		if err := rows.Scan(&e.Station, &e.Identifier, &nanos, &e.EventTitle, &e.Display); err != nil {
			return nil, err
		}
		e.ScannedAt = time.Unix(0, nanos).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, station, identifier string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM station_history WHERE station = ? AND identifier = ?`, station, identifier)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, station string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM station_history WHERE station = ?`, station); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
