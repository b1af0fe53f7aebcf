package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hidwatch/internal/alert"
)

// Store is the SQLite alert history.
type Store struct {
	db *sql.DB

	// OnError, if set, receives write failures from Emit.
	OnError func(error)

	writeErrors atomic.Uint64
}

// Sighting summarizes how often an unapproved device has been seen.
type Sighting struct {
	DeviceID  string
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int64
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Alerts arrive from one drain goroutine; a single connection keeps
	// SQLite from returning SQLITE_BUSY to ourselves.
	db.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertAlert persists a. Alerts naming a device also bump its sighting row.
func (s *Store) InsertAlert(a alert.Alert) error {
	var attrs sql.NullString
	if len(a.Attrs) > 0 {
		data, err := json.Marshal(a.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs: %w", err)
		}
		attrs = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := a.Timestamp.UnixNano()
	if _, err := tx.Exec(`
		INSERT INTO alerts (id, timestamp_ns, severity, source, message, attrs)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, ts, a.Severity.String(), a.Source, a.Message, attrs,
	); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	if dev := a.Attrs["device"]; dev != "" {
		if _, err := tx.Exec(`
			INSERT INTO device_sightings (device_id, first_seen_ns, last_seen_ns, sightings)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(device_id) DO UPDATE SET
				last_seen_ns = excluded.last_seen_ns,
				sightings = sightings + 1`,
			dev, ts, ts,
		); err != nil {
			return fmt.Errorf("record sighting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Emit implements alert.Sink. Failures go to OnError and are counted.
func (s *Store) Emit(a alert.Alert) {
	if err := s.InsertAlert(a); err != nil {
		s.writeErrors.Add(1)
		if s.OnError != nil {
			s.OnError(err)
		}
	}
}

// WriteErrors returns the number of failed Emit calls.
func (s *Store) WriteErrors() uint64 {
	return s.writeErrors.Load()
}

// ListAlerts returns up to limit alerts, newest first. A limit <= 0
// returns everything. Source filters by alert source when non-empty.
func (s *Store) ListAlerts(source string, limit int) ([]alert.Alert, error) {
	query := `SELECT id, timestamp_ns, severity, source, message, attrs FROM alerts`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY timestamp_ns DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var (
			a        alert.Alert
			ts       int64
			severity string
			attrs    sql.NullString
		)
		if err := rows.Scan(&a.ID, &ts, &severity, &a.Source, &a.Message, &attrs); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Timestamp = time.Unix(0, ts).UTC()
		a.Severity, _ = alert.ParseSeverity(severity)
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &a.Attrs); err != nil {
				return nil, fmt.Errorf("decode attrs for %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAlerts returns the number of stored alerts.
func (s *Store) CountAlerts() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Sightings returns every recorded unapproved device, most recently seen first.
func (s *Store) Sightings() ([]Sighting, error) {
	rows, err := s.db.Query(`
		SELECT device_id, first_seen_ns, last_seen_ns, sightings
		FROM device_sightings ORDER BY last_seen_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var (
			sg          Sighting
			first, last int64
		)
		if err := rows.Scan(&sg.DeviceID, &first, &last, &sg.Count); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sg.FirstSeen = time.Unix(0, first).UTC()
		sg.LastSeen = time.Unix(0, last).UTC()
		out = append(out, sg)
	}
	return out, rows.Err()
}

// PruneBefore deletes alerts older than cutoff and returns how many went.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE timestamp_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return res.RowsAffected()
}
