// Package history keeps an audit log of enable/disable changes in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
)

// DBFileName is the default database file inside the state directory.
const DBFileName = "history.db"

// DefaultLimit is used by Recent when limit <= 0.
const DefaultLimit = 20

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is one attempted change of a server's enabled flag.
type Event struct {
	ID      string    `json:"id"`
	Scope   string    `json:"scope"`
	Name    string    `json:"name"`
	Path    string    `json:"path,omitempty"`
	Enabled bool      `json:"enabled"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Store is a SQLite-backed event log.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the database at path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// One connection: every ":memory:" connection is its own database, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db, log: logging.ForComponent(logging.CompHistory)}, nil
}

// Record appends ev, filling ID and At when unset.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO toggles (id, scope, name, path, enabled, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Scope, ev.Name, ev.Path, ev.Enabled, ev.OK, ev.Error,
		ev.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting toggle event: %w", err)
	}
	s.log.Debug("event_recorded", slog.String("scope", ev.Scope), slog.String("name", ev.Name), slog.Bool("ok", ev.OK))
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, name, path, enabled, ok, error, created_at
		FROM toggles ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying toggle events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			created string
		)
		if err := rows.Scan(&ev.ID, &ev.Scope, &ev.Name, &ev.Path, &ev.Enabled, &ev.OK, &ev.Error, &created); err != nil {
			return nil, fmt.Errorf("scanning toggle event: %w", err)
		}
		ev.At, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parsing event time %q: %w", created, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
