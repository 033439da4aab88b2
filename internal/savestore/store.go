// Package savestore keeps emergency snapshots written when a connection is
// torn down with unsaved simulation state.
package savestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"lockstep/client/internal/savestore/migrations"
)

// ErrNotFound reports an empty store.
var ErrNotFound = errors.New("savestore: no emergency saves")

// Record is one stored snapshot.
type Record struct {
	ID        string
	SessionID string
	Reason    string
	Frame     uint32
	Format    string
	CreatedAt time.Time
	Data      []byte
}

// Store is a sqlite-backed list of emergency saves.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores rec and returns its id. Missing ids and timestamps are filled
// in.
func (s *Store) Save(ctx context.Context, rec Record) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if len(rec.Data) == 0 {
		return "", fmt.Errorf("snapshot is empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO emergency_saves (id, session_id, reason, frame, format, created_at, bytes)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		rec.Reason,
		int64(rec.Frame),
		rec.Format,
		rec.CreatedAt.UTC().UnixMilli(),
		rec.Data,
	)
	if err != nil {
		return "", fmt.Errorf("insert emergency save: %w", err)
	}
	return rec.ID, nil
}

// Latest returns the most recent save.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, fmt.Errorf("storage is not configured")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, reason, frame, format, created_at, bytes
FROM emergency_saves
ORDER BY created_at DESC, rowid DESC
LIMIT 1`)
	var (
		rec     Record
		frame   int64
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Reason, &frame, &rec.Format, &created, &rec.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("scan emergency save: %w", err)
	}
	rec.Frame = uint32(frame)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

// Count reports how many saves are stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM emergency_saves").Scan(&n); err != nil {
		return 0, fmt.Errorf("count emergency saves: %w", err)
	}
	return n, nil
}
