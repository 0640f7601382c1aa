package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultOpTimeout bounds every store operation so a stalled disk can
// never hang a caller indefinitely.
const DefaultOpTimeout = 5 * time.Second

// DB wraps the SQLite cache database. A single connection serializes all
// writes; SQLite's locking plus the daemon profile lock give us the
// single-writer guarantee the sync core assumes.
type DB struct {
	*sql.DB
	opTimeout time.Duration
}

// Open creates a SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, opTimeout: DefaultOpTimeout}, nil
}

// SetOpTimeout overrides the per-operation deadline.
func (db *DB) SetOpTimeout(d time.Duration) {
	if d > 0 {
		db.opTimeout = d
	}
}

// bound derives the per-operation context. Callers that already carry a
// tighter deadline keep it.
func (db *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.opTimeout)
}
