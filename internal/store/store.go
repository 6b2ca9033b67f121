// Package store persists change events in a single local SQLite file.
//
// The store is the only component allowed to block on I/O. It keeps a
// full-text index over summary and service transactionally in sync with the
// row table, enforces idempotency-key uniqueness, and serves the indexed
// queries and aggregations the analytical engine is built on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/models"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed event store. Safe for concurrent use; SQLite runs
// in WAL mode with a single writer connection, so writes are linearizable
// and readers see consistent snapshots.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger *logging.Logger

	// now is injected for deterministic tests
	now func() time.Time
}

// Open opens (or creates) the event store at the given file path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, models.NewValidationError("store path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, models.NewUnavailableError("failed to create store directory").WithCause(err)
		}
	}

	// Pragmas ride in the DSN so every pool connection is configured.
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, models.NewUnavailableError("failed to open event store").WithCause(err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		path:   path,
		logger: logging.GetLogger("store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("event store opened at %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS change_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		service TEXT NOT NULL,
		additional_services TEXT NOT NULL DEFAULT '[]',
		change_type TEXT NOT NULL,
		source TEXT NOT NULL,
		initiator TEXT NOT NULL,
		initiator_identity TEXT NOT NULL DEFAULT '',
		author_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		environment TEXT NOT NULL,
		summary TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		pr_number INTEGER NOT NULL DEFAULT 0,
		pr_url TEXT NOT NULL DEFAULT '',
		repository TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		diff TEXT NOT NULL DEFAULT '',
		files_changed TEXT NOT NULL DEFAULT '[]',
		config_keys TEXT NOT NULL DEFAULT '[]',
		previous_version TEXT NOT NULL DEFAULT '',
		new_version TEXT NOT NULL DEFAULT '',
		blast_radius TEXT,
		idempotency_key TEXT,
		change_set_id TEXT NOT NULL DEFAULT '',
		canonical_url TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON change_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_service ON change_events(service);
	CREATE INDEX IF NOT EXISTS idx_events_change_type ON change_events(change_type);
	CREATE INDEX IF NOT EXISTS idx_events_environment ON change_events(environment);
	CREATE INDEX IF NOT EXISTS idx_events_status ON change_events(status);
	CREATE INDEX IF NOT EXISTS idx_events_commit_sha ON change_events(commit_sha) WHERE commit_sha != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idempotency_key
		ON change_events(idempotency_key) WHERE idempotency_key IS NOT NULL;

	CREATE VIRTUAL TABLE IF NOT EXISTS change_events_fts USING fts5(
		summary, service,
		content='change_events',
		content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS change_events_fts_insert AFTER INSERT ON change_events BEGIN
		INSERT INTO change_events_fts(rowid, summary, service)
		VALUES (new.rowid, new.summary, new.service);
	END;
	CREATE TRIGGER IF NOT EXISTS change_events_fts_delete AFTER DELETE ON change_events BEGIN
		INSERT INTO change_events_fts(change_events_fts, rowid, summary, service)
		VALUES ('delete', old.rowid, old.summary, old.service);
	END;
	CREATE TRIGGER IF NOT EXISTS change_events_fts_update AFTER UPDATE ON change_events BEGIN
		INSERT INTO change_events_fts(change_events_fts, rowid, summary, service)
		VALUES ('delete', old.rowid, old.summary, old.service);
		INSERT INTO change_events_fts(rowid, summary, service)
		VALUES (new.rowid, new.summary, new.service);
	END;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return models.NewUnavailableError("failed to initialize store schema").WithCause(err)
	}
	return nil
}

// Close releases the backing file handle. Subsequent operations fail with
// an UNAVAILABLE error.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return models.NewUnavailableError("failed to close event store").WithCause(err)
	}
	s.logger.Info("event store closed")
	return nil
}

// Path returns the store's file path
func (s *Store) Path() string {
	return s.path
}

// SetClock overrides the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.NewUnavailableError("event store is closed").
			WithHint("reopen the store before retrying")
	}
	return nil
}

// querier abstracts *sql.DB and *sql.Tx so the row-level operations work
// both standalone and inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx exposes the store's write operations inside a transaction
type Tx struct {
	store *Store
	tx    *sql.Tx
}

// Insert persists an event inside the transaction
func (t *Tx) Insert(ctx context.Context, event *models.ChangeEvent) (*models.ChangeEvent, error) {
	return t.store.insert(ctx, t.tx, event)
}

// GetByIdempotencyKey looks up an event by idempotency key inside the transaction
func (t *Tx) GetByIdempotencyKey(ctx context.Context, key string) (*models.ChangeEvent, error) {
	return t.store.getByIdempotencyKey(ctx, t.tx, key)
}

// Transaction executes fn atomically. If fn returns an error the transaction
// rolls back and no write becomes visible.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.mapError(err, "failed to begin transaction")
	}
	if err := fn(&Tx{store: s, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return s.mapError(err, "failed to commit transaction")
	}
	return nil
}

// mapError classifies a database error into the core taxonomy
func (s *Store) mapError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewTimeoutError("%s: deadline exceeded", msg).
			WithHint("retry with a longer deadline")
	case errors.Is(err, context.Canceled):
		return models.NewTimeoutError("%s: canceled", msg)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return models.NewUnavailableError("%s", msg).WithCause(err)
	case isUniqueViolation(err):
		return models.NewConflictError("%s: duplicate idempotency key", msg).
			WithHint("fetch the existing event by idempotency key").WithCause(err)
	default:
		return models.NewUnavailableError("%s", msg).WithCause(err)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}

// corruption marks unreadable persisted JSON. This is data corruption, not a
// caller mistake, and surfaces as an invariant violation.
func corruption(column, id string, err error) error {
	return models.NewInvariantError("corrupt %s payload on event %s", column, id).WithCause(err)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
