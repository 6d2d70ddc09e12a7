// Package store provides durable, ACID, foreign-key-enforcing storage for
// Tusk's task graph over an embedded SQLite database. Handlers open a
// *Store, run one short transaction, and close it before handing control
// to any subprocess that might also want to write.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tusk/internal/tuskerr"
)

//go:embed schema/schema.sql
var schemaSQL string

// Store wraps a dual-connection SQLite database: a single-conn writer and a
// pooled read-only reader, the way a busy single-writer journal wants it.
type Store struct {
	path   string
	db     *sql.DB // write connection, MaxOpenConns(1)
	readDB *sql.DB // read-only pool

	maxRetries    int
	baseRetryWait time.Duration

	mu sync.RWMutex
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithRetryPolicy overrides the busy-retry backoff schedule.
func WithRetryPolicy(maxRetries int, baseWait time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.baseRetryWait = baseWait
	}
}

// Open creates the database directory if needed, opens both connections,
// runs pending migrations, and synchronizes status_order from statuses.
// statuses must be ordered initial-first, terminal-last, per spec.md 3.
func Open(ctx context.Context, path string, statuses []string, opts ...Option) (*Store, error) {
	s := &Store{
		path:          path,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	readDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&mode=ro&_pragma=busy_timeout(2000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.syncStatusOrder(ctx, statuses); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("syncing status order: %w", err)
	}

	return s, nil
}

// Close releases both connections. Handlers must call this before spawning
// a child process that will also write to the same store file.
func (s *Store) Close() error {
	var errs []string
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.readDB.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Path returns the database file path this Store was opened against.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		_, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (1, ?)`, nowRFC3339())
		if err != nil {
			return fmt.Errorf("recording migration v1: %w", err)
		}
	}
	return nil
}

// syncStatusOrder rewrites status_order from the configured statuses list,
// so the status-transition and closed-reason triggers can compare ranks
// without knowing about config.json. Called on every Open.
func (s *Store) syncStatusOrder(ctx context.Context, statuses []string) error {
	if len(statuses) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM status_order`); err != nil {
			return err
		}
		terminalRank := len(statuses) - 1
		for i, status := range statuses {
			isTerminal := 0
			if i == terminalRank {
				isTerminal = 1
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO status_order(status, rank, is_terminal) VALUES (?, ?, ?)`,
				status, i, isTerminal)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// WithTx runs fn inside a write transaction, retrying the whole attempt on
// SQLITE_BUSY/SQLITE_LOCKED per the configured backoff schedule. fn's
// transaction is rolled back automatically if fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retryWrite(ctx, "with-tx", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// WithImmediateTx runs fn inside a BEGIN IMMEDIATE transaction, used by the
// reopen path so the status-guard drop, row mutation, and trigger
// regeneration attempt observe a single write lock. See triggers.go.
func (s *Store) WithImmediateTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.retryWrite(ctx, "with-immediate-tx", func() error {
		if _, err := s.db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_, _ = s.db.ExecContext(ctx, "ROLLBACK")
			}
		}()

		if err := fn(nil); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "COMMIT"); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

// ReadDB exposes the read-only pooled connection for query-only handlers.
func (s *Store) ReadDB() *sql.DB { return s.readDB }

// WriteDB exposes the single-conn write connection for callers that need
// raw access outside of WithTx (e.g. the trigger drop/regenerate pair,
// which must run outside a nested transaction against the same connection).
func (s *Store) WriteDB() *sql.DB { return s.db }

func (s *Store) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
		if attempt == s.maxRetries {
			break
		}
		wait := s.baseRetryWait * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", operation, ctx.Err(), lastErr)
		case <-time.After(wait):
		}
	}
	return tuskerr.Concurrency(fmt.Sprintf("%s: max retries exceeded: %v", operation, lastErr))
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// timeNow is indirected so tests can freeze the clock if ever needed; the
// rest of the package calls it instead of time.Now directly.
var timeNow = time.Now
