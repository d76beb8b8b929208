// Package store provides the append-only sqlite telemetry persistence.
// All record writes are best-effort: a failed write is retried with backoff,
// then logged and swallowed. Losing a telemetry row must not abort the
// orchestration.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// ErrInit indicates the persistence file is unusable (unwritable path or
// corrupt file). The coordinator treats it as degraded, not fatal.
var ErrInit = errors.New("store init failed")

// task statuses persisted in task_history
const (
	TaskPending = "pending"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

const writeTimeout = 5 * time.Second

var validTaskStatus = map[string]struct{}{
	TaskPending: {}, TaskRunning: {}, TaskDone: {}, TaskFailed: {},
}

// Store is the single-owner handle over the sqlite file. Opened once by the
// coordinator, closed exactly once on shutdown.
type Store struct {
	db     *sqlx.DB
	rptr   writeRepeater
	closed int32
}

type writeRepeater interface {
	Do(ctx context.Context, fun func() error, errs ...error) error
}

// New opens or creates the persistence file and creates the record tables if
// absent. Idempotent: running twice on the same path only re-validates the
// schema. Errors wrap ErrInit.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir %s: %v", ErrInit, dir, err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInit, path, err)
	}

	// WAL for concurrent readers, busy timeout so writers retry instead of
	// failing with SQLITE_BUSY right away
	pragmas := []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: exec %s: %v", ErrInit, p, err)
		}
	}

	s := &Store{
		db: db,
		rptr: repeater.New(&strategy.Backoff{
			Repeats: 3, Duration: 50 * time.Millisecond, Factor: 2, Jitter: true}),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate %s: %v", ErrInit, path, err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS swarm_state (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			state        TEXT NOT NULL,
			queen_status TEXT NOT NULL,
			worker_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_interactions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			from_agent TEXT NOT NULL,
			to_agent   TEXT NOT NULL,
			message    TEXT NOT NULL,
			task_id    TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS task_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			task_id     TEXT NOT NULL,
			description TEXT NOT NULL,
			assigned_to TEXT NOT NULL,
			status      TEXT NOT NULL,
			result      TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS performance_metrics (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			agent_id       TEXT NOT NULL,
			task_id        TEXT NOT NULL,
			execution_time REAL NOT NULL,
			tokens_used    INTEGER NOT NULL,
			success        BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_task ON task_history(task_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_agent ON performance_metrics(agent_id, timestamp)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Close flushes and releases the sqlite handle. Safe to call once; a second
// call is a no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.db.Close()
}

// write appends one row, retried with backoff and swallowed on final failure
func (s *Store) write(table, query string, arg any) {
	if s == nil || s.db == nil || atomic.LoadInt32(&s.closed) == 1 {
		return // degraded mode, telemetry disabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := s.rptr.Do(ctx, func() error {
		_, e := s.db.NamedExecContext(ctx, query, arg)
		return e
	})
	if err != nil {
		log.Printf("[WARN] failed to record %s row, %v", table, err)
	}
}

func now() int64 { return time.Now().UTC().Unix() }
