package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/apperror"
)

// Store wraps the SQLite connection and the tunables that shape query
// behavior (idle timeout for conversation reuse, history window sizes).
type Store struct {
	db           *sql.DB
	idleTimeout  time.Duration
	historyLimit int
	recallLimit  int
}

// Config tunes Store behavior; zero values fall back to spec defaults.
type Config struct {
	Path         string
	IdleTimeout  time.Duration
	HistoryLimit int
	RecallLimit  int
}

// Open opens (creating if absent) the SQLite database at cfg.Path, applies
// pending migrations, and returns a ready Store. WAL mode and a busy
// timeout are set so the scheduler, heartbeat, and pipeline goroutines can
// share one file without SQLITE_BUSY errors under light contention.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = 5
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, apperror.New(apperror.KindStore, "Open", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, apperror.New(apperror.KindStore, "Open.migrate", err)
	}

	return &Store{
		db:           db,
		idleTimeout:  cfg.IdleTimeout,
		historyLimit: cfg.HistoryLimit,
		recallLimit:  cfg.RecallLimit,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for CLI diagnostics (doctor,
// migrate) that need to query schema state directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperror.New(apperror.KindStore, op, err)
}

var errNotFound = fmt.Errorf("not found")
