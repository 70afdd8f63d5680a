package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/types"
)

// Store is the durable cache backend. One row per key; Put replaces the row
// inside a transaction so a concurrent Get never observes a partial payload.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
	now       func() time.Time
}

var _ interfaces.CacheStore = (*Store)(nil)

type Option func(*Store)

// WithOpTimeout bounds every read and write.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) { s.opTimeout = d }
}

// WithClock overrides the time source used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates the parent directory when needed and initializes the schema in WAL mode.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &Store{db: db, opTimeout: 2 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	logger.Debug(context.Background(), "Opened sqlite cache", "path", path)
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			cache_key  TEXT    PRIMARY KEY,
			kind       TEXT    NOT NULL,
			payload    BLOB    NOT NULL,
			fetched_at INTEGER NOT NULL,
			ttl_ms     INTEGER NOT NULL
		);
	`)
	return err
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) Get(ctx context.Context, key string) (types.CacheEntry, bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var (
		e         types.CacheEntry
		kind      string
		fetchedMs int64
		ttlMs     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, kind, payload, fetched_at, ttl_ms FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&e.Key, &kind, &e.Payload, &fetchedMs, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	e.Kind = types.CacheKind(kind)
	e.FetchedAt = time.UnixMilli(fetchedMs).UTC()
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	return e, true, nil
}

func (s *Store) Put(ctx context.Context, key string, kind types.CacheKind, payload []byte, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (cache_key, kind, payload, fetched_at, ttl_ms)
		VALUES (?, ?, ?, ?, ?)
	`, key, string(kind), payload, s.now().UTC().UnixMilli(), ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("sqlite clear: %w", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
