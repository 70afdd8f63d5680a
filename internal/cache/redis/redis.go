package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"merlin/internal/interfaces"
	"merlin/internal/types"
)

// Store keeps each entry as a single JSON envelope written with one SET, so a
// reader gets either the previous envelope or the new one. Keys never expire in
// Redis: freshness is judged by the reader and stale entries stay usable as a fallback.
type Store struct {
	client    *goredis.Client
	prefix    string
	opTimeout time.Duration
	now       func() time.Time
}

var _ interfaces.CacheStore = (*Store)(nil)

type envelope struct {
	Kind      types.CacheKind `json:"kind"`
	Payload   []byte          `json:"payload"`
	FetchedAt int64           `json:"fetched_at"`
	TTLMs     int64           `json:"ttl_ms"`
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) { s.opTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New connects to addr and verifies the connection with PING.
func New(ctx context.Context, addr string, db int, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		DB:       db,
		PoolSize: 10,
	})
	s := NewWithClient(client, opts...)

	pctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return s, nil
}

func NewWithClient(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "merlin:", opTimeout: 2 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) wrapKey(key string) string {
	return s.prefix + key
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

	raw, err := s.client.Get(ctx, s.wrapKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A broken envelope still counts as present so the caller can log the
		// corruption and fall through; the payload decoder rejects it.
		return types.CacheEntry{Key: key, Payload: raw}, true, nil
	}
	return types.CacheEntry{
		Key:       key,
		Kind:      env.Kind,
		Payload:   env.Payload,
		FetchedAt: time.UnixMilli(env.FetchedAt).UTC(),
		TTL:       time.Duration(env.TTLMs) * time.Millisecond,
	}, true, nil
}

func (s *Store) Put(ctx context.Context, key string, kind types.CacheKind, payload []byte, ttl time.Duration) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	b, err := json.Marshal(envelope{
		Kind:      kind,
		Payload:   payload,
		FetchedAt: s.now().UTC().UnixMilli(),
		TTLMs:     ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.wrapKey(key), b, 0).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.client.Del(ctx, s.wrapKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
