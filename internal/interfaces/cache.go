package interfaces

import (
	"context"
	"time"

	"merlin/internal/types"
)

// CacheStore persists payloads keyed by composite string keys. Put replaces
// the entry for a key atomically; readers see the old or the new entry in full.
type CacheStore interface {
	Get(ctx context.Context, key string) (types.CacheEntry, bool, error)
	Put(ctx context.Context, key string, kind types.CacheKind, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
