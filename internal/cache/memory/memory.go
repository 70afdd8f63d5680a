package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"merlin/internal/interfaces"
	"merlin/internal/types"
)

// Store keeps cache entries in process memory. Entries are copied on the way
// in and out so callers never share a payload slice.
type Store struct {
	mu      sync.RWMutex
	entries map[string]types.CacheEntry
	now     func() time.Time
}

var _ interfaces.CacheStore = (*Store)(nil)

func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{entries: make(map[string]types.CacheEntry), now: now}
}

func (s *Store) Get(ctx context.Context, key string) (types.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.CacheEntry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return types.CacheEntry{}, false, nil
	}
	e.Payload = append([]byte(nil), e.Payload...)
	return e, true, nil
}

func (s *Store) Put(ctx context.Context, key string, kind types.CacheKind, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = types.CacheEntry{
		Key:       key,
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		FetchedAt: s.now().UTC(),
		TTL:       ttl,
	}
	return nil
}

// Set stores a fully specified entry, including its fetch time.
func (s *Store) Set(entry types.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Payload = append([]byte(nil), entry.Payload...)
	s.entries[entry.Key] = entry
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]types.CacheEntry)
	return nil
}

// Keys lists the stored keys that start with prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
