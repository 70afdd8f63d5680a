package sentiment

import (
	"context"
	"sync"
	"time"

	"merlin/internal/cache"
	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/metrics"
	"merlin/internal/store"
	"merlin/internal/types"
)

// Service produces the sentiment snapshot for a run. It prefers a fresh
// cached snapshot, otherwise fetches every source concurrently, and degrades
// to a stale cached snapshot or the neutral snapshot. It never fails.
type Service struct {
	cfg        store.SentimentConfig
	sources    []interfaces.SentimentSource
	lexicon    *Lexicon
	cacheStore interfaces.CacheStore
	metrics    *metrics.Metrics
	now        func() time.Time
	opTimeout  time.Duration
}

var _ interfaces.SentimentProvider = (*Service)(nil)

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithCacheTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.opTimeout = d
	}
}

func WithLexicon(l *Lexicon) Option {
	return func(s *Service) {
		s.lexicon = l
	}
}

func NewService(cfg store.SentimentConfig, sources []interfaces.SentimentSource, cacheStore interfaces.CacheStore, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		sources:    sources,
		cacheStore: cacheStore,
		now:        time.Now,
		opTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lexicon == nil {
		s.lexicon = NewLexicon()
	}
	return s
}

// Enabled reports whether snapshots will carry real data.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled && len(s.sources) > 0
}

func (s *Service) SourceNames() []string {
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name()
	}
	return names
}

func (s *Service) Snapshot(ctx context.Context) types.SentimentSnapshot {
	window := s.cfg.WindowHours
	if !s.Enabled() {
		s.metrics.Sentiment(string(types.ProvenanceDisabled))
		return types.NeutralSentiment(window, types.ProvenanceDisabled)
	}

	key := cache.SentimentKey(s.SourceNames(), window)
	cached, fresh, found := s.readCache(ctx, key)
	if found && fresh {
		logger.Debug(ctx, "Using cached sentiment", "key", key, "count", cached.Count)
		s.metrics.Sentiment(string(types.ProvenanceCached))
		return cached
	}

	now := s.now()
	records, ok := s.collect(ctx, now)
	if !ok {
		if found {
			logger.Fallback(ctx, "sentiment", "live", "stale_cache", "key", key)
			cached.Stale = true
			s.metrics.Sentiment(string(types.ProvenanceCached))
			return cached
		}
		logger.Fallback(ctx, "sentiment", "live", "neutral")
		s.metrics.Sentiment(string(types.ProvenanceNeutral))
		return types.NeutralSentiment(window, types.ProvenanceNeutral)
	}

	snap := Aggregate(records, window, now)
	if ctx.Err() == nil {
		s.writeCache(ctx, key, snap)
	}
	s.metrics.Sentiment(string(types.ProvenanceLive))
	logger.Info(ctx, "Sentiment aggregated", "count", snap.Count, "compound", snap.Compound, "bias", snap.Bias)
	return snap
}

// collect fetches and scores every source. ok is false only when all sources failed.
func (s *Service) collect(ctx context.Context, now time.Time) ([]types.SentimentRecord, bool) {
	since := now.Add(-time.Duration(s.cfg.WindowHours) * time.Hour)

	type result struct {
		docs []types.Document
		err  error
	}
	results := make([]result, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src interfaces.SentimentSource) {
			defer wg.Done()
			docs, err := src.FetchDocuments(ctx, since, now)
			results[i] = result{docs: docs, err: err}
		}(i, src)
	}
	wg.Wait()

	var records []types.SentimentRecord
	succeeded := 0
	for i, r := range results {
		name := s.sources[i].Name()
		if r.err != nil {
			s.metrics.SourceError(name)
			logger.Warn(ctx, "Sentiment source failed", "source", name, "error", r.err)
			continue
		}
		succeeded++
		for _, d := range r.docs {
			ts := d.PublishedAt
			if ts.IsZero() {
				ts = now
			}
			records = append(records, types.SentimentRecord{
				Source:    name,
				Timestamp: ts,
				Compound:  s.lexicon.Score(d.Text),
			})
		}
	}
	return records, succeeded > 0
}

func (s *Service) readCache(ctx context.Context, key string) (snap types.SentimentSnapshot, fresh, found bool) {
	if s.cacheStore == nil {
		return snap, false, false
	}
	kind := string(types.KindSentiment)

	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	entry, ok, err := s.cacheStore.Get(cctx, key)
	cancel()
	if err != nil {
		s.metrics.CacheOp(kind, "get", "error")
		logger.Warn(ctx, "Cache read failed", "key", key, "error", err)
		return snap, false, false
	}
	if !ok {
		s.metrics.CacheOp(kind, "get", "miss")
		return snap, false, false
	}
	snap, err = cache.DecodeSentiment(entry)
	if err != nil {
		s.metrics.CacheOp(kind, "get", "corrupt")
		logger.Warn(ctx, "Ignoring corrupt cache entry", "key", key, "error", err)
		return snap, false, false
	}
	fresh = entry.IsFresh(s.now())
	if fresh {
		s.metrics.CacheOp(kind, "get", "hit")
	} else {
		s.metrics.CacheOp(kind, "get", "stale")
	}
	snap.Provenance = types.ProvenanceCached
	snap.Stale = false
	return snap, fresh, true
}

func (s *Service) writeCache(ctx context.Context, key string, snap types.SentimentSnapshot) {
	if s.cacheStore == nil {
		return
	}
	payload, err := cache.EncodeSentiment(snap)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.cacheStore.Put(cctx, key, types.KindSentiment, payload, s.cfg.CacheTTL); err != nil {
		s.metrics.CacheOp(string(types.KindSentiment), "put", "error")
		logger.Warn(ctx, "Failed to write sentiment to cache", "key", key, "error", err)
		return
	}
	s.metrics.CacheOp(string(types.KindSentiment), "put", "ok")
}
