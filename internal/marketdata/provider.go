package marketdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"merlin/internal/cache"
	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/metrics"
	"merlin/internal/store"
	"merlin/internal/types"
)

// Strategy is one rung of the fallback ladder. Fetch reports ok=false to
// hand the request to the next rung.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, req types.AnalysisRequest) (types.CandleSeries, bool)
}

// Provider serves candle series through an ordered ladder of strategies:
// live source, cache, synthetic. Fetch never fails.
type Provider struct {
	cfg        store.MarketConfig
	registry   *Registry
	cacheStore interfaces.CacheStore
	generator  *Generator
	metrics    *metrics.Metrics
	now        func() time.Time
	opTimeout  time.Duration
	ladder     []Strategy
}

var _ interfaces.MarketData = (*Provider)(nil)

type Option func(*Provider)

func WithGenerator(g *Generator) Option {
	return func(p *Provider) {
		p.generator = g
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithCacheTimeout bounds every cache read and write.
func WithCacheTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.opTimeout = d
	}
}

// NewProvider builds the ladder once. cacheStore may be nil, in which case the
// cache rungs always miss.
func NewProvider(cfg store.MarketConfig, registry *Registry, cacheStore interfaces.CacheStore, opts ...Option) *Provider {
	p := &Provider{
		cfg:        cfg,
		registry:   registry,
		cacheStore: cacheStore,
		now:        time.Now,
		opTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.generator == nil {
		p.generator = NewGenerator(WithGeneratorClock(p.now))
	}

	if cfg.PreferCache {
		p.ladder = append(p.ladder, Strategy{Name: "cache_fresh", Fetch: p.fromCache(true)})
	}
	p.ladder = append(p.ladder,
		Strategy{Name: "live", Fetch: p.fromLive},
		Strategy{Name: "cache", Fetch: p.fromCache(!cfg.StaleAllowed())},
		Strategy{Name: "synthetic", Fetch: p.fromGenerator},
	)
	return p
}

// Ladder returns the rung names in order.
func (p *Provider) Ladder() []string {
	names := make([]string, len(p.ladder))
	for i, s := range p.ladder {
		names[i] = s.Name
	}
	return names
}

func (p *Provider) Fetch(ctx context.Context, req types.AnalysisRequest) types.CandleSeries {
	req.Exchange = strings.ToLower(req.Exchange)
	req.Symbol = strings.ToUpper(req.Symbol)

	for i, step := range p.ladder {
		series, ok := step.Fetch(ctx, req)
		if ok {
			p.metrics.MarketStep(step.Name, "hit")
			p.metrics.SeriesServed(string(series.Provenance))
			series.Exchange = req.Exchange
			series.Symbol = req.Symbol
			series.Timeframe = req.Timeframe
			return series
		}
		p.metrics.MarketStep(step.Name, "miss")
		if i+1 < len(p.ladder) {
			logger.Fallback(ctx, "marketdata", step.Name, p.ladder[i+1].Name,
				"exchange", req.Exchange, "symbol", req.Symbol, "timeframe", req.Timeframe)
		}
	}
	// unreachable while the generator is the last rung
	return p.generator.Generate(req.Symbol, req.Timeframe, req.Limit)
}

func (p *Provider) sourceName(exchange string) string {
	if src, err := p.registry.Lookup(exchange); err == nil {
		return src.Name()
	}
	return exchange
}

func (p *Provider) cacheKey(req types.AnalysisRequest) string {
	return cache.CandleKey(p.sourceName(req.Exchange), req.Exchange, req.Symbol, req.Timeframe)
}

func (p *Provider) fromLive(ctx context.Context, req types.AnalysisRequest) (types.CandleSeries, bool) {
	src, err := p.registry.Lookup(req.Exchange)
	if err != nil {
		logger.Warn(ctx, "No live source for exchange", "exchange", req.Exchange, "error", err)
		return types.CandleSeries{}, false
	}
	step, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		return types.CandleSeries{}, false
	}

	liveCtx, cancel := context.WithTimeout(ctx, p.cfg.LiveTimeout)
	defer cancel()

	start := time.Now()
	raw, err := src.FetchCandles(liveCtx, req.Symbol, req.Timeframe, req.Limit)
	p.metrics.LiveFetch(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn(ctx, "Live fetch timed out", "source", src.Name(), "symbol", req.Symbol, "timeout", p.cfg.LiveTimeout)
		} else {
			logger.Warn(ctx, "Live fetch failed", "source", src.Name(), "symbol", req.Symbol, "error", err)
		}
		return types.CandleSeries{}, false
	}

	candles := Normalize(raw, step, req.Limit)
	if len(candles) == 0 {
		logger.Warn(ctx, "Live source returned no usable candles", "source", src.Name(), "symbol", req.Symbol, "raw", len(raw))
		return types.CandleSeries{}, false
	}

	series := types.CandleSeries{
		Exchange:   req.Exchange,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		Candles:    candles,
		Provenance: types.ProvenanceLive,
		FetchedAt:  p.now().UTC(),
	}
	if ctx.Err() == nil {
		p.writeBack(ctx, p.cacheKey(req), series)
	}
	return series, true
}

func (p *Provider) writeBack(ctx context.Context, key string, series types.CandleSeries) {
	if p.cacheStore == nil {
		return
	}
	payload, err := cache.EncodeSeries(series)
	if err != nil {
		logger.Warn(ctx, "Failed to encode series for cache", "key", key, "error", err)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	if err := p.cacheStore.Put(cctx, key, types.KindCandles, payload, p.cfg.CacheTTL); err != nil {
		p.metrics.CacheOp(string(types.KindCandles), "put", "error")
		logger.Warn(ctx, "Failed to write candles to cache", "key", key, "error", err)
		return
	}
	p.metrics.CacheOp(string(types.KindCandles), "put", "ok")
}

// fromCache serves the cached series for the request. With freshOnly set an
// expired entry is a miss; otherwise it is served and marked stale.
func (p *Provider) fromCache(freshOnly bool) func(context.Context, types.AnalysisRequest) (types.CandleSeries, bool) {
	return func(ctx context.Context, req types.AnalysisRequest) (types.CandleSeries, bool) {
		if p.cacheStore == nil {
			return types.CandleSeries{}, false
		}
		key := p.cacheKey(req)
		kind := string(types.KindCandles)

		cctx, cancel := context.WithTimeout(ctx, p.opTimeout)
		entry, found, err := p.cacheStore.Get(cctx, key)
		cancel()
		if err != nil {
			p.metrics.CacheOp(kind, "get", "error")
			logger.Warn(ctx, "Cache read failed", "key", key, "error", err)
			return types.CandleSeries{}, false
		}
		if !found {
			p.metrics.CacheOp(kind, "get", "miss")
			return types.CandleSeries{}, false
		}

		series, err := cache.DecodeSeries(entry)
		if err != nil {
			p.metrics.CacheOp(kind, "get", "corrupt")
			logger.Warn(ctx, "Ignoring corrupt cache entry", "key", key, "error", err)
			return types.CandleSeries{}, false
		}

		now := p.now()
		fresh := entry.IsFresh(now)
		if !fresh && freshOnly {
			p.metrics.CacheOp(kind, "get", "stale")
			return types.CandleSeries{}, false
		}
		p.metrics.CacheOp(kind, "get", "hit")

		if req.Limit > 0 && len(series.Candles) > req.Limit {
			series.Candles = series.Candles[len(series.Candles)-req.Limit:]
		}
		series.Provenance = types.ProvenanceCached
		series.Stale = !fresh
		series.FetchedAt = entry.FetchedAt
		if series.Stale {
			logger.Warn(ctx, "Serving stale cached candles", "key", key, "age", entry.Age(now).Round(time.Second))
		}
		return series, true
	}
}

func (p *Provider) fromGenerator(ctx context.Context, req types.AnalysisRequest) (types.CandleSeries, bool) {
	logger.Warn(ctx, "Generating synthetic candles", "symbol", req.Symbol, "timeframe", req.Timeframe, "limit", req.Limit)
	return p.generator.Generate(req.Symbol, req.Timeframe, req.Limit), true
}
