package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/cache"
	"merlin/internal/cache/memory"
	"merlin/internal/metrics"
	"merlin/internal/store"
	"merlin/internal/types"
)

type fakeSource struct {
	calls   atomic.Int32
	candles []types.Candle
	err     error
	block   bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.candles, f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func marketConfig(t *testing.T) store.MarketConfig {
	t.Helper()
	cfg, err := store.Default()
	require.NoError(t, err)
	cfg.Market.LiveTimeout = 50 * time.Millisecond
	return cfg.Market
}

func liveCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i := range out {
		p := 100 + float64(i)
		out[i] = types.Candle{
			Ts:   base.Add(time.Duration(i) * 15 * time.Minute).UnixMilli(),
			Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Vol: 10,
		}
	}
	return out
}

func request() types.AnalysisRequest {
	return types.AnalysisRequest{Exchange: "binance", Symbol: "btc/usdt", Timeframe: "15m", Limit: 100}
}

func newTestProvider(t *testing.T, cfg store.MarketConfig, src *fakeSource, clk *clock) (*Provider, *memory.Store, *metrics.Metrics) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(src, "binance")
	mem := memory.New(clk.now)
	m := metrics.NewMetrics()
	p := NewProvider(cfg, reg, mem, WithClock(clk.now), WithMetrics(m))
	return p, mem, m
}

func TestLiveFetchIsNormalizedAndCached(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{candles: liveCandles(120)}
	p, mem, m := newTestProvider(t, marketConfig(t), src, clk)

	s := p.Fetch(context.Background(), request())

	assert.Equal(t, types.ProvenanceLive, s.Provenance)
	assert.Equal(t, "BTC/USDT", s.Symbol)
	assert.Equal(t, "binance", s.Exchange)
	assert.Len(t, s.Candles, 100)

	entry, ok, err := mem.Get(context.Background(), cache.CandleKey("fake", "binance", "BTC/USDT", "15m"))
	require.NoError(t, err)
	require.True(t, ok)
	cached, err := cache.DecodeSeries(entry)
	require.NoError(t, err)
	assert.Equal(t, s.Candles, cached.Candles)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarketFetches.WithLabelValues("live", "hit")))
}

func TestLiveFailureFallsBackToCache(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{candles: liveCandles(100)}
	p, _, _ := newTestProvider(t, marketConfig(t), src, clk)
	warm := p.Fetch(context.Background(), request())
	require.Equal(t, types.ProvenanceLive, warm.Provenance)

	src.candles, src.err = nil, errors.New("connection refused")

	clk.t = clk.t.Add(time.Minute)
	s := p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceCached, s.Provenance)
	assert.False(t, s.Stale)
	assert.Equal(t, warm.Candles, s.Candles)

	// past the 5m ttl the entry is still served, marked stale
	clk.t = clk.t.Add(time.Hour)
	s = p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceCached, s.Provenance)
	assert.True(t, s.Stale)
}

func TestStaleCacheRefusedWhenNotAllowed(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	cfg := marketConfig(t)
	no := false
	cfg.AllowStale = &no
	src := &fakeSource{candles: liveCandles(100)}
	p, _, _ := newTestProvider(t, cfg, src, clk)
	p.Fetch(context.Background(), request())

	src.candles, src.err = nil, errors.New("down")
	clk.t = clk.t.Add(time.Hour)

	s := p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceSynthetic, s.Provenance)
}

func TestNoCacheFallsBackToSynthetic(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{err: errors.New("timeout")}
	p, mem, _ := newTestProvider(t, marketConfig(t), src, clk)

	a := p.Fetch(context.Background(), request())
	b := p.Fetch(context.Background(), request())

	assert.Equal(t, types.ProvenanceSynthetic, a.Provenance)
	assert.Len(t, a.Candles, 100)
	assert.Equal(t, a, b)
	assert.Equal(t, 0, mem.Len(), "synthetic data is never cached")
}

func TestCorruptCacheIsAMiss(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{err: errors.New("down")}
	p, mem, m := newTestProvider(t, marketConfig(t), src, clk)
	mem.Set(types.CacheEntry{
		Key:       cache.CandleKey("fake", "binance", "BTC/USDT", "15m"),
		Kind:      types.KindCandles,
		Payload:   []byte(`{"candles":[{"Ts":1,"Close":`),
		FetchedAt: clk.t,
		TTL:       time.Hour,
	})

	s := p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceSynthetic, s.Provenance)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOps.WithLabelValues("candles", "get", "corrupt")))
}

func TestLiveTimeoutIsBounded(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{block: true}
	p, _, _ := newTestProvider(t, marketConfig(t), src, clk)

	start := time.Now()
	s := p.Fetch(context.Background(), request())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, types.ProvenanceSynthetic, s.Provenance)
}

func TestPreferCacheSkipsNetworkWhenFresh(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	cfg := marketConfig(t)
	cfg.PreferCache = true
	src := &fakeSource{candles: liveCandles(100)}
	p, _, _ := newTestProvider(t, cfg, src, clk)
	assert.Equal(t, []string{"cache_fresh", "live", "cache", "synthetic"}, p.Ladder())

	p.Fetch(context.Background(), request())
	require.Equal(t, int32(1), src.calls.Load())

	s := p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceCached, s.Provenance)
	assert.Equal(t, int32(1), src.calls.Load())

	clk.t = clk.t.Add(10 * time.Minute)
	s = p.Fetch(context.Background(), request())
	assert.Equal(t, types.ProvenanceLive, s.Provenance)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCancelledContextWritesNothing(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{candles: liveCandles(100)}
	p, mem, _ := newTestProvider(t, marketConfig(t), src, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Fetch(ctx, request())
	assert.Equal(t, 0, mem.Len())
}

func TestCachedSeriesTrimmedToLimit(t *testing.T) {
	clk := &clock{t: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)}
	src := &fakeSource{candles: liveCandles(100)}
	p, _, _ := newTestProvider(t, marketConfig(t), src, clk)
	p.Fetch(context.Background(), request())

	src.err = errors.New("down")
	req := request()
	req.Limit = 10
	s := p.Fetch(context.Background(), req)
	assert.Equal(t, types.ProvenanceCached, s.Provenance)
	assert.Len(t, s.Candles, 10)
}

func TestRegistryUnknownExchange(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeSource{}, "binance", "BINANCEUS")

	_, err := reg.Lookup("kraken")
	assert.True(t, errors.Is(err, ErrUnknownExchange))

	src, err := reg.Lookup("BinanceUS")
	require.NoError(t, err)
	assert.Equal(t, "fake", src.Name())
	assert.Equal(t, []string{"binance", "binanceus"}, reg.Exchanges())
}
