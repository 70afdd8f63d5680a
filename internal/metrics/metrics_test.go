package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.MarketStep("live", "error")
	m.CacheOp("candles", "get", "miss")
	m.Run("NEUTRAL", "NEUTRAL", 0, time.Second)
	assert.Nil(t, m.Registry())
}

func TestCountersAreIsolatedPerInstance(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.MarketStep("live", "error")
	a.MarketStep("live", "error")
	a.MarketStep("cache", "hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.MarketFetches.WithLabelValues("live", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.MarketFetches.WithLabelValues("cache", "hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MarketFetches.WithLabelValues("live", "error")))
}

func TestRunRecordsRegimeAndScore(t *testing.T) {
	m := NewMetrics()
	m.Run("BULLISH", "LONG", 0.42, 150*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Regimes.WithLabelValues("BULLISH", "LONG")))
	assert.Equal(t, 0.42, testutil.ToFloat64(m.CompositeScore))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.Sentiment("neutral")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `merlin_sentiment_snapshots_total{provenance="neutral"} 1`)
}
