package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MarketFetches    *prometheus.CounterVec // labels: step, outcome
	MarketProvenance *prometheus.CounterVec // labels: provenance
	CacheOps         *prometheus.CounterVec // labels: kind, op, outcome
	SentimentRuns    *prometheus.CounterVec // labels: provenance
	SourceErrors     *prometheus.CounterVec // labels: source
	Regimes          *prometheus.CounterVec // labels: regime, recommendation
	RunDuration      prometheus.Histogram
	LiveFetchDur     prometheus.Histogram
	CompositeScore   prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MarketFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_market_fetch_steps_total",
			Help: "Fallback ladder step outcomes",
		}, []string{"step", "outcome"}),
		MarketProvenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_market_series_total",
			Help: "Candle series returned by provenance",
		}, []string{"provenance"}),
		CacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_cache_operations_total",
			Help: "Cache store operations by payload kind and outcome",
		}, []string{"kind", "op", "outcome"}),
		SentimentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_sentiment_snapshots_total",
			Help: "Sentiment snapshots by provenance",
		}, []string{"provenance"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_sentiment_source_errors_total",
			Help: "Failed sentiment source fetches",
		}, []string{"source"}),
		Regimes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "merlin_regimes_total",
			Help: "Evaluated regimes",
		}, []string{"regime", "recommendation"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "merlin_pipeline_run_seconds",
			Help:    "End-to-end pipeline run duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LiveFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "merlin_market_live_fetch_seconds",
			Help:    "Live candle fetch duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CompositeScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "merlin_last_composite_score",
			Help: "Composite score of the most recent run",
		}),
	}
	m.registry.MustRegister(
		m.MarketFetches, m.MarketProvenance, m.CacheOps, m.SentimentRuns,
		m.SourceErrors, m.Regimes, m.RunDuration, m.LiveFetchDur, m.CompositeScore,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MarketStep(step, outcome string) {
	if m == nil {
		return
	}
	m.MarketFetches.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) SeriesServed(provenance string) {
	if m == nil {
		return
	}
	m.MarketProvenance.WithLabelValues(provenance).Inc()
}

func (m *Metrics) LiveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.LiveFetchDur.Observe(d.Seconds())
}

func (m *Metrics) CacheOp(kind, op, outcome string) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(kind, op, outcome).Inc()
}

func (m *Metrics) Sentiment(provenance string) {
	if m == nil {
		return
	}
	m.SentimentRuns.WithLabelValues(provenance).Inc()
}

func (m *Metrics) SourceError(source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) Run(regime, recommendation string, composite float64, d time.Duration) {
	if m == nil {
		return
	}
	m.Regimes.WithLabelValues(regime, recommendation).Inc()
	m.CompositeScore.Set(composite)
	m.RunDuration.Observe(d.Seconds())
}
