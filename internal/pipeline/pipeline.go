package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"merlin/internal/analysis"
	"merlin/internal/indicators"
	"merlin/internal/interfaces"
	"merlin/internal/journal"
	"merlin/internal/llm"
	"merlin/internal/logger"
	"merlin/internal/marketdata"
	"merlin/internal/metrics"
	"merlin/internal/store"
	"merlin/internal/types"
)

// ErrInvalidRequest marks requests rejected before any data is fetched.
var ErrInvalidRequest = errors.New("invalid request")

// Warnings attached to degraded runs.
const (
	WarnSynthetic        = "synthetic market data used: live and cached data unavailable"
	WarnStaleMarket      = "stale cached market data used"
	WarnNeutralSentiment = "sentiment sources unavailable: neutral sentiment used"
	WarnStaleSentiment   = "stale cached sentiment used"
	WarnInsightFallback  = "insight provider failed: heuristic insight used"
)

const insightFailed = "Insight provider unavailable; returning heuristic result."

// Pipeline runs one analysis per request. It keeps no state between runs
// beyond what its collaborators share through the cache.
type Pipeline struct {
	cfg        *store.Config
	registry   *marketdata.Registry
	market     interfaces.MarketData
	sentiment  interfaces.SentimentProvider
	indicators *indicators.Engine
	analysis   *analysis.Engine
	insight    interfaces.InsightProvider
	journal    *journal.Journal
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

type Option func(*Pipeline)

// WithInsight sets the provider called after the decision. Without one the
// bundle carries no insight.
func WithInsight(p interfaces.InsightProvider) Option {
	return func(pl *Pipeline) { pl.insight = p }
}

func WithJournal(j *journal.Journal) Option {
	return func(pl *Pipeline) { pl.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// WithIDGenerator replaces the run id source.
func WithIDGenerator(fn func() string) Option {
	return func(pl *Pipeline) { pl.newID = fn }
}

// New validates cfg and assembles a pipeline. The registry is used to reject
// unknown exchanges before fetching.
func New(cfg *store.Config, registry *marketdata.Registry, market interfaces.MarketData, sentiment interfaces.SentimentProvider, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:        cfg,
		registry:   registry,
		market:     market,
		sentiment:  sentiment,
		indicators: indicators.New(cfg.Indicators),
		analysis:   analysis.New(cfg.Analysis),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Defaults returns the request described by the market configuration.
func (p *Pipeline) Defaults() types.AnalysisRequest {
	return types.AnalysisRequest{
		Exchange:  p.cfg.Market.Exchange,
		Symbol:    p.cfg.Market.Symbol,
		Timeframe: p.cfg.Market.Timeframe,
		Limit:     p.cfg.Market.Limit,
	}
}

// Validate normalizes req and fills blank identifiers from the configuration.
// Errors wrap ErrInvalidRequest.
func (p *Pipeline) Validate(req types.AnalysisRequest) (types.AnalysisRequest, error) {
	def := p.Defaults()
	if req.Exchange == "" {
		req.Exchange = def.Exchange
	}
	if req.Symbol == "" {
		req.Symbol = def.Symbol
	}
	if req.Timeframe == "" {
		req.Timeframe = def.Timeframe
	}
	req.Exchange = strings.ToLower(strings.TrimSpace(req.Exchange))
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	if _, err := marketdata.ParseTimeframe(req.Timeframe); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, err := p.registry.Lookup(req.Exchange); err != nil {
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Limit <= 0 || req.Limit > p.cfg.Pipeline.MaxLimit {
		return req, fmt.Errorf("%w: limit must be in 1..%d, got %d", ErrInvalidRequest, p.cfg.Pipeline.MaxLimit, req.Limit)
	}
	return req, nil
}

// Run fetches, scores and packages one request. Only invalid requests and
// caller cancellation are returned as errors; degraded data is reported
// through the bundle provenance and warnings.
func (p *Pipeline) Run(ctx context.Context, req types.AnalysisRequest) (types.ResultBundle, error) {
	req, err := p.Validate(req)
	if err != nil {
		return types.ResultBundle{}, err
	}

	start := p.now()
	op := logger.StartOperation(ctx, "pipeline.Run",
		"exchange", req.Exchange, "symbol", req.Symbol, "timeframe", req.Timeframe, "limit", req.Limit)
	ctx = op.GetContext()

	var (
		wg     sync.WaitGroup
		series types.CandleSeries
		sent   types.SentimentSnapshot
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		series = p.market.Fetch(ctx, req)
	}()
	go func() {
		defer wg.Done()
		sent = p.sentimentFor(ctx, req)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		op.EndWithError(err)
		return types.ResultBundle{}, err
	}

	snap := p.indicators.Compute(series)
	regime := p.analysis.Evaluate(snap, sent)

	bundle := types.ResultBundle{
		RunID:       p.newID(),
		GeneratedAt: p.now().UTC(),
		Request:     req,
		Series:      series,
		Indicators:  snap,
		Sentiment:   sent,
		Regime:      regime,
		Provenance: types.RunProvenance{
			Market:           series.Provenance,
			MarketStale:      series.Stale,
			Sentiment:        sent.Provenance,
			SentimentEnabled: sent.Provenance != types.ProvenanceDisabled,
		},
		Warnings: warnings(series, sent, snap),
	}

	if p.insight != nil && !req.SkipInsight {
		insight, ok := p.generateInsight(ctx, bundle)
		if !ok {
			bundle.Warnings = append(bundle.Warnings, WarnInsightFallback)
		}
		bundle.Insight = &insight
	}

	if err := ctx.Err(); err != nil {
		op.EndWithError(err)
		return types.ResultBundle{}, err
	}

	elapsed := p.now().Sub(start)
	p.metrics.Run(string(regime.Regime), string(regime.Recommendation), regime.CompositeScore, elapsed)
	logger.Regime(ctx, req.Symbol, string(regime.Regime), string(regime.Recommendation), regime.Confidence, regime.CompositeScore,
		"run_id", bundle.RunID,
		"market", string(series.Provenance),
		"sentiment", string(sent.Provenance),
		"completeness", regime.Completeness,
	)
	if p.journal != nil {
		if err := p.journal.Append(bundle); err != nil {
			logger.ErrorWithErr(ctx, "Failed to journal run", err, "run_id", bundle.RunID)
		}
	}
	op.End("regime", string(regime.Regime), "candles", series.Len())
	return bundle, nil
}

func (p *Pipeline) sentimentFor(ctx context.Context, req types.AnalysisRequest) types.SentimentSnapshot {
	if req.DisableSentiment || p.sentiment == nil {
		return types.NeutralSentiment(p.cfg.Sentiment.WindowHours, types.ProvenanceDisabled)
	}
	return p.sentiment.Snapshot(ctx)
}

// generateInsight bounds the provider call. ok is false when the provider
// failed and the heuristic insight was substituted.
func (p *Pipeline) generateInsight(ctx context.Context, bundle types.ResultBundle) (types.Insight, bool) {
	ictx, cancel := context.WithTimeout(ctx, p.cfg.Pipeline.InsightTimeout)
	defer cancel()

	insight, err := p.insight.Generate(ictx, bundle)
	if err != nil {
		logger.Fallback(ctx, "insight", p.insight.Name(), "heuristic", "error", err.Error())
		return llm.Fallback(bundle, insightFailed, err.Error()), false
	}
	return insight, true
}

func warnings(series types.CandleSeries, sent types.SentimentSnapshot, snap types.IndicatorSnapshot) []string {
	var out []string
	switch {
	case series.Provenance == types.ProvenanceSynthetic:
		out = append(out, WarnSynthetic)
	case series.Provenance == types.ProvenanceCached && series.Stale:
		out = append(out, WarnStaleMarket)
	}
	switch {
	case sent.Provenance == types.ProvenanceNeutral:
		out = append(out, WarnNeutralSentiment)
	case sent.Provenance == types.ProvenanceCached && sent.Stale:
		out = append(out, WarnStaleSentiment)
	}
	if len(snap.Omitted) > 0 {
		out = append(out, "insufficient history for: "+strings.Join(snap.Omitted, ", "))
	}
	return out
}
