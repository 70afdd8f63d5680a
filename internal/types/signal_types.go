package types

import "time"

// Document is a raw piece of text pulled from a sentiment source.
type Document struct {
	Source      string    `json:"source"`
	Text        string    `json:"text"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// SentimentRecord is a scored document.
type SentimentRecord struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Compound  float64   `json:"compound"`
}

// SentimentSnapshot aggregates records over a trailing window.
// Compound is in [-1,1]; the three ratios are each in [0,1].
type SentimentSnapshot struct {
	Compound    float64    `json:"compound"`
	Positive    float64    `json:"positive"`
	Negative    float64    `json:"negative"`
	Neutral     float64    `json:"neutral"`
	Count       int        `json:"count"`
	Bias        float64    `json:"bias"`
	WindowHours int        `json:"window_hours"`
	Provenance  Provenance `json:"provenance"`
	Stale       bool       `json:"stale,omitempty"`
}

// NeutralSentiment is the fixed snapshot returned when nothing can be aggregated.
func NeutralSentiment(windowHours int, p Provenance) SentimentSnapshot {
	return SentimentSnapshot{Neutral: 1, WindowHours: windowHours, Provenance: p}
}

// Informative reports whether the snapshot carries real aggregated data.
func (s SentimentSnapshot) Informative() bool {
	return s.Provenance != ProvenanceDisabled && s.Provenance != ProvenanceNeutral && s.Count > 0
}

type Regime string

const (
	RegimeBullish  Regime = "BULLISH"
	RegimeBearish  Regime = "BEARISH"
	RegimeNeutral  Regime = "NEUTRAL"
	RegimeVolatile Regime = "VOLATILE"
)

type Recommendation string

const (
	RecommendLong    Recommendation = "LONG"
	RecommendShort   Recommendation = "SHORT"
	RecommendNeutral Recommendation = "NEUTRAL"
)

// Factor is one named sub-score and its weighted contribution to the composite.
type Factor struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Available    bool    `json:"available"`
}

// RegimeResult is the decision of the system. Treat it as a value.
type RegimeResult struct {
	CompositeScore float64        `json:"composite_score"`
	Regime         Regime         `json:"regime"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	Completeness   float64        `json:"completeness"`
	Factors        []Factor       `json:"contributing_factors"`
	// Tags are short rationale labels such as "rsi_overbought".
	Tags []string `json:"tags,omitempty"`
}

// Factor returns the named factor.
func (r RegimeResult) Factor(name string) (Factor, bool) {
	for _, f := range r.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Insight is free-text commentary produced after the decision.
type Insight struct {
	Provider       string   `json:"provider"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	Rationale      string   `json:"rationale"`
	KeyLevels      []string `json:"key_levels,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	Fallback       bool     `json:"fallback"`
}

// AnalysisRequest identifies one pipeline run.
type AnalysisRequest struct {
	Exchange         string `json:"exchange"`
	Symbol           string `json:"symbol"`
	Timeframe        string `json:"timeframe"`
	Limit            int    `json:"limit"`
	DisableSentiment bool   `json:"disable_sentiment,omitempty"`
	SkipInsight      bool   `json:"skip_insight,omitempty"`
}

type RunProvenance struct {
	Market           Provenance `json:"market"`
	MarketStale      bool       `json:"market_stale,omitempty"`
	Sentiment        Provenance `json:"sentiment"`
	SentimentEnabled bool       `json:"sentiment_enabled"`
}

// ResultBundle is everything a presentation layer needs from one run.
type ResultBundle struct {
	RunID       string            `json:"run_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Request     AnalysisRequest   `json:"request"`
	Series      CandleSeries      `json:"series"`
	Indicators  IndicatorSnapshot `json:"indicators"`
	Sentiment   SentimentSnapshot `json:"sentiment"`
	Regime      RegimeResult      `json:"regime"`
	Insight     *Insight          `json:"insight,omitempty"`
	Provenance  RunProvenance     `json:"provenance"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// CacheKind tags the payload shape stored under a cache key.
type CacheKind string

const (
	KindCandles   CacheKind = "candles"
	KindSentiment CacheKind = "sentiment"
)

// CacheEntry is one persisted payload with its freshness metadata.
type CacheEntry struct {
	Key       string
	Kind      CacheKind
	Payload   []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// IsFresh reports now - FetchedAt < TTL.
func (e CacheEntry) IsFresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Age is the time since the entry was written.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
