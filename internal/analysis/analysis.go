package analysis

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"merlin/internal/indicators"
	"merlin/internal/store"
	"merlin/internal/types"
)

// Factor names. The order here is the order contributions are summed in.
const (
	FactorTrend      = "trend"
	FactorMomentum   = "momentum"
	FactorMACD       = "macd"
	FactorBollinger  = "bollinger"
	FactorVolume     = "volume"
	FactorSentiment  = "sentiment"
	FactorVolatility = "volatility"
)

var factorOrder = []string{
	FactorTrend, FactorMomentum, FactorMACD, FactorBollinger,
	FactorVolume, FactorSentiment, FactorVolatility,
}

const scorePlaces = 6

// Engine turns indicator and sentiment snapshots into a regime decision.
// Evaluate is a pure function of its inputs and the configuration.
type Engine struct {
	cfg     store.AnalysisConfig
	weights map[string]float64
}

func New(cfg store.AnalysisConfig) *Engine {
	return &Engine{cfg: cfg, weights: cfg.Weights.AsMap()}
}

func (e *Engine) Evaluate(ind types.IndicatorSnapshot, sent types.SentimentSnapshot) types.RegimeResult {
	scores := map[string]float64{}
	available := map[string]bool{}
	set := func(name string, score float64, ok bool) {
		if ok && !math.IsNaN(score) && !math.IsInf(score, 0) {
			scores[name] = clamp(score)
			available[name] = true
		}
	}

	scorers := []struct {
		name  string
		score func(types.IndicatorSnapshot) (float64, bool)
	}{
		{FactorTrend, e.trend},
		{FactorMomentum, e.momentum},
		{FactorMACD, e.macd},
		{FactorBollinger, e.bollinger},
		{FactorVolume, e.volume},
	}
	for _, s := range scorers {
		v, ok := s.score(ind)
		set(s.name, v, ok)
	}
	set(FactorSentiment, sent.Compound, sentimentAvailable(sent))
	vol, volOK := ind.Get(indicators.Volatility)
	set(FactorVolatility, math.Min(1, vol.Value/e.cfg.VolatilityCeiling), volOK)

	var sum, configured, present float64
	factors := make([]types.Factor, 0, len(factorOrder))
	for _, name := range factorOrder {
		w := e.weights[name]
		f := types.Factor{Name: name, Weight: w, Available: available[name]}
		if f.Available {
			f.Score = round(scores[name])
			f.Contribution = round(w * scores[name])
			sum += w * scores[name]
		}
		if w > 0 {
			configured += w
			if f.Available {
				present += w
			}
		}
		factors = append(factors, f)
	}
	sort.SliceStable(factors, func(i, j int) bool {
		ai, aj := math.Abs(factors[i].Contribution), math.Abs(factors[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return factors[i].Name < factors[j].Name
	})

	composite := round(clamp(sum))
	completeness := 0.0
	if configured > 0 {
		completeness = round(present / configured)
	}

	res := types.RegimeResult{
		CompositeScore: composite,
		Completeness:   completeness,
		Confidence:     round(math.Min(1, math.Abs(composite)/e.cfg.ConfidenceScale) * completeness),
		Factors:        factors,
	}
	switch {
	case composite >= e.cfg.Bands.Long:
		res.Regime, res.Recommendation = types.RegimeBullish, types.RecommendLong
	case composite <= e.cfg.Bands.Short:
		res.Regime, res.Recommendation = types.RegimeBearish, types.RecommendShort
	default:
		res.Regime, res.Recommendation = types.RegimeNeutral, types.RecommendNeutral
	}
	// the override changes the label only; the recommendation stays band-driven
	if volOK && vol.Value > e.cfg.VolatilityCeiling {
		res.Regime = types.RegimeVolatile
	}
	res.Tags = e.tags(ind, sent, scores, available)
	return res
}

// trend averages the scaled distance of price from each available moving average.
func (e *Engine) trend(ind types.IndicatorSnapshot) (float64, bool) {
	if ind.Price <= 0 {
		return 0, false
	}
	var sum float64
	n := 0
	for _, name := range indicators.MovingAverages {
		ma, ok := ind.Get(name)
		if !ok || ma.Value <= 0 {
			continue
		}
		sum += clamp(((ind.Price - ma.Value) / ma.Value) / e.cfg.TrendScale)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// momentum reads RSI as a contrarian signal at the extremes and as a mild
// trend-following signal between the bands.
func (e *Engine) momentum(ind types.IndicatorSnapshot) (float64, bool) {
	v, ok := ind.Get(indicators.RSI)
	if !ok {
		return 0, false
	}
	rsi := math.Max(0, math.Min(100, v.Value))
	ob, os := e.cfg.RSIOverbought, e.cfg.RSIOversold
	switch {
	case rsi >= ob:
		return -(0.5 + 0.5*(rsi-ob)/(100-ob)), true
	case rsi <= os:
		return 0.5 + 0.5*(os-rsi)/os, true
	case rsi >= 50:
		return (rsi - 50) / (ob - 50) * 0.25, true
	default:
		return (rsi - 50) / (50 - os) * 0.25, true
	}
}

func (e *Engine) macd(ind types.IndicatorSnapshot) (float64, bool) {
	hist, ok := ind.Component(indicators.MACD, "histogram")
	if !ok || ind.Price <= 0 {
		return 0, false
	}
	return hist / ind.Price / e.cfg.MACDScale, true
}

// bollinger is mean-reverting: the upper band scores -1, the lower band +1.
func (e *Engine) bollinger(ind types.IndicatorSnapshot) (float64, bool) {
	pos, ok := ind.Component(indicators.Bollinger, "position")
	if !ok {
		return 0, false
	}
	return (0.5 - pos) * 2, true
}

// volume scales the direction of the last bar by how unusual its volume was.
func (e *Engine) volume(ind types.IndicatorSnapshot) (float64, bool) {
	v, ok := ind.Get(indicators.VolumeRatio)
	if !ok {
		return 0, false
	}
	return clamp(v.Value-1) * sign(ind.Price-ind.PrevClose), true
}

func sentimentAvailable(s types.SentimentSnapshot) bool {
	return s.Provenance != types.ProvenanceDisabled && s.Provenance != types.ProvenanceNeutral
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(scorePlaces).Float64()
	return f
}
