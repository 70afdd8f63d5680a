package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"merlin/internal/types"
)

const (
	syntheticBase     = 30000.0
	syntheticMinSigma = 0.0005
	syntheticMaxSigma = 0.02
	// per-step return deviation of a 15m bar; longer bars scale with sqrt(time)
	syntheticSigma15m = 0.0017
)

// Generator produces deterministic placeholder candles when neither a live
// source nor the cache can serve a request. The same symbol, timeframe,
// limit and clock always yield the same series.
type Generator struct {
	now func() time.Time
}

type GeneratorOption func(*Generator)

func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns limit candles ending at the bar that contains now. An
// unknown timeframe falls back to 15m bars.
func (g *Generator) Generate(symbol, timeframe string, limit int) types.CandleSeries {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		step = 15 * time.Minute
	}
	now := g.now()
	series := types.CandleSeries{
		Symbol:     strings.ToUpper(symbol),
		Timeframe:  timeframe,
		Provenance: types.ProvenanceSynthetic,
		FetchedAt:  now.UTC(),
	}
	if limit <= 0 {
		return series
	}

	rng := rand.New(rand.NewSource(seed(series.Symbol, timeframe)))
	sigma := sigmaFor(step)
	last := AlignDown(now, step)
	first := last.Add(-time.Duration(limit-1) * step)

	candles := make([]types.Candle, limit)
	price := syntheticBase
	for i := range candles {
		open := price
		ret := rng.NormFloat64() * sigma
		closePrice := open * math.Exp(ret)
		wick := math.Abs(rng.NormFloat64()) * sigma * 0.5
		candles[i] = types.Candle{
			Ts:    first.Add(time.Duration(i) * step).UnixMilli(),
			Open:  open,
			High:  math.Max(open, closePrice) * (1 + wick),
			Low:   math.Min(open, closePrice) * (1 - wick),
			Close: closePrice,
			Vol:   100 * (0.5 + rng.Float64()),
		}
		price = closePrice
	}
	series.Candles = candles
	return series
}

func seed(symbol, timeframe string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol + "|" + timeframe))
	return int64(h.Sum64())
}

func sigmaFor(step time.Duration) float64 {
	s := syntheticSigma15m * math.Sqrt(step.Minutes()/15)
	return math.Min(syntheticMaxSigma, math.Max(syntheticMinSigma, s))
}
