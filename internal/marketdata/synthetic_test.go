package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/cache"
	"merlin/internal/types"
)

func fixedClock() time.Time {
	return time.Date(2024, 6, 3, 10, 7, 31, 0, time.UTC)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := NewGenerator(WithGeneratorClock(fixedClock))

	a := g.Generate("BTC/USDT", "15m", 300)
	b := g.Generate("BTC/USDT", "15m", 300)
	assert.Equal(t, a, b)

	other := g.Generate("ETH/USDT", "15m", 300)
	assert.NotEqual(t, a.Candles, other.Candles)
}

func TestGenerateShape(t *testing.T) {
	g := NewGenerator(WithGeneratorClock(fixedClock))
	s := g.Generate("btc/usdt", "1h", 250)

	require.Len(t, s.Candles, 250)
	assert.Equal(t, types.ProvenanceSynthetic, s.Provenance)
	assert.Equal(t, "BTC/USDT", s.Symbol)
	require.NoError(t, cache.ValidateSeries(s))

	last, _ := s.Last()
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC).UnixMilli(), last.Ts)
	assert.Equal(t, time.Hour.Milliseconds(), s.Candles[1].Ts-s.Candles[0].Ts)
	assert.Equal(t, 30000.0, s.Candles[0].Open)
	for _, c := range s.Candles {
		assert.Greater(t, c.Vol, 0.0)
	}
}

func TestGenerateZeroLimit(t *testing.T) {
	s := NewGenerator(WithGeneratorClock(fixedClock)).Generate("X", "1m", 0)
	assert.Empty(t, s.Candles)
	assert.Equal(t, types.ProvenanceSynthetic, s.Provenance)
}

func TestSigmaBounds(t *testing.T) {
	assert.Equal(t, syntheticMinSigma, sigmaFor(time.Nanosecond))
	assert.Equal(t, syntheticMaxSigma, sigmaFor(365*24*time.Hour))
	assert.InDelta(t, syntheticSigma15m, sigmaFor(15*time.Minute), 1e-12)
}
