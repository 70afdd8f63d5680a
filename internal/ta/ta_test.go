package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEffectiveWindow(t *testing.T) {
	cases := []struct {
		name                          string
		requested, available, minimum int
		want                          int
		ok                            bool
	}{
		{"full history", 20, 100, 5, 20, true},
		{"shrinks to history", 200, 120, 5, 120, true},
		{"exactly minimum", 50, 5, 5, 5, true},
		{"below minimum", 50, 4, 5, 0, false},
		{"no data", 14, 0, 5, 0, false},
		{"bad request", 0, 100, 5, 0, false},
		{"minimum clamps to one", 3, 2, 0, 2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, ok := EffectiveWindow(tc.requested, tc.available, tc.minimum)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, w)
			if ok {
				assert.LessOrEqual(t, w, tc.available)
				assert.LessOrEqual(t, w, tc.requested)
			}
		})
	}
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4.0, SMA(closes, 3), 1e-12)
	assert.InDelta(t, 3.0, SMA(closes, 5), 1e-12)
	assert.True(t, math.IsNaN(SMA(closes, 6)))
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 100.0, EMA(flat(30, 100), 10), 1e-9)

	// A late jump moves the EMA further than the SMA of the same period.
	closes := append(flat(30, 100), 110, 110)
	assert.Greater(t, EMA(closes, 10), SMA(closes, 10))
	assert.True(t, math.IsNaN(EMA(closes[:5], 10)))
}

func TestRSI(t *testing.T) {
	assert.InDelta(t, 100.0, RSI(ramp(30, 100, 1), 14), 1e-9)
	assert.InDelta(t, 0.0, RSI(ramp(30, 100, -1), 14), 1e-9)
	assert.True(t, math.IsNaN(RSI(ramp(14, 100, 1), 14)), "needs period+1 closes")

	up := []float64{}
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			up = append(up, 100+float64(i))
		} else {
			up = append(up, 100+float64(i)-1.5)
		}
	}
	v := RSI(up, 14)
	assert.Greater(t, v, 50.0)
	assert.Less(t, v, 100.0)
}

func TestMACD(t *testing.T) {
	line, sig, hist := MACD(flat(60, 100), 12, 26, 9)
	assert.InDelta(t, 0, line, 1e-9)
	assert.InDelta(t, 0, sig, 1e-9)
	assert.InDelta(t, 0, hist, 1e-9)

	line, sig, hist = MACD(ramp(80, 100, 1), 12, 26, 9)
	assert.Greater(t, line, 0.0)
	assert.InDelta(t, line-sig, hist, 1e-12)

	line, _, _ = MACD(ramp(30, 100, 1), 12, 26, 9)
	assert.True(t, math.IsNaN(line), "needs slow+signal-1 closes")

	line, _, _ = MACD(ramp(80, 100, 1), 26, 12, 9)
	assert.True(t, math.IsNaN(line), "fast must be below slow")
}

func TestBollinger(t *testing.T) {
	mid, up, low := Bollinger(flat(20, 50), 20, 2)
	assert.Equal(t, 50.0, mid)
	assert.Equal(t, up, low)
	assert.Equal(t, 0.5, BandPosition(50, low, up))

	mid, up, low = Bollinger([]float64{1, 2, 3, 4, 5}, 5, 2)
	assert.InDelta(t, 3.0, mid, 1e-12)
	sd := math.Sqrt(2)
	assert.InDelta(t, 3+2*sd, up, 1e-12)
	assert.InDelta(t, 3-2*sd, low, 1e-12)
	assert.InDelta(t, 1.0, BandPosition(up, low, up), 1e-12)
	assert.InDelta(t, 0.0, BandPosition(low, low, up), 1e-12)
}

func TestATR(t *testing.T) {
	highs := []float64{10, 11, 12, 13}
	lows := []float64{9, 10, 11, 12}
	closes := []float64{9.5, 10.5, 11.5, 12.5}
	// true range each bar: max(1, |h - prevClose|=1.5, |l - prevClose|=0.5) = 1.5
	assert.InDelta(t, 1.5, ATR(highs, lows, closes, 3), 1e-12)
	assert.True(t, math.IsNaN(ATR(highs, lows, closes, 4)))
	assert.True(t, math.IsNaN(ATR(highs, lows[:2], closes, 2)))
}

func TestVolatilityAndVolumeRatio(t *testing.T) {
	assert.InDelta(t, 0.0, Volatility(flat(30, 10), 20), 1e-12)
	assert.Greater(t, Volatility([]float64{10, 11, 10, 11, 10, 11, 10}, 6), 0.0)
	assert.True(t, math.IsNaN(Volatility(flat(5, 10), 5)))

	assert.InDelta(t, 2.0, VolumeRatio([]float64{1, 1, 1, 3}, 4), 1e-12)
	assert.True(t, math.IsNaN(VolumeRatio(flat(5, 0), 5)))
}

func TestDeterministic(t *testing.T) {
	closes := ramp(250, 100, 0.37)
	for i := 0; i < 3; i++ {
		a1, b1, c1 := MACD(closes, 12, 26, 9)
		a2, b2, c2 := MACD(closes, 12, 26, 9)
		assert.Equal(t, math.Float64bits(a1), math.Float64bits(a2))
		assert.Equal(t, math.Float64bits(b1), math.Float64bits(b2))
		assert.Equal(t, math.Float64bits(c1), math.Float64bits(c2))
		assert.Equal(t, math.Float64bits(RSI(closes, 14)), math.Float64bits(RSI(closes, 14)))
	}
}
