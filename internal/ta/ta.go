package ta

import "math"

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := mean(vals[len(vals)-n:])
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

// Bollinger bands over the last n closes with k standard deviations.
func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	if len(closes) < n || n <= 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mid = mean(closes[len(closes)-n:])
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// BandPosition locates price inside the bands: 0 at the lower band, 1 at the
// upper band. Collapsed bands put the price in the middle.
func BandPosition(price, low, up float64) float64 {
	width := up - low
	if width <= 0 {
		return 0.5
	}
	return (price - low) / width
}

// ATR is the mean true range over the last period candles.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) || period <= 0 {
		return math.NaN()
	}
	if len(closes) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(period)
}

// Volatility is the standard deviation of the last n simple returns scaled by sqrt(n).
func Volatility(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n+1 {
		return math.NaN()
	}
	rets := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			return math.NaN()
		}
		rets = append(rets, closes[i]/prev-1)
	}
	return sampleStdDev(rets) * math.Sqrt(float64(n))
}

// VolumeRatio compares the last volume with the mean of the last n volumes.
func VolumeRatio(vols []float64, n int) float64 {
	if n <= 0 || len(vols) < n {
		return math.NaN()
	}
	m := mean(vols[len(vols)-n:])
	if m == 0 {
		return math.NaN()
	}
	return vols[len(vols)-1] / m
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return math.NaN()
	}
	m := mean(vals)
	s := 0.0
	for _, v := range vals {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(vals)-1))
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
