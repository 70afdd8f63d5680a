package ta

import (
	"math"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the latest simple moving average over period.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return math.NaN()
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return last(helper.ChanToSlice(sma.Compute(helper.SliceToChan(closes))))
}

// EMA returns the latest exponential moving average; the smoothing factor is 2/(period+1).
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return math.NaN()
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return last(helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes))))
}

// RSI returns the latest relative strength index with Wilder smoothing.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return last(helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes))))
}

// MACD returns the latest MACD line, signal line and histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	nan := math.NaN()
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nan, nan, nan
	}
	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	lines, signals := macd.Compute(helper.SliceToChan(closes))

	// Both outputs share one upstream; drain them together.
	var wg sync.WaitGroup
	var lineVals, signalVals []float64
	wg.Add(2)
	go func() {
		defer wg.Done()
		lineVals = helper.ChanToSlice(lines)
	}()
	go func() {
		defer wg.Done()
		signalVals = helper.ChanToSlice(signals)
	}()
	wg.Wait()

	line, sig = last(lineVals), last(signalVals)
	if !Finite(line) || !Finite(sig) {
		return nan, nan, nan
	}
	return line, sig, line - sig
}

func last(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]
}
