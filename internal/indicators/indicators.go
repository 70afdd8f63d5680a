package indicators

import (
	"math"

	"merlin/internal/store"
	"merlin/internal/ta"
	"merlin/internal/types"
)

// Indicator names as they appear in a snapshot.
const (
	SMAShort    = "sma_short"
	SMALong     = "sma_long"
	EMAShort    = "ema_short"
	EMALong     = "ema_long"
	RSI         = "rsi"
	MACD        = "macd"
	Bollinger   = "bollinger"
	VolumeRatio = "volume_ratio"
	Volatility  = "volatility"
	ATR         = "atr"
)

// MovingAverages lists the trend averages in a fixed order.
var MovingAverages = []string{EMAShort, EMALong, SMAShort, SMALong}

// Engine computes indicator snapshots. It holds only configuration.
type Engine struct {
	cfg store.IndicatorConfig
}

func New(cfg store.IndicatorConfig) *Engine {
	if cfg.MinWindow < 2 {
		cfg.MinWindow = 2
	}
	return &Engine{cfg: cfg}
}

// Compute derives every indicator family from the series. Families whose
// minimum window does not fit the history are listed in Omitted.
func (e *Engine) Compute(series types.CandleSeries) types.IndicatorSnapshot {
	n := series.Len()
	snap := types.IndicatorSnapshot{
		Values:  make(map[string]types.IndicatorValue),
		Candles: n,
	}
	if last, ok := series.Last(); ok {
		snap.Price = last.Close
		snap.PrevClose = last.Close
		snap.LatestTs = last.Ts
		if n > 1 {
			snap.PrevClose = series.Candles[n-2].Close
		}
	}

	closes := series.Closes()
	c := &collector{snap: &snap}

	c.single(SMAShort, e.cfg.SMAShort, n, e.cfg.MinWindow, func(w int) float64 { return ta.SMA(closes, w) })
	c.single(SMALong, e.cfg.SMALong, n, e.cfg.MinWindow, func(w int) float64 { return ta.SMA(closes, w) })
	c.single(EMAShort, e.cfg.EMAShort, n, e.cfg.MinWindow, func(w int) float64 { return ta.EMA(closes, w) })
	c.single(EMALong, e.cfg.EMALong, n, e.cfg.MinWindow, func(w int) float64 { return ta.EMA(closes, w) })

	// RSI, volatility and ATR consume one extra candle for the first difference.
	c.single(RSI, e.cfg.RSIPeriod, n-1, e.cfg.MinWindow, func(w int) float64 { return ta.RSI(closes, w) })

	e.macd(c, closes)
	e.bollinger(c, closes, snap.Price)

	vols := series.Volumes()
	c.single(VolumeRatio, e.cfg.VolumeWindow, n, e.cfg.MinWindow, func(w int) float64 { return ta.VolumeRatio(vols, w) })
	c.single(Volatility, e.cfg.VolatilityWindow, n-1, e.cfg.MinWindow, func(w int) float64 { return ta.Volatility(closes, w) })

	highs, lows := series.Highs(), series.Lows()
	c.single(ATR, e.cfg.ATRPeriod, n-1, e.cfg.MinWindow, func(w int) float64 { return ta.ATR(highs, lows, closes, w) })

	return snap
}

// macd shrinks all three periods proportionally when history is shorter than
// slow+signal-1 candles.
func (e *Engine) macd(c *collector, closes []float64) {
	fast, slow, signal := MACDPeriods(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal, len(closes), e.cfg.MinWindow)
	if slow == 0 {
		c.omit(MACD)
		return
	}
	line, sig, hist := ta.MACD(closes, fast, slow, signal)
	if !ta.Finite(line) || !ta.Finite(sig) || !ta.Finite(hist) {
		c.omit(MACD)
		return
	}
	c.put(MACD, types.IndicatorValue{
		Value: line,
		Components: map[string]float64{
			"macd":      line,
			"signal":    sig,
			"histogram": hist,
		},
		Window:    slow,
		Requested: e.cfg.MACDSlow,
	})
}

// MACDPeriods returns the (fast, slow, signal) periods that fit available
// closes, or zeros when the slow window would fall below minimum.
func MACDPeriods(fast, slow, signal, available, minimum int) (int, int, int) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return 0, 0, 0
	}
	need := slow + signal - 1
	if available >= need {
		return fast, slow, signal
	}
	factor := float64(available) / float64(need)
	s := int(math.Floor(float64(slow) * factor))
	sig := int(math.Floor(float64(signal) * factor))
	if sig < 2 {
		sig = 2
	}
	if s+sig-1 > available {
		s = available - sig + 1
	}
	f := int(math.Round(float64(fast) * factor))
	if f < 2 {
		f = 2
	}
	if s < minimum || f >= s {
		return 0, 0, 0
	}
	return f, s, sig
}

func (e *Engine) bollinger(c *collector, closes []float64, price float64) {
	w, ok := ta.EffectiveWindow(e.cfg.BBWindow, len(closes), e.cfg.MinWindow)
	if !ok {
		c.omit(Bollinger)
		return
	}
	mid, up, low := ta.Bollinger(closes, w, e.cfg.BBStdDev)
	if !ta.Finite(mid) || !ta.Finite(up) || !ta.Finite(low) {
		c.omit(Bollinger)
		return
	}
	width := 0.0
	if mid != 0 {
		width = (up - low) / mid
	}
	c.put(Bollinger, types.IndicatorValue{
		Value: ta.BandPosition(price, low, up),
		Components: map[string]float64{
			"upper":    up,
			"middle":   mid,
			"lower":    low,
			"position": ta.BandPosition(price, low, up),
			"width":    width,
		},
		Window:    w,
		Requested: e.cfg.BBWindow,
	})
}

type collector struct {
	snap *types.IndicatorSnapshot
}

func (c *collector) single(name string, requested, available, minimum int, fn func(w int) float64) {
	w, ok := ta.EffectiveWindow(requested, available, minimum)
	if !ok {
		c.omit(name)
		return
	}
	v := fn(w)
	if !ta.Finite(v) {
		c.omit(name)
		return
	}
	c.put(name, types.IndicatorValue{Value: v, Window: w, Requested: requested})
}

func (c *collector) put(name string, v types.IndicatorValue) {
	c.snap.Values[name] = v
}

func (c *collector) omit(name string) {
	c.snap.Omitted = append(c.snap.Omitted, name)
}
