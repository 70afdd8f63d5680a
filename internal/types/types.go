package types

import "time"

// Candle is one OHLCV bar. Ts is the open time in unix milliseconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Time returns the candle open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Ts).UTC()
}

// Provenance tells consumers where a series or snapshot came from.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceCached    Provenance = "cached"
	ProvenanceSynthetic Provenance = "synthetic"
	ProvenanceNeutral   Provenance = "neutral"
	ProvenanceDisabled  Provenance = "disabled"
)

// CandleSeries is an ascending, duplicate-free run of candles for one
// (exchange, symbol, timeframe). A refresh produces a new series.
type CandleSeries struct {
	Exchange   string     `json:"exchange"`
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Candles    []Candle   `json:"candles"`
	Provenance Provenance `json:"provenance"`
	Stale      bool       `json:"stale,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

func (s CandleSeries) Len() int { return len(s.Candles) }

// Last returns the most recent candle, or false for an empty series.
func (s CandleSeries) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

func (s CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Vol
	}
	return out
}

// IndicatorValue holds one computed indicator. Window is the lookback that was
// actually used, Requested the configured period.
type IndicatorValue struct {
	Value      float64            `json:"value"`
	Components map[string]float64 `json:"components,omitempty"`
	Window     int                `json:"window"`
	Requested  int                `json:"requested"`
}

// IndicatorSnapshot maps indicator name to value. Indicators that could not be
// computed on the available history are listed in Omitted instead.
type IndicatorSnapshot struct {
	Values    map[string]IndicatorValue `json:"values"`
	Omitted   []string                  `json:"omitted,omitempty"`
	Price     float64                   `json:"price"`
	PrevClose float64                   `json:"prev_close"`
	Candles   int                       `json:"candles"`
	LatestTs  int64                     `json:"latest_ts"`
}

// Get returns the named indicator if it was computed.
func (s IndicatorSnapshot) Get(name string) (IndicatorValue, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Component returns a named component of a structured indicator such as MACD.
func (s IndicatorSnapshot) Component(name, component string) (float64, bool) {
	v, ok := s.Values[name]
	if !ok {
		return 0, false
	}
	c, ok := v.Components[component]
	return c, ok
}
