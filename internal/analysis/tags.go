package analysis

import (
	"merlin/internal/indicators"
	"merlin/internal/types"
)

// tags labels the notable conditions behind a decision, in a fixed order.
func (e *Engine) tags(ind types.IndicatorSnapshot, sent types.SentimentSnapshot, scores map[string]float64, available map[string]bool) []string {
	var out []string
	add := func(cond bool, tag string) {
		if cond {
			out = append(out, tag)
		}
	}

	if available[FactorTrend] {
		add(scores[FactorTrend] >= 0.5, "trend_up")
		add(scores[FactorTrend] <= -0.5, "trend_down")
	}
	if rsi, ok := ind.Get(indicators.RSI); ok {
		add(rsi.Value >= e.cfg.RSIOverbought, "rsi_overbought")
		add(rsi.Value <= e.cfg.RSIOversold, "rsi_oversold")
	}
	if available[FactorMACD] {
		add(scores[FactorMACD] > 0, "macd_bullish")
		add(scores[FactorMACD] < 0, "macd_bearish")
	}
	if pos, ok := ind.Component(indicators.Bollinger, "position"); ok {
		add(pos >= 1, "above_upper_band")
		add(pos <= 0, "below_lower_band")
	}
	if v, ok := ind.Get(indicators.VolumeRatio); ok {
		add(v.Value >= 2, "volume_spike")
	}
	if v, ok := ind.Get(indicators.Volatility); ok {
		add(v.Value > e.cfg.VolatilityCeiling, "high_volatility")
	}
	if available[FactorSentiment] {
		add(sent.Compound > 0.05, "sentiment_positive")
		add(sent.Compound < -0.05, "sentiment_negative")
	} else {
		add(true, "sentiment_unavailable")
	}
	add(len(ind.Omitted) > 0, "partial_indicators")
	return out
}
