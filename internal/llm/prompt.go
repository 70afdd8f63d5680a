package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"merlin/internal/indicators"
	"merlin/internal/types"
)

// ErrNotConfigured is returned by providers built without an API key.
var ErrNotConfigured = errors.New("llm client not configured")

const DefaultSystem = "You are a cautious crypto markets strategist. You comment on signals; you never place trades."

const instruction = `Review the technical and sentiment signals below and return a JSON object with fields:
- summary: one sentence
- recommendation: LONG/SHORT/NEUTRAL
- rationale: detailed explanation of the recommendation
- risks: array of key risks
- key_levels: array of objects with 'type' (resistance/support/level), 'value' (price as number) and 'description'.
Include 2-4 key levels. Use price_history to find support and resistance from recent price action.
Respond ONLY with the JSON object.`

// historyTail is how many recent closes are shown to the model.
const historyTail = 20

type priceHistory struct {
	High      float64   `json:"recent_high"`
	Low       float64   `json:"recent_low"`
	ChangePct float64   `json:"change_pct"`
	Closes    []float64 `json:"recent_closes"`
	Candles   int       `json:"candles"`
}

type signals struct {
	Exchange     string                          `json:"exchange"`
	Symbol       string                          `json:"symbol"`
	Timeframe    string                          `json:"timeframe"`
	Price        float64                         `json:"price"`
	Regime       types.RegimeResult              `json:"regime"`
	Indicators   map[string]types.IndicatorValue `json:"indicators"`
	Sentiment    types.SentimentSnapshot         `json:"sentiment"`
	PriceHistory priceHistory                    `json:"price_history"`
	Warnings     []string                        `json:"warnings,omitempty"`
}

// BuildPrompt renders the finished bundle as the user message.
func BuildPrompt(bundle types.ResultBundle) (string, error) {
	s := signals{
		Exchange:     bundle.Request.Exchange,
		Symbol:       bundle.Request.Symbol,
		Timeframe:    bundle.Request.Timeframe,
		Price:        bundle.Indicators.Price,
		Regime:       bundle.Regime,
		Indicators:   bundle.Indicators.Values,
		Sentiment:    bundle.Sentiment,
		PriceHistory: summarize(bundle.Series),
		Warnings:     bundle.Warnings,
	}
	b, err := json.Marshal(map[string]any{"instruction": instruction, "signals": s})
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}
	return string(b), nil
}

func summarize(series types.CandleSeries) priceHistory {
	h := priceHistory{Candles: series.Len()}
	if series.Len() == 0 {
		return h
	}
	h.High, h.Low = math.Inf(-1), math.Inf(1)
	for _, c := range series.Candles {
		h.High = math.Max(h.High, c.High)
		h.Low = math.Min(h.Low, c.Low)
	}
	closes := series.Closes()
	if first := closes[0]; first > 0 {
		h.ChangePct = (closes[len(closes)-1] - first) / first * 100
	}
	if len(closes) > historyTail {
		closes = closes[len(closes)-historyTail:]
	}
	h.Closes = closes
	return h
}

// Fallback is the commentary used when no model answered. The recommendation
// mirrors the regime decision.
func Fallback(bundle types.ResultBundle, rationale string, risks ...string) types.Insight {
	levels := []string{fmt.Sprintf("Recent price: %.2f", bundle.Indicators.Price)}
	if sma, ok := bundle.Indicators.Get(indicators.SMALong); ok {
		levels = append(levels, fmt.Sprintf("%d-period SMA: %.2f", sma.Window, sma.Value))
	}
	r := bundle.Regime
	return types.Insight{
		Provider: "heuristic",
		Summary: fmt.Sprintf("%s regime on %s %s (composite %.3f, confidence %.2f).",
			r.Regime, bundle.Request.Symbol, bundle.Request.Timeframe, r.CompositeScore, r.Confidence),
		Recommendation: string(r.Recommendation),
		Rationale:      rationale,
		KeyLevels:      levels,
		Risks:          risks,
		Fallback:       true,
	}
}
