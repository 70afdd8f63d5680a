package marketdata

import (
	"math"
	"sort"
	"time"

	"merlin/internal/types"
)

// Normalize turns raw source candles into a clean ascending series:
// unusable rows are dropped, duplicates keep the last occurrence, high/low
// are widened to cover open and close, interval gaps are forward-filled with
// flat zero-volume candles, and only the most recent limit candles are kept.
// A step or limit of zero disables gap filling or trimming respectively.
func Normalize(raw []types.Candle, step time.Duration, limit int) []types.Candle {
	rows := make([]types.Candle, 0, len(raw))
	for _, c := range raw {
		if usable(c) {
			rows = append(rows, repair(c))
		}
	}
	if len(rows) == 0 {
		return nil
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Ts < rows[j].Ts })
	deduped := rows[:0]
	for i, c := range rows {
		if i+1 < len(rows) && rows[i+1].Ts == c.Ts {
			continue
		}
		deduped = append(deduped, c)
	}

	out := fillGaps(deduped, step.Milliseconds(), limit)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func usable(c types.Candle) bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Vol} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return c.Close > 0 && c.Ts > 0
}

func repair(c types.Candle) types.Candle {
	c.High = math.Max(c.High, math.Max(c.Open, c.Close))
	c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
	return c
}

// fillGaps inserts flat candles for missing intervals. A gap longer than
// limit only gets its trailing limit slots filled; anything older would be
// trimmed anyway.
func fillGaps(rows []types.Candle, stepMs int64, limit int) []types.Candle {
	if stepMs <= 0 || len(rows) < 2 {
		return append([]types.Candle(nil), rows...)
	}
	out := make([]types.Candle, 0, len(rows))
	out = append(out, rows[0])
	for _, c := range rows[1:] {
		prev := out[len(out)-1]
		missing := (c.Ts-prev.Ts)/stepMs - 1
		if c.Ts-prev.Ts <= stepMs || missing <= 0 {
			out = append(out, c)
			continue
		}
		start := int64(1)
		if limit > 0 && missing > int64(limit) {
			start = missing - int64(limit) + 1
		}
		for k := start; k <= missing; k++ {
			out = append(out, types.Candle{
				Ts:    prev.Ts + k*stepMs,
				Open:  prev.Close,
				High:  prev.Close,
				Low:   prev.Close,
				Close: prev.Close,
			})
		}
		out = append(out, c)
	}
	return out
}
