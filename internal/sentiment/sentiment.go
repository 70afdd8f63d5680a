package sentiment

import (
	"math"
	"time"

	"merlin/internal/types"
)

const (
	// records above/below these compounds count as positive/negative
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Aggregate summarises the records that fall inside the trailing window
// (now - windowHours, now]. NaN compounds are dropped and the rest are
// clamped to [-1, 1]. An empty window yields the neutral snapshot.
func Aggregate(records []types.SentimentRecord, windowHours int, now time.Time) types.SentimentSnapshot {
	from := now.Add(-time.Duration(windowHours) * time.Hour)

	var sum float64
	var n, pos, neg int
	for _, r := range records {
		if !r.Timestamp.After(from) || r.Timestamp.After(now) || math.IsNaN(r.Compound) {
			continue
		}
		v := math.Max(-1, math.Min(1, r.Compound))
		sum += v
		n++
		switch {
		case v > PositiveThreshold:
			pos++
		case v < NegativeThreshold:
			neg++
		}
	}
	if n == 0 {
		return types.NeutralSentiment(windowHours, types.ProvenanceLive)
	}

	total := float64(n)
	snap := types.SentimentSnapshot{
		Compound:    math.Max(-1, math.Min(1, sum/total)),
		Positive:    float64(pos) / total,
		Negative:    float64(neg) / total,
		Neutral:     float64(n-pos-neg) / total,
		Count:       n,
		WindowHours: windowHours,
		Provenance:  types.ProvenanceLive,
	}
	snap.Bias = snap.Positive - snap.Negative
	return snap
}
