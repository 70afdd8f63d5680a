package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"merlin/internal/types"
)

// ErrCorruptEntry is returned by the decoders when a stored payload cannot be
// used. Callers treat it as a miss.
var ErrCorruptEntry = errors.New("corrupt cache entry")

const sep = "::"

// CandleKey is candles::<provider>::<exchange>::<SYMBOL>::<timeframe>.
func CandleKey(provider, exchange, symbol, timeframe string) string {
	return strings.Join([]string{
		string(types.KindCandles),
		strings.ToLower(provider),
		strings.ToLower(exchange),
		strings.ToUpper(symbol),
		timeframe,
	}, sep)
}

// SentimentKey hashes the sorted source names so that reordering the
// configuration does not invalidate the cache.
func SentimentKey(sources []string, windowHours int) string {
	names := append([]string(nil), sources...)
	sort.Strings(names)
	h := fnv.New64a()
	for _, n := range names {
		h.Write([]byte(strings.ToLower(n)))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s%s%016x%s%d", types.KindSentiment, sep, h.Sum64(), sep, windowHours)
}

// KindOf derives the payload kind from a key prefix.
func KindOf(key string) (types.CacheKind, bool) {
	prefix, _, ok := strings.Cut(key, sep)
	if !ok {
		return "", false
	}
	switch k := types.CacheKind(prefix); k {
	case types.KindCandles, types.KindSentiment:
		return k, true
	}
	return "", false
}

func EncodeSeries(s types.CandleSeries) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSeries rejects payloads that do not hold a valid series.
func DecodeSeries(entry types.CacheEntry) (types.CandleSeries, error) {
	var s types.CandleSeries
	if entry.Kind != types.KindCandles {
		return s, fmt.Errorf("%w: %s holds %q, want %q", ErrCorruptEntry, entry.Key, entry.Kind, types.KindCandles)
	}
	if err := json.Unmarshal(entry.Payload, &s); err != nil {
		return types.CandleSeries{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, entry.Key, err)
	}
	if err := ValidateSeries(s); err != nil {
		return types.CandleSeries{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, entry.Key, err)
	}
	return s, nil
}

func EncodeSentiment(s types.SentimentSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSentiment(entry types.CacheEntry) (types.SentimentSnapshot, error) {
	var s types.SentimentSnapshot
	if entry.Kind != types.KindSentiment {
		return s, fmt.Errorf("%w: %s holds %q, want %q", ErrCorruptEntry, entry.Key, entry.Kind, types.KindSentiment)
	}
	if err := json.Unmarshal(entry.Payload, &s); err != nil {
		return types.SentimentSnapshot{}, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, entry.Key, err)
	}
	if !inRange(s.Compound, -1, 1) || !inRange(s.Positive, 0, 1) || !inRange(s.Negative, 0, 1) || !inRange(s.Neutral, 0, 1) {
		return types.SentimentSnapshot{}, fmt.Errorf("%w: %s: sentiment out of range", ErrCorruptEntry, entry.Key)
	}
	return s, nil
}

// ValidateSeries checks ordering, uniqueness and the OHLC invariant.
func ValidateSeries(s types.CandleSeries) error {
	if len(s.Candles) == 0 {
		return errors.New("empty series")
	}
	for i, c := range s.Candles {
		if i > 0 && c.Ts <= s.Candles[i-1].Ts {
			return fmt.Errorf("candle %d out of order", i)
		}
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Vol} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("candle %d has invalid value %v", i, v)
			}
		}
		if c.Low > math.Min(c.Open, c.Close) || c.High < math.Max(c.Open, c.Close) {
			return fmt.Errorf("candle %d violates low <= open,close <= high", i)
		}
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
