package marketdata

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseTimeframe maps a timeframe label such as "15m" to its bar duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q (supported: %v)", ErrInvalidTimeframe, tf, Timeframes())
	}
	return d, nil
}

// Timeframes lists the supported labels, shortest first.
func Timeframes() []string {
	out := make([]string, 0, len(timeframes))
	for k := range timeframes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return timeframes[out[i]] < timeframes[out[j]] })
	return out
}

// AlignDown truncates t to the start of the bar containing it. Weekly bars
// start on Monday 00:00 UTC.
func AlignDown(t time.Time, step time.Duration) time.Time {
	t = t.UTC()
	if step == 7*24*time.Hour {
		day := t.Truncate(24 * time.Hour)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	return t.Truncate(step)
}
