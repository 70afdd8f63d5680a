package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/types"
)

func sampleBundle(id string) types.ResultBundle {
	return types.ResultBundle{
		RunID:   id,
		Request: types.AnalysisRequest{Exchange: "binance", Symbol: "BTC/USDT", Timeframe: "1h"},
		Indicators: types.IndicatorSnapshot{
			Price:  101.5,
			Values: map[string]types.IndicatorValue{"rsi": {Value: 55}},
		},
		Regime: types.RegimeResult{
			Regime:         types.RegimeNeutral,
			Recommendation: types.RecommendNeutral,
			CompositeScore: 0.12,
		},
		Provenance: types.RunProvenance{Market: types.ProvenanceSynthetic, Sentiment: types.ProvenanceDisabled},
		Warnings:   []string{"synthetic market data used"},
	}
}

func TestAppendAndRead(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	j := New(t.TempDir()).WithClock(func() time.Time { return now })

	require.NoError(t, j.Append(sampleBundle("a")))
	require.NoError(t, j.Append(sampleBundle("b")))

	_, err := os.Stat(filepath.Join(j.Dir(), "2024-03-10.jsonl"))
	require.NoError(t, err)

	entries, err := j.Entries(now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].RunID)
	assert.Equal(t, "b", entries[1].RunID)
	assert.Equal(t, "2024-03-10T23:59:00Z", entries[0].Time)
	assert.Equal(t, 55.0, entries[0].Indicators["rsi"])
	assert.Equal(t, types.ProvenanceSynthetic, entries[0].Provenance.Market)
	assert.Equal(t, []string{"synthetic market data used"}, entries[0].Warnings)
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	old := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

	clock := old
	j := New(dir).WithClock(func() time.Time { return clock })
	require.NoError(t, j.Append(sampleBundle("old")))
	clock = recent
	require.NoError(t, j.Append(sampleBundle("recent")))

	require.NoError(t, j.CompressOlder(7))

	_, err := os.Stat(filepath.Join(dir, "2024-03-01.jsonl"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "2024-03-01.jsonl.gz"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "2024-03-14.jsonl"))
	assert.NoError(t, err)

	entries, err := j.Entries(old)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "old", entries[0].RunID)

	// a second pass is a no-op
	require.NoError(t, j.CompressOlder(7))
	entries, err = j.Entries(old)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompressOlderMissingDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "absent"))
	assert.NoError(t, j.CompressOlder(1))
	assert.NoError(t, j.CompressOlder(0))
}

func TestEntriesMissingDay(t *testing.T) {
	j := New(t.TempDir())
	_, err := j.Entries(time.Now())
	assert.Error(t, err)
}
