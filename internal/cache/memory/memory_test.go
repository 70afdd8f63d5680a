package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/types"
)

func TestPutGetCopiesPayload(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(func() time.Time { return now })
	ctx := context.Background()

	payload := []byte(`{"a":1}`)
	require.NoError(t, s.Put(ctx, "candles::x", types.KindCandles, payload, time.Minute))
	payload[0] = 'X'

	e, ok, err := s.Get(ctx, "candles::x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(e.Payload))
	assert.Equal(t, now, e.FetchedAt)
	assert.True(t, e.IsFresh(now.Add(59*time.Second)))
	assert.False(t, e.IsFresh(now.Add(time.Minute)))
}

func TestDeleteAndClear(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "candles::a", types.KindCandles, []byte("1"), time.Minute))
	require.NoError(t, s.Put(ctx, "sentiment::b", types.KindSentiment, []byte("2"), time.Minute))

	assert.Equal(t, []string{"candles::a"}, s.Keys("candles::"))
	require.NoError(t, s.Delete(ctx, "candles::a"))
	_, ok, _ := s.Get(ctx, "candles::a")
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestCancelledContext(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Put(ctx, "k", types.KindCandles, nil, time.Second))
	assert.Equal(t, 0, s.Len())
}
