package marketobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merlin/internal/types"
)

type stubSource struct {
	candles []types.Candle
	err     error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	return s.candles, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	want := []types.Candle{{Ts: 1, Open: 1, High: 1, Low: 1, Close: 1}}
	src := Wrap(stubSource{candles: want})

	assert.Equal(t, "stub", src.Name())
	got, err := src.FetchCandles(context.Background(), "BTCUSDT", "1h", 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	boom := errors.New("boom")
	_, err = Wrap(stubSource{err: boom}).FetchCandles(context.Background(), "BTCUSDT", "1h", 1)
	assert.ErrorIs(t, err, boom)
}
