package interfaces

import (
	"context"

	"merlin/internal/types"
)

// CandleSource is a remote OHLCV provider. Implementations are untrusted and may
// fail or return messy data; the market data provider normalizes the result.
type CandleSource interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error)
}
