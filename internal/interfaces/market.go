package interfaces

import (
	"context"

	"merlin/internal/types"
)

// MarketData returns a candle series for a request and never fails; degraded
// results are flagged through the series provenance.
type MarketData interface {
	Fetch(ctx context.Context, req types.AnalysisRequest) types.CandleSeries
}

type SentimentProvider interface {
	Snapshot(ctx context.Context) types.SentimentSnapshot
}
