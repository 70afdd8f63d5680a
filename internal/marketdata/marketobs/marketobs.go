package marketobs

import (
	"context"

	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/trace"
	"merlin/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// observableSource wraps a CandleSource with logging and tracing
type observableSource struct {
	source interfaces.CandleSource
}

// Compile-time interface check
var _ interfaces.CandleSource = (*observableSource)(nil)

func Wrap(source interfaces.CandleSource) interfaces.CandleSource {
	return &observableSource{source: source}
}

func (o *observableSource) Name() string {
	return o.source.Name()
}

// FetchCandles fetches candles with observability
func (o *observableSource) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata."+o.source.Name()+".FetchCandles")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("timeframe", timeframe),
		attribute.Int("limit", limit),
	)

	logger.DebugSkip(ctx, 1, "Fetching candles", "source", o.source.Name(), "symbol", symbol, "timeframe", timeframe, "limit", limit)

	candles, err := o.source.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, "source", o.source.Name(), "symbol", symbol)
		return nil, err
	}

	span.SetAttributes(attribute.Int("candles", len(candles)))
	logger.DebugSkip(ctx, 1, "Candles fetched successfully", "source", o.source.Name(), "symbol", symbol, "count", len(candles))
	return candles, nil
}
