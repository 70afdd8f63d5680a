package llmobs

import (
	"context"

	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/trace"
	"merlin/internal/types"
)

// observableProvider wraps an InsightProvider with logging and tracing
type observableProvider struct {
	provider interfaces.InsightProvider
}

// Compile-time interface check
var _ interfaces.InsightProvider = (*observableProvider)(nil)

// Wrap wraps an insight provider with observability middleware
func Wrap(provider interfaces.InsightProvider) interfaces.InsightProvider {
	return &observableProvider{provider: provider}
}

func (o *observableProvider) Name() string {
	return o.provider.Name()
}

// Generate requests commentary with observability
func (o *observableProvider) Generate(ctx context.Context, bundle types.ResultBundle) (types.Insight, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Generate")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting insight",
		"provider", o.provider.Name(),
		"symbol", bundle.Request.Symbol,
		"regime", bundle.Regime.Regime,
	)

	insight, err := o.provider.Generate(ctx, bundle)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to generate insight", err,
			"provider", o.provider.Name(),
			"symbol", bundle.Request.Symbol,
		)
		return types.Insight{}, err
	}

	logger.InfoSkip(ctx, 1, "Insight received",
		"provider", insight.Provider,
		"symbol", bundle.Request.Symbol,
		"recommendation", insight.Recommendation,
		"fallback", insight.Fallback,
	)
	return insight, nil
}
