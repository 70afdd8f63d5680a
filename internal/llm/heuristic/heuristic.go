package heuristic

import (
	"context"

	"merlin/internal/interfaces"
	"merlin/internal/llm"
	"merlin/internal/logger"
	"merlin/internal/types"
)

// NotConfigured is the rationale returned when no model provider is set up.
const NotConfigured = "LLM client not configured; returning heuristic result."

// Provider is used when no model is configured. It restates the decision.
type Provider struct {
	hint string
}

var _ interfaces.InsightProvider = (*Provider)(nil)

// New returns a provider whose risk note tells the user how to enable model
// insights, e.g. "Set OPENAI_API_KEY".
func New(hint string) *Provider {
	return &Provider{hint: hint}
}

func (p *Provider) Name() string { return "heuristic" }

func (p *Provider) Generate(ctx context.Context, bundle types.ResultBundle) (types.Insight, error) {
	logger.Debug(ctx, "Heuristic insight used", "symbol", bundle.Request.Symbol)
	var risks []string
	if p.hint != "" {
		risks = append(risks, p.hint+" to enable model insights.")
	}
	return llm.Fallback(bundle, NotConfigured, risks...), nil
}
