package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"merlin/internal/api"
	"merlin/internal/interfaces"
	"merlin/internal/llm"
	"merlin/internal/store"
	"merlin/internal/trace"
	"merlin/internal/types"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultKeyEnv   = "OPENAI_API_KEY"
	DefaultModel    = "gpt-4o-mini"
)

// Provider asks the chat completions API for commentary on a finished run.
type Provider struct {
	cfg      store.LLMConfig
	client   *api.Client
	apiKey   string
	endpoint string
}

var _ interfaces.InsightProvider = (*Provider)(nil)

// New reads the API key from cfg.APIKeyEnv (OPENAI_API_KEY by default) and
// returns llm.ErrNotConfigured when it is unset.
func New(cfg store.LLMConfig, opts ...api.ClientOption) (*Provider, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s missing", llm.ErrNotConfigured, keyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.System == "" {
		cfg.System = llm.DefaultSystem
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	clientOpts := append([]api.ClientOption{api.WithTimeout(cfg.Timeout)}, opts...)
	return &Provider{
		cfg:      cfg,
		client:   api.NewClient(clientOpts...),
		apiKey:   apiKey,
		endpoint: endpoint,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Generate(ctx context.Context, bundle types.ResultBundle) (types.Insight, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	prompt, err := llm.BuildPrompt(bundle)
	if err != nil {
		return types.Insight{}, err
	}
	body := map[string]any{
		"model": p.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": p.cfg.System},
			{"role": "user", "content": prompt},
		},
		"temperature": p.cfg.Temperature,
		"max_tokens":  p.cfg.MaxTokens,
	}

	resp, err := p.client.POST(ctx, p.endpoint, body, map[string]string{"Authorization": "Bearer " + p.apiKey})
	if err != nil {
		return types.Insight{}, fmt.Errorf("openai: %w", err)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return types.Insight{}, fmt.Errorf("openai: %w", err)
	}
	if len(r.Choices) == 0 {
		return types.Insight{}, errors.New("openai: no choices")
	}
	out := strings.TrimSpace(r.Choices[0].Message.Content)
	if out == "" {
		return types.Insight{}, errors.New("openai: empty reply")
	}

	insight := llm.ParseInsight(out, bundle)
	insight.Provider = p.Name()
	return insight, nil
}
