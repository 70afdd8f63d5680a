package claude

import (
	"context"
	"encoding/json"
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
	// DefaultEndpoint is the public messages API. Proxies are set through llm.endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"
	DefaultKeyEnv   = "CLAUDE_API_KEY"
	DefaultModel    = "claude-3-5-haiku-latest"
	apiVersion      = "2023-06-01"
)

// Provider asks the Anthropic messages API for commentary on a finished run.
type Provider struct {
	cfg      store.LLMConfig
	client   *api.Client
	apiKey   string
	endpoint string
}

var _ interfaces.InsightProvider = (*Provider)(nil)

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
	clientOpts := append([]api.ClientOption{
		api.WithTimeout(cfg.Timeout),
		api.WithHeader("anthropic-version", apiVersion),
	}, opts...)
	return &Provider{
		cfg:      cfg,
		client:   api.NewClient(clientOpts...),
		apiKey:   apiKey,
		endpoint: endpoint,
	}, nil
}

func (p *Provider) Name() string { return "claude" }

func (p *Provider) Generate(ctx context.Context, bundle types.ResultBundle) (types.Insight, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	prompt, err := llm.BuildPrompt(bundle)
	if err != nil {
		return types.Insight{}, err
	}
	body := map[string]any{
		"model":  p.cfg.Model,
		"system": p.cfg.System,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  p.cfg.MaxTokens,
		"temperature": p.cfg.Temperature,
	}

	resp, err := p.client.POST(ctx, p.endpoint, body, map[string]string{"x-api-key": p.apiKey})
	if err != nil {
		return types.Insight{}, fmt.Errorf("claude: %w", err)
	}

	text := strings.TrimSpace(replyText(resp.Body))
	if text == "" {
		return types.Insight{}, errors.New("claude: empty reply")
	}
	insight := llm.ParseInsight(text, bundle)
	insight.Provider = p.Name()
	return insight, nil
}

// replyText drills into the shapes returned by the messages API and the
// common proxies in front of it. Anything else is treated as the text itself.
func replyText(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return string(body)
	}

	// messages API: content is a list of typed blocks
	if blocks, ok := m["content"].([]any); ok {
		var sb strings.Builder
		for _, b := range blocks {
			if block, ok := b.(map[string]any); ok && block["type"] == "text" {
				if s, ok := block["text"].(string); ok {
					sb.WriteString(s)
				}
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}

	for _, k := range []string{"completion", "output", "output_text", "completion_text", "result"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}

	// OpenAI-compatible gateways
	if choices, ok := m["choices"].([]any); ok && len(choices) > 0 {
		if c0, ok := choices[0].(map[string]any); ok {
			if msg, ok := c0["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok {
					return s
				}
			}
			if s, ok := c0["text"].(string); ok {
				return s
			}
		}
	}
	return ""
}
