package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"merlin/internal/api"
	"merlin/internal/interfaces"
	"merlin/internal/types"
)

const (
	KindGeneric     = "feed"
	KindCryptoPanic = "cryptopanic"

	CryptoPanicURL = "https://cryptopanic.com/api/v1/posts/"
)

// Config describes one JSON news endpoint. APIKey is resolved from the
// environment by the caller and never persisted.
type Config struct {
	Name     string
	Kind     string
	Endpoint string
	APIKey   string
	Currency string
	Limit    int
	Timeout  time.Duration
}

// Source reads headlines from a JSON news API. CryptoPanic responses use
// results[].title/published_at; generic feeds may use articles[] or data[]
// with title/content/description and publishedAt or published_at.
type Source struct {
	cfg    Config
	client *api.Client
	retry  *api.RetryConfig
}

var _ interfaces.SentimentSource = (*Source)(nil)

func New(cfg Config, opts ...api.ClientOption) *Source {
	if cfg.Kind == KindCryptoPanic && cfg.Endpoint == "" {
		cfg.Endpoint = CryptoPanicURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	clientOpts := append([]api.ClientOption{
		api.WithTimeout(cfg.Timeout),
		api.WithHeader("Accept", "application/json"),
		api.WithLogging(true),
	}, opts...)
	return &Source{
		cfg:    cfg,
		client: api.NewClient(clientOpts...),
		retry:  &api.RetryConfig{MaxAttempts: 2, InitialWait: 500 * time.Millisecond, MaxWait: 2 * time.Second},
	}
}

func (s *Source) Name() string { return s.cfg.Name }

type item struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Published   string `json:"publishedAt"`
	CreatedAt   string `json:"created_at"`
}

type envelope struct {
	Results  []item `json:"results"`
	Articles []item `json:"articles"`
	Data     []item `json:"data"`
}

func (s *Source) FetchDocuments(ctx context.Context, since, until time.Time) ([]types.Document, error) {
	req := api.NewRequest(http.MethodGet, s.cfg.Endpoint).WithContext(ctx)
	switch s.cfg.Kind {
	case KindCryptoPanic:
		req.WithQuery("public", "true").WithQuery("kind", "news")
		if s.cfg.APIKey != "" {
			req.WithQuery("auth_token", s.cfg.APIKey)
		}
		if s.cfg.Currency != "" {
			req.WithQuery("currencies", strings.ToUpper(s.cfg.Currency))
		}
	default:
		if s.cfg.APIKey != "" {
			req.WithHeader("Authorization", "Bearer "+s.cfg.APIKey)
		}
		if s.cfg.Limit > 0 {
			req.WithQuery("limit", strconv.Itoa(s.cfg.Limit))
		}
	}

	resp, err := s.client.DoWithRetry(req, s.retry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.cfg.Name, err)
	}
	var env envelope
	if err := resp.ParseJSON(&env); err != nil {
		return nil, fmt.Errorf("%s: %w", s.cfg.Name, err)
	}

	items := env.Results
	if len(items) == 0 {
		items = env.Articles
	}
	if len(items) == 0 {
		items = env.Data
	}

	docs := make([]types.Document, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Title)
		if body := firstNonEmpty(it.Content, it.Description); body != "" {
			text = strings.TrimSpace(text + ". " + body)
		}
		if text == "" {
			continue
		}
		ts := ParseTime(firstNonEmpty(it.PublishedAt, it.Published, it.CreatedAt))
		if !ts.IsZero() && (!ts.After(since) || ts.After(until)) {
			continue
		}
		docs = append(docs, types.Document{
			Source:      s.cfg.Name,
			Text:        text,
			URL:         it.URL,
			PublishedAt: ts,
		})
		if s.cfg.Limit > 0 && len(docs) >= s.cfg.Limit {
			break
		}
	}
	return docs, nil
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// ParseTime accepts the timestamp layouts common in news APIs. Values without
// a zone are read as UTC. Unparseable input yields the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
