package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"merlin/internal/cache/memory"
	"merlin/internal/cache/redis"
	"merlin/internal/cache/sqlite"
	"merlin/internal/interfaces"
	"merlin/internal/journal"
	"merlin/internal/llm/claude"
	"merlin/internal/llm/heuristic"
	"merlin/internal/llm/llmobs"
	"merlin/internal/llm/openai"
	"merlin/internal/logger"
	"merlin/internal/marketdata"
	"merlin/internal/marketdata/binance"
	"merlin/internal/marketdata/kite"
	"merlin/internal/marketdata/marketobs"
	"merlin/internal/metrics"
	"merlin/internal/pipeline"
	"merlin/internal/sentiment"
	"merlin/internal/sentiment/feed"
	"merlin/internal/sentiment/scraper"
	"merlin/internal/store"
	"merlin/internal/trace"
)

// kiteExchanges are served by Kite Connect when credentials are present.
var kiteExchanges = []string{"nse", "bse"}

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(version); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// openCache opens the configured backend.
func openCache(ctx context.Context, cfg store.CacheConfig) (interfaces.CacheStore, error) {
	switch cfg.Backend {
	case "redis":
		s, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisDB, redis.WithPrefix(cfg.Prefix), redis.WithOpTimeout(cfg.OpTimeout))
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		logger.Info(ctx, "Using redis cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return s, nil
	case "memory":
		logger.Info(ctx, "Using in-memory cache; entries are lost on exit")
		return memory.New(nil), nil
	default:
		s, err := sqlite.Open(cfg.Path, sqlite.WithOpTimeout(cfg.OpTimeout))
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		logger.Info(ctx, "Using sqlite cache", "path", cfg.Path)
		return s, nil
	}
}

// initializeRegistry resolves exchange names to candle sources once.
func initializeRegistry(ctx context.Context, cfg store.MarketConfig) *marketdata.Registry {
	reg := marketdata.NewRegistry()
	reg.Register(marketobs.Wrap(binance.New(cfg.BinanceURL, cfg.Retries)), "binance")

	apiKey, token := os.Getenv(cfg.KiteAPIKeyEnv), os.Getenv(cfg.KiteAccessTokenEnv)
	if apiKey != "" && token != "" {
		for _, ex := range kiteExchanges {
			reg.Register(marketobs.Wrap(kite.New(apiKey, token, ex)), ex)
		}
		logger.Info(ctx, "Kite Connect candle source enabled", "exchanges", kiteExchanges)
	}
	return reg
}

// initializeSentimentSources builds the configured sources. API keys are read
// from the environment variables the config names.
func initializeSentimentSources(ctx context.Context, cfg store.SentimentConfig) []interfaces.SentimentSource {
	var sources []interfaces.SentimentSource
	for _, sc := range cfg.ActiveSources() {
		switch sc.Kind {
		case "scraper":
			sources = append(sources, scraper.New(scraper.Config{
				Name: sc.Name,
				URL:  sc.Endpoint,
				Selectors: scraper.Selectors{
					Item:      sc.Selectors.Item,
					Title:     sc.Selectors.Title,
					Link:      sc.Selectors.Link,
					Published: sc.Selectors.Published,
				},
				Limit:   sc.Limit,
				Timeout: sc.Timeout,
			}))
		default:
			var key string
			if sc.APIKeyEnv != "" {
				key = os.Getenv(sc.APIKeyEnv)
			}
			if sc.Kind == feed.KindCryptoPanic && key == "" {
				logger.Warn(ctx, "Skipping sentiment source without API key", "source", sc.Name, "env", sc.APIKeyEnv)
				continue
			}
			sources = append(sources, feed.New(feed.Config{
				Name:     sc.Name,
				Kind:     sc.Kind,
				Endpoint: sc.Endpoint,
				APIKey:   key,
				Currency: sc.Currency,
				Limit:    sc.Limit,
				Timeout:  sc.Timeout,
			}))
		}
	}
	return sources
}

// initializeInsight picks the insight provider. A provider that cannot be
// built falls back to the heuristic one.
func initializeInsight(ctx context.Context, cfg store.LLMConfig) interfaces.InsightProvider {
	var (
		provider interfaces.InsightProvider
		err      error
	)
	switch cfg.Provider {
	case "OPENAI":
		provider, err = openaiProvider(cfg)
	case "CLAUDE":
		provider, err = claudeProvider(cfg)
	default:
		logger.Debug(ctx, "No LLM provider configured - using heuristic insight")
		return heuristic.New("Set llm.provider and its API key")
	}
	if err != nil {
		logger.Warn(ctx, "LLM provider unavailable - using heuristic insight", "provider", cfg.Provider, "error", err)
		return heuristic.New("Set " + keyEnv(cfg))
	}
	return llmobs.Wrap(provider)
}

func openaiProvider(cfg store.LLMConfig) (interfaces.InsightProvider, error) {
	p, err := openai.New(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func claudeProvider(cfg store.LLMConfig) (interfaces.InsightProvider, error) {
	p, err := claude.New(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func keyEnv(cfg store.LLMConfig) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	if cfg.Provider == "CLAUDE" {
		return claude.DefaultKeyEnv
	}
	return openai.DefaultKeyEnv
}

// app holds everything a command needs. close releases the cache.
type app struct {
	cfg      *store.Config
	cache    interfaces.CacheStore
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	journal  *journal.Journal
}

func (a *app) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	cacheStore, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cache: cacheStore, metrics: metrics.NewMetrics()}

	registry := initializeRegistry(ctx, cfg.Market)
	market := marketdata.NewProvider(cfg.Market, registry, cacheStore,
		marketdata.WithMetrics(a.metrics),
		marketdata.WithCacheTimeout(cfg.Cache.OpTimeout),
	)
	sent := sentiment.NewService(cfg.Sentiment, initializeSentimentSources(ctx, cfg.Sentiment), cacheStore,
		sentiment.WithMetrics(a.metrics),
		sentiment.WithCacheTimeout(cfg.Cache.OpTimeout),
	)

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithInsight(initializeInsight(ctx, cfg.LLM)),
	}
	if cfg.Journal.Enabled {
		a.journal = journal.New(cfg.Journal.Dir)
		opts = append(opts, pipeline.WithJournal(a.journal))
		if err := a.journal.CompressOlder(cfg.Journal.RetentionDays); err != nil {
			logger.Warn(ctx, "Failed to compress old journal files", "error", err)
		}
	}

	a.pipeline, err = pipeline.New(cfg, registry, market, sent, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Debug(ctx, "Pipeline ready",
		"exchanges", strings.Join(registry.Exchanges(), ","),
		"ladder", strings.Join(market.Ladder(), ","),
		"sentiment_sources", strings.Join(sent.SourceNames(), ","),
	)
	return a, nil
}

// exitCode maps configuration errors to 2 and everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, store.ErrInvalidConfig) || errors.Is(err, pipeline.ErrInvalidRequest) {
		return 2
	}
	return 1
}
