package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MERLIN_EXCHANGE", "MERLIN_SYMBOL", "MERLIN_TIMEFRAME", "MERLIN_LIMIT",
		"MERLIN_CACHE_BACKEND", "MERLIN_CACHE_PATH", "MERLIN_REDIS_ADDR",
		"MERLIN_LLM_PROVIDER", "MERLIN_LLM_MODEL",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "binance", c.Market.Exchange)
	assert.Equal(t, "BTC/USDT", c.Market.Symbol)
	assert.Equal(t, "15m", c.Market.Timeframe)
	assert.Equal(t, 500, c.Market.Limit)
	assert.True(t, c.Market.StaleAllowed())
	assert.Equal(t, "sqlite", c.Cache.Backend)
	assert.NotEmpty(t, c.Cache.Path)
	assert.Equal(t, 0.35, c.Analysis.Weights.Trend)
	assert.Equal(t, "NONE", c.LLM.Provider)
	assert.Equal(t, 25*time.Second, c.Pipeline.InsightTimeout)
	assert.False(t, c.Sentiment.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", c.Market.Symbol)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, `
market:
  exchange: BINANCE
  symbol: eth/usdt
  allow_stale: false
analysis:
  weights:
    trend: 0.5
llm:
  provider: claude
sentiment:
  enabled: true
  sources:
    - name: news
      endpoint: https://example.com/news
`)
	c, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "binance", c.Market.Exchange)
	assert.Equal(t, "ETH/USDT", c.Market.Symbol)
	assert.False(t, c.Market.StaleAllowed())
	assert.Equal(t, 0.5, c.Analysis.Weights.Trend)
	assert.Equal(t, 0.20, c.Analysis.Weights.Momentum)
	assert.Equal(t, "CLAUDE", c.LLM.Provider)

	require.Len(t, c.Sentiment.ActiveSources(), 1)
	src := c.Sentiment.Sources[0]
	assert.Equal(t, "feed", src.Kind)
	assert.Equal(t, 50, src.Limit)
	assert.Equal(t, 10*time.Second, src.Timeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MERLIN_SYMBOL", "sol/usdt")
	t.Setenv("MERLIN_LIMIT", "42")
	t.Setenv("MERLIN_CACHE_BACKEND", "memory")

	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDT", c.Market.Symbol)
	assert.Equal(t, 42, c.Market.Limit)
	assert.Equal(t, "memory", c.Cache.Backend)

	t.Setenv("MERLIN_LIMIT", "many")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(writeFile(t, "market: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"all weights zero", func(c *Config) { c.Analysis.Weights = Weights{} }},
		{"negative weight", func(c *Config) { c.Analysis.Weights.Volume = -0.1 }},
		{"nan weight", func(c *Config) { c.Analysis.Weights.MACD = math.NaN() }},
		{"inverted bands", func(c *Config) { c.Analysis.Bands = Bands{Long: -0.2, Short: 0.2} }},
		{"band beyond one", func(c *Config) { c.Analysis.Bands.Long = 1.5 }},
		{"macd fast not below slow", func(c *Config) { c.Indicators.MACDFast = 26 }},
		{"short sma above long", func(c *Config) { c.Indicators.SMAShort = 250 }},
		{"limit above max", func(c *Config) { c.Market.Limit = 6000; c.Pipeline.MaxLimit = 5000 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "etcd" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "GEMINI" }},
		{"scraper without item selector", func(c *Config) {
			c.Sentiment.Enabled = true
			c.Sentiment.Sources = []SentimentSource{{Name: "s", Kind: "scraper", Endpoint: "https://example.com", Limit: 10, Timeout: time.Second}}
		}},
		{"feed without endpoint", func(c *Config) {
			c.Sentiment.Enabled = true
			c.Sentiment.Sources = []SentimentSource{{Name: "f", Kind: "feed", Limit: 10, Timeout: time.Second}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Default()
			require.NoError(t, err)
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestFinishFillsSourceDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	c.Market.Symbol = "eth/usdt"
	c.Sentiment.Sources = []SentimentSource{{Name: "a", Endpoint: "https://example.com"}, {Name: "b", Kind: "scraper"}}

	require.NoError(t, c.finish())
	assert.Equal(t, "ETH/USDT", c.Market.Symbol)
	assert.Equal(t, "feed", c.Sentiment.Sources[0].Kind)
	assert.Equal(t, "scraper", c.Sentiment.Sources[1].Kind)
	for _, src := range c.Sentiment.Sources {
		assert.Equal(t, 50, src.Limit)
		assert.Equal(t, 10*time.Second, src.Timeout)
	}
}
