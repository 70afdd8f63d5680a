package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration problems. They are fatal and reported
// before any data is fetched.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Market     MarketConfig     `yaml:"market"`
	Cache      CacheConfig      `yaml:"cache"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Indicators IndicatorConfig  `yaml:"indicators"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Journal    JournalConfig    `yaml:"journal"`
	Pipeline   PipelineSettings `yaml:"pipeline"`
}

type MarketConfig struct {
	Exchange    string        `yaml:"exchange" default:"binance" validate:"required"`
	Symbol      string        `yaml:"symbol" default:"BTC/USDT" validate:"required"`
	Timeframe   string        `yaml:"timeframe" default:"15m" validate:"required"`
	Limit       int           `yaml:"limit" default:"500" validate:"gt=0,lte=5000"`
	LiveTimeout time.Duration `yaml:"live_timeout" default:"10s" validate:"gt=0"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"5m" validate:"gt=0"`
	AllowStale  *bool         `yaml:"allow_stale" default:"true"`
	PreferCache bool          `yaml:"prefer_cache"`
	Retries     int           `yaml:"retries" default:"3" validate:"gte=1,lte=10"`
	BinanceURL  string        `yaml:"binance_url" default:"https://api.binance.com" validate:"omitempty,url"`
	// Kite credentials are read from these environment variables, never stored.
	KiteAPIKeyEnv      string `yaml:"kite_api_key_env" default:"KITE_API_KEY"`
	KiteAccessTokenEnv string `yaml:"kite_access_token_env" default:"KITE_ACCESS_TOKEN"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend" default:"sqlite" validate:"oneof=sqlite redis memory"`
	Path      string        `yaml:"path"`
	RedisAddr string        `yaml:"redis_addr" default:"localhost:6379"`
	RedisDB   int           `yaml:"redis_db" validate:"gte=0"`
	Prefix    string        `yaml:"prefix" default:"merlin:"`
	OpTimeout time.Duration `yaml:"op_timeout" default:"2s" validate:"gt=0"`
}

type SentimentSource struct {
	Name      string        `yaml:"name" validate:"required"`
	Kind      string        `yaml:"kind" default:"feed" validate:"oneof=feed cryptopanic scraper"`
	Endpoint  string        `yaml:"endpoint" validate:"omitempty,url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Currency  string        `yaml:"currency"`
	Limit     int           `yaml:"limit" default:"50" validate:"gt=0,lte=500"`
	Timeout   time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	Selectors struct {
		Item      string `yaml:"item"`
		Title     string `yaml:"title"`
		Link      string `yaml:"link"`
		Published string `yaml:"published"`
	} `yaml:"selectors"`
}

type SentimentConfig struct {
	Enabled     bool              `yaml:"enabled"`
	WindowHours int               `yaml:"window_hours" default:"24" validate:"gt=0,lte=720"`
	CacheTTL    time.Duration     `yaml:"cache_ttl" default:"15m" validate:"gt=0"`
	Sources     []SentimentSource `yaml:"sources" validate:"dive"`
}

type IndicatorConfig struct {
	SMAShort         int     `yaml:"sma_short" default:"50" validate:"gt=0"`
	SMALong          int     `yaml:"sma_long" default:"200" validate:"gt=0"`
	EMAShort         int     `yaml:"ema_short" default:"21" validate:"gt=0"`
	EMALong          int     `yaml:"ema_long" default:"55" validate:"gt=0"`
	RSIPeriod        int     `yaml:"rsi_period" default:"14" validate:"gt=0"`
	MACDFast         int     `yaml:"macd_fast" default:"12" validate:"gt=0"`
	MACDSlow         int     `yaml:"macd_slow" default:"26" validate:"gt=0"`
	MACDSignal       int     `yaml:"macd_signal" default:"9" validate:"gt=0"`
	BBWindow         int     `yaml:"bb_window" default:"20" validate:"gt=0"`
	BBStdDev         float64 `yaml:"bb_stddev" default:"2" validate:"gt=0"`
	VolumeWindow     int     `yaml:"volume_window" default:"20" validate:"gt=0"`
	VolatilityWindow int     `yaml:"volatility_window" default:"20" validate:"gt=0"`
	ATRPeriod        int     `yaml:"atr_period" default:"14" validate:"gt=0"`
	MinWindow        int     `yaml:"min_window" default:"5" validate:"gte=2"`
}

type Weights struct {
	Trend      float64 `yaml:"trend" default:"0.35"`
	Momentum   float64 `yaml:"momentum" default:"0.20"`
	MACD       float64 `yaml:"macd" default:"0.15"`
	Bollinger  float64 `yaml:"bollinger" default:"0.10"`
	Volume     float64 `yaml:"volume" default:"0.05"`
	Sentiment  float64 `yaml:"sentiment" default:"0.15"`
	Volatility float64 `yaml:"volatility"`
}

// AsMap returns the weights keyed by factor name.
func (w Weights) AsMap() map[string]float64 {
	return map[string]float64{
		"trend":      w.Trend,
		"momentum":   w.Momentum,
		"macd":       w.MACD,
		"bollinger":  w.Bollinger,
		"volume":     w.Volume,
		"sentiment":  w.Sentiment,
		"volatility": w.Volatility,
	}
}

type Bands struct {
	Long  float64 `yaml:"long" default:"0.3"`
	Short float64 `yaml:"short" default:"-0.3"`
}

type AnalysisConfig struct {
	Weights           Weights `yaml:"weights"`
	Bands             Bands   `yaml:"bands"`
	RSIOverbought     float64 `yaml:"rsi_overbought" default:"70" validate:"gt=50,lt=100"`
	RSIOversold       float64 `yaml:"rsi_oversold" default:"30" validate:"gt=0,lt=50"`
	TrendScale        float64 `yaml:"trend_scale" default:"0.02" validate:"gt=0"`
	MACDScale         float64 `yaml:"macd_scale" default:"0.002" validate:"gt=0"`
	VolatilityCeiling float64 `yaml:"volatility_ceiling" default:"0.10" validate:"gt=0"`
	ConfidenceScale   float64 `yaml:"confidence_scale" default:"0.6" validate:"gt=0,lte=1"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider" default:"NONE" validate:"oneof=NONE OPENAI CLAUDE"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Endpoint    string        `yaml:"endpoint" validate:"omitempty,url"`
	MaxTokens   int           `yaml:"max_tokens" default:"600" validate:"gt=0"`
	Temperature float32       `yaml:"temperature" default:"0.2" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" default:"20s" validate:"gt=0"`
	System      string        `yaml:"system"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"60s"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir" default:"logs/decisions"`
	RetentionDays int    `yaml:"retention_days" default:"14" validate:"gte=0"`
}

type PipelineSettings struct {
	MaxLimit       int           `yaml:"max_limit" default:"5000" validate:"gt=0"`
	InsightTimeout time.Duration `yaml:"insight_timeout" default:"25s" validate:"gt=0"`
}

// StaleAllowed reports whether expired cache entries may stand in for a failed live fetch.
func (m MarketConfig) StaleAllowed() bool {
	return m.AllowStale == nil || *m.AllowStale
}

// ActiveSources returns the configured sources, or none when the feature is off.
func (s SentimentConfig) ActiveSources() []SentimentSource {
	if !s.Enabled {
		return nil
	}
	return s.Sources
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Analysis.validateScoring(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Indicators.MACDFast >= c.Indicators.MACDSlow {
		return fmt.Errorf("%w: indicators.macd_fast (%d) must be below macd_slow (%d)",
			ErrInvalidConfig, c.Indicators.MACDFast, c.Indicators.MACDSlow)
	}
	if c.Indicators.SMAShort > c.Indicators.SMALong || c.Indicators.EMAShort > c.Indicators.EMALong {
		return fmt.Errorf("%w: short moving average periods must not exceed long ones", ErrInvalidConfig)
	}
	if c.Market.Limit > c.Pipeline.MaxLimit {
		return fmt.Errorf("%w: market.limit %d exceeds pipeline.max_limit %d", ErrInvalidConfig, c.Market.Limit, c.Pipeline.MaxLimit)
	}
	for _, src := range c.Sentiment.ActiveSources() {
		if src.Kind == "scraper" && src.Selectors.Item == "" {
			return fmt.Errorf("%w: sentiment source %q: scraper needs selectors.item", ErrInvalidConfig, src.Name)
		}
		if src.Kind == "feed" && src.Endpoint == "" {
			return fmt.Errorf("%w: sentiment source %q: feed needs an endpoint", ErrInvalidConfig, src.Name)
		}
	}
	return nil
}

func (a AnalysisConfig) validateScoring() error {
	positive := false
	for name, w := range a.Weights.AsMap() {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("analysis.weights.%s must be a finite non-negative number, got %v", name, w)
		}
		if w > 0 {
			positive = true
		}
	}
	if !positive {
		return errors.New("analysis.weights needs at least one positive weight")
	}
	if !(a.Bands.Short < 0 && a.Bands.Long > 0) || a.Bands.Long > 1 || a.Bands.Short < -1 {
		return fmt.Errorf("analysis.bands must satisfy -1 <= short < 0 < long <= 1, got short=%v long=%v",
			a.Bands.Short, a.Bands.Long)
	}
	if a.RSIOversold >= a.RSIOverbought {
		return errors.New("analysis.rsi_oversold must be below rsi_overbought")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads path, applies defaults and environment overrides, and validates.
// A missing file is not an error: the built-in defaults are used.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := applyEnv(&c); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// finish fills values that depend on other fields or on the environment.
func (c *Config) finish() error {
	for i := range c.Sentiment.Sources {
		// yaml replaces the slice, so element defaults are applied here
		if err := defaults.Set(&c.Sentiment.Sources[i]); err != nil {
			return fmt.Errorf("%w: sentiment.sources[%d] defaults: %v", ErrInvalidConfig, i, err)
		}
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath()
	}
	c.Market.Symbol = strings.ToUpper(c.Market.Symbol)
	c.Market.Exchange = strings.ToLower(c.Market.Exchange)
	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)
	return nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv("MERLIN_EXCHANGE"); v != "" {
		c.Market.Exchange = v
	}
	if v := os.Getenv("MERLIN_SYMBOL"); v != "" {
		c.Market.Symbol = v
	}
	if v := os.Getenv("MERLIN_TIMEFRAME"); v != "" {
		c.Market.Timeframe = v
	}
	if v := os.Getenv("MERLIN_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MERLIN_LIMIT=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Market.Limit = n
	}
	if v := os.Getenv("MERLIN_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("MERLIN_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("MERLIN_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("MERLIN_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("MERLIN_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	return nil
}

// DefaultCachePath is ~/.cache/merlin/merlin_cache.sqlite3, or a relative path
// when the home directory is unknown.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".cache", "merlin_cache.sqlite3")
	}
	return filepath.Join(home, ".cache", "merlin", "merlin_cache.sqlite3")
}
