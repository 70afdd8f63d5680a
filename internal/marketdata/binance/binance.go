package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"merlin/internal/api"
	"merlin/internal/interfaces"
	"merlin/internal/types"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"
	// the klines endpoint rejects larger pages
	maxLimit = 1000
)

// Source reads public spot klines. No credentials are needed.
type Source struct {
	client *api.Client
	retry  *api.RetryConfig
}

var _ interfaces.CandleSource = (*Source)(nil)

// New creates a klines source. attempts is the total number of tries per
// request, including the first.
func New(baseURL string, attempts int, opts ...api.ClientOption) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	retry := api.DefaultRetryConfig()
	if attempts > 0 {
		retry.MaxAttempts = attempts
	}
	clientOpts := append([]api.ClientOption{
		api.WithBaseURL(strings.TrimRight(baseURL, "/")),
		api.WithHeader("Accept", "application/json"),
		api.WithLogging(true),
	}, opts...)
	return &Source{client: api.NewClient(clientOpts...), retry: retry}
}

// WithRetry overrides the backoff schedule.
func (s *Source) WithRetry(cfg *api.RetryConfig) *Source {
	s.retry = cfg
	return s
}

func (s *Source) Name() string { return "binance" }

// MarketSymbol converts "BTC/USDT" or "btc-usdt" to "BTCUSDT".
func MarketSymbol(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(symbol))
}

func (s *Source) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	if !Interval(timeframe) {
		return nil, fmt.Errorf("binance: unsupported interval %q", timeframe)
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	req := api.NewRequest(http.MethodGet, klinesPath).
		WithContext(ctx).
		WithQuery("symbol", MarketSymbol(symbol)).
		WithQuery("interval", timeframe).
		WithQuery("limit", strconv.Itoa(limit))

	resp, err := s.client.DoWithRetry(req, s.retry)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, timeframe, err)
	}

	var rows [][]json.RawMessage
	if err := resp.ParseJSON(&rows); err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, closeTime, ...].
// Prices arrive as strings.
func parseKline(row []json.RawMessage) (types.Candle, error) {
	if len(row) < 6 {
		return types.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	var ts int64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return types.Candle{}, fmt.Errorf("open time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		var raw string
		if err := json.Unmarshal(row[i+1], &raw); err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return types.Candle{
		Ts:    ts,
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
		Vol:   vals[4],
	}, nil
}

// Interval reports whether timeframe is a kline interval this source accepts.
func Interval(timeframe string) bool {
	switch timeframe {
	case "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "12h", "1d", "1w":
		return true
	}
	return false
}

