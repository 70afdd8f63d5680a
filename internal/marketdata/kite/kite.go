package kite

import (
	"context"
	"fmt"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"merlin/internal/interfaces"
	"merlin/internal/types"
)

// Client is the part of the Kite Connect client this source uses.
type Client interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// interval name and the longest range Kite serves in one historical call
type intervalSpec struct {
	name     string
	step     time.Duration
	maxRange time.Duration
}

var intervals = map[string]intervalSpec{
	"1m":  {"minute", time.Minute, 60 * 24 * time.Hour},
	"3m":  {"3minute", 3 * time.Minute, 100 * 24 * time.Hour},
	"5m":  {"5minute", 5 * time.Minute, 100 * 24 * time.Hour},
	"15m": {"15minute", 15 * time.Minute, 200 * 24 * time.Hour},
	"30m": {"30minute", 30 * time.Minute, 200 * 24 * time.Hour},
	"1h":  {"60minute", time.Hour, 400 * 24 * time.Hour},
	"1d":  {"day", 24 * time.Hour, 2000 * 24 * time.Hour},
}

// Source reads historical candles from Zerodha Kite. Symbols are exchange
// trading symbols such as "RELIANCE" or "NIFTY 50".
type Source struct {
	kc       Client
	exchange string
	mapper   *instrumentMapper
	now      func() time.Time
}

var _ interfaces.CandleSource = (*Source)(nil)

// New creates a source backed by the Kite Connect REST client.
func New(apiKey, accessToken, exchange string) *Source {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return NewWithClient(kc, exchange)
}

func NewWithClient(kc Client, exchange string) *Source {
	return &Source{
		kc:       kc,
		exchange: strings.ToUpper(exchange),
		mapper:   newInstrumentMapper(),
		now:      time.Now,
	}
}

func (s *Source) Name() string { return "kite" }

func (s *Source) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	spec, ok := intervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("kite: unsupported interval %q", timeframe)
	}
	token, err := s.token(ctx, symbol)
	if err != nil {
		return nil, err
	}

	to := s.now()
	from := to.Add(-lookback(spec, limit))

	rows, err := await(ctx, func() ([]kiteconnect.HistoricalData, error) {
		return s.kc.GetHistoricalData(token, spec.name, from, to, false, false)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("kite historical %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, types.Candle{
			Ts:    r.Date.Time.UnixMilli(),
			Open:  r.Open,
			High:  r.High,
			Low:   r.Low,
			Close: r.Close,
			Vol:   float64(r.Volume),
		})
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// token resolves symbol, loading the instrument dump on first use. The dump is
// large, so the load is bounded by ctx like the historical call; a load that
// finishes after ctx expired still fills the mapper for the next call.
func (s *Source) token(ctx context.Context, symbol string) (int, error) {
	if !s.mapper.isLoaded() {
		_, err := await(ctx, func() (struct{}, error) {
			instruments, err := s.kc.GetInstrumentsByExchange(s.exchange)
			if err == nil {
				s.mapper.load(instruments)
			}
			return struct{}{}, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("kite instruments %s: %w", s.exchange, err)
		}
	}
	token, ok := s.mapper.getToken(symbol)
	if !ok {
		return 0, fmt.Errorf("kite: no instrument %q on %s", symbol, s.exchange)
	}
	return token, nil
}

// await runs fn in its own goroutine and returns ctx.Err() as soon as ctx is
// done. The Kite client has no context support.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-done:
		return res.v, res.err
	}
}

// lookback covers limit bars with room for closed sessions: an Indian equity
// session is about a quarter of a calendar day and weekends are skipped.
func lookback(spec intervalSpec, limit int) time.Duration {
	if limit <= 0 {
		limit = 1
	}
	d := time.Duration(limit) * spec.step
	if spec.step < 24*time.Hour {
		d *= 4
	}
	d = d * 7 / 5
	if d > spec.maxRange {
		d = spec.maxRange
	}
	return d
}
