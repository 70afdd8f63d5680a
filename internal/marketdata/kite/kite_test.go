package kite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
)

type fakeClient struct {
	instrumentsGate chan struct{}
	instrumentCalls int
	gotToken        int
	gotInterval     string
	rows            []kiteconnect.HistoricalData
	err             error
}

func (f *fakeClient) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	if f.instrumentsGate != nil {
		<-f.instrumentsGate
	}
	f.instrumentCalls++
	return kiteconnect.Instruments{
		{InstrumentToken: 738561, Tradingsymbol: "RELIANCE"},
		{InstrumentToken: 2953217, Tradingsymbol: "TCS"},
	}, nil
}

func (f *fakeClient) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	f.gotToken = token
	f.gotInterval = interval
	return f.rows, f.err
}

func bar(ts time.Time, close float64) kiteconnect.HistoricalData {
	return kiteconnect.HistoricalData{
		Date:   models.Time{Time: ts},
		Open:   close - 1,
		High:   close + 2,
		Low:    close - 2,
		Close:  close,
		Volume: 1500,
	}
}

func TestFetchCandlesMapsSymbolAndInterval(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	fc := &fakeClient{rows: []kiteconnect.HistoricalData{
		bar(start, 2900),
		bar(start.Add(15*time.Minute), 2910),
		bar(start.Add(30*time.Minute), 2920),
	}}
	src := NewWithClient(fc, "nse")

	candles, err := src.FetchCandles(context.Background(), "reliance", "15m", 2)
	require.NoError(t, err)

	assert.Equal(t, 738561, fc.gotToken)
	assert.Equal(t, "15minute", fc.gotInterval)
	require.Len(t, candles, 2)
	assert.Equal(t, 2910.0, candles[0].Close)
	assert.Equal(t, start.Add(30*time.Minute).UnixMilli(), candles[1].Ts)
	assert.Equal(t, 1500.0, candles[1].Vol)

	_, err = src.FetchCandles(context.Background(), "TCS", "15m", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.instrumentCalls, "instrument dump is loaded once")
}

func TestFetchCandlesErrors(t *testing.T) {
	fc := &fakeClient{err: errors.New("token expired")}
	src := NewWithClient(fc, "NSE")

	_, err := src.FetchCandles(context.Background(), "RELIANCE", "4h", 10)
	assert.ErrorContains(t, err, "unsupported interval")

	_, err = src.FetchCandles(context.Background(), "UNKNOWN", "1d", 10)
	assert.ErrorContains(t, err, "no instrument")

	_, err = src.FetchCandles(context.Background(), "RELIANCE", "1d", 10)
	assert.ErrorContains(t, err, "token expired")
}

func TestLookbackIsBoundedByKiteRange(t *testing.T) {
	spec := intervals["1m"]
	assert.Equal(t, spec.maxRange, lookback(spec, 1_000_000))
	assert.Greater(t, lookback(intervals["1d"], 10), 10*24*time.Hour)
}

func TestInstrumentLoadHonoursDeadline(t *testing.T) {
	gate := make(chan struct{})
	fc := &fakeClient{instrumentsGate: gate}
	src := NewWithClient(fc, "NSE")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.FetchCandles(ctx, "RELIANCE", "1d", 10)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)

	// the abandoned load completes in the background and is reused
	close(gate)
	require.Eventually(t, src.mapper.isLoaded, time.Second, 5*time.Millisecond)
	fc.rows = []kiteconnect.HistoricalData{bar(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2900)}
	candles, err := src.FetchCandles(context.Background(), "RELIANCE", "1d", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}
