package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/pkg/logger"
)

type fakeHistory struct {
	closes []float64
	err    error
	calls  int
}

func (f *fakeHistory) GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.closes, nil
}

func newTestService(provider HistoryProvider) *Service {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewService(provider, log)
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 200 - float64(i)
	}
	return out
}

func TestContextFromCloses_Uptrend(t *testing.T) {
	mc := ContextFromCloses(rising(60))

	assert.Equal(t, "bullish", mc.Trend)
	assert.Greater(t, mc.RSI, 50.0)
	assert.Greater(t, mc.MomentumPct, 0.0)
	assert.Greater(t, mc.Volatility, 0.0)
}

func TestContextFromCloses_Downtrend(t *testing.T) {
	mc := ContextFromCloses(falling(60))

	assert.Equal(t, "bearish", mc.Trend)
	assert.Less(t, mc.RSI, 50.0)
	assert.Less(t, mc.MomentumPct, 0.0)
}

func TestContextFromCloses_TooShortSeriesStaysEmpty(t *testing.T) {
	mc := ContextFromCloses([]float64{100, 101, 102})

	assert.Empty(t, mc.Trend)
	assert.Zero(t, mc.RSI)
	assert.Zero(t, mc.MomentumPct)
}

func TestBuildContext_CachesPerSymbol(t *testing.T) {
	provider := &fakeHistory{closes: rising(60)}
	s := newTestService(provider)

	first := s.BuildContext(context.Background(), "AAPL")
	second := s.BuildContext(context.Background(), "AAPL")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.calls)

	// A different symbol is its own cache entry.
	s.BuildContext(context.Background(), "MSFT")
	assert.Equal(t, 2, provider.calls)
}

func TestBuildContext_MissingHistoryIsNotFatal(t *testing.T) {
	provider := &fakeHistory{err: errors.New("no chart data")}
	s := newTestService(provider)

	mc := s.BuildContext(context.Background(), "OBSCURE")
	require.Empty(t, mc.Trend)
	assert.Zero(t, mc.RSI)

	// Failures are not cached; the next debate retries.
	s.BuildContext(context.Background(), "OBSCURE")
	assert.Equal(t, 2, provider.calls)
}
