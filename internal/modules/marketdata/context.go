package marketdata

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/pkg/formulas"
)

const (
	rsiLength     = 14
	momentumDays  = 20
	shortSMA      = 20
	longSMA       = 50
	historyDays   = 90
	contextMaxAge = 10 * time.Minute
)

// HistoryProvider supplies daily closing prices, oldest first.
type HistoryProvider interface {
	GetDailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Service builds the technical backdrop handed to stance evaluations.
// Contexts are cached briefly so a debate burst does not re-fetch history
// per stance.
type Service struct {
	provider HistoryProvider
	log      zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedContext
}

type cachedContext struct {
	ctx     domain.MarketContext
	builtAt time.Time
}

// NewService creates a market context service.
func NewService(provider HistoryProvider, log zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		log:      log.With().Str("service", "marketdata").Logger(),
		cache:    make(map[string]cachedContext),
	}
}

// BuildContext computes the market context for a symbol. Missing history is
// not an error: debates run with whatever backdrop is available, down to an
// empty context.
func (s *Service) BuildContext(ctx context.Context, symbol string) domain.MarketContext {
	s.mu.Lock()
	cached, ok := s.cache[symbol]
	s.mu.Unlock()
	if ok && time.Since(cached.builtAt) < contextMaxAge {
		return cached.ctx
	}

	closes, err := s.provider.GetDailyCloses(ctx, symbol, historyDays)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("No price history, debating without market context")
		return domain.MarketContext{}
	}

	mc := ContextFromCloses(closes)
	s.mu.Lock()
	s.cache[symbol] = cachedContext{ctx: mc, builtAt: time.Now()}
	s.mu.Unlock()
	return mc
}

// ContextFromCloses derives the indicators from a daily closing series.
func ContextFromCloses(closes []float64) domain.MarketContext {
	mc := domain.MarketContext{}

	if rsi := formulas.CalculateRSI(closes, rsiLength); rsi != nil {
		mc.RSI = math.Round(*rsi*10) / 10
	}
	if vol := formulas.CalculateVolatility(closes); vol != nil {
		mc.Volatility = *vol
	}
	if mom := formulas.CalculateMomentum(closes, momentumDays); mom != nil {
		mc.MomentumPct = math.Round(*mom*1000) / 10
	}
	mc.Trend = trend(closes)

	return mc
}

// trend compares the short and long moving averages. A short average more
// than 1% above the long reads bullish, more than 1% below reads bearish.
func trend(closes []float64) string {
	short := formulas.CalculateSMA(closes, shortSMA)
	long := formulas.CalculateSMA(closes, longSMA)
	if short == nil || long == nil || *long == 0 {
		return ""
	}

	ratio := *short / *long
	switch {
	case ratio > 1.01:
		return "bullish"
	case ratio < 0.99:
		return "bearish"
	default:
		return "sideways"
	}
}
