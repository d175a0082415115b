package risk

import (
	"fmt"
	"math"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// PortfolioContext is the portfolio-level input to position scoring.
type PortfolioContext struct {
	TotalValue    float64
	CashAvailable float64
}

// Score assesses a single position against its strategy thresholds.
// It is a pure function: identical inputs and thresholds always yield an
// identical assessment. No clock, no I/O, no randomness.
func Score(pos domain.Position, ctx PortfolioContext, th StrategyThresholds) domain.PositionAssessment {
	marketValue := pos.MarketValue()

	pnlPct := unrealizedPnLPct(pos)
	costBasis := math.Abs(pos.Quantity) * pos.EntryPrice
	pnl := costBasis * pnlPct / 100

	concentration := 0.0
	if ctx.TotalValue > 0 {
		concentration = marketValue / ctx.TotalValue * 100
	}

	level := riskLevel(pnlPct, concentration, th)
	action, reason, reallocate := determineAction(pnlPct, concentration, level, th)

	return domain.PositionAssessment{
		Symbol:           pos.Symbol,
		Quantity:         pos.Quantity,
		EntryPrice:       pos.EntryPrice,
		CurrentPrice:     pos.CurrentPrice,
		MarketValue:      round(marketValue, 2),
		UnrealizedPnL:    round(pnl, 2),
		UnrealizedPnLPct: round(pnlPct, 2),
		Concentration:    round(concentration, 2),
		RiskLevel:        level,
		Action:           action,
		Reason:           reason,
		StopLossPrice:    round(referencePrice(pos, th.CriticalLossPct), 4),
		TakeProfitPrice:  round(referencePrice(pos, th.LargeGainPct), 4),
		ReallocateFlag:   reallocate,
	}
}

// unrealizedPnLPct returns the sign-aware P&L percentage: a price drop is
// a gain for a short position.
func unrealizedPnLPct(pos domain.Position) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	price := pos.CurrentPrice
	if price == 0 {
		price = pos.EntryPrice
	}
	pct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Quantity < 0 {
		pct = -pct
	}
	return pct
}

// referencePrice converts a P&L percentage threshold into the price at
// which it triggers, accounting for position direction.
func referencePrice(pos domain.Position, pct float64) float64 {
	if pos.Quantity < 0 {
		return pos.EntryPrice * (1 - pct/100)
	}
	return pos.EntryPrice * (1 + pct/100)
}

func riskLevel(pnlPct, concentration float64, th StrategyThresholds) domain.RiskLevel {
	if pnlPct <= th.CriticalLossPct {
		return domain.RiskCritical
	}
	if pnlPct <= th.HighLossPct {
		return domain.RiskHigh
	}
	if concentration > th.HighConcentrationPct {
		return domain.RiskHigh
	}
	if concentration > th.ConcentrationCapPct {
		// Over the cap: a large gain on top makes a reversal more costly.
		if pnlPct >= th.LargeGainPct {
			return domain.RiskHigh
		}
		return domain.RiskModerate
	}
	if pnlPct >= th.LargeGainPct {
		// Profit-taking territory.
		return domain.RiskModerate
	}
	return domain.RiskLow
}

func determineAction(pnlPct, concentration float64, level domain.RiskLevel, th StrategyThresholds) (domain.Action, string, bool) {
	switch {
	case pnlPct <= th.CriticalLossPct:
		return domain.ActionExit,
			fmt.Sprintf("Stop loss triggered: %.1f%% loss exceeds %.1f%% threshold", pnlPct, th.CriticalLossPct),
			false

	case pnlPct >= th.LargeGainPct && concentration > th.ConcentrationCapPct:
		return domain.ActionReduce,
			fmt.Sprintf("Locking in %.1f%% gain on position at %.1f%% of portfolio", pnlPct, concentration),
			false

	case pnlPct >= th.LargeGainPct:
		return domain.ActionReduce,
			fmt.Sprintf("Take profit opportunity: %.1f%% gain exceeds %.1f%% threshold", pnlPct, th.LargeGainPct),
			false

	case concentration > th.ConcentrationCapPct && pnlPct >= 0:
		// No loss, just oversized: trim and flag for reallocation pairing.
		return domain.ActionReduce,
			fmt.Sprintf("Position too concentrated at %.1f%% of portfolio (cap %.1f%%)", concentration, th.ConcentrationCapPct),
			true

	case concentration > th.ConcentrationCapPct:
		return domain.ActionReduce,
			fmt.Sprintf("Position too concentrated at %.1f%% of portfolio (cap %.1f%%)", concentration, th.ConcentrationCapPct),
			false

	case level == domain.RiskHigh:
		return domain.ActionReduce, "High risk level - consider reducing exposure", false

	default:
		return domain.ActionHold, "Position within acceptable risk parameters", false
	}
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
