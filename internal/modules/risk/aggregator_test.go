package risk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

func assessment(symbol string, value, pnl, pnlPct, conc float64, level domain.RiskLevel, action domain.Action) domain.PositionAssessment {
	return domain.PositionAssessment{
		Symbol:           symbol,
		MarketValue:      value,
		UnrealizedPnL:    pnl,
		UnrealizedPnLPct: pnlPct,
		Concentration:    conc,
		RiskLevel:        level,
		Action:           action,
	}
}

func TestAggregate_SumsAndOverallRisk(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	assessments := []domain.PositionAssessment{
		assessment("AAPL", 3000, 300, 10, 30, domain.RiskModerate, domain.ActionHold),
		assessment("MSFT", 2000, -150, -7, 20, domain.RiskLow, domain.ActionHold),
		assessment("TSLA", 1000, -200, -18, 10, domain.RiskCritical, domain.ActionExit),
	}

	snap := Aggregate("acct-1", 4000, assessments, at, DefaultAggregatorConfig())

	assert.Equal(t, "acct-1", snap.AccountID)
	assert.InDelta(t, 10000.0, snap.TotalValue, 0.01)
	assert.InDelta(t, 6000.0, snap.InvestedValue, 0.01)
	assert.InDelta(t, -50.0, snap.TotalUnrealizedPnL, 0.01)
	// Only losing positions count as capital at risk.
	assert.InDelta(t, 350.0, snap.CapitalAtRisk, 0.01)
	// One critical position makes the whole portfolio critical.
	assert.Equal(t, domain.RiskCritical, snap.OverallRiskLevel)
	assert.True(t, snap.RebalanceNeeded)
	assert.InDelta(t, 0.6, snap.CapitalEfficiency, 0.0001)
}

func TestAggregate_ConcentrationWarnings(t *testing.T) {
	assessments := []domain.PositionAssessment{
		assessment("NVDA", 3200, 900, 40, 32, domain.RiskHigh, domain.ActionReduce),
		assessment("VTI", 2000, 100, 5, 20, domain.RiskLow, domain.ActionHold),
	}

	snap := Aggregate("acct-1", 4800, assessments, time.Now(), DefaultAggregatorConfig())

	require.Len(t, snap.ConcentrationWarnings, 1)
	assert.Equal(t, "NVDA", snap.ConcentrationWarnings[0].Symbol)
	assert.InDelta(t, 32.0, snap.ConcentrationWarnings[0].Pct, 0.01)

	require.NotEmpty(t, snap.SuggestedActions)
	assert.Equal(t, "NVDA", snap.SuggestedActions[0].Symbol)
	assert.Equal(t, domain.ActionReduce, snap.SuggestedActions[0].Action)
}

func TestAggregate_SuggestedActionsPrioritizeExits(t *testing.T) {
	assessments := []domain.PositionAssessment{
		assessment("A", 1000, 100, 12, 10, domain.RiskModerate, domain.ActionReduce),
		assessment("B", 1000, -250, -20, 10, domain.RiskCritical, domain.ActionExit),
		assessment("C", 1000, 350, 35, 10, domain.RiskModerate, domain.ActionReduce),
	}

	snap := Aggregate("acct-1", 7000, assessments, time.Now(), DefaultAggregatorConfig())

	require.GreaterOrEqual(t, len(snap.SuggestedActions), 3)
	assert.Equal(t, "B", snap.SuggestedActions[0].Symbol)
	// Within a tier, larger absolute P&L moves first.
	assert.Equal(t, "C", snap.SuggestedActions[1].Symbol)
	assert.Equal(t, "A", snap.SuggestedActions[2].Symbol)
	for i, s := range snap.SuggestedActions {
		assert.Equal(t, i+1, s.Priority)
	}
}

func TestAggregate_IdleCashSuggestion(t *testing.T) {
	assessments := []domain.PositionAssessment{
		assessment("VTI", 4000, 100, 3, 40, domain.RiskLow, domain.ActionHold),
	}

	// 60% cash, above the 30% default.
	snap := Aggregate("acct-1", 6000, assessments, time.Now(), DefaultAggregatorConfig())

	require.NotEmpty(t, snap.SuggestedActions)
	last := snap.SuggestedActions[len(snap.SuggestedActions)-1]
	assert.Equal(t, domain.ActionAdd, last.Action)
	assert.Contains(t, last.Reason, "Cash position")
}

func TestAggregate_EmptyPortfolio(t *testing.T) {
	snap := Aggregate("acct-1", 2500, nil, time.Now(), DefaultAggregatorConfig())

	assert.InDelta(t, 2500.0, snap.TotalValue, 0.01)
	assert.Equal(t, domain.RiskLow, snap.OverallRiskLevel)
	assert.Equal(t, 100.0, snap.DiversificationScore)
	assert.False(t, snap.RebalanceNeeded)
	assert.Empty(t, snap.Positions)
}

func TestAggregate_StalePropagates(t *testing.T) {
	a := assessment("AAPL", 1000, 0, 0, 10, domain.RiskLow, domain.ActionHold)
	a.Stale = true

	snap := Aggregate("acct-1", 9000, []domain.PositionAssessment{a}, time.Now(), DefaultAggregatorConfig())

	assert.True(t, snap.Stale)
}

func TestAggregate_IsIdempotent(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	assessments := []domain.PositionAssessment{
		assessment("MSFT", 2000, -150, -7, 20, domain.RiskLow, domain.ActionHold),
		assessment("AAPL", 3000, 300, 10, 30, domain.RiskModerate, domain.ActionReduce),
	}

	first := Aggregate("acct-1", 5000, assessments, at, DefaultAggregatorConfig())
	second := Aggregate("acct-1", 5000, assessments, at, DefaultAggregatorConfig())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)

	// Input order must not matter: positions come out sorted by symbol.
	reversed := []domain.PositionAssessment{assessments[1], assessments[0]}
	third := Aggregate("acct-1", 5000, reversed, at, DefaultAggregatorConfig())
	thirdJSON, err := json.Marshal(third)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, thirdJSON)
}

func TestReallocationSuggestions_PairsReductionsWithOpportunities(t *testing.T) {
	snap := domain.PortfolioSnapshot{
		TotalValue: 10000,
		Positions: []domain.PositionAssessment{
			{Symbol: "TSLA", MarketValue: 4000, Action: domain.ActionReduce, Reason: "too concentrated"},
			{Symbol: "GME", MarketValue: 1000, Action: domain.ActionExit, Reason: "stop loss"},
			{Symbol: "VTI", MarketValue: 2000, Action: domain.ActionHold},
		},
	}
	opportunities := []domain.Opportunity{
		{Symbol: "MSFT", Reason: "strong momentum"},
		{Symbol: "GOOG", Reason: "undervalued"},
	}

	suggestions := ReallocationSuggestions(snap, opportunities)

	require.Len(t, suggestions, 4)
	// Exits free the full value, reductions the excess over the cap.
	assert.Equal(t, "TSLA", suggestions[0].FromSymbol)
	assert.InDelta(t, 1500.0, suggestions[0].Amount, 0.01)
	assert.Equal(t, "GME", suggestions[1].FromSymbol)
	assert.InDelta(t, 1000.0, suggestions[1].Amount, 0.01)

	// Freed capital splits evenly across the targets.
	assert.Equal(t, "MSFT", suggestions[2].ToSymbol)
	assert.Equal(t, "GOOG", suggestions[3].ToSymbol)
	assert.InDelta(t, 1250.0, suggestions[2].Amount, 0.01)
	assert.InDelta(t, 1250.0, suggestions[3].Amount, 0.01)
}

func TestReallocationSuggestions_NoReductionsNoTargets(t *testing.T) {
	snap := domain.PortfolioSnapshot{
		TotalValue: 5000,
		Positions: []domain.PositionAssessment{
			{Symbol: "VTI", MarketValue: 2000, Action: domain.ActionHold},
		},
	}

	assert.Empty(t, ReallocationSuggestions(snap, []domain.Opportunity{{Symbol: "MSFT"}}))
}
