package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// AggregatorConfig holds the portfolio-level thresholds.
type AggregatorConfig struct {
	ConcentrationCapPct float64
	IdleCashPct         float64
}

// DefaultAggregatorConfig mirrors the scorer defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		ConcentrationCapPct: 25.0,
		IdleCashPct:         30.0,
	}
}

// Aggregate combines per-position assessments into a portfolio snapshot.
// Output ordering is fully deterministic (positions and warnings sorted by
// symbol) so aggregating an unchanged input set yields a byte-identical
// snapshot apart from the timestamp.
func Aggregate(accountID string, cash float64, assessments []domain.PositionAssessment, at time.Time, cfg AggregatorConfig) domain.PortfolioSnapshot {
	sorted := make([]domain.PositionAssessment, len(assessments))
	copy(sorted, assessments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	invested := 0.0
	totalPnL := 0.0
	capitalAtRisk := 0.0
	overall := domain.RiskLow
	stale := false

	for _, a := range sorted {
		invested += a.MarketValue
		totalPnL += a.UnrealizedPnL
		if a.UnrealizedPnL < 0 {
			capitalAtRisk += -a.UnrealizedPnL
		}
		// A single critical position makes the portfolio critical.
		overall = domain.MaxRiskLevel(overall, a.RiskLevel)
		if a.Stale {
			stale = true
		}
	}

	totalValue := invested + cash

	snapshot := domain.PortfolioSnapshot{
		AccountID:          accountID,
		TotalValue:         round(totalValue, 2),
		CashAvailable:      round(cash, 2),
		InvestedValue:      round(invested, 2),
		TotalUnrealizedPnL: round(totalPnL, 2),
		OverallRiskLevel:   overall,
		CapitalAtRisk:      round(capitalAtRisk, 2),
		Positions:          sorted,
		Stale:              stale,
		CreatedAt:          at,
	}

	if totalValue > 0 {
		snapshot.CapitalEfficiency = round(invested/totalValue, 4)
	}

	snapshot.DiversificationScore = diversificationScore(len(sorted))
	snapshot.ConcentrationWarnings = concentrationWarnings(sorted, cfg.ConcentrationCapPct)
	if len(snapshot.ConcentrationWarnings) > 0 {
		snapshot.DiversificationScore = math.Max(0, snapshot.DiversificationScore-20)
	}

	snapshot.SuggestedActions = suggestedActions(snapshot, cfg)
	for _, a := range sorted {
		if a.Action != domain.ActionHold {
			snapshot.RebalanceNeeded = true
			break
		}
	}

	return snapshot
}

// diversificationScore bands by position count. All cash scores 100.
func diversificationScore(numPositions int) float64 {
	switch {
	case numPositions == 0:
		return 100
	case numPositions >= 10:
		return 90
	case numPositions >= 5:
		return 70
	case numPositions >= 3:
		return 50
	default:
		return 30
	}
}

func concentrationWarnings(assessments []domain.PositionAssessment, capPct float64) []domain.ConcentrationWarning {
	warnings := []domain.ConcentrationWarning{}
	for _, a := range assessments {
		if a.Concentration > capPct {
			warnings = append(warnings, domain.ConcentrationWarning{
				Symbol: a.Symbol,
				Pct:    a.Concentration,
			})
		}
	}
	return warnings
}

// suggestedActions builds the prioritized action list: exits first, then
// reductions, then reallocations, ordered by P&L magnitude within a tier.
func suggestedActions(snapshot domain.PortfolioSnapshot, cfg AggregatorConfig) []domain.SuggestedAction {
	priorityOrder := map[domain.Action]int{
		domain.ActionExit:       1,
		domain.ActionReduce:     2,
		domain.ActionReallocate: 3,
		domain.ActionAdd:        4,
		domain.ActionHold:       5,
	}

	actionable := make([]domain.PositionAssessment, 0, len(snapshot.Positions))
	for _, a := range snapshot.Positions {
		if a.Action != domain.ActionHold {
			actionable = append(actionable, a)
		}
	}

	sort.SliceStable(actionable, func(i, j int) bool {
		pi, pj := priorityOrder[actionable[i].Action], priorityOrder[actionable[j].Action]
		if pi != pj {
			return pi < pj
		}
		return math.Abs(actionable[i].UnrealizedPnLPct) > math.Abs(actionable[j].UnrealizedPnLPct)
	})

	suggestions := []domain.SuggestedAction{}
	for i, a := range actionable {
		suggestions = append(suggestions, domain.SuggestedAction{
			Priority:  i + 1,
			Symbol:    a.Symbol,
			Action:    a.Action,
			Reason:    a.Reason,
			Value:     a.MarketValue,
			PnLPct:    a.UnrealizedPnLPct,
			RiskLevel: a.RiskLevel,
		})
	}

	// Idle cash is surfaced as a portfolio-level suggestion; the monitor
	// decides whether it has dwelled long enough to raise an alert.
	if snapshot.TotalValue > 0 {
		cashPct := snapshot.CashAvailable / snapshot.TotalValue * 100
		if cashPct > cfg.IdleCashPct {
			suggestions = append(suggestions, domain.SuggestedAction{
				Priority:  len(suggestions) + 1,
				Action:    domain.ActionAdd,
				Reason:    fmt.Sprintf("Cash position at %.1f%% - consider deploying to opportunities", cashPct),
				Value:     snapshot.CashAvailable,
				RiskLevel: domain.RiskLow,
			})
		}
	}

	return suggestions
}

// ReallocationSuggestions pairs positions flagged for reduction or exit
// with externally supplied opportunity candidates. Target selection is an
// external input; this only splits freed capital across the top three.
func ReallocationSuggestions(snapshot domain.PortfolioSnapshot, opportunities []domain.Opportunity) []domain.ReallocationSuggestion {
	suggestions := []domain.ReallocationSuggestion{}
	freedCapital := 0.0

	for _, pos := range snapshot.Positions {
		var amount float64
		switch pos.Action {
		case domain.ActionExit:
			amount = pos.MarketValue
		case domain.ActionReduce:
			// Free the excess over the concentration target.
			target := snapshot.TotalValue * DefaultAggregatorConfig().ConcentrationCapPct / 100
			amount = math.Max(0, pos.MarketValue-target)
		default:
			continue
		}

		freedCapital += amount
		priority := 2
		if pos.Action == domain.ActionExit {
			priority = 1
		}
		suggestions = append(suggestions, domain.ReallocationSuggestion{
			FromSymbol: pos.Symbol,
			Amount:     round(amount, 2),
			Reason:     pos.Reason,
			Priority:   priority,
		})
	}

	if freedCapital <= 0 || len(opportunities) == 0 {
		return suggestions
	}

	n := len(opportunities)
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		suggestions = append(suggestions, domain.ReallocationSuggestion{
			ToSymbol: opportunities[i].Symbol,
			Amount:   round(freedCapital/float64(n), 2),
			Reason:   fmt.Sprintf("New opportunity: %s", opportunities[i].Reason),
			Priority: 3 + i,
		})
	}

	return suggestions
}
