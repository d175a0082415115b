package advisor

import (
	"fmt"
	"strings"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// stanceFraming holds the role framing injected per stance. The factual
// position context is identical for all three.
var stanceFraming = map[domain.Stance]struct {
	role  string
	focus string
}{
	domain.StanceAggressive: {
		role: "As an AGGRESSIVE Risk Analyst, evaluate this %s position.\nYour role is to champion high-reward opportunities and bold strategies.",
		focus: `Focus on:
- Upside potential and growth opportunities
- Why caution might miss critical gains
- Bold moves that could outperform`,
	},
	domain.StanceConservative: {
		role: "As a CONSERVATIVE Risk Analyst, evaluate this %s position.\nYour role is to prioritize capital preservation and risk management.",
		focus: `Focus on:
- Downside risks and potential losses
- Why the current position might be overexposed
- Protecting gains and limiting losses`,
	},
	domain.StanceNeutral: {
		role: "As a NEUTRAL Risk Analyst, evaluate this %s position.\nYour role is to find the balanced approach between risk and reward.",
		focus: `Focus on:
- Balancing the aggressive and conservative views
- Risk-adjusted returns
- Practical middle-ground recommendations`,
	},
}

// BuildPrompt assembles the stance-framed prompt. Every stance sees the
// same facts; only the role framing and focus differ.
func BuildPrompt(stance domain.Stance, assessment domain.PositionAssessment, market domain.MarketContext) string {
	framing := stanceFraming[stance]

	var b strings.Builder
	fmt.Fprintf(&b, framing.role, assessment.Symbol)
	b.WriteString("\n\n")
	b.WriteString(positionContext(assessment, market))
	b.WriteString("\nEvaluate whether to: HOLD (keep full position), REDUCE (partial exit), EXIT (full exit), or ADD (increase position).\n\n")
	b.WriteString(framing.focus)
	b.WriteString(`

Respond in this format:
ACTION: [HOLD/REDUCE/EXIT/ADD]
CONFIDENCE: [0.0-1.0]
REASONING: [Your case]
KEY_POINTS:
- Point 1
- Point 2
- Point 3`)

	return b.String()
}

func positionContext(assessment domain.PositionAssessment, market domain.MarketContext) string {
	var b strings.Builder
	b.WriteString("CURRENT POSITION:\n")
	fmt.Fprintf(&b, "- Entry Price: $%.2f\n", assessment.EntryPrice)
	fmt.Fprintf(&b, "- Current Price: $%.2f\n", assessment.CurrentPrice)
	fmt.Fprintf(&b, "- Quantity: %g\n", assessment.Quantity)
	fmt.Fprintf(&b, "- Market Value: $%.2f\n", assessment.MarketValue)
	fmt.Fprintf(&b, "- Unrealized P&L: $%.2f (%.1f%%)\n", assessment.UnrealizedPnL, assessment.UnrealizedPnLPct)
	fmt.Fprintf(&b, "- Portfolio Concentration: %.1f%%\n", assessment.Concentration)

	if market != (domain.MarketContext{}) {
		b.WriteString("\nMARKET CONTEXT:\n")
		if market.Trend != "" {
			fmt.Fprintf(&b, "- Market Trend: %s\n", market.Trend)
		}
		if market.RSI > 0 {
			fmt.Fprintf(&b, "- RSI (14): %.1f\n", market.RSI)
		}
		if market.Volatility > 0 {
			fmt.Fprintf(&b, "- Annualized Volatility: %.1f%%\n", market.Volatility*100)
		}
		if market.MomentumPct != 0 {
			fmt.Fprintf(&b, "- 20-day Momentum: %.1f%%\n", market.MomentumPct)
		}
		if market.NewsSentiment != "" {
			fmt.Fprintf(&b, "- News Sentiment: %s\n", market.NewsSentiment)
		}
	}

	return b.String()
}
