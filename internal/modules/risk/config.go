package risk

// StrategyThresholds is a flat set of named risk thresholds. Each strategy
// tag maps to its own set, so the same P&L can score differently under
// different strategies. All percentage fields are expressed in percent
// (-15.0 means a 15% loss).
type StrategyThresholds struct {
	StrategyTag          string  `json:"strategy_tag"`
	CriticalLossPct      float64 `json:"critical_loss_pct"`
	HighLossPct          float64 `json:"high_loss_pct"`
	LargeGainPct         float64 `json:"large_gain_pct"`
	ConcentrationCapPct  float64 `json:"concentration_cap_pct"`
	HighConcentrationPct float64 `json:"high_concentration_pct"`
}

// DefaultThresholds applies when a position carries no strategy tag or an
// unknown one.
func DefaultThresholds() StrategyThresholds {
	return StrategyThresholds{
		StrategyTag:          "default",
		CriticalLossPct:      -15.0,
		HighLossPct:          -10.0,
		LargeGainPct:         30.0,
		ConcentrationCapPct:  25.0,
		HighConcentrationPct: 40.0,
	}
}

// strategyThresholds maps every supported strategy tag to its thresholds.
// Long-horizon strategies tolerate deeper drawdowns before escalating;
// intraday strategies cut losses almost immediately.
var strategyThresholds = map[string]StrategyThresholds{
	// Long term
	"buy_and_hold":                 {"buy_and_hold", -30.0, -20.0, 50.0, 25.0, 40.0},
	"index_fund_investing":         {"index_fund_investing", -35.0, -25.0, 60.0, 40.0, 60.0},
	"dollar_cost_averaging":        {"dollar_cost_averaging", -35.0, -25.0, 60.0, 30.0, 45.0},
	"dividend_growth_investing":    {"dividend_growth_investing", -25.0, -18.0, 45.0, 25.0, 40.0},
	"value_investing":              {"value_investing", -25.0, -15.0, 40.0, 25.0, 40.0},
	"growth_investing":             {"growth_investing", -20.0, -12.0, 35.0, 20.0, 35.0},
	"sector_rotation":              {"sector_rotation", -15.0, -10.0, 25.0, 20.0, 35.0},
	"asset_allocation_rebalancing": {"asset_allocation_rebalancing", -20.0, -12.0, 30.0, 20.0, 30.0},

	// Swing trading
	"trend_following":  {"trend_following", -12.0, -8.0, 25.0, 20.0, 35.0},
	"breakout_trading": {"breakout_trading", -8.0, -5.0, 20.0, 20.0, 35.0},
	"momentum_trading": {"momentum_trading", -10.0, -6.0, 20.0, 20.0, 35.0},
	"mean_reversion":   {"mean_reversion", -10.0, -7.0, 15.0, 20.0, 35.0},
	"rsi_strategy":     {"rsi_strategy", -8.0, -5.0, 15.0, 20.0, 35.0},

	// Day trading
	"scalping":               {"scalping", -2.0, -1.0, 3.0, 15.0, 25.0},
	"vwap_strategy":          {"vwap_strategy", -3.0, -2.0, 5.0, 15.0, 25.0},
	"opening_range_breakout": {"opening_range_breakout", -4.0, -2.5, 6.0, 15.0, 25.0},
	"news_trading":           {"news_trading", -5.0, -3.0, 10.0, 15.0, 25.0},

	// Options
	"covered_calls":     {"covered_calls", -20.0, -12.0, 15.0, 25.0, 40.0},
	"cash_secured_puts": {"cash_secured_puts", -20.0, -12.0, 15.0, 25.0, 40.0},
	"iron_condor":       {"iron_condor", -15.0, -10.0, 10.0, 20.0, 30.0},

	// Greatest investors
	"warren_buffett_strategy":        {"warren_buffett_strategy", -30.0, -20.0, 50.0, 30.0, 45.0},
	"ben_graham_strategy":            {"ben_graham_strategy", -25.0, -15.0, 40.0, 20.0, 35.0},
	"peter_lynch_strategy":           {"peter_lynch_strategy", -25.0, -15.0, 45.0, 25.0, 40.0},
	"ray_dalio_strategy":             {"ray_dalio_strategy", -20.0, -12.0, 30.0, 20.0, 30.0},
	"jesse_livermore_strategy":       {"jesse_livermore_strategy", -10.0, -6.0, 25.0, 25.0, 40.0},
	"john_bogle_strategy":            {"john_bogle_strategy", -35.0, -25.0, 60.0, 40.0, 60.0},
	"stanley_druckenmiller_strategy": {"stanley_druckenmiller_strategy", -12.0, -8.0, 30.0, 30.0, 45.0},
	"jim_simons_strategy":            {"jim_simons_strategy", -8.0, -5.0, 15.0, 15.0, 25.0},
}

// ThresholdsFor resolves the thresholds for a strategy tag, falling back to
// the defaults for unknown tags.
func ThresholdsFor(strategyTag string) StrategyThresholds {
	if t, ok := strategyThresholds[strategyTag]; ok {
		return t
	}
	return DefaultThresholds()
}

// KnownStrategies returns the number of named strategy configurations.
func KnownStrategies() int {
	return len(strategyThresholds)
}
