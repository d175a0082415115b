package domain

import "time"

// RiskLevel is an ordered severity scale for positions and portfolios.
// Higher values are more severe; comparisons rely on the ordering.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskModerate
	RiskHigh
	RiskCritical
)

// String returns the wire representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// MarshalJSON encodes risk levels as their string names.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// MaxRiskLevel returns the more severe of two risk levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// Action is the recommended action for a position. Reallocate is
// portfolio-scoped and always pairs a source with a target symbol.
type Action string

const (
	ActionHold       Action = "hold"
	ActionReduce     Action = "reduce"
	ActionExit       Action = "exit"
	ActionAdd        Action = "add"
	ActionReallocate Action = "reallocate"
)

// ConservativeRank orders actions by capital preservation. Higher rank
// means more conservative; used as the tie-break default.
func (a Action) ConservativeRank() int {
	switch a {
	case ActionExit:
		return 4
	case ActionReduce:
		return 3
	case ActionReallocate:
		return 2
	case ActionHold:
		return 1
	case ActionAdd:
		return 0
	}
	return -1
}

// Stance is one of the three fixed analytical postures used to generate
// independent debate arguments.
type Stance string

const (
	StanceAggressive   Stance = "aggressive"
	StanceNeutral      Stance = "neutral"
	StanceConservative Stance = "conservative"
)

// AlertType categorizes monitor alerts.
type AlertType string

const (
	AlertRisk          AlertType = "risk"
	AlertStopLoss      AlertType = "stop_loss"
	AlertTakeProfit    AlertType = "take_profit"
	AlertConcentration AlertType = "concentration"
	AlertOpportunity   AlertType = "opportunity"
)

// Urgency maps alert severity for downstream consumers. Ordered.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
)

// String returns the wire representation of an urgency.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	}
	return "unknown"
}

// MarshalJSON encodes urgencies as their string names.
func (u Urgency) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// Position is an open holding. Quantity is signed: negative for shorts.
// CurrentPrice is written only by the monitor's refresh cycle.
type Position struct {
	ID           int64     `json:"id"`
	AccountID    string    `json:"account_id"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	StrategyTag  string    `json:"strategy_tag"`
	OpenedAt     time.Time `json:"opened_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

// MarketValue returns the absolute market value of the position.
func (p Position) MarketValue() float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	price := p.CurrentPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return qty * price
}

// PositionAssessment is the scored view of a single position for one
// monitoring cycle. Immutable once produced.
type PositionAssessment struct {
	Symbol           string    `json:"symbol"`
	Quantity         float64   `json:"quantity"`
	EntryPrice       float64   `json:"entry_price"`
	CurrentPrice     float64   `json:"current_price"`
	MarketValue      float64   `json:"market_value"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	UnrealizedPnLPct float64   `json:"unrealized_pnl_pct"`
	Concentration    float64   `json:"concentration_pct"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Action           Action    `json:"recommended_action"`
	Reason           string    `json:"action_reason"`
	StopLossPrice    float64   `json:"stop_loss_price"`
	TakeProfitPrice  float64   `json:"take_profit_price"`
	ReallocateFlag   bool      `json:"reallocate_flag"`
	Stale            bool      `json:"stale"`
}

// ConcentrationWarning flags a position whose value share exceeds the cap.
type ConcentrationWarning struct {
	Symbol string  `json:"symbol"`
	Pct    float64 `json:"pct"`
}

// SuggestedAction is one entry of the snapshot's prioritized action list.
type SuggestedAction struct {
	Priority  int       `json:"priority"`
	Symbol    string    `json:"symbol,omitempty"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason"`
	Value     float64   `json:"current_value"`
	PnLPct    float64   `json:"pnl_pct"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// PortfolioSnapshot is the immutable result of one monitoring cycle.
// It is never mutated after creation; the next cycle supersedes it.
type PortfolioSnapshot struct {
	AccountID             string                 `json:"account_id"`
	TotalValue            float64                `json:"total_value"`
	CashAvailable         float64                `json:"cash_available"`
	InvestedValue         float64                `json:"invested_value"`
	TotalUnrealizedPnL    float64                `json:"total_unrealized_pnl"`
	OverallRiskLevel      RiskLevel              `json:"overall_risk_level"`
	CapitalEfficiency     float64                `json:"capital_efficiency"`
	DiversificationScore  float64                `json:"diversification_score"`
	CapitalAtRisk         float64                `json:"capital_at_risk"`
	ConcentrationWarnings []ConcentrationWarning `json:"concentration_warnings"`
	Positions             []PositionAssessment   `json:"positions"`
	SuggestedActions      []SuggestedAction      `json:"suggested_actions"`
	RebalanceNeeded       bool                   `json:"rebalance_needed"`
	Stale                 bool                   `json:"stale"`
	CreatedAt             time.Time              `json:"created_at"`
}

// Alert is an immutable notification emitted by the monitor.
type Alert struct {
	ID        string             `json:"id"`
	AccountID string             `json:"account_id"`
	Type      AlertType          `json:"type"`
	Urgency   Urgency            `json:"urgency"`
	Symbol    string             `json:"symbol,omitempty"`
	Message   string             `json:"message"`
	Data      map[string]float64 `json:"data,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Fingerprint identifies an alert for dedupe purposes: the same
// symbol+type within the suppression window is not re-emitted.
func (a Alert) Fingerprint() string {
	return a.Symbol + "|" + string(a.Type)
}

// DebateArgument is one stance's evaluation of a position. The three
// arguments of a debate are always produced together.
type DebateArgument struct {
	Stance     Stance   `json:"stance"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	KeyPoints  []string `json:"key_points"`
}

// JudgedDecision is the reconciled outcome of a three-way debate.
type JudgedDecision struct {
	Symbol      string           `json:"symbol"`
	FinalAction Action           `json:"final_action"`
	Confidence  float64          `json:"confidence"`
	RiskScore   float64          `json:"risk_score"`
	Rationale   string           `json:"rationale"`
	Arguments   []DebateArgument `json:"arguments"`
	Degraded    bool             `json:"degraded"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ExecutionMode selects whether the rebalancer places real orders.
type ExecutionMode string

const (
	ModeDryRun ExecutionMode = "dry_run"
	ModeLive   ExecutionMode = "live"
)

// Outcome is the result classification of a trade attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// TradeExecutionRecord is one append-only audit entry. AlertID links the
// record to the alert that caused it; ID doubles as the idempotency key
// handed to the order executor.
type TradeExecutionRecord struct {
	ID              string        `json:"id"`
	AlertID         string        `json:"alert_id"`
	AccountID       string        `json:"account_id"`
	Symbol          string        `json:"symbol"`
	Action          Action        `json:"action"`
	QuantityDelta   float64       `json:"quantity_delta"`
	Price           float64       `json:"price"`
	Mode            ExecutionMode `json:"mode"`
	Outcome         Outcome       `json:"outcome"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	Reason          string        `json:"reason"`
	ExecutedAt      time.Time     `json:"executed_at"`
}

// ReallocationSuggestion pairs capital freed from a reduction with an
// externally supplied opportunity.
type ReallocationSuggestion struct {
	FromSymbol string  `json:"from_symbol,omitempty"`
	ToSymbol   string  `json:"to_symbol,omitempty"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
	Priority   int     `json:"priority"`
}

// Opportunity is an externally supplied buy candidate used when pairing
// reallocation suggestions. Target ranking is deliberately not inferred
// here; callers provide an ordered list.
type Opportunity struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Quote is a price observation from the price oracle.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketContext carries the technical backdrop handed to stance
// evaluations. All fields are optional; zero values mean unknown.
type MarketContext struct {
	Trend         string  `json:"trend,omitempty"`
	RSI           float64 `json:"rsi,omitempty"`
	Volatility    float64 `json:"volatility,omitempty"`
	MomentumPct   float64 `json:"momentum_pct,omitempty"`
	NewsSentiment string  `json:"news_sentiment,omitempty"`
}
