package rebalancer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/config"
	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/internal/events"
)

// Gate rejection reasons, in the order the gates are checked.
const (
	ReasonDailyLimit       = "daily_limit"
	ReasonCooldown         = "cooldown"
	ReasonMaxPositionDelta = "max_position_delta"
	ReasonInsufficientCash = "insufficient_cash"
	ReasonMinTradeValue    = "min_trade_value"
)

// PositionStore is the book view the rebalancer sizes trades against.
type PositionStore interface {
	GetBySymbol(accountID, symbol string) (*domain.Position, error)
	GetByAccount(accountID string) ([]domain.Position, error)
	GetCashBalance(accountID string) (float64, error)
}

// Notifier delivers trade notifications. Delivery is best-effort and never
// blocks or fails an execution.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// DailyStats summarizes one account's rebalancer activity for the current
// day.
type DailyStats struct {
	AccountID       string               `json:"account_id"`
	Date            string               `json:"date"`
	TradesToday     int                  `json:"trades_today"`
	TradesRemaining int                  `json:"trades_remaining"`
	Mode            domain.ExecutionMode `json:"mode"`
	Enabled         bool                 `json:"enabled"`
}

// accountState tracks per-account counters and the account's execution
// mode. Guarded by its own mutex so accounts rebalance independently;
// within an account, trades are strictly serial.
type accountState struct {
	mu          sync.Mutex
	day         string
	tradesToday int
	lastTrade   map[string]time.Time
	mode        domain.ExecutionMode
}

// Rebalancer turns actionable alerts into sized, gated trade attempts.
// Every attempt produces exactly one audit record regardless of outcome.
type Rebalancer struct {
	cfg       config.RebalancerConfig
	positions PositionStore
	audit     *AuditRepository
	executor  OrderExecutor
	events    *events.Manager
	notifier  Notifier
	log       zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*accountState
	now      func() time.Time
}

// New creates a rebalancer. The notifier may be nil.
func New(cfg config.RebalancerConfig, positions PositionStore, audit *AuditRepository, executor OrderExecutor, eventManager *events.Manager, notifier Notifier, log zerolog.Logger) *Rebalancer {
	return &Rebalancer{
		cfg:       cfg,
		positions: positions,
		audit:     audit,
		executor:  executor,
		events:    eventManager,
		notifier:  notifier,
		log:       log.With().Str("service", "rebalancer").Logger(),
		accounts:  make(map[string]*accountState),
		now:       time.Now,
	}
}

// Mode returns the account's current execution mode.
func (r *Rebalancer) Mode(accountID string) domain.ExecutionMode {
	state := r.stateFor(accountID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.mode
}

// DefaultMode returns the mode newly seen accounts start in.
func (r *Rebalancer) DefaultMode() domain.ExecutionMode {
	return r.cfg.Mode
}

// Modes returns the execution mode of every known account.
func (r *Rebalancer) Modes() map[string]domain.ExecutionMode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.ExecutionMode, len(r.accounts))
	for id, state := range r.accounts {
		state.mu.Lock()
		out[id] = state.mode
		state.mu.Unlock()
	}
	return out
}

// SetMode switches one account between dry-run and live execution at
// runtime. Other accounts keep their own mode.
func (r *Rebalancer) SetMode(accountID string, mode domain.ExecutionMode) {
	state := r.stateFor(accountID)
	state.mu.Lock()
	prev := state.mode
	state.mode = mode
	state.mu.Unlock()

	if prev != mode {
		r.log.Info().
			Str("account_id", accountID).
			Str("from", string(prev)).
			Str("to", string(mode)).
			Msg("Execution mode changed")
		r.events.Emit(events.ModeChanged, "rebalancer", map[string]interface{}{
			"account_id": accountID,
			"from":       string(prev),
			"to":         string(mode),
		})
	}
}

// Stats returns the account's counters for the current day.
func (r *Rebalancer) Stats(accountID string) DailyStats {
	state := r.stateFor(accountID)
	state.mu.Lock()
	defer state.mu.Unlock()
	r.rollDay(state)

	remaining := r.cfg.MaxTradesPerDay - state.tradesToday
	if remaining < 0 {
		remaining = 0
	}
	return DailyStats{
		AccountID:       accountID,
		Date:            state.day,
		TradesToday:     state.tradesToday,
		TradesRemaining: remaining,
		Mode:            state.mode,
		Enabled:         r.cfg.Enabled,
	}
}

// ResetDaily zeroes all per-day counters. The scheduler calls this at
// midnight; OnAlert also rolls the day lazily in case the job is missed.
func (r *Rebalancer) ResetDaily() {
	r.mu.Lock()
	states := make([]*accountState, 0, len(r.accounts))
	for _, s := range r.accounts {
		states = append(states, s)
	}
	r.mu.Unlock()

	for _, state := range states {
		state.mu.Lock()
		state.day = r.now().Format("2006-01-02")
		state.tradesToday = 0
		state.mu.Unlock()
	}

	r.events.Emit(events.CountersReset, "rebalancer", map[string]interface{}{"accounts": len(states)})
	r.log.Info().Int("accounts", len(states)).Msg("Daily trade counters reset")
}

// OnAlert evaluates one alert. Alerts below the configured urgency floor
// are skipped without a record; everything else produces exactly one audit
// record. A nil record with a nil error means the alert was skipped. A
// gate rejection returns the record together with ErrSafetyLimitExceeded.
func (r *Rebalancer) OnAlert(ctx context.Context, alert domain.Alert) (*domain.TradeExecutionRecord, error) {
	if !r.cfg.Enabled || alert.Symbol == "" {
		return nil, nil
	}
	if !r.actsOn(alert.Urgency) {
		return nil, nil
	}

	action := actionFor(alert)
	if action == domain.ActionHold {
		return nil, nil
	}

	state := r.stateFor(alert.AccountID)
	state.mu.Lock()
	defer state.mu.Unlock()
	r.rollDay(state)

	record := domain.TradeExecutionRecord{
		ID:         uuid.New().String(),
		AlertID:    alert.ID,
		AccountID:  alert.AccountID,
		Symbol:     alert.Symbol,
		Action:     action,
		Mode:       state.mode,
		Reason:     alert.Message,
		ExecutedAt: r.now(),
	}

	// Safety gates run in a fixed order; the first violation rejects.
	if state.tradesToday >= r.cfg.MaxTradesPerDay {
		return r.reject(ctx, record, ReasonDailyLimit)
	}
	if last, ok := state.lastTrade[alert.Symbol]; ok && r.now().Sub(last) < r.cfg.Cooldown {
		return r.reject(ctx, record, ReasonCooldown)
	}

	sized, reason, err := r.size(record, alert)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return r.reject(ctx, sized, reason)
	}
	record = sized

	// Execute. Dry-run records are identical to live ones except that no
	// order is placed.
	if record.Mode == domain.ModeLive {
		if err := r.executor.Execute(ctx, record); err != nil {
			record.Outcome = domain.OutcomeFailed
			record.RejectionReason = err.Error()
			r.persist(record)
			r.events.Emit(events.TradeFailed, "rebalancer", map[string]interface{}{
				"execution_id": record.ID,
				"symbol":       record.Symbol,
				"error":        err.Error(),
			})
			r.notify(ctx, record)
			return &record, fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
		}
	}

	record.Outcome = domain.OutcomeSuccess
	state.tradesToday++
	state.lastTrade[alert.Symbol] = r.now()
	r.persist(record)
	r.events.Emit(events.TradeExecuted, "rebalancer", map[string]interface{}{
		"execution_id":   record.ID,
		"symbol":         record.Symbol,
		"action":         string(record.Action),
		"mode":           string(record.Mode),
		"quantity_delta": record.QuantityDelta,
	})
	r.notify(ctx, record)

	r.log.Info().
		Str("account_id", record.AccountID).
		Str("symbol", record.Symbol).
		Str("action", string(record.Action)).
		Str("mode", string(record.Mode)).
		Float64("quantity_delta", record.QuantityDelta).
		Msg("Trade executed")

	return &record, nil
}

// size fills in the quantity delta and price, running the value gates that
// depend on sizing. A non-empty reason means rejection.
func (r *Rebalancer) size(record domain.TradeExecutionRecord, alert domain.Alert) (domain.TradeExecutionRecord, string, error) {
	pos, err := r.positions.GetBySymbol(record.AccountID, record.Symbol)
	if err != nil {
		return record, "", fmt.Errorf("failed to load position: %w", err)
	}

	cash, err := r.positions.GetCashBalance(record.AccountID)
	if err != nil {
		return record, "", fmt.Errorf("failed to load cash balance: %w", err)
	}

	total, err := r.portfolioValue(record.AccountID, cash)
	if err != nil {
		return record, "", err
	}

	switch record.Action {
	case domain.ActionExit:
		if pos == nil || pos.Quantity == 0 {
			return record, "", fmt.Errorf("no position to exit for %s", record.Symbol)
		}
		record.Price = priceOf(*pos)
		record.QuantityDelta = -pos.Quantity

	case domain.ActionReduce, domain.ActionReallocate:
		if pos == nil || pos.Quantity == 0 {
			return record, "", fmt.Errorf("no position to reduce for %s", record.Symbol)
		}
		fraction := r.cfg.ReduceFraction
		if f, ok := alert.Data["fraction"]; ok && f > 0 && f <= 1 {
			fraction = f
		}
		record.Price = priceOf(*pos)
		record.QuantityDelta = -pos.Quantity * fraction

	case domain.ActionAdd:
		price := alert.Data["price"]
		if pos != nil {
			price = priceOf(*pos)
		}
		if price <= 0 {
			return record, "", fmt.Errorf("no price available to size buy for %s", record.Symbol)
		}
		value := total * r.cfg.TargetPositionPct / 100
		// Cap so the resulting position stays under the maximum share.
		held := 0.0
		if pos != nil {
			held = pos.MarketValue()
		}
		maxValue := total*r.cfg.MaxPositionPct/100 - held
		if value > maxValue {
			value = maxValue
		}
		if value > cash {
			value = cash
		}
		record.Price = price
		record.QuantityDelta = value / price

	default:
		return record, "", fmt.Errorf("unsupported action %q", record.Action)
	}

	tradeValue := math.Abs(record.QuantityDelta) * record.Price

	if total > 0 && tradeValue/total*100 > r.cfg.MaxPositionDeltaPct {
		return record, ReasonMaxPositionDelta, nil
	}
	if record.QuantityDelta > 0 && tradeValue > cash {
		return record, ReasonInsufficientCash, nil
	}
	// Exits always go through regardless of size.
	if record.Action != domain.ActionExit && tradeValue < r.cfg.MinTradeValue {
		return record, ReasonMinTradeValue, nil
	}

	return record, "", nil
}

func (r *Rebalancer) portfolioValue(accountID string, cash float64) (float64, error) {
	positions, err := r.positions.GetByAccount(accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to load positions: %w", err)
	}
	total := cash
	for _, p := range positions {
		total += p.MarketValue()
	}
	return total, nil
}

func (r *Rebalancer) reject(ctx context.Context, record domain.TradeExecutionRecord, reason string) (*domain.TradeExecutionRecord, error) {
	record.Outcome = domain.OutcomeRejected
	record.RejectionReason = reason
	r.persist(record)
	r.events.Emit(events.TradeRejected, "rebalancer", map[string]interface{}{
		"execution_id":     record.ID,
		"symbol":           record.Symbol,
		"action":           string(record.Action),
		"rejection_reason": reason,
	})
	r.notify(ctx, record)

	r.log.Info().
		Str("account_id", record.AccountID).
		Str("symbol", record.Symbol).
		Str("action", string(record.Action)).
		Str("rejection_reason", reason).
		Msg("Trade rejected by safety gate")

	return &record, fmt.Errorf("%w: %s", domain.ErrSafetyLimitExceeded, reason)
}

func (r *Rebalancer) persist(record domain.TradeExecutionRecord) {
	if err := r.audit.Insert(record); err != nil {
		r.log.Error().Err(err).Str("execution_id", record.ID).Msg("Failed to persist execution record")
	}
}

func (r *Rebalancer) notify(ctx context.Context, record domain.TradeExecutionRecord) {
	if r.notifier == nil {
		return
	}
	title := fmt.Sprintf("Trade %s (%s)", record.Outcome, record.Mode)
	message := fmt.Sprintf("%s %s %.4f @ %.2f: %s",
		record.Action, record.Symbol, math.Abs(record.QuantityDelta), record.Price, record.Reason)
	if record.RejectionReason != "" {
		message = fmt.Sprintf("%s [%s]", message, record.RejectionReason)
	}
	r.notifier.Notify(ctx, title, message)
}

func (r *Rebalancer) actsOn(urgency domain.Urgency) bool {
	switch urgency {
	case domain.UrgencyHigh:
		return true
	case domain.UrgencyMedium:
		return r.cfg.ActOnMedium
	default:
		return r.cfg.ActOnLow
	}
}

func (r *Rebalancer) stateFor(accountID string) *accountState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.accounts[accountID]
	if !ok {
		state = &accountState{
			day:       r.now().Format("2006-01-02"),
			lastTrade: make(map[string]time.Time),
			mode:      r.cfg.Mode,
		}
		r.accounts[accountID] = state
	}
	return state
}

// rollDay lazily resets counters when the calendar day changes. Caller
// holds the account lock.
func (r *Rebalancer) rollDay(state *accountState) {
	today := r.now().Format("2006-01-02")
	if state.day != today {
		state.day = today
		state.tradesToday = 0
	}
}

// actionFor maps alert types onto trade actions. Opportunity alerts buy;
// everything else de-risks.
func actionFor(alert domain.Alert) domain.Action {
	switch alert.Type {
	case domain.AlertStopLoss:
		return domain.ActionExit
	case domain.AlertRisk, domain.AlertTakeProfit, domain.AlertConcentration:
		return domain.ActionReduce
	case domain.AlertOpportunity:
		return domain.ActionAdd
	default:
		return domain.ActionHold
	}
}

func priceOf(pos domain.Position) float64 {
	if pos.CurrentPrice > 0 {
		return pos.CurrentPrice
	}
	return pos.EntryPrice
}
