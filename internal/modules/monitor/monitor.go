package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/internal/events"
	"github.com/aristath/portfolio-sentry/internal/modules/risk"
)

// State is the monitor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// String returns the wire representation of a state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// PriceOracle supplies batched quotes and their staleness classification.
type PriceOracle interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	IsStale(q domain.Quote) bool
}

// PositionSource is the monitor's view of the position book.
type PositionSource interface {
	GetByAccount(accountID string) ([]domain.Position, error)
	GetCashBalance(accountID string) (float64, error)
	UpdatePrice(accountID, symbol string, price float64, at time.Time) error
}

// AlertSink persists emitted alerts.
type AlertSink interface {
	Insert(alert domain.Alert) error
}

// SnapshotSink persists cycle snapshots.
type SnapshotSink interface {
	Insert(snapshot domain.PortfolioSnapshot) error
}

// Config holds the per-account monitoring parameters.
type Config struct {
	Interval          time.Duration
	QuoteTimeout      time.Duration
	SuppressionWindow time.Duration
	IdleCashPct       float64
	IdleCashDwell     time.Duration
}

// Monitor runs the continuous evaluation loop for one account. The next
// cycle is scheduled from the completion of the previous one, so a slow
// cycle delays the next instead of overlapping it.
type Monitor struct {
	accountID    string
	cfg          Config
	positions    PositionSource
	oracle       PriceOracle
	alertSink    AlertSink
	snapshotSink SnapshotSink
	suppressor   *suppressor
	events       *events.Manager
	log          zerolog.Logger

	// Callbacks run outside the monitor's lock and are panic-isolated: a
	// consumer crash never kills the loop.
	onAlert  func(alert domain.Alert)
	onUpdate func(snapshot domain.PortfolioSnapshot)

	mu            sync.Mutex
	state         State
	stopCh        chan struct{}
	doneCh        chan struct{}
	last          *domain.PortfolioSnapshot
	idleCashSince time.Time
	cycleCount    int64
}

// NewMonitor creates a monitor for one account. Callbacks may be nil.
func NewMonitor(
	accountID string,
	cfg Config,
	positions PositionSource,
	oracle PriceOracle,
	alertSink AlertSink,
	snapshotSink SnapshotSink,
	eventManager *events.Manager,
	onAlert func(domain.Alert),
	onUpdate func(domain.PortfolioSnapshot),
	log zerolog.Logger,
) *Monitor {
	return &Monitor{
		accountID:    accountID,
		cfg:          cfg,
		positions:    positions,
		oracle:       oracle,
		alertSink:    alertSink,
		snapshotSink: snapshotSink,
		suppressor:   newSuppressor(cfg.SuppressionWindow),
		events:       eventManager,
		onAlert:      onAlert,
		onUpdate:     onUpdate,
		log:          log.With().Str("service", "monitor").Str("account_id", accountID).Logger(),
	}
}

// State returns the monitor's lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Last returns the most recent snapshot this monitor produced, or nil.
func (m *Monitor) Last() *domain.PortfolioSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// SetInterval changes the cycle interval. Only takes effect while the
// monitor is idle; a running loop keeps its interval until restarted.
func (m *Monitor) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		m.cfg.Interval = interval
	}
}

// Start launches the monitoring loop. The first cycle runs immediately.
// Starting a running monitor returns ErrAlreadyRunning.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	m.state = StateRunning
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.loop(stopCh, doneCh)

	m.events.Emit(events.MonitorStarted, "monitor", map[string]interface{}{"account_id": m.accountID})
	m.log.Info().Dur("interval", m.cfg.Interval).Msg("Monitor started")
	return nil
}

// Stop halts the loop, waiting for an in-flight cycle to finish. Stopping
// an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	m.events.Emit(events.MonitorStopped, "monitor", map[string]interface{}{"account_id": m.accountID})
	m.log.Info().Msg("Monitor stopped")
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		m.runCycle(context.Background())

		select {
		case <-stopCh:
			return
		case <-time.After(m.cfg.Interval):
		}
	}
}

// runCycle performs one full evaluation: refresh prices, score, aggregate,
// persist, alert. A cycle that cannot price anything and has no prior
// snapshot is skipped entirely rather than publishing a zeroed portfolio.
func (m *Monitor) runCycle(ctx context.Context) {
	start := time.Now()

	positions, err := m.positions.GetByAccount(m.accountID)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to load positions, skipping cycle")
		m.events.Emit(events.CycleSkipped, "monitor", map[string]interface{}{
			"account_id": m.accountID, "reason": "positions_unavailable",
		})
		return
	}

	cash, err := m.positions.GetCashBalance(m.accountID)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to load cash balance, skipping cycle")
		m.events.Emit(events.CycleSkipped, "monitor", map[string]interface{}{
			"account_id": m.accountID, "reason": "cash_unavailable",
		})
		return
	}

	positions, staleSet, allStale := m.refreshPrices(ctx, positions)
	if allStale && m.Last() == nil && len(positions) > 0 {
		m.log.Warn().Msg("No prices available and no prior snapshot, skipping cycle")
		m.events.Emit(events.CycleSkipped, "monitor", map[string]interface{}{
			"account_id": m.accountID, "reason": "no_price_data",
		})
		return
	}

	snapshot := m.evaluate(positions, cash, staleSet)

	if err := m.snapshotSink.Insert(snapshot); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist snapshot")
	}

	m.mu.Lock()
	m.last = &snapshot
	m.cycleCount++
	m.mu.Unlock()

	m.dispatchAlerts(snapshot)
	m.publish(snapshot)

	m.events.Emit(events.CycleCompleted, "monitor", map[string]interface{}{
		"account_id":  m.accountID,
		"positions":   len(snapshot.Positions),
		"risk_level":  snapshot.OverallRiskLevel.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// refreshPrices fetches a quote batch and updates the book. Positions whose
// quote is missing or too old keep their cached price and are flagged
// stale. The final result reports whether no position got a fresh price.
func (m *Monitor) refreshPrices(ctx context.Context, positions []domain.Position) ([]domain.Position, map[string]bool, bool) {
	staleSymbols := make(map[string]bool, len(positions))
	if len(positions) == 0 {
		return positions, staleSymbols, false
	}

	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.Symbol
	}

	quoteCtx, cancel := context.WithTimeout(ctx, m.cfg.QuoteTimeout)
	defer cancel()

	quotes, err := m.oracle.GetPrices(quoteCtx, symbols)
	if err != nil {
		m.log.Warn().Err(err).Msg("Quote batch failed, using cached prices")
		quotes = nil
	}

	anyFresh := false
	now := time.Now()

	for i, p := range positions {
		q, ok := quotes[p.Symbol]
		if !ok || m.oracle.IsStale(q) {
			staleSymbols[p.Symbol] = true
			continue
		}
		anyFresh = true
		positions[i].CurrentPrice = q.Price
		positions[i].LastUpdated = now
		if err := m.positions.UpdatePrice(m.accountID, p.Symbol, q.Price, now); err != nil {
			m.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("Failed to persist refreshed price")
		}
	}

	return positions, staleSymbols, !anyFresh
}

// evaluate scores every position and folds the results into a snapshot.
func (m *Monitor) evaluate(positions []domain.Position, cash float64, staleSet map[string]bool) domain.PortfolioSnapshot {
	total := cash
	for _, p := range positions {
		total += p.MarketValue()
	}
	pctx := risk.PortfolioContext{TotalValue: total, CashAvailable: cash}

	assessments := make([]domain.PositionAssessment, 0, len(positions))
	for _, p := range positions {
		a := risk.Score(p, pctx, risk.ThresholdsFor(p.StrategyTag))
		a.Stale = staleSet[p.Symbol]
		assessments = append(assessments, a)
	}

	aggCfg := risk.DefaultAggregatorConfig()
	aggCfg.IdleCashPct = m.cfg.IdleCashPct

	return risk.Aggregate(m.accountID, cash, assessments, time.Now(), aggCfg)
}

// dispatchAlerts derives alerts from the snapshot, filters them through
// suppression, persists survivors, and hands them to the consumer.
func (m *Monitor) dispatchAlerts(snapshot domain.PortfolioSnapshot) {
	for _, alert := range m.buildAlerts(snapshot) {
		if !m.suppressor.allow(alert) {
			m.events.Emit(events.AlertSuppressed, "monitor", map[string]interface{}{
				"account_id": m.accountID,
				"symbol":     alert.Symbol,
				"type":       string(alert.Type),
			})
			continue
		}

		if err := m.alertSink.Insert(alert); err != nil {
			m.log.Error().Err(err).Str("symbol", alert.Symbol).Msg("Failed to persist alert")
		}

		m.events.Emit(events.AlertEmitted, "monitor", map[string]interface{}{
			"account_id": m.accountID,
			"alert_id":   alert.ID,
			"symbol":     alert.Symbol,
			"type":       string(alert.Type),
			"urgency":    alert.Urgency.String(),
		})

		m.deliver(alert)
	}
}

// buildAlerts turns assessments and portfolio conditions into alerts.
func (m *Monitor) buildAlerts(snapshot domain.PortfolioSnapshot) []domain.Alert {
	now := time.Now()
	var alerts []domain.Alert

	add := func(alertType domain.AlertType, urgency domain.Urgency, symbol, message string, data map[string]float64) {
		alerts = append(alerts, domain.Alert{
			ID:        uuid.New().String(),
			AccountID: m.accountID,
			Type:      alertType,
			Urgency:   urgency,
			Symbol:    symbol,
			Message:   message,
			Data:      data,
			CreatedAt: now,
		})
	}

	for _, a := range snapshot.Positions {
		switch {
		case a.RiskLevel == domain.RiskCritical:
			add(domain.AlertStopLoss, domain.UrgencyHigh, a.Symbol, a.Reason,
				map[string]float64{"pnl_pct": a.UnrealizedPnLPct, "stop_loss_price": a.StopLossPrice})

		case a.Action == domain.ActionReduce && a.UnrealizedPnLPct > 0 && a.Concentration <= risk.DefaultThresholds().ConcentrationCapPct:
			add(domain.AlertTakeProfit, domain.UrgencyMedium, a.Symbol, a.Reason,
				map[string]float64{"pnl_pct": a.UnrealizedPnLPct, "take_profit_price": a.TakeProfitPrice})

		case a.RiskLevel == domain.RiskHigh:
			add(domain.AlertRisk, domain.UrgencyHigh, a.Symbol, a.Reason,
				map[string]float64{"pnl_pct": a.UnrealizedPnLPct})
		}
	}

	for _, w := range snapshot.ConcentrationWarnings {
		add(domain.AlertConcentration, domain.UrgencyMedium, w.Symbol,
			fmt.Sprintf("Position %s at %.1f%% of portfolio exceeds concentration cap", w.Symbol, w.Pct),
			map[string]float64{"concentration_pct": w.Pct})
	}

	if alert := m.idleCashAlert(snapshot, now); alert != nil {
		alerts = append(alerts, *alert)
	}

	return alerts
}

// idleCashAlert fires only after cash has sat above the threshold for the
// full dwell period, so a deposit does not alert immediately.
func (m *Monitor) idleCashAlert(snapshot domain.PortfolioSnapshot, now time.Time) *domain.Alert {
	cashPct := 0.0
	if snapshot.TotalValue > 0 {
		cashPct = snapshot.CashAvailable / snapshot.TotalValue * 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cashPct <= m.cfg.IdleCashPct {
		m.idleCashSince = time.Time{}
		return nil
	}
	if m.idleCashSince.IsZero() {
		m.idleCashSince = now
		return nil
	}
	if now.Sub(m.idleCashSince) < m.cfg.IdleCashDwell {
		return nil
	}

	return &domain.Alert{
		ID:        uuid.New().String(),
		AccountID: m.accountID,
		Type:      domain.AlertOpportunity,
		Urgency:   domain.UrgencyLow,
		Message:   fmt.Sprintf("Idle cash at %.1f%% of portfolio for over %s", cashPct, m.cfg.IdleCashDwell),
		Data:      map[string]float64{"cash_pct": cashPct},
		CreatedAt: now,
	}
}

// deliver hands one alert to the consumer callback, isolating panics.
func (m *Monitor) deliver(alert domain.Alert) {
	if m.onAlert == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("alert_id", alert.ID).Msg("Alert consumer panicked")
		}
	}()
	m.onAlert(alert)
}

// publish hands the snapshot to the update callback, isolating panics.
func (m *Monitor) publish(snapshot domain.PortfolioSnapshot) {
	if m.onUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("Snapshot consumer panicked")
		}
	}()
	m.onUpdate(snapshot)
}
