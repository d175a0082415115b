package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/internal/events"
	"github.com/aristath/portfolio-sentry/internal/modules/alerts"
	"github.com/aristath/portfolio-sentry/internal/modules/debate"
	"github.com/aristath/portfolio-sentry/internal/modules/marketdata"
	"github.com/aristath/portfolio-sentry/internal/modules/rebalancer"
	"github.com/aristath/portfolio-sentry/internal/modules/risk"
	"github.com/aristath/portfolio-sentry/internal/modules/snapshots"
)

// Service is the account-facing facade: it owns one Monitor per account
// and wires alerts through to the rebalancer and any stream subscribers.
type Service struct {
	cfg          Config
	positions    PositionSource
	oracle       PriceOracle
	alertRepo    *alerts.Repository
	snapshotRepo *snapshots.Repository
	synthesizer  *debate.Synthesizer
	market       *marketdata.Service
	rebalancer   *rebalancer.Rebalancer
	events       *events.Manager
	log          zerolog.Logger

	mu          sync.Mutex
	monitors    map[string]*Monitor
	streamAlert func(domain.Alert)
	streamSnap  func(domain.PortfolioSnapshot)
}

// NewService creates the monitoring service.
func NewService(
	cfg Config,
	positions PositionSource,
	oracle PriceOracle,
	alertRepo *alerts.Repository,
	snapshotRepo *snapshots.Repository,
	synthesizer *debate.Synthesizer,
	market *marketdata.Service,
	reb *rebalancer.Rebalancer,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:          cfg,
		positions:    positions,
		oracle:       oracle,
		alertRepo:    alertRepo,
		snapshotRepo: snapshotRepo,
		synthesizer:  synthesizer,
		market:       market,
		rebalancer:   reb,
		events:       eventManager,
		log:          log.With().Str("service", "monitor_registry").Logger(),
		monitors:     make(map[string]*Monitor),
	}
}

// SetStreamHandlers registers the live stream callbacks. Must be called
// before any monitor starts.
func (s *Service) SetStreamHandlers(onAlert func(domain.Alert), onSnapshot func(domain.PortfolioSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamAlert = onAlert
	s.streamSnap = onSnapshot
}

// StartMonitor begins continuous monitoring for an account. A positive
// interval overrides the configured default for this account.
func (s *Service) StartMonitor(accountID string, interval time.Duration) error {
	m := s.monitorFor(accountID)
	m.SetInterval(interval)
	return m.Start()
}

// StopMonitor halts monitoring for an account. Stopping an account that
// was never started is a no-op.
func (s *Service) StopMonitor(accountID string) {
	s.mu.Lock()
	m, ok := s.monitors[accountID]
	s.mu.Unlock()
	if ok {
		m.Stop()
	}
}

// StopAll halts every running monitor. Used during shutdown.
func (s *Service) StopAll() {
	s.mu.Lock()
	monitors := make([]*Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		monitors = append(monitors, m)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

// MonitorState returns an account's monitor lifecycle state.
func (s *Service) MonitorState(accountID string) State {
	s.mu.Lock()
	m, ok := s.monitors[accountID]
	s.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return m.State()
}

// GetSnapshot returns the account's latest snapshot. If the monitor is not
// running, or the snapshot has outlived two monitoring intervals, it is
// marked stale. An account with no snapshot at all returns
// ErrNotInitialized.
func (s *Service) GetSnapshot(accountID string) (*domain.PortfolioSnapshot, error) {
	s.mu.Lock()
	m, ok := s.monitors[accountID]
	s.mu.Unlock()

	var snapshot *domain.PortfolioSnapshot
	if ok {
		snapshot = m.Last()
	}
	if snapshot == nil {
		stored, err := s.snapshotRepo.Latest(accountID)
		if err != nil {
			return nil, err
		}
		snapshot = stored
	}
	if snapshot == nil {
		return nil, fmt.Errorf("%w: no snapshot for account %s", domain.ErrNotInitialized, accountID)
	}

	copied := *snapshot
	if !ok || m.State() != StateRunning || time.Since(copied.CreatedAt) > 2*s.cfg.Interval {
		copied.Stale = true
	}

	return &copied, nil
}

// GetRecentAlerts returns the account's alerts within the lookback window.
func (s *Service) GetRecentAlerts(accountID string, lookback time.Duration) ([]domain.Alert, error) {
	return s.alertRepo.RecentSince(accountID, time.Now().Add(-lookback))
}

// GetReallocationSuggestions pairs the latest snapshot's reductions with
// opportunity candidates.
func (s *Service) GetReallocationSuggestions(accountID string, opportunities []domain.Opportunity) ([]domain.ReallocationSuggestion, error) {
	snapshot, err := s.GetSnapshot(accountID)
	if err != nil {
		return nil, err
	}
	return risk.ReallocationSuggestions(*snapshot, opportunities), nil
}

// DebatePosition runs the three-way stance debate for one held position.
func (s *Service) DebatePosition(ctx context.Context, accountID, symbol string) (domain.JudgedDecision, error) {
	snapshot, err := s.GetSnapshot(accountID)
	if err != nil {
		return domain.JudgedDecision{}, err
	}

	var assessment *domain.PositionAssessment
	for i := range snapshot.Positions {
		if snapshot.Positions[i].Symbol == symbol {
			assessment = &snapshot.Positions[i]
			break
		}
	}
	if assessment == nil {
		return domain.JudgedDecision{}, fmt.Errorf("%w: account %s holds no position in %s", domain.ErrDataUnavailable, accountID, symbol)
	}

	market := s.market.BuildContext(ctx, symbol)
	decision := s.synthesizer.Debate(ctx, *assessment, market)

	eventType := events.DebateCompleted
	if decision.Degraded {
		eventType = events.DebateDegraded
	}
	s.events.Emit(eventType, "debate", map[string]interface{}{
		"account_id":   accountID,
		"symbol":       symbol,
		"final_action": string(decision.FinalAction),
		"confidence":   decision.Confidence,
	})

	return decision, nil
}

// monitorFor returns the account's monitor, creating it on first use.
func (s *Service) monitorFor(accountID string) *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.monitors[accountID]; ok {
		return m
	}

	m := NewMonitor(
		accountID,
		s.cfg,
		s.positions,
		s.oracle,
		s.alertRepo,
		s.snapshotRepo,
		s.events,
		s.handleAlert,
		s.handleSnapshot,
		s.log,
	)
	s.monitors[accountID] = m
	return m
}

// handleAlert forwards alerts to the rebalancer and the live stream. A
// failed execution is surfaced as a fresh risk alert so it shows up in the
// account's alert feed.
func (s *Service) handleAlert(alert domain.Alert) {
	if s.rebalancer != nil {
		if _, err := s.rebalancer.OnAlert(context.Background(), alert); err != nil {
			// Gate rejections are expected outcomes, already audited and
			// notified by the rebalancer.
			if errors.Is(err, domain.ErrSafetyLimitExceeded) {
				s.log.Debug().Err(err).Str("alert_id", alert.ID).Msg("Trade rejected by safety gate")
			} else {
				s.log.Error().Err(err).Str("alert_id", alert.ID).Msg("Rebalancer execution failed")
				s.recordExecutionFailure(alert, err)
			}
		}
	}

	s.mu.Lock()
	stream := s.streamAlert
	s.mu.Unlock()
	if stream != nil {
		stream(alert)
	}
}

func (s *Service) handleSnapshot(snapshot domain.PortfolioSnapshot) {
	s.mu.Lock()
	stream := s.streamSnap
	s.mu.Unlock()
	if stream != nil {
		stream(snapshot)
	}
}

func (s *Service) recordExecutionFailure(cause domain.Alert, execErr error) {
	failure := domain.Alert{
		ID:        uuid.New().String(),
		AccountID: cause.AccountID,
		Type:      domain.AlertRisk,
		Urgency:   domain.UrgencyHigh,
		Symbol:    cause.Symbol,
		Message:   fmt.Sprintf("Automatic trade for %s failed: %v", cause.Symbol, execErr),
		CreatedAt: time.Now(),
	}
	if err := s.alertRepo.Insert(failure); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist execution failure alert")
	}
}
