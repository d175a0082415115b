package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/internal/events"
	"github.com/aristath/portfolio-sentry/pkg/logger"
)

type fakeOracle struct {
	quotes map[string]domain.Quote
	err    error
	stale  map[string]bool
}

func (f *fakeOracle) GetPrices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func (f *fakeOracle) IsStale(q domain.Quote) bool {
	return f.stale[q.Symbol]
}

type fakeBook struct {
	mu        sync.Mutex
	positions []domain.Position
	cash      float64
	posErr    error
	updates   map[string]float64
}

func (f *fakeBook) GetByAccount(accountID string) ([]domain.Position, error) {
	if f.posErr != nil {
		return nil, f.posErr
	}
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeBook) GetCashBalance(accountID string) (float64, error) {
	return f.cash, nil
}

func (f *fakeBook) UpdatePrice(accountID, symbol string, price float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[string]float64)
	}
	f.updates[symbol] = price
	return nil
}

type fakeAlertSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (f *fakeAlertSink) Insert(alert domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlertSink) all() []domain.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

type fakeSnapshotSink struct {
	mu    sync.Mutex
	snaps []domain.PortfolioSnapshot
}

func (f *fakeSnapshotSink) Insert(snapshot domain.PortfolioSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snapshot)
	return nil
}

func (f *fakeSnapshotSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snaps)
}

func testMonitorConfig() Config {
	return Config{
		Interval:          time.Hour,
		QuoteTimeout:      time.Second,
		SuppressionWindow: 30 * time.Minute,
		IdleCashPct:       30.0,
		IdleCashDwell:     10 * time.Minute,
	}
}

func newTestMonitor(cfg Config, book *fakeBook, oracle *fakeOracle, alerts *fakeAlertSink, snaps *fakeSnapshotSink, onAlert func(domain.Alert)) *Monitor {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewMonitor("acct-1", cfg, book, oracle, alerts, snaps, events.NewManager(log), onAlert, nil, log)
}

func holding(symbol string, qty, entry, current float64) domain.Position {
	return domain.Position{
		AccountID:    "acct-1",
		Symbol:       symbol,
		Quantity:     qty,
		EntryPrice:   entry,
		CurrentPrice: current,
	}
}

func TestRunCycle_RefreshesPricesAndPersistsSnapshot(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 100, 100)}, cash: 8800}
	oracle := &fakeOracle{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 120, Timestamp: time.Now()},
	}}
	alerts := &fakeAlertSink{}
	snaps := &fakeSnapshotSink{}
	m := newTestMonitor(testMonitorConfig(), book, oracle, alerts, snaps, nil)

	m.runCycle(context.Background())

	require.Equal(t, 1, snaps.count())
	last := m.Last()
	require.NotNil(t, last)
	assert.InDelta(t, 10000.0, last.TotalValue, 0.01)
	assert.False(t, last.Stale)

	// Refreshed prices are written back to the book.
	assert.InDelta(t, 120.0, book.updates["AAPL"], 0.0001)
}

func TestRunCycle_CriticalLossEmitsStopLossAlert(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 150, 150)}, cash: 5000}
	oracle := &fakeOracle{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 120, Timestamp: time.Now()},
	}}
	alerts := &fakeAlertSink{}
	var delivered []domain.Alert
	m := newTestMonitor(testMonitorConfig(), book, oracle, alerts, &fakeSnapshotSink{}, func(a domain.Alert) {
		delivered = append(delivered, a)
	})

	m.runCycle(context.Background())

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertStopLoss, got[0].Type)
	assert.Equal(t, domain.UrgencyHigh, got[0].Urgency)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.InDelta(t, -20.0, got[0].Data["pnl_pct"], 0.01)

	// The consumer callback sees the same alert.
	require.Len(t, delivered, 1)
	assert.Equal(t, got[0].ID, delivered[0].ID)
}

func TestRunCycle_RepeatAlertsAreSuppressed(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 150, 150)}, cash: 5000}
	oracle := &fakeOracle{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 120, Timestamp: time.Now()},
	}}
	alerts := &fakeAlertSink{}
	m := newTestMonitor(testMonitorConfig(), book, oracle, alerts, &fakeSnapshotSink{}, nil)

	m.runCycle(context.Background())
	m.runCycle(context.Background())
	m.runCycle(context.Background())

	// Same symbol and type inside the window: one persisted alert.
	assert.Len(t, alerts.all(), 1)
}

func TestRunCycle_SkipsWhenNoPricesAndNoPriorSnapshot(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 100, 0)}, cash: 1000}
	oracle := &fakeOracle{err: domain.ErrDataUnavailable}
	snaps := &fakeSnapshotSink{}
	m := newTestMonitor(testMonitorConfig(), book, oracle, &fakeAlertSink{}, snaps, nil)

	m.runCycle(context.Background())

	assert.Equal(t, 0, snaps.count())
	assert.Nil(t, m.Last())
}

func TestRunCycle_StalePricesDegradeToLastSnapshot(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 100, 100)}, cash: 8800}
	oracle := &fakeOracle{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 120, Timestamp: time.Now()},
	}}
	snaps := &fakeSnapshotSink{}
	m := newTestMonitor(testMonitorConfig(), book, oracle, &fakeAlertSink{}, snaps, nil)

	m.runCycle(context.Background())
	require.NotNil(t, m.Last())
	require.False(t, m.Last().Stale)

	// Oracle goes dark: the cycle still completes on cached prices, marked
	// stale.
	oracle.err = errors.New("quote feed down")
	book.positions[0].CurrentPrice = 120
	m.runCycle(context.Background())

	assert.Equal(t, 2, snaps.count())
	assert.True(t, m.Last().Stale)
	require.Len(t, m.Last().Positions, 1)
	assert.True(t, m.Last().Positions[0].Stale)
}

func TestRunCycle_SkipsWhenPositionsUnavailable(t *testing.T) {
	book := &fakeBook{posErr: errors.New("db locked")}
	snaps := &fakeSnapshotSink{}
	m := newTestMonitor(testMonitorConfig(), book, &fakeOracle{}, &fakeAlertSink{}, snaps, nil)

	m.runCycle(context.Background())

	assert.Equal(t, 0, snaps.count())
	assert.Nil(t, m.Last())
}

func TestRunCycle_AlertConsumerPanicIsIsolated(t *testing.T) {
	book := &fakeBook{positions: []domain.Position{holding("AAPL", 10, 150, 150)}, cash: 5000}
	oracle := &fakeOracle{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 120, Timestamp: time.Now()},
	}}
	snaps := &fakeSnapshotSink{}
	m := newTestMonitor(testMonitorConfig(), book, oracle, &fakeAlertSink{}, snaps, func(domain.Alert) {
		panic("consumer bug")
	})

	assert.NotPanics(t, func() { m.runCycle(context.Background()) })
	assert.Equal(t, 1, snaps.count())
}

func TestRunCycle_IdleCashAlertWaitsForDwell(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.IdleCashDwell = 0
	book := &fakeBook{cash: 10000}
	alerts := &fakeAlertSink{}
	m := newTestMonitor(cfg, book, &fakeOracle{}, alerts, &fakeSnapshotSink{}, nil)

	// First sighting only starts the dwell clock.
	m.runCycle(context.Background())
	assert.Empty(t, alerts.all())

	m.runCycle(context.Background())
	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AlertOpportunity, got[0].Type)
	assert.Equal(t, domain.UrgencyLow, got[0].Urgency)
	assert.InDelta(t, 100.0, got[0].Data["cash_pct"], 0.01)
}

func TestStartAndStop_Lifecycle(t *testing.T) {
	book := &fakeBook{cash: 1000}
	m := newTestMonitor(testMonitorConfig(), book, &fakeOracle{}, &fakeAlertSink{}, &fakeSnapshotSink{}, nil)

	require.Equal(t, StateIdle, m.State())
	require.NoError(t, m.Start())
	assert.Equal(t, StateRunning, m.State())

	// Starting twice is an error.
	assert.ErrorIs(t, m.Start(), domain.ErrAlreadyRunning)

	m.Stop()
	assert.Equal(t, StateIdle, m.State())

	// Stopping an idle monitor is a no-op; it can then restart.
	m.Stop()
	require.NoError(t, m.Start())
	m.Stop()
}

func TestSuppressor_WindowExpires(t *testing.T) {
	s := newSuppressor(10 * time.Minute)
	clock := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	alert := domain.Alert{AccountID: "acct-1", Symbol: "AAPL", Type: domain.AlertRisk}

	assert.True(t, s.allow(alert))
	assert.False(t, s.allow(alert))

	// Different type or account is a different fingerprint.
	assert.True(t, s.allow(domain.Alert{AccountID: "acct-1", Symbol: "AAPL", Type: domain.AlertStopLoss}))
	assert.True(t, s.allow(domain.Alert{AccountID: "acct-2", Symbol: "AAPL", Type: domain.AlertRisk}))

	clock = clock.Add(11 * time.Minute)
	assert.True(t, s.allow(alert))
}
