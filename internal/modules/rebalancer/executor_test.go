package rebalancer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
	"github.com/aristath/portfolio-sentry/pkg/logger"
)

func newTestExecutor(t *testing.T) (*StoreExecutor, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	_, err = db.Exec(`INSERT INTO accounts (account_id, cash_balance) VALUES ('acct-1', 10000)`)
	require.NoError(t, err)

	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewStoreExecutor(db, log), db
}

func cashOf(t *testing.T, db *database.DB) float64 {
	t.Helper()
	var cash float64
	require.NoError(t, db.QueryRow(`SELECT cash_balance FROM accounts WHERE account_id = 'acct-1'`).Scan(&cash))
	return cash
}

func quantityOf(t *testing.T, db *database.DB, symbol string) float64 {
	t.Helper()
	var qty float64
	require.NoError(t, db.QueryRow(`SELECT quantity FROM positions WHERE account_id = 'acct-1' AND symbol = ?`, symbol).Scan(&qty))
	return qty
}

func buyRecord(id string, qty, price float64) domain.TradeExecutionRecord {
	return domain.TradeExecutionRecord{
		ID:            id,
		AlertID:       "alert-1",
		AccountID:     "acct-1",
		Symbol:        "VTI",
		Action:        domain.ActionAdd,
		QuantityDelta: qty,
		Price:         price,
		Mode:          domain.ModeLive,
		ExecutedAt:    time.Now(),
	}
}

func TestStoreExecutor_BuyOpensPositionAndSettlesCash(t *testing.T) {
	exec, db := newTestExecutor(t)

	err := exec.Execute(context.Background(), buyRecord("exec-1", 4, 250))

	require.NoError(t, err)
	assert.InDelta(t, 4.0, quantityOf(t, db, "VTI"), 0.0001)
	assert.InDelta(t, 9000.0, cashOf(t, db), 0.01)
}

func TestStoreExecutor_ReplayIsIdempotent(t *testing.T) {
	exec, db := newTestExecutor(t)
	record := buyRecord("exec-1", 4, 250)

	require.NoError(t, exec.Execute(context.Background(), record))
	require.NoError(t, exec.Execute(context.Background(), record))

	// The second call must not move the book again.
	assert.InDelta(t, 4.0, quantityOf(t, db, "VTI"), 0.0001)
	assert.InDelta(t, 9000.0, cashOf(t, db), 0.01)
}

func TestStoreExecutor_SellReducesPositionAndReleasesCash(t *testing.T) {
	exec, db := newTestExecutor(t)
	_, err := db.Exec(`
		INSERT INTO positions (account_id, symbol, quantity, entry_price, current_price, strategy_tag, opened_at, last_updated)
		VALUES ('acct-1', 'AAPL', 10, 100, 120, '', ?, ?)`, time.Now(), time.Now())
	require.NoError(t, err)

	record := buyRecord("exec-2", -5, 120)
	record.Symbol = "AAPL"
	record.Action = domain.ActionReduce

	require.NoError(t, exec.Execute(context.Background(), record))
	assert.InDelta(t, 5.0, quantityOf(t, db, "AAPL"), 0.0001)
	assert.InDelta(t, 10600.0, cashOf(t, db), 0.01)
}

func TestStoreExecutor_FullExitClosesPosition(t *testing.T) {
	exec, db := newTestExecutor(t)
	_, err := db.Exec(`
		INSERT INTO positions (account_id, symbol, quantity, entry_price, current_price, strategy_tag, opened_at, last_updated)
		VALUES ('acct-1', 'AAPL', 10, 100, 120, '', ?, ?)`, time.Now(), time.Now())
	require.NoError(t, err)

	record := buyRecord("exec-4", -10, 120)
	record.Symbol = "AAPL"
	record.Action = domain.ActionExit

	require.NoError(t, exec.Execute(context.Background(), record))

	// The row is gone, not parked at quantity zero.
	var rows int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(1) FROM positions WHERE account_id = 'acct-1' AND symbol = 'AAPL'`).Scan(&rows))
	assert.Equal(t, 0, rows)
	assert.InDelta(t, 11200.0, cashOf(t, db), 0.01)
}

func TestStoreExecutor_SellUnknownSymbolFails(t *testing.T) {
	exec, db := newTestExecutor(t)

	record := buyRecord("exec-3", -5, 120)
	record.Symbol = "GHOST"
	record.Action = domain.ActionExit

	err := exec.Execute(context.Background(), record)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	// The transaction rolled back: no order, cash untouched.
	var orders int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM orders`).Scan(&orders))
	assert.Equal(t, 0, orders)
	assert.InDelta(t, 10000.0, cashOf(t, db), 0.01)
}
