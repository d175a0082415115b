package rebalancer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
)

// OrderExecutor places a real order for an approved trade. Implementations
// must be idempotent on the record ID: re-executing an already placed
// record is a no-op. Dry-run trades never reach the executor.
type OrderExecutor interface {
	Execute(ctx context.Context, record domain.TradeExecutionRecord) error
}

// StoreExecutor fills orders against the local book: it records the order,
// applies the quantity delta to the position, and settles cash, all in one
// transaction. It stands where a brokerage client would.
type StoreExecutor struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStoreExecutor creates a store-backed order executor.
func NewStoreExecutor(db *database.DB, log zerolog.Logger) *StoreExecutor {
	return &StoreExecutor{
		db:  db,
		log: log.With().Str("executor", "store").Logger(),
	}
}

// Execute fills the order. The record ID is the idempotency key: a replay
// of an already filled record returns nil without touching the book.
func (e *StoreExecutor) Execute(ctx context.Context, record domain.TradeExecutionRecord) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", domain.ErrExecutionFailed, err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow(`SELECT COUNT(1) FROM orders WHERE execution_id = ?`, record.ID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("%w: idempotency check failed: %v", domain.ErrExecutionFailed, err)
	}
	if existing > 0 {
		e.log.Warn().Str("execution_id", record.ID).Msg("Order already filled, skipping replay")
		return nil
	}

	side := "buy"
	if record.QuantityDelta < 0 {
		side = "sell"
	}

	if _, err := tx.Exec(`
		INSERT INTO orders (execution_id, account_id, symbol, side, quantity, price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'filled', ?)`,
		record.ID, record.AccountID, record.Symbol, side,
		math.Abs(record.QuantityDelta), record.Price, time.Now()); err != nil {
		return fmt.Errorf("%w: failed to record order: %v", domain.ErrExecutionFailed, err)
	}

	if err := e.applyDelta(tx, record); err != nil {
		return err
	}

	// Settle cash: buys consume it, sells release it.
	if _, err := tx.Exec(`
		UPDATE accounts SET cash_balance = cash_balance - ?
		WHERE account_id = ?`,
		record.QuantityDelta*record.Price, record.AccountID); err != nil {
		return fmt.Errorf("%w: failed to settle cash: %v", domain.ErrExecutionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit order: %v", domain.ErrExecutionFailed, err)
	}

	e.log.Info().
		Str("execution_id", record.ID).
		Str("symbol", record.Symbol).
		Str("side", side).
		Float64("quantity", math.Abs(record.QuantityDelta)).
		Float64("price", record.Price).
		Msg("Order filled")

	return nil
}

func (e *StoreExecutor) applyDelta(tx *sql.Tx, record domain.TradeExecutionRecord) error {
	res, err := tx.Exec(`
		UPDATE positions SET quantity = quantity + ?, last_updated = ?
		WHERE account_id = ? AND symbol = ?`,
		record.QuantityDelta, time.Now(), record.AccountID, record.Symbol)
	if err != nil {
		return fmt.Errorf("%w: failed to apply position delta: %v", domain.ErrExecutionFailed, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to apply position delta: %v", domain.ErrExecutionFailed, err)
	}

	// A buy into a symbol the account does not hold opens a position.
	if affected == 0 {
		if record.QuantityDelta <= 0 {
			return fmt.Errorf("%w: no position to sell for %s", domain.ErrExecutionFailed, record.Symbol)
		}
		if _, err := tx.Exec(`
			INSERT INTO positions (account_id, symbol, quantity, entry_price, current_price, strategy_tag, opened_at, last_updated)
			VALUES (?, ?, ?, ?, ?, '', ?, ?)`,
			record.AccountID, record.Symbol, record.QuantityDelta,
			record.Price, record.Price, time.Now(), time.Now()); err != nil {
			return fmt.Errorf("%w: failed to open position: %v", domain.ErrExecutionFailed, err)
		}
		return nil
	}

	// A full exit closes the position instead of leaving a zero-quantity
	// row behind.
	if _, err := tx.Exec(`
		DELETE FROM positions
		WHERE account_id = ? AND symbol = ? AND ABS(quantity) < 1e-9`,
		record.AccountID, record.Symbol); err != nil {
		return fmt.Errorf("%w: failed to close position: %v", domain.ErrExecutionFailed, err)
	}

	return nil
}
