package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Repository handles position and account cash database operations.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new positions repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// GetByAccount returns all open positions for an account.
func (r *Repository) GetByAccount(accountID string) ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, symbol, quantity, entry_price, current_price, strategy_tag, opened_at, last_updated
		FROM positions
		WHERE account_id = ? AND quantity != 0
		ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetBySymbol returns one position, or nil if the account does not hold it.
func (r *Repository) GetBySymbol(accountID, symbol string) (*domain.Position, error) {
	row := r.db.QueryRow(`
		SELECT id, account_id, symbol, quantity, entry_price, current_price, strategy_tag, opened_at, last_updated
		FROM positions
		WHERE account_id = ? AND symbol = ?`, accountID, symbol)

	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}

	return &pos, nil
}

// UpdatePrice refreshes a position's cached market price. The monitor is
// the only writer of this field.
func (r *Repository) UpdatePrice(accountID, symbol string, price float64, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE positions SET current_price = ?, last_updated = ?
		WHERE account_id = ? AND symbol = ?`,
		price, at, accountID, symbol)
	if err != nil {
		return fmt.Errorf("failed to update price for %s: %w", symbol, err)
	}
	return nil
}

// GetCashBalance returns the account's available cash. A missing account
// row reads as zero cash.
func (r *Repository) GetCashBalance(accountID string) (float64, error) {
	var cash float64
	err := r.db.QueryRow(
		`SELECT cash_balance FROM accounts WHERE account_id = ?`, accountID,
	).Scan(&cash)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query cash balance: %w", err)
	}
	return cash, nil
}

// ListAccounts returns the IDs of all active accounts.
func (r *Repository) ListAccounts() ([]string, error) {
	rows, err := r.db.Query(`SELECT account_id FROM accounts WHERE active = 1 ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return ids, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (domain.Position, error) {
	var pos domain.Position
	err := s.Scan(
		&pos.ID,
		&pos.AccountID,
		&pos.Symbol,
		&pos.Quantity,
		&pos.EntryPrice,
		&pos.CurrentPrice,
		&pos.StrategyTag,
		&pos.OpenedAt,
		&pos.LastUpdated,
	)
	return pos, err
}
