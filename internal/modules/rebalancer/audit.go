package rebalancer

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
)

// AuditRepository persists the append-only trade execution trail. Every
// attempt is recorded, including rejections; records are never updated.
type AuditRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// Insert appends one execution record.
func (r *AuditRepository) Insert(record domain.TradeExecutionRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO trade_executions
			(id, alert_id, account_id, symbol, action, quantity_delta, price, mode, outcome, rejection_reason, reason, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.AlertID, record.AccountID, record.Symbol,
		string(record.Action), record.QuantityDelta, record.Price,
		string(record.Mode), string(record.Outcome),
		record.RejectionReason, record.Reason, record.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// ListByAccount returns an account's most recent execution records.
func (r *AuditRepository) ListByAccount(accountID string, limit int) ([]domain.TradeExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, alert_id, account_id, symbol, action, quantity_delta, price, mode, outcome, rejection_reason, reason, executed_at
		FROM trade_executions
		WHERE account_id = ?
		ORDER BY executed_at DESC
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListSince returns all execution records from the cutoff onward, oldest
// first. Used by the off-site backup job.
func (r *AuditRepository) ListSince(since time.Time) ([]domain.TradeExecutionRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, alert_id, account_id, symbol, action, quantity_delta, price, mode, outcome, rejection_reason, reason, executed_at
		FROM trade_executions
		WHERE executed_at >= ?
		ORDER BY executed_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]domain.TradeExecutionRecord, error) {
	var records []domain.TradeExecutionRecord
	for rows.Next() {
		var (
			rec     domain.TradeExecutionRecord
			action  string
			mode    string
			outcome string
		)
		if err := rows.Scan(
			&rec.ID, &rec.AlertID, &rec.AccountID, &rec.Symbol,
			&action, &rec.QuantityDelta, &rec.Price,
			&mode, &outcome, &rec.RejectionReason, &rec.Reason, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		rec.Action = domain.Action(action)
		rec.Mode = domain.ExecutionMode(mode)
		rec.Outcome = domain.Outcome(outcome)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution records: %w", err)
	}

	return records, nil
}
