package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Repository persists monitor alerts. Alerts are append-only.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new alerts repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Insert stores one alert.
func (r *Repository) Insert(alert domain.Alert) error {
	var data []byte
	if alert.Data != nil {
		var err error
		data, err = json.Marshal(alert.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal alert data: %w", err)
		}
	}

	_, err := r.db.Exec(`
		INSERT INTO alerts (id, account_id, type, urgency, symbol, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.AccountID, string(alert.Type), alert.Urgency.String(),
		alert.Symbol, alert.Message, string(data), alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// RecentSince returns an account's alerts created at or after the cutoff,
// newest first.
func (r *Repository) RecentSince(accountID string, since time.Time) ([]domain.Alert, error) {
	rows, err := r.db.Query(`
		SELECT id, account_id, type, urgency, symbol, message, data, created_at
		FROM alerts
		WHERE account_id = ? AND created_at >= ?
		ORDER BY created_at DESC`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var (
			alert     domain.Alert
			alertType string
			urgency   string
			rawData   []byte
		)
		if err := rows.Scan(
			&alert.ID, &alert.AccountID, &alertType, &urgency,
			&alert.Symbol, &alert.Message, &rawData, &alert.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alert.Type = domain.AlertType(alertType)
		alert.Urgency = parseUrgency(urgency)
		if len(rawData) > 0 {
			if err := json.Unmarshal(rawData, &alert.Data); err != nil {
				r.log.Warn().Err(err).Str("alert_id", alert.ID).Msg("Failed to decode alert data")
			}
		}

		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return alerts, nil
}

func parseUrgency(s string) domain.Urgency {
	switch s {
	case "high":
		return domain.UrgencyHigh
	case "medium":
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}
