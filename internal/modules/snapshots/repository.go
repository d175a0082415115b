package snapshots

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/domain"
)

// Repository persists portfolio snapshots as msgpack blobs. Snapshots are
// written once per monitoring cycle and read back by the API; msgpack keeps
// the blobs small enough to retain a long history in SQLite.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert stores one snapshot.
func (r *Repository) Insert(snapshot domain.PortfolioSnapshot) error {
	blob, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO snapshots (account_id, created_at, data)
		VALUES (?, ?, ?)`,
		snapshot.AccountID, snapshot.CreatedAt, blob)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// Latest returns the account's most recent snapshot, or nil if none was
// ever recorded.
func (r *Repository) Latest(accountID string) (*domain.PortfolioSnapshot, error) {
	var blob []byte
	err := r.db.QueryRow(`
		SELECT data FROM snapshots
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, accountID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snapshot domain.PortfolioSnapshot
	if err := msgpack.Unmarshal(blob, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &snapshot, nil
}

// Prune deletes all but the newest `keep` snapshots per account.
func (r *Repository) Prune(keep int) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots s
			WHERE (
				SELECT COUNT(1) FROM snapshots s2
				WHERE s2.account_id = s.account_id AND s2.created_at >= s.created_at
			) <= ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
