package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/database"
)

// IntegrityJob runs SQLite's integrity check and a passive WAL checkpoint.
// Corruption of the local database is critical and cannot auto-recover, so
// the job fails loudly.
type IntegrityJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewIntegrityJob creates the integrity check job.
func NewIntegrityJob(db *database.DB, log zerolog.Logger) *IntegrityJob {
	return &IntegrityJob{
		db:  db,
		log: log.With().Str("job", "integrity").Logger(),
	}
}

// Name returns the job name.
func (j *IntegrityJob) Name() string {
	return "integrity"
}

// Run executes the check.
func (j *IntegrityJob) Run() error {
	var result string
	if err := j.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}

	var busy, walFrames, checkpointed int
	if err := j.db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &walFrames, &checkpointed); err != nil {
		j.log.Warn().Err(err).Msg("Failed to checkpoint WAL")
		return nil
	}

	if walFrames > 1000 {
		j.log.Warn().
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be lagging")
	} else {
		j.log.Debug().Int("wal_frames", walFrames).Msg("Database integrity OK")
	}

	return nil
}
