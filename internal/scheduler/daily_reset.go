package scheduler

import (
	"github.com/rs/zerolog"
)

// CounterResetter zeroes per-day counters.
type CounterResetter interface {
	ResetDaily()
}

// SnapshotPruner trims old snapshots, keeping the newest N per account.
type SnapshotPruner interface {
	Prune(keep int) (int64, error)
}

// DailyResetJob runs at midnight: it resets the rebalancer's daily trade
// counters and prunes old snapshots so the database stays bounded.
type DailyResetJob struct {
	resetter CounterResetter
	pruner   SnapshotPruner
	keep     int
	log      zerolog.Logger
}

// NewDailyResetJob creates the daily reset job.
func NewDailyResetJob(resetter CounterResetter, pruner SnapshotPruner, keepSnapshots int, log zerolog.Logger) *DailyResetJob {
	return &DailyResetJob{
		resetter: resetter,
		pruner:   pruner,
		keep:     keepSnapshots,
		log:      log.With().Str("job", "daily_reset").Logger(),
	}
}

// Name returns the job name.
func (j *DailyResetJob) Name() string {
	return "daily_reset"
}

// Run executes the reset.
func (j *DailyResetJob) Run() error {
	j.resetter.ResetDaily()

	pruned, err := j.pruner.Prune(j.keep)
	if err != nil {
		j.log.Error().Err(err).Msg("Snapshot pruning failed")
		return err
	}
	if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Msg("Old snapshots pruned")
	}

	return nil
}
