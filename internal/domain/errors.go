package domain

import "errors"

// Failure taxonomy. Local failures never abort a whole monitoring cycle;
// see the monitor for propagation policy.
var (
	// ErrDataUnavailable marks a price fetch failure for one or more
	// symbols. The cycle proceeds with last known prices, flagged stale.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrEvaluationFailed marks a stance evaluation failure (timeout or
	// malformed response). The debate degrades to the deterministic scorer.
	ErrEvaluationFailed = errors.New("stance evaluation failed")

	// ErrSafetyLimitExceeded marks a rebalancer gate rejection. Recorded,
	// never retried.
	ErrSafetyLimitExceeded = errors.New("safety limit exceeded")

	// ErrExecutionFailed marks an order placement failure. Recorded as
	// FAILED and surfaced as a risk alert; never auto-retried.
	ErrExecutionFailed = errors.New("order execution failed")

	// ErrNotInitialized is returned by the query surface when no snapshot
	// has ever been computed for an account.
	ErrNotInitialized = errors.New("no snapshot computed yet")

	// ErrAlreadyRunning is returned when starting a monitor that is
	// already running for the account.
	ErrAlreadyRunning = errors.New("monitor already running")
)
