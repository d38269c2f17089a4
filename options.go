package saga

import "github.com/rs/zerolog"

// Options configures how a Saga unwinds its compensation ledger.
// The zero value runs compensations sequentially in reverse registration
// order, stops at the first failure, and logs nothing.
type Options struct {
	// ParallelCompensation dispatches all compensations concurrently and
	// waits for every one of them, regardless of individual failures.
	// Registration order carries no ordering guarantee in this mode.
	ParallelCompensation bool

	// ContinueWithError keeps the sequential unwind going past a failed
	// compensation. All failures are aggregated into a CompensationError.
	// It has no effect in parallel mode, where every compensation is always
	// attempted.
	ContinueWithError bool

	// Logger receives per-compensation progress events. A zero
	// zerolog.Logger disables logging.
	Logger zerolog.Logger
}
