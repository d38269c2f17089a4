// Package saga implements a compensation coordinator for multi-step
// business transactions that cannot be wrapped in a single database
// transaction.
//
// A saga records a reversing action for every forward step that completes
// successfully. When a later step fails, the caller invokes Compensate and
// the recorded actions are replayed in reverse registration order (or
// concurrently, if configured), undoing the work that was already done.
// For more on distributed sagas, see this 2017 JOTB talk by Caitie
// McCaffrey: https://www.youtube.com/watch?v=0UTOLRTwOX0
//
// Overview
//
//  1. Create a Saga with New, choosing sequential or parallel unwind via
//     Options.
//  2. As each forward step succeeds, register its reversing action with
//     AddCompensation (or AddHandler for compensations that must survive a
//     process restart).
//  3. On an unrecoverable failure, call Compensate. Failures of individual
//     compensations are never swallowed: they are reported as a
//     FailedCompensation or aggregated into a CompensationError.
//
// The Runner type layers a forward-step executor on top of the coordinator:
// it runs a sequence of Steps, registers their compensations as they
// succeed, persists the durable ledger through a Store, and unwinds
// automatically when a step fails. See the examples directory for complete
// programs.
package saga
