package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/btree"

	"github.com/compensare/saga/set"
)

// Runner executes a sequence of forward steps against a Saga, registering
// each step's compensation as it succeeds and unwinding automatically when
// a step fails. The durable part of the ledger is persisted through the
// Store after every step, so a crashed run can be resumed and unwound by
// another process.
type Runner struct {
	store    Store
	registry *Registry
	logger   zerolog.Logger
	opts     Options
}

// NewRunner creates a Runner. registry may be nil if no step is durable.
func NewRunner(store Store, registry *Registry, logger zerolog.Logger, opts Options) *Runner {
	return &Runner{
		store:    store,
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// Result exposes the outcome of a run: per-step outputs keyed by step name
// and the underlying saga, whose unwind events can be inspected after a
// failure.
type Result struct {
	Saga    *Saga
	outputs *btree.Map[string, any]
}

// Output returns the recorded output of a completed step.
func (r *Result) Output(name string) (any, bool) {
	return r.outputs.Get(name)
}

// Outputs returns the completed step names in key order.
func (r *Result) Outputs() []string {
	return r.outputs.Keys()
}

// Run executes the steps in order. On a forward failure it persists the
// failure, compensates every previously completed step, and returns the
// step's error; if compensation also failed, both errors are reported.
// Forward errors are never absorbed or retried by the Runner.
func (r *Runner) Run(ctx context.Context, sagaID string, steps []Step) (*Result, error) {
	names := set.New[string]()
	for _, step := range steps {
		if names.Contains(step.Name()) {
			return nil, fmt.Errorf("duplicate step name %q", step.Name())
		}
		names.Insert(step.Name())
	}

	opts := r.opts
	opts.Logger = r.logger
	sg := New(opts)

	result := &Result{
		Saga:    sg,
		outputs: btree.NewMap[string, any](10),
	}

	logger := r.logger.With().Str("saga_id", sagaID).Logger()
	startedAt := time.Now()

	if err := r.persist(ctx, sagaID, sg, StatusRunning, startedAt); err != nil {
		return nil, fmt.Errorf("failed to save initial state: %w", err)
	}

	for _, step := range steps {
		logger.Info().Str("step", step.Name()).Msg("executing step")

		output, err := step.Execute(ctx)
		if err != nil {
			logger.Error().Err(err).Str("step", step.Name()).Msg("step failed")

			if perr := r.persist(ctx, sagaID, sg, StatusFailed, startedAt); perr != nil {
				logger.Warn().Err(perr).Msg("failed to persist failure state")
			}

			if cerr := sg.Compensate(ctx); cerr != nil {
				if perr := r.persist(ctx, sagaID, sg, StatusFailed, startedAt); perr != nil {
					logger.Warn().Err(perr).Msg("failed to persist compensation state")
				}
				return result, fmt.Errorf(
					"step %s failed and compensation failed: step_error=%w, compensation_error=%v",
					step.Name(), err, cerr,
				)
			}

			if perr := r.persist(ctx, sagaID, sg, StatusCompensated, startedAt); perr != nil {
				logger.Warn().Err(perr).Msg("failed to persist compensation state")
			}
			return result, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		result.outputs.Set(step.Name(), output)

		if err := r.register(sg, step); err != nil {
			return result, fmt.Errorf("register compensation for step %s: %w", step.Name(), err)
		}

		if perr := r.persist(ctx, sagaID, sg, StatusRunning, startedAt); perr != nil {
			logger.Warn().Err(perr).Msg("failed to persist execution state")
		}
	}

	if err := r.persist(ctx, sagaID, sg, StatusCompleted, startedAt); err != nil {
		logger.Warn().Err(err).Msg("failed to persist completion state")
	}

	return result, nil
}

// register records a step's compensation on the saga. Durable steps go
// through the registry so the persisted ledger can rebind them after a
// restart; everything else is held as a closure.
func (r *Runner) register(sg *Saga, step Step) error {
	if durable, ok := step.(DurableStep); ok && r.registry != nil {
		return sg.AddDescriptor(r.registry, durable.Descriptor())
	}
	return sg.AddCompensation(Named(step.Name(), step.Compensate))
}

// Resume loads a persisted saga, rebuilds its ledger through reg, and
// unwinds it. The record is deleted once every compensation succeeds; on
// failure it is kept, marked failed, for manual remediation.
func (r *Runner) Resume(ctx context.Context, reg *Registry, sagaID string) error {
	state, err := r.store.Load(ctx, sagaID)
	if err != nil {
		return fmt.Errorf("load saga %s: %w", sagaID, err)
	}

	opts := r.opts
	opts.Logger = r.logger
	sg, err := Restore(reg, state.Compensations, opts)
	if err != nil {
		return err
	}

	logger := r.logger.With().Str("saga_id", sagaID).Logger()
	logger.Info().
		Int("compensations", len(state.Compensations)).
		Str("status", state.Status).
		Msg("resuming saga unwind")

	state.Status = StatusCompensating
	if perr := r.store.Save(ctx, sagaID, *state); perr != nil {
		logger.Warn().Err(perr).Msg("failed to persist compensating state")
	}

	if err := sg.Compensate(ctx); err != nil {
		state.Status = StatusFailed
		if perr := r.store.Save(ctx, sagaID, *state); perr != nil {
			logger.Warn().Err(perr).Msg("failed to persist failure state")
		}
		return err
	}

	return r.store.Delete(ctx, sagaID)
}

func (r *Runner) persist(ctx context.Context, sagaID string, sg *Saga, status string, createdAt time.Time) error {
	state := State{
		SagaID:        sagaID,
		Status:        status,
		Compensations: sg.Snapshot(),
		CreatedAt:     createdAt,
		UpdatedAt:     time.Now(),
	}
	return r.store.Save(ctx, sagaID, state)
}
