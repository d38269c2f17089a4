package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SagaID represents a unique identifier for a Saga instance.
type SagaID struct {
	UUID uuid.UUID
}

// String returns the string representation of the SagaID.
func (s SagaID) String() string {
	return s.UUID.String()
}

// SagaState represents the lifecycle of a Saga instance. A saga accepts
// registrations while Building, seals its ledger when Compensating, and
// never leaves Compensated.
type SagaState int

const (
	StateBuilding SagaState = iota
	StateCompensating
	StateCompensated
)

// String returns the string representation of the SagaState.
func (s SagaState) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateCompensating:
		return "compensating"
	case StateCompensated:
		return "compensated"
	default:
		return "unknown"
	}
}

// ledgerEntry is a single registered compensation. Position is the 1-based
// registration position; desc is non-nil only for durable handler entries.
type ledgerEntry struct {
	position int
	name     string
	comp     Compensation
	desc     *Descriptor
}

// Saga is an ordered ledger of compensations, consumed exactly once by
// Compensate. It is created at the start of a compensable transaction and
// mutated only by appending. The ledger is owned exclusively by the Saga.
//
// Registering a compensation only after its forward step succeeds is the
// caller's contract; the coordinator does not re-verify it.
type Saga struct {
	id     SagaID
	opts   Options
	logger zerolog.Logger
	events *unwindLog

	mu     sync.Mutex
	state  SagaState
	ledger []ledgerEntry

	once   sync.Once
	result error
}

// New constructs an empty, mutable compensation ledger.
func New(opts Options) *Saga {
	id := SagaID{UUID: uuid.New()}
	return &Saga{
		id:     id,
		opts:   opts,
		logger: opts.Logger.With().Str("saga_id", id.String()).Logger(),
		events: newUnwindLog(id),
	}
}

// ID returns the saga's unique identifier.
func (s *Saga) ID() SagaID {
	return s.id
}

// State returns the saga's current lifecycle state.
func (s *Saga) State() SagaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of registered compensations.
func (s *Saga) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// Events returns the unwind events recorded so far, in order.
func (s *Saga) Events() []UnwindEvent {
	return s.events.Events()
}

// AddCompensation appends a reversing action to the ledger. Calling it
// twice with equivalent actions registers two compensations; idempotence is
// the caller's responsibility. It returns ErrCompensationStarted once
// Compensate has begun.
//
// AddCompensation is safe for concurrent use, so forward steps dispatched
// in parallel may register as they complete.
func (s *Saga) AddCompensation(c Compensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(c, nil)
}

// AddCompensationFunc appends an ordinary function as a compensation.
func (s *Saga) AddCompensationFunc(fn func(ctx context.Context) error) error {
	return s.AddCompensation(CompensationFunc(fn))
}

// AddHandler appends a durable compensation: a handler name from reg bound
// to args, which are marshaled to JSON at registration time. The handler
// must already be registered; the entry survives Snapshot and Restore.
func (s *Saga) AddHandler(reg *Registry, name HandlerName, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for handler %q: %w", name, err)
	}
	return s.AddDescriptor(reg, Descriptor{Handler: name, Args: raw})
}

// AddDescriptor appends a durable compensation from its wire form. The
// descriptor's handler must already be registered in reg; resolution still
// happens again at unwind time.
func (s *Saga) AddDescriptor(reg *Registry, desc Descriptor) error {
	if _, err := reg.Get(desc.Handler); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(&handlerCompensation{reg: reg, desc: desc}, &desc)
}

func (s *Saga) appendLocked(c Compensation, desc *Descriptor) error {
	if s.state != StateBuilding {
		return ErrCompensationStarted
	}

	position := len(s.ledger) + 1
	name := fmt.Sprintf("compensation-%d", position)
	if n, ok := c.(namer); ok {
		name = n.CompensationName()
	}

	s.ledger = append(s.ledger, ledgerEntry{
		position: position,
		name:     name,
		comp:     c,
		desc:     desc,
	})
	return nil
}

// Snapshot returns the durable entries of the ledger in registration
// order, suitable for persisting through a Store. Closure-based entries
// cannot survive a restart and are omitted.
func (s *Saga) Snapshot() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	descs := make([]Descriptor, 0, len(s.ledger))
	for _, entry := range s.ledger {
		if entry.desc == nil {
			continue
		}
		descs = append(descs, *entry.desc)
	}
	return descs
}

// Restore rebuilds a saga ledger from persisted descriptors so a host can
// unwind work recorded by an earlier process. Every descriptor's handler
// must be registered in reg.
func Restore(reg *Registry, descs []Descriptor, opts Options) (*Saga, error) {
	s := New(opts)
	for _, desc := range descs {
		if err := s.AddDescriptor(reg, desc); err != nil {
			return nil, fmt.Errorf("restore ledger: %w", err)
		}
	}
	return s, nil
}

// Compensate executes every registered compensation exactly once and
// reports terminal failures; it never retries on its own. An empty ledger
// succeeds trivially. After the first call the saga is terminal: subsequent
// calls invoke nothing and return the first call's result.
func (s *Saga) Compensate(ctx context.Context) error {
	s.once.Do(func() {
		s.setState(StateCompensating)
		s.result = s.compensate(ctx)
		s.setState(StateCompensated)
	})
	return s.result
}

func (s *Saga) setState(state SagaState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Saga) compensate(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]ledgerEntry(nil), s.ledger...)
	s.mu.Unlock()

	if len(entries) == 0 {
		s.logger.Debug().Msg("no compensations registered")
		return nil
	}

	s.logger.Info().
		Int("compensations", len(entries)).
		Bool("parallel", s.opts.ParallelCompensation).
		Msg("starting saga compensation")

	if s.opts.ParallelCompensation {
		return s.compensateParallel(ctx, entries)
	}
	return s.compensateSequential(ctx, entries)
}

// compensateSequential unwinds the ledger in reverse registration order.
func (s *Saga) compensateSequential(ctx context.Context, entries []ledgerEntry) error {
	agg := &CompensationError{}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := s.runOne(ctx, entry); err != nil {
			failure := &FailedCompensation{
				Position: entry.position,
				Name:     entry.name,
				Cause:    err,
			}
			if !s.opts.ContinueWithError {
				return failure
			}
			agg.add(failure)
		}
	}

	if agg.hasFailures() {
		return agg
	}
	return nil
}

// compensateParallel dispatches every compensation concurrently and joins
// all of them; no compensation is skipped because of another's failure.
// Failures are reported sorted by registration position.
func (s *Saga) compensateParallel(ctx context.Context, entries []ledgerEntry) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []*FailedCompensation
	)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := s.runOne(ctx, entry); err != nil {
				mu.Lock()
				failures = append(failures, &FailedCompensation{
					Position: entry.position,
					Name:     entry.name,
					Cause:    err,
				})
				mu.Unlock()
			}
			return nil
		})
	}

	// Errors are collected above; Wait only joins the dispatched tasks.
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Position < failures[j].Position
	})
	return &CompensationError{Failures: failures}
}

// runOne invokes a single compensation, recording unwind events around it.
func (s *Saga) runOne(ctx context.Context, entry ledgerEntry) error {
	s.recordEvent(entry, UnwindStarted)
	s.logger.Debug().
		Int("position", entry.position).
		Str("compensation", entry.name).
		Msg("compensating")

	if err := entry.comp.Compensate(ctx); err != nil {
		s.recordEvent(entry, UnwindFailed)
		s.logger.Error().
			Err(err).
			Int("position", entry.position).
			Str("compensation", entry.name).
			Msg("compensation failed")
		return err
	}

	s.recordEvent(entry, UnwindSucceeded)
	return nil
}

func (s *Saga) recordEvent(entry ledgerEntry, eventType UnwindEventType) {
	err := s.events.record(UnwindEvent{
		SagaID:   s.id,
		Position: entry.position,
		Name:     entry.name,
		Type:     eventType,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to record unwind event")
	}
}
