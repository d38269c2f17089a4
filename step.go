package saga

import (
	"context"
	"fmt"
)

// Step pairs a forward action with its compensation. The Runner executes
// steps in order and registers each step's Compensate on success; the
// compensation runs only if a later step fails.
type Step interface {
	Name() string
	Execute(ctx context.Context) (any, error)
	Compensate(ctx context.Context) error
}

// DurableStep is a Step whose compensation can be re-invoked after a
// process restart through a Registry handler. When a Runner has a Registry,
// durable steps are recorded in the persisted ledger as descriptors instead
// of closures.
type DurableStep interface {
	Step
	Descriptor() Descriptor
}

type ExecuteFunc func(ctx context.Context) (any, error)
type UndoFunc func(ctx context.Context) error

// StepFunc is an implementation of Step that uses ordinary functions.
type StepFunc struct {
	name    string
	execute ExecuteFunc
	undo    UndoFunc
}

// NewStep constructs a new StepFunc from a pair of functions.
func NewStep(name string, execute ExecuteFunc, undo UndoFunc) *StepFunc {
	return &StepFunc{
		name:    name,
		execute: execute,
		undo:    undo,
	}
}

func NoOpUndo(_ context.Context) error {
	return nil
}

// NewStepWithNoOpUndo constructs a new StepFunc with a no-op compensation,
// for steps with no side effects worth reversing.
func NewStepWithNoOpUndo(name string, execute ExecuteFunc) *StepFunc {
	return NewStep(name, execute, NoOpUndo)
}

// Name implements the Step interface for StepFunc.
func (s *StepFunc) Name() string {
	return s.name
}

// Execute implements the Step interface for StepFunc.
func (s *StepFunc) Execute(ctx context.Context) (any, error) {
	return s.execute(ctx)
}

// Compensate implements the Step interface for StepFunc.
func (s *StepFunc) Compensate(ctx context.Context) error {
	return s.undo(ctx)
}

// String implements the fmt.Stringer interface for StepFunc.
func (s *StepFunc) String() string {
	return fmt.Sprintf("StepFunc[%s]", s.name)
}
