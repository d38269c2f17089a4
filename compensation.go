package saga

import "context"

// Compensation is a deferred unit of reversing work. It is bound with its
// arguments at registration time and invoked only during unwind.
type Compensation interface {
	Compensate(ctx context.Context) error
}

// CompensationFunc adapts an ordinary function to the Compensation
// interface.
type CompensationFunc func(ctx context.Context) error

// Compensate implements the Compensation interface for CompensationFunc.
func (f CompensationFunc) Compensate(ctx context.Context) error {
	return f(ctx)
}

// namer is implemented by compensations that carry a human-readable name.
// The name shows up in error reports and the unwind event log; unnamed
// compensations fall back to their registration position.
type namer interface {
	CompensationName() string
}

type namedCompensation struct {
	name string
	fn   CompensationFunc
}

// Named wraps fn in a Compensation that reports under the given name.
func Named(name string, fn func(ctx context.Context) error) Compensation {
	return &namedCompensation{name: name, fn: fn}
}

// Compensate implements the Compensation interface for namedCompensation.
func (n *namedCompensation) Compensate(ctx context.Context) error {
	return n.fn(ctx)
}

// CompensationName implements the namer interface for namedCompensation.
func (n *namedCompensation) CompensationName() string {
	return n.name
}
