package saga

import (
	"context"
	"encoding/json"

	"github.com/puzpuzpuz/xsync/v3"
)

// HandlerName represents a unique name for a compensation Handler.
type HandlerName string

// String returns the string representation of the HandlerName.
func (n HandlerName) String() string {
	return string(n)
}

// Handler is the serializable form of a compensation: a named reversing
// action that receives its bound arguments as JSON. Handlers exist so a
// ledger persisted by one process can be unwound by another; a closure
// cannot cross that boundary, but a handler name plus arguments can.
type Handler interface {
	Name() HandlerName
	Compensate(ctx context.Context, args json.RawMessage) error
}

// HandlerFunc is an implementation of Handler that uses an ordinary
// function.
type HandlerFunc struct {
	name HandlerName
	fn   func(ctx context.Context, args json.RawMessage) error
}

// NewHandlerFunc constructs a Handler from a name and a function.
func NewHandlerFunc(name HandlerName, fn func(ctx context.Context, args json.RawMessage) error) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

// Name implements the Handler interface for HandlerFunc.
func (h *HandlerFunc) Name() HandlerName {
	return h.name
}

// Compensate implements the Handler interface for HandlerFunc.
func (h *HandlerFunc) Compensate(ctx context.Context, args json.RawMessage) error {
	return h.fn(ctx, args)
}

// Registry is a registry of compensation handlers shared across sagas.
//
// Handlers are identified by their HandlerName. When a saga ledger is
// reloaded from persistent storage the concrete compensation is erased and
// the only mechanism to recover it is its HandlerName, so hosts register
// every durable handler here before restoring or resuming a saga.
type Registry struct {
	handlers *xsync.MapOf[HandlerName, Handler]
}

// NewRegistry creates a new, empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: xsync.NewMapOf[HandlerName, Handler](),
	}
}

// Register adds a handler to the registry.
func (r *Registry) Register(h Handler) error {
	if _, ok := r.handlers.Load(h.Name()); ok {
		return AlreadyRegisteredError(h.Name())
	}
	r.handlers.Store(h.Name(), h)
	return nil
}

// Get retrieves a handler from the registry by its name.
func (r *Registry) Get(name HandlerName) (Handler, error) {
	h, ok := r.handlers.Load(name)
	if !ok {
		return nil, NotFoundError(name)
	}
	return h, nil
}

// handlerCompensation is a ledger entry that resolves its Handler from a
// Registry at unwind time. Resolution is deferred so that a handler
// re-registered after a restart is the one that runs.
type handlerCompensation struct {
	reg  *Registry
	desc Descriptor
}

// Compensate implements the Compensation interface for handlerCompensation.
func (h *handlerCompensation) Compensate(ctx context.Context) error {
	handler, err := h.reg.Get(h.desc.Handler)
	if err != nil {
		return err
	}
	return handler.Compensate(ctx, h.desc.Args)
}

// CompensationName implements the namer interface for handlerCompensation.
func (h *handlerCompensation) CompensationName() string {
	return h.desc.Handler.String()
}
