package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Descriptor is the wire form of a durable ledger entry: a handler
// identifier plus the arguments bound to it at registration time.
type Descriptor struct {
	Handler HandlerName     `json:"handler"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// State contains the minimal information needed to unwind a saga after a
// process restart: the ordered sequence of compensation descriptors plus
// lifecycle bookkeeping. The coordinator itself stays in-memory; State is
// the durability layer hosts persist through a Store.
type State struct {
	SagaID        string       `json:"saga_id"`
	Status        string       `json:"status"`
	Compensations []Descriptor `json:"compensations"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Saga status constants
const (
	StatusRunning      = "running"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusCompensating = "compensating"
	StatusCompensated  = "compensated"
)

// Store defines the interface for persisting saga state.
type Store interface {
	// Save persists the current saga state
	Save(ctx context.Context, sagaID string, state State) error

	// Load retrieves a saga state by ID
	Load(ctx context.Context, sagaID string) (*State, error)

	// Delete removes a saga state after a successful unwind
	Delete(ctx context.Context, sagaID string) error
}

// MemoryStore provides an in-memory implementation of Store for testing
// or scenarios where persistence is not required.
type MemoryStore struct {
	states map[string]*State
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() Store {
	return &MemoryStore{
		states: make(map[string]*State),
	}
}

// Save stores the saga state in memory.
func (m *MemoryStore) Save(ctx context.Context, sagaID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy so later caller mutations don't leak into the store
	stateCopy := state
	stateCopy.Compensations = append([]Descriptor(nil), state.Compensations...)
	stateCopy.UpdatedAt = time.Now()

	m.states[sagaID] = &stateCopy
	return nil
}

// Load retrieves the saga state from memory.
func (m *MemoryStore) Load(ctx context.Context, sagaID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[sagaID]
	if !exists {
		return nil, fmt.Errorf("saga %s not found", sagaID)
	}

	stateCopy := *state
	stateCopy.Compensations = append([]Descriptor(nil), state.Compensations...)
	return &stateCopy, nil
}

// Delete removes the saga state from memory.
func (m *MemoryStore) Delete(ctx context.Context, sagaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, sagaID)
	return nil
}
