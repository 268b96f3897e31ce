// Package dispatch resolves inbound envelopes to registered operations and
// runs the per-connection serving loop.
package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateOperation is returned when two operations are registered under
// the same name. Operation names are startup-time configuration; a collision
// is a bug, not a runtime condition.
var ErrDuplicateOperation = errors.New("operation already registered")

// Operation is an immutable record binding an envelope type to its handler.
type Operation struct {
	// Name is the envelope type this operation answers to.
	Name string
	// Reply is the envelope type of the response, or "" for fire-and-forget.
	Reply string
	// Handler processes the decoded payload.
	Handler Handler
}

// OperationOption customizes an operation at construction time.
type OperationOption func(*Operation)

// WithReply overrides the default "<name>.response" reply type.
func WithReply(reply string) OperationOption {
	return func(op *Operation) { op.Reply = reply }
}

// WithoutReply marks the operation as fire-and-forget.
func WithoutReply() OperationOption {
	return func(op *Operation) { op.Reply = "" }
}

// NewOperation builds an operation. Unless overridden, replies are named
// "<name>.response".
func NewOperation(name string, h Handler, opts ...OperationOption) Operation {
	op := Operation{Name: name, Reply: name + ".response", Handler: h}
	for _, opt := range opts {
		opt(&op)
	}
	return op
}

// Registry is the append-only mapping from envelope type to operation.
// Registration happens at startup; lookups happen on every inbound frame.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation. Registering the same name twice is an error.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return errors.New("operation name cannot be empty")
	}
	if op.Handler == nil {
		return fmt.Errorf("operation %q has no handler", op.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// MustRegister registers an operation and panics on error. Operations are
// wired at startup, where a failure means a configuration bug that should
// stop the process.
func (r *Registry) MustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(fmt.Sprintf("failed to register operation %s: %v", op.Name, err))
	}
}

// Get resolves an operation by envelope type.
func (r *Registry) Get(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all registered operation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
