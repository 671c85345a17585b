// Package dispatch maps operation names to handlers so UI clients can invoke
// them by name with JSON arguments.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/zjrosen/modeldeck/internal/log"
)

var (
	// ErrUnknownOperation is returned by Invoke for unregistered names.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrInvalidArgs is returned when arguments are malformed or missing.
	ErrInvalidArgs = errors.New("invalid arguments")
)

// Handler runs one operation. Async operations return a nil result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Operation describes a registered operation to clients.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Async operations acknowledge with a null result and report through events.
	Async bool `json:"async"`
	// Args is the JSON schema of the argument object, nil when the operation
	// takes no arguments.
	Args json.RawMessage `json:"args_schema,omitempty"`
}

// Option configures an operation at registration.
type Option func(*Operation)

// WithDescription sets the human-readable description.
func WithDescription(desc string) Option {
	return func(op *Operation) { op.Description = desc }
}

// Async marks the operation as acknowledging immediately.
func Async() Option {
	return func(op *Operation) { op.Async = true }
}

// WithArgs records the JSON schema of v, a struct describing the arguments.
func WithArgs(v any) Option {
	return func(op *Operation) { op.Args = argsSchema(v) }
}

var reflector = jsonschema.Reflector{DoNotReference: true, Anonymous: true}

func argsSchema(v any) json.RawMessage {
	schema := reflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		log.ErrorErr(log.CatOps, "Failed to build argument schema", err)
		return nil
	}
	return data
}

type entry struct {
	op      Operation
	handler Handler
}

// Registry holds named handlers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler, opts ...Option) {
	op := Operation{Name: name}
	for _, opt := range opts {
		opt(&op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{op: op, handler: h}
	log.Debug(log.CatOps, "Registered operation", "name", name, "async", op.Async)
}

// Invoke runs the handler registered under name.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}

	log.Debug(log.CatOps, "Invoking operation", "name", name)
	return e.handler(ctx, args)
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	ops := r.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

// Operations describes every registered operation, sorted by name.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]Operation, 0, len(r.entries))
	for _, e := range r.entries {
		ops = append(ops, e.op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Describe returns the operation registered under name.
func (r *Registry) Describe(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.op, ok
}

// decodeArgs unmarshals raw into v. Empty input decodes as an empty object.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return nil
}
