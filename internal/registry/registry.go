package registry

import (
	"context"
	"iter"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Handler implements a tool. Arguments have already been validated and
// coerced to the declared parameter types.
type Handler func(ctx context.Context, args Arguments) (any, error)

// Tool is a registry entry as returned by Lookup.
type Tool struct {
	Descriptor ToolDescriptor
	Handler    Handler
	Schema     *gojsonschema.Schema
}

type entry struct {
	desc    ToolDescriptor
	handler Handler
	schema  *gojsonschema.Schema
}

// Registry maps tool names to their descriptors and handlers.
// Registration is append-only; once closed the registry is read-only and
// safe for any number of concurrent readers.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string
	closed bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds a tool. It fails with ErrRegistryClosed after Close,
// ErrInvalidDescriptor for a malformed descriptor and ErrDuplicateName
// when the name is taken; in every failure case the registry is unchanged.
func (r *Registry) Register(desc ToolDescriptor, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.Wrapf(ErrRegistryClosed, "register %q", desc.Name)
	}
	if handler == nil {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q: handler cannot be nil", desc.Name)
	}
	desc = desc.clone()
	if err := desc.validate(); err != nil {
		return err
	}
	if _, exists := r.tools[desc.Name]; exists {
		return errors.Wrapf(ErrDuplicateName, "register %q", desc.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.InputSchema()))
	if err != nil {
		return errors.Wrapf(ErrInvalidDescriptor, "tool %q: schema: %v", desc.Name, err)
	}

	r.tools[desc.Name] = &entry{desc: desc, handler: handler, schema: schema}
	r.order = append(r.order, desc.Name)

	log.Debug().Str("tool", desc.Name).Int("params", len(desc.Parameters)).Msg("Tool registered")
	return nil
}

// Lookup returns the tool registered under name, or ErrNotFound.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Tool{}, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return Tool{Descriptor: e.desc.clone(), Handler: e.handler, Schema: e.schema}, nil
}

// List yields every descriptor in registration order. Each iteration works
// from a snapshot taken when it starts, so the sequence is finite and can be
// ranged over again.
func (r *Registry) List() iter.Seq[ToolDescriptor] {
	return func(yield func(ToolDescriptor) bool) {
		r.mu.RLock()
		entries := make([]*entry, 0, len(r.order))
		for _, name := range r.order {
			entries = append(entries, r.tools[name])
		}
		r.mu.RUnlock()

		for _, e := range entries {
			if !yield(e.desc.clone()) {
				return
			}
		}
	}
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Close seals the registry. Further registrations fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
