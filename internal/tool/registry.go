package tool

import (
	"errors"
	"fmt"
)

// ErrDuplicateTool is returned by [Registry.Register] when a tool with the
// same name is already present.
var ErrDuplicateTool = errors.New("tool already registered")

// ErrUnknownTool is returned by [Registry.Lookup] for names that were never
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the static tool catalogue. All registration happens during
// process initialisation, before the registry is handed to the dispatcher and
// the transports; it is not safe to call Register concurrently with Lookup.
type Registry struct {
	tools map[string]*Descriptor

	// order preserves registration order for discovery listings.
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a descriptor to the catalogue. It returns an error wrapping
// [ErrDuplicateTool] if the name is already taken, or a validation error if
// the descriptor itself is malformed.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool: register %q: %w", d.Name, ErrDuplicateTool)
	}
	r.tools[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor for name, or an error wrapping
// [ErrUnknownTool] when no such tool exists.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	d, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool: lookup %q: %w", name, ErrUnknownTool)
	}
	return d, nil
}

// List returns all descriptors in registration order. The returned slice is
// a fresh copy; the descriptors themselves are shared and must not be
// mutated.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
