// Package tool defines the gateway's tool catalogue: descriptors with typed
// argument schemas, the handler contract, and the registry that maps tool
// names to descriptors.
//
// The registry is populated once during process startup and is read-only
// afterwards. It is the sole source of truth for the argument validation
// rules applied by the dispatcher.
package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ParamType is the wire type of a single tool argument.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// Param describes one argument of a tool.
type Param struct {
	// Name is the argument name as it appears in the invocation mapping.
	Name string

	// Type constrains the JSON value accepted for this argument.
	Type ParamType

	// Required marks the argument as mandatory. Required params must not
	// carry a Default.
	Required bool

	// Default is substituted when an optional argument is absent. May be nil.
	Default any

	// Description is surfaced through the discovery endpoints.
	Description string
}

// Handler executes one tool invocation. The args mapping has already been
// validated against the descriptor's params, with defaults filled in. The
// ctx carries the invocation deadline; implementations must respect it.
//
// The returned payload is opaque to the dispatcher and is delivered to the
// caller unchanged.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor describes one registered tool. Descriptors are immutable after
// registration.
type Descriptor struct {
	Name        string
	Description string

	// Params is the ordered argument schema.
	Params []Param

	Handler Handler
}

// ValidateArgs checks args against the descriptor's schema and returns a new
// mapping with defaults filled in. It fails on a missing required argument,
// a type mismatch, or an argument name the schema does not declare (unknown
// extras are rejected rather than dropped).
func (d *Descriptor) ValidateArgs(args map[string]any) (map[string]any, error) {
	known := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = p
	}

	for name := range args {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown argument %q for tool %q", name, d.Name)
		}
	}

	out := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q for tool %q", p.Name, d.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

// checkType verifies that v matches the declared parameter type. Values come
// from encoding/json, so numbers arrive as float64; an integer parameter
// accepts a float64 only when it carries no fractional part.
func checkType(p Param, v any) error {
	if v == nil {
		if p.Required {
			return fmt.Errorf("argument %q must not be null", p.Name)
		}
		return nil
	}

	ok := false
	switch p.Type {
	case TypeString:
		_, ok = v.(string)
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			ok = true
		case float64:
			ok = n == math.Trunc(n)
		}
	case TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			ok = true
		}
	case TypeObject:
		_, ok = v.(map[string]any)
	case TypeArray:
		_, ok = v.([]any)
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", p.Name, p.Type)
	}

	if !ok {
		return fmt.Errorf("argument %q must be of type %s, got %T", p.Name, p.Type, v)
	}
	return nil
}

// validate checks the descriptor itself at registration time.
func (d *Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("tool: descriptor must have a non-empty name")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool: descriptor %q must have a handler", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("tool: descriptor %q has a param with an empty name", d.Name)
		}
		if !p.Type.IsValid() {
			return fmt.Errorf("tool: descriptor %q param %q has invalid type %q", d.Name, p.Name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("tool: descriptor %q param %q is required and must not carry a default", d.Name, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("tool: descriptor %q declares param %q twice", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
