package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func echoDescriptor() *Descriptor {
	return &Descriptor{
		Name:        "echo",
		Description: "returns its message argument",
		Params: []Param{
			{Name: "message", Type: TypeString, Required: true},
			{Name: "repeat", Type: TypeInteger, Default: 1},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args["message"], nil
		},
	}
}

func TestValidateArgs_FillsDefaults(t *testing.T) {
	d := echoDescriptor()

	out, err := d.ValidateArgs(map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("ValidateArgs: %v", err)
	}
	if out["message"] != "hi" {
		t.Errorf("message = %v, want %q", out["message"], "hi")
	}
	if out["repeat"] != 1 {
		t.Errorf("repeat = %v, want default 1", out["repeat"])
	}
}

func TestValidateArgs_MissingRequired(t *testing.T) {
	d := echoDescriptor()

	_, err := d.ValidateArgs(map[string]any{})
	if err == nil {
		t.Fatal("ValidateArgs accepted a missing required argument")
	}
	if !strings.Contains(err.Error(), "message") {
		t.Errorf("error %q does not name the missing argument", err)
	}
}

func TestValidateArgs_RejectsUnknownArgument(t *testing.T) {
	d := echoDescriptor()

	_, err := d.ValidateArgs(map[string]any{"message": "hi", "shout": true})
	if err == nil {
		t.Fatal("ValidateArgs accepted an undeclared argument")
	}
	if !strings.Contains(err.Error(), "shout") {
		t.Errorf("error %q does not name the unknown argument", err)
	}
}

func TestValidateArgs_DoesNotMutateInput(t *testing.T) {
	d := echoDescriptor()
	in := map[string]any{"message": "hi"}

	if _, err := d.ValidateArgs(in); err != nil {
		t.Fatalf("ValidateArgs: %v", err)
	}
	if _, ok := in["repeat"]; ok {
		t.Error("ValidateArgs wrote the default into the caller's map")
	}
}

func TestValidateArgs_TypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		param Param
		value any
		ok    bool
	}{
		{"string ok", Param{Name: "p", Type: TypeString}, "x", true},
		{"string wrong", Param{Name: "p", Type: TypeString}, 3.0, false},
		{"bool ok", Param{Name: "p", Type: TypeBoolean}, true, true},
		{"bool wrong", Param{Name: "p", Type: TypeBoolean}, "true", false},
		{"integer from json", Param{Name: "p", Type: TypeInteger}, float64(4), true},
		{"integer fractional", Param{Name: "p", Type: TypeInteger}, 4.5, false},
		{"number accepts int", Param{Name: "p", Type: TypeNumber}, 4, true},
		{"number accepts float", Param{Name: "p", Type: TypeNumber}, 4.5, true},
		{"object ok", Param{Name: "p", Type: TypeObject}, map[string]any{"a": 1}, true},
		{"object wrong", Param{Name: "p", Type: TypeObject}, []any{1}, false},
		{"array ok", Param{Name: "p", Type: TypeArray}, []any{1, 2}, true},
		{"null optional", Param{Name: "p", Type: TypeString}, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &Descriptor{
				Name:    "probe",
				Params:  []Param{tc.param},
				Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
			}
			_, err := d.ValidateArgs(map[string]any{"p": tc.value})
			if tc.ok && err != nil {
				t.Errorf("ValidateArgs rejected %v: %v", tc.value, err)
			}
			if !tc.ok && err == nil {
				t.Errorf("ValidateArgs accepted %v for type %s", tc.value, tc.param.Type)
			}
		})
	}
}

func TestValidateArgs_NullRequiredRejected(t *testing.T) {
	d := &Descriptor{
		Name:    "probe",
		Params:  []Param{{Name: "p", Type: TypeString, Required: true}},
		Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
	}
	if _, err := d.ValidateArgs(map[string]any{"p": nil}); err == nil {
		t.Error("ValidateArgs accepted null for a required argument")
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoDescriptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, err := r.Lookup("echo")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if d.Name != "echo" {
		t.Errorf("Lookup returned %q, want %q", d.Name, "echo")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoDescriptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := r.Register(echoDescriptor())
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("second Register returned %v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("nope")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Lookup returned %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"one", "two", "three"}
	for _, n := range names {
		d := echoDescriptor()
		d.Name = n
		if err := r.Register(d); err != nil {
			t.Fatalf("Register %q: %v", n, err)
		}
	}

	got := r.List()
	if len(got) != len(names) {
		t.Fatalf("List returned %d descriptors, want %d", len(got), len(names))
	}
	for i, d := range got {
		if d.Name != names[i] {
			t.Errorf("List[%d] = %q, want %q", i, d.Name, names[i])
		}
	}
}

func TestRegister_InvalidDescriptors(t *testing.T) {
	tests := []struct {
		name string
		desc *Descriptor
	}{
		{"empty name", &Descriptor{Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}},
		{"nil handler", &Descriptor{Name: "x"}},
		{"bad param type", &Descriptor{
			Name:    "x",
			Params:  []Param{{Name: "p", Type: "uuid"}},
			Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
		}},
		{"required with default", &Descriptor{
			Name:    "x",
			Params:  []Param{{Name: "p", Type: TypeString, Required: true, Default: "d"}},
			Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
		}},
		{"duplicate param", &Descriptor{
			Name: "x",
			Params: []Param{
				{Name: "p", Type: TypeString},
				{Name: "p", Type: TypeString},
			},
			Handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			if err := r.Register(tc.desc); err == nil {
				t.Error("Register accepted an invalid descriptor")
			}
		})
	}
}
