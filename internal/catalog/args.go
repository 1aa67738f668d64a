package catalog

import (
	"errors"

	"github.com/bananabit/fluxgate/internal/store"
)

// The helpers below read values from an argument mapping that has already
// been validated against the tool schema (types checked, defaults filled).
// Numeric JSON values arrive as float64.

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func argInt(args map[string]any, name string) int {
	switch n := args[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func argFloat(args map[string]any, name string) float64 {
	switch n := args[name].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
