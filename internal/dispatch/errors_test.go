package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bananabit/fluxgate/internal/tool"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", Errorf(KindCapacity, "full"), KindCapacity},
		{"wrapped classified", fmt.Errorf("outer: %w", Errorf(KindTimeout, "slow")), KindTimeout},
		{"unknown tool sentinel", fmt.Errorf("lookup: %w", tool.ErrUnknownTool), KindUnknownTool},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("whatever"), KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstream, cause)

	if !errors.Is(err, cause) {
		t.Error("Wrap lost the cause chain")
	}
	de, ok := AsError(err)
	if !ok {
		t.Fatal("Wrap did not produce a dispatch error")
	}
	if de.Kind != KindUpstream {
		t.Errorf("kind = %q, want %q", de.Kind, KindUpstream)
	}
}
