package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/bananabit/fluxgate/internal/tool"
)

// Kind classifies a dispatch failure. Every error leaving the dispatcher
// carries exactly one kind; transports map kinds to response codes.
type Kind string

const (
	// KindUnknownTool means the invocation named a tool that is not
	// registered. Terminal; never retried.
	KindUnknownTool Kind = "unknown_tool"

	// KindValidation means the arguments did not satisfy the tool's schema.
	KindValidation Kind = "validation"

	// KindCapacity means no concurrency slot could be acquired within the
	// transport's discipline.
	KindCapacity Kind = "capacity"

	// KindTimeout means the per-invocation deadline elapsed before the
	// upstream responded.
	KindTimeout Kind = "timeout"

	// KindUpstream means the upstream API returned a non-2xx response,
	// failed at the transport level, or produced a malformed body.
	KindUpstream Kind = "upstream"

	// KindInternal covers unclassified faults. The message surfaced to
	// callers is generic; details go to the log only.
	KindInternal Kind = "internal"
)

// String returns the kind's wire name.
func (k Kind) String() string { return string(k) }

// Error is the failure variant of a dispatch result.
type Error struct {
	Kind    Kind
	Message string

	// cause is the wrapped underlying error, if any.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Errorf builds an *Error with a formatted message. Use %w to wrap a cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Message: err.Error(), cause: errors.Unwrap(err)}
}

// Wrap attaches a kind to err, preserving it as the cause.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

// AsError extracts a dispatch *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf reports the failure kind of err. Errors produced outside the
// dispatcher are classified by their chain: registry lookups map to
// [KindUnknownTool], deadline expiry to [KindTimeout], and anything else to
// [KindInternal].
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	switch {
	case errors.Is(err, tool.ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}
