// Package events defines invocation lifecycle events and the publisher
// contract used by the dispatcher. Publishing is best-effort: event delivery
// never affects the outcome of an invocation.
package events

import (
	"context"
	"time"
)

// InvocationEvent is emitted once per dispatched invocation, after the
// invocation reaches a terminal state.
type InvocationEvent struct {
	CorrelationID string    `json:"correlationId"`
	Tool          string    `json:"tool"`
	Outcome       string    `json:"outcome"` // "success" or a failure kind
	DurationMs    int64     `json:"durationMs"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher delivers invocation events to an external consumer.
type Publisher interface {
	// PublishInvocation publishes one terminal invocation event. Errors are
	// logged by implementations; callers do not act on them.
	PublishInvocation(ctx context.Context, ev *InvocationEvent) error
}

// NoopPublisher discards all events. Used when no event stream is configured.
type NoopPublisher struct{}

// PublishInvocation implements [Publisher] by doing nothing.
func (NoopPublisher) PublishInvocation(context.Context, *InvocationEvent) error { return nil }
