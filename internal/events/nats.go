package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when the configuration leaves the subject
// prefix empty.
const DefaultSubjectPrefix = "fluxgate"

// NATSPublisher publishes invocation events to a NATS subject of the form
// <prefix>.invocations.<tool>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher over an established NATS connection.
// An empty prefix falls back to [DefaultSubjectPrefix].
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Compile-time interface check.
var _ Publisher = (*NATSPublisher)(nil)

// PublishInvocation encodes ev as JSON and publishes it. Publish failures are
// logged and returned, but callers treat them as advisory.
func (p *NATSPublisher) PublishInvocation(_ context.Context, ev *InvocationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode invocation event: %w", err)
	}

	subject := p.prefix + ".invocations." + ev.Tool
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error("events: publish failed", "subject", subject, "err", err)
		return fmt.Errorf("events: publish to %s: %w", subject, err)
	}
	return nil
}
