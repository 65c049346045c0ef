package eventbus

import (
	"context"
	"log/slog"
)

// Publisher sends serialized domain events to a message broker.
type Publisher interface {
	// Publish sends a payload with the given routing key.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// NoopPublisher discards events. Used in local mode when no broker is
// available; event loss here never affects business outcomes because the
// outbox retains every message.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that logs and drops events.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("event dropped by noop publisher", "routing_key", routingKey, "size", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }
