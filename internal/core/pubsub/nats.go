package pubsub

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsConnect is a variable to allow mocking in tests.
var natsConnect = func(url string) (*nats.Conn, error) {
	return nats.Connect(url, nats.MaxReconnects(-1))
}

// NATSBus carries events over core NATS. Invalidation events are idempotent
// fire-and-forget notifications, so at-most-once core delivery is enough;
// no stream persistence is involved.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSBus connects to the NATS server.
func NewNATSBus(url, prefix string) (*NATSBus, error) {
	conn, err := natsConnect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBus{conn: conn, prefix: prefix}, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.prefix != "" {
		subject = b.prefix + "." + subject
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(pattern string, h Handler) (func(), error) {
	if b.prefix != "" {
		pattern = b.prefix + "." + pattern
	}
	sub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		h(m.Subject, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", pattern, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains the connection so queued events still reach their handlers.
func (b *NATSBus) Close() error {
	return b.conn.Drain()
}
