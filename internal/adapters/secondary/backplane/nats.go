package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	apperrors "github.com/meridianapp/realtime-gateway/internal/core/errors"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// NATSConfig configures the broker-backed adapter.
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// envelope is the wire form of one published event. Every instance's
// subscriber receives all envelopes, including the publisher's own, and
// re-delivers locally through its gateway filter.
type envelope struct {
	Rooms []domain.RoomTarget `json:"rooms"`
	Event domain.WireEvent    `json:"event"`
}

// NATS is the broker-backed backplane: events published by the instance
// that saw the mutation reach sockets held by any instance. Broker loss is
// surfaced through Healthy; there is no fallback to single-instance mode.
type NATS struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ ports.Backplane = (*NATS)(nil)

// NewNATS connects to the broker. The connection reconnects on its own up
// to the configured limit; permanent closure flips Healthy to false.
func NewNATS(cfg NATSConfig, logger *slog.Logger) (*NATS, error) {
	logger = logger.With("component", "backplane", "kind", "nats")

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Error("nats connection closed")
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	logger.Info("connected to nats", "url", cfg.URL, "subject", cfg.Subject)

	return &NATS{
		conn:    conn,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

// Publish serializes the event and its target rooms onto the shared
// subject. Concurrent publishers do not serialize on the adapter.
func (n *NATS) Publish(_ context.Context, rooms []domain.RoomTarget, event domain.WireEvent) error {
	if n.conn.IsClosed() {
		return apperrors.ErrBackplaneClosed
	}

	data, err := json.Marshal(envelope{Rooms: rooms, Event: event})
	if err != nil {
		return fmt.Errorf("marshaling backplane envelope: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing to nats: %w", err)
	}
	return nil
}

// Subscribe wires delivered envelopes into the local gateway.
func (n *NATS) Subscribe(handler ports.DeliveryFunc) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			n.logger.Error("failed to decode backplane envelope", "error", err)
			return
		}
		handler(env.Rooms, env.Event)
	})
	if err != nil {
		return fmt.Errorf("subscribing to nats subject %q: %w", n.subject, err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}

// Healthy reports broker connectivity (reconnecting counts as unhealthy).
func (n *NATS) Healthy() bool {
	return n.conn.IsConnected()
}

// Close drains outstanding deliveries and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("failed to unsubscribe", "error", err)
		}
	}

	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
