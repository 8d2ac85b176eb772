package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the part of *nats.Conn the forwarder uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSForwarder republishes bus events on NATS as "<prefix>.<event type>".
type NATSForwarder struct {
	conn   Conn
	prefix string
	logger zerolog.Logger
}

// DialNATS connects to url with a client name.
func DialNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSForwarder wraps an open connection.
func NewNATSForwarder(conn Conn, prefix string, logger zerolog.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = "skovkrogen"
	}
	return &NATSForwarder{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "nats").Logger(),
	}
}

// Attach subscribes the forwarder to every booking event on bus.
func (f *NATSForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Forward)
}

// Forward publishes a single event.
func (f *NATSForwarder) Forward(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := f.prefix + "." + event.Type
	if err := f.conn.Publish(subject, data); err != nil {
		f.logger.Error().Err(err).Str("subject", subject).Msg("publish failed")
		return err
	}
	f.logger.Debug().Str("subject", subject).Str("event_id", event.ID).Msg("event forwarded")
	return nil
}

// Close drains the connection.
func (f *NATSForwarder) Close() error {
	return f.conn.Drain()
}
