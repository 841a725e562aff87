package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/book-expert/events"
	"github.com/nats-io/nats.go"
)

// NatsMirror publishes events to "{prefix}.{event name}".
type NatsMirror struct {
	conn   *nats.Conn
	prefix string
}

var _ Publisher = (*NatsMirror)(nil)

type mirrorMessage struct {
	Header events.EventHeader `json:"header"`
	Event  string             `json:"event"`
	Data   map[string]any     `json:"data"`
}

// NewNatsMirror creates a mirror publishing under prefix.
func NewNatsMirror(conn *nats.Conn, prefix string) *NatsMirror {
	return &NatsMirror{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (m *NatsMirror) Subject(event string) string {
	return m.prefix + "." + event
}

// Publish sends event as JSON.
func (m *NatsMirror) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(mirrorMessage{Header: event.Header, Event: event.Name, Data: event.Data})
	if err != nil {
		return fmt.Errorf("failed to marshal mirrored event: %w", err)
	}

	err = m.conn.Publish(m.Subject(event.Name), payload)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.Subject(event.Name), err)
	}

	return nil
}
