// Package events publishes blob change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventType names a blob change.
type EventType string

const (
	BlobUploaded EventType = "blob.uploaded"
	BlobDeleted  EventType = "blob.deleted"
)

// BlobEvent is the JSON payload published for each change.
type BlobEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Container string    `json:"container"`
	Key       string    `json:"key"`
	ETag      string    `json:"etag,omitempty"`
	Size      int64     `json:"size,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes blob events. Implementations must not block the caller
// on delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event BlobEvent)
	Close() error
}

// publisher is the subset of *nats.Conn used for publishing.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSNotifier publishes events on <prefix>.<event type>.
type NATSNotifier struct {
	conn   publisher
	closer func()
	prefix string
	logger zerolog.Logger
}

// NewNotifier connects to NATS, or returns a no-op notifier when url is empty.
func NewNotifier(url, subjectPrefix string, logger zerolog.Logger) (Notifier, error) {
	if url == "" {
		return Nop{}, nil
	}

	nc, err := nats.Connect(url,
		nats.Name("depot-dataservice"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	n := newNATSNotifier(nc, subjectPrefix, logger)
	n.closer = nc.Close
	return n, nil
}

func newNATSNotifier(conn publisher, subjectPrefix string, logger zerolog.Logger) *NATSNotifier {
	return &NATSNotifier{
		conn:   conn,
		prefix: subjectPrefix,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subject returns the subject an event type is published on.
func (n *NATSNotifier) Subject(t EventType) string {
	if n.prefix == "" {
		return string(t)
	}
	return n.prefix + "." + string(t)
}

func (n *NATSNotifier) Notify(ctx context.Context, event BlobEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Msg("marshal blob event")
		return
	}

	subject := n.Subject(event.Type)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Warn().Err(err).
			Str("subject", subject).
			Str("container", event.Container).
			Str("key", event.Key).
			Msg("publish blob event failed")
	}
}

func (n *NATSNotifier) Close() error {
	if n.closer != nil {
		n.closer()
	}
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, BlobEvent) {}
func (Nop) Close() error                      { return nil }
