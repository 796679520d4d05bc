package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the change stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := Connect(url, "lqq-importer")
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:       changedStream,
		Subjects:   []string{changedSubject},
		Retention:  nats.LimitsPolicy,
		MaxAge:     24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishFacilitiesChanged announces an import. The run id doubles as the
// JetStream message id so a retried activity is not delivered twice.
func (p *Publisher) PublishFacilitiesChanged(ctx context.Context, event *domain.FacilitiesChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if event.RunID != "" {
		opts = append(opts, nats.MsgId(event.RunID))
	}
	_, err = p.js.Publish(subjectFor(event.RunID), data, opts...)
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
