package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber. Every gateway instance needs
// every change, so it uses a plain subscription rather than a shared consumer.
type Subscriber struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := Connect(url, "lqq-gateway")
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeFacilitiesChanged invokes handler for every change event.
func (s *Subscriber) SubscribeFacilitiesChanged(ctx context.Context, handler func(ctx context.Context, event *domain.FacilitiesChanged) error) error {
	sub, err := s.conn.Subscribe(changedSubject, func(msg *nats.Msg) {
		var event domain.FacilitiesChanged
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("dropping malformed change event", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, &event); err != nil {
			slog.Warn("change event handler failed", "run_id", event.RunID, "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// IsConnected reports whether the connection is currently up.
func (s *Subscriber) IsConnected() bool {
	return s.conn.IsConnected()
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()
	_ = s.conn.Drain()
}
