package tablesim

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/appetiteclub/tableside/internal/protocol"
)

// FanoutTopic is the subject prefix table broadcasts are mirrored on so
// several tablesim instances serve the same tables consistently.
const FanoutTopic = "tables.realtime"

// Envelope wraps one table broadcast for the bus: the instance id lets
// receivers skip their own traffic, the token addresses the table.
type Envelope struct {
	Instance string           `json:"instance"`
	Token    string           `json:"token"`
	Message  protocol.Message `json:"message"`
}

// HandlerFunc consumes one fanned-out broadcast.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Publisher mirrors local broadcasts to the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Subscriber receives broadcasts from sibling instances.
type Subscriber interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

// NATSPublisher publishes fanout envelopes over NATS, one subject per table
// token under FanoutTopic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cannot encode fanout envelope: %w", err)
	}
	return p.conn.Publish(fmt.Sprintf("%s.%s", FanoutTopic, env.Token), data)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives fanout envelopes over NATS.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string) (*NATSSubscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSubscriber{conn: conn}, nil
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, handler HandlerFunc) error {
	_, err := s.conn.Subscribe(FanoutTopic+".>", func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			// Malformed envelopes come from a broken sibling; drop them.
			return
		}
		_ = handler(ctx, env)
	})
	return err
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
