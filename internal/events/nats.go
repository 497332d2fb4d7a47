package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsChannel carries events between processes over NATS core subjects.
// Envelopes are CBOR-encoded; each subscription owns one NATS
// subscription, whose callbacks run sequentially, so per-topic order from
// a publisher is kept.
type NatsChannel struct {
	conn   *nats.Conn
	prefix string
	opts   Options

	mu     sync.Mutex
	subs   map[*Subscription]*nats.Subscription
	closed bool
}

// NewNatsChannel constructs a Channel on an established connection. The
// connection stays owned by the caller.
func NewNatsChannel(conn *nats.Conn, subjectPrefix string, opts Options) *NatsChannel {
	return &NatsChannel{
		conn:   conn,
		prefix: subjectPrefix,
		opts:   opts.withDefaults(),
		subs:   make(map[*Subscription]*nats.Subscription),
	}
}

// Publish encodes event and publishes it on the topic's subject.
func (c *NatsChannel) Publish(_ context.Context, topic Topic, event Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		Kind:       event.Kind(),
		OccurredAt: c.opts.Clock.Now(),
		Event:      event,
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := c.conn.Publish(topic.Subject(c.prefix), data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.opts.Metrics.EventPublished(string(env.Kind))
	return nil
}

// Subscribe opens a NATS subscription on the topic's subject.
func (c *NatsChannel) Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	sub := newSubscription(topic, filter, c.opts)
	subject := topic.Subject(c.prefix)
	natsSub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		env, err := DecodeEnvelope(msg.Data)
		if err != nil {
			c.opts.Logger.Warn("drop undecodable event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		sub.deliver(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.subs[sub] = natsSub
	sub.release = func() {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		if err := natsSub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			c.opts.Logger.Debug("unsubscribe failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	sub.bindContext(ctx)
	return sub, nil
}

// Close ends every subscription. The NATS connection is left open.
func (c *NatsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	all := make([]*Subscription, 0, len(c.subs))
	for sub := range c.subs {
		all = append(all, sub)
	}
	c.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}
