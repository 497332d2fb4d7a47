package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryChannel fans events out in-process. Publish delivers
// synchronously under a lock, so every subscriber of a topic observes the
// same order.
type MemoryChannel struct {
	opts   Options
	mu     sync.Mutex
	subs   map[Topic]map[*Subscription]struct{}
	closed bool
}

// NewMemoryChannel constructs an in-process Channel.
func NewMemoryChannel(opts Options) *MemoryChannel {
	return &MemoryChannel{
		opts: opts.withDefaults(),
		subs: make(map[Topic]map[*Subscription]struct{}),
	}
}

// Publish delivers event to current subscribers of topic.
func (c *MemoryChannel) Publish(_ context.Context, topic Topic, event Event) error {
	env := Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		Kind:       event.Kind(),
		OccurredAt: c.opts.Clock.Now(),
		Event:      event,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	for sub := range c.subs[topic] {
		if !sub.deliver(env) {
			delete(c.subs[topic], sub)
		}
	}
	c.opts.Metrics.EventPublished(string(env.Kind))
	return nil
}

// Subscribe registers a subscription on topic.
func (c *MemoryChannel) Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error) {
	sub := newSubscription(topic, filter, c.opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[*Subscription]struct{})
	}
	c.subs[topic][sub] = struct{}{}
	c.mu.Unlock()

	sub.release = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set := c.subs[topic]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(c.subs, topic)
			}
		}
	}
	sub.bindContext(ctx)
	return sub, nil
}

// Subscribers returns the number of live subscriptions on topic.
func (c *MemoryChannel) Subscribers(topic Topic) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[topic])
}

// Close ends every subscription.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var all []*Subscription
	for _, set := range c.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	c.subs = make(map[Topic]map[*Subscription]struct{})
	c.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}
