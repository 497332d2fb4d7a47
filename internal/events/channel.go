package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
)

// DefaultBufferSize is the per-subscription event buffer.
const DefaultBufferSize = 64

// ErrChannelClosed is returned by operations on a closed Channel.
var ErrChannelClosed = errors.New("events: channel closed")

// Channel is a topic-scoped broadcast. Delivery is at-least-once and
// ordered per topic. Publish never blocks on slow subscribers.
type Channel interface {
	Publish(ctx context.Context, topic Topic, event Event) error
	Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error)
	Close() error
}

// Filter selects which envelopes a subscription receives. Nil accepts all.
type Filter func(Envelope) bool

// KindFilter accepts only the given kinds.
func KindFilter(kinds ...Kind) Filter {
	allowed := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return func(env Envelope) bool {
		_, ok := allowed[env.Kind]
		return ok
	}
}

// Options configures a Channel implementation.
type Options struct {
	BufferSize int
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Subscription receives the envelopes of one topic. When the buffer
// overflows, envelopes are dropped and the subscription is flagged so the
// consumer can re-fetch a snapshot.
type Subscription struct {
	topic   Topic
	filter  Filter
	ch      chan Envelope
	done    chan struct{}
	resync  atomic.Bool
	once    sync.Once
	release func()
	metrics *observability.Metrics
}

func newSubscription(topic Topic, filter Filter, opts Options) *Subscription {
	return &Subscription{
		topic:   topic,
		filter:  filter,
		ch:      make(chan Envelope, opts.BufferSize),
		done:    make(chan struct{}),
		metrics: opts.Metrics,
	}
}

// bindContext closes the subscription when ctx ends.
func (s *Subscription) bindContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic { return s.topic }

// Events delivers envelopes. It is never closed; select on Done as well.
func (s *Subscription) Events() <-chan Envelope { return s.ch }

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// NeedsResync reports whether envelopes were dropped since the last call,
// and clears the flag.
func (s *Subscription) NeedsResync() bool { return s.resync.Swap(false) }

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
}

// deliver hands env to the consumer without blocking. It returns false
// once the subscription is closed.
func (s *Subscription) deliver(env Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	if s.filter != nil && !s.filter(env) {
		return true
	}
	select {
	case s.ch <- env:
	default:
		s.resync.Store(true)
		s.metrics.EventDropped(string(env.Kind))
	}
	return true
}
