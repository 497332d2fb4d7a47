package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
)

func requireReceive(t *testing.T, sub *Subscription) Envelope {
	t.Helper()
	select {
	case env := <-sub.Events():
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event on %s", sub.Topic())
		return Envelope{}
	}
}

func requireEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case env := <-sub.Events():
		t.Fatalf("unexpected %s event on %s", env.Kind, sub.Topic())
	default:
	}
}

func TestMemoryChannelDeliversInPublishOrder(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel(Options{Clock: clock.Fake(time.Unix(100, 0))})
	defer ch.Close()

	first, err := ch.Subscribe(ctx, TicketTopic("t1"), nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := ch.Subscribe(ctx, TicketTopic("t1"), nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		evt := MessageInserted{ID: fmt.Sprintf("m%d", i), TicketID: "t1", Status: "sent"}
		if err := ch.Publish(ctx, TicketTopic("t1"), evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for _, sub := range []*Subscription{first, second} {
		for i := 0; i < 5; i++ {
			env := requireReceive(t, sub)
			msg, ok := env.Event.(MessageInserted)
			if !ok {
				t.Fatalf("expected MessageInserted, got %T", env.Event)
			}
			if want := fmt.Sprintf("m%d", i); msg.ID != want {
				t.Fatalf("expected %s, got %s", want, msg.ID)
			}
			if !env.OccurredAt.Equal(time.Unix(100, 0)) {
				t.Fatalf("unexpected occurred_at %v", env.OccurredAt)
			}
		}
	}
}

func TestMemoryChannelIsolatesTopics(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel(Options{})
	defer ch.Close()

	sub, _ := ch.Subscribe(ctx, TicketTopic("t1"), nil)
	if err := ch.Publish(ctx, TicketTopic("t2"), TicketUpdated{TicketID: "t2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	requireEmpty(t, sub)
}

func TestMemoryChannelFilter(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel(Options{})
	defer ch.Close()

	sub, _ := ch.Subscribe(ctx, TicketTopic("t1"), KindFilter(KindTicketUpdated))
	_ = ch.Publish(ctx, TicketTopic("t1"), MessageInserted{ID: "m1"})
	_ = ch.Publish(ctx, TicketTopic("t1"), TicketUpdated{TicketID: "t1", Status: "resolved"})

	env := requireReceive(t, sub)
	if env.Kind != KindTicketUpdated {
		t.Fatalf("expected ticket_updated, got %s", env.Kind)
	}
	requireEmpty(t, sub)
}

func TestMemoryChannelOverflowMarksResync(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel(Options{BufferSize: 2})
	defer ch.Close()

	sub, _ := ch.Subscribe(ctx, TicketTopic("t1"), nil)
	for i := 0; i < 3; i++ {
		if err := ch.Publish(ctx, TicketTopic("t1"), MessageInserted{ID: fmt.Sprint(i)}); err != nil {
			t.Fatalf("publish must not fail on a slow subscriber: %v", err)
		}
	}
	if !sub.NeedsResync() {
		t.Fatal("expected resync flag after overflow")
	}
	if sub.NeedsResync() {
		t.Fatal("resync flag must clear once read")
	}
	requireReceive(t, sub)
	requireReceive(t, sub)
	requireEmpty(t, sub)
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	ch := NewMemoryChannel(Options{})
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := ch.Subscribe(ctx, GlobalPresenceTopic, nil)
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not close after context cancel")
	}
	deadline := time.Now().Add(time.Second)
	for ch.Subscribers(GlobalPresenceTopic) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription was not released")
		}
		time.Sleep(time.Millisecond)
	}
	sub.Close()
}

func TestClosedChannelRejects(t *testing.T) {
	ch := NewMemoryChannel(Options{})
	sub, _ := ch.Subscribe(context.Background(), TicketTopic("t1"), nil)
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("close must end subscriptions")
	}
	if err := ch.Publish(context.Background(), TicketTopic("t1"), TicketUpdated{}); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	if _, err := ch.Subscribe(context.Background(), TicketTopic("t1"), nil); err != ErrChannelClosed {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}
