package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/spec-kit/helpdesk-realtime/internal/deadletter"
)

type memorySink struct {
	mu      sync.Mutex
	entries []deadletter.Entry
}

func (s *memorySink) Record(_ context.Context, entry deadletter.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) snapshot() []deadletter.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deadletter.Entry(nil), s.entries...)
}

func TestQueueRunsTasksOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	sink := &memorySink{}
	q := NewQueue(Config{Workers: 3, Buffer: 16}, sink, nil, nil)
	q.Start(context.Background())

	var runs atomic.Int32
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(context.Background(), Task{Name: "count", Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Stop()

	if runs.Load() != 10 {
		t.Fatalf("expected 10 runs, got %d", runs.Load())
	}
	if len(sink.snapshot()) != 0 {
		t.Fatal("successful tasks must not be dead-lettered")
	}
}

func TestQueueDeadLettersFailuresWithoutRetry(t *testing.T) {
	sink := &memorySink{}
	q := NewQueue(Config{Workers: 1, Buffer: 4}, sink, nil, nil)
	q.Start(context.Background())

	var attempts atomic.Int32
	_ = q.Enqueue(context.Background(), Task{
		Name:    "notify",
		Payload: map[string]string{"user_id": "u1"},
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("insert failed")
		},
	})
	_ = q.Enqueue(context.Background(), Task{Name: "explode", Run: func(context.Context) error {
		panic("boom")
	}})
	q.Stop()

	if attempts.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts.Load())
	}
	entries := sink.snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(entries))
	}
	if entries[0].Reason != "insert failed" || string(entries[0].Payload) != `{"user_id":"u1"}` {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if entries[1].Task != "explode" {
		t.Fatalf("expected panic to be dead-lettered, got %+v", entries[1])
	}
}

func TestQueueOverflowDeadLetters(t *testing.T) {
	sink := &memorySink{}
	q := NewQueue(Config{Workers: 1, Buffer: 1}, sink, nil, nil)

	noop := Task{Name: "noop", Run: func(context.Context) error { return nil }}
	if err := q.Enqueue(context.Background(), noop); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if entries := sink.snapshot(); len(entries) != 1 || entries[0].Reason != ErrQueueFull.Error() {
		t.Fatalf("expected overflow dead letter, got %+v", entries)
	}

	q.Start(context.Background())
	q.Stop()
	if err := q.Enqueue(context.Background(), noop); !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
}
