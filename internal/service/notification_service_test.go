package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/deadletter"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/worker"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []deadletter.Entry
}

func (s *recordingSink) Record(_ context.Context, entry deadletter.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type notificationFixture struct {
	repo    *fakeNotifications
	channel *events.MemoryChannel
	queue   *worker.Queue
	sink    *recordingSink
	svc     *NotificationService
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &notificationFixture{
		repo:    &fakeNotifications{clock: c},
		channel: events.NewMemoryChannel(events.Options{Clock: c}),
		sink:    &recordingSink{},
	}
	f.queue = worker.NewQueue(worker.Config{Workers: 2, Buffer: 8, TaskTimeout: time.Second}, f.sink, nil, nil)
	f.queue.Start(context.Background())
	f.svc = NewNotificationService(NotificationDependencies{
		Repo:    f.repo,
		Channel: f.channel,
		Queue:   f.queue,
	})
	t.Cleanup(func() {
		f.queue.Stop()
		_ = f.channel.Close()
	})
	return f
}

func TestNotifyInsertsAndPublishesToRecipient(t *testing.T) {
	f := newNotificationFixture(t)
	sub, err := f.channel.Subscribe(context.Background(), events.NotificationsTopic("user-r"), nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ticketID := "ticket-1"
	err = f.svc.Notify(context.Background(), NotifyInput{
		UserID:   "user-r",
		Title:    "Ticket updated",
		Body:     "Ticket #1 is now Resolved",
		Type:     domain.NotificationTicketUpdated,
		TicketID: &ticketID,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case env := <-sub.Events():
		created, ok := env.Event.(events.NotificationCreated)
		if !ok || created.UserID != "user-r" || created.Title != "Ticket updated" || created.ID == "" {
			t.Fatalf("unexpected event %+v", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected one notification row, got %d", f.repo.count())
	}
}

func TestNotifyFailureIsDeadLetteredNotSurfaced(t *testing.T) {
	f := newNotificationFixture(t)
	f.repo.createErr = errStore

	if err := f.svc.Notify(context.Background(), NotifyInput{UserID: "user-r", Title: "x", Type: domain.NotificationNewMessage}); err != nil {
		t.Fatalf("insert failures must not reach the caller: %v", err)
	}
	f.queue.Stop()
	if f.sink.len() != 1 {
		t.Fatalf("expected one dead letter, got %d", f.sink.len())
	}
	if f.repo.count() != 0 {
		t.Fatal("failed insert must not be retried into a row")
	}
}

func TestNotifyValidatesRecipient(t *testing.T) {
	f := newNotificationFixture(t)
	if err := f.svc.Notify(context.Background(), NotifyInput{Title: "x"}); !errorutil.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkReadIsScopedToOwner(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	mine := &domain.Notification{UserID: requester.UserID, Title: "a"}
	theirs := &domain.Notification{UserID: agentA.UserID, Title: "b"}
	_ = f.repo.Create(ctx, mine)
	_ = f.repo.Create(ctx, theirs)

	if err := f.svc.MarkRead(ctx, requester, theirs.ID); !errorutil.IsCode(err, "NOT_FOUND") {
		t.Fatalf("marking another user's notification: %v", err)
	}
	if err := f.svc.MarkRead(ctx, requester, mine.ID); err != nil {
		t.Fatalf("mark own: %v", err)
	}
	unread, err := f.svc.List(ctx, agentA, true, 0)
	if err != nil || len(unread) != 1 {
		t.Fatalf("other user's notification must stay unread: %v %v", unread, err)
	}
}

func TestMarkAllReadTouchesOnlyCaller(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = f.repo.Create(ctx, &domain.Notification{UserID: requester.UserID, Title: "n"})
	}
	_ = f.repo.Create(ctx, &domain.Notification{UserID: agentA.UserID, Title: "n"})

	n, err := f.svc.MarkAllRead(ctx, requester)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 marked, got %d (%v)", n, err)
	}
	n, _ = f.svc.MarkAllRead(ctx, requester)
	if n != 0 {
		t.Fatalf("second pass marked %d", n)
	}
	unread, _ := f.svc.List(ctx, agentA, true, 10)
	if len(unread) != 1 {
		t.Fatalf("other user affected: %d unread", len(unread))
	}
}

func TestMarkReadMalformedIDIsNotFound(t *testing.T) {
	f := newNotificationFixture(t)
	if err := f.svc.MarkRead(context.Background(), requester, "42"); !errorutil.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
