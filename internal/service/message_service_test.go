package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryBlobs) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryBlobs) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (m *memoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type messageFixture struct {
	clock       *clock.FakeClock
	tickets     *fakeTickets
	messages    *fakeMessages
	attachments *fakeAttachments
	blobs       *memoryBlobs
	notifier    *fakeNotifier
	channel     *events.MemoryChannel
	svc         *MessageService
	ticket      *domain.Ticket
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &messageFixture{
		clock:       c,
		tickets:     newFakeTickets(c),
		messages:    &fakeMessages{clock: c},
		attachments: &fakeAttachments{},
		blobs:       &memoryBlobs{objects: map[string][]byte{}},
		notifier:    &fakeNotifier{},
		channel:     events.NewMemoryChannel(events.Options{Clock: c}),
	}
	f.svc = NewMessageService(MessageDependencies{
		TicketRepo:     f.tickets,
		MessageRepo:    f.messages,
		AttachmentRepo: f.attachments,
		Blobs:          f.blobs,
		Notifier:       f.notifier,
		Channel:        f.channel,
	})
	assignee := agentA.UserID
	f.ticket = &domain.Ticket{Priority: domain.TicketPriorityHigh, CreatedBy: requester.UserID, AssignedTo: &assignee}
	if err := f.tickets.Create(context.Background(), f.ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	t.Cleanup(func() { _ = f.channel.Close() })
	return f
}

func (f *messageFixture) send(t *testing.T, session domain.Session, body string) *domain.TicketMessage {
	t.Helper()
	f.clock.Advance(time.Second)
	msg, err := f.svc.Send(context.Background(), session, SendInput{TicketID: f.ticket.ID, Body: body})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return msg
}

func TestMarkReadUpdatesUnreadOnceAndIsIdempotent(t *testing.T) {
	f := newMessageFixture(t)
	var ids []string
	for _, body := range []string{"one", "two", "three"} {
		ids = append(ids, f.send(t, requester, body).ID)
	}

	changed, err := f.svc.MarkRead(context.Background(), agentA, f.ticket.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if changed != 3 {
		t.Fatalf("expected 3 messages marked read, got %d", changed)
	}
	for _, id := range ids {
		if got := f.messages.status(id); got != domain.MessageStatusRead {
			t.Fatalf("message %s status %s, want read", id, got)
		}
	}

	changed, err = f.svc.MarkRead(context.Background(), agentA, f.ticket.ID)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if changed != 0 {
		t.Fatalf("second pass changed %d messages", changed)
	}
}

func TestMarkReadSkipsOwnMessagesAndPublishesOnlyOnChange(t *testing.T) {
	f := newMessageFixture(t)
	own := f.send(t, agentA, "from agent")
	sub, err := f.channel.Subscribe(context.Background(), events.TicketTopic(f.ticket.ID), events.KindFilter(events.KindMessageUpdated))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	changed, err := f.svc.MarkRead(context.Background(), agentA, f.ticket.ID)
	if err != nil || changed != 0 {
		t.Fatalf("own messages must stay unread: changed=%d err=%v", changed, err)
	}
	select {
	case env := <-sub.Events():
		t.Fatalf("unexpected event %+v", env)
	default:
	}
	if f.messages.status(own.ID) != domain.MessageStatusSent {
		t.Fatal("own message changed status")
	}

	if _, err := f.svc.MarkRead(context.Background(), requester, f.ticket.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	select {
	case env := <-sub.Events():
		updated := env.Event.(events.MessageUpdated)
		if updated.Status != "read" || len(updated.MessageIDs) != 1 || updated.MessageIDs[0] != own.ID {
			t.Fatalf("unexpected update %+v", updated)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message_updated event")
	}
}

func TestMessageStatusNeverMovesBackward(t *testing.T) {
	f := newMessageFixture(t)
	msg := f.send(t, requester, "hello")
	ctx := context.Background()

	if n, err := f.svc.Acknowledge(ctx, agentA, f.ticket.ID, []string{msg.ID}); err != nil || n != 1 {
		t.Fatalf("ack: n=%d err=%v", n, err)
	}
	if f.messages.status(msg.ID) != domain.MessageStatusDelivered {
		t.Fatal("expected delivered after ack")
	}
	if _, err := f.svc.MarkRead(ctx, agentA, f.ticket.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, err := f.svc.Acknowledge(ctx, agentA, f.ticket.ID, []string{msg.ID}); err != nil || n != 0 {
		t.Fatalf("ack after read must be a no-op: n=%d err=%v", n, err)
	}
	if f.messages.status(msg.ID) != domain.MessageStatusRead {
		t.Fatalf("status regressed to %s", f.messages.status(msg.ID))
	}
}

func TestAcknowledgeIgnoresOwnMessagesAndRejectsBadIDs(t *testing.T) {
	f := newMessageFixture(t)
	msg := f.send(t, requester, "mine")
	ctx := context.Background()

	if n, _ := f.svc.Acknowledge(ctx, requester, f.ticket.ID, []string{msg.ID, msg.ID}); n != 0 {
		t.Fatalf("sender acknowledged own message: %d", n)
	}
	if _, err := f.svc.Acknowledge(ctx, agentA, f.ticket.ID, []string{"not-a-uuid"}); !errorutil.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendNotifiesOtherSide(t *testing.T) {
	cases := []struct {
		name      string
		sender    domain.Session
		assignee  *string
		recipient string
	}{
		{name: "creator to assignee", sender: requester, assignee: &agentA.UserID, recipient: agentA.UserID},
		{name: "staff to creator", sender: agentA, assignee: &agentA.UserID, recipient: requester.UserID},
		{name: "unassigned ticket", sender: requester, assignee: nil, recipient: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newMessageFixture(t)
			if _, err := f.tickets.UpdateAssignee(context.Background(), f.ticket.ID, tc.assignee); err != nil {
				t.Fatalf("assign: %v", err)
			}
			f.send(t, tc.sender, "ping")
			sent := f.notifier.inputs()
			if tc.recipient == "" {
				if len(sent) != 0 {
					t.Fatalf("expected no notification, got %+v", sent)
				}
				return
			}
			if len(sent) != 1 || sent[0].UserID != tc.recipient || sent[0].Type != domain.NotificationNewMessage {
				t.Fatalf("unexpected notifications %+v", sent)
			}
		})
	}
}

func TestSendRequiresExactlyOneBody(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	clip := &VoiceClip{ContentType: "audio/webm", Size: 3, Body: bytes.NewReader([]byte("abc"))}

	if _, err := f.svc.Send(ctx, requester, SendInput{TicketID: f.ticket.ID, Body: "  "}); !errorutil.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("empty message: %v", err)
	}
	if _, err := f.svc.Send(ctx, requester, SendInput{TicketID: f.ticket.ID, Body: "hi", Voice: clip}); !errorutil.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("text and voice: %v", err)
	}
}

func TestSendVoiceNoteStoresBlob(t *testing.T) {
	f := newMessageFixture(t)
	clip := &VoiceClip{ContentType: "audio/webm", Size: 5, Body: strings.NewReader("audio")}

	msg, err := f.svc.Send(context.Background(), requester, SendInput{TicketID: f.ticket.ID, Voice: clip})
	if err != nil {
		t.Fatalf("send voice: %v", err)
	}
	if msg.VoiceNoteRef == nil || !strings.HasPrefix(*msg.VoiceNoteRef, "voice-notes/"+f.ticket.ID+"/") {
		t.Fatalf("unexpected voice ref %v", msg.VoiceNoteRef)
	}
	if string(f.blobs.objects[*msg.VoiceNoteRef]) != "audio" {
		t.Fatal("voice clip not uploaded")
	}
	if got := f.notifier.inputs(); len(got) != 1 || got[0].Body != "Voice message" {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestSendDiscardsVoiceWhenInsertFails(t *testing.T) {
	f := newMessageFixture(t)
	f.messages.createErr = errStore
	clip := &VoiceClip{ContentType: "audio/ogg", Size: 5, Body: strings.NewReader("audio")}

	if _, err := f.svc.Send(context.Background(), requester, SendInput{TicketID: f.ticket.ID, Voice: clip}); err == nil {
		t.Fatal("expected failure")
	}
	if len(f.blobs.objects) != 0 {
		t.Fatal("voice blob left behind after failed insert")
	}
	if len(f.notifier.inputs()) != 0 {
		t.Fatal("failed send must not notify")
	}
}

func TestSendLinksAttachmentsIndependently(t *testing.T) {
	f := newMessageFixture(t)
	f.attachments.failFor = "broken.pdf"

	msg, err := f.svc.Send(context.Background(), requester, SendInput{
		TicketID: f.ticket.ID,
		Body:     "see files",
		Attachments: []AttachmentInput{
			{StorageKey: "att/1", FileName: "log.txt", MimeType: "text/plain", SizeBytes: 10},
			{StorageKey: "att/2", FileName: "broken.pdf", MimeType: "application/pdf", SizeBytes: 20},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].FileName != "log.txt" || msg.Attachments[0].TicketMessageID != msg.ID {
		t.Fatalf("unexpected attachments %+v", msg.Attachments)
	}

	list, err := f.svc.List(context.Background(), agentA, f.ticket.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || len(list[0].Attachments) != 1 {
		t.Fatalf("unexpected thread %+v", list)
	}
}

func TestListReturnsCreationOrder(t *testing.T) {
	f := newMessageFixture(t)
	f.send(t, requester, "first")
	f.send(t, agentA, "second")
	f.send(t, requester, "third")

	list, err := f.svc.List(context.Background(), requester, f.ticket.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var bodies []string
	for _, m := range list {
		bodies = append(bodies, m.Body)
	}
	if strings.Join(bodies, ",") != "first,second,third" {
		t.Fatalf("unexpected order %v", bodies)
	}
}
