package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
)

var errStore = errors.New("store unavailable")

// errUUIDSyntax is what postgres returns for a malformed key on a uuid
// column (SQLSTATE 22P02). It is not pgx.ErrNoRows.
var errUUIDSyntax = errors.New("invalid input syntax for type uuid")

func checkUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errUUIDSyntax
	}
	return nil
}

type fakeTickets struct {
	mu      sync.Mutex
	clock   clock.Clock
	next    int64
	tickets map[string]domain.Ticket
	history map[string][]domain.TicketStatusHistory
}

func newFakeTickets(c clock.Clock) *fakeTickets {
	return &fakeTickets{
		clock:   c,
		tickets: make(map[string]domain.Ticket),
		history: make(map[string][]domain.TicketStatusHistory),
	}
}

func (f *fakeTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	now := f.clock.Now()
	ticket.ID = uuid.NewString()
	ticket.Number = f.next
	ticket.Status = domain.TicketStatusOpen
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f *fakeTickets) ApplyTransition(_ context.Context, rec repository.TransitionRecord) (*domain.Ticket, *domain.TicketStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[rec.TicketID]
	if !ok {
		return nil, nil, pgx.ErrNoRows
	}
	if rec.Expected != nil && *rec.Expected != t.Status {
		return nil, nil, repository.ErrStaleStatus
	}
	if rec.Allow != nil {
		if err := rec.Allow(t.Status, rec.NewStatus); err != nil {
			return nil, nil, err
		}
	}
	now := f.clock.Now()
	old := t.Status
	h := domain.TicketStatusHistory{
		ID:        uuid.NewString(),
		TicketID:  t.ID,
		OldStatus: &old,
		NewStatus: rec.NewStatus,
		ChangedBy: rec.ChangedBy,
		Notes:     rec.Notes,
		CreatedAt: now,
	}
	f.history[t.ID] = append(f.history[t.ID], h)

	t.Status = rec.NewStatus
	t.UpdatedAt = now
	// Same as the CASE ... COALESCE(resolved_at, NOW()) and
	// COALESCE(closed_at, NOW()) update in ticketRepository.ApplyTransition:
	// the first stamp wins and reopening never clears it.
	if rec.NewStatus == domain.TicketStatusResolved && t.ResolvedAt == nil {
		stamp := now
		t.ResolvedAt = &stamp
	}
	if rec.NewStatus == domain.TicketStatusClosed && t.ClosedAt == nil {
		stamp := now
		t.ClosedAt = &stamp
	}
	f.tickets[t.ID] = t
	return &t, &h, nil
}

func (f *fakeTickets) UpdateAssignee(_ context.Context, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t.AssignedTo = assigneeID
	t.UpdatedAt = f.clock.Now()
	f.tickets[ticketID] = t
	return &t, nil
}

func (f *fakeTickets) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TicketStatusHistory(nil), f.history[ticketID]...), nil
}

type fakeMessages struct {
	mu        sync.Mutex
	clock     clock.Clock
	messages  []domain.TicketMessage
	createErr error
}

func (f *fakeMessages) Create(_ context.Context, msg *domain.TicketMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = f.clock.Now()
	stored := *msg
	stored.Attachments = nil
	f.messages = append(f.messages, stored)
	return nil
}

func (f *fakeMessages) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.TicketMessage
	for _, m := range f.messages {
		if m.TicketID == ticketID {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// MarkRead follows ticketMessageRepository.MarkRead: status <> 'read' AND
// sender_id IS DISTINCT FROM the reader.
func (f *fakeMessages) MarkRead(_ context.Context, ticketID, readerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for i := range f.messages {
		m := &f.messages[i]
		if m.TicketID == ticketID && m.Status != domain.MessageStatusRead && !m.AuthoredBy(readerID) {
			m.Status = domain.MessageStatusRead
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (f *fakeMessages) MarkDelivered(_ context.Context, ticketID, recipientID string, messageIDs []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	var ids []string
	for i := range f.messages {
		m := &f.messages[i]
		if m.TicketID == ticketID && wanted[m.ID] && m.Status == domain.MessageStatusSent && !m.AuthoredBy(recipientID) {
			m.Status = domain.MessageStatusDelivered
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (f *fakeMessages) status(id string) domain.MessageStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return m.Status
		}
	}
	return ""
}

func (f *fakeMessages) system(ticketID string) []domain.TicketMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.TicketMessage
	for _, m := range f.messages {
		if m.TicketID == ticketID && m.IsSystemMessage {
			result = append(result, m)
		}
	}
	return result
}

type fakeAttachments struct {
	mu      sync.Mutex
	refs    []domain.AttachmentReference
	failFor string
}

func (f *fakeAttachments) Create(_ context.Context, a *domain.AttachmentReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && a.FileName == f.failFor {
		return errStore
	}
	a.ID = uuid.NewString()
	f.refs = append(f.refs, *a)
	return nil
}

func (f *fakeAttachments) ListByMessages(_ context.Context, ids []string) ([]domain.AttachmentReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var result []domain.AttachmentReference
	for _, r := range f.refs {
		if wanted[r.TicketMessageID] {
			result = append(result, r)
		}
	}
	return result, nil
}

type fakeSurveys struct {
	answered map[string]bool
}

func (f *fakeSurveys) Exists(_ context.Context, ticketID, userID string) (bool, error) {
	return f.answered[ticketID+"/"+userID], nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []NotifyInput
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, input NotifyInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, input)
	return nil
}

func (f *fakeNotifier) inputs() []NotifyInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotifyInput(nil), f.sent...)
}

type fakeViewers struct {
	mu   sync.Mutex
	rows map[string]domain.TicketViewer
}

func newFakeViewers() *fakeViewers {
	return &fakeViewers{rows: make(map[string]domain.TicketViewer)}
}

func (f *fakeViewers) Upsert(_ context.Context, v domain.TicketViewer) error {
	if err := checkUUID(v.TicketID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := v.TicketID + "/" + v.UserID
	if prev, ok := f.rows[key]; ok && prev.LastSeen.After(v.LastSeen) {
		v.LastSeen = prev.LastSeen
	}
	f.rows[key] = v
	return nil
}

func (f *fakeViewers) Delete(_ context.Context, ticketID, userID string) error {
	if err := checkUUID(ticketID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, ticketID+"/"+userID)
	return nil
}

func (f *fakeViewers) ListSince(_ context.Context, ticketID string, since time.Time) ([]domain.TicketViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.TicketViewer
	for _, v := range f.rows {
		if v.TicketID == ticketID && !v.LastSeen.Before(since) {
			result = append(result, v)
		}
	}
	return result, nil
}

func (f *fakeViewers) DeleteBefore(_ context.Context, before time.Time) ([]domain.TicketViewer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed []domain.TicketViewer
	for key, v := range f.rows {
		if v.LastSeen.Before(before) {
			removed = append(removed, v)
			delete(f.rows, key)
		}
	}
	return removed, nil
}

type fakeNotifications struct {
	mu        sync.Mutex
	clock     clock.Clock
	rows      []domain.Notification
	createErr error
}

func (f *fakeNotifications) Create(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = uuid.NewString()
	n.CreatedAt = f.clock.Now()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotifications) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Notification
	for i := len(f.rows) - 1; i >= 0 && len(result) < limit; i-- {
		n := f.rows[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id, userID string) (bool, error) {
	if err := checkUUID(id); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			f.rows[i].IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.rows {
		if f.rows[i].UserID == userID && !f.rows[i].IsRead {
			f.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}
