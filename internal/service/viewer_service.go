package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// ViewerService tracks who is looking at a ticket. Rows are refreshed
// periodically by connected clients; readers only trust rows seen within
// the visibility window, so a missed leave ages out on its own.
type ViewerService struct {
	window  time.Duration
	viewers repository.ViewerRepository
	tickets repository.TicketRepository
	channel events.Channel
	clock   clock.Clock
	logger  *zap.Logger
}

// ViewerDependencies bundles collaborators for ViewerService.
type ViewerDependencies struct {
	ViewerRepo repository.ViewerRepository
	TicketRepo repository.TicketRepository
	Channel    events.Channel
	Clock      clock.Clock
	Logger     *zap.Logger
}

// NewViewerService constructs the service with the given visibility window.
func NewViewerService(window time.Duration, deps ViewerDependencies) *ViewerService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ViewerService{
		window:  window,
		viewers: deps.ViewerRepo,
		tickets: deps.TicketRepo,
		channel: deps.Channel,
		clock:   deps.Clock,
		logger:  deps.Logger,
	}
}

// Window is how long a viewer row stays visible without a refresh.
func (s *ViewerService) Window() time.Duration { return s.window }

// Enter registers the caller as viewing the ticket.
func (s *ViewerService) Enter(ctx context.Context, session domain.Session, ticketID string) error {
	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return err
	}
	return s.touch(ctx, session, ticketID, events.ViewerEntered)
}

// Refresh extends the caller's viewer row. Callers must have entered first.
func (s *ViewerService) Refresh(ctx context.Context, session domain.Session, ticketID string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if !isUUID(ticketID) {
		return errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return s.touch(ctx, session, ticketID, events.ViewerRefreshed)
}

func (s *ViewerService) touch(ctx context.Context, session domain.Session, ticketID, action string) error {
	viewer := domain.TicketViewer{
		TicketID: ticketID,
		UserID:   session.EffectiveUserID,
		LastSeen: s.clock.Now(),
	}
	if err := s.viewers.Upsert(ctx, viewer); err != nil {
		return errorutil.NewInternalError(err)
	}
	s.publish(ctx, viewer, action)
	return nil
}

// Leave removes the caller's viewer row.
func (s *ViewerService) Leave(ctx context.Context, session domain.Session, ticketID string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if !isUUID(ticketID) {
		return errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err := s.viewers.Delete(ctx, ticketID, session.EffectiveUserID); err != nil {
		return errorutil.NewInternalError(err)
	}
	s.publish(ctx, domain.TicketViewer{
		TicketID: ticketID,
		UserID:   session.EffectiveUserID,
		LastSeen: s.clock.Now(),
	}, events.ViewerLeft)
	return nil
}

// Active lists users seen on the ticket within the window, one entry per
// user, most recent first, without the caller.
func (s *ViewerService) Active(ctx context.Context, session domain.Session, ticketID string) ([]domain.TicketViewer, error) {
	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return nil, err
	}
	rows, err := s.viewers.ListSince(ctx, ticketID, s.clock.Now().Add(-s.window))
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return activeViewers(rows, session.EffectiveUserID), nil
}

func activeViewers(rows []domain.TicketViewer, self string) []domain.TicketViewer {
	latest := make(map[string]domain.TicketViewer, len(rows))
	for _, row := range rows {
		if row.UserID == self {
			continue
		}
		if prev, ok := latest[row.UserID]; !ok || row.LastSeen.After(prev.LastSeen) {
			latest[row.UserID] = row
		}
	}
	result := make([]domain.TicketViewer, 0, len(latest))
	for _, v := range latest {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastSeen.Equal(result[j].LastSeen) {
			return result[i].LastSeen.After(result[j].LastSeen)
		}
		return result[i].UserID < result[j].UserID
	})
	return result
}

// SweepStale deletes rows older than the window and announces each one.
func (s *ViewerService) SweepStale(ctx context.Context) (int, error) {
	removed, err := s.viewers.DeleteBefore(ctx, s.clock.Now().Add(-s.window))
	if err != nil {
		return 0, err
	}
	for _, v := range removed {
		s.publish(ctx, v, events.ViewerExpired)
	}
	return len(removed), nil
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (s *ViewerService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepStale(ctx)
			if err != nil {
				s.logger.Warn("viewer sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Debug("stale viewers removed", zap.Int("count", n))
			}
		}
	}
}

func (s *ViewerService) publish(ctx context.Context, viewer domain.TicketViewer, action string) {
	if s.channel == nil {
		return
	}
	evt := events.ViewerChanged{
		TicketID: viewer.TicketID,
		UserID:   viewer.UserID,
		Action:   action,
		LastSeen: viewer.LastSeen,
	}
	if err := s.channel.Publish(ctx, events.ViewersTopic(viewer.TicketID), evt); err != nil {
		s.logger.Warn("publish viewer change failed",
			zap.String("ticket_id", viewer.TicketID),
			zap.String("action", action),
			zap.Error(err))
	}
}
