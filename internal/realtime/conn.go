package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/presence"
	"github.com/spec-kit/helpdesk-realtime/internal/worker"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

const teardownTimeout = 3 * time.Second

var errTopicDenied = errorutil.NewForbidden("topic not allowed")

// view is one ticket the connection has open.
type view struct {
	cancel context.CancelFunc
	hb     *presence.Heartbeater
}

// conn is the state of one client connection. Everything it starts is
// bound to its context and stops on teardown.
type conn struct {
	g       *Gateway
	id      string
	session domain.Session
	t       Transport
	logger  *zap.Logger

	monitor *presence.ActivityMonitor
	global  *presence.Heartbeater
	dedup   *events.Deduper
	out     chan ServerFrame

	mu    sync.Mutex
	subs  map[events.Topic]*events.Subscription
	views map[string]*view
	wg    sync.WaitGroup
}

func newConn(g *Gateway, id string, session domain.Session, t Transport) *conn {
	c := &conn{
		g:       g,
		id:      id,
		session: session,
		t:       t,
		logger:  g.deps.Logger.With(zap.String("conn_id", id), zap.String("user_id", session.EffectiveUserID)),
		monitor: presence.NewActivityMonitor(g.deps.Clock, g.cfg.AwayAfter),
		dedup:   events.NewDeduper(g.cfg.DedupCapacity),
		out:     make(chan ServerFrame, g.cfg.SendBuffer),
		subs:    make(map[events.Topic]*events.Subscription),
		views:   make(map[string]*view),
	}
	c.global = presence.NewHeartbeater(g.deps.Tracker, session, domain.GlobalScope, c.monitor, g.cfg.HeartbeatInterval)
	return c
}

func (c *conn) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer c.teardown(cancel)

	c.logger.Info("realtime connection opened")
	c.spawn(func() { c.writeLoop(ctx) })
	c.spawn(func() { c.global.Run(ctx) })
	c.spawn(func() {
		<-ctx.Done()
		_ = c.t.Close(closeGoingAway, "connection closed")
	})

	for {
		raw, err := c.t.Recv()
		if err != nil {
			return
		}
		var frame ClientFrame
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			c.send(ctx, errorFrame("VALIDATION_FAILED", "malformed frame"))
			continue
		}
		if err := c.handle(ctx, frame); err != nil {
			domainErr := errorutil.ToDomainError(err)
			c.send(ctx, errorFrame(domainErr.Code, domainErr.Message))
		}
	}
}

func (c *conn) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// teardown stops every goroutine of the connection, then leaves the
// tickets it was viewing.
func (c *conn) teardown(cancel context.CancelFunc) {
	c.mu.Lock()
	viewed := make([]string, 0, len(c.views))
	for ticketID := range c.views {
		viewed = append(viewed, ticketID)
	}
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), teardownTimeout)
	defer done()
	for _, ticketID := range viewed {
		if !c.g.releaseView(c.session.EffectiveUserID, ticketID) {
			continue
		}
		if err := c.g.deps.Viewers.Leave(ctx, c.session, ticketID); err != nil {
			c.logger.Debug("viewer leave failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	c.logger.Info("realtime connection closed")
}

func (c *conn) handle(ctx context.Context, frame ClientFrame) error {
	switch frame.Type {
	case FrameSubscribe:
		return c.subscribe(ctx, frame.Topic)
	case FrameUnsubscribe:
		return c.unsubscribe(frame.Topic)
	case FrameActivity:
		if _, changed := c.monitor.Input(); changed {
			c.kick()
		}
		return nil
	case FrameVisibility:
		if frame.Visible != nil && *frame.Visible {
			c.monitor.Foreground()
			c.kick()
		}
		return nil
	case FrameStatus:
		if !frame.State.Valid() {
			return errorutil.NewValidationError("invalid state", map[string]any{"state": frame.State})
		}
		c.monitor.SetManual(frame.State)
		c.kick()
		return nil
	case FrameAck:
		_, err := c.g.deps.Messages.Acknowledge(ctx, c.session, frame.TicketID, frame.IDs)
		return err
	case FrameView:
		return c.view(ctx, frame.TicketID)
	case FrameLeave:
		return c.leave(ctx, frame.TicketID)
	}
	return errorutil.NewValidationError("unknown frame type", map[string]any{"type": frame.Type})
}

func (c *conn) kick() {
	c.global.Kick()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.views {
		v.hb.Kick()
	}
}

// authorize allows notification topics only for the effective user and
// ticket topics only for tickets the session may see.
func (c *conn) authorize(ctx context.Context, topic events.Topic) error {
	id := topic.ID()
	switch topic {
	case events.GlobalPresenceTopic:
		return nil
	case events.NotificationsTopic(id):
		if id != c.session.EffectiveUserID {
			return errTopicDenied
		}
		return nil
	case events.TicketTopic(id), events.ViewersTopic(id):
		_, err := c.g.deps.Tickets.GetTicket(ctx, c.session, id)
		return err
	}
	return errTopicDenied
}

func (c *conn) subscribe(ctx context.Context, raw string) error {
	topic, err := events.ParseTopic(raw)
	if err != nil {
		return errorutil.NewValidationError(err.Error(), nil)
	}
	if err := c.authorize(ctx, topic); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[topic]; ok {
		return nil
	}
	sub, err := c.g.deps.Channel.Subscribe(ctx, topic, nil)
	if err != nil {
		return errorutil.NewInternalError(err)
	}
	c.subs[topic] = sub
	c.spawn(func() { c.pump(ctx, sub) })
	return nil
}

func (c *conn) unsubscribe(raw string) error {
	c.mu.Lock()
	sub, ok := c.subs[events.Topic(raw)]
	delete(c.subs, events.Topic(raw))
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
	return nil
}

// pump forwards one subscription to the client. A flagged overflow is
// reported as a resync frame ahead of the next event.
func (c *conn) pump(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-sub.Done():
			return
		case env := <-sub.Events():
			if sub.NeedsResync() {
				c.g.deps.Metrics.Resync()
				c.send(ctx, resyncFrame(sub.Topic()))
			}
			if c.dedup.Seen(env) {
				continue
			}
			c.send(ctx, eventFrame(env))
		}
	}
}

func (c *conn) view(ctx context.Context, ticketID string) error {
	if err := c.g.deps.Viewers.Enter(ctx, c.session, ticketID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.views[ticketID]; ok {
		return nil
	}
	c.g.acquireView(c.session.EffectiveUserID, ticketID)
	vctx, cancel := context.WithCancel(ctx)
	v := &view{
		cancel: cancel,
		hb:     presence.NewHeartbeater(c.g.deps.Tracker, c.session, domain.TicketScope(ticketID), c.monitor, c.g.cfg.HeartbeatInterval),
	}
	c.views[ticketID] = v
	c.spawn(func() { v.hb.Run(vctx) })
	c.spawn(func() { c.refreshViewer(vctx, ticketID) })
	return nil
}

func (c *conn) leave(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	v, ok := c.views[ticketID]
	delete(c.views, ticketID)
	c.mu.Unlock()
	userID := c.session.EffectiveUserID
	if ok {
		v.cancel()
		if !c.g.releaseView(userID, ticketID) {
			return nil
		}
	} else if c.g.viewHeld(userID, ticketID) {
		return nil
	}
	return c.g.deps.Viewers.Leave(ctx, c.session, ticketID)
}

// refreshViewer keeps the viewer row of ticketID fresh until ctx ends.
func (c *conn) refreshViewer(ctx context.Context, ticketID string) {
	ticker := c.g.deps.Clock.NewTicker(c.g.cfg.ViewerRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx, ticketID)
		}
	}
}

// refresh writes the viewer row again. vctx is the view's context; a
// queued refresh that runs after the view ended is skipped so it cannot
// bring back a row that leave already deleted.
func (c *conn) refresh(vctx context.Context, ticketID string) {
	session := c.session
	run := func(ctx context.Context) error {
		if vctx.Err() != nil {
			return nil
		}
		return c.g.deps.Viewers.Refresh(ctx, session, ticketID)
	}
	if c.g.deps.Queue == nil {
		if err := run(vctx); err != nil {
			c.logger.Warn("viewer refresh failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
		return
	}
	err := c.g.deps.Queue.Enqueue(vctx, worker.Task{
		Name:    "viewer.refresh",
		Payload: map[string]string{"ticket_id": ticketID, "user_id": session.EffectiveUserID},
		Run:     run,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("viewer refresh not queued", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// send queues frame for the writer, blocking while the client is slow.
func (c *conn) send(ctx context.Context, frame ServerFrame) {
	select {
	case c.out <- frame:
	case <-ctx.Done():
	}
}

func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.out:
			data, err := json.Marshal(frame)
			if err != nil {
				c.logger.Warn("encode frame failed", zap.String("type", frame.Type), zap.Error(err))
				continue
			}
			if err := c.t.Send(string(data)); err != nil {
				c.logger.Debug("send failed", zap.Error(err))
				return
			}
		}
	}
}
