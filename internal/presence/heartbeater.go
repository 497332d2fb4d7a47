package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

const leaveTimeout = 2 * time.Second

// Heartbeater keeps one session present in one scope until its context
// ends. The record is removed once the last Heartbeater of that user and
// scope stops; while another tab is still running it stays.
type Heartbeater struct {
	tracker  *Tracker
	session  domain.Session
	scope    domain.Scope
	monitor  *ActivityMonitor
	interval time.Duration
	logger   *zap.Logger
	kick     chan struct{}
}

// NewHeartbeater constructs a Heartbeater; call Run to start it.
func NewHeartbeater(tracker *Tracker, session domain.Session, scope domain.Scope, monitor *ActivityMonitor, interval time.Duration) *Heartbeater {
	return &Heartbeater{
		tracker:  tracker,
		session:  session,
		scope:    scope,
		monitor:  monitor,
		interval: interval,
		logger:   tracker.logger.With(zap.String("user_id", session.EffectiveUserID), zap.String("scope", scope.Key())),
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate heartbeat.
func (h *Heartbeater) Kick() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Run beats once immediately, then on every tick or kick. Failures are
// logged and the loop keeps going. When ctx ends and no other Heartbeater
// holds the record, it is removed on a best-effort basis.
func (h *Heartbeater) Run(ctx context.Context) {
	h.tracker.attach(h.scope, h.session.EffectiveUserID)
	ticker := h.tracker.clock.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			if !h.tracker.detach(h.scope, h.session.EffectiveUserID) {
				return
			}
			leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
			if err := h.tracker.Leave(leaveCtx, h.session, h.scope); err != nil {
				h.logger.Debug("presence leave failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			h.beat(ctx)
		case <-h.kick:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.tracker.Heartbeat(ctx, h.session, h.scope, h.monitor.State()); err != nil {
		h.logger.Debug("heartbeat failed", zap.Error(err))
	}
}
