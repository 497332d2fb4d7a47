package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
)

// TrackerConfig holds the liveness thresholds per scope kind.
type TrackerConfig struct {
	GlobalThreshold time.Duration
	TicketThreshold time.Duration
}

// TrackerDependencies bundles Tracker collaborators.
type TrackerDependencies struct {
	Store   Store
	Channel events.Channel
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Tracker records heartbeats and broadcasts the full state of a scope
// after every change.
type Tracker struct {
	cfg     TrackerConfig
	store   Store
	channel events.Channel
	clock   clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics

	// holders counts the running Heartbeaters per (scope, user) in this
	// process; tabs of one user share a single record.
	mu      sync.Mutex
	holders map[holderKey]int
}

type holderKey struct {
	scope  string
	userID string
}

// NewTracker constructs a Tracker.
func NewTracker(cfg TrackerConfig, deps TrackerDependencies) *Tracker {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		store:   deps.Store,
		channel: deps.Channel,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		holders: make(map[holderKey]int),
	}
}

// Threshold returns how long a heartbeat in scope stays live.
func (t *Tracker) Threshold(scope domain.Scope) time.Duration {
	if scope.IsGlobal() {
		return t.cfg.GlobalThreshold
	}
	return t.cfg.TicketThreshold
}

// Heartbeat upserts the session's record in scope and broadcasts the
// scope's state.
func (t *Tracker) Heartbeat(ctx context.Context, session domain.Session, scope domain.Scope, state domain.ActivityState) error {
	if !state.Valid() {
		return fmt.Errorf("unknown activity state %q", state)
	}
	rec := domain.PresenceRecord{
		Scope:         scope,
		UserID:        session.EffectiveUserID,
		LastHeartbeat: t.clock.Now(),
		State:         state,
		Profile:       session.Profile,
	}
	if err := t.store.Upsert(ctx, rec, t.Threshold(scope)); err != nil {
		return fmt.Errorf("store heartbeat: %w", err)
	}
	kind := "ticket"
	if scope.IsGlobal() {
		kind = "global"
	}
	t.metrics.Heartbeat(kind)
	t.broadcast(ctx, scope)
	return nil
}

// Leave drops the session's record from scope and broadcasts the change.
func (t *Tracker) Leave(ctx context.Context, session domain.Session, scope domain.Scope) error {
	if err := t.store.Remove(ctx, scope, session.EffectiveUserID); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	t.broadcast(ctx, scope)
	return nil
}

// Roster returns the live users of scope as seen by self.
func (t *Tracker) Roster(ctx context.Context, scope domain.Scope, self string) (Roster, error) {
	records, err := t.store.List(ctx, scope)
	if err != nil {
		return Roster{}, fmt.Errorf("list presence: %w", err)
	}
	return ComputeRoster(records, t.clock.Now(), t.Threshold(scope), self, scope.IsGlobal()), nil
}

func (t *Tracker) broadcast(ctx context.Context, scope domain.Scope) {
	records, err := t.store.List(ctx, scope)
	if err != nil {
		t.logger.Warn("presence snapshot failed", zap.String("scope", scope.Key()), zap.Error(err))
		return
	}
	if err := t.channel.Publish(ctx, events.PresenceTopic(scope), events.NewPresenceSynced(scope, records)); err != nil {
		t.logger.Warn("presence publish failed", zap.String("scope", scope.Key()), zap.Error(err))
	}
}

func (t *Tracker) attach(scope domain.Scope, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holders[holderKey{scope.Key(), userID}]++
}

// detach reports whether the caller was the last holder of the record.
func (t *Tracker) detach(scope domain.Scope, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := holderKey{scope.Key(), userID}
	t.holders[key]--
	if t.holders[key] > 0 {
		return false
	}
	delete(t.holders, key)
	return true
}
