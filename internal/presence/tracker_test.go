package presence

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
)

func newTestTracker(t *testing.T) (*Tracker, *clock.FakeClock, *events.MemoryChannel) {
	t.Helper()
	c := clock.Fake(base)
	ch := events.NewMemoryChannel(events.Options{Clock: c})
	t.Cleanup(func() { _ = ch.Close() })
	tracker := NewTracker(
		TrackerConfig{GlobalThreshold: 60 * time.Second, TicketThreshold: 90 * time.Second},
		TrackerDependencies{Store: NewMemoryStore(c), Channel: ch, Clock: c},
	)
	return tracker, c, ch
}

func TestTwoTabsCollapseToOneViewer(t *testing.T) {
	ctx := context.Background()
	tracker, c, _ := newTestTracker(t)
	scope := domain.TicketScope("T")

	tabOne := domain.NewSession("user-a", domain.RoleAgent)
	tabTwo := domain.NewSession("user-a", domain.RoleAgent)
	if err := tracker.Heartbeat(ctx, tabOne, scope, domain.ActivityOnline); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	c.Advance(3 * time.Second)
	if err := tracker.Heartbeat(ctx, tabTwo, scope, domain.ActivityOnline); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	roster, err := tracker.Roster(ctx, scope, "observer")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster.Others) != 1 || roster.Others[0].UserID != "user-a" {
		t.Fatalf("expected exactly one entry for user-a, got %v", userIDs(roster.Others))
	}
}

func TestSilentUserDropsFromGlobalRoster(t *testing.T) {
	ctx := context.Background()
	tracker, c, _ := newTestTracker(t)

	if err := tracker.Heartbeat(ctx, domain.NewSession("quiet"), domain.GlobalScope, domain.ActivityOnline); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	c.Advance(65 * time.Second)

	roster, err := tracker.Roster(ctx, domain.GlobalScope, "observer")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster.Others) != 0 {
		t.Fatalf("expected empty roster, got %v", userIDs(roster.Others))
	}
}

func TestHeartbeatBroadcastsFullScopeState(t *testing.T) {
	ctx := context.Background()
	tracker, _, ch := newTestTracker(t)

	sub, err := ch.Subscribe(ctx, events.GlobalPresenceTopic, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = tracker.Heartbeat(ctx, domain.NewSession("u1"), domain.GlobalScope, domain.ActivityOnline)
	_ = tracker.Heartbeat(ctx, domain.NewSession("u2"), domain.GlobalScope, domain.ActivityBusy)

	var last events.PresenceSynced
	for i := 0; i < 2; i++ {
		select {
		case env := <-sub.Events():
			last = env.Event.(events.PresenceSynced)
		case <-time.After(time.Second):
			t.Fatal("missing presence snapshot")
		}
	}
	if last.Scope != "global" || len(last.Entries) != 2 {
		t.Fatalf("expected snapshot of both users, got %+v", last)
	}
}

func TestLeaveRemovesRecord(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTestTracker(t)
	session := domain.NewSession("u1")

	_ = tracker.Heartbeat(ctx, session, domain.GlobalScope, domain.ActivityOnline)
	if err := tracker.Leave(ctx, session, domain.GlobalScope); err != nil {
		t.Fatalf("leave: %v", err)
	}
	roster, _ := tracker.Roster(ctx, domain.GlobalScope, "observer")
	if len(roster.Others) != 0 {
		t.Fatalf("expected no entries after leave, got %v", userIDs(roster.Others))
	}
}

func TestHeartbeatRejectsUnknownState(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	if err := tracker.Heartbeat(context.Background(), domain.NewSession("u1"), domain.GlobalScope, "sleepy"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestStoreAndRosterShareThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	tracker, c, _ := newTestTracker(t)

	if err := tracker.Heartbeat(ctx, domain.NewSession("edge"), domain.GlobalScope, domain.ActivityOnline); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	c.Advance(60 * time.Second)
	roster, err := tracker.Roster(ctx, domain.GlobalScope, "observer")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster.Others) != 1 {
		t.Fatalf("record exactly at the threshold must stay live, got %v", userIDs(roster.Others))
	}

	c.Advance(time.Millisecond)
	roster, err = tracker.Roster(ctx, domain.GlobalScope, "observer")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster.Others) != 0 {
		t.Fatalf("record past the threshold must be dropped, got %v", userIDs(roster.Others))
	}
}
