package presence

import (
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func rec(user string, age time.Duration, state domain.ActivityState) domain.PresenceRecord {
	return domain.PresenceRecord{
		Scope:         domain.GlobalScope,
		UserID:        user,
		LastHeartbeat: base.Add(-age),
		State:         state,
	}
}

func userIDs(records []domain.PresenceRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.UserID
	}
	return out
}

func TestComputeRosterDropsStaleRecords(t *testing.T) {
	records := []domain.PresenceRecord{
		rec("fresh", 10*time.Second, domain.ActivityOnline),
		rec("stale", 65*time.Second, domain.ActivityOnline),
		rec("edge", 60*time.Second, domain.ActivityOnline),
	}
	roster := ComputeRoster(records, base, 60*time.Second, "me", true)
	got := userIDs(roster.Others)
	if len(got) != 2 || got[0] != "edge" || got[1] != "fresh" {
		t.Fatalf("unexpected roster %v", got)
	}
}

func TestComputeRosterExcludesStaleForAnyThreshold(t *testing.T) {
	ages := []time.Duration{0, time.Second, 59 * time.Second, 61 * time.Second, 5 * time.Minute, time.Hour}
	thresholds := []time.Duration{time.Second, 30 * time.Second, 60 * time.Second, 90 * time.Second, 10 * time.Minute}
	for _, threshold := range thresholds {
		records := make([]domain.PresenceRecord, 0, len(ages))
		for i, age := range ages {
			records = append(records, rec(string(rune('a'+i)), age, domain.ActivityOnline))
		}
		for _, r := range ComputeRoster(records, base, threshold, "", false).Others {
			if r.Age(base) > threshold {
				t.Fatalf("threshold %v: record aged %v survived", threshold, r.Age(base))
			}
		}
	}
}

func TestComputeRosterOneEntryPerUser(t *testing.T) {
	older := rec("u1", 20*time.Second, domain.ActivityAway)
	newer := rec("u1", 5*time.Second, domain.ActivityOnline)
	roster := ComputeRoster([]domain.PresenceRecord{older, newer}, base, time.Minute, "observer", false)
	if len(roster.Others) != 1 {
		t.Fatalf("expected one entry, got %d", len(roster.Others))
	}
	if roster.Others[0].State != domain.ActivityOnline {
		t.Fatalf("expected most recent record to win, got %s", roster.Others[0].State)
	}
}

func TestComputeRosterSortsByStateAndExcludesSelf(t *testing.T) {
	records := []domain.PresenceRecord{
		rec("zed", time.Second, domain.ActivityAway),
		rec("amy", time.Second, domain.ActivityBusy),
		rec("me", time.Second, domain.ActivityOnline),
		rec("bob", time.Second, domain.ActivityOnline),
		rec("ann", time.Second, domain.ActivityOnline),
	}
	roster := ComputeRoster(records, base, time.Minute, "me", true)
	got := userIDs(roster.Others)
	want := []string{"ann", "bob", "amy", "zed"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if roster.Total != 5 {
		t.Fatalf("expected total 5 including self, got %d", roster.Total)
	}
}
