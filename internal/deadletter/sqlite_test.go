package deadletter

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteSinkRecordsAndListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "dead.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	if err := sink.Record(ctx, Entry{Task: "notify", Reason: "db down", Payload: []byte(`{"user_id":"u1"}`), CreatedAt: at}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(ctx, Entry{Task: "viewer_refresh", Reason: "queue full"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Task != "viewer_refresh" || entries[1].Task != "notify" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Task, entries[1].Task)
	}
	if !entries[1].CreatedAt.Equal(at) || string(entries[1].Payload) != `{"user_id":"u1"}` {
		t.Fatalf("entry not preserved: %+v", entries[1])
	}
}

func TestSQLiteSinkReopensExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dead.db")

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = first.Record(ctx, Entry{Task: "notify", Reason: "boom"})
	_ = first.Close()

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	entries, err := second.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected entry to survive reopen, got %d", len(entries))
	}
}
