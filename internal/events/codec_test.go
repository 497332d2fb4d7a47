package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeEnvelopeRestoresVariant(t *testing.T) {
	assignee := "agent-1"
	env := Envelope{
		ID:         "e1",
		Topic:      TicketTopic("t1"),
		Kind:       KindTicketUpdated,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Event:      TicketUpdated{TicketID: "t1", Status: "resolved", OldStatus: "in_progress", AssignedTo: &assignee},
	}
	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	updated, ok := got.Event.(TicketUpdated)
	if !ok {
		t.Fatalf("expected TicketUpdated, got %T", got.Event)
	}
	if updated.Status != "resolved" || updated.AssignedTo == nil || *updated.AssignedTo != assignee {
		t.Fatalf("payload mismatch: %+v", updated)
	}
	if got.ID != "e1" || got.Topic != env.Topic || !got.OccurredAt.Equal(env.OccurredAt) {
		t.Fatalf("envelope mismatch: %+v", got)
	}
}

func TestMessageInsertedCarriesVoiceNoteRef(t *testing.T) {
	ref := "voice-notes/t1/abc.webm"
	data, err := json.Marshal(MessageInserted{ID: "m1", TicketID: "t1", VoiceNoteRef: &ref})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"voice_note_ref":"voice-notes/t1/abc.webm"`) {
		t.Fatalf("storage key not under voice_note_ref: %s", data)
	}
	if strings.Contains(string(data), "voice_note_url") {
		t.Fatalf("storage key must not be presented as a url: %s", data)
	}
}

func TestDecodeEnvelopeRejectsUnknownKind(t *testing.T) {
	data, err := encMode.Marshal(wireEnvelope{ID: "x", Kind: "bogus", Payload: []byte{0xa0}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeEnvelope(data); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDeduperDropsRedelivery(t *testing.T) {
	d := NewDeduper(2)
	if d.Seen(Envelope{ID: "a"}) {
		t.Fatal("first delivery reported as duplicate")
	}
	if !d.Seen(Envelope{ID: "a"}) {
		t.Fatal("redelivery not detected")
	}
	d.Seen(Envelope{ID: "b"})
	d.Seen(Envelope{ID: "c"})
	if d.Seen(Envelope{ID: "a"}) {
		t.Fatal("evicted id should be treated as new")
	}
}
