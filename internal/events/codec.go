package events

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("events: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("events: CBOR decoder initialization failed: " + err.Error())
	}
}

// wireEnvelope is the transport form of Envelope. The payload stays raw
// until Kind selects the variant to decode into.
type wireEnvelope struct {
	ID         string          `cbor:"id"`
	Topic      string          `cbor:"topic"`
	Kind       string          `cbor:"kind"`
	OccurredAt time.Time       `cbor:"occurred_at"`
	Payload    cbor.RawMessage `cbor:"payload"`
}

// EncodeEnvelope serializes env for a transport.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	payload, err := encMode.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", env.Kind, err)
	}
	return encMode.Marshal(wireEnvelope{
		ID:         env.ID,
		Topic:      string(env.Topic),
		Kind:       string(env.Kind),
		OccurredAt: env.OccurredAt,
		Payload:    payload,
	})
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	event, err := decodePayload(Kind(wire.Kind), wire.Payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         wire.ID,
		Topic:      Topic(wire.Topic),
		Kind:       Kind(wire.Kind),
		OccurredAt: wire.OccurredAt,
		Event:      event,
	}, nil
}

func decodePayload(kind Kind, raw []byte) (Event, error) {
	switch kind {
	case KindMessageInserted:
		return decodeInto[MessageInserted](kind, raw)
	case KindMessageUpdated:
		return decodeInto[MessageUpdated](kind, raw)
	case KindTicketUpdated:
		return decodeInto[TicketUpdated](kind, raw)
	case KindViewerChanged:
		return decodeInto[ViewerChanged](kind, raw)
	case KindPresenceSynced:
		return decodeInto[PresenceSynced](kind, raw)
	case KindNotificationCreated:
		return decodeInto[NotificationCreated](kind, raw)
	}
	return nil, fmt.Errorf("decode envelope: unknown kind %q", kind)
}

func decodeInto[T Event](kind Kind, raw []byte) (Event, error) {
	var event T
	if err := decMode.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return event, nil
}
