package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/spec-kit/helpdesk-realtime"

// Metrics records service counters on the global OTel meter. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests      metric.Int64Counter
	requestTime   metric.Float64Histogram
	errors        metric.Int64Counter
	published     metric.Int64Counter
	dropped       metric.Int64Counter
	resyncs       metric.Int64Counter
	tasks         metric.Int64Counter
	transitions   metric.Int64Counter
	messages      metric.Int64Counter
	presenceBeats metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider. Call it
// after InitTelemetry so the instruments reach the Prometheus exporter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.requests, err = meter.Int64Counter("http_server_request_count",
		metric.WithDescription("Total number of HTTP requests"), metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.requestTime, err = meter.Float64Histogram("http_server_request_duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("http_server_error_count",
		metric.WithDescription("HTTP requests that ended in a domain error")); err != nil {
		return nil, err
	}
	if m.published, err = meter.Int64Counter("events_published_total",
		metric.WithDescription("Events published on the event channel")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("events_dropped_total",
		metric.WithDescription("Events dropped because a subscriber buffer was full")); err != nil {
		return nil, err
	}
	if m.resyncs, err = meter.Int64Counter("subscriber_resync_total",
		metric.WithDescription("Resync frames sent to realtime clients")); err != nil {
		return nil, err
	}
	if m.tasks, err = meter.Int64Counter("background_tasks_total",
		metric.WithDescription("Best-effort tasks by outcome")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("ticket_transitions_total",
		metric.WithDescription("Ticket status transitions by outcome")); err != nil {
		return nil, err
	}
	if m.messages, err = meter.Int64Counter("ticket_messages_total",
		metric.WithDescription("Ticket message operations")); err != nil {
		return nil, err
	}
	if m.presenceBeats, err = meter.Int64Counter("presence_heartbeats_total",
		metric.WithDescription("Presence heartbeats by scope kind")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest counts a served request and its latency.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	)
	ctx := context.Background()
	m.requests.Add(ctx, 1, attrs)
	m.requestTime.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordError counts a request that failed with the given error code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.String("error.code", code),
	))
}

// EventPublished counts a published event by kind.
func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// EventDropped counts an event a slow subscriber did not receive.
func (m *Metrics) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Resync counts a resync notice sent to a client.
func (m *Metrics) Resync() {
	if m == nil {
		return
	}
	m.resyncs.Add(context.Background(), 1)
}

// Task counts a background task outcome: enqueued, done, failed or dead_lettered.
func (m *Metrics) Task(name, outcome string) {
	if m == nil {
		return
	}
	m.tasks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("task", name),
		attribute.String("outcome", outcome),
	))
}

// Transition counts a status transition outcome: applied, rejected, conflict or partial.
func (m *Metrics) Transition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("to", to),
		attribute.String("outcome", outcome),
	))
}

// Messages counts message operations: sent, delivered or read.
func (m *Metrics) Messages(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messages.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("op", op)))
}

// Heartbeat counts a presence heartbeat.
func (m *Metrics) Heartbeat(scope string) {
	if m == nil {
		return
	}
	m.presenceBeats.Add(context.Background(), 1, metric.WithAttributes(attribute.String("scope", scope)))
}
