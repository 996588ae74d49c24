package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "todo-api/api"
	todosSpanName    = "todos.request"
	todosEventName   = "todos.list"
	todosEventDomain = "todo-api"
	todosRoute       = "/api/v1/todos"
)

// todoRequestMetrics captures per-stage timings for the todo list route and
// emits one structured observability event per request: a span with
// attributes plus a mirrored logrus entry carrying the trace id.
type todoRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	todosReturned  int
	errorStage     string
}

func newTodoRequestMetrics(ctx context.Context, logger *log.Logger) (*todoRequestMetrics, context.Context) {
	m := &todoRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, todosSpanName)
	m.span = span
	return m, spanCtx
}

func (m *todoRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *todoRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *todoRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *todoRequestMetrics) SetTodosReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.todosReturned = count
}

func (m *todoRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the request: it closes the span and writes the mirrored log
// entry. It must be called exactly once per request.
func (m *todoRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", todosRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("todo.list.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("todo.list.todos_returned", m.todosReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("todo.list.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("todo.list.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("todo.list.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("todo.list.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", todosEventName),
			attribute.String("event.domain", todosEventDomain),
			attribute.String("severity_text", severityText),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      todosEventName,
		"event.domain":    todosEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesAsMap(attrs),
	}
	if m.span != nil {
		sc := m.span.SpanContext()
		if sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		if sc.HasSpanID() {
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps an HTTP outcome to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesAsMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
