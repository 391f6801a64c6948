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
	tracerName          = "tessera/api"
	observabilityEvent  = "observability.event"
	requestEventDomain  = "tessera.api"
	requestEventName    = "request.completed"
	requestAttrPrefix   = "tessera.request."
	requestSpanPrefix   = "tessera.api "
	severityInfoText    = "INFO"
	severityWarnText    = "WARN"
	severityErrorText   = "ERROR"
	severityInfoNumber  = 9
	severityWarnNumber  = 13
	severityErrorNumber = 17
)

// requestMetrics records per-request timings and emits them as one span and
// one structured log line.
type requestMetrics struct {
	logger         *log.Logger
	route          string
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	storeDuration  time.Duration
	encodeDuration time.Duration
	itemCount      int
	itemCountSet   bool
	errorStage     string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanPrefix+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{
		logger: logger,
		route:  route,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *requestMetrics) ObserveStore(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.storeDuration += duration
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

// SetItems records how many records the request read or wrote.
func (m *requestMetrics) SetItems(count int) {
	if count < 0 {
		count = 0
	}
	m.itemCount = count
	m.itemCountSet = true
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64(requestAttrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(requestAttrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64(requestAttrPrefix+"store_ms", durationToMillis(m.storeDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(requestAttrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.itemCountSet {
		attrs = append(attrs, attribute.Int(requestAttrPrefix+"items", m.itemCount))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(requestAttrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := m.attributes(status, err)
	sevText, sevNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", sevText),
			attribute.Int("severity_number", sevNumber),
		}, attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if sevText == severityErrorText {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			if desc == "" {
				desc = "request failed"
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

	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   sevText,
		"severity_number": sevNumber,
		"attributes":      logged,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch sevText {
	case severityErrorText:
		entry.Error(observabilityEvent)
	case severityWarnText:
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil && status < http.StatusBadRequest:
		return severityErrorText, severityErrorNumber
	case status >= http.StatusInternalServerError:
		return severityErrorText, severityErrorNumber
	case status >= http.StatusBadRequest:
		return severityWarnText, severityWarnNumber
	default:
		return severityInfoText, severityInfoNumber
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
