package audit

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const redactedValue = "[REDACTED]"

var (
	auditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secgate_audit_events_total",
			Help: "Total number of audit events recorded",
		},
		[]string{"type"},
	)

	auditEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secgate_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to a full buffer",
		},
	)
)

func init() {
	// Pre-populate label combinations so the Vec appears in /metrics
	// output immediately after startup.
	for _, t := range []EventType{
		EventRateLimitExceeded, EventSQLInjectionAttempt, EventXSSAttempt,
		EventSuspiciousActivity, EventCSRFFailure, EventAccessDenied,
		EventSystemError,
	} {
		auditEventsTotal.WithLabelValues(string(t))
	}
}

// Recorder records audit events.
type Recorder interface {
	// Record enqueues an event. It never blocks and never returns an
	// error: recording is fire-and-forget from the request path.
	Record(ctx context.Context, event *Event)

	// Close flushes buffered events and releases resources.
	Close() error
}

// recorder implements Recorder over a bounded buffer drained by a single
// background writer.
type recorder struct {
	config *Config
	sink   Sink
	logger *zap.Logger

	events    chan *Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// RecorderOption is a functional option for the recorder.
type RecorderOption func(*recorder)

// WithRecorderLogger sets the local logger for internal failures.
func WithRecorderLogger(logger *zap.Logger) RecorderOption {
	return func(r *recorder) {
		r.logger = logger
	}
}

// WithRecorderSink sets the sink, overriding the configured output.
func WithRecorderSink(sink Sink) RecorderOption {
	return func(r *recorder) {
		r.sink = sink
	}
}

// NewRecorder creates an audit recorder and starts its writer.
func NewRecorder(config *Config, opts ...RecorderOption) (Recorder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()

	r := &recorder{
		config:  config,
		logger:  zap.NewNop(),
		events:  make(chan *Event, config.BufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.sink == nil {
		sink, err := OpenJSONSink(config.Output)
		if err != nil {
			return nil, err
		}
		r.sink = sink
	}

	go r.drain()

	return r, nil
}

// Record implements Recorder.
func (r *recorder) Record(ctx context.Context, event *Event) {
	if !r.config.Enabled || event == nil {
		return
	}

	r.redact(event)
	r.attachTrace(ctx, event)

	select {
	case r.events <- event:
		auditEventsTotal.WithLabelValues(string(event.Type)).Inc()
	default:
		auditEventsDroppedTotal.Inc()
		r.logger.Warn("audit buffer full, event dropped",
			zap.String("type", string(event.Type)),
			zap.String("actor_ip", event.ActorIP),
		)
	}
}

// Close implements Recorder. It blocks until buffered events are flushed
// and the sink is closed.
func (r *recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	<-r.stopped
	return nil
}

// drain writes events until Close, then flushes the remaining buffer.
func (r *recorder) drain() {
	defer close(r.stopped)
	for {
		select {
		case event := <-r.events:
			r.write(event)
		case <-r.done:
			for {
				select {
				case event := <-r.events:
					r.write(event)
				default:
					if err := r.sink.Close(); err != nil {
						r.logger.Warn("failed to close audit sink", zap.Error(err))
					}
					return
				}
			}
		}
	}
}

// write persists one event, containing any sink failure locally.
func (r *recorder) write(event *Event) {
	if err := r.sink.Write(event); err != nil {
		r.logger.Warn("failed to persist audit event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// keySeparators strips the separators out of metadata key names, so a
// configured "apikey" also redacts "api-key" and "api_key".
var keySeparators = strings.NewReplacer("-", "", "_", "")

// redact replaces sensitive metadata values in place. Events are owned by
// the recorder from Record onward, so mutation is safe.
func (r *recorder) redact(event *Event) {
	if len(r.config.RedactFields) == 0 || len(event.Metadata) == 0 {
		return
	}
	for key := range event.Metadata {
		normalized := keySeparators.Replace(strings.ToLower(key))
		for _, field := range r.config.RedactFields {
			if strings.Contains(normalized, keySeparators.Replace(strings.ToLower(field))) {
				event.Metadata[key] = redactedValue
				break
			}
		}
	}
}

// attachTrace captures trace context when the caller has an active span.
func (r *recorder) attachTrace(ctx context.Context, event *Event) {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		event.TraceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		event.SpanID = sc.SpanID().String()
	}
}

// noopRecorder is a no-op audit recorder.
type noopRecorder struct{}

// NewNoopRecorder creates a recorder that discards all events.
func NewNoopRecorder() Recorder {
	return &noopRecorder{}
}

func (noopRecorder) Record(_ context.Context, _ *Event) {}

func (noopRecorder) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*recorder)(nil)
	_ Recorder = (*noopRecorder)(nil)
)
