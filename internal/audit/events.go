// Package audit records structured security events for forensic review.
//
// Recording is best-effort and non-blocking: events are handed to a
// background writer through a bounded buffer, and internal failures are
// logged locally, never surfaced as request failures.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a security event.
type EventType string

// Event taxonomy.
const (
	// EventRateLimitExceeded records a blocked request over its limit.
	EventRateLimitExceeded EventType = "rate_limit_exceeded"

	// EventSQLInjectionAttempt records a SQL injection signature match.
	EventSQLInjectionAttempt EventType = "sql_injection_attempt"

	// EventXSSAttempt records an XSS signature match.
	EventXSSAttempt EventType = "xss_attempt"

	// EventSuspiciousActivity records non-blocking suspicion: path
	// traversal probes, scanner user agents, suspicious paths.
	EventSuspiciousActivity EventType = "suspicious_activity"

	// EventCSRFFailure records a failed CSRF validation.
	EventCSRFFailure EventType = "csrf_failure"

	// EventAccessDenied records an allow-list gate denial.
	EventAccessDenied EventType = "access_denied"

	// EventSystemError records an unexpected internal fault.
	EventSystemError EventType = "system_error"
)

// Event is a single append-only audit record. Events are never mutated
// after recording.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event classification.
	Type EventType `json:"type"`

	// ActorIP is the resolved client address.
	ActorIP string `json:"actor_ip"`

	// Path is the request path.
	Path string `json:"path"`

	// Method is the request method.
	Method string `json:"method"`

	// Metadata carries sanitized event detail.
	Metadata map[string]string `json:"metadata,omitempty"`

	// TraceID is the trace ID for distributed tracing, when present.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the span ID for distributed tracing, when present.
	SpanID string `json:"span_id,omitempty"`
}

// NewEvent creates an audit event with a fresh ID and timestamp.
func NewEvent(eventType EventType, actorIP, path, method string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		ActorIP:   actorIP,
		Path:      path,
		Method:    method,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds a metadata field to the event.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
