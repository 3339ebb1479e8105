package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink collects written events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

func (s *captureSink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func newTestRecorder(t *testing.T, config *Config) (Recorder, *captureSink) {
	t.Helper()

	sink := &captureSink{}
	recorder, err := NewRecorder(config, WithRecorderSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { _ = recorder.Close() })

	return recorder, sink
}

func TestRecorderRecord(t *testing.T) {
	recorder, sink := newTestRecorder(t, &Config{Enabled: true, BufferSize: 16})

	event := NewEvent(EventRateLimitExceeded, "192.0.2.1", "/api/login", "POST")
	recorder.Record(context.Background(), event)

	assert.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	got := sink.snapshot()[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, EventRateLimitExceeded, got.Type)
}

func TestRecorderDisabled(t *testing.T) {
	recorder, sink := newTestRecorder(t, &Config{Enabled: false, BufferSize: 16})

	recorder.Record(context.Background(), NewEvent(EventAccessDenied, "192.0.2.1", "/", "GET"))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestRecorderRedaction(t *testing.T) {
	recorder, sink := newTestRecorder(t, &Config{
		Enabled:      true,
		BufferSize:   16,
		RedactFields: []string{"password", "token", "apikey"},
	})

	event := NewEvent(EventCSRFFailure, "192.0.2.1", "/login", "POST")
	event.WithMetadata("password", "hunter2")
	event.WithMetadata("csrf_token", "abc123")
	event.WithMetadata("Api-Key", "sk-live-0001")
	event.WithMetadata("username", "alice")

	recorder.Record(context.Background(), event)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	got := sink.snapshot()[0]
	assert.Equal(t, "[REDACTED]", got.Metadata["password"])
	assert.Equal(t, "[REDACTED]", got.Metadata["csrf_token"])
	// Separators in the key name do not defeat redaction.
	assert.Equal(t, "[REDACTED]", got.Metadata["Api-Key"])
	assert.Equal(t, "alice", got.Metadata["username"])
}

func TestRecorderNilEvent(t *testing.T) {
	recorder, sink := newTestRecorder(t, &Config{Enabled: true, BufferSize: 16})

	recorder.Record(context.Background(), nil)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestRecorderCloseFlushes(t *testing.T) {
	sink := &captureSink{}
	recorder, err := NewRecorder(&Config{Enabled: true, BufferSize: 64}, WithRecorderSink(sink))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		recorder.Record(context.Background(), NewEvent(EventAccessDenied, "192.0.2.1", "/", "GET"))
	}

	// Close blocks until the buffer is flushed and the sink closed.
	require.NoError(t, recorder.Close())

	assert.Len(t, sink.snapshot(), 10)
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	assert.True(t, closed)
}

func TestNoopRecorder(t *testing.T) {
	recorder := NewNoopRecorder()
	recorder.Record(context.Background(), NewEvent(EventSystemError, "unknown", "/", "GET"))
	assert.NoError(t, recorder.Close())
}
