package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	_ "github.com/glebarez/go-sqlite" // SQLite driver
)

// Sink persists audit events. Implementations must be safe for use from
// the recorder's single writer goroutine plus Close from another.
type Sink interface {
	// Write persists one event.
	Write(event *Event) error

	// Close releases sink resources.
	Close() error
}

// JSONSink writes events as JSON lines to a writer.
type JSONSink struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewJSONSink creates a sink over an arbitrary writer.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{writer: w}
}

// OpenJSONSink creates a JSON sink for an output destination: "stdout",
// "stderr" or a file path.
func OpenJSONSink(output string) (*JSONSink, error) {
	switch output {
	case "", "stdout":
		return &JSONSink{writer: os.Stdout}, nil
	case "stderr":
		return &JSONSink{writer: os.Stderr}, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return &JSONSink{writer: file, closer: file}, nil
	}
}

// Write implements Sink.
func (s *JSONSink) Write(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// SQLiteSink appends events to an audit_events table. Rows are insert-only.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the audit database at the given DSN.
func NewSQLiteSink(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			type TEXT NOT NULL,
			actor_ip TEXT NOT NULL,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			trace_id TEXT NOT NULL DEFAULT '',
			span_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp
			ON audit_events(timestamp);

		CREATE INDEX IF NOT EXISTS idx_audit_events_type
			ON audit_events(type);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Write implements Sink.
func (s *SQLiteSink) Write(event *Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	if _, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, type, actor_ip, path, method, metadata, trace_id, span_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), event.ActorIP,
		event.Path, event.Method, string(metadata), event.TraceID, event.SpanID,
	); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// MultiSink fans one event out to several sinks; the first error wins but
// every sink still sees the event.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write implements Sink.
func (s *MultiSink) Write(event *Event) error {
	var first error
	for _, sink := range s.sinks {
		if err := sink.Write(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Sink.
func (s *MultiSink) Close() error {
	var first error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
