// Package trace records execution spans (model calls and tool steps) in
// SQLite, optionally mirroring them to a Kafka topic.
package trace

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Span is one recorded unit of work inside a turn.
type Span struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"` // llm or tool
	Name       string    `json:"name"`
	Status     string    `json:"status"` // ok or error
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

const spansSchema = `
CREATE TABLE IF NOT EXISTS spans (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spans_session ON spans(session_id, started_at);
`

// Recorder persists spans. It satisfies the agent's Tracer interface.
type Recorder struct {
	db        *sql.DB
	publisher *Publisher
	logger    *slog.Logger
}

// NewRecorder opens (or creates) the span database at dbPath. publisher
// may be nil.
func NewRecorder(dbPath string, publisher *Publisher, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if _, err := db.Exec(spansSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init trace schema: %w", err)
	}
	return &Recorder{db: db, publisher: publisher, logger: logger}, nil
}

// Close releases the database and the publisher, if any.
func (r *Recorder) Close() error {
	if r.publisher != nil {
		r.publisher.Close()
	}
	return r.db.Close()
}

// RecordSpan stores one span. Storage failures are logged, never
// propagated: tracing must not interfere with the turn.
func (r *Recorder) RecordSpan(sessionID, kind, name, status, detail string, startedAt time.Time, duration time.Duration) {
	span := Span{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Kind:       kind,
		Name:       name,
		Status:     status,
		Detail:     detail,
		StartedAt:  startedAt,
		DurationMS: duration.Milliseconds(),
	}

	_, err := r.db.Exec(
		`INSERT INTO spans (id, session_id, kind, name, status, detail, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		span.ID, span.SessionID, span.Kind, span.Name, span.Status, span.Detail,
		span.StartedAt.UTC().Format(time.RFC3339Nano), span.DurationMS,
	)
	if err != nil {
		r.logger.Warn("span insert failed", "error", err)
		return
	}
	if r.publisher != nil {
		r.publisher.Publish(span)
	}
}

// Recent returns the newest spans for a session, most recent first.
func (r *Recorder) Recent(sessionID string, limit int) ([]Span, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, name, status, detail, started_at, duration_ms
		 FROM spans WHERE session_id = ?
		 ORDER BY started_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var s Span
		var started string
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Kind, &s.Name, &s.Status, &s.Detail, &started, &s.DurationMS); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		spans = append(spans, s)
	}
	return spans, rows.Err()
}
