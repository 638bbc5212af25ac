// CLAUDE:SUMMARY Business event log — records document/page/export events in SQLite; never blocks or fails the caller.
// Package observability records scandoc business events (documents created,
// pages edited, exports and shares) in the business_event_logs table.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/scandoc/idgen"
	"github.com/hazyhaar/scandoc/kit"
)

// Event types recorded by scandoc.
const (
	EventDocumentCreated = "document_created"
	EventDocumentRenamed = "document_renamed"
	EventDocumentDeleted = "document_deleted"
	EventPageAdded       = "page_added"
	EventPageUpdated     = "page_updated"
	EventExportCompleted = "export_completed"
	EventExportFailed    = "export_failed"
	EventShareCompleted  = "share_completed"
	EventShareSkipped    = "share_skipped"
)

// BusinessEvent is a domain-level event to record.
type BusinessEvent struct {
	EventType  string
	EntityType string // "document" or "page"
	EntityID   string
	Action     string
	Details    map[string]any // stored as JSON
	Success    bool
}

// Record is a stored event as returned by Recent.
type Record struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	User       string    `json:"user,omitempty"`
	Transport  string    `json:"transport"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventLogger writes business events. A nil *EventLogger discards events.
type EventLogger struct {
	db      *sql.DB
	service string
	newID   idgen.Generator
	now     func() time.Time
	logger  *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithLogger sets where recording failures are reported.
func WithLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EventLoggerOption {
	return func(l *EventLogger) { l.now = now }
}

// NewEventLogger creates a logger writing to db under the given service name.
// The schema must already be applied.
func NewEventLogger(db *sql.DB, service string, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:      db,
		service: service,
		newID:   idgen.Prefixed("evt_", idgen.Default),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records event. Errors are logged and never propagate, so a failing
// event store does not block the operation being recorded. The user and
// transport come from ctx.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	if l == nil {
		return
	}
	var details any
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			l.logger.Warn("observability: details not encodable", "event_type", event.EventType, "error", err)
		} else {
			details = string(b)
		}
	}
	_, err := l.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			user_id, transport, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, l.service, event.EntityType, event.EntityID,
		kit.GetUser(ctx), kit.GetTransport(ctx), event.Action, details, event.Success, l.now().Unix())
	if err != nil {
		l.logger.Error("observability: event log failed", "error", err, "event_type", event.EventType)
	}
}

// Recent returns up to limit events, newest first. entityID filters when set.
func (l *EventLogger) Recent(ctx context.Context, entityID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT event_id, event_type, COALESCE(entity_type, ''), COALESCE(entity_id, ''),
		COALESCE(user_id, ''), COALESCE(transport, ''), action, COALESCE(details, ''), success, created_at
		FROM business_event_logs`
	args := []any{}
	if entityID != "" {
		q += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		if err := rows.Scan(&r.ID, &r.EventType, &r.EntityType, &r.EntityID, &r.User,
			&r.Transport, &r.Action, &r.Details, &r.Success, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than days. Zero or negative days is a no-op.
func (l *EventLogger) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	res, err := l.db.ExecContext(ctx, `DELETE FROM business_event_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup business_event_logs: %w", err)
	}
	return res.RowsAffected()
}
