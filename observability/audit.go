// CLAUDE:SUMMARY Audit trail of API and MCP calls — async batched writes to audit_log, kit middleware, filtered queries.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/scandoc/idgen"
	"github.com/hazyhaar/scandoc/kit"
)

// Audit statuses.
const (
	AuditSuccess = "success"
	AuditError   = "error"
)

// AuditEntry is one call of a scandoc operation.
type AuditEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Component    string    `json:"component"`
	Operation    string    `json:"operation"`
	User         string    `json:"user,omitempty"`
	Transport    string    `json:"transport"`
	RequestID    string    `json:"request_id,omitempty"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	Parameters   string    `json:"parameters"` // JSON
	ErrorMessage string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
}

// AuditConfig configures an AuditLogger.
type AuditConfig struct {
	BufferSize    int           // queued entries before LogAsync writes inline; default 1000
	BatchSize     int           // entries per transaction; default 100
	FlushInterval time.Duration // default 5s
	IDGenerator   idgen.Generator
	Logger        *slog.Logger
}

func (c *AuditConfig) defaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.IDGenerator == nil {
		c.IDGenerator = idgen.Prefixed("audit_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// AuditLogger persists audit entries from a background loop. A nil
// *AuditLogger discards entries.
type AuditLogger struct {
	db      *sql.DB
	cfg     AuditConfig
	ch      chan *AuditEntry
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewAuditLogger starts the flush loop. The schema must already be applied.
func NewAuditLogger(db *sql.DB, cfg AuditConfig) *AuditLogger {
	cfg.defaults()
	a := &AuditLogger{
		db:      db,
		cfg:     cfg,
		ch:      make(chan *AuditEntry, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.flushLoop()
	return a
}

// Log writes e synchronously.
func (a *AuditLogger) Log(ctx context.Context, e *AuditEntry) error {
	if a == nil {
		return nil
	}
	a.fillDefaults(e)
	_, err := a.db.ExecContext(ctx, insertAudit, auditArgs(e)...)
	return err
}

// LogAsync queues e. A full queue falls back to a synchronous write.
func (a *AuditLogger) LogAsync(e *AuditEntry) {
	if a == nil {
		return
	}
	a.fillDefaults(e)
	select {
	case a.ch <- e:
	default:
		a.cfg.Logger.Warn("observability: audit queue full, writing inline", "operation", e.Operation)
		if _, err := a.db.Exec(insertAudit, auditArgs(e)...); err != nil {
			a.cfg.Logger.Error("observability: audit insert", "error", err, "entry_id", e.ID)
		}
	}
}

// NewEntry builds an entry for a call that took duration. User, transport,
// request id and remote address come from ctx; params is stored as JSON.
func NewEntry(ctx context.Context, component, operation string, params any, err error, duration time.Duration) *AuditEntry {
	e := &AuditEntry{
		Timestamp:  time.Now(),
		Component:  component,
		Operation:  operation,
		User:       kit.GetUser(ctx),
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		RemoteAddr: kit.GetRemoteAddr(ctx),
		DurationMs: duration.Milliseconds(),
		Status:     AuditSuccess,
	}
	if params != nil {
		if b, merr := json.Marshal(params); merr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Status = AuditError
		e.ErrorMessage = err.Error()
	}
	return e
}

// Audit returns middleware that queues one entry per endpoint call.
func Audit(a *AuditLogger, component, operation string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			a.LogAsync(NewEntry(ctx, component, operation, req, err, time.Since(start)))
			return resp, err
		}
	}
}

// AuditFilter narrows Query. Zero fields match everything.
type AuditFilter struct {
	Operation string
	Status    string
	User      string
	Since     time.Time
	Limit     int // default 100
}

// Query returns entries, newest first. Call Flush first to see queued ones.
func (a *AuditLogger) Query(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	q := `SELECT entry_id, timestamp, component_name, operation_type,
		COALESCE(user_id, ''), COALESCE(transport, ''), COALESCE(request_id, ''), COALESCE(remote_addr, ''),
		parameters, COALESCE(error_message, ''), COALESCE(duration_ms, 0), status
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Operation != "" {
		q += ` AND operation_type = ?`
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.User != "" {
		q += ` AND user_id = ?`
		args = append(args, f.User)
	}
	if !f.Since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, f.Since.Unix())
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Component, &e.Operation,
			&e.User, &e.Transport, &e.RequestID, &e.RemoteAddr,
			&e.Parameters, &e.ErrorMessage, &e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Flush writes every queued entry before returning.
func (a *AuditLogger) Flush(ctx context.Context) error {
	if a == nil {
		return nil
	}
	reply := make(chan struct{})
	select {
	case a.flushCh <- reply:
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cleanup deletes entries older than days. Zero or negative days is a no-op.
func (a *AuditLogger) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := a.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the queue and stops the loop. Safe to call twice.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.ID == "" {
		e.ID = a.cfg.IDGenerator()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Transport == "" {
		e.Transport = "cli"
	}
	if e.Status == "" {
		e.Status = AuditSuccess
		if e.ErrorMessage != "" {
			e.Status = AuditError
		}
	}
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	tick := time.NewTicker(a.cfg.FlushInterval)
	defer tick.Stop()
	batch := make([]*AuditEntry, 0, a.cfg.BatchSize)

	drain := func() {
		for {
			select {
			case e := <-a.ch:
				batch = append(batch, e)
			default:
				return
			}
		}
	}
	flush := func() {
		if len(batch) > 0 {
			a.writeBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-a.stop:
			drain()
			flush()
			return
		case reply := <-a.flushCh:
			drain()
			flush()
			close(reply)
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		}
	}
}

func (a *AuditLogger) writeBatch(batch []*AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		a.cfg.Logger.Error("observability: audit begin tx", "error", err, "dropped", len(batch))
		return
	}
	stmt, err := tx.PrepareContext(ctx, insertAudit)
	if err != nil {
		tx.Rollback()
		a.cfg.Logger.Error("observability: audit prepare", "error", err)
		return
	}
	defer stmt.Close()
	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, auditArgs(e)...); err != nil {
			a.cfg.Logger.Error("observability: audit insert", "error", err, "entry_id", e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		a.cfg.Logger.Error("observability: audit commit", "error", err)
	}
}

const insertAudit = `INSERT INTO audit_log (
	entry_id, timestamp, component_name, operation_type,
	user_id, transport, request_id, remote_addr,
	parameters, error_message, duration_ms, status
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

func auditArgs(e *AuditEntry) []any {
	return []any{
		e.ID, e.Timestamp.Unix(), e.Component, e.Operation,
		e.User, e.Transport, e.RequestID, e.RemoteAddr,
		e.Parameters, e.ErrorMessage, e.DurationMs, e.Status,
	}
}
