// CLAUDE:SUMMARY Buffered timeseries metrics — export durations, page counts and failures flushed to metrics_timeseries in batches.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric names recorded by scandoc.
const (
	MetricExportDurationMs    = "export_duration_ms"
	MetricExportPages         = "export_pages"
	MetricExportFailures      = "export_failures"
	MetricMaterializeFailures = "materialize_failures"
	MetricShareDeliveries     = "share_deliveries"
	MetricGoroutinesCount     = "goroutines_count"
	MetricMemoryAllocMB       = "memory_alloc_mb"
)

// Metric is one datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit,omitempty"` // "ms", "count", "mb"
}

// MetricsConfig configures a MetricsManager.
type MetricsConfig struct {
	BufferSize    int           // default 100
	FlushInterval time.Duration // default 5s
	Logger        *slog.Logger
}

func (c *MetricsConfig) defaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MetricsManager buffers datapoints and writes them in one transaction per
// flush. A nil *MetricsManager discards everything.
type MetricsManager struct {
	db     *sql.DB
	cfg    MetricsConfig
	mu     sync.Mutex
	buffer []*Metric
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMetricsManager starts the background flush loop. The schema must
// already be applied.
func NewMetricsManager(db *sql.DB, cfg MetricsConfig) *MetricsManager {
	cfg.defaults()
	mm := &MetricsManager{
		db:     db,
		cfg:    cfg,
		buffer: make([]*Metric, 0, cfg.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues m. A full buffer is flushed inline.
func (mm *MetricsManager) Record(m *Metric) {
	if mm == nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.cfg.BufferSize {
		mm.flushLocked()
	}
}

// RecordSimple queues an unlabeled datapoint.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Value: value, Unit: unit})
}

// Flush writes buffered datapoints now.
func (mm *MetricsManager) Flush() {
	if mm == nil {
		return
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.flushLocked()
}

// MetricQuery filters Query. Zero fields are unbounded.
type MetricQuery struct {
	Name  string
	Since time.Time
	Until time.Time
	Limit int // default 100
}

// Query returns stored datapoints, newest first. Buffered datapoints are not
// visible until flushed.
func (mm *MetricsManager) Query(ctx context.Context, f MetricQuery) ([]Metric, error) {
	q := `SELECT metric_name, timestamp, value, labels, COALESCE(unit, '') FROM metrics_timeseries WHERE 1=1`
	var args []any
	if f.Name != "" {
		q += ` AND metric_name = ?`
		args = append(args, f.Name)
	}
	if !f.Since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		q += ` AND timestamp <= ?`
		args = append(args, f.Until.Unix())
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than days. Zero or negative days is a no-op.
func (mm *MetricsManager) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := mm.db.ExecContext(ctx, `DELETE FROM metrics_timeseries WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes what is buffered and stops the loop. Safe to call twice.
func (mm *MetricsManager) Close() error {
	if mm == nil {
		return nil
	}
	mm.once.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	tick := time.NewTicker(mm.cfg.FlushInterval)
	defer tick.Stop()
	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-tick.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		mm.cfg.Logger.Error("observability: metrics begin tx", "error", err, "dropped", len(mm.buffer))
		mm.buffer = mm.buffer[:0]
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		mm.cfg.Logger.Error("observability: metrics prepare", "error", err)
		mm.buffer = mm.buffer[:0]
		return
	}
	defer stmt.Close()

	for _, m := range mm.buffer {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
			mm.cfg.Logger.Error("observability: metrics insert", "error", err, "metric", m.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		mm.cfg.Logger.Error("observability: metrics commit", "error", err)
	}
	mm.buffer = mm.buffer[:0]
}
