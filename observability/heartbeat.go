// CLAUDE:SUMMARY Liveness heartbeats — serve mode writes runtime stats to worker_heartbeats; LatestHeartbeat reports alive or stale.
package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// RuntimeMetrics is a snapshot of the Go runtime.
type RuntimeMetrics struct {
	GoroutinesCount int
	MemoryAllocMB   float64
	MemorySysMB     float64
	GCCount         uint32
}

// CollectRuntimeMetrics reads the current runtime stats.
func CollectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		GoroutinesCount: runtime.NumGoroutine(),
		MemoryAllocMB:   float64(mem.Alloc) / 1024 / 1024,
		MemorySysMB:     float64(mem.Sys) / 1024 / 1024,
		GCCount:         mem.NumGC,
	}
}

// HeartbeatWriter records that a scandoc process is alive.
type HeartbeatWriter struct {
	db       *sql.DB
	name     string
	hostname string
	pid      int
	interval time.Duration
	metrics  *MetricsManager
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewHeartbeatWriter returns a writer for the process called name. When
// metrics is not nil every beat also records goroutine and memory gauges.
func NewHeartbeatWriter(db *sql.DB, name string, interval time.Duration, metrics *MetricsManager, logger *slog.Logger) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatWriter{
		db:       db,
		name:     name,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start writes one heartbeat now, then one per interval until ctx is done or
// Stop is called. Later calls are no-ops.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	hw.startOnce.Do(func() { go hw.loop(ctx) })
}

// Stop ends the loop and waits for it. Calling Stop without Start is fine.
func (hw *HeartbeatWriter) Stop() {
	hw.stopOnce.Do(func() { close(hw.stop) })
	hw.startOnce.Do(func() { close(hw.done) })
	<-hw.done
}

// WriteHeartbeat inserts one row with the current runtime stats.
func (hw *HeartbeatWriter) WriteHeartbeat(ctx context.Context) error {
	m := CollectRuntimeMetrics()
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, memory_sys_mb, gc_count
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.name, hw.hostname, hw.pid, time.Now().Unix(),
		m.GoroutinesCount, m.MemoryAllocMB, m.MemorySysMB, m.GCCount)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	hw.metrics.RecordSimple(MetricGoroutinesCount, float64(m.GoroutinesCount), "count")
	hw.metrics.RecordSimple(MetricMemoryAllocMB, m.MemoryAllocMB, "mb")
	return nil
}

func (hw *HeartbeatWriter) loop(ctx context.Context) {
	defer close(hw.done)
	tick := time.NewTicker(hw.interval)
	defer tick.Stop()

	beat := func() {
		if err := hw.WriteHeartbeat(ctx); err != nil && ctx.Err() == nil {
			hw.logger.Error("observability: heartbeat failed", "error", err, "worker", hw.name)
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hw.stop:
			return
		case <-tick.C:
			beat()
		}
	}
}

// HeartbeatStatus is the latest heartbeat of a process.
type HeartbeatStatus struct {
	WorkerName      string         `json:"worker_name"`
	Hostname        string         `json:"hostname"`
	PID             int            `json:"pid"`
	Timestamp       time.Time      `json:"timestamp"`
	GoroutinesCount int            `json:"goroutines_count"`
	MemoryAllocMB   float64        `json:"memory_alloc_mb"`
	MemorySysMB     float64        `json:"memory_sys_mb"`
	GCCount         int            `json:"gc_count"`
	Alive           bool           `json:"alive"`
	StaleSince      *time.Duration `json:"stale_since,omitempty"` // time past the staleness threshold
}

// LatestHeartbeat returns the newest heartbeat of name, or nil, nil when it
// never beat. A beat older than staleness marks the process as not alive.
func LatestHeartbeat(ctx context.Context, db *sql.DB, name string, staleness time.Duration) (*HeartbeatStatus, error) {
	var hs HeartbeatStatus
	var ts int64
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp,
		       COALESCE(goroutines_count, 0), COALESCE(memory_alloc_mb, 0),
		       COALESCE(memory_sys_mb, 0), COALESCE(gc_count, 0)
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT 1`, name).Scan(
		&hs.WorkerName, &hs.Hostname, &hs.PID, &ts,
		&hs.GoroutinesCount, &hs.MemoryAllocMB, &hs.MemorySysMB, &hs.GCCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}
	hs.Timestamp = time.Unix(ts, 0).UTC()
	if age := time.Since(hs.Timestamp); age <= staleness {
		hs.Alive = true
	} else {
		stale := age - staleness
		hs.StaleSince = &stale
	}
	return &hs, nil
}

// CleanupHeartbeats deletes heartbeats older than days. Zero or negative days
// is a no-op.
func CleanupHeartbeats(ctx context.Context, db *sql.DB, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := db.ExecContext(ctx, `DELETE FROM worker_heartbeats WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup heartbeats: %w", err)
	}
	return res.RowsAffected()
}
