package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Schema holds the single-row maintenance flag. Apply it with dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'scandoc is under maintenance'
);

INSERT OR IGNORE INTO maintenance (id, active, message)
VALUES (1, 0, 'scandoc is under maintenance');
`

const defaultMessage = "scandoc is under maintenance"

// MaintenanceMode answers 503 while the maintenance flag is set. The flag
// lives in SQLite so a CLI run against the same database can toggle a running
// server; the server picks it up on the next reload.
type MaintenanceMode struct {
	db      *sql.DB
	logger  *slog.Logger
	active  atomic.Bool
	message atomic.Value // string
	exclude []string
}

// NewMaintenanceMode loads the flag once. Paths with any of excludePrefixes
// are never blocked.
func NewMaintenanceMode(db *sql.DB, logger *slog.Logger, excludePrefixes ...string) *MaintenanceMode {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MaintenanceMode{db: db, logger: logger, exclude: excludePrefixes}
	m.message.Store(defaultMessage)
	m.Reload(context.Background())
	return m
}

// Active reports whether maintenance mode is on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Set writes the flag and applies it immediately.
func (m *MaintenanceMode) Set(ctx context.Context, active bool, message string) error {
	if err := SetMaintenance(ctx, m.db, active, message); err != nil {
		return err
	}
	m.Reload(ctx)
	return nil
}

// SetMaintenance writes the flag without a running MaintenanceMode. A blank
// message keeps the stored one.
func SetMaintenance(ctx context.Context, db *sql.DB, active bool, message string) error {
	flag := 0
	if active {
		flag = 1
	}
	_, err := db.ExecContext(ctx,
		`UPDATE maintenance SET active = ?, message = COALESCE(NULLIF(?, ''), message) WHERE id = 1`,
		flag, strings.TrimSpace(message))
	return err
}

// Reload re-reads the flag. A missing table or row means maintenance is off.
func (m *MaintenanceMode) Reload(ctx context.Context) {
	var active int
	var message string
	err := m.db.QueryRowContext(ctx, `SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		if m.active.Swap(false) {
			m.logger.Info("maintenance: flag cleared", "error", err)
		}
		return
	}
	if message != "" {
		m.message.Store(message)
	}
	was := m.active.Swap(active == 1)
	switch {
	case active == 1 && !was:
		m.logger.Warn("maintenance: enabled", "message", message)
	case active != 1 && was:
		m.logger.Info("maintenance: disabled")
	}
}

// StartReloader reloads the flag every interval until ctx is done.
func (m *MaintenanceMode) StartReloader(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				m.Reload(ctx)
			}
		}
	}()
}

// Middleware blocks requests with a JSON 503 while maintenance is active.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "300")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": m.Message()})
	})
}
