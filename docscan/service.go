// CLAUDE:SUMMARY scandoc service facade — wires SQLite store, document store, materializer, exporter, sharers, business events, metrics, audit and heartbeats.
// Package docscan is the scandoc service: it wires the document store, the
// page materializer and the PDF exporter behind one facade, and exposes it
// over HTTP and MCP.
//
// Usage:
//
//	svc, err := docscan.New(ctx, cfg, logger)
//	defer svc.Close()
//	svc.RegisterMCP(mcpServer)
//	http.ListenAndServe(cfg.Listen, svc.Routes())
package docscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/scandoc/dbopen"
	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/docs/sqlitestore"
	"github.com/hazyhaar/scandoc/export"
	"github.com/hazyhaar/scandoc/geometry"
	"github.com/hazyhaar/scandoc/materialize"
	"github.com/hazyhaar/scandoc/observability"
	"github.com/hazyhaar/scandoc/shield"
)

// Service is the scandoc facade. Safe for concurrent use.
type Service struct {
	cfg      *Config
	db       *sqlitestore.Store
	store    *docs.Store
	exporter *export.Exporter
	events   *observability.EventLogger
	metrics  *observability.MetricsManager
	audit    *observability.AuditLogger
	maint    *shield.MaintenanceMode
	logger   *slog.Logger

	hbMu      sync.Mutex
	heartbeat *observability.HeartbeatWriter

	// editMu makes DragCrop's read-modify-write atomic against other edits.
	editMu sync.Mutex
}

// Option configures a Service.
type Option func(*options)

type options struct {
	docOpts  []docs.Option
	codec    materialize.Codec
	renderer export.Renderer
	sharers  []export.Sharer
}

// WithDocsOptions passes options to the document store.
func WithDocsOptions(opts ...docs.Option) Option {
	return func(o *options) { o.docOpts = append(o.docOpts, opts...) }
}

// WithCodec replaces the image codec.
func WithCodec(c materialize.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithRenderer replaces the PDF renderer.
func WithRenderer(r export.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithSharers adds sharing collaborators after the configured ones.
func WithSharers(s ...export.Sharer) Option {
	return func(o *options) { o.sharers = append(o.sharers, s...) }
}

// New opens the database at cfg.DBPath and wires the service. The caller must
// blank-import modernc.org/sqlite.
func New(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	db, err := sqlitestore.Open(cfg.DBPath, dbopen.WithSchema(observability.Schema), dbopen.WithSchema(shield.Schema))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store, err := docs.Open(ctx, db, append([]docs.Option{docs.WithLogger(logger)}, o.docOpts...)...)
	if err != nil {
		db.Close()
		return nil, err
	}

	codec := o.codec
	if codec == nil {
		codec = &materialize.ImageCodec{Root: cfg.SourceRoot}
	}
	mat := materialize.New(codec, materialize.Config{
		MaxWidth:    cfg.Materialize.MaxWidth,
		Quality:     cfg.Materialize.JPEGQuality,
		Concurrency: cfg.Materialize.Concurrency,
		Logger:      logger,
	})

	var sharers []export.Sharer
	if cfg.Share.OutboxDir != "" {
		sharers = append(sharers, &export.OutboxSharer{Dir: cfg.Share.OutboxDir})
	}
	if cfg.Share.WebhookURL != "" {
		sharers = append(sharers, &export.WebhookSharer{URL: cfg.Share.WebhookURL, Secret: cfg.Share.WebhookSecret})
	}
	sharers = append(sharers, o.sharers...)

	ex := export.New(store, mat, export.Config{
		Dir:      cfg.ExportDir,
		WorkDir:  cfg.WorkDir,
		PageSize: cfg.PDF.PageSize,
		MarginMM: cfg.PDF.MarginMM,
		Renderer: o.renderer,
		Sharers:  sharers,
		Logger:   logger,
	})

	s := &Service{
		cfg:      cfg,
		db:       db,
		store:    store,
		exporter: ex,
		events:   observability.NewEventLogger(db.DB, serviceName, observability.WithLogger(logger)),
		metrics:  observability.NewMetricsManager(db.DB, observability.MetricsConfig{Logger: logger}),
		audit:    observability.NewAuditLogger(db.DB, observability.AuditConfig{Logger: logger}),
		maint:    shield.NewMaintenanceMode(db.DB, logger, "/health"),
		logger:   logger,
	}
	s.cleanup(ctx, cfg.EventDays)
	return s, nil
}

const serviceName = "scandoc"

// cleanup drops events, metrics, audit entries and heartbeats older than days.
func (s *Service) cleanup(ctx context.Context, days int) {
	if days <= 0 {
		return
	}
	for table, fn := range map[string]func(context.Context, int) (int64, error){
		"business_event_logs": s.events.Cleanup,
		"metrics_timeseries":  s.metrics.Cleanup,
		"audit_log":           s.audit.Cleanup,
		"worker_heartbeats": func(ctx context.Context, days int) (int64, error) {
			return observability.CleanupHeartbeats(ctx, s.db.DB, days)
		},
	} {
		if n, err := fn(ctx, days); err != nil {
			s.logger.Warn("docscan: retention cleanup failed", "table", table, "error", err)
		} else if n > 0 {
			s.logger.Info("docscan: old rows removed", "table", table, "count", n)
		}
	}
}

// SetMaintenance turns maintenance mode on or off. While on, the HTTP API
// answers 503 with message; /health stays up.
func (s *Service) SetMaintenance(ctx context.Context, active bool, message string) error {
	return s.maint.Set(ctx, active, message)
}

// Maintenance reports whether maintenance mode is on.
func (s *Service) Maintenance() bool { return s.maint.Active() }

// WatchMaintenance reloads the maintenance flag every interval until ctx is
// done, so another process can toggle it.
func (s *Service) WatchMaintenance(ctx context.Context, interval time.Duration) {
	s.maint.StartReloader(ctx, interval)
}

// StartHeartbeat records a liveness heartbeat every interval until ctx is
// done or the service is closed. Later calls are no-ops.
func (s *Service) StartHeartbeat(ctx context.Context, interval time.Duration) {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()
	if s.heartbeat != nil {
		return
	}
	s.heartbeat = observability.NewHeartbeatWriter(s.db.DB, serviceName, interval, s.metrics, s.logger)
	s.heartbeat.Start(ctx)
}

// Heartbeat returns the latest heartbeat of any scandoc server using this
// database, or nil when none ever ran. Beats older than staleness are
// reported as not alive.
func (s *Service) Heartbeat(ctx context.Context, staleness time.Duration) (*observability.HeartbeatStatus, error) {
	return observability.LatestHeartbeat(ctx, s.db.DB, serviceName, staleness)
}

// Metrics returns recorded datapoints, newest first.
func (s *Service) Metrics(ctx context.Context, q observability.MetricQuery) ([]observability.Metric, error) {
	s.metrics.Flush()
	return s.metrics.Query(ctx, q)
}

// Audit returns audited calls, newest first.
func (s *Service) Audit(ctx context.Context, f observability.AuditFilter) ([]observability.AuditEntry, error) {
	if err := s.audit.Flush(ctx); err != nil {
		return nil, err
	}
	return s.audit.Query(ctx, f)
}

// Close stops the heartbeat, flushes metrics and audit entries, then closes
// the database.
func (s *Service) Close() error {
	s.hbMu.Lock()
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	s.hbMu.Unlock()
	s.audit.Close()
	s.metrics.Close()
	return s.db.Close()
}

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.cfg }

func (s *Service) record(ctx context.Context, eventType, entityType, entityID, action string, err error, details map[string]any) {
	if err != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["error"] = err.Error()
	}
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Details:    details,
		Success:    err == nil,
	})
}

// CreateDocument creates an empty document. Blank titles become "Scan".
func (s *Service) CreateDocument(ctx context.Context, title string) (docs.Document, error) {
	id, err := s.store.CreateDocument(ctx, title)
	if err != nil {
		return docs.Document{}, err
	}
	doc, err := s.store.Document(id)
	if err != nil {
		return docs.Document{}, err
	}
	s.record(ctx, observability.EventDocumentCreated, "document", id, "create", nil, map[string]any{"title": doc.Title})
	return doc, nil
}

// AddPage appends a captured or imported image to a document.
func (s *Service) AddPage(ctx context.Context, docID, uri string, size docs.Size) (docs.Page, error) {
	if uri == "" {
		return docs.Page{}, fmt.Errorf("%w: source uri is required", ErrInvalid)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return docs.Page{}, fmt.Errorf("%w: page size %dx%d", ErrInvalid, size.Width, size.Height)
	}
	id, err := s.store.AddPage(ctx, docID, uri, size)
	if err != nil {
		return docs.Page{}, err
	}
	s.record(ctx, observability.EventPageAdded, "page", id, "add", nil, map[string]any{"doc_id": docID})
	return s.store.Page(id)
}

// UpdatePage applies an edit. Crops are normalized to the editor bounds and
// unknown filters are kept as given.
func (s *Service) UpdatePage(ctx context.Context, pageID string, patch docs.PagePatch) (docs.Page, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return s.updatePage(ctx, pageID, patch, "update")
}

func (s *Service) updatePage(ctx context.Context, pageID string, patch docs.PagePatch, action string) (docs.Page, error) {
	if patch.Crop != nil {
		c := geometry.Normalize(*patch.Crop)
		patch.Crop = &c
	}
	p, err := s.store.UpdatePage(ctx, pageID, patch)
	if err != nil {
		return docs.Page{}, err
	}
	s.record(ctx, observability.EventPageUpdated, "page", pageID, action, nil, map[string]any{
		"crop":   p.Crop,
		"filter": p.Filter,
	})
	return p, nil
}

// DragCrop moves one corner of the page's crop by (dx, dy), expressed as
// fractions of the image size, and stores the result.
func (s *Service) DragCrop(ctx context.Context, pageID string, corner geometry.Corner, dx, dy float64) (docs.Page, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	p, err := s.store.Page(pageID)
	if err != nil {
		return docs.Page{}, err
	}
	crop := geometry.ApplyDrag(p.Crop, corner, dx, dy)
	return s.updatePage(ctx, pageID, docs.PagePatch{Crop: &crop}, "drag "+string(corner))
}

// RenameDocument retitles a document. Blank titles become "Scan".
func (s *Service) RenameDocument(ctx context.Context, docID, title string) (docs.Document, error) {
	doc, err := s.store.RenameDocument(ctx, docID, title)
	if err != nil {
		return docs.Document{}, err
	}
	s.record(ctx, observability.EventDocumentRenamed, "document", docID, "rename", nil, map[string]any{"title": doc.Title})
	return doc, nil
}

// DeleteDocument removes a document and its pages; it returns the number of
// pages removed.
func (s *Service) DeleteDocument(ctx context.Context, docID string) (int, error) {
	n, err := s.store.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, observability.EventDocumentDeleted, "document", docID, "delete", nil, map[string]any{"pages": n})
	return n, nil
}

// DocumentView is a document with its pages in display order.
type DocumentView struct {
	docs.Document
	Pages []docs.Page `json:"pages"`
}

// Document returns the document with ordered pages, or ErrNotFound.
func (s *Service) Document(docID string) (DocumentView, error) {
	doc, pages, ok := s.store.DocumentWithPages(docID)
	if !ok {
		return DocumentView{}, fmt.Errorf("document %s: %w", docID, docs.ErrNotFound)
	}
	return DocumentView{Document: doc, Pages: pages}, nil
}

// DocumentWithPages fails soft: a missing document yields ok=false and no pages.
func (s *Service) DocumentWithPages(docID string) (docs.Document, []docs.Page, bool) {
	return s.store.DocumentWithPages(docID)
}

// Documents lists documents, newest first.
func (s *Service) Documents() []docs.Document { return s.store.Documents() }

// Page returns one page.
func (s *Service) Page(pageID string) (docs.Page, error) { return s.store.Page(pageID) }

// AllPages lists every page sorted by order.
func (s *Service) AllPages() []docs.Page { return s.store.AllPages() }

// Stats computes aggregate counters.
func (s *Service) Stats() docs.Stats { return s.store.Stats() }

// Export writes the document as PDF and returns the file path.
func (s *Service) Export(ctx context.Context, docID string) (string, error) {
	start := time.Now()
	path, err := s.exporter.Export(ctx, docID)
	if err != nil {
		s.exportFailed(ctx, docID, "export", err)
		return "", err
	}
	s.exportDone(docID, "export", time.Since(start))
	s.record(ctx, observability.EventExportCompleted, "document", docID, "export", nil, map[string]any{"path": path})
	return path, nil
}

func (s *Service) exportFailed(ctx context.Context, docID, action string, err error) {
	s.logger.Warn("docscan: export failed", "doc_id", docID, "error", err)
	s.record(ctx, observability.EventExportFailed, "document", docID, action, err, nil)
	s.metrics.Record(&observability.Metric{
		Name: observability.MetricExportFailures, Value: 1, Unit: "count",
		Labels: map[string]string{"action": action},
	})
	var merr *materialize.MaterializationError
	if errors.As(err, &merr) {
		s.metrics.Record(&observability.Metric{
			Name: observability.MetricMaterializeFailures, Value: 1, Unit: "count",
			Labels: map[string]string{"page_id": merr.PageID},
		})
	}
}

func (s *Service) exportDone(docID, action string, took time.Duration) {
	labels := map[string]string{"action": action}
	s.metrics.Record(&observability.Metric{
		Name: observability.MetricExportDurationMs, Value: float64(took.Milliseconds()), Unit: "ms", Labels: labels,
	})
	if _, pages, ok := s.store.DocumentWithPages(docID); ok {
		s.metrics.Record(&observability.Metric{
			Name: observability.MetricExportPages, Value: float64(len(pages)), Unit: "count", Labels: labels,
		})
	}
}

// Share exports then hands the file to the configured sharers. Sharing
// failures never fail the call.
func (s *Service) Share(ctx context.Context, docID string) (*export.ShareResult, error) {
	start := time.Now()
	res, err := s.exporter.Share(ctx, docID)
	if err != nil {
		s.exportFailed(ctx, docID, "share", err)
		return nil, err
	}
	s.exportDone(docID, "share", time.Since(start))
	s.record(ctx, observability.EventExportCompleted, "document", docID, "share", nil, map[string]any{"path": res.Path})
	for _, via := range res.Via {
		s.metrics.Record(&observability.Metric{
			Name: observability.MetricShareDeliveries, Value: 1, Unit: "count",
			Labels: map[string]string{"sharer": via},
		})
	}
	if res.Shared {
		s.record(ctx, observability.EventShareCompleted, "document", docID, "share", nil, map[string]any{"via": res.Via})
	} else {
		s.record(ctx, observability.EventShareSkipped, "document", docID, "share", nil, nil)
	}
	return res, nil
}

// Events returns recent business events, optionally for one entity.
func (s *Service) Events(ctx context.Context, entityID string, limit int) ([]observability.Record, error) {
	return s.events.Recent(ctx, entityID, limit)
}

// ErrInvalid marks a request rejected before reaching the store.
var ErrInvalid = errors.New("invalid request")
