// CLAUDE:SUMMARY Transport-neutral kit.Endpoints for every scandoc operation, shared by the HTTP and MCP surfaces.
package docscan

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/geometry"
	"github.com/hazyhaar/scandoc/kit"
	"github.com/hazyhaar/scandoc/observability"
)

// Operation names. MCP tools carry the same names.
const (
	OpCreateDocument = "scandoc_create_document"
	OpListDocuments  = "scandoc_list_documents"
	OpGetDocument    = "scandoc_get_document"
	OpRenameDocument = "scandoc_rename_document"
	OpDeleteDocument = "scandoc_delete_document"
	OpAddPage        = "scandoc_add_page"
	OpGetPage        = "scandoc_get_page"
	OpListPages      = "scandoc_list_pages"
	OpUpdatePage     = "scandoc_update_page"
	OpDragCrop       = "scandoc_drag_crop"
	OpStats          = "scandoc_stats"
	OpExport         = "scandoc_export"
	OpShare          = "scandoc_share"
	OpEvents         = "scandoc_events"
	OpMetrics        = "scandoc_metrics"
	OpAudit          = "scandoc_audit"
	OpHeartbeat      = "scandoc_heartbeat"
)

type createDocumentReq struct {
	Title string `json:"title"`
}

type docReq struct {
	DocID string `json:"doc_id"`
}

type renameReq struct {
	DocID string `json:"doc_id"`
	Title string `json:"title"`
}

type addPageReq struct {
	DocID  string `json:"doc_id"`
	URI    string `json:"uri"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type pageReq struct {
	PageID string `json:"page_id"`
}

type updatePageReq struct {
	PageID string             `json:"page_id"`
	Crop   *geometry.CropRect `json:"crop,omitempty"`
	Filter *docs.FilterKind   `json:"filter,omitempty"`
}

type dragReq struct {
	PageID string  `json:"page_id"`
	Corner string  `json:"corner"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
}

type eventsReq struct {
	EntityID string `json:"entity_id"`
	Limit    int    `json:"limit"`
}

type metricsReq struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

type auditReq struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Limit     int    `json:"limit"`
}

type emptyReq struct{}

// heartbeatStaleness marks a server dead after three missed 15s beats.
const heartbeatStaleness = 45 * time.Second

func required(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	return nil
}

// endpoints builds the operation table. Every endpoint is wrapped with call
// logging and the audit trail.
func (s *Service) endpoints() map[string]kit.Endpoint {
	eps := map[string]kit.Endpoint{
		OpCreateDocument: func(ctx context.Context, req any) (any, error) {
			r := req.(*createDocumentReq)
			return s.CreateDocument(ctx, sanitizeTitle(r.Title))
		},
		OpListDocuments: func(_ context.Context, _ any) (any, error) {
			return map[string]any{"documents": s.Documents()}, nil
		},
		OpGetDocument: func(_ context.Context, req any) (any, error) {
			r := req.(*docReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			return s.Document(r.DocID)
		},
		OpRenameDocument: func(ctx context.Context, req any) (any, error) {
			r := req.(*renameReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			return s.RenameDocument(ctx, r.DocID, sanitizeTitle(r.Title))
		},
		OpDeleteDocument: func(ctx context.Context, req any) (any, error) {
			r := req.(*docReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			n, err := s.DeleteDocument(ctx, r.DocID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"doc_id": r.DocID, "deleted_pages": n}, nil
		},
		OpAddPage: func(ctx context.Context, req any) (any, error) {
			r := req.(*addPageReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			return s.AddPage(ctx, r.DocID, r.URI, docs.Size{Width: r.Width, Height: r.Height})
		},
		OpGetPage: func(_ context.Context, req any) (any, error) {
			r := req.(*pageReq)
			if err := required("page_id", r.PageID); err != nil {
				return nil, err
			}
			return s.Page(r.PageID)
		},
		OpListPages: func(_ context.Context, _ any) (any, error) {
			return map[string]any{"pages": s.AllPages()}, nil
		},
		OpUpdatePage: func(ctx context.Context, req any) (any, error) {
			r := req.(*updatePageReq)
			if err := required("page_id", r.PageID); err != nil {
				return nil, err
			}
			return s.UpdatePage(ctx, r.PageID, docs.PagePatch{Crop: r.Crop, Filter: r.Filter})
		},
		OpDragCrop: func(ctx context.Context, req any) (any, error) {
			r := req.(*dragReq)
			if err := required("page_id", r.PageID); err != nil {
				return nil, err
			}
			corner, err := geometry.ParseCorner(r.Corner)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			return s.DragCrop(ctx, r.PageID, corner, r.DX, r.DY)
		},
		OpStats: func(_ context.Context, _ any) (any, error) {
			return s.Stats(), nil
		},
		OpExport: func(ctx context.Context, req any) (any, error) {
			r := req.(*docReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			path, err := s.Export(ctx, r.DocID)
			if err != nil {
				return nil, err
			}
			return map[string]string{"doc_id": r.DocID, "path": path}, nil
		},
		OpShare: func(ctx context.Context, req any) (any, error) {
			r := req.(*docReq)
			if err := required("doc_id", r.DocID); err != nil {
				return nil, err
			}
			return s.Share(ctx, r.DocID)
		},
		OpEvents: func(ctx context.Context, req any) (any, error) {
			r := req.(*eventsReq)
			list, err := s.Events(ctx, r.EntityID, r.Limit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"events": list}, nil
		},
		OpMetrics: func(ctx context.Context, req any) (any, error) {
			r := req.(*metricsReq)
			list, err := s.Metrics(ctx, observability.MetricQuery{Name: r.Name, Limit: r.Limit})
			if err != nil {
				return nil, err
			}
			return map[string]any{"metrics": list}, nil
		},
		OpAudit: func(ctx context.Context, req any) (any, error) {
			r := req.(*auditReq)
			list, err := s.Audit(ctx, observability.AuditFilter{Operation: r.Operation, Status: r.Status, Limit: r.Limit})
			if err != nil {
				return nil, err
			}
			return map[string]any{"entries": list}, nil
		},
		OpHeartbeat: func(ctx context.Context, _ any) (any, error) {
			hs, err := s.Heartbeat(ctx, heartbeatStaleness)
			if err != nil {
				return nil, err
			}
			return map[string]any{"heartbeat": hs}, nil
		},
	}
	for op, ep := range eps {
		eps[op] = kit.Chain(kit.Logging(s.logger, op), observability.Audit(s.audit, serviceName, op))(ep)
	}
	return eps
}

func isExportOp(op string) bool { return op == OpExport || op == OpShare }
