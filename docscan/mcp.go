package docscan

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/scandoc/kit"
)

var (
	strProp = func(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
	numProp = func(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }
	intProp = func(desc string) map[string]any { return map[string]any{"type": "integer", "description": desc} }
)

var cropSchema = map[string]any{
	"type":        "object",
	"description": "Crop rectangle in fractions of the image (0..1)",
	"properties": map[string]any{
		"x": numProp("Left edge"),
		"y": numProp("Top edge"),
		"w": numProp("Width"),
		"h": numProp("Height"),
	},
	"required": []string{"x", "y", "w", "h"},
}

// RegisterMCP registers the scandoc tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	eps := s.endpoints()
	mapErr := func(op string) kit.ErrorMapper {
		return func(err error) string { return publicMessage(err, isExportOp(op)) }
	}

	type toolDef struct {
		tool   *mcp.Tool
		decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)
	}
	defs := []toolDef{
		{&mcp.Tool{
			Name:        OpCreateDocument,
			Description: "Create an empty scan document. A blank title becomes \"Scan\".",
			InputSchema: kit.InputSchema(map[string]any{"title": strProp("Document title")}),
		}, kit.DecodeArgs[createDocumentReq]},
		{&mcp.Tool{
			Name:        OpListDocuments,
			Description: "List documents, newest first.",
			InputSchema: kit.InputSchema(map[string]any{}),
		}, kit.DecodeArgs[emptyReq]},
		{&mcp.Tool{
			Name:        OpGetDocument,
			Description: "Get a document with its pages in page order.",
			InputSchema: kit.InputSchema(map[string]any{"doc_id": strProp("Document ID")}, "doc_id"),
		}, kit.DecodeArgs[docReq]},
		{&mcp.Tool{
			Name:        OpRenameDocument,
			Description: "Rename a document. A blank title becomes \"Scan\".",
			InputSchema: kit.InputSchema(map[string]any{
				"doc_id": strProp("Document ID"),
				"title":  strProp("New title"),
			}, "doc_id"),
		}, kit.DecodeArgs[renameReq]},
		{&mcp.Tool{
			Name:        OpDeleteDocument,
			Description: "Delete a document and all of its pages.",
			InputSchema: kit.InputSchema(map[string]any{"doc_id": strProp("Document ID")}, "doc_id"),
		}, kit.DecodeArgs[docReq]},
		{&mcp.Tool{
			Name:        OpAddPage,
			Description: "Append a captured or imported image to a document. The page starts with the default crop and the auto filter.",
			InputSchema: kit.InputSchema(map[string]any{
				"doc_id": strProp("Document ID"),
				"uri":    strProp("Source image path or file:// URI"),
				"width":  intProp("Native image width in pixels"),
				"height": intProp("Native image height in pixels"),
			}, "doc_id", "uri", "width", "height"),
		}, kit.DecodeArgs[addPageReq]},
		{&mcp.Tool{
			Name:        OpGetPage,
			Description: "Get one page.",
			InputSchema: kit.InputSchema(map[string]any{"page_id": strProp("Page ID")}, "page_id"),
		}, kit.DecodeArgs[pageReq]},
		{&mcp.Tool{
			Name:        OpListPages,
			Description: "List every page across documents, sorted by page order.",
			InputSchema: kit.InputSchema(map[string]any{}),
		}, kit.DecodeArgs[emptyReq]},
		{&mcp.Tool{
			Name:        OpUpdatePage,
			Description: "Set a page's crop rectangle and/or filter (auto, color, bw).",
			InputSchema: kit.InputSchema(map[string]any{
				"page_id": strProp("Page ID"),
				"crop":    cropSchema,
				"filter":  strProp("Filter intent: auto, color or bw"),
			}, "page_id"),
		}, kit.DecodeArgs[updatePageReq]},
		{&mcp.Tool{
			Name:        OpDragCrop,
			Description: "Drag one corner of a page's crop by dx, dy (fractions of the image size).",
			InputSchema: kit.InputSchema(map[string]any{
				"page_id": strProp("Page ID"),
				"corner":  strProp("top-left, top-right, bottom-left or bottom-right"),
				"dx":      numProp("Horizontal delta"),
				"dy":      numProp("Vertical delta"),
			}, "page_id", "corner"),
		}, kit.DecodeArgs[dragReq]},
		{&mcp.Tool{
			Name:        OpStats,
			Description: "Document count, page count and last update time.",
			InputSchema: kit.InputSchema(map[string]any{}),
		}, kit.DecodeArgs[emptyReq]},
		{&mcp.Tool{
			Name:        OpExport,
			Description: "Export a document as a PDF file and return its path.",
			InputSchema: kit.InputSchema(map[string]any{"doc_id": strProp("Document ID")}, "doc_id"),
		}, kit.DecodeArgs[docReq]},
		{&mcp.Tool{
			Name:        OpShare,
			Description: "Export a document and hand the PDF to the configured sharers.",
			InputSchema: kit.InputSchema(map[string]any{"doc_id": strProp("Document ID")}, "doc_id"),
		}, kit.DecodeArgs[docReq]},
		{&mcp.Tool{
			Name:        OpEvents,
			Description: "Recent business events, optionally for one document or page.",
			InputSchema: kit.InputSchema(map[string]any{
				"entity_id": strProp("Document or page ID"),
				"limit":     intProp("Maximum events (default 50)"),
			}),
		}, kit.DecodeArgs[eventsReq]},
		{&mcp.Tool{
			Name:        OpMetrics,
			Description: "Recorded metrics, newest first: export_duration_ms, export_pages, export_failures, materialize_failures, share_deliveries.",
			InputSchema: kit.InputSchema(map[string]any{
				"name":  strProp("Metric name; empty for all"),
				"limit": intProp("Maximum datapoints (default 100)"),
			}),
		}, kit.DecodeArgs[metricsReq]},
		{&mcp.Tool{
			Name:        OpAudit,
			Description: "Audit trail of scandoc calls over HTTP and MCP, newest first.",
			InputSchema: kit.InputSchema(map[string]any{
				"operation": strProp("Operation name filter"),
				"status":    strProp("success or error"),
				"limit":     intProp("Maximum entries (default 100)"),
			}),
		}, kit.DecodeArgs[auditReq]},
		{&mcp.Tool{
			Name:        OpHeartbeat,
			Description: "Latest heartbeat of the scandoc server using this database, with an alive flag.",
			InputSchema: kit.InputSchema(map[string]any{}),
		}, kit.DecodeArgs[emptyReq]},
	}

	for _, d := range defs {
		kit.RegisterMCPTool(srv, d.tool, eps[d.tool.Name], d.decode, mapErr(d.tool.Name))
	}
}

// MCPHandler serves the tools over streamable HTTP, behind the same basic
// auth as the JSON API.
func (s *Service) MCPHandler(impl *mcp.Implementation) http.Handler {
	srv := mcp.NewServer(impl, nil)
	s.RegisterMCP(srv)
	var h http.Handler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
	if s.cfg.Auth.Enabled() {
		h = basicAuth(s.cfg.Auth)(h)
	}
	return h
}
