package docscan

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/export"
)

var testMCPImpl = &mcp.Implementation{Name: "scandoc-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any, out any) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	text := result.Content[0].(*mcp.TextContent).Text
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("CallTool(%s): unmarshal %s: %v", name, text, err)
		}
	}
}

func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return result.Content[0].(*mcp.TextContent).Text
}

func TestMCP_ListTools(t *testing.T) {
	session := mcpSession(t, testService(t))
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{
		OpCreateDocument, OpListDocuments, OpGetDocument, OpRenameDocument, OpDeleteDocument,
		OpAddPage, OpGetPage, OpListPages, OpUpdatePage, OpDragCrop, OpStats, OpExport, OpShare, OpEvents,
		OpMetrics, OpAudit, OpHeartbeat,
	} {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCP_ScanAndExport(t *testing.T) {
	svc := testService(t)
	session := mcpSession(t, svc)

	var doc docs.Document
	callTool(t, session, OpCreateDocument, map[string]any{"title": "Contract"}, &doc)

	src := writeScan(t, 64, 80)
	var page docs.Page
	callTool(t, session, OpAddPage, map[string]any{"doc_id": doc.ID, "uri": src, "width": 64, "height": 80}, &page)

	var dragged docs.Page
	callTool(t, session, OpDragCrop, map[string]any{"page_id": page.ID, "corner": "top-right", "dx": 0.02, "dy": 0.1}, &dragged)
	if dragged.Crop == page.Crop {
		t.Error("drag did not change the crop")
	}

	var updated docs.Page
	callTool(t, session, OpUpdatePage, map[string]any{
		"page_id": page.ID,
		"crop":    map[string]any{"x": 0.1, "y": 0.1, "w": 0.5, "h": 0.5},
		"filter":  "color",
	}, &updated)
	if updated.Crop.W != 0.5 || updated.Filter != docs.FilterColor {
		t.Errorf("updated = %+v", updated)
	}

	var renamed docs.Document
	callTool(t, session, OpRenameDocument, map[string]any{"doc_id": doc.ID, "title": ""}, &renamed)
	if renamed.Title != "Scan" {
		t.Errorf("blank rename = %q", renamed.Title)
	}

	var res export.ShareResult
	callTool(t, session, OpShare, map[string]any{"doc_id": doc.ID}, &res)
	if res.Shared || filepath.Base(res.Path) != "Scan_"+doc.ID+".pdf" {
		t.Errorf("share = %+v", res)
	}

	var list struct {
		Documents []docs.Document `json:"documents"`
	}
	callTool(t, session, OpListDocuments, map[string]any{}, &list)
	if len(list.Documents) != 1 {
		t.Errorf("documents = %+v", list.Documents)
	}

	var events struct {
		Events []struct {
			EventType string `json:"event_type"`
			Transport string `json:"transport"`
		} `json:"events"`
	}
	callTool(t, session, OpEvents, map[string]any{"entity_id": doc.ID, "limit": 1}, &events)
	if len(events.Events) != 1 || events.Events[0].Transport != "mcp" {
		t.Errorf("events = %+v", events.Events)
	}
}

func TestMCP_Errors(t *testing.T) {
	svc := testService(t)
	session := mcpSession(t, svc)

	if msg := callToolErr(t, session, OpGetDocument, map[string]any{"doc_id": "doc_nope"}); msg == "" {
		t.Error("empty error message")
	}

	var doc docs.Document
	callTool(t, session, OpCreateDocument, map[string]any{}, &doc)
	if msg := callToolErr(t, session, OpExport, map[string]any{"doc_id": doc.ID}); msg != "nothing to export" {
		t.Errorf("empty export message = %q", msg)
	}

	svc.AddPage(context.Background(), doc.ID, filepath.Join(t.TempDir(), "gone.png"), docs.Size{Width: 10, Height: 10})
	if msg := callToolErr(t, session, OpExport, map[string]any{"doc_id": doc.ID}); msg != "export failed" {
		t.Errorf("failed export message = %q", msg)
	}
}
