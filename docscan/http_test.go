package docscan

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/geometry"
	"github.com/hazyhaar/scandoc/observability"
)

type apiClient struct {
	t    *testing.T
	srv  *httptest.Server
	user string
	pass string
}

func newAPI(t *testing.T, svc *Service) *apiClient {
	t.Helper()
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (c *apiClient) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type apiError struct {
	Error string `json:"error"`
}

func TestHTTP_Flow(t *testing.T) {
	api := newAPI(t, testService(t))

	var doc docs.Document
	if code := api.do("POST", "/api/documents", map[string]string{"title": "<i>Lease</i>"}, &doc); code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}
	if doc.Title != "Lease" {
		t.Errorf("title = %q", doc.Title)
	}

	var empty apiError
	if code := api.do("POST", "/api/documents/"+doc.ID+"/export", nil, &empty); code != http.StatusConflict {
		t.Errorf("empty export status %d", code)
	}
	if empty.Error != "nothing to export" {
		t.Errorf("empty export message %q", empty.Error)
	}

	src := writeScan(t, 90, 120)
	var page docs.Page
	code := api.do("POST", "/api/documents/"+doc.ID+"/pages",
		map[string]any{"uri": "file://" + src, "width": 90, "height": 120}, &page)
	if code != http.StatusCreated {
		t.Fatalf("add page status %d", code)
	}

	var dragged docs.Page
	code = api.do("POST", "/api/pages/"+page.ID+"/drag",
		map[string]any{"corner": "br", "dx": -0.2, "dy": -0.2}, &dragged)
	if code != http.StatusOK {
		t.Fatalf("drag status %d", code)
	}
	if want := geometry.ApplyDrag(geometry.DefaultCrop, geometry.BottomRight, -0.2, -0.2); dragged.Crop != want {
		t.Errorf("dragged crop = %+v, want %+v", dragged.Crop, want)
	}

	var patched docs.Page
	code = api.do("PATCH", "/api/pages/"+page.ID, map[string]any{"filter": "bw"}, &patched)
	if code != http.StatusOK || patched.Filter != docs.FilterBW || patched.Crop != dragged.Crop {
		t.Errorf("patch = %d %+v", code, patched)
	}

	var view DocumentView
	if code := api.do("GET", "/api/documents/"+doc.ID, nil, &view); code != http.StatusOK {
		t.Fatalf("get status %d", code)
	}
	if len(view.Pages) != 1 || view.Pages[0].ID != page.ID {
		t.Errorf("view pages = %+v", view.Pages)
	}

	var exported struct {
		Path string `json:"path"`
	}
	if code := api.do("POST", "/api/documents/"+doc.ID+"/export", nil, &exported); code != http.StatusOK {
		t.Fatalf("export status %d", code)
	}
	if filepath.Base(exported.Path) != "Lease_"+doc.ID+".pdf" {
		t.Errorf("export path = %q", exported.Path)
	}

	var stats docs.Stats
	api.do("GET", "/api/stats", nil, &stats)
	if stats.Documents != 1 || stats.Pages != 1 {
		t.Errorf("stats = %+v", stats)
	}

	var deleted struct {
		DeletedPages int `json:"deleted_pages"`
	}
	if code := api.do("DELETE", "/api/documents/"+doc.ID, nil, &deleted); code != http.StatusOK || deleted.DeletedPages != 1 {
		t.Errorf("delete = %d %+v", code, deleted)
	}
}

func TestHTTP_Errors(t *testing.T) {
	svc := testService(t)
	api := newAPI(t, svc)

	var e apiError
	if code := api.do("GET", "/api/documents/doc_nope", nil, &e); code != http.StatusNotFound {
		t.Errorf("missing doc status %d", code)
	}
	if code := api.do("GET", "/api/pages/pg_nope", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing page status %d", code)
	}

	var doc docs.Document
	api.do("POST", "/api/documents", map[string]string{}, &doc)
	if doc.Title != "Scan" {
		t.Errorf("default title = %q", doc.Title)
	}
	var page docs.Page
	api.do("POST", "/api/documents/"+doc.ID+"/pages",
		map[string]any{"uri": filepath.Join(t.TempDir(), "gone.jpg"), "width": 10, "height": 10}, &page)

	if code := api.do("POST", "/api/pages/"+page.ID+"/drag", map[string]any{"corner": "middle"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad corner status %d", code)
	}
	if code := api.do("POST", "/api/documents", map[string]any{"bogus": 1}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown field status %d", code)
	}

	e = apiError{}
	if code := api.do("POST", "/api/documents/"+doc.ID+"/export", nil, &e); code != http.StatusUnprocessableEntity {
		t.Errorf("materialization failure status %d", code)
	}
	if e.Error != "export failed" {
		t.Errorf("export failure message %q", e.Error)
	}
}

func TestHTTP_DownloadPDF(t *testing.T) {
	svc := testService(t)
	api := newAPI(t, svc)

	var doc docs.Document
	api.do("POST", "/api/documents", map[string]string{"title": "Invoice"}, &doc)
	api.do("POST", "/api/documents/"+doc.ID+"/pages",
		map[string]any{"uri": writeScan(t, 30, 30), "width": 30, "height": 30}, nil)

	resp, err := http.Get(api.srv.URL + "/api/documents/" + doc.ID + "/pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if string(body) != "%PDF-stub 1 pages" {
		t.Errorf("body = %q", body)
	}
}

func TestHTTP_BasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Auth = AuthConfig{Username: "scanner", PasswordHash: string(hash)}
	svc := openService(t, cfg)
	api := newAPI(t, svc)

	if code := api.do("GET", "/health", nil, nil); code != http.StatusOK {
		t.Errorf("health behind auth: %d", code)
	}
	if code := api.do("GET", "/api/documents", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous status %d", code)
	}
	api.user, api.pass = "scanner", "wrong"
	if code := api.do("GET", "/api/documents", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("bad password status %d", code)
	}
	api.pass = "hunter2"
	var doc docs.Document
	if code := api.do("POST", "/api/documents", map[string]string{"title": "Mine"}, &doc); code != http.StatusCreated {
		t.Fatalf("authenticated status %d", code)
	}

	events, err := svc.Events(context.Background(), doc.ID, 1)
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %+v, %v", events, err)
	}
	if events[0].User != "scanner" || events[0].Transport != "http" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestHTTP_AuditTrail(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Auth = AuthConfig{Username: "scanner", PasswordHash: string(hash)}
	api := newAPI(t, openService(t, cfg))
	api.user, api.pass = "scanner", "hunter2"

	var doc docs.Document
	if code := api.do("POST", "/api/documents", map[string]string{"title": "Audited"}, &doc); code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}
	api.do("POST", "/api/documents/"+doc.ID+"/export", nil, nil)

	var created struct {
		Entries []observability.AuditEntry `json:"entries"`
	}
	if code := api.do("GET", "/api/audit?operation="+OpCreateDocument, nil, &created); code != http.StatusOK {
		t.Fatalf("audit status %d", code)
	}
	if len(created.Entries) != 1 {
		t.Fatalf("entries = %+v", created.Entries)
	}
	e := created.Entries[0]
	if e.User != "scanner" || e.Transport != "http" || e.RequestID == "" || e.RemoteAddr == "" || e.Status != observability.AuditSuccess {
		t.Errorf("entry = %+v", e)
	}

	var failed struct {
		Entries []observability.AuditEntry `json:"entries"`
	}
	api.do("GET", "/api/audit?status=error", nil, &failed)
	if len(failed.Entries) != 1 || failed.Entries[0].Operation != OpExport {
		t.Errorf("failed entries = %+v", failed.Entries)
	}

	var metrics struct {
		Metrics []observability.Metric `json:"metrics"`
	}
	api.do("GET", "/api/metrics?name="+observability.MetricExportFailures, nil, &metrics)
	if len(metrics.Metrics) != 1 {
		t.Errorf("export failures = %+v", metrics.Metrics)
	}
}

func TestHTTP_Maintenance(t *testing.T) {
	svc := testService(t)
	api := newAPI(t, svc)
	ctx := context.Background()

	if err := svc.SetMaintenance(ctx, true, "disk swap"); err != nil {
		t.Fatal(err)
	}
	if !svc.Maintenance() {
		t.Fatal("maintenance not active")
	}
	var e apiError
	if code := api.do("GET", "/api/documents", nil, &e); code != http.StatusServiceUnavailable || e.Error != "disk swap" {
		t.Errorf("during maintenance: %d %+v", code, e)
	}
	if code := api.do("GET", "/health", nil, nil); code != http.StatusOK {
		t.Errorf("health during maintenance: %d", code)
	}

	if err := svc.SetMaintenance(ctx, false, ""); err != nil {
		t.Fatal(err)
	}
	if code := api.do("GET", "/api/documents", nil, nil); code != http.StatusOK {
		t.Errorf("after maintenance: %d", code)
	}
}

func TestHTTP_SecurityHeaders(t *testing.T) {
	api := newAPI(t, testService(t))
	resp, err := http.Get(api.srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}
