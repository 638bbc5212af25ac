// CLAUDE:SUMMARY chi HTTP API for scandoc — JSON endpoints over kit.Endpoints, bcrypt basic auth, error→status mapping, PDF download.
package docscan

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/scandoc/kit"
	"github.com/hazyhaar/scandoc/shield"
)

const maxBody = 1 << 20

// Routes returns the HTTP API.
//
//	GET    /health
//	GET    /api/stats
//	GET    /api/events?entity_id=&limit=
//	GET    /api/metrics?name=&limit=
//	GET    /api/audit?operation=&status=&limit=
//	GET    /api/heartbeat
//	GET    /api/documents
//	POST   /api/documents                   {"title"}
//	GET    /api/documents/{docID}
//	PATCH  /api/documents/{docID}           {"title"}
//	DELETE /api/documents/{docID}
//	POST   /api/documents/{docID}/pages     {"uri","width","height"}
//	POST   /api/documents/{docID}/export
//	POST   /api/documents/{docID}/share
//	GET    /api/documents/{docID}/pdf
//	GET    /api/pages
//	GET    /api/pages/{pageID}
//	PATCH  /api/pages/{pageID}              {"crop","filter"}
//	POST   /api/pages/{pageID}/drag         {"corner","dx","dy"}
func (s *Service) Routes() http.Handler {
	eps := s.endpoints()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(shield.HeadToGet)
	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
	r.Use(shield.MaxBody(maxBody))
	r.Use(s.maint.Middleware)
	r.Use(requestContext)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.cfg.Auth.Enabled() {
			r.Use(basicAuth(s.cfg.Auth))
		}

		r.Get("/api/stats", s.handle(eps, OpStats, http.StatusOK, func(*http.Request) (any, error) {
			return &emptyReq{}, nil
		}))
		r.Get("/api/events", s.handle(eps, OpEvents, http.StatusOK, func(r *http.Request) (any, error) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			return &eventsReq{EntityID: r.URL.Query().Get("entity_id"), Limit: limit}, nil
		}))
		r.Get("/api/metrics", s.handle(eps, OpMetrics, http.StatusOK, func(r *http.Request) (any, error) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			return &metricsReq{Name: r.URL.Query().Get("name"), Limit: limit}, nil
		}))
		r.Get("/api/audit", s.handle(eps, OpAudit, http.StatusOK, func(r *http.Request) (any, error) {
			q := r.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			return &auditReq{Operation: q.Get("operation"), Status: q.Get("status"), Limit: limit}, nil
		}))
		r.Get("/api/heartbeat", s.handle(eps, OpHeartbeat, http.StatusOK, func(*http.Request) (any, error) {
			return &emptyReq{}, nil
		}))

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", s.handle(eps, OpListDocuments, http.StatusOK, func(*http.Request) (any, error) {
				return &emptyReq{}, nil
			}))
			r.Post("/", s.handle(eps, OpCreateDocument, http.StatusCreated, func(r *http.Request) (any, error) {
				var req createDocumentReq
				return &req, decodeBody(r, &req)
			}))

			r.Route("/{docID}", func(r chi.Router) {
				r.Get("/", s.handle(eps, OpGetDocument, http.StatusOK, docParam))
				r.Delete("/", s.handle(eps, OpDeleteDocument, http.StatusOK, docParam))
				r.Patch("/", s.handle(eps, OpRenameDocument, http.StatusOK, func(r *http.Request) (any, error) {
					var req renameReq
					err := decodeBody(r, &req)
					req.DocID = chi.URLParam(r, "docID")
					return &req, err
				}))
				r.Post("/pages", s.handle(eps, OpAddPage, http.StatusCreated, func(r *http.Request) (any, error) {
					var req addPageReq
					err := decodeBody(r, &req)
					req.DocID = chi.URLParam(r, "docID")
					return &req, err
				}))
				r.Post("/export", s.handle(eps, OpExport, http.StatusOK, docParam))
				r.Post("/share", s.handle(eps, OpShare, http.StatusOK, docParam))
				r.Get("/pdf", s.downloadPDF)
			})
		})

		r.Route("/api/pages", func(r chi.Router) {
			r.Get("/", s.handle(eps, OpListPages, http.StatusOK, func(*http.Request) (any, error) {
				return &emptyReq{}, nil
			}))
			r.Get("/{pageID}", s.handle(eps, OpGetPage, http.StatusOK, func(r *http.Request) (any, error) {
				return &pageReq{PageID: chi.URLParam(r, "pageID")}, nil
			}))
			r.Patch("/{pageID}", s.handle(eps, OpUpdatePage, http.StatusOK, func(r *http.Request) (any, error) {
				var req updatePageReq
				err := decodeBody(r, &req)
				req.PageID = chi.URLParam(r, "pageID")
				return &req, err
			}))
			r.Post("/{pageID}/drag", s.handle(eps, OpDragCrop, http.StatusOK, func(r *http.Request) (any, error) {
				var req dragReq
				err := decodeBody(r, &req)
				req.PageID = chi.URLParam(r, "pageID")
				return &req, err
			}))
		})
	})
	return r
}

func docParam(r *http.Request) (any, error) {
	return &docReq{DocID: chi.URLParam(r, "docID")}, nil
}

// handle adapts an endpoint: decode builds the request, the endpoint's
// result is written as JSON with status ok.
func (s *Service) handle(eps map[string]kit.Endpoint, op string, ok int, decode func(*http.Request) (any, error)) http.HandlerFunc {
	ep := eps[op]
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, statusOf(err), publicMessage(err, isExportOp(op)))
			return
		}
		writeJSON(w, ok, resp)
	}
}

// downloadPDF exports the document and streams the file.
func (s *Service) downloadPDF(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	path, err := s.Export(r.Context(), docID)
	if err != nil {
		writeError(w, statusOf(err), publicMessage(err, true))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)}))
	http.ServeFile(w, r, path)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// requestContext copies request metadata into the context for endpoints and
// business events.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = kit.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// basicAuth enforces HTTP basic auth against a bcrypt hash.
func basicAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="scandoc"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithUser(r.Context(), user)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
