package docscan

import (
	"errors"
	"html"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/export"
	"github.com/hazyhaar/scandoc/materialize"
)

// Messages shown to clients when an export does not produce a file.
const (
	msgExportFailed    = "export failed"
	msgNothingToExport = "nothing to export"
)

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var me *materialize.MaterializationError
	switch {
	case errors.Is(err, docs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, export.ErrEmptyDocument):
		return http.StatusConflict
	case errors.As(err, &me):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is what a client sees for err. Internal failures are not
// described; the cause is in the logs.
func publicMessage(err error, exporting bool) string {
	switch statusOf(err) {
	case http.StatusNotFound, http.StatusBadRequest:
		return err.Error()
	case http.StatusConflict:
		return msgNothingToExport
	}
	if exporting {
		return msgExportFailed
	}
	var pe *docs.PersistenceError
	if errors.As(err, &pe) {
		return "storage error"
	}
	return "internal error"
}

var titlePolicy = bluemonday.StrictPolicy()

// sanitizeTitle strips markup from a title received over HTTP or MCP.
func sanitizeTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(s)))
}
