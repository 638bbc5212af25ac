// CLAUDE:SUMMARY Document/Page data model — FilterKind, Page, Document, PagePatch, Stats.
package docs

import (
	"slices"

	"github.com/hazyhaar/scandoc/geometry"
)

// DefaultTitle replaces empty document titles.
const DefaultTitle = "Scan"

// FilterKind records the user's filter intent for a page. It does not change
// pixels; see materialize.
type FilterKind string

const (
	FilterAuto  FilterKind = "auto"
	FilterColor FilterKind = "color"
	FilterBW    FilterKind = "bw"
)

// Known reports whether f is one of the built-in kinds. Unknown kinds are
// still stored and exported.
func (f FilterKind) Known() bool {
	return f == FilterAuto || f == FilterColor || f == FilterBW
}

// Size is a native image size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Page is one captured or imported image inside a document.
type Page struct {
	ID        string            `json:"id"`
	DocID     string            `json:"doc_id"`
	URI       string            `json:"uri"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	CreatedAt int64             `json:"created_at"` // unix ms
	Order     int               `json:"order"`
	Crop      geometry.CropRect `json:"crop"`
	Filter    FilterKind        `json:"filter"`
}

// Document is a titled collection of pages. PageIDs is membership plus
// insertion history; display order comes from Page.Order.
type Document struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	CreatedAt int64    `json:"created_at"` // unix ms
	UpdatedAt int64    `json:"updated_at"` // unix ms
	PageIDs   []string `json:"page_ids"`
}

func (d Document) clone() Document {
	d.PageIDs = slices.Clone(d.PageIDs)
	if d.PageIDs == nil {
		d.PageIDs = []string{}
	}
	return d
}

// PagePatch lists the page fields an edit may change. Nil fields are left alone.
type PagePatch struct {
	Crop   *geometry.CropRect `json:"crop,omitempty"`
	Filter *FilterKind        `json:"filter,omitempty"`
}

// Stats are aggregate counters computed on demand.
type Stats struct {
	Documents   int   `json:"documents"`
	Pages       int   `json:"pages"`
	LastUpdated int64 `json:"last_updated"` // unix ms, 0 when there are no documents
}
