// CLAUDE:SUMMARY Document Store — sole writer of documents/pages; copy-on-write mutations persisted before they become visible.
// Package docs is the authoritative document and page state.
//
// The Store keeps both collections in memory and writes them through a
// Backend. Every mutation builds the next version of the collections it
// touches, persists it, and only then swaps it in: a failed save leaves
// memory unchanged and returns a *PersistenceError.
//
// Usage:
//
//	s, err := docs.Open(ctx, backend, docs.WithLogger(logger))
//	id, _ := s.CreateDocument(ctx, "Receipts")
//	pid, _ := s.AddPage(ctx, id, "file:///scans/1.jpg", docs.Size{Width: 3024, Height: 4032})
//	doc, pages, ok := s.DocumentWithPages(id)
package docs

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/scandoc/geometry"
	"github.com/hazyhaar/scandoc/idgen"
)

// Store holds documents and pages. Safe for concurrent use; mutations are
// serialized.
type Store struct {
	mu      sync.Mutex
	backend Backend
	docs    []Document      // display order, newest first
	pages   map[string]Page // keyed by page id

	newDocID  idgen.Generator
	newPageID idgen.Generator
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerators overrides the document and page id generators.
func WithIDGenerators(doc, page idgen.Generator) Option {
	return func(s *Store) {
		s.newDocID = doc
		s.newPageID = page
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads both collections from backend and returns a ready Store.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:   backend,
		newDocID:  idgen.Prefixed("doc_", idgen.Default),
		newPageID: idgen.Prefixed("pg_", idgen.Default),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	docs, err := backend.LoadDocuments(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load documents", Err: err}
	}
	pages, err := backend.LoadPages(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load pages", Err: err}
	}
	if pages == nil {
		pages = map[string]Page{}
	}
	for i := range docs {
		docs[i] = docs[i].clone()
	}
	s.docs = docs
	s.pages = pages
	s.logger.Debug("docs: loaded", "documents", len(docs), "pages", len(pages))
	return s, nil
}

func (s *Store) stamp() int64 { return s.now().UnixMilli() }

func (s *Store) indexOf(docID string) int {
	return slices.IndexFunc(s.docs, func(d Document) bool { return d.ID == docID })
}

// commit persists the next collections and swaps them in. A nil argument
// means that collection is unchanged. When both change and the backend is not
// atomic, pages are written first and restored if the document write fails.
func (s *Store) commit(ctx context.Context, op string, docs []Document, pages map[string]Page) error {
	switch {
	case docs != nil && pages != nil:
		if ab, ok := s.backend.(AtomicBackend); ok {
			if err := ab.SaveAll(ctx, docs, pages); err != nil {
				return &PersistenceError{Op: op, Err: err}
			}
			break
		}
		if err := s.backend.SavePages(ctx, pages); err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
		if err := s.backend.SaveDocuments(ctx, docs); err != nil {
			if rerr := s.backend.SavePages(context.WithoutCancel(ctx), s.pages); rerr != nil {
				s.logger.Error("docs: page collection restore failed, storage diverged from memory",
					"op", op, "error", rerr)
			}
			return &PersistenceError{Op: op, Err: err}
		}
	case docs != nil:
		if err := s.backend.SaveDocuments(ctx, docs); err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
	case pages != nil:
		if err := s.backend.SavePages(ctx, pages); err != nil {
			return &PersistenceError{Op: op, Err: err}
		}
	}

	if docs != nil {
		s.docs = docs
	}
	if pages != nil {
		s.pages = pages
	}
	return nil
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// CreateDocument adds an empty document at the front of the list and returns
// its id. An empty title becomes DefaultTitle.
func (s *Store) CreateDocument(ctx context.Context, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	d := Document{
		ID:        s.newDocID(),
		Title:     normalizeTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
		PageIDs:   []string{},
	}
	next := make([]Document, 0, len(s.docs)+1)
	next = append(next, d)
	next = append(next, s.docs...)

	if err := s.commit(ctx, "create document", next, nil); err != nil {
		return "", err
	}
	s.logger.Info("docs: document created", "doc_id", d.ID)
	return d.ID, nil
}

// AddPage appends a page for sourceURI to the document. The page gets
// order = current page count, the default crop and the auto filter.
func (s *Store) AddPage(ctx context.Context, docID, sourceURI string, size Size) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(docID)
	if i < 0 {
		return "", notFound("document", docID)
	}

	now := s.stamp()
	doc := s.docs[i].clone()
	p := Page{
		ID:        s.newPageID(),
		DocID:     docID,
		URI:       sourceURI,
		Width:     size.Width,
		Height:    size.Height,
		CreatedAt: now,
		Order:     len(doc.PageIDs),
		Crop:      geometry.DefaultCrop,
		Filter:    FilterAuto,
	}
	doc.PageIDs = append(doc.PageIDs, p.ID)
	doc.UpdatedAt = now

	nextDocs := slices.Clone(s.docs)
	nextDocs[i] = doc
	nextPages := maps.Clone(s.pages)
	nextPages[p.ID] = p

	if err := s.commit(ctx, "add page", nextDocs, nextPages); err != nil {
		return "", err
	}
	s.logger.Info("docs: page added", "doc_id", docID, "page_id", p.ID, "order", p.Order)
	return p.ID, nil
}

// UpdatePage merges patch into the page. The owning document's UpdatedAt is
// left alone. Crops are stored as given; bounds are the editor's job.
func (s *Store) UpdatePage(ctx context.Context, pageID string, patch PagePatch) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[pageID]
	if !ok {
		return Page{}, notFound("page", pageID)
	}
	if patch.Crop != nil {
		p.Crop = *patch.Crop
	}
	if patch.Filter != nil {
		p.Filter = *patch.Filter
	}

	next := maps.Clone(s.pages)
	next[pageID] = p
	if err := s.commit(ctx, "update page", nil, next); err != nil {
		return Page{}, err
	}
	return p, nil
}

// RenameDocument sets the title; blank titles become DefaultTitle.
func (s *Store) RenameDocument(ctx context.Context, docID, title string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(docID)
	if i < 0 {
		return Document{}, notFound("document", docID)
	}
	doc := s.docs[i].clone()
	doc.Title = normalizeTitle(title)
	doc.UpdatedAt = s.stamp()

	next := slices.Clone(s.docs)
	next[i] = doc
	if err := s.commit(ctx, "rename document", next, nil); err != nil {
		return Document{}, err
	}
	return doc.clone(), nil
}

// DeleteDocument removes the document and every page it owns.
// It returns the number of pages deleted.
func (s *Store) DeleteDocument(ctx context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(docID)
	if i < 0 {
		return 0, notFound("document", docID)
	}
	doc := s.docs[i]

	nextDocs := slices.Delete(slices.Clone(s.docs), i, i+1)
	nextPages := maps.Clone(s.pages)
	for _, pid := range doc.PageIDs {
		delete(nextPages, pid)
	}
	// Pages that point at the document without being listed are removed too.
	maps.DeleteFunc(nextPages, func(_ string, p Page) bool { return p.DocID == docID })
	removed := len(s.pages) - len(nextPages)

	if err := s.commit(ctx, "delete document", nextDocs, nextPages); err != nil {
		return 0, err
	}
	s.logger.Info("docs: document deleted", "doc_id", docID, "pages", removed)
	return removed, nil
}

// DocumentWithPages returns the document and its pages sorted by Order.
// ok is false, with no pages, when the document does not exist.
func (s *Store) DocumentWithPages(docID string) (doc Document, pages []Page, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(docID)
	if i < 0 {
		return Document{}, []Page{}, false
	}
	doc = s.docs[i].clone()
	pages = make([]Page, 0, len(doc.PageIDs))
	for _, pid := range doc.PageIDs {
		if p, found := s.pages[pid]; found {
			pages = append(pages, p)
		}
	}
	sortByOrder(pages)
	return doc, pages, true
}

// Document returns a single document.
func (s *Store) Document(docID string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(docID)
	if i < 0 {
		return Document{}, notFound("document", docID)
	}
	return s.docs[i].clone(), nil
}

// Documents returns all documents, newest first.
func (s *Store) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.clone()
	}
	return out
}

// Page returns a single page.
func (s *Store) Page(pageID string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return Page{}, notFound("page", pageID)
	}
	return p, nil
}

// AllPages returns every page across documents sorted by Order.
func (s *Store) AllPages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.pages))
	sortByOrder(out)
	return out
}

// Stats computes document count, page count (sum of PageIDs lengths) and the
// latest UpdatedAt.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Documents: len(s.docs)}
	for _, d := range s.docs {
		st.Pages += len(d.PageIDs)
		st.LastUpdated = max(st.LastUpdated, d.UpdatedAt)
	}
	return st
}

// sortByOrder sorts by Order, then CreatedAt and ID so equal orders are stable.
func sortByOrder(pages []Page) {
	slices.SortStableFunc(pages, func(a, b Page) int {
		return cmp.Or(
			cmp.Compare(a.Order, b.Order),
			cmp.Compare(a.CreatedAt, b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
