// CLAUDE:SUMMARY SQLite backend for docs.Store — full-collection writes in busy-retried transactions, atomic SaveAll.
// Package sqlitestore persists the scandoc document and page collections in
// SQLite. Each save replaces the whole collection inside one transaction, so
// the last writer wins at collection granularity.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/scandoc/dbopen"
	"github.com/hazyhaar/scandoc/docs"
)

// Store is the scandoc database handle. It implements docs.AtomicBackend.
type Store struct {
	DB *sql.DB
}

var _ docs.AtomicBackend = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// The caller must blank-import modernc.org/sqlite.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// LoadDocuments returns every document in stored order.
func (s *Store) LoadDocuments(ctx context.Context) ([]docs.Document, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at, page_ids
		FROM documents ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	var out []docs.Document
	for rows.Next() {
		var d docs.Document
		var pageIDs string
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt, &d.UpdatedAt, &pageIDs); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(pageIDs), &d.PageIDs); err != nil {
			return nil, fmt.Errorf("document %s: page_ids: %w", d.ID, err)
		}
		if d.PageIDs == nil {
			d.PageIDs = []string{}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadPages returns every page keyed by id.
func (s *Store) LoadPages(ctx context.Context) (map[string]docs.Page, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, doc_id, uri, width, height, created_at, ord,
		crop_x, crop_y, crop_w, crop_h, filter
		FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	out := map[string]docs.Page{}
	for rows.Next() {
		var p docs.Page
		var filter string
		if err := rows.Scan(&p.ID, &p.DocID, &p.URI, &p.Width, &p.Height, &p.CreatedAt, &p.Order,
			&p.Crop.X, &p.Crop.Y, &p.Crop.W, &p.Crop.H, &filter); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.Filter = docs.FilterKind(filter)
		out[p.ID] = p
	}
	return out, rows.Err()
}

// SaveDocuments replaces the document collection.
func (s *Store) SaveDocuments(ctx context.Context, list []docs.Document) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return writeDocuments(ctx, tx, list)
	})
}

// SavePages replaces the page collection.
func (s *Store) SavePages(ctx context.Context, pages map[string]docs.Page) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return writePages(ctx, tx, pages)
	})
}

// SaveAll replaces both collections in one transaction.
func (s *Store) SaveAll(ctx context.Context, list []docs.Document, pages map[string]docs.Page) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := writePages(ctx, tx, pages); err != nil {
			return err
		}
		return writeDocuments(ctx, tx, list)
	})
}

func writeDocuments(ctx context.Context, tx *sql.Tx, list []docs.Document) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, position, title, created_at, updated_at, page_ids)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare document insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range list {
		ids := d.PageIDs
		if ids == nil {
			ids = []string{}
		}
		pageIDs, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("document %s: page_ids: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, i, d.Title, d.CreatedAt, d.UpdatedAt, string(pageIDs)); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	return nil
}

func writePages(ctx context.Context, tx *sql.Tx, pages map[string]docs.Page) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (id, doc_id, uri, width, height, created_at, ord,
		crop_x, crop_y, crop_w, crop_h, filter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, p.ID, p.DocID, p.URI, p.Width, p.Height, p.CreatedAt, p.Order,
			p.Crop.X, p.Crop.Y, p.Crop.W, p.Crop.H, string(p.Filter)); err != nil {
			return fmt.Errorf("insert page %s: %w", p.ID, err)
		}
	}
	return nil
}
