package sqlitestore

// Schema contains the DDL for the two scandoc collections. The tables are
// not linked by foreign keys: the docs.Store keeps them consistent.
const Schema = `
-- Documents, in display order (position 0 = newest).
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    position    INTEGER NOT NULL,
    title       TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    page_ids    TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_documents_position ON documents(position);

-- Pages, keyed by id. ord is the page's position inside its document.
CREATE TABLE IF NOT EXISTS pages (
    id          TEXT PRIMARY KEY,
    doc_id      TEXT NOT NULL,
    uri         TEXT NOT NULL,
    width       INTEGER NOT NULL,
    height      INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    ord         INTEGER NOT NULL,
    crop_x      REAL NOT NULL,
    crop_y      REAL NOT NULL,
    crop_w      REAL NOT NULL,
    crop_h      REAL NOT NULL,
    filter      TEXT NOT NULL DEFAULT 'auto'
);
CREATE INDEX IF NOT EXISTS idx_pages_doc ON pages(doc_id, ord);
`
