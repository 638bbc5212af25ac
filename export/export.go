// CLAUDE:SUMMARY PDF Exporter — resolve ordered pages, materialize all (abort on first failure), render to temp, move to deterministic path, optional share.
// Package export assembles a document's materialized pages into one PDF and
// hands the result to sharing collaborators.
//
// Usage:
//
//	ex := export.New(store, materializer, export.Config{Dir: "data/exports"})
//	path, err := ex.Export(ctx, docID)
//	res, err := ex.Share(ctx, docID) // res.Shared is false when no sharer ran
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/materialize"
)

// ErrEmptyDocument means there is nothing to export.
var ErrEmptyDocument = errors.New("document has no pages")

// Source resolves a document and its pages in display order.
type Source interface {
	DocumentWithPages(docID string) (docs.Document, []docs.Page, bool)
}

// Materializer produces the ordered page images.
type Materializer interface {
	MaterializeAll(ctx context.Context, pages []docs.Page) ([]*materialize.Artifact, error)
}

// Config configures an Exporter.
type Config struct {
	Dir      string  // final PDFs; default "exports"
	WorkDir  string  // temporary renders; default os.TempDir()
	PageSize string  // default "A4"
	MarginMM float64 // default 18
	Renderer Renderer
	Sharers  []Sharer
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Dir == "" {
		c.Dir = "exports"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.PageSize == "" {
		c.PageSize = "A4"
	}
	if c.MarginMM <= 0 {
		c.MarginMM = 18
	}
	if c.Renderer == nil {
		c.Renderer = PDFCPURenderer{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Exporter turns documents into PDF files.
type Exporter struct {
	src Source
	mat Materializer
	cfg Config
}

// New returns an Exporter reading from src.
func New(src Source, mat Materializer, cfg Config) *Exporter {
	cfg.defaults()
	return &Exporter{src: src, mat: mat, cfg: cfg}
}

// ShareResult is the outcome of Share. Path is set whenever the export
// succeeded, whatever happened to sharing.
type ShareResult struct {
	Path   string   `json:"path"`
	Shared bool     `json:"shared"`
	Via    []string `json:"via,omitempty"`
}

// Export writes the document as PDF and returns the final path. Pages appear
// in their order field order. Any page that fails to materialize aborts the
// export and no file is left behind.
func (e *Exporter) Export(ctx context.Context, docID string) (string, error) {
	doc, pages, ok := e.src.DocumentWithPages(docID)
	if !ok {
		return "", fmt.Errorf("document %s: %w", docID, docs.ErrNotFound)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("document %s: %w", docID, ErrEmptyDocument)
	}

	arts, err := e.mat.MaterializeAll(ctx, pages)
	if err != nil {
		return "", err
	}
	images := make([][]byte, len(arts))
	for i, a := range arts {
		images[i] = a.Data
	}
	layout := Layout{Title: doc.Title, PageSize: e.cfg.PageSize, MarginMM: e.cfg.MarginMM, Images: images}

	tmp, err := e.render(ctx, layout)
	if err != nil {
		return "", err
	}
	target := TargetPath(e.cfg.Dir, doc.Title, doc.ID)
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("export dir: %w", err)
	}
	if err := moveFile(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("move export: %w", err)
	}
	e.cfg.Logger.Info("export: document exported", "doc_id", doc.ID, "pages", len(pages), "path", target)
	return target, nil
}

func (e *Exporter) render(ctx context.Context, layout Layout) (string, error) {
	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("work dir: %w", err)
	}
	f, err := os.CreateTemp(e.cfg.WorkDir, "scandoc-*.pdf")
	if err != nil {
		return "", fmt.Errorf("temp render file: %w", err)
	}
	err = e.cfg.Renderer.Render(ctx, layout, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("render pdf: %w", err)
	}
	return f.Name(), nil
}

// Share exports the document, then hands it to every available sharer.
// Sharing failures are logged only; the exported path is still returned.
func (e *Exporter) Share(ctx context.Context, docID string) (*ShareResult, error) {
	path, err := e.Export(ctx, docID)
	if err != nil {
		return nil, err
	}
	res := &ShareResult{Path: path}
	doc, _, _ := e.src.DocumentWithPages(docID)
	for _, s := range e.cfg.Sharers {
		if !s.Available() {
			continue
		}
		if err := s.Share(ctx, path, doc.Title); err != nil {
			e.cfg.Logger.Warn("export: share failed", "doc_id", docID, "sharer", s.Name(), "error", err)
			continue
		}
		res.Shared = true
		res.Via = append(res.Via, s.Name())
	}
	if !res.Shared {
		e.cfg.Logger.Info("export: sharing skipped", "doc_id", docID, "path", path)
	}
	return res, nil
}

// TargetPath is the deterministic export location for a document:
// <dir>/<title>_<docID>.pdf with whitespace runs and path separators in the
// title replaced by "_".
func TargetPath(dir, title, docID string) string {
	return filepath.Join(dir, FileBase(title)+"_"+docID+".pdf")
}

// maxBaseBytes keeps <base>_<docID>.pdf under the usual 255-byte name limit.
const maxBaseBytes = 200

// FileBase turns a title into a file name fragment of at most maxBaseBytes
// bytes, cut on a rune boundary.
func FileBase(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))
	var b strings.Builder
	gap := false
	for _, r := range title {
		switch {
		case unicode.IsSpace(r) || r == '/' || r == '\\' || r == 0:
			gap = true
			continue
		case gap:
			b.WriteByte('_')
			gap = false
		}
		b.WriteRune(r)
	}
	if gap {
		b.WriteByte('_')
	}
	out := truncateUTF8(b.String(), maxBaseBytes)
	if out == "" || out == "." || out == ".." {
		return docs.DefaultTitle
	}
	return out
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// sameFile reports whether a and b name the same existing file. Copying a
// file onto itself would truncate it.
func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

func copyFile(src, dst string) error {
	if sameFile(src, dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
