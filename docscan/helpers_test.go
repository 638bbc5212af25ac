package docscan

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/export"
	"github.com/hazyhaar/scandoc/idgen"
)

// stubRenderer writes a fake PDF listing the page count.
type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, l export.Layout, w io.Writer) error {
	_, err := fmt.Fprintf(w, "%%PDF-stub %d pages", len(l.Images))
	return err
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "scandoc.db")
	cfg.ExportDir = filepath.Join(dir, "exports")
	cfg.WorkDir = filepath.Join(dir, "work")
	return cfg
}

func openService(t *testing.T, cfg *Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithRenderer(stubRenderer{}),
		WithDocsOptions(docs.WithIDGenerators(idgen.Sequence("doc_"), idgen.Sequence("pg_"))),
	}, opts...)
	svc, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return openService(t, testConfig(t), opts...)
}

// writeScan writes a w x h PNG and returns its path.
func writeScan(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), fmt.Sprintf("scan_%dx%d.png", w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}
