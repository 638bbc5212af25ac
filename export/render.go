// CLAUDE:SUMMARY PDF rendering collaborator — pdfcpu image import, one centered image per fixed-size page with margins.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const pointsPerMM = 72 / 25.4

// Layout describes a single-column document: one image per page, each
// centered on a PageSize page inside MarginMM on every side.
type Layout struct {
	Title    string
	PageSize string  // paper name, e.g. "A4" or "Letter"
	MarginMM float64 // fixed margin on every edge
	Images   [][]byte
}

// Renderer writes a Layout as PDF.
type Renderer interface {
	Render(ctx context.Context, layout Layout, w io.Writer) error
}

// PDFCPURenderer renders with pdfcpu's image import.
type PDFCPURenderer struct{}

// Render implements Renderer.
func (PDFCPURenderer) Render(ctx context.Context, layout Layout, w io.Writer) error {
	if len(layout.Images) == 0 {
		return ErrEmptyDocument
	}
	details, err := importDetails(layout.PageSize, layout.MarginMM)
	if err != nil {
		return err
	}
	imp, err := pdfcpu.ParseImportDetails(details, types.POINTS)
	if err != nil {
		return fmt.Errorf("pdf import details %q: %w", details, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	readers := make([]io.Reader, len(layout.Images))
	for i, img := range layout.Images {
		readers[i] = bytes.NewReader(img)
	}
	conf := model.NewDefaultConfiguration()
	if err := api.ImportImages(nil, w, readers, imp, conf); err != nil {
		return fmt.Errorf("pdfcpu import images: %w", err)
	}
	return nil
}

// PaperDim returns the size in points of a named paper format.
func PaperDim(name string) (width, height float64, err error) {
	d, ok := types.PaperSize[name]
	if !ok {
		d, ok = types.PaperSize[strings.ToUpper(name)]
	}
	if !ok || d == nil {
		return 0, 0, fmt.Errorf("unknown page size %q", name)
	}
	return d.Width, d.Height, nil
}

// MarginScale is the relative image scale that keeps marginMM free on the
// tighter axis of the page.
func MarginScale(width, height, marginMM float64) float64 {
	m := 2 * marginMM * pointsPerMM
	s := math.Min((width-m)/width, (height-m)/height)
	return math.Max(0.01, math.Min(1, s))
}

func importDetails(pageSize string, marginMM float64) (string, error) {
	if pageSize == "" {
		pageSize = "A4"
	}
	w, h, err := PaperDim(pageSize)
	if err != nil {
		return "", err
	}
	if _, ok := types.PaperSize[pageSize]; !ok {
		pageSize = strings.ToUpper(pageSize)
	}
	return fmt.Sprintf("formsize:%s, position:c, scalefactor:%.4f rel", pageSize, MarginScale(w, h, marginMM)), nil
}
