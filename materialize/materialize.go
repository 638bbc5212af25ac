// CLAUDE:SUMMARY Page Materializer — crop region from geometry, long-edge cap, JPEG encode; index-stable MaterializeAll with optional workers.
// Package materialize turns a stored page (source image, crop, filter) into
// the processed JPEG that goes into an exported PDF.
//
// Usage:
//
//	m := materialize.New(&materialize.ImageCodec{}, materialize.Config{})
//	art, err := m.Materialize(ctx, page)
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/scandoc/docs"
	"github.com/hazyhaar/scandoc/geometry"
)

// Config tunes the materializer.
type Config struct {
	MaxWidth    int // cropped width above this is downscaled; default 1800
	Quality     int // JPEG quality 1..100; default 90
	Concurrency int // pages processed at once by MaterializeAll; default 1
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 1800
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 90
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// MaterializationError reports a page whose image could not be produced.
type MaterializationError struct {
	PageID string
	Err    error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize page %s: %v", e.PageID, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// ErrEmptyRegion is wrapped when a crop maps to zero pixels.
var ErrEmptyRegion = errors.New("crop region is empty")

// Artifact is a materialized page image.
type Artifact struct {
	PageID string
	Data   []byte // JPEG
	Width  int
	Height int
}

// Materializer produces page artifacts through a Codec.
type Materializer struct {
	codec Codec
	cfg   Config
}

// New returns a Materializer using codec for pixel work.
func New(codec Codec, cfg Config) *Materializer {
	cfg.defaults()
	return &Materializer{codec: codec, cfg: cfg}
}

// Plan returns the codec actions for page: a crop to the page's pixel region
// and, when that region is wider than MaxWidth, a proportional resize.
func (m *Materializer) Plan(page docs.Page) ([]Action, error) {
	region := geometry.ToPixelRegion(page.Crop, page.Width, page.Height)
	if region.Empty() {
		return nil, fmt.Errorf("%w: %dx%d source", ErrEmptyRegion, page.Width, page.Height)
	}
	actions := []Action{{Crop: &region}}
	if region.Width > m.cfg.MaxWidth {
		actions = append(actions, Action{Resize: &Resize{Width: m.cfg.MaxWidth}})
	}
	return actions, nil
}

// Materialize produces the artifact for one page. The page's filter is
// recorded intent only: every kind, known or not, renders as color.
func (m *Materializer) Materialize(ctx context.Context, page docs.Page) (*Artifact, error) {
	if !page.Filter.Known() {
		m.cfg.Logger.Debug("materialize: unknown filter treated as color",
			"page_id", page.ID, "filter", page.Filter)
	}
	actions, err := m.Plan(page)
	if err != nil {
		return nil, &MaterializationError{PageID: page.ID, Err: err}
	}
	enc, err := m.codec.Manipulate(ctx, page.URI, actions, SaveOptions{Quality: m.cfg.Quality})
	if err != nil {
		return nil, &MaterializationError{PageID: page.ID, Err: err}
	}
	return &Artifact{PageID: page.ID, Data: enc.Data, Width: enc.Width, Height: enc.Height}, nil
}

// MaterializeAll materializes pages and returns artifacts in the same order.
// ctx is checked before each page. On failure the error of the lowest failing
// index is returned and no artifacts are.
func (m *Materializer) MaterializeAll(ctx context.Context, pages []docs.Page) ([]*Artifact, error) {
	out := make([]*Artifact, len(pages))
	if m.cfg.Concurrency <= 1 || len(pages) < 2 {
		for i, p := range pages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			art, err := m.Materialize(ctx, p)
			if err != nil {
				return nil, err
			}
			out[i] = art
		}
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(pages))
	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, p := range pages {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
		}
		if errs[i] != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			art, err := m.Materialize(ctx, p)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			out[i] = art
		}()
	}
	wg.Wait()

	// A page failing cancels the rest; report its error rather than the
	// cancellations it caused.
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return nil, first
	}
	return out, nil
}
