// CLAUDE:SUMMARY Image codec collaborator — decode source URI, apply crop/resize actions, encode JPEG (x/image CatmullRom scaling).
package materialize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/scandoc/geometry"
)

// Action is one manipulation step. Exactly one field is set.
type Action struct {
	Crop   *geometry.Region `json:"crop,omitempty"`
	Resize *Resize          `json:"resize,omitempty"`
}

// Resize scales to Width pixels, keeping the aspect ratio.
type Resize struct {
	Width int `json:"width"`
}

// SaveOptions controls encoding. Quality is 1..100.
type SaveOptions struct {
	Quality int
}

// Encoded is an encoded raster image.
type Encoded struct {
	Data   []byte
	Width  int
	Height int
}

// Codec crops, resizes and encodes a source image.
type Codec interface {
	Manipulate(ctx context.Context, uri string, actions []Action, opts SaveOptions) (*Encoded, error)
}

// ImageCodec reads local files (plain paths or file:// URIs) and decodes
// JPEG, PNG, GIF, WebP, TIFF and BMP. Output is always JPEG.
type ImageCodec struct {
	// Root, when set, resolves relative paths and rejects paths outside it.
	Root string
}

// Manipulate implements Codec.
func (c *ImageCodec) Manipulate(ctx context.Context, uri string, actions []Action, opts SaveOptions) (*Encoded, error) {
	path, err := c.resolve(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, a := range actions {
		switch {
		case a.Crop != nil:
			img, err = crop(img, *a.Crop)
		case a.Resize != nil:
			img, err = resize(img, a.Resize.Width)
		default:
			err = fmt.Errorf("empty action")
		}
		if err != nil {
			return nil, fmt.Errorf("%s source %s: %w", format, path, err)
		}
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	b := img.Bounds()
	return &Encoded{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

func (c *ImageCodec) resolve(uri string) (string, error) {
	path := uri
	if strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("parse uri %q: %w", uri, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
		}
		path = u.Path
	}
	if path == "" {
		return "", fmt.Errorf("empty source uri")
	}
	if c.Root == "" {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.Root, path)
	}
	rel, err := filepath.Rel(c.Root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source %q outside root", uri)
	}
	return path, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop cuts region out of img. The region is clipped to the decoded bounds,
// which may differ from the size recorded at capture.
func crop(img image.Image, g geometry.Region) (image.Image, error) {
	b := img.Bounds()
	r := image.Rect(g.OriginX, g.OriginY, g.OriginX+g.Width, g.OriginY+g.Height).
		Add(b.Min).
		Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("crop region %+v is empty for %dx%d image", g, b.Dx(), b.Dy())
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(r), nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

func resize(img image.Image, width int) (image.Image, error) {
	b := img.Bounds()
	if width <= 0 {
		return nil, fmt.Errorf("resize width %d", width)
	}
	height := max(1, (b.Dy()*width+b.Dx()/2)/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}
