// CLAUDE:SUMMARY Crop geometry in normalized [0,1] space — clamping, corner drags, and relative-to-pixel conversion.
// Package geometry holds the pure crop math used by the page editor and the
// materializer.
//
// All rectangles are relative to a page's native pixel size, so the same
// CropRect is valid whatever size the page is rendered at on screen. Every
// function degrades by clamping; none of them return errors for out-of-range
// input.
package geometry

import (
	"fmt"
	"math"
)

// MinSize is the smallest width or height a crop may have.
const MinSize = 0.1

// CropRect is a crop rectangle relative to the page's native size.
type CropRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DefaultCrop is the crop every new page starts with.
var DefaultCrop = CropRect{X: 0.05, Y: 0.05, W: 0.9, H: 0.9}

// FullCrop keeps the whole image.
var FullCrop = CropRect{X: 0, Y: 0, W: 1, H: 1}

// Corner identifies a drag handle.
type Corner string

const (
	TopLeft     Corner = "top-left"
	TopRight    Corner = "top-right"
	BottomLeft  Corner = "bottom-left"
	BottomRight Corner = "bottom-right"
)

// ParseCorner accepts the long names and the tl/tr/bl/br short forms.
func ParseCorner(s string) (Corner, error) {
	switch s {
	case "top-left", "tl":
		return TopLeft, nil
	case "top-right", "tr":
		return TopRight, nil
	case "bottom-left", "bl":
		return BottomLeft, nil
	case "bottom-right", "br":
		return BottomRight, nil
	default:
		return "", fmt.Errorf("geometry: unknown corner %q", s)
	}
}

func (c Corner) top() bool    { return c == TopLeft || c == TopRight }
func (c Corner) bottom() bool { return c == BottomLeft || c == BottomRight }
func (c Corner) left() bool   { return c == TopLeft || c == BottomLeft }
func (c Corner) right() bool  { return c == TopRight || c == BottomRight }

// Clamp bounds n to [lo, hi]. If lo > hi, lo wins.
func Clamp(n, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, n))
}

// Normalize pulls r back into the valid region: origin in [0, 1-MinSize],
// extent in [MinSize, 1-origin]. NaN components reset to DefaultCrop's.
func Normalize(r CropRect) CropRect {
	if math.IsNaN(r.X) {
		r.X = DefaultCrop.X
	}
	if math.IsNaN(r.Y) {
		r.Y = DefaultCrop.Y
	}
	if math.IsNaN(r.W) {
		r.W = DefaultCrop.W
	}
	if math.IsNaN(r.H) {
		r.H = DefaultCrop.H
	}
	r.X = Clamp(r.X, 0, 1-MinSize)
	r.Y = Clamp(r.Y, 0, 1-MinSize)
	r.W = Clamp(r.W, MinSize, 1-r.X)
	r.H = Clamp(r.H, MinSize, 1-r.Y)
	return r
}

// Valid reports whether r satisfies the crop invariants.
func (r CropRect) Valid() bool {
	const eps = 1e-9
	return r.X >= 0 && r.Y >= 0 &&
		r.W >= MinSize-eps && r.H >= MinSize-eps &&
		r.X+r.W <= 1+eps && r.Y+r.H <= 1+eps
}

// ApplyDrag moves the given corner by (dx, dy), both already divided by the
// rendered container size. The edges opposite the dragged corner stay put.
// A drag past a bound stops at the bound.
func ApplyDrag(r CropRect, c Corner, dx, dy float64) CropRect {
	if math.IsNaN(dx) || math.IsInf(dx, 0) {
		dx = 0
	}
	if math.IsNaN(dy) || math.IsInf(dy, 0) {
		dy = 0
	}
	n := Normalize(r)

	switch {
	case c.top():
		bottom := n.Y + n.H
		n.Y = Clamp(n.Y+dy, 0, bottom-MinSize)
		n.H = Clamp(bottom-n.Y, MinSize, 1-n.Y)
	case c.bottom():
		n.H = Clamp(n.H+dy, MinSize, 1-n.Y)
	}

	switch {
	case c.left():
		right := n.X + n.W
		n.X = Clamp(n.X+dx, 0, right-MinSize)
		n.W = Clamp(right-n.X, MinSize, 1-n.X)
	case c.right():
		n.W = Clamp(n.W+dx, MinSize, 1-n.X)
	}
	return n
}

// Region is an absolute pixel rectangle inside a source image.
type Region struct {
	OriginX int `json:"origin_x"`
	OriginY int `json:"origin_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Empty reports whether the region has no area.
func (g Region) Empty() bool { return g.Width <= 0 || g.Height <= 0 }

// ToPixelRegion converts r to pixels for an image of width×height. The result
// never extends past the image: OriginX+Width <= width, OriginY+Height <= height.
func ToPixelRegion(r CropRect, width, height int) Region {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	ox, w := span(r.X, r.W, width)
	oy, h := span(r.Y, r.H, height)
	return Region{OriginX: ox, OriginY: oy, Width: w, Height: h}
}

// span maps a relative [start, start+extent] onto [0, size] pixels.
func span(start, extent float64, size int) (int, int) {
	origin := roundClamp(start*float64(size), 0, size)
	length := roundClamp(extent*float64(size), 0, size)
	if length > size-origin {
		length = size - origin
	}
	return origin, length
}

func roundClamp(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return lo
	}
	v = math.Round(v)
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}
