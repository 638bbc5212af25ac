package geometry

import (
	"math"
	"math/rand"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestClamp(t *testing.T) {
	cases := []struct {
		n, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{0.3, 0.4, 0.2, 0.4}, // inverted bounds: lo wins
	}
	for _, c := range cases {
		if got := Clamp(c.n, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", c.n, c.lo, c.hi, got, c.want)
		}
	}
}

func TestParseCorner(t *testing.T) {
	for in, want := range map[string]Corner{
		"top-left": TopLeft, "tl": TopLeft,
		"top-right": TopRight, "tr": TopRight,
		"bottom-left": BottomLeft, "bl": BottomLeft,
		"bottom-right": BottomRight, "br": BottomRight,
	} {
		got, err := ParseCorner(in)
		if err != nil {
			t.Fatalf("ParseCorner(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseCorner(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseCorner("middle"); err == nil {
		t.Error("expected error for unknown corner")
	}
}

func TestApplyDrag_TopKeepsBottomEdge(t *testing.T) {
	r := CropRect{X: 0.1, Y: 0.2, W: 0.5, H: 0.5}
	got := ApplyDrag(r, TopLeft, 0, 0.1)
	if !near(got.Y, 0.3) {
		t.Errorf("Y = %v, want 0.3", got.Y)
	}
	if !near(got.Y+got.H, 0.7) {
		t.Errorf("bottom edge moved: %v, want 0.7", got.Y+got.H)
	}

	// Dragging the top far above the page stops at 0; bottom still fixed.
	got = ApplyDrag(r, TopRight, 0, -5)
	if got.Y != 0 {
		t.Errorf("Y = %v, want 0", got.Y)
	}
	if !near(got.H, 0.7) {
		t.Errorf("H = %v, want 0.7", got.H)
	}
}

func TestApplyDrag_TopStopsAtMinSize(t *testing.T) {
	r := CropRect{X: 0.1, Y: 0.2, W: 0.5, H: 0.5}
	got := ApplyDrag(r, TopLeft, 0, 0.9)
	if !near(got.H, MinSize) {
		t.Errorf("H = %v, want %v", got.H, MinSize)
	}
	if !near(got.Y+got.H, 0.7) {
		t.Errorf("bottom edge moved: %v", got.Y+got.H)
	}
}

func TestApplyDrag_BottomOnlyChangesHeight(t *testing.T) {
	r := CropRect{X: 0.1, Y: 0.2, W: 0.5, H: 0.5}
	got := ApplyDrag(r, BottomRight, 0, 0.1)
	if got.Y != 0.2 || !near(got.H, 0.6) {
		t.Errorf("got %+v", got)
	}
	got = ApplyDrag(r, BottomLeft, 0, 1)
	if !near(got.Y+got.H, 1) {
		t.Errorf("bottom should stop at 1, got %v", got.Y+got.H)
	}
	got = ApplyDrag(r, BottomLeft, 0, -1)
	if !near(got.H, MinSize) {
		t.Errorf("H = %v, want %v", got.H, MinSize)
	}
}

func TestApplyDrag_LeftRight(t *testing.T) {
	r := CropRect{X: 0.2, Y: 0.2, W: 0.4, H: 0.4}

	got := ApplyDrag(r, TopLeft, -0.1, 0)
	if !near(got.X, 0.1) || !near(got.X+got.W, 0.6) {
		t.Errorf("left drag: %+v", got)
	}
	got = ApplyDrag(r, BottomRight, 0.2, 0)
	if got.X != 0.2 || !near(got.W, 0.6) {
		t.Errorf("right drag: %+v", got)
	}
	got = ApplyDrag(r, TopRight, 5, 0)
	if !near(got.X+got.W, 1) {
		t.Errorf("right drag past bound: %+v", got)
	}
}

func TestApplyDrag_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	corners := []Corner{TopLeft, TopRight, BottomLeft, BottomRight}

	for trial := 0; trial < 200; trial++ {
		// Start from arbitrary, possibly invalid, rectangles.
		r := CropRect{
			X: rng.Float64()*3 - 1,
			Y: rng.Float64()*3 - 1,
			W: rng.Float64()*3 - 1,
			H: rng.Float64()*3 - 1,
		}
		for step := 0; step < 50; step++ {
			c := corners[rng.Intn(len(corners))]
			r = ApplyDrag(r, c, rng.Float64()*2-1, rng.Float64()*2-1)
			if !r.Valid() {
				t.Fatalf("trial %d step %d: invalid rect %+v", trial, step, r)
			}
		}
	}
}

func TestApplyDrag_NaNDelta(t *testing.T) {
	r := DefaultCrop
	got := ApplyDrag(r, TopLeft, math.NaN(), math.Inf(1))
	if !near(got.X, r.X) || !near(got.Y, r.Y) || !near(got.W, r.W) || !near(got.H, r.H) {
		t.Errorf("NaN/Inf delta changed rect: %+v", got)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(CropRect{X: -1, Y: 0.95, W: 0, H: 3})
	if got.X != 0 || !near(got.Y, 0.9) || got.W != MinSize || !near(got.H, 0.1) {
		t.Errorf("Normalize = %+v", got)
	}
	if !got.Valid() {
		t.Error("normalized rect should be valid")
	}
	if Normalize(DefaultCrop) != DefaultCrop {
		t.Error("Normalize changed a valid rect")
	}
}

func TestToPixelRegion(t *testing.T) {
	cases := []struct {
		name string
		r    CropRect
		w, h int
		want Region
	}{
		{"default crop", DefaultCrop, 2000, 3000, Region{100, 150, 1800, 2700}},
		{"full", FullCrop, 640, 480, Region{0, 0, 640, 480}},
		{"rounding", CropRect{X: 0.333, Y: 0.5, W: 0.5, H: 0.5}, 101, 11, Region{34, 6, 51, 5}},
		{"extent capped at edge", CropRect{X: 0.6, Y: 0.6, W: 0.5, H: 0.5}, 100, 100, Region{60, 60, 40, 40}},
		{"negative origin clamped", CropRect{X: -0.2, Y: -0.1, W: 0.5, H: 0.5}, 100, 100, Region{0, 0, 50, 50}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToPixelRegion(c.r, c.w, c.h); got != c.want {
				t.Errorf("ToPixelRegion = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestToPixelRegion_NeverExceedsBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		r := Normalize(CropRect{X: rng.Float64(), Y: rng.Float64(), W: rng.Float64(), H: rng.Float64()})
		w, h := 1+rng.Intn(5000), 1+rng.Intn(5000)
		g := ToPixelRegion(r, w, h)
		if g.OriginX < 0 || g.OriginY < 0 || g.Width < 0 || g.Height < 0 {
			t.Fatalf("negative component %+v for %+v on %dx%d", g, r, w, h)
		}
		if g.OriginX+g.Width > w || g.OriginY+g.Height > h {
			t.Fatalf("region %+v exceeds %dx%d (rect %+v)", g, w, h, r)
		}
	}
}

func TestRegionEmpty(t *testing.T) {
	if !(Region{Width: 0, Height: 5}).Empty() {
		t.Error("zero width should be empty")
	}
	if (Region{Width: 1, Height: 1}).Empty() {
		t.Error("1x1 should not be empty")
	}
	if !ToPixelRegion(DefaultCrop, 0, 0).Empty() {
		t.Error("region of a 0x0 image should be empty")
	}
}
