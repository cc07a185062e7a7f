package tilepair_test

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/tile"
	"github.com/bob-anderson-ok/emregister/internal/tilepair"
)

func writeSyntheticPNG(t *testing.T, path string, h, w int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128 + 80*math.Sin(float64(x)*0.3) + 40*math.Cos(float64(y)*0.21)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Max(0, math.Min(255, v)))})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

// TestAlignRecoversKnownOffset mirrors scenario S5: two tiles sharing the
// same source image, placed 40% overlapping with a known relative offset.
func TestAlignRecoversKnownOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.png")
	writeSyntheticPNG(t, path, 200, 200)

	a := tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 200, X: 200}})
	b := tile.New(1, path, geom.RigidTransform{
		Translation: geom.Point{Y: 0, X: 120},
		MappedSize:  geom.Point{Y: 200, X: 200},
	})

	rng := rand.New(rand.NewSource(7))
	rec, err := tilepair.Align(a, b, 1.0, rng)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if rec.Weight <= 0.5 {
		t.Fatalf("expected weight > 0.5 for a clean overlapping pair, got %v", rec.Weight)
	}
	want := geom.Point{Y: 0, X: 120}
	if math.Abs(rec.Peak.Y-want.Y) > 1 || math.Abs(rec.Peak.X-want.X) > 1 {
		t.Fatalf("recovered offset %+v, want within 1px of %+v", rec.Peak, want)
	}
}

// TestAlignRecoversKnownOffsetAtReducedScale covers workingScale < 1.0:
// the crop rectangles mapToTileSpace computes are in reduced-resolution
// pixel coordinates, so Align must crop from equally-reduced images, not
// from the full-resolution array.
func TestAlignRecoversKnownOffsetAtReducedScale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.png")
	writeSyntheticPNG(t, path, 300, 300)

	a := tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 300, X: 300}})
	b := tile.New(1, path, geom.RigidTransform{
		Translation: geom.Point{Y: 0, X: 180},
		MappedSize:  geom.Point{Y: 300, X: 300},
	})

	rng := rand.New(rand.NewSource(11))
	rec, err := tilepair.Align(a, b, 0.5, rng)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if rec.Weight <= 0.5 {
		t.Fatalf("expected weight > 0.5 for a clean overlapping pair, got %v", rec.Weight)
	}
	want := geom.Point{Y: 0, X: 180}
	if math.Abs(rec.Peak.Y-want.Y) > 4 || math.Abs(rec.Peak.X-want.X) > 4 {
		t.Fatalf("recovered offset %+v, want within 4px of %+v", rec.Peak, want)
	}
}

func TestAlignNoOverlapReturnsZeroWeight(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.png")
	writeSyntheticPNG(t, path, 100, 100)

	a := tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 100, X: 100}})
	b := tile.New(1, path, geom.RigidTransform{
		Translation: geom.Point{Y: 0, X: 1000},
		MappedSize:  geom.Point{Y: 100, X: 100},
	})

	rng := rand.New(rand.NewSource(1))
	rec, err := tilepair.Align(a, b, 1.0, rng)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if rec.Weight != 0 {
		t.Fatalf("expected zero weight for non-overlapping tiles, got %v", rec.Weight)
	}
}
