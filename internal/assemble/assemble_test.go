package assemble_test

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/assemble"
	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/tile"
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

// TestRenderSingleTileInterior covers scenario S6: a region entirely
// inside one tile's support should be fully masked valid.
func TestRenderSingleTileInterior(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")
	writeSyntheticPNG(t, path, 64, 64)

	tl := tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 64, X: 64}})
	canvas, err := assemble.Render([]*tile.Tile{tl}, assemble.Options{RegionSize: 32})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if canvas.H != 64 || canvas.W != 64 {
		t.Fatalf("canvas dims = %dx%d, want 64x64", canvas.H, canvas.W)
	}
	for y := 10; y < 54; y++ {
		for x := 10; x < 54; x++ {
			if !canvas.Valid[y][x] {
				t.Fatalf("interior pixel (%d,%d) should be valid", y, x)
			}
		}
	}
}

// TestRenderZBufferPrefersCloserTile covers scenario 8: in the overlap of
// two identical tiles, each output pixel comes from whichever tile's
// centre is closer.
func TestRenderZBufferPrefersCloserTile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")
	writeSyntheticPNG(t, path, 100, 100)

	a := tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 100, X: 100}})
	b := tile.New(1, path, geom.RigidTransform{
		Translation: geom.Point{Y: 0, X: 60},
		MappedSize:  geom.Point{Y: 100, X: 100},
	})

	canvas, err := assemble.Render([]*tile.Tile{a, b}, assemble.Options{RegionSize: 64})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// A point near a's own centre (50,50), well inside the overlap region
	// [60,100), should be covered and valid.
	if !canvas.Valid[50][65] {
		t.Fatalf("expected overlap pixel to be covered")
	}
	// a samples its own pixel (50,65), 15.5px from its centre; b would
	// sample its pixel (50,5), 44.5px from its centre. The two differ, so
	// the canvas must hold a's value.
	v := 128 + 80*math.Sin(float64(65)*0.3) + 40*math.Cos(float64(50)*0.21)
	want := float64(uint8(math.Max(0, math.Min(255, v)))) / 255.0
	if canvas.Pix[50][65] != want {
		t.Fatalf("overlap pixel = %v, want %v from the closer tile a", canvas.Pix[50][65], want)
	}
}
