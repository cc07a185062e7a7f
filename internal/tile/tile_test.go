package tile_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/tile"
)

func writeTestPNG(t *testing.T, path string, h, w int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %q: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestImageLazyLoadAndEvict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")
	writeTestPNG(t, path, 10, 12)

	tl := tile.New(0, path, geom.Identity())
	im, err := tl.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if im.H != 10 || im.W != 12 {
		t.Fatalf("loaded dims = %dx%d, want 10x12", im.H, im.W)
	}
	if tl.Transform.MappedSize != (geom.Point{Y: 10, X: 12}) {
		t.Fatalf("MappedSize not auto-filled: %+v", tl.Transform.MappedSize)
	}

	tl.EvictImage()
	im2, err := tl.Image()
	if err != nil {
		t.Fatalf("Image after evict: %v", err)
	}
	if im2.H != im.H || im2.W != im.W {
		t.Fatalf("reload after evict produced different dims")
	}
}

func TestCentreMatchesTransform(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.png")
	writeTestPNG(t, path, 20, 40)

	tr := geom.RigidTransform{MappedSize: geom.Point{Y: 20, X: 40}}
	tl := tile.New(0, path, tr)
	want := tr.FixedBoundingBox().Centre()
	if tl.Centre() != want {
		t.Fatalf("Centre() = %+v, want %+v", tl.Centre(), want)
	}
}
