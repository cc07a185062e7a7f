package driver_test

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/driver"
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

// TestRunBuildsChainLayout covers a 3-tile row: tile 0 and 1 overlap, tile
// 1 and 2 overlap, tile 0 and 2 do not — the layout should have exactly
// those two edges.
func TestRunBuildsChainLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.png")
	writeSyntheticPNG(t, path, 150, 150)

	tiles := []*tile.Tile{
		tile.New(0, path, geom.RigidTransform{MappedSize: geom.Point{Y: 150, X: 150}}),
		tile.New(1, path, geom.RigidTransform{Translation: geom.Point{Y: 0, X: 100}, MappedSize: geom.Point{Y: 150, X: 150}}),
		tile.New(2, path, geom.RigidTransform{Translation: geom.Point{Y: 0, X: 200}, MappedSize: geom.Point{Y: 150, X: 150}}),
	}

	lay, failures := driver.Run(tiles, driver.Options{MinOverlapFraction: 0.05, Seed: 3})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if lay.EdgeCount() != 2 {
		t.Fatalf("EdgeCount = %d, want 2 (0-1 and 1-2)", lay.EdgeCount())
	}
	if _, _, ok := lay.Offset(0, 2); ok {
		t.Fatalf("non-overlapping tiles 0 and 2 should have no edge")
	}
	if _, _, ok := lay.Offset(0, 1); !ok {
		t.Fatalf("expected an edge between overlapping tiles 0 and 1")
	}
}

// TestRunAccountsForEveryCandidatePair covers spec.md §4.5: every pair
// whose fixed-space boxes overlap enough to be a candidate must end up
// represented in the result, either as a layout edge (useful weight) or
// as a recorded failure (errored, or aligned with zero confidence) — a
// candidate pair silently missing from both would mean a caller can no
// longer tell an under-covered mosaic from a fully-aligned one. This
// holds regardless of the actual correlation weight a given pair
// produces, so it exercises the zero-weight bookkeeping fix without
// depending on exact FFT peak numerics.
func TestRunAccountsForEveryCandidatePair(t *testing.T) {
	dir := t.TempDir()
	sharedPath := filepath.Join(dir, "shared.png")
	writeSyntheticPNG(t, sharedPath, 150, 150)
	// A second, unrelated tile whose content shares no true offset with
	// the others, translated so its bounding box only barely clears the
	// candidacy threshold — likely to align poorly or not at all.
	noisyPath := filepath.Join(dir, "noisy.png")
	writeNoisySlicePNG(t, noisyPath, 150, 150)

	tiles := []*tile.Tile{
		tile.New(0, sharedPath, geom.RigidTransform{MappedSize: geom.Point{Y: 150, X: 150}}),
		tile.New(1, sharedPath, geom.RigidTransform{Translation: geom.Point{Y: 0, X: 100}, MappedSize: geom.Point{Y: 150, X: 150}}),
		tile.New(2, noisyPath, geom.RigidTransform{Translation: geom.Point{Y: 0, X: 142}, MappedSize: geom.Point{Y: 150, X: 150}}),
	}

	lay, failures := driver.Run(tiles, driver.Options{MinOverlapFraction: 0.05, Seed: 9})

	recorded := make(map[[2]int]bool, len(failures))
	for _, f := range failures {
		recorded[[2]int{f.TileA, f.TileB}] = true
	}

	for i := 0; i < len(tiles); i++ {
		for j := i + 1; j < len(tiles); j++ {
			bi := tiles[i].Transform.FixedBoundingBox()
			bj := tiles[j].Transform.FixedBoundingBox()
			if bi.OverlapFraction(bj) < 0.05 {
				continue
			}
			_, _, hasEdge := lay.Offset(tiles[i].ID, tiles[j].ID)
			if !hasEdge && !recorded[[2]int{tiles[i].ID, tiles[j].ID}] {
				t.Fatalf("candidate pair %d-%d has neither a layout edge nor a recorded failure", tiles[i].ID, tiles[j].ID)
			}
		}
	}
}

// writeNoisySlicePNG writes an image with no relationship to
// writeSyntheticPNG's pattern, so a pair built from the two shares no
// true offset for phase correlation to recover.
func writeNoisySlicePNG(t *testing.T, path string, h, w int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (x*37 + y*91) % 256
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
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
