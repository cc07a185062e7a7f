package imageproc_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/bob-anderson-ok/emregister/internal/imageproc"
)

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128}
	for in, want := range cases {
		if got := imageproc.NextPow2(in); got != want {
			t.Errorf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPadForPhaseCorrelationPlacesOriginalAtOrigin(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	im := imageproc.New(5, 7)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			im.Pix[y][x] = float64(y*7+x) / 100
		}
	}
	padded := imageproc.PadForPhaseCorrelation(im, 5, 7, rng)
	if padded.H != 8 || padded.W != 8 {
		t.Fatalf("padded dims = %dx%d, want 8x8 (next pow2)", padded.H, padded.W)
	}
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			if padded.Pix[y][x] != im.Pix[y][x] {
				t.Fatalf("padded(%d,%d) = %v, want %v", y, x, padded.Pix[y][x], im.Pix[y][x])
			}
		}
	}
}

func TestPadForOverlapRejectsBadRatio(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	im := imageproc.New(4, 4)
	if _, err := imageproc.PadForOverlap(im, 0, rng); err == nil {
		t.Fatalf("expected error for minOverlap <= 0")
	}
	if _, err := imageproc.PadForOverlap(im, 1.5, rng); err == nil {
		t.Fatalf("expected error for minOverlap > 1")
	}
}

func TestCropInBoundsAndOutOfBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	im := imageproc.New(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			im.Pix[y][x] = float64(y*4 + x)
		}
	}
	cropped := imageproc.Crop(im, 1, 1, 2, 2, imageproc.CValConstant, -1, rng)
	if cropped.Pix[0][0] != im.Pix[1][1] || cropped.Pix[1][1] != im.Pix[2][2] {
		t.Fatalf("in-bounds crop mismatch: %+v", cropped.Pix)
	}

	shifted := imageproc.Crop(im, -1, -1, 2, 2, imageproc.CValConstant, -1, rng)
	if shifted.Pix[0][0] != -1 {
		t.Fatalf("expected constant fill for out-of-bounds pixel, got %v", shifted.Pix[0][0])
	}
	if shifted.Pix[1][1] != im.Pix[0][0] {
		t.Fatalf("expected in-bounds pixel to pass through")
	}
}

func TestReplaceExtremaOnlyTouchesSaturatedPixels(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	im := imageproc.New(3, 3)
	im.Pix[0][0] = 0
	im.Pix[1][1] = 1
	im.Pix[2][2] = 0.5
	out := imageproc.ReplaceExtrema(im, 0.5, 0.01, rng)
	if out.Pix[2][2] != 0.5 {
		t.Fatalf("non-extremal pixel should be untouched, got %v", out.Pix[2][2])
	}
	if out.Pix[0][0] == 0 || out.Pix[1][1] == 1 {
		t.Fatalf("extremal pixels should have been replaced")
	}
}

func TestReduceHalvesDimensions(t *testing.T) {
	im := imageproc.New(64, 64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			im.Pix[y][x] = 0.5
		}
	}
	out, err := imageproc.Reduce(im, 0.5)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if out.H != 32 || out.W != 32 {
		t.Fatalf("Reduce dims = %dx%d, want 32x32", out.H, out.W)
	}
	if math.Abs(out.Pix[10][10]-0.5) > 0.05 {
		t.Fatalf("Reduce of a flat image should stay flat, got %v", out.Pix[10][10])
	}
}

func TestBilinearExactAtGridPoints(t *testing.T) {
	im := imageproc.New(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			im.Pix[y][x] = float64(y*10 + x)
		}
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			got := imageproc.Bilinear(im, float64(y), float64(x))
			if got != im.Pix[y][x] {
				t.Errorf("Bilinear(%d,%d) = %v, want %v", y, x, got, im.Pix[y][x])
			}
		}
	}
}

func TestComputeStatsOfConstantImage(t *testing.T) {
	im := imageproc.New(5, 5)
	for y := range im.Pix {
		for x := range im.Pix[y] {
			im.Pix[y][x] = 0.25
		}
	}
	stats := imageproc.ComputeStats(im)
	if stats.Median != 0.25 || stats.StdDev != 0 {
		t.Fatalf("stats of a constant image = %+v, want median 0.25, stddev 0", stats)
	}
}
