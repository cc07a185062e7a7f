// Package debugimage writes diagnostic PNG dumps of intermediate
// registration products (padded images, correlation surfaces, canvases).
// Two export modes mirror the teacher's own two PNG writers in
// imageFuncs.go: a percentile-stretched 8-bit "view" PNG
// (MatrixToGrayViewPercentile, reused here as imageproc.SaveGray8) for
// eyeballing, and a fixed-scale 16-bit "data" PNG (MatrixToGray16Data) for
// lossless numeric round-tripping of values that do not live in [0,1],
// such as a raw phase-correlation surface or a centre-distance map.
package debugimage

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/bob-anderson-ok/emregister/internal/imageproc"
)

// ErrInvalidInput is returned for an empty image or non-positive scale.
var ErrInvalidInput = errors.New("debugimage: invalid input")

// SaveView writes im as a percentile-stretched 8-bit PNG, suitable for
// quick visual inspection of values already nominally in [0,1].
func SaveView(path string, im imageproc.Image, pLow, pHigh float64) error {
	return imageproc.SaveGray8(path, im, pLow, pHigh)
}

// SaveData writes im as a 16-bit PNG with Y16 = round(v * scale), clamped
// to [0, 65535], so arbitrary-range values (a raw correlation surface, a
// centre-distance map in pixels) round-trip losslessly for offline
// analysis instead of being squashed into a stretched 8-bit view.
func SaveData(path string, im imageproc.Image, scale float64) error {
	gray, err := matrixToGray16Data(im, scale)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("debugimage: create %q: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, gray)
}

func matrixToGray16Data(m imageproc.Image, scale float64) (*image.Gray16, error) {
	if m.H == 0 || m.W == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("%w: scale must be > 0", ErrInvalidInput)
	}

	img := image.NewGray16(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		row := y * img.Stride
		for x := 0; x < m.W; x++ {
			v := m.Pix[y][x]
			i := row + 2*x
			if math.IsNaN(v) || math.IsInf(v, 0) {
				img.Pix[i], img.Pix[i+1] = 0, 0
				continue
			}
			u := math.Round(v * scale)
			if u < 0 {
				u = 0
			} else if u > 65535 {
				u = 65535
			}
			y16 := uint16(u)
			img.Pix[i] = uint8(y16 >> 8)
			img.Pix[i+1] = uint8(y16)
		}
	}
	return img, nil
}
