// Package rotation implements the brute-force rotation search: for a list
// of candidate angles, rotate the moving image and run phase correlation
// at each, keeping the best-weighted result.
package rotation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/bob-anderson-ok/emregister/internal/correlate"
	"github.com/bob-anderson-ok/emregister/internal/imageproc"
)

// ErrInvalidInput is returned for an empty angle list.
var ErrInvalidInput = errors.New("rotation: invalid input")

// Options configures a brute-force slice-to-slice search.
type Options struct {
	// MinOverlap is the padding ratio passed to imageproc.PadForOverlap.
	MinOverlap float64
	// AngleSearchRange lists the candidate angles, in degrees, to try. If
	// nil, a fine pass of 21 angles spaced 0.1 degrees, from 1 degree below
	// to 1 degree above the coarse winner, is run after the (implicitly
	// defaulted) caller range. Per
	// spec.md §9, the fix applied here is: refine whenever the caller did
	// not supply a range, not whenever the already-defaulted range
	// happens to equal the default.
	AngleSearchRange []float64
	// Scale, if in (0,1), downsamples both images before searching for
	// speed; the returned peak is rescaled back to full resolution.
	Scale float64
	RNG   *rand.Rand
}

// DefaultAngleGrid returns the coarse angle grid spec.md §8 exercises:
// -180 to 180 degrees in steps of 2.
func DefaultAngleGrid() []float64 {
	angles := make([]float64, 0, 181)
	for a := -180.0; a <= 180.0; a += 2.0 {
		angles = append(angles, a)
	}
	return angles
}

// SliceToSliceBruteForce searches AngleSearchRange (or the default coarse
// grid, refined, if the caller did not supply one) for the rotation angle
// that best aligns moving onto fixed, and returns the corresponding
// AlignmentRecord.
func SliceToSliceBruteForce(fixed, moving imageproc.Image, opts Options) (correlate.AlignmentRecord, error) {
	callerSuppliedRange := opts.AngleSearchRange != nil
	angles := opts.AngleSearchRange
	if angles == nil {
		angles = DefaultAngleGrid()
	}
	if len(angles) == 0 {
		return correlate.AlignmentRecord{}, fmt.Errorf("%w: empty angle list", ErrInvalidInput)
	}
	if opts.RNG == nil {
		opts.RNG = rand.New(rand.NewSource(1))
	}
	minOverlap := opts.MinOverlap
	if minOverlap <= 0 {
		minOverlap = 0.75
	}

	workFixed, workMoving := fixed, moving
	scale := 1.0
	if opts.Scale > 0 && opts.Scale < 1 {
		var err error
		workFixed, err = imageproc.Reduce(fixed, opts.Scale)
		if err != nil {
			return correlate.AlignmentRecord{}, err
		}
		workMoving, err = imageproc.Reduce(moving, opts.Scale)
		if err != nil {
			return correlate.AlignmentRecord{}, err
		}
		scale = opts.Scale
	}

	paddedFixed, err := imageproc.PadForOverlap(workFixed, minOverlap, opts.RNG)
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}

	best, err := bestOverAngles(paddedFixed, workMoving, angles, minOverlap, opts.RNG)
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}

	if !callerSuppliedRange {
		fineAngles := fineGridAround(best.Angle, 1.0, 0.1)
		fineBest, err := bestOverAngles(paddedFixed, workMoving, fineAngles, minOverlap, opts.RNG)
		if err == nil && betterThan(fineBest, best) {
			best = fineBest
		}
	}

	if scale != 1.0 {
		best = best.Scaled(1.0 / scale)
	}
	return best, nil
}

// bestOverAngles rotates moving by each candidate angle, pads to match
// paddedFixed's shape, runs phase correlation, and returns the
// highest-weight result (tie-break: smaller |angle|, then smaller |peak|).
func bestOverAngles(paddedFixed, moving imageproc.Image, angles []float64, minOverlap float64, rng *rand.Rand) (correlate.AlignmentRecord, error) {
	var best correlate.AlignmentRecord
	haveBest := false
	for _, angle := range angles {
		rotated := RotateBilinear(moving, angle)
		padded := imageproc.PadForPhaseCorrelation(rotated, paddedFixed.H, paddedFixed.W, rng)
		if padded.H != paddedFixed.H || padded.W != paddedFixed.W {
			continue
		}
		rec, err := correlate.FindOffset(paddedFixed, padded)
		if err != nil {
			continue
		}
		rec.Angle = angle
		if !haveBest || betterThan(rec, best) {
			best = rec
			haveBest = true
		}
	}
	if !haveBest {
		return correlate.AlignmentRecord{}, fmt.Errorf("rotation: no candidate angle produced a valid record")
	}
	return best, nil
}

// betterThan reports whether a should replace b as the current best:
// higher weight wins; ties broken by smaller |angle|, then smaller
// |peak| magnitude.
func betterThan(a, b correlate.AlignmentRecord) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if math.Abs(a.Angle) != math.Abs(b.Angle) {
		return math.Abs(a.Angle) < math.Abs(b.Angle)
	}
	return a.Peak.Norm() < b.Peak.Norm()
}

func fineGridAround(centre, halfRange, step float64) []float64 {
	var angles []float64
	for a := centre - halfRange; a <= centre+halfRange+step/2; a += step {
		angles = append(angles, a)
	}
	return angles
}

// RotateBilinear rotates im by angleDegrees (counter-clockwise) about its
// own centre, sampling with bilinear interpolation and returning an image
// of the same dimensions.
func RotateBilinear(im imageproc.Image, angleDegrees float64) imageproc.Image {
	if angleDegrees == 0 {
		return im.Clone()
	}
	theta := angleDegrees * math.Pi / 180.0
	cos, sin := math.Cos(theta), math.Sin(theta)
	cy, cx := float64(im.H-1)/2, float64(im.W-1)/2

	out := imageproc.New(im.H, im.W)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			dy, dx := float64(y)-cy, float64(x)-cx
			// inverse rotation: sample from the source at the point that
			// would map to (y, x) under a forward rotation by theta.
			srcY := dx*sin + dy*cos + cy
			srcX := dx*cos - dy*sin + cx
			if srcY < 0 || srcY > float64(im.H-1) || srcX < 0 || srcX > float64(im.W-1) {
				out.Pix[y][x] = 0
				continue
			}
			out.Pix[y][x] = imageproc.Bilinear(im, srcY, srcX)
		}
	}
	return out
}
