// Package correlate implements Fourier phase correlation: given two
// images of identical shape, it estimates the translational offset that
// best aligns them by locating the peak of the normalised cross-power
// spectrum. The 2D FFT is built row/column-wise out of gonum's 1D complex
// FFT, the same decomposition the teacher's convolution.go uses for its
// PSF convolution (fft2InPlace), generalised here from a convolution
// kernel to a second full image.
package correlate

import (
	"errors"
	"fmt"
	"math"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/imageproc"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrShapeMismatch is returned when the two input images do not share a
// shape.
var ErrShapeMismatch = errors.New("correlate: shape mismatch")

// ErrInvalidInput is returned when an input image contains NaN samples.
var ErrInvalidInput = errors.New("correlate: invalid input")

// AlignmentRecord describes how to rotate the moving image by Angle
// degrees and translate it by Peak (in pixels, Y then X) to align it onto
// the fixed image. Weight is a non-negative, finite confidence score.
type AlignmentRecord struct {
	Peak   geom.Point
	Weight float64
	Angle  float64
}

// Scaled returns a copy of the record with Peak multiplied by factor,
// used to convert a peak computed on a downscaled image pair back to
// full-resolution pixel units.
func (r AlignmentRecord) Scaled(factor float64) AlignmentRecord {
	r.Peak = r.Peak.Scale(factor)
	return r
}

// Translated returns a copy of the record with delta added to Peak.
func (r AlignmentRecord) Translated(delta geom.Point) AlignmentRecord {
	r.Peak = r.Peak.Add(delta)
	return r
}

// peakNeighbourhoodRadius is the minimum radius (in pixels) of the
// neighbourhood used to compute the sub-pixel centre-of-mass refinement
// around the detected peak.
const peakNeighbourhoodRadius = 2

// FindOffset computes the phase-correlation alignment record between two
// images of identical shape. a is the fixed image, b is the moving image.
func FindOffset(a, b imageproc.Image) (AlignmentRecord, error) {
	if a.H != b.H || a.W != b.W {
		return AlignmentRecord{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, a.H, a.W, b.H, b.W)
	}
	if hasNaN(a) || hasNaN(b) {
		return AlignmentRecord{}, fmt.Errorf("%w: NaN sample", ErrInvalidInput)
	}

	h, w := a.H, a.W
	A := toComplexGrid(a)
	B := toComplexGrid(b)

	fft2InPlace(A, h, w, true)
	fft2InPlace(B, h, w, true)

	cross := make([][]complex128, h)
	for y := 0; y < h; y++ {
		cross[y] = make([]complex128, w)
		for x := 0; x < w; x++ {
			prod := A[y][x] * cmplxConj(B[y][x])
			mag := cmplxAbs(prod)
			if mag == 0 {
				cross[y][x] = 0
				continue
			}
			cross[y][x] = prod / complex(mag, 0)
		}
	}

	fft2InPlace(cross, h, w, false)
	scale := float64(h * w)
	corr := make([][]float64, h)
	for y := 0; y < h; y++ {
		corr[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			corr[y][x] = real(cross[y][x]) / scale
		}
	}

	shifted := fftshift2D(corr)
	normalizeInPlace(shifted)

	peakY, peakX, onBoundary := findPeak(shifted)
	comY, comX, secondRatio := centroidRefine(shifted, peakY, peakX, peakNeighbourhoodRadius)

	centreY, centreX := float64(h)/2, float64(w)/2
	offset := geom.Point{Y: comY - centreY, X: comX - centreX}

	weight := shifted[peakY][peakX] * secondRatio
	if onBoundary {
		weight = 0
	}

	return AlignmentRecord{Peak: offset, Weight: weight, Angle: 0}, nil
}

func hasNaN(im imageproc.Image) bool {
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			if math.IsNaN(im.Pix[y][x]) {
				return true
			}
		}
	}
	return false
}

func toComplexGrid(im imageproc.Image) [][]complex128 {
	out := make([][]complex128, im.H)
	for y := 0; y < im.H; y++ {
		out[y] = make([]complex128, im.W)
		for x := 0; x < im.W; x++ {
			out[y][x] = complex(im.Pix[y][x], 0)
		}
	}
	return out
}

func cmplxConj(c complex128) complex128 { return complex(real(c), -imag(c)) }
func cmplxAbs(c complex128) float64     { return math.Hypot(real(c), imag(c)) }

// fft2InPlace performs a 2D FFT (or its inverse) on a, row-then-column,
// using gonum's complex 1D FFT for each pass.
func fft2InPlace(a [][]complex128, h, w int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	tmp := make([]complex128, w)
	for y := 0; y < h; y++ {
		copy(tmp, a[y])
		if forward {
			rowFFT.Coefficients(tmp, tmp)
		} else {
			rowFFT.Sequence(tmp, tmp)
		}
		copy(a[y], tmp)
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = a[y][x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ {
			a[y][x] = col[y]
		}
	}
}

// fftshift2D moves the zero-offset (origin) of a correlation surface from
// the corners to the geometric centre.
func fftshift2D(m [][]float64) [][]float64 {
	h := len(m)
	w := len(m[0])
	out := make([][]float64, h)
	for i := range out {
		out[i] = make([]float64, w)
	}
	shY, shX := h/2, w/2
	for y := 0; y < h; y++ {
		sy := (y + shY) % h
		for x := 0; x < w; x++ {
			sx := (x + shX) % w
			out[sy][sx] = m[y][x]
		}
	}
	return out
}

// normalizeInPlace rescales m into [0,1] by subtracting its minimum and
// dividing by the new maximum.
func normalizeInPlace(m [][]float64) {
	min, max := m[0][0], m[0][0]
	for _, row := range m {
		for _, v := range row {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	span := max - min
	if span == 0 {
		for y := range m {
			for x := range m[y] {
				m[y][x] = 0
			}
		}
		return
	}
	for y := range m {
		for x := range m[y] {
			m[y][x] = (m[y][x] - min) / span
		}
	}
}

// findPeak locates the global maximum of m and reports whether it sits on
// the outer boundary of the surface (a sign of wrap-around ambiguity).
func findPeak(m [][]float64) (py, px int, onBoundary bool) {
	h, w := len(m), len(m[0])
	best := m[0][0]
	py, px = 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m[y][x] > best {
				best = m[y][x]
				py, px = y, x
			}
		}
	}
	onBoundary = py == 0 || px == 0 || py == h-1 || px == w-1
	return py, px, onBoundary
}

// centroidRefine computes the sub-pixel centre-of-mass of the
// neighbourhood of radius r around (py, px), and a multiplier
// 1 - second/peak (floored at 0), where second is the highest sample
// outside that neighbourhood (used to penalise ambiguous correlation
// surfaces).
func centroidRefine(m [][]float64, py, px, r int) (comY, comX, secondRatio float64) {
	h, w := len(m), len(m[0])
	var sumW, sumY, sumX float64
	secondBest := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m[y][x]
			if y >= py-r && y <= py+r && x >= px-r && x <= px+r {
				sumW += v
				sumY += v * float64(y)
				sumX += v * float64(x)
				continue
			}
			if v > secondBest {
				secondBest = v
			}
		}
	}
	if sumW == 0 {
		return float64(py), float64(px), 1
	}
	comY, comX = sumY/sumW, sumX/sumW
	peak := m[py][px]
	if peak <= 0 {
		return comY, comX, 1
	}
	// Penalise ambiguous surfaces: a close second peak pushes the
	// multiplier toward 0, a clean single peak keeps it near 1.
	ratio := 1.0
	if secondBest > 0 {
		ratio = 1 - secondBest/peak
		if ratio < 0 {
			ratio = 0
		}
	}
	return comY, comX, ratio
}
