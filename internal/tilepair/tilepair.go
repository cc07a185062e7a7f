// Package tilepair implements the tile-pair aligner (C4): given two tiles
// with known approximate positions, it crops both images to their
// predicted mutual overlap window, runs phase correlation on the crops,
// and adds back the predicted centre-to-centre offset so the result is a
// true relative offset in fixed space rather than a residual around zero.
package tilepair

import (
	"math/rand"

	"github.com/bob-anderson-ok/emregister/internal/correlate"
	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/imageproc"
	"github.com/bob-anderson-ok/emregister/internal/tile"
)

// Align computes the best relative offset (B minus A) in fixed space
// between two overlapping tiles. workingScale lets the caller align at a
// reduced resolution for speed (1.0 means full resolution); the returned
// record is always expressed in full-resolution fixed-space pixels.
func Align(a, b *tile.Tile, workingScale float64, rng *rand.Rand) (correlate.AlignmentRecord, error) {
	if workingScale <= 0 {
		workingScale = 1.0
	}

	fboxA := a.Transform.FixedBoundingBox()
	fboxB := b.Transform.FixedBoundingBox()
	overlap := fboxA.Intersection(fboxB)
	if overlap.Empty() {
		return correlate.AlignmentRecord{Peak: geom.Point{}, Weight: 0, Angle: 0}, nil
	}

	imgA, err := a.Image()
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}
	imgB, err := b.Image()
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}

	// mapToTileSpace's crop rectangles are expressed in workingScale'd
	// pixel coordinates, so the images they crop from must be reduced by
	// the same factor first — cropping a scaled-down rectangle out of the
	// full-resolution array would address the wrong pixels entirely.
	if workingScale < 1.0 {
		imgA, err = imageproc.Reduce(imgA, workingScale)
		if err != nil {
			return correlate.AlignmentRecord{}, err
		}
		imgB, err = imageproc.Reduce(imgB, workingScale)
		if err != nil {
			return correlate.AlignmentRecord{}, err
		}
	}

	mappedA := mapToTileSpace(overlap, a.Transform, workingScale)
	mappedB := mapToTileSpace(overlap, b.Transform, workingScale)

	// Size-match: trim B's region to A's so the crops are congruent.
	h := mappedA.Height()
	w := mappedA.Width()
	if mappedB.Height() < h {
		h = mappedB.Height()
	}
	if mappedB.Width() < w {
		w = mappedB.Width()
	}
	if h <= 0 || w <= 0 {
		return correlate.AlignmentRecord{Peak: geom.Point{}, Weight: 0, Angle: 0}, nil
	}

	cropA := imageproc.Crop(imgA, mappedA.MinY, mappedA.MinX, h, w, imageproc.CValRandom, 0, rng)
	cropB := imageproc.Crop(imgB, mappedB.MinY, mappedB.MinX, h, w, imageproc.CValRandom, 0, rng)

	paddedA, err := imageproc.PadForOverlap(cropA, 1.0, rng)
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}
	paddedB := imageproc.PadForPhaseCorrelation(cropB, paddedA.H, paddedA.W, rng)

	record, err := correlate.FindOffset(paddedA, paddedB)
	if err != nil {
		return correlate.AlignmentRecord{}, err
	}

	adjustment := b.Centre().Sub(a.Centre()).Scale(workingScale)
	record = record.Translated(adjustment).Scaled(1.0 / workingScale)
	record.Angle = 0
	return record, nil
}

// mapToTileSpace maps a fixed-space rectangle back through a tile's
// inverse transform into its own image space, scales to the working
// pixel scale, and rounds outward to integer pixel bounds.
func mapToTileSpace(fixed geom.Rectangle, t geom.RigidTransform, scale float64) geom.RectangleInt {
	corners := [4]geom.Point{
		{Y: fixed.MinY, X: fixed.MinX},
		{Y: fixed.MinY, X: fixed.MaxX},
		{Y: fixed.MaxY, X: fixed.MinX},
		{Y: fixed.MaxY, X: fixed.MaxX},
	}
	mapped := t.InverseTransform(corners[0])
	minY, minX, maxY, maxX := mapped.Y, mapped.X, mapped.Y, mapped.X
	for _, c := range corners[1:] {
		p := t.InverseTransform(c)
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
	}
	scaled := geom.Rectangle{MinY: minY * scale, MinX: minX * scale, MaxY: maxY * scale, MaxX: maxX * scale}
	return geom.RoundOutward(scaled)
}
