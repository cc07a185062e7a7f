// Package geom provides the basic geometric types shared by the
// registration, layout, and assembly packages: points, axis-aligned
// rectangles, and the rigid (rotation + translation) transform that maps
// a tile's own pixel grid into fixed (mosaic) space.
package geom

import "math"

// Point is a 2D point or offset vector, stored in (Y, X) order to match
// the in-memory convention used throughout this module (row, column).
type Point struct {
	Y, X float64
}

// Add returns the sum of two points.
func (p Point) Add(o Point) Point {
	return Point{Y: p.Y + o.Y, X: p.X + o.X}
}

// Sub returns the difference of two points.
func (p Point) Sub(o Point) Point {
	return Point{Y: p.Y - o.Y, X: p.X - o.X}
}

// Scale returns the point scaled by a factor.
func (p Point) Scale(factor float64) Point {
	return Point{Y: p.Y * factor, X: p.X * factor}
}

// Norm returns the Euclidean length of the point treated as a vector.
func (p Point) Norm() float64 {
	return math.Sqrt(p.Y*p.Y + p.X*p.X)
}

// Rectangle is an axis-aligned rectangle in (Y, X) space.
type Rectangle struct {
	MinY, MinX, MaxY, MaxX float64
}

// NewRectangle builds a rectangle from its bounds, normalising so that
// Min <= Max on both axes.
func NewRectangle(minY, minX, maxY, maxX float64) Rectangle {
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	return Rectangle{MinY: minY, MinX: minX, MaxY: maxY, MaxX: maxX}
}

// Width returns the rectangle's extent along X.
func (r Rectangle) Width() float64 { return r.MaxX - r.MinX }

// Height returns the rectangle's extent along Y.
func (r Rectangle) Height() float64 { return r.MaxY - r.MinY }

// Empty reports whether the rectangle has non-positive area.
func (r Rectangle) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Centre returns the rectangle's centre point.
func (r Rectangle) Centre() Point {
	return Point{Y: (r.MinY + r.MaxY) / 2, X: (r.MinX + r.MaxX) / 2}
}

// Intersection returns the intersection of r and o. The result's Empty()
// is true if the rectangles do not overlap.
func (r Rectangle) Intersection(o Rectangle) Rectangle {
	return Rectangle{
		MinY: math.Max(r.MinY, o.MinY),
		MinX: math.Max(r.MinX, o.MinX),
		MaxY: math.Min(r.MaxY, o.MaxY),
		MaxX: math.Min(r.MaxX, o.MaxX),
	}
}

// OverlapFraction returns the intersection area as a fraction of the
// smaller of the two rectangles' areas. Returns 0 if either rectangle is
// empty or they do not overlap.
func (r Rectangle) OverlapFraction(o Rectangle) float64 {
	ra, oa := r.Width()*r.Height(), o.Width()*o.Height()
	if ra <= 0 || oa <= 0 {
		return 0
	}
	inter := r.Intersection(o)
	if inter.Empty() {
		return 0
	}
	minArea := math.Min(ra, oa)
	return (inter.Width() * inter.Height()) / minArea
}

// ScaleAboutCentre returns a rectangle scaled by factor about its own
// centre (factor > 1 grows the rectangle, < 1 shrinks it).
func (r Rectangle) ScaleAboutCentre(factor float64) Rectangle {
	c := r.Centre()
	hw := r.Width() * factor / 2
	hh := r.Height() * factor / 2
	return Rectangle{MinY: c.Y - hh, MinX: c.X - hw, MaxY: c.Y + hh, MaxX: c.X + hw}
}

// RectangleInt is a rectangle with integer pixel bounds, half-open on the
// max side ([MinY, MaxY) x [MinX, MaxX)).
type RectangleInt struct {
	MinY, MinX, MaxY, MaxX int
}

// Width returns the rectangle's extent along X.
func (r RectangleInt) Width() int { return r.MaxX - r.MinX }

// Height returns the rectangle's extent along Y.
func (r RectangleInt) Height() int { return r.MaxY - r.MinY }

// RoundOutward rounds a floating-point rectangle outward (floor on the
// min corner, ceil on the max corner) to integer pixel bounds.
func RoundOutward(r Rectangle) RectangleInt {
	return RectangleInt{
		MinY: int(math.Floor(r.MinY)),
		MinX: int(math.Floor(r.MinX)),
		MaxY: int(math.Ceil(r.MaxY)),
		MaxX: int(math.Ceil(r.MaxX)),
	}
}

// RigidTransform maps points from a tile's own (mapped) pixel space into
// fixed (mosaic) space by a rotation about Centre followed by a
// translation, i.e. `Transform(p) = Rotate(p - Centre, Angle) + Centre +
// Translation`.
type RigidTransform struct {
	Angle       float64 // radians, counter-clockwise
	Translation Point
	Centre      Point // centre of rotation, in mapped space
	// MappedSize is the (height, width) of the tile's own image, used to
	// derive MappedBoundingBox.
	MappedSize Point
}

// Identity returns the transform that leaves points unchanged.
func Identity() RigidTransform {
	return RigidTransform{}
}

// Transform maps a point from mapped (tile) space to fixed (mosaic) space.
func (t RigidTransform) Transform(p Point) Point {
	dy, dx := p.Y-t.Centre.Y, p.X-t.Centre.X
	cos, sin := math.Cos(t.Angle), math.Sin(t.Angle)
	ry := dx*sin + dy*cos
	rx := dx*cos - dy*sin
	return Point{Y: ry + t.Centre.Y + t.Translation.Y, X: rx + t.Centre.X + t.Translation.X}
}

// InverseTransform maps a point from fixed (mosaic) space back to mapped
// (tile) space.
func (t RigidTransform) InverseTransform(p Point) Point {
	dy := p.Y - t.Centre.Y - t.Translation.Y
	dx := p.X - t.Centre.X - t.Translation.X
	cos, sin := math.Cos(-t.Angle), math.Sin(-t.Angle)
	ry := dx*sin + dy*cos
	rx := dx*cos - dy*sin
	return Point{Y: ry + t.Centre.Y, X: rx + t.Centre.X}
}

// MappedBoundingBox returns the tile's own bounding box, in mapped
// (source-image) space.
func (t RigidTransform) MappedBoundingBox() Rectangle {
	return Rectangle{MinY: 0, MinX: 0, MaxY: t.MappedSize.Y, MaxX: t.MappedSize.X}
}

// FixedBoundingBox returns the axis-aligned bounding box, in fixed
// (mosaic) space, that encloses the transformed mapped bounding box.
func (t RigidTransform) FixedBoundingBox() Rectangle {
	mb := t.MappedBoundingBox()
	corners := [4]Point{
		{Y: mb.MinY, X: mb.MinX},
		{Y: mb.MinY, X: mb.MaxX},
		{Y: mb.MaxY, X: mb.MinX},
		{Y: mb.MaxY, X: mb.MaxX},
	}
	out := t.Transform(corners[0])
	minY, minX, maxY, maxX := out.Y, out.X, out.Y, out.X
	for _, c := range corners[1:] {
		p := t.Transform(c)
		minY = math.Min(minY, p.Y)
		minX = math.Min(minX, p.X)
		maxY = math.Max(maxY, p.Y)
		maxX = math.Max(maxX, p.X)
	}
	return Rectangle{MinY: minY, MinX: minX, MaxY: maxY, MaxX: maxX}
}

// Translated returns a copy of t with Translation shifted by delta.
func (t RigidTransform) Translated(delta Point) RigidTransform {
	t.Translation = t.Translation.Add(delta)
	return t
}
