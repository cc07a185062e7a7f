// Package stos implements the section-to-section ("stos") transform file
// format: a plain-text record naming a control (fixed) image and a mapped
// (moving) image, their dimensions, optional masks, a downsample level,
// and a transform string in one of two textual syntaxes. Parsing is
// line-oriented with bufio.Scanner, strings and strconv, matching the teacher's
// own preference for direct fmt-based parsing of position-delimited
// numeric records (go-json5 is reserved, in internal/config, for the
// JSON-shaped parameter files — these are not JSON-shaped).
package stos

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bob-anderson-ok/emregister/internal/correlate"
	"github.com/bob-anderson-ok/emregister/internal/geom"
)

// ErrMalformed is returned when a stos record cannot be parsed.
var ErrMalformed = errors.New("stos: malformed record")

// Record is one parsed .stos file.
type Record struct {
	ControlImageName, ControlImagePath    string
	ControlImageWidth, ControlImageHeight int
	ControlImageMaskName                  string // empty if absent

	MappedImageName, MappedImagePath    string
	MappedImageWidth, MappedImageHeight int
	MappedImageMaskName                 string // empty if absent

	DownsampleLevel float64

	// Transform is the raw, single-line transform string in one of the
	// two documented syntaxes.
	Transform string
}

// ParseFile reads and parses a .stos file.
func ParseFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stos: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .stos record from r. Fields are "Key: value" lines; field
// order does not matter and unknown keys are ignored.
func Parse(r io.Reader) (*Record, error) {
	rec := &Record{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "ControlImageName":
			rec.ControlImageName = value
		case "ControlImagePath":
			rec.ControlImagePath = value
		case "ControlImageWidth":
			rec.ControlImageWidth, err = atoi(value)
		case "ControlImageHeight":
			rec.ControlImageHeight, err = atoi(value)
		case "ControlImageMaskName":
			rec.ControlImageMaskName = value
		case "MappedImageName":
			rec.MappedImageName = value
		case "MappedImagePath":
			rec.MappedImagePath = value
		case "MappedImageWidth":
			rec.MappedImageWidth, err = atoi(value)
		case "MappedImageHeight":
			rec.MappedImageHeight, err = atoi(value)
		case "MappedImageMaskName":
			rec.MappedImageMaskName = value
		case "DownsampleLevel":
			rec.DownsampleLevel, err = strconv.ParseFloat(value, 64)
		case "Transform":
			rec.Transform = value
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrMalformed, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stos: %w", err)
	}
	if rec.Transform == "" {
		return nil, fmt.Errorf("%w: missing Transform", ErrMalformed)
	}
	return rec, nil
}

func atoi(s string) (int, error) {
	v, err := strconv.Atoi(s)
	return v, err
}

// WriteFile serialises the record to path.
func (r *Record) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stos: create %q: %w", path, err)
	}
	defer f.Close()
	return r.Write(f)
}

// Write serialises the record to w.
func (r *Record) Write(w io.Writer) error {
	lines := []string{
		"ControlImageName: " + r.ControlImageName,
		"ControlImagePath: " + r.ControlImagePath,
		fmt.Sprintf("ControlImageWidth: %d", r.ControlImageWidth),
		fmt.Sprintf("ControlImageHeight: %d", r.ControlImageHeight),
	}
	if r.ControlImageMaskName != "" {
		lines = append(lines, "ControlImageMaskName: "+r.ControlImageMaskName)
	}
	lines = append(lines,
		"MappedImageName: "+r.MappedImageName,
		"MappedImagePath: "+r.MappedImagePath,
		fmt.Sprintf("MappedImageWidth: %d", r.MappedImageWidth),
		fmt.Sprintf("MappedImageHeight: %d", r.MappedImageHeight),
	)
	if r.MappedImageMaskName != "" {
		lines = append(lines, "MappedImageMaskName: "+r.MappedImageMaskName)
	}
	lines = append(lines,
		fmt.Sprintf("DownsampleLevel: %s", formatFloat(r.DownsampleLevel)),
		"Transform: "+r.Transform,
	)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// AffineTransform is the FixedCenterOfRotationAffineTransform_double_2_2
// syntax: vp holds [cos, -sin, sin, cos, x, y, 1, 1]; fp holds
// [halfWidth, halfHeight] of the mapped image.
type AffineTransform struct {
	Cos, Sin     float64
	X, Y         float64
	HalfW, HalfH float64
}

// String renders the canonical one-line syntax.
func (a AffineTransform) String() string {
	vp := []float64{a.Cos, -a.Sin, a.Sin, a.Cos, a.X, a.Y, 1, 1}
	fp := []float64{a.HalfW, a.HalfH}
	return fmt.Sprintf("FixedCenterOfRotationAffineTransform_double_2_2 vp %d %s fp %d %s",
		len(vp), joinFloats(vp), len(fp), joinFloats(fp))
}

// ToRigidTransform converts the affine syntax back to a geom.RigidTransform,
// recovering the rotation angle from (cos, sin) via atan2.
func (a AffineTransform) ToRigidTransform() geom.RigidTransform {
	return geom.RigidTransform{
		Angle:       math.Atan2(a.Sin, a.Cos),
		Translation: geom.Point{Y: a.Y, X: a.X},
		Centre:      geom.Point{Y: a.HalfH, X: a.HalfW},
	}
}

// AffineFromRigidTransform builds the affine syntax equivalent of t, for a
// mapped image of the given size (used for the centre-of-rotation fp
// values).
func AffineFromRigidTransform(t geom.RigidTransform, mappedW, mappedH int) AffineTransform {
	return AffineTransform{
		Cos: math.Cos(t.Angle), Sin: math.Sin(t.Angle),
		X: t.Translation.X, Y: t.Translation.Y,
		HalfW: float64(mappedW) / 2, HalfH: float64(mappedH) / 2,
	}
}

// ParseAffineTransform parses a FixedCenterOfRotationAffineTransform_double_2_2 line.
func ParseAffineTransform(s string) (AffineTransform, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 || fields[0] != "FixedCenterOfRotationAffineTransform_double_2_2" || fields[1] != "vp" {
		return AffineTransform{}, fmt.Errorf("%w: not an affine transform string", ErrMalformed)
	}
	vpCount, err := strconv.Atoi(fields[2])
	if err != nil || vpCount != 8 || len(fields) < 3+vpCount {
		return AffineTransform{}, fmt.Errorf("%w: expected vp 8", ErrMalformed)
	}
	vp, err := parseFloats(fields[3 : 3+vpCount])
	if err != nil {
		return AffineTransform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rest := fields[3+vpCount:]
	if len(rest) < 2 || rest[0] != "fp" {
		return AffineTransform{}, fmt.Errorf("%w: expected fp section", ErrMalformed)
	}
	fpCount, err := strconv.Atoi(rest[1])
	if err != nil || fpCount != 2 || len(rest) < 2+fpCount {
		return AffineTransform{}, fmt.Errorf("%w: expected fp 2", ErrMalformed)
	}
	fp, err := parseFloats(rest[2 : 2+fpCount])
	if err != nil {
		return AffineTransform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return AffineTransform{Cos: vp[0], Sin: vp[2], X: vp[4], Y: vp[5], HalfW: fp[0], HalfH: fp[1]}, nil
}

// GridTransform is the GridTransform_double_2_2 syntax: vp holds the four
// warped-space corners in fixed space, (x,y) order, iterating
// bottom-left, bottom-right, top-left, top-right; fp holds the 7-value
// grid descriptor `0 1 1 0 0 (W-1) (H-1)`.
type GridTransform struct {
	BottomLeft, BottomRight, TopLeft, TopRight geom.Point // stored (Y, X)
	MappedWidth, MappedHeight                  int
}

// String renders the canonical one-line syntax, flipping each corner from
// the in-memory (Y, X) order to the serialised (X, Y) order.
func (g GridTransform) String() string {
	vp := []float64{
		g.BottomLeft.X, g.BottomLeft.Y,
		g.BottomRight.X, g.BottomRight.Y,
		g.TopLeft.X, g.TopLeft.Y,
		g.TopRight.X, g.TopRight.Y,
	}
	fp := []float64{0, 1, 1, 0, 0, float64(g.MappedWidth - 1), float64(g.MappedHeight - 1)}
	return fmt.Sprintf("GridTransform_double_2_2 vp %d %s fp %d %s",
		len(vp), joinFloats(vp), len(fp), joinFloats(fp))
}

// ParseGridTransform parses a GridTransform_double_2_2 line.
func ParseGridTransform(s string) (GridTransform, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 || fields[0] != "GridTransform_double_2_2" || fields[1] != "vp" {
		return GridTransform{}, fmt.Errorf("%w: not a grid transform string", ErrMalformed)
	}
	vpCount, err := strconv.Atoi(fields[2])
	if err != nil || vpCount != 8 || len(fields) < 3+vpCount {
		return GridTransform{}, fmt.Errorf("%w: expected vp 8", ErrMalformed)
	}
	vp, err := parseFloats(fields[3 : 3+vpCount])
	if err != nil {
		return GridTransform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rest := fields[3+vpCount:]
	if len(rest) < 2 || rest[0] != "fp" {
		return GridTransform{}, fmt.Errorf("%w: expected fp section", ErrMalformed)
	}
	fpCount, err := strconv.Atoi(rest[1])
	if err != nil || fpCount != 7 || len(rest) < 2+fpCount {
		return GridTransform{}, fmt.Errorf("%w: expected fp 7", ErrMalformed)
	}
	fp, err := parseFloats(rest[2 : 2+fpCount])
	if err != nil {
		return GridTransform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return GridTransform{
		BottomLeft:   geom.Point{X: vp[0], Y: vp[1]},
		BottomRight:  geom.Point{X: vp[2], Y: vp[3]},
		TopLeft:      geom.Point{X: vp[4], Y: vp[5]},
		TopRight:     geom.Point{X: vp[6], Y: vp[7]},
		MappedWidth:  int(math.Round(fp[5])) + 1,
		MappedHeight: int(math.Round(fp[6])) + 1,
	}, nil
}

// FromAlignmentRecord builds the GridTransform that places a mapped image
// of the given size into fixed space per rec's rotation (about the mapped
// image's own centre) and translation. This is the canonical
// serialisation target for an AlignmentRecord: the in-memory peak stays
// (Y,X) throughout internal/correlate, and is flipped to (X,Y) only here,
// at the stos boundary.
func FromAlignmentRecord(rec correlate.AlignmentRecord, mappedW, mappedH int) GridTransform {
	t := geom.RigidTransform{
		Angle:       rec.Angle * math.Pi / 180.0,
		Translation: rec.Peak,
		Centre:      geom.Point{Y: float64(mappedH-1) / 2, X: float64(mappedW-1) / 2},
	}
	corner := func(y, x float64) geom.Point { return t.Transform(geom.Point{Y: y, X: x}) }
	return GridTransform{
		BottomLeft:   corner(float64(mappedH-1), 0),
		BottomRight:  corner(float64(mappedH-1), float64(mappedW-1)),
		TopLeft:      corner(0, 0),
		TopRight:     corner(0, float64(mappedW-1)),
		MappedWidth:  mappedW,
		MappedHeight: mappedH,
	}
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

// formatFloat uses the shortest decimal representation that round-trips
// exactly back to v, so re-parsing a serialised transform string is
// bitwise stable.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
