// Package mosaic implements the .mosaic file format: a pixel spacing
// followed by one (tile image filename, transform string) pair per line,
// each transform in the FixedCenterOfRotationAffineTransform_double_2_2
// syntax internal/stos defines. Parsed the same hand-rolled,
// bufio.Scanner way as a .stos file, for the same reason: this is a
// position-delimited numeric record, not a JSON document.
package mosaic

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/stos"
)

// ErrMalformed is returned when a .mosaic file cannot be parsed.
var ErrMalformed = fmt.Errorf("mosaic: malformed file")

// Entry is one tile's filename and transform into fixed space.
type Entry struct {
	ImageFilename string
	Transform     geom.RigidTransform
	// MappedWidth/MappedHeight are the tile's own image dimensions, needed
	// to reconstruct the affine transform's centre-of-rotation fp values
	// on write.
	MappedWidth, MappedHeight int
}

// File is a parsed .mosaic document.
type File struct {
	PixelSpacing float64
	Entries      []Entry
}

// ParseFile reads and parses a .mosaic file.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mosaic: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .mosaic document from r. The first non-blank,
// non-comment line must be "PixelSpacing: <value>"; every subsequent line
// is "<filename> <transform string...>".
func Parse(r io.Reader) (*File, error) {
	file := &File{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	haveSpacing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !haveSpacing {
			key, value, ok := strings.Cut(line, ":")
			if !ok || strings.TrimSpace(key) != "PixelSpacing" {
				return nil, fmt.Errorf("%w: expected PixelSpacing header", ErrMalformed)
			}
			spacing, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: PixelSpacing: %v", ErrMalformed, err)
			}
			file.PixelSpacing = spacing
			haveSpacing = true
			continue
		}
		name, transformStr, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: entry missing transform: %q", ErrMalformed, line)
		}
		affine, err := stos.ParseAffineTransform(strings.TrimSpace(transformStr))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		file.Entries = append(file.Entries, Entry{
			ImageFilename: name,
			Transform:     affine.ToRigidTransform(),
			MappedWidth:   int(math.Round(affine.HalfW * 2)),
			MappedHeight:  int(math.Round(affine.HalfH * 2)),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mosaic: %w", err)
	}
	if !haveSpacing {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	return file, nil
}

// WriteFile serialises the file to path.
func (f *File) WriteFile(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mosaic: create %q: %w", path, err)
	}
	defer out.Close()
	return f.Write(out)
}

// Write serialises the file to w.
func (f *File) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "PixelSpacing: %s\n", strconv.FormatFloat(f.PixelSpacing, 'g', -1, 64)); err != nil {
		return err
	}
	for _, e := range f.Entries {
		affine := stos.AffineFromRigidTransform(e.Transform, e.MappedWidth, e.MappedHeight)
		if _, err := fmt.Fprintf(w, "%s %s\n", e.ImageFilename, affine.String()); err != nil {
			return err
		}
	}
	return nil
}
