// Command register arranges a mosaic's tiles (C5 + C6): it aligns every
// sufficiently-overlapping tile pair, relaxes the resulting spring
// network, and writes an updated .mosaic with the relaxed positions.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bob-anderson-ok/emregister/internal/driver"
	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/layout"
	"github.com/bob-anderson-ok/emregister/internal/mosaic"
	"github.com/bob-anderson-ok/emregister/internal/tile"
)

func main() {
	input := flag.String("input", "", "path to the input .mosaic file")
	output := flag.String("output", "", "path to write the arranged .mosaic file")
	tilePath := flag.String("tilepath", "", "directory tile image filenames are relative to")
	minOverlap := flag.Float64("minoverlap", 0.05, "minimum fixed-space bounding-box overlap fraction to align a pair")
	workingScale := flag.Float64("scale", 1.0, "downscale factor used during pairwise alignment")
	flag.Parse()

	if *input == "" {
		*input = os.Getenv("TESTINPUTPATH")
	}
	if *output == "" {
		*output = os.Getenv("TESTOUTPUTPATH")
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "register: -input is required")
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "register: -output is required")
		os.Exit(1)
	}

	if err := run(*input, *output, *tilePath, *minOverlap, *workingScale); err != nil {
		fmt.Fprintln(os.Stderr, "register:", err)
		os.Exit(1)
	}
}

func run(input, output, tilePath string, minOverlap, workingScale float64) error {
	file, err := mosaic.ParseFile(input)
	if err != nil {
		return err
	}
	if len(file.Entries) == 0 {
		return fmt.Errorf("mosaic %q lists no tiles", input)
	}

	tiles := make([]*tile.Tile, len(file.Entries))
	for i, e := range file.Entries {
		path := e.ImageFilename
		if tilePath != "" {
			path = filepath.Join(tilePath, e.ImageFilename)
		}
		t := e.Transform
		t.MappedSize = geom.Point{Y: float64(e.MappedHeight), X: float64(e.MappedWidth)}
		tiles[i] = tile.New(i, path, t)
	}

	lay, failures := driver.Run(tiles, driver.Options{MinOverlapFraction: minOverlap, WorkingScale: workingScale})
	for _, f := range failures {
		fmt.Fprintln(os.Stderr, "register: pair failed:", f.Error())
	}

	lay.ScaleOffsetWeightsByPopulationRank(0, 1)
	lay.Relax(layout.DefaultRelaxOptions())

	out := &mosaic.File{PixelSpacing: file.PixelSpacing}
	for i, e := range file.Entries {
		t := tiles[i]
		p := lay.Position(t.ID)
		centre := t.Centre()
		delta := p.Sub(centre)
		t.Transform = t.Transform.Translated(delta)
		out.Entries = append(out.Entries, mosaic.Entry{
			ImageFilename: e.ImageFilename,
			Transform:     t.Transform,
			MappedWidth:   e.MappedWidth,
			MappedHeight:  e.MappedHeight,
		})
	}
	return out.WriteFile(output)
}
