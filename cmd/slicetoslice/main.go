// Command slicetoslice registers one section image onto another (C3) and
// writes the result as a .stos record.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/bob-anderson-ok/emregister/internal/imageproc"
	"github.com/bob-anderson-ok/emregister/internal/rotation"
	"github.com/bob-anderson-ok/emregister/internal/stos"
)

func main() {
	fixedPath := flag.String("fixed", "", "path to the fixed (control) image")
	movingPath := flag.String("moving", "", "path to the moving (mapped) image")
	output := flag.String("output", "", "path to write the .stos record")
	minOverlap := flag.Float64("minoverlap", 0.75, "minimum overlap ratio used for padding")
	scale := flag.Float64("scale", 1.0, "downscale factor for the search, in (0,1]")
	flag.Parse()

	if *fixedPath == "" {
		*fixedPath = os.Getenv("TESTINPUTPATH")
	}
	if *output == "" {
		*output = os.Getenv("TESTOUTPUTPATH")
	}
	if *fixedPath == "" || *movingPath == "" {
		fmt.Fprintln(os.Stderr, "slicetoslice: -fixed and -moving are required")
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "slicetoslice: -output is required")
		os.Exit(1)
	}

	if err := run(*fixedPath, *movingPath, *output, *minOverlap, *scale); err != nil {
		fmt.Fprintln(os.Stderr, "slicetoslice:", err)
		os.Exit(1)
	}
}

func run(fixedPath, movingPath, output string, minOverlap, scale float64) error {
	fixed, err := imageproc.Load(fixedPath)
	if err != nil {
		return err
	}
	moving, err := imageproc.Load(movingPath)
	if err != nil {
		return err
	}

	opts := rotation.Options{MinOverlap: minOverlap, Scale: scale, RNG: rand.New(rand.NewSource(1))}
	rec, err := rotation.SliceToSliceBruteForce(fixed, moving, opts)
	if err != nil {
		return err
	}

	grid := stos.FromAlignmentRecord(rec, moving.W, moving.H)
	record := &stos.Record{
		ControlImageName: fixedPath, ControlImagePath: fixedPath,
		ControlImageWidth: fixed.W, ControlImageHeight: fixed.H,
		MappedImageName: movingPath, MappedImagePath: movingPath,
		MappedImageWidth: moving.W, MappedImageHeight: moving.H,
		DownsampleLevel: 1,
		Transform:       grid.String(),
	}
	return record.WriteFile(output)
}
