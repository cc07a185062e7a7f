// Command assemble renders a .mosaic file to a single PNG (C7): it loads
// every listed tile, composites them with a minimum-distance z-buffer,
// and writes the result as a percentile-stretched 8-bit grey PNG.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bob-anderson-ok/emregister/internal/assemble"
	"github.com/bob-anderson-ok/emregister/internal/debugimage"
	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/mosaic"
	"github.com/bob-anderson-ok/emregister/internal/tile"
)

func main() {
	input := flag.String("input", "", "path to the .mosaic file to render")
	output := flag.String("output", "", "path to write the assembled PNG")
	tilePath := flag.String("tilepath", "", "directory tile image filenames are relative to")
	cacheDir := flag.String("cachedir", "", "directory to cache centre-distance maps in (optional)")
	regionSize := flag.Int("regionsize", assemble.DefaultRegionSize, "side length of the parallel render regions")
	flag.Parse()

	if *input == "" {
		*input = os.Getenv("TESTINPUTPATH")
	}
	if *output == "" {
		*output = os.Getenv("TESTOUTPUTPATH")
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "assemble: -input is required")
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "assemble: -output is required")
		os.Exit(1)
	}

	if err := run(*input, *output, *tilePath, *cacheDir, *regionSize); err != nil {
		fmt.Fprintln(os.Stderr, "assemble:", err)
		os.Exit(1)
	}
}

func run(inputMosaic, output, tilePath, cacheDir string, regionSize int) error {
	file, err := mosaic.ParseFile(inputMosaic)
	if err != nil {
		return err
	}
	if len(file.Entries) == 0 {
		return fmt.Errorf("mosaic %q lists no tiles", inputMosaic)
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

	canvas, err := assemble.Render(tiles, assemble.Options{RegionSize: regionSize, CacheDir: cacheDir})
	if err != nil {
		return err
	}

	return debugimage.SaveView(output, canvas.ToImage(), 0.5, 99.5)
}
