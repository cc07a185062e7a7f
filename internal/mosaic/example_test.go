package mosaic_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/mosaic"
)

// Example demonstrates writing a two-tile mosaic file and parsing it back.
func Example() {
	file := &mosaic.File{
		PixelSpacing: 1.0,
		Entries: []mosaic.Entry{
			{
				ImageFilename: "tile_000.png",
				Transform:     geom.RigidTransform{MappedSize: geom.Point{Y: 512, X: 512}},
				MappedWidth:   512, MappedHeight: 512,
			},
			{
				ImageFilename: "tile_001.png",
				Transform: geom.RigidTransform{
					Translation: geom.Point{Y: 0, X: 400},
					MappedSize:  geom.Point{Y: 512, X: 512},
				},
				MappedWidth: 512, MappedHeight: 512,
			},
		},
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		log.Fatalf("write: %v", err)
	}

	parsed, err := mosaic.Parse(&buf)
	if err != nil {
		log.Fatalf("parse: %v", err)
	}

	fmt.Println(len(parsed.Entries))
	fmt.Println(parsed.Entries[0].ImageFilename)
	fmt.Println(parsed.Entries[1].ImageFilename)

	// Output:
	// 2
	// tile_000.png
	// tile_001.png
}
