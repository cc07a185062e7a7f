// Package tile defines the Tile type: one acquired image plus its current
// best transform into fixed (mosaic) space. The source image is loaded
// lazily on first use and cached until EvictImage drops it, so a tile's
// id, path, and transform are all that is needed to reload it. Tile
// keeps no padded-image or FFT cache: the padded field is never filled
// by this package, and callers pad and transform images themselves.
package tile

import (
	"fmt"
	"sync"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/imageproc"
)

// Tile is one mosaic tile: a dense, 0-based id assigned at creation, its
// rigid transform into fixed space, the path to its source image, and a
// lazily-loaded image cache.
type Tile struct {
	ID        int
	Transform geom.RigidTransform
	ImagePath string

	mu     sync.Mutex
	image  *imageproc.Image
	padded *imageproc.Image
}

// New creates a tile with the given id, image path, and transform. The
// transform's MappedSize should already reflect the image's dimensions if
// known; otherwise it is filled in on first Image() load.
func New(id int, imagePath string, transform geom.RigidTransform) *Tile {
	return &Tile{ID: id, ImagePath: imagePath, Transform: transform}
}

// Image returns the tile's loaded image, loading and caching it on first
// use.
func (t *Tile) Image() (imageproc.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.image != nil {
		return *t.image, nil
	}
	im, err := imageproc.Load(t.ImagePath)
	if err != nil {
		return imageproc.Image{}, fmt.Errorf("tile %d: %w", t.ID, err)
	}
	if t.Transform.MappedSize == (geom.Point{}) {
		t.Transform.MappedSize = geom.Point{Y: float64(im.H), X: float64(im.W)}
	}
	t.image = &im
	return im, nil
}

// EvictImage drops the cached image (and clears the padded field),
// freeing memory while leaving id, path, and transform intact.
func (t *Tile) EvictImage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.image = nil
	t.padded = nil
}

// Centre returns the tile's centre point in fixed space, derived from its
// transform's fixed bounding box.
func (t *Tile) Centre() geom.Point {
	return t.Transform.FixedBoundingBox().Centre()
}
