// Package assemble implements the tiled mosaic compositor (C7): it
// samples every tile through its inverse rigid transform onto a shared
// fixed-space canvas, resolving overlaps with a minimum-distance-to-tile-
// centre z-buffer, and renders the canvas in parallel 2048x2048 regions
// over an internal/workerpool.Pool the way the teacher farms its own
// per-strip image work out to goroutines in convolution.go. Pixel values
// are cubic-sampled for fidelity; the z-buffer's distance channel is
// sampled nearest-neighbour so the depth comparison at a tile boundary is
// never blended across two tiles.
package assemble

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/imageproc"
	"github.com/bob-anderson-ok/emregister/internal/tile"
	"github.com/bob-anderson-ok/emregister/internal/workerpool"
)

// ErrInvalidInput is returned for an empty tile set or a degenerate
// mosaic bounding box.
var ErrInvalidInput = errors.New("assemble: invalid input")

// DefaultRegionSize is the side length, in pixels, of the square regions
// the renderer farms out to the worker pool.
const DefaultRegionSize = 2048

// Options configures a mosaic assembly pass.
type Options struct {
	// RegionSize is the side length of each parallel render region.
	// Defaults to DefaultRegionSize.
	RegionSize int
	// Pool runs the per-region render jobs. If nil, a local pool sized to
	// runtime.NumCPU() is used.
	Pool *workerpool.Pool
	// CacheDir, if non-empty, holds one cached centre-distance map per
	// image shape, named dist_<H>x<W>.cache and shared by every tile of
	// that shape. A missing or corrupt cache entry is silently regenerated
	// and rewritten.
	CacheDir string
}

// Canvas is the assembled mosaic: per-pixel sample values clamped to
// [0,1], plus a boolean mask of which pixels were covered by at least one
// tile.
type Canvas struct {
	Pix   [][]float64
	Valid [][]bool
	H, W  int
	// Origin is the fixed-space point the canvas's (0,0) pixel corresponds
	// to, i.e. the top-left corner of the union of every tile's fixed
	// bounding box.
	Origin geom.Point
}

// Render composites every tile onto a single canvas covering the union of
// their fixed bounding boxes.
func Render(tiles []*tile.Tile, opts Options) (*Canvas, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: no tiles", ErrInvalidInput)
	}
	if opts.RegionSize <= 0 {
		opts.RegionSize = DefaultRegionSize
	}
	pool := opts.Pool
	if pool == nil {
		pool = workerpool.NewLocal()
	}

	bounds := mosaicBounds(tiles)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: degenerate mosaic bounds", ErrInvalidInput)
	}
	full := geom.RoundOutward(bounds)
	h, w := full.Height(), full.Width()

	canvas := &Canvas{
		Pix:    make([][]float64, h),
		Valid:  make([][]bool, h),
		H:      h,
		W:      w,
		Origin: geom.Point{Y: float64(full.MinY), X: float64(full.MinX)},
	}
	for y := range canvas.Pix {
		canvas.Pix[y] = make([]float64, w)
		canvas.Valid[y] = make([]bool, w)
	}

	distances := make(map[int]imageproc.Image, len(tiles))
	for _, t := range tiles {
		d, err := centreDistance(t, opts.CacheDir)
		if err != nil {
			return nil, err
		}
		distances[t.ID] = d
	}

	type region struct{ y0, x0, y1, x1 int }
	var regions []region
	for y0 := 0; y0 < h; y0 += opts.RegionSize {
		y1 := y0 + opts.RegionSize
		if y1 > h {
			y1 = h
		}
		for x0 := 0; x0 < w; x0 += opts.RegionSize {
			x1 := x0 + opts.RegionSize
			if x1 > w {
				x1 = w
			}
			regions = append(regions, region{y0, x0, y1, x1})
		}
	}

	type regionResult struct {
		r    region
		pix  [][]float64
		mask [][]bool
	}
	tasks := make([]*workerpool.Task[regionResult], len(regions))
	for i, r := range regions {
		r := r
		tasks[i] = workerpool.Submit(pool, func() (regionResult, error) {
			pix, mask := renderRegion(tiles, distances, canvas.Origin, r.y0, r.x0, r.y1, r.x1)
			return regionResult{r: r, pix: pix, mask: mask}, nil
		})
	}
	for _, task := range tasks {
		res, _ := task.Wait()
		for dy := 0; dy < res.r.y1-res.r.y0; dy++ {
			copy(canvas.Pix[res.r.y0+dy][res.r.x0:res.r.x1], res.pix[dy])
			copy(canvas.Valid[res.r.y0+dy][res.r.x0:res.r.x1], res.mask[dy])
		}
	}
	pool.Wait()
	return canvas, nil
}

// ToImage converts the canvas to a plain imageproc.Image, leaving
// uncovered pixels at 0; callers that need the coverage mask should read
// canvas.Valid directly instead of relying on the zero value.
func (c *Canvas) ToImage() imageproc.Image {
	im := imageproc.New(c.H, c.W)
	for y := 0; y < c.H; y++ {
		copy(im.Pix[y], c.Pix[y])
	}
	return im
}

// mosaicBounds returns the union of every tile's fixed-space bounding box.
func mosaicBounds(tiles []*tile.Tile) geom.Rectangle {
	first := tiles[0].Transform.FixedBoundingBox()
	minY, minX, maxY, maxX := first.MinY, first.MinX, first.MaxY, first.MaxX
	for _, t := range tiles[1:] {
		b := t.Transform.FixedBoundingBox()
		minY = math.Min(minY, b.MinY)
		minX = math.Min(minX, b.MinX)
		maxY = math.Max(maxY, b.MaxY)
		maxX = math.Max(maxX, b.MaxX)
	}
	return geom.Rectangle{MinY: minY, MinX: minX, MaxY: maxY, MaxX: maxX}
}

// renderRegion samples every candidate tile at each pixel of the region
// [y0,y1) x [x0,x1) (in canvas-local coordinates, offset by origin in
// fixed space), keeping the sample from whichever tile's centre-distance
// map is smallest at that point.
func renderRegion(tiles []*tile.Tile, distances map[int]imageproc.Image, origin geom.Point, y0, x0, y1, x1 int) ([][]float64, [][]bool) {
	rh, rw := y1-y0, x1-x0
	pix := make([][]float64, rh)
	mask := make([][]bool, rh)
	for i := range pix {
		pix[i] = make([]float64, rw)
		mask[i] = make([]bool, rw)
	}

	regionFixed := geom.Rectangle{
		MinY: origin.Y + float64(y0), MinX: origin.X + float64(x0),
		MaxY: origin.Y + float64(y1), MaxX: origin.X + float64(x1),
	}
	var candidates []*tile.Tile
	for _, t := range tiles {
		if !t.Transform.FixedBoundingBox().Intersection(regionFixed).Empty() {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return pix, mask
	}

	images := make(map[int]imageproc.Image, len(candidates))
	for _, t := range candidates {
		im, err := t.Image()
		if err != nil {
			continue
		}
		images[t.ID] = im
	}

	for y := y0; y < y1; y++ {
		fy := origin.Y + float64(y)
		for x := x0; x < x1; x++ {
			fx := origin.X + float64(x)
			bestDist := math.Inf(1)
			bestVal := 0.0
			found := false
			for _, t := range candidates {
				im, ok := images[t.ID]
				if !ok {
					continue
				}
				mb := t.Transform.MappedBoundingBox()
				p := t.Transform.InverseTransform(geom.Point{Y: fy, X: fx})
				if p.Y < mb.MinY || p.Y > mb.MaxY-1 || p.X < mb.MinX || p.X > mb.MaxX-1 {
					continue
				}
				// Distance is a depth proxy, not image content: sample it
				// nearest-neighbour so the z-buffer comparison at a tile
				// boundary never blends two tiles' depths together. The
				// pixel value itself is sampled with the higher-fidelity
				// cubic kernel.
				d := imageproc.NearestNeighbor(distances[t.ID], p.Y, p.X)
				if d < bestDist {
					bestDist = d
					bestVal = imageproc.Cubic(im, p.Y, p.X)
					found = true
				}
			}
			if found {
				pix[y-y0][x-x0] = clamp01(bestVal)
				mask[y-y0][x-x0] = true
			}
		}
	}
	return pix, mask
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// centreDistance returns a per-pixel map, in the tile's own image space,
// of Euclidean distance to the tile's own image centre — the depth proxy
// that lets overlap regions prefer whichever tile's optical centre is
// nearer, instead of an arbitrary draw order. Computed once per tile and
// cached to disk when cacheDir is non-empty.
func centreDistance(t *tile.Tile, cacheDir string) (imageproc.Image, error) {
	im, err := t.Image()
	if err != nil {
		return imageproc.Image{}, err
	}

	if cacheDir != "" {
		// Keyed by (H, W) only: the centre-distance map depends solely on
		// image shape, so every tile of the same size shares one entry.
		path := filepath.Join(cacheDir, fmt.Sprintf("dist_%dx%d.cache", im.H, im.W))
		if cached, ok := loadDistanceCache(path, im.H, im.W); ok {
			return cached, nil
		}
		d := computeCentreDistance(im.H, im.W)
		_ = writeDistanceCache(path, d) // best-effort; a failed write just forces recompute next time.
		return d, nil
	}
	return computeCentreDistance(im.H, im.W), nil
}

func computeCentreDistance(h, w int) imageproc.Image {
	out := imageproc.New(h, w)
	cy, cx := float64(h-1)/2, float64(w-1)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dy, dx := float64(y)-cy, float64(x)-cx
			out.Pix[y][x] = math.Sqrt(dy*dy + dx*dx)
		}
	}
	return out
}

// distanceCacheFile is the gob-encoded payload written to disk; a plain
// row-major float64 grid is the entire format, since this is a private
// intermediate cache (never a mosaic-interchange file) and needs no
// library beyond the standard encoder.
type distanceCacheFile struct {
	H, W int
	Pix  [][]float64
}

func loadDistanceCache(path string, wantH, wantW int) (imageproc.Image, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imageproc.Image{}, false
	}
	var payload distanceCacheFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return imageproc.Image{}, false
	}
	if payload.H != wantH || payload.W != wantW {
		return imageproc.Image{}, false
	}
	return imageproc.Image{Pix: payload.Pix, H: payload.H, W: payload.W}, true
}

func writeDistanceCache(path string, im imageproc.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(distanceCacheFile{H: im.H, W: im.W, Pix: im.Pix}); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
