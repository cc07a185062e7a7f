// Package driver implements the parallel pairwise-alignment pass (C5):
// given a set of tiles with approximate transforms, it enumerates every
// pair whose fixed-space bounding boxes overlap enough to be worth
// aligning, dispatches each pair to internal/tilepair.Align over a
// internal/workerpool.Pool, and folds the surviving results into a
// internal/layout.Layout graph. A single pair's failure does not abort
// the batch; it is recorded and the batch continues, matching the
// teacher's tolerance for per-candidate failure in its own brute-force
// search loop (cm68-traces/internal/alignment/contact_bruteforce.go never
// aborts the whole search because one candidate region errors).
package driver

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/bob-anderson-ok/emregister/internal/geom"
	"github.com/bob-anderson-ok/emregister/internal/layout"
	"github.com/bob-anderson-ok/emregister/internal/tile"
	"github.com/bob-anderson-ok/emregister/internal/tilepair"
	"github.com/bob-anderson-ok/emregister/internal/workerpool"
)

// Options configures the pairwise-alignment pass.
type Options struct {
	// MinOverlapFraction is the minimum fixed-space bounding-box overlap,
	// as a fraction of the smaller tile's box area, required for a pair to
	// be aligned at all. Defaults to 0.05.
	MinOverlapFraction float64
	// WorkingScale is passed through to tilepair.Align; 1.0 means full
	// resolution.
	WorkingScale float64
	// Pool runs the per-pair alignment jobs. If nil, a local pool sized to
	// runtime.NumCPU() is used.
	Pool *workerpool.Pool
	// Seed seeds the per-pair noise RNG deterministically; each pair gets
	// its own *rand.Rand derived from Seed and the pair's tile ids so
	// results do not depend on dispatch order.
	Seed int64
}

// PairResult is the outcome of aligning one candidate tile pair.
type PairResult struct {
	TileA, TileB int
	Offset       geom.Point
	Weight       float64
}

// WorkerFailure describes one pair that could not be aligned; the batch
// continues regardless, and the caller can inspect the returned slice to
// decide whether enough of the mosaic is covered.
type WorkerFailure struct {
	TileA, TileB int
	Err          error
}

func (f WorkerFailure) Error() string {
	return fmt.Sprintf("tiles %d-%d: %v", f.TileA, f.TileB, f.Err)
}

// ErrZeroWeight is recorded as a WorkerFailure's Err when a candidate
// pair aligned without error but produced a zero-confidence correlation,
// so it is excluded from the layout's spanning set the same as a true
// failure would be.
var ErrZeroWeight = errors.New("driver: zero-weight correlation, pair excluded from layout")

// candidatePairs returns every (i, j) with i < j whose fixed-space
// bounding boxes overlap by at least minFraction of the smaller box.
func candidatePairs(tiles []*tile.Tile, minFraction float64) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(tiles); i++ {
		bi := tiles[i].Transform.FixedBoundingBox()
		for j := i + 1; j < len(tiles); j++ {
			bj := tiles[j].Transform.FixedBoundingBox()
			if bi.OverlapFraction(bj) >= minFraction {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// Run aligns every sufficiently-overlapping pair of tiles and returns a
// populated Layout seeded with each tile's current fixed-space centre as
// its starting position, plus the list of pairs excluded from the
// layout's spanning set — both pairs that errored outright and pairs
// that aligned without error but produced a zero-confidence correlation
// (empty only if every candidate pair produced a usable edge).
func Run(tiles []*tile.Tile, opts Options) (*layout.Layout, []WorkerFailure) {
	if opts.MinOverlapFraction <= 0 {
		opts.MinOverlapFraction = 0.05
	}
	if opts.WorkingScale <= 0 {
		opts.WorkingScale = 1.0
	}
	pool := opts.Pool
	if pool == nil {
		pool = workerpool.NewLocal()
	}

	pairs := candidatePairs(tiles, opts.MinOverlapFraction)

	type pending struct {
		i, j int
		task *workerpool.Task[PairResult]
	}
	jobs := make([]pending, 0, len(pairs))
	for _, pr := range pairs {
		i, j := pr[0], pr[1]
		a, b := tiles[i], tiles[j]
		rng := rand.New(rand.NewSource(opts.Seed + int64(a.ID)*1_000_003 + int64(b.ID)))
		task := workerpool.Submit(pool, func() (PairResult, error) {
			rec, err := tilepair.Align(a, b, opts.WorkingScale, rng)
			if err != nil {
				return PairResult{}, err
			}
			return PairResult{TileA: a.ID, TileB: b.ID, Offset: rec.Peak, Weight: rec.Weight}, nil
		})
		jobs = append(jobs, pending{i: i, j: j, task: task})
	}

	lay := layout.New()
	for _, t := range tiles {
		lay.AddNode(t.ID, t.Centre())
	}

	var failures []WorkerFailure
	for _, job := range jobs {
		a, b := tiles[job.i], tiles[job.j]
		result, err := job.task.Wait()
		if err != nil {
			failures = append(failures, WorkerFailure{TileA: a.ID, TileB: b.ID, Err: err})
			continue
		}
		if result.Weight > 0 {
			lay.SetOffset(a.ID, b.ID, result.Offset, result.Weight)
		} else {
			failures = append(failures, WorkerFailure{TileA: a.ID, TileB: b.ID, Err: ErrZeroWeight})
		}
	}
	pool.Wait()

	sort.Slice(failures, func(i, j int) bool {
		if failures[i].TileA != failures[j].TileA {
			return failures[i].TileA < failures[j].TileA
		}
		return failures[i].TileB < failures[j].TileB
	})
	return lay, failures
}
