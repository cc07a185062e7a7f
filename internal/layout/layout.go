// Package layout implements the spring-network layout graph and its
// Jacobi relaxation solver (C6): a graph of node positions and weighted
// inter-tile offset constraints is iteratively relaxed until adjacent
// tiles' positions agree with their measured offsets, within tolerance.
package layout

import (
	"math"
	"sort"

	"github.com/bob-anderson-ok/emregister/internal/geom"
)

// edgeKey is the canonical (min, max) ordering for an undirected edge
// between two node ids, so each pair is stored exactly once regardless of
// insertion order (spec.md §9's "cyclic back-references" note).
type edgeKey struct{ lo, hi int }

func makeKey(i, j int) edgeKey {
	if i <= j {
		return edgeKey{i, j}
	}
	return edgeKey{j, i}
}

// edgeData is the offset (from lo to hi) and weight stored for a pair.
type edgeData struct {
	offset geom.Point // lo -> hi
	weight float64
}

// Layout is a graph of node positions and symmetric, weighted offset
// constraints between neighbouring nodes.
type Layout struct {
	positions map[int]geom.Point
	edges     map[edgeKey]edgeData
	neighbors map[int]map[int]struct{}
}

// New returns an empty layout.
func New() *Layout {
	return &Layout{
		positions: make(map[int]geom.Point),
		edges:     make(map[edgeKey]edgeData),
		neighbors: make(map[int]map[int]struct{}),
	}
}

// AddNode ensures a node with the given id exists, at the given initial
// position (no-op if the node already exists).
func (l *Layout) AddNode(id int, initial geom.Point) {
	if _, ok := l.positions[id]; !ok {
		l.positions[id] = initial
	}
}

// Position returns a node's current position. Returns the zero point if
// the node does not exist.
func (l *Layout) Position(id int) geom.Point {
	return l.positions[id]
}

// SetPosition overwrites a node's position directly, creating the node
// if it does not exist yet.
func (l *Layout) SetPosition(id int, p geom.Point) {
	l.AddNode(id, p)
	l.positions[id] = p
}

// NodeIDs returns every node id present in the layout, sorted ascending.
func (l *Layout) NodeIDs() []int {
	ids := make([]int, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetOffset records that node j should sit at node i's position plus v
// (i.e. i->j offset is v, weight w >= 0). Reading back i->j yields (v, w)
// and j->i yields (-v, w). Calling this again for the same (i, j) pair
// overwrites the previous value (last write wins).
func (l *Layout) SetOffset(i, j int, v geom.Point, w float64) {
	l.AddNode(i, geom.Point{})
	l.AddNode(j, geom.Point{})

	key := makeKey(i, j)
	offset := v
	if i > j {
		offset = v.Scale(-1)
	}
	l.edges[key] = edgeData{offset: offset, weight: w}

	if l.neighbors[i] == nil {
		l.neighbors[i] = make(map[int]struct{})
	}
	if l.neighbors[j] == nil {
		l.neighbors[j] = make(map[int]struct{})
	}
	l.neighbors[i][j] = struct{}{}
	l.neighbors[j][i] = struct{}{}
}

// Offset returns the i->j offset and weight, and whether the edge exists.
func (l *Layout) Offset(i, j int) (v geom.Point, w float64, ok bool) {
	key := makeKey(i, j)
	data, ok := l.edges[key]
	if !ok {
		return geom.Point{}, 0, false
	}
	if i <= j {
		return data.offset, data.weight, true
	}
	return data.offset.Scale(-1), data.weight, true
}

// Neighbors returns the sorted neighbour ids of node i.
func (l *Layout) Neighbors(i int) []int {
	set := l.neighbors[i]
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// EdgeCount returns the number of distinct edges in the layout.
func (l *Layout) EdgeCount() int { return len(l.edges) }

// AllEdges invokes fn once per distinct edge, with i < j and the i->j
// offset/weight.
func (l *Layout) AllEdges(fn func(i, j int, v geom.Point, w float64)) {
	for k, d := range l.edges {
		fn(k.lo, k.hi, d.offset, d.weight)
	}
}

// ScaleOffsetWeightsByPopulationRank rescales every edge weight linearly
// into [min, max], using the global weight range across all edges.
// Isolated nodes are unaffected (they have no edges). If every weight is
// equal, all weights are set to max. The operation is idempotent:
// applying it twice in a row yields the same weights as applying it once,
// because after the first pass the weight range is exactly [min, max].
func (l *Layout) ScaleOffsetWeightsByPopulationRank(min, max float64) {
	if len(l.edges) == 0 {
		return
	}
	wMin, wMax := math.Inf(1), math.Inf(-1)
	for _, d := range l.edges {
		if d.weight < wMin {
			wMin = d.weight
		}
		if d.weight > wMax {
			wMax = d.weight
		}
	}
	if wMax == wMin {
		for k, d := range l.edges {
			d.weight = max
			l.edges[k] = d
		}
		return
	}
	span := wMax - wMin
	for k, d := range l.edges {
		t := (d.weight - wMin) / span
		d.weight = min + t*(max-min)
		l.edges[k] = d
	}
}

// ScaleOffsetWeightsByPosition reweights each edge by the distance of its
// current residual, at each of its endpoints, from that node's median
// residual: offsets that deviate further from their node's typical
// residual get a lower trust multiplier. Only useful when the starting
// layout is already believed to be close to correct; the mosaic driver
// does not call this.
func (l *Layout) ScaleOffsetWeightsByPosition() {
	medianResidual := make(map[int]float64, len(l.positions))
	for _, id := range l.NodeIDs() {
		var residuals []float64
		for _, n := range l.Neighbors(id) {
			v, _, _ := l.Offset(id, n)
			tension := l.positions[n].Sub(l.positions[id]).Sub(v)
			residuals = append(residuals, tension.Norm())
		}
		medianResidual[id] = median(residuals)
	}

	for k, d := range l.edges {
		tensionLo := l.positions[k.hi].Sub(l.positions[k.lo]).Sub(d.offset).Norm()
		devLo := math.Abs(tensionLo - medianResidual[k.lo])
		devHi := math.Abs(tensionLo - medianResidual[k.hi])
		dev := (devLo + devHi) / 2
		factor := 1.0 / (1.0 + dev)
		d.weight *= factor
		l.edges[k] = d
	}
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// RelaxOptions configures the relaxation loop.
type RelaxOptions struct {
	// Alpha is the fixed step scalar applied to each node's net tension.
	// Defaults to 0.5.
	Alpha float64
	// MaxTensionCutoff stops the loop once every node's net tension norm
	// is at or below this value.
	MaxTensionCutoff float64
	// MaxIter bounds the number of iterations regardless of convergence.
	MaxIter int
	// PinFirst, if true, holds the lowest-id node fixed to remove the
	// mosaic's free-translation degree of freedom. The underlying
	// physical analogue leaves translation free; pinning is an opt-in
	// convenience callers can also achieve afterwards by re-centring.
	PinFirst bool
}

// DefaultRelaxOptions returns the spec's defaults: alpha 0.5, tolerant
// convergence, a generous iteration bound.
func DefaultRelaxOptions() RelaxOptions {
	return RelaxOptions{Alpha: 0.5, MaxTensionCutoff: 1e-3, MaxIter: 10000}
}

// Relax repeatedly moves every node along its weighted net tension vector
// until convergence or MaxIter is reached. All per-node updates within one
// iteration are computed from the positions at the start of that
// iteration (Jacobi-style) so the iteration order never affects the
// result and per-node work could run in parallel, though doing so is not
// required — this is what distinguishes the loop from a Gauss-Seidel
// variant, which would drift depending on node visitation order.
// Disconnected nodes (no edges) are left untouched. Returns the number of
// iterations actually performed and the final maximum per-node tension
// norm.
func (l *Layout) Relax(opts RelaxOptions) (iterations int, maxTension float64) {
	if opts.Alpha == 0 {
		opts.Alpha = 0.5
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 10000
	}
	ids := l.NodeIDs()
	if len(ids) == 0 {
		return 0, 0
	}
	pinned := -1
	if opts.PinFirst {
		pinned = ids[0]
	}

	tensions := make(map[int]geom.Point, len(ids))
	for iter := 0; iter < opts.MaxIter; iter++ {
		maxTension = 0
		for _, id := range ids {
			tensions[id] = l.netTension(id)
			if n := tensions[id].Norm(); n > maxTension {
				maxTension = n
			}
		}
		iterations = iter + 1
		if maxTension <= opts.MaxTensionCutoff {
			break
		}
		for _, id := range ids {
			if id == pinned {
				continue
			}
			l.positions[id] = l.positions[id].Add(tensions[id].Scale(opts.Alpha))
		}
	}
	return iterations, maxTension
}

// MaxWeightedTension returns the current maximum per-node net-tension
// norm without moving any node, for convergence monitoring.
func (l *Layout) MaxWeightedTension() float64 {
	max := 0.0
	for _, id := range l.NodeIDs() {
		if n := l.netTension(id).Norm(); n > max {
			max = n
		}
	}
	return max
}

// netTension computes node i's weighted net tension vector
// T_i = sum_j w_ij * ((p_j - p_i) - v_ij).
func (l *Layout) netTension(i int) geom.Point {
	var total geom.Point
	pi := l.positions[i]
	for _, j := range l.Neighbors(i) {
		v, w, _ := l.Offset(i, j)
		tension := l.positions[j].Sub(pi).Sub(v)
		total = total.Add(tension.Scale(w))
	}
	return total
}

// Recentre translates every node position so the centroid of all nodes
// sits at the origin, removing the free-translation degree of freedom
// left over after relaxation.
func (l *Layout) Recentre() {
	ids := l.NodeIDs()
	if len(ids) == 0 {
		return
	}
	var sum geom.Point
	for _, id := range ids {
		sum = sum.Add(l.positions[id])
	}
	centroid := sum.Scale(1.0 / float64(len(ids)))
	for _, id := range ids {
		l.positions[id] = l.positions[id].Sub(centroid)
	}
}
