package catchment

import (
	"container/heap"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// Segment is one flowline to drain the mask into. Points [0, Ice) lie on
// the glacier; the rest is ice-free continuation. Ice 0 means every point.
type Segment struct {
	Line glacier.Flowline
	Ice  int
}

func (s Segment) glacierised() orb.LineString {
	if s.Ice <= 0 || s.Ice >= len(s.Line.Points) {
		return s.Line.Points
	}
	return s.Line.Points[:s.Ice]
}

// Assignment maps every mask cell onto the segment draining it.
type Assignment struct {
	Mask  glacier.Mask
	owner []int // per grid cell, -1 outside the mask
}

// Owner returns the segment draining c, or -1 for cells outside the mask.
func (a Assignment) Owner(c glacier.Cell) int {
	if !a.Mask.At(c) {
		return -1
	}
	return a.owner[c.J*a.Mask.Nx+c.I]
}

// Count is the number of cells drained by segment seg.
func (a Assignment) Count(seg int) int {
	return len(a.Cells(seg))
}

// Cells lists the cells drained by segment seg in row-major order.
func (a Assignment) Cells(seg int) []glacier.Cell {
	var out []glacier.Cell
	for idx, o := range a.owner {
		if o == seg {
			out = append(out, glacier.Cell{I: idx % a.Mask.Nx, J: idx / a.Mask.Nx})
		}
	}
	return out
}

// Area is the catchment area of seg in frame units squared.
func (a Assignment) Area(seg int) float64 {
	return float64(a.Count(seg)) * a.Mask.Dx * a.Mask.Dx
}

// Partitioner splits a glacier mask into per-segment catchments by
// routing distance.
type Partitioner struct {
	// Penalty weights the elevation drop of a step away from the
	// flowline. Zero partitions by path length through the ice alone.
	Penalty float64
}

// Partition assigns each mask cell to the segment with the cheapest path
// through the mask. The cost of a step is its length plus Penalty times
// the elevation lost walking away from the flowline, so ridges between
// catchments are expensive to cross. Cells unreachable from any seed
// fall back to the segment nearest in straight-line distance.
func (p Partitioner) Partition(mask glacier.Mask, segments []Segment, surface *glacier.Raster) (Assignment, error) {
	if len(segments) == 0 {
		return Assignment{}, errors.Wrap(glacier.ErrEmptyInput, "no segments to partition the mask into")
	}
	if len(mask.Cells) != mask.Nx*mask.Ny || mask.Dx <= 0 {
		return Assignment{}, errors.Wrapf(glacier.ErrMalformedGeometry, "mask %dx%d has %d cells", mask.Nx, mask.Ny, len(mask.Cells))
	}
	if p.Penalty < 0 {
		return Assignment{}, errors.Newf("negative routing penalty %g", p.Penalty)
	}

	n := mask.Nx * mask.Ny
	owner := make([]int, n)
	cost := make([]float64, n)
	for i := range owner {
		owner[i] = -1
		cost[i] = math.Inf(1)
	}

	q := &queue{}
	for s, seg := range segments {
		for _, c := range seedCells(mask, seg.glacierised()) {
			idx := c.J*mask.Nx + c.I
			// Lower segment index wins a shared seed cell.
			if cost[idx] == 0 {
				continue
			}
			cost[idx] = 0
			owner[idx] = s
			heap.Push(q, item{cost: 0, seg: s, idx: idx})
		}
	}

	diag := mask.Dx * math.Sqrt2
	for q.Len() > 0 {
		it := heap.Pop(q).(item)
		if it.cost > cost[it.idx] || owner[it.idx] != it.seg {
			continue
		}
		from := glacier.Cell{I: it.idx % mask.Nx, J: it.idx / mask.Nx}
		zFrom, okFrom := surface.Elevation(from)
		for _, d := range neighbours {
			to := glacier.Cell{I: from.I + d.I, J: from.J + d.J}
			if !mask.At(to) {
				continue
			}
			step := mask.Dx
			if d.I != 0 && d.J != 0 {
				step = diag
			}
			if zTo, ok := surface.Elevation(to); ok && okFrom && zTo < zFrom {
				step += p.Penalty * (zFrom - zTo)
			}
			next := it.cost + step
			tidx := to.J*mask.Nx + to.I
			if next < cost[tidx] || (next == cost[tidx] && it.seg < owner[tidx]) {
				cost[tidx] = next
				owner[tidx] = it.seg
				heap.Push(q, item{cost: next, seg: it.seg, idx: tidx})
			}
		}
	}

	for idx := range owner {
		if !mask.Cells[idx] {
			owner[idx] = -1
			continue
		}
		if owner[idx] < 0 {
			c := glacier.Cell{I: idx % mask.Nx, J: idx / mask.Nx}
			owner[idx] = nearestSegment(mask.Center(c), segments)
		}
	}

	return Assignment{Mask: mask, owner: owner}, nil
}

var neighbours = []glacier.Cell{
	{I: -1, J: -1}, {I: 0, J: -1}, {I: 1, J: -1},
	{I: -1, J: 0}, {I: 1, J: 0},
	{I: -1, J: 1}, {I: 0, J: 1}, {I: 1, J: 1},
}

// seedCells returns the mask cells a line passes through, sampled every
// half cell.
func seedCells(mask glacier.Mask, line orb.LineString) []glacier.Cell {
	var out []glacier.Cell
	seen := make(map[glacier.Cell]bool)
	add := func(p orb.Point) {
		c, ok := mask.Locate(p)
		if ok && mask.At(c) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for i, p := range line {
		add(p)
		if i == 0 {
			continue
		}
		prev := line[i-1]
		steps := int(math.Ceil(planar.Distance(prev, p) / (mask.Dx / 2)))
		for k := 1; k < steps; k++ {
			t := float64(k) / float64(steps)
			add(orb.Point{prev[0] + t*(p[0]-prev[0]), prev[1] + t*(p[1]-prev[1])})
		}
	}
	return out
}

func nearestSegment(p orb.Point, segments []Segment) int {
	best, bestDist := 0, math.Inf(1)
	for s, seg := range segments {
		line := seg.glacierised()
		var d float64
		switch len(line) {
		case 0:
			continue
		case 1:
			d = planar.Distance(line[0], p)
		default:
			d = planar.DistanceFrom(line, p)
		}
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

type item struct {
	cost float64
	seg  int
	idx  int
}

type queue []item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	if q[i].seg != q[j].seg {
		return q[i].seg < q[j].seg
	}
	return q[i].idx < q[j].idx
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(item)) }

func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
