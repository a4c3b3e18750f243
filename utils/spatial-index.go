package utils

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// SpatialIndex is a uniform grid over feature bounds.
type SpatialIndex struct {
	geometries []*IndexedGeometry
	cellSize   float64
	grid       map[cellKey][]*IndexedGeometry
}

// IndexedGeometry is one indexed feature.
type IndexedGeometry struct {
	Bound orb.Bound
	Index int
	ID    string
}

type cellKey struct {
	x, y int
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		geometries: make([]*IndexedGeometry, 0),
		cellSize:   cellSize,
		grid:       make(map[cellKey][]*IndexedGeometry),
	}
}

// Len is the number of indexed features.
func (si *SpatialIndex) Len() int {
	return len(si.geometries)
}

func (si *SpatialIndex) AddGeometry(bound orb.Bound, index int, id string) {
	indexedGeom := &IndexedGeometry{
		Bound: bound,
		Index: index,
		ID:    id,
	}

	si.geometries = append(si.geometries, indexedGeom)
	si.addToGrid(indexedGeom)
}

func (si *SpatialIndex) cellRange(b orb.Bound) (int, int, int, int) {
	minCellX := int(math.Floor(b.Min[0] / si.cellSize))
	minCellY := int(math.Floor(b.Min[1] / si.cellSize))
	maxCellX := int(math.Floor(b.Max[0] / si.cellSize))
	maxCellY := int(math.Floor(b.Max[1] / si.cellSize))
	return minCellX, minCellY, maxCellX, maxCellY
}

func (si *SpatialIndex) addToGrid(indexedGeom *IndexedGeometry) {
	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(indexedGeom.Bound)

	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			key := cellKey{x, y}
			si.grid[key] = append(si.grid[key], indexedGeom)
		}
	}
}

// FindNeighbors returns the indexed features, other than index self, whose
// bounds come within distance of bound. Results are sorted by Index.
func (si *SpatialIndex) FindNeighbors(bound orb.Bound, self int, distance float64) []*IndexedGeometry {
	search := bound.Pad(distance)
	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(search)

	candidates := make(map[int]*IndexedGeometry)

	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			for _, candidate := range si.grid[cellKey{x, y}] {
				if candidate.Index != self {
					candidates[candidate.Index] = candidate
				}
			}
		}
	}

	neighbors := make([]*IndexedGeometry, 0, len(candidates))
	for _, candidate := range candidates {
		if search.Intersects(candidate.Bound) {
			neighbors = append(neighbors, candidate)
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Index < neighbors[j].Index })

	return neighbors
}
