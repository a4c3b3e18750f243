package glacier

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// Cell addresses one grid cell, I along x and J along y.
type Cell struct {
	I, J int
}

// Grid is a regular raster geometry. Origin is the centre of cell (0, 0)
// and J grows with y.
type Grid struct {
	Origin orb.Point
	Dx     float64
	Nx, Ny int
}

// Center returns the frame coordinates of a cell centre.
func (g Grid) Center(c Cell) orb.Point {
	return orb.Point{g.Origin[0] + float64(c.I)*g.Dx, g.Origin[1] + float64(c.J)*g.Dx}
}

// Locate returns the cell containing p.
func (g Grid) Locate(p orb.Point) (Cell, bool) {
	i := int(math.Round((p[0] - g.Origin[0]) / g.Dx))
	j := int(math.Round((p[1] - g.Origin[1]) / g.Dx))
	c := Cell{I: i, J: j}
	return c, g.Contains(c)
}

// Contains reports whether c lies inside the grid.
func (g Grid) Contains(c Cell) bool {
	return c.I >= 0 && c.J >= 0 && c.I < g.Nx && c.J < g.Ny
}

func (g Grid) index(c Cell) int {
	return c.J*g.Nx + c.I
}

// Mask marks the glacier cells of a grid.
type Mask struct {
	Grid
	Cells []bool
}

// NewMask wraps cells (row-major, len Nx*Ny) after checking the size.
func NewMask(grid Grid, cells []bool) (Mask, error) {
	if grid.Nx <= 0 || grid.Ny <= 0 || grid.Dx <= 0 {
		return Mask{}, errors.Wrapf(ErrMalformedGeometry, "invalid mask grid %dx%d dx=%g", grid.Nx, grid.Ny, grid.Dx)
	}
	if len(cells) != grid.Nx*grid.Ny {
		return Mask{}, errors.Wrapf(ErrMalformedGeometry, "mask has %d cells, want %d", len(cells), grid.Nx*grid.Ny)
	}
	return Mask{Grid: grid, Cells: append([]bool(nil), cells...)}, nil
}

// At reports whether c is a glacier cell.
func (m Mask) At(c Cell) bool {
	return m.Contains(c) && m.Cells[m.index(c)]
}

// List returns the glacier cells in row-major order.
func (m Mask) List() []Cell {
	var out []Cell
	for j := 0; j < m.Ny; j++ {
		for i := 0; i < m.Nx; i++ {
			if m.Cells[j*m.Nx+i] {
				out = append(out, Cell{I: i, J: j})
			}
		}
	}
	return out
}

// Count is the number of glacier cells.
func (m Mask) Count() int {
	n := 0
	for _, c := range m.Cells {
		if c {
			n++
		}
	}
	return n
}

// Raster is an elevation surface supplied by the terrain collaborator.
type Raster struct {
	Grid
	Z []float64
}

// Elevation returns the surface height at c.
func (r *Raster) Elevation(c Cell) (float64, bool) {
	if r == nil || !r.Contains(c) {
		return 0, false
	}
	idx := r.index(c)
	if idx >= len(r.Z) {
		return 0, false
	}
	return r.Z[idx], true
}

// Domain holds the derived rasters of one glacier.
type Domain struct {
	Mask    Mask
	Surface *Raster
}

// Domains is the side-table of derived rasters keyed by glacier id.
type Domains map[string]Domain
