// Package glaciertest builds small synthetic glaciers for tests.
//
// Scenario lays out five glaciers on a 100 m grid around a root X:
//
//	            B (shares X's northern border, drains north)
//	  Y ..      X <--- A <--- C
//
// A drains into X's terminus flowline, C drains into A, B only touches X
// along its outline and Y ends ten cells short of X.
package glaciertest

import (
	"github.com/paulmach/orb"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

const (
	CRS = "EPSG:32632"
	Dx  = 100.0
)

const (
	RootID      = "RGI60-11.00100"
	TributaryID = "RGI60-11.00200"
	BorderID    = "RGI60-11.00300"
	SecondID    = "RGI60-11.00400"
	FarID       = "RGI60-11.00500"
)

// Square returns a closed counter-clockwise rectangle.
func Square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// Geodetic maps a frame polygon onto a small lon/lat patch in the Alps.
func Geodetic(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		ring := make(orb.Ring, len(r))
		for j, pt := range r {
			ring[j] = orb.Point{10 + pt[0]/1e5, 46 + pt[1]/1e5}
		}
		out[i] = ring
	}
	return out
}

// New builds a glacier with a single terminus flowline one cell wide.
func New(id string, shape orb.Polygon, main, downstream orb.LineString, area float64) glacier.Glacier {
	return glacier.Glacier{
		Outline: glacier.Outline{
			ID:      id,
			Name:    "Glacier " + id[len(id)-3:],
			Region:  "11",
			Polygon: Geodetic(shape),
			Area:    area,
		},
		Frame:      glacier.Frame{CRS: CRS, Dx: Dx},
		Shape:      shape,
		Flowlines:  []glacier.Flowline{{Points: main, Widths: widths(len(main)), FlowsTo: glacier.Terminus}},
		Downstream: downstream,
	}
}

func widths(n int) []float64 {
	if n == 0 {
		return nil
	}
	w := make([]float64, n)
	for i := range w {
		w[i] = Dx
	}
	return w
}

// Root is X: a 1 km square with a flowline running south out of it.
func Root() glacier.Glacier {
	return New(RootID, Square(0, 0, 1000, 1000),
		orb.LineString{{500, 900}, {500, 700}, {500, 500}, {500, 300}, {500, 100}},
		orb.LineString{{500, 100}, {500, -500}},
		12)
}

// Tributary is A: east of X, its downstream line runs west and ends on
// X's flowline at (500, 300).
func Tributary() glacier.Glacier {
	return New(TributaryID, Square(1500, 200, 2500, 1200),
		orb.LineString{{2000, 1100}, {2000, 700}, {2000, 300}},
		orb.LineString{{2000, 300}, {1500, 300}, {1000, 300}, {500, 300}},
		3)
}

// Border is B: it shares X's northern edge but drains away from it.
func Border() glacier.Glacier {
	return New(BorderID, Square(0, 1000, 1000, 2000),
		orb.LineString{{500, 1100}, {500, 1500}, {500, 1900}},
		orb.LineString{{500, 1900}, {500, 2500}},
		2)
}

// Second is C: north of A, its downstream line ends on A's flowline at
// (2000, 800).
func Second() glacier.Glacier {
	return New(SecondID, Square(1800, 1500, 2800, 2500),
		orb.LineString{{2300, 2400}, {2300, 1800}},
		orb.LineString{{2300, 1800}, {2300, 1400}, {2000, 800}},
		1.5)
}

// Far is Y: west of X, its downstream line stops ten cells from X.
func Far() glacier.Glacier {
	return New(FarID, Square(-2500, 200, -1500, 1200),
		orb.LineString{{-2000, 1100}, {-2000, 700}, {-2000, 300}},
		orb.LineString{{-2000, 300}, {-1500, 300}, {-1000, 300}},
		4)
}

// Scenario returns X followed by every candidate.
func Scenario() (glacier.Glacier, []glacier.Glacier) {
	return Root(), []glacier.Glacier{Tributary(), Border(), Second(), Far()}
}

// Cyclic returns a glacier whose two flowlines flow into each other.
func Cyclic(id string) glacier.Glacier {
	g := New(id, Square(3000, 3000, 4000, 4000),
		orb.LineString{{3500, 3900}, {3500, 3100}}, nil, 1)
	g.Flowlines = []glacier.Flowline{
		{Points: orb.LineString{{3500, 3900}, {3500, 3100}}, FlowsTo: 1, FlowsToPoint: 0},
		{Points: orb.LineString{{3200, 3900}, {3200, 3100}}, FlowsTo: 0, FlowsToPoint: 1},
	}
	return g
}

// Mask returns a full nx by ny mask with 100 m cells whose first cell
// centre is origin.
func Mask(origin orb.Point, nx, ny int) glacier.Mask {
	cells := make([]bool, nx*ny)
	for i := range cells {
		cells[i] = true
	}
	m, err := glacier.NewMask(glacier.Grid{Origin: origin, Dx: Dx, Nx: nx, Ny: ny}, cells)
	if err != nil {
		panic(err)
	}
	return m
}
