package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Locate returns the distance along line of the point of line nearest to p.
func Locate(line orb.LineString, p orb.Point) float64 {
	g := LineToGeos(line)
	if g == nil {
		return 0
	}
	defer g.Destroy()
	pt := PointToGeos(p)
	defer pt.Destroy()
	return g.Project(pt)
}

// Distance returns the planar distance from p to line.
func Distance(line orb.LineString, p orb.Point) float64 {
	if len(line) == 1 {
		return planar.Distance(line[0], p)
	}
	return planar.DistanceFrom(line, p)
}

// VertexBefore returns the index of the last vertex of line whose
// distance along the line does not exceed s.
func VertexBefore(line orb.LineString, s float64) int {
	run := 0.0
	for i := 1; i < len(line); i++ {
		run += planar.Distance(line[i-1], line[i])
		if run > s {
			return i - 1
		}
	}
	return len(line) - 1
}

// WithinDistance reports whether p lies inside poly or within tol of it.
func WithinDistance(poly orb.Polygon, p orb.Point, tol float64) bool {
	if ValidateRings(poly) != nil {
		return false
	}
	g := PolygonToGeos(poly)
	defer g.Destroy()
	pt := PointToGeos(p)
	defer pt.Destroy()
	return g.Distance(pt) <= tol
}
