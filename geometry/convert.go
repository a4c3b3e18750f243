package geometry

import (
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

func lineCoords(ls orb.LineString) [][]float64 {
	coords := make([][]float64, 0, len(ls))
	for _, p := range ls {
		coords = append(coords, []float64{p[0], p[1]})
	}
	return coords
}

func ringCoords(r orb.Ring) [][]float64 {
	coords := make([][]float64, 0, len(r)+1)
	for _, p := range r {
		coords = append(coords, []float64{p[0], p[1]})
	}
	if len(r) > 0 && !r[0].Equal(r[len(r)-1]) {
		coords = append(coords, []float64{r[0][0], r[0][1]})
	}
	return coords
}

// LineToGeos converts a line with at least two points. It returns nil otherwise.
func LineToGeos(ls orb.LineString) *geos.Geom {
	if len(ls) < 2 {
		return nil
	}
	return geos.NewLineString(lineCoords(ls))
}

// PolygonToGeos converts a polygon whose rings have been checked with
// ValidateRings. It returns nil for an empty polygon.
func PolygonToGeos(p orb.Polygon) *geos.Geom {
	if len(p) == 0 {
		return nil
	}
	rings := make([][][]float64, 0, len(p))
	for _, r := range p {
		rings = append(rings, ringCoords(r))
	}
	return geos.NewPolygon(rings)
}

// PointToGeos converts a point.
func PointToGeos(p orb.Point) *geos.Geom {
	return geos.NewPoint([]float64{p[0], p[1]})
}

func toPoints(coords [][]float64) []orb.Point {
	pts := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) >= 2 {
			pts = append(pts, orb.Point{c[0], c[1]})
		}
	}
	return pts
}

// Vertices flattens every vertex of g in storage order.
func Vertices(g *geos.Geom) []orb.Point {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPoint, geos.TypeIDLineString, geos.TypeIDLinearRing:
		return toPoints(g.CoordSeq().ToCoords())
	case geos.TypeIDPolygon:
		pts := toPoints(g.ExteriorRing().CoordSeq().ToCoords())
		for i := 0; i < g.NumInteriorRings(); i++ {
			pts = append(pts, toPoints(g.InteriorRing(i).CoordSeq().ToCoords())...)
		}
		return pts
	default:
		var pts []orb.Point
		for i := 0; i < g.NumGeometries(); i++ {
			pts = append(pts, Vertices(g.Geometry(i))...)
		}
		return pts
	}
}

// FromGeos converts a GEOS geometry into its orb equivalent.
func FromGeos(g *geos.Geom) orb.Geometry {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPoint:
		return orb.Point{g.X(), g.Y()}
	case geos.TypeIDLineString, geos.TypeIDLinearRing:
		return orb.LineString(toPoints(g.CoordSeq().ToCoords()))
	case geos.TypeIDPolygon:
		return polygonFromGeos(g)
	case geos.TypeIDMultiPoint:
		return orb.MultiPoint(Vertices(g))
	case geos.TypeIDMultiLineString:
		mls := make(orb.MultiLineString, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			mls = append(mls, orb.LineString(toPoints(g.Geometry(i).CoordSeq().ToCoords())))
		}
		return mls
	case geos.TypeIDMultiPolygon:
		mp := make(orb.MultiPolygon, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			mp = append(mp, polygonFromGeos(g.Geometry(i)))
		}
		return mp
	default:
		coll := make(orb.Collection, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			if child := FromGeos(g.Geometry(i)); child != nil {
				coll = append(coll, child)
			}
		}
		return coll
	}
}

func polygonFromGeos(g *geos.Geom) orb.Polygon {
	poly := orb.Polygon{orb.Ring(toPoints(g.ExteriorRing().CoordSeq().ToCoords()))}
	for i := 0; i < g.NumInteriorRings(); i++ {
		poly = append(poly, orb.Ring(toPoints(g.InteriorRing(i).CoordSeq().ToCoords())))
	}
	return poly
}
