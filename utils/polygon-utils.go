package utils

import (
	"math"

	"github.com/paulmach/orb"
)

// TruncateGeometry rounds every coordinate of g to precision decimal
// places. Interior rings that collapse below four vertices are dropped.
func TruncateGeometry(g orb.Geometry, precision int) orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return truncatePoint(v, precision)
	case orb.MultiPoint:
		return orb.MultiPoint(truncatePoints(v, precision))
	case orb.LineString:
		return orb.LineString(truncatePoints(v, precision))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			out[i] = truncatePoints(ls, precision)
		}
		return out
	case orb.Ring:
		return orb.Ring(truncatePoints(v, precision))
	case orb.Polygon:
		return TruncateSinglePolygon(v, precision)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			if tp := TruncateSinglePolygon(p, precision); tp != nil {
				out = append(out, tp)
			}
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, child := range v {
			if tc := TruncateGeometry(child, precision); tc != nil {
				out = append(out, tc)
			}
		}
		return out
	default:
		return g
	}
}

// TruncateSinglePolygon rounds a polygon; nil when the exterior ring is
// degenerate.
func TruncateSinglePolygon(polygon orb.Polygon, precision int) orb.Polygon {
	if len(polygon) == 0 || len(polygon[0]) <= 3 {
		return nil
	}
	rings := orb.Polygon{orb.Ring(truncatePoints(polygon[0], precision))}
	for _, ring := range polygon[1:] {
		if len(ring) <= 3 {
			continue
		}
		tr := orb.Ring(truncatePoints(ring, precision))
		if distinct(tr) >= 3 {
			rings = append(rings, tr)
		}
	}
	return rings
}

func distinct(r orb.Ring) int {
	n := 0
	for i, p := range r {
		if i == 0 || !p.Equal(r[i-1]) {
			n++
		}
	}
	if len(r) > 1 && r[0].Equal(r[len(r)-1]) {
		n--
	}
	return n
}

func truncatePoints(pts []orb.Point, precision int) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = truncatePoint(p, precision)
	}
	return out
}

func truncatePoint(p orb.Point, precision int) orb.Point {
	return orb.Point{roundFloat(p[0], uint(precision)), roundFloat(p[1], uint(precision))}
}

func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
