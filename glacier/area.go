package glacier

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius used for geodetic areas.
const EarthRadiusKm = 6371.0088

// GeodeticArea returns the area in km² of a lon/lat polygon on the sphere.
// Holes are subtracted.
func GeodeticArea(p orb.Polygon) float64 {
	total := 0.0
	for i, ring := range p {
		a := ringArea(ring)
		if i == 0 {
			total += a
		} else {
			total -= a
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

func ringArea(r orb.Ring) float64 {
	n := len(r)
	if n > 1 && r[0].Equal(r[n-1]) {
		n--
	}
	if n < 3 {
		return 0
	}
	pts := make([]s2.Point, 0, n)
	for _, p := range r[:n] {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0])))
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop.Area() * EarthRadiusKm * EarthRadiusKm
}

// AuthoritativeArea returns the inventory area when supplied, otherwise
// the geodetic area of the outline.
func (o Outline) AuthoritativeArea(recompute bool) float64 {
	if o.HasArea() && !recompute {
		return o.Area
	}
	return GeodeticArea(o.Polygon)
}
