package geometry

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// CascadedUnion unions geometries pairwise, halving the set at each level.
// It consumes its inputs.
func CascadedUnion(geometries []*geos.Geom) (*geos.Geom, error) {
	if len(geometries) == 0 {
		return nil, errors.Wrap(glacier.ErrEmptyInput, "nothing to union")
	}
	// Base case: if there is only one geometry, return it
	if len(geometries) == 1 {
		return geometries[0], nil
	}

	mid := len(geometries) / 2
	left, err := CascadedUnion(geometries[:mid])
	if err != nil {
		return nil, err
	}
	right, err := CascadedUnion(geometries[mid:])
	if err != nil {
		return nil, err
	}

	result := left.Union(right)

	left.Destroy()
	right.Destroy()

	return result, nil
}

// UnionPolygons dissolves polygons into a single geometry.
func UnionPolygons(polys []orb.Polygon) (*geos.Geom, error) {
	geoms := make([]*geos.Geom, 0, len(polys))
	for i, p := range polys {
		if err := ValidateRings(p); err != nil {
			for _, g := range geoms {
				g.Destroy()
			}
			return nil, errors.Wrapf(err, "polygon %d", i)
		}
		geoms = append(geoms, PolygonToGeos(p))
	}
	return CascadedUnion(geoms)
}

// Dissolve returns the union of polys as a multipolygon.
func Dissolve(polys []orb.Polygon) (orb.MultiPolygon, error) {
	union, err := UnionPolygons(polys)
	if err != nil {
		return nil, err
	}
	defer union.Destroy()
	switch g := FromGeos(union).(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	default:
		return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "union produced geometry type %d", int(union.TypeID()))
	}
}

// UnionCentroid returns the centroid of the union of polys.
func UnionCentroid(polys []orb.Polygon) (orb.Point, error) {
	union, err := UnionPolygons(polys)
	if err != nil {
		return orb.Point{}, err
	}
	defer union.Destroy()
	c := union.Centroid()
	defer c.Destroy()
	if c.IsEmpty() {
		return orb.Point{}, errors.Wrap(glacier.ErrMalformedGeometry, "union has no centroid")
	}
	return orb.Point{c.X(), c.Y()}, nil
}
