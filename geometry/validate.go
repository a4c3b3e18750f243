package geometry

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// ValidateRings checks that every ring is closed and has at least four
// vertices. GEOS refuses to build rings that fail this.
func ValidateRings(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.Wrap(glacier.ErrMalformedGeometry, "polygon has no rings")
	}
	for i, r := range p {
		if len(r) < 4 {
			return errors.Wrapf(glacier.ErrMalformedGeometry, "ring %d has %d vertices", i, len(r))
		}
		if !r[0].Equal(r[len(r)-1]) {
			return errors.Wrapf(glacier.ErrMalformedGeometry, "ring %d is not closed", i)
		}
	}
	return nil
}

// ValidatePolygon checks closure and then simplicity with GEOS.
func ValidatePolygon(p orb.Polygon) error {
	if err := ValidateRings(p); err != nil {
		return err
	}
	g := PolygonToGeos(p)
	defer g.Destroy()
	if !g.IsValid() {
		return errors.Wrapf(glacier.ErrMalformedGeometry, "invalid polygon: %s", g.IsValidReason())
	}
	return nil
}

// ValidateOutline checks both the geodetic outline and the projected
// shape of a glacier.
func ValidateOutline(g glacier.Glacier) error {
	if err := ValidatePolygon(g.Outline.Polygon); err != nil {
		return errors.Wrapf(err, "glacier %s outline", g.ID())
	}
	if err := ValidatePolygon(g.Shape); err != nil {
		return errors.Wrapf(err, "glacier %s shape", g.ID())
	}
	return nil
}
