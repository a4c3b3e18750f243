package glacier

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Terminus marks a flowline that does not flow into another one.
const Terminus = -1

// BedShape is the cross-section classification of a flowline point.
type BedShape int

const (
	BedParabolic BedShape = iota
	BedRectangular
)

func (b BedShape) String() string {
	if b == BedRectangular {
		return "rectangular"
	}
	return "parabolic"
}

// ParseBedShape parses "parabolic" or "rectangular".
func ParseBedShape(s string) (BedShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parabolic":
		return BedParabolic, nil
	case "rectangular":
		return BedRectangular, nil
	default:
		return BedParabolic, errors.Newf("unknown bed shape %q", s)
	}
}

// Flowline is an ordered head-to-terminus centerline in frame coordinates.
// Widths and Shapes hold one value per point when present.
type Flowline struct {
	Points       orb.LineString
	Widths       []float64
	Shapes       []BedShape
	FlowsTo      int
	FlowsToPoint int
}

// Length is the planar length in frame units.
func (f Flowline) Length() float64 {
	return planar.Length(f.Points)
}

// IsTerminus reports whether the flowline ends the tree.
func (f Flowline) IsTerminus() bool {
	return f.FlowsTo == Terminus
}

// Clone returns a deep copy.
func (f Flowline) Clone() Flowline {
	c := f
	c.Points = f.Points.Clone()
	if f.Widths != nil {
		c.Widths = append([]float64(nil), f.Widths...)
	}
	if f.Shapes != nil {
		c.Shapes = append([]BedShape(nil), f.Shapes...)
	}
	return c
}

// Truncate keeps the points up to and including index last and appends
// end when it differs from the last kept point. Widths and shapes of the
// appended point repeat the last kept value.
func (f Flowline) Truncate(last int, end orb.Point) Flowline {
	if last >= len(f.Points) {
		last = len(f.Points) - 1
	}
	if last < 0 {
		last = 0
	}
	c := Flowline{
		Points:       append(orb.LineString(nil), f.Points[:last+1]...),
		FlowsTo:      f.FlowsTo,
		FlowsToPoint: f.FlowsToPoint,
	}
	if len(f.Widths) > last {
		c.Widths = append([]float64(nil), f.Widths[:last+1]...)
	}
	if len(f.Shapes) > last {
		c.Shapes = append([]BedShape(nil), f.Shapes[:last+1]...)
	}
	if !c.Points[len(c.Points)-1].Equal(end) {
		c.Points = append(c.Points, end)
		if c.Widths != nil {
			c.Widths = append(c.Widths, c.Widths[len(c.Widths)-1])
		}
		if c.Shapes != nil {
			c.Shapes = append(c.Shapes, c.Shapes[len(c.Shapes)-1])
		}
	}
	return c
}
