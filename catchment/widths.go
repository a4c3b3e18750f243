package catchment

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// Policy controls width and bed-shape correction.
type Policy struct {
	// DefaultShape is assigned to segments away from any junction.
	DefaultShape glacier.BedShape
	// Tolerance is the distance within which a segment counts as
	// adjacent to a junction.
	Tolerance float64
}

// Profile is the corrected cross-section of one segment.
type Profile struct {
	Segment int
	Cells   int
	Area    float64 // catchment area, frame units squared
	Length  float64 // glacierised length
	Widths  []float64
	Shapes  []glacier.BedShape
}

// Apply returns a copy of line carrying the profile's widths and shapes.
func (p Profile) Apply(line glacier.Flowline) glacier.Flowline {
	c := line.Clone()
	c.Widths = append([]float64(nil), p.Widths...)
	c.Shapes = append([]glacier.BedShape(nil), p.Shapes...)
	return c
}

// Degenerate records a segment excluded from the corrected set.
type Degenerate struct {
	Segment int
	Err     error
}

// CorrectWidths rescales each segment's widths so that their integral
// along the glacierised part equals its catchment area, and assigns bed
// shapes: rectangular for segments within Tolerance of a junction, the
// default elsewhere. Widths beyond the glacierised part are zero.
// Segments with no catchment cells or no length are returned as
// Degenerate and get no profile.
func CorrectWidths(a Assignment, segments []Segment, junctions []orb.Point, policy Policy) ([]Profile, []Degenerate) {
	var profiles []Profile
	var degenerate []Degenerate

	for s, seg := range segments {
		ice := seg.glacierised()
		cells := a.Count(s)
		length := planar.Length(ice)
		switch {
		case len(ice) < 2 || length == 0:
			degenerate = append(degenerate, Degenerate{Segment: s,
				Err: errors.Wrapf(glacier.ErrDegenerateSegment, "segment %d has zero length", s)})
			continue
		case cells == 0:
			degenerate = append(degenerate, Degenerate{Segment: s,
				Err: errors.Wrapf(glacier.ErrDegenerateSegment, "segment %d drains no cells", s)})
			continue
		}

		area := float64(cells) * a.Mask.Dx * a.Mask.Dx
		profiles = append(profiles, Profile{
			Segment: s,
			Cells:   cells,
			Area:    area,
			Length:  length,
			Widths:  scaleWidths(seg, ice, area),
			Shapes:  shapes(seg.Line.Points, junctions, policy),
		})
	}
	return profiles, degenerate
}

// ProfileLine corrects a segment without a mask: the supplied widths are
// kept and only the bed shapes are reassigned. A segment with no supplied
// width has no area and is degenerate.
func ProfileLine(s int, seg Segment, junctions []orb.Point, policy Policy) (Profile, error) {
	ice := seg.glacierised()
	length := planar.Length(ice)
	if len(ice) < 2 || length == 0 {
		return Profile{}, errors.Wrapf(glacier.ErrDegenerateSegment, "segment %d has zero length", s)
	}
	n := len(seg.Line.Points)
	widths := make([]float64, n)
	if len(seg.Line.Widths) == n {
		copy(widths, seg.Line.Widths)
	}
	area := 0.0
	ds := spacing(ice)
	for i := range ice {
		area += widths[i] * ds[i]
	}
	if area == 0 {
		return Profile{}, errors.Wrapf(glacier.ErrDegenerateSegment, "segment %d has no width", s)
	}
	return Profile{
		Segment: s,
		Area:    area,
		Length:  length,
		Widths:  widths,
		Shapes:  shapes(seg.Line.Points, junctions, policy),
	}, nil
}

func scaleWidths(seg Segment, ice orb.LineString, area float64) []float64 {
	n := len(seg.Line.Points)
	out := make([]float64, n)
	ds := spacing(ice)

	integral := 0.0
	if len(seg.Line.Widths) == n {
		for i := range ice {
			integral += seg.Line.Widths[i] * ds[i]
		}
	}
	if integral > 0 {
		f := area / integral
		for i := range ice {
			out[i] = seg.Line.Widths[i] * f
		}
		return out
	}

	w := area / planar.Length(ice)
	for i := range ice {
		out[i] = w
	}
	return out
}

// spacing returns the length each point represents: half of each
// adjacent edge. The values sum to the line length.
func spacing(line orb.LineString) []float64 {
	ds := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		d := planar.Distance(line[i-1], line[i]) / 2
		ds[i-1] += d
		ds[i] += d
	}
	return ds
}

func shapes(line orb.LineString, junctions []orb.Point, policy Policy) []glacier.BedShape {
	shape := policy.DefaultShape
	for _, j := range junctions {
		if nearLine(line, j, policy.Tolerance) {
			shape = glacier.BedRectangular
			break
		}
	}
	out := make([]glacier.BedShape, len(line))
	for i := range out {
		out[i] = shape
	}
	return out
}

func nearLine(line orb.LineString, p orb.Point, tol float64) bool {
	switch len(line) {
	case 0:
		return false
	case 1:
		return planar.Distance(line[0], p) <= tol
	default:
		return planar.DistanceFrom(line, p) <= tol
	}
}
