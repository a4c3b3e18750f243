package geometry

import (
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// Kind classifies an intersection record.
type Kind int

const (
	// KindBoundary: outlines touch or overlap but nothing flows across.
	KindBoundary Kind = iota
	// KindFlow: a downstream flowline connects the two glaciers.
	KindFlow
)

func (k Kind) String() string {
	if k == KindFlow {
		return "flow"
	}
	return "boundary"
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "flow":
		return KindFlow, nil
	case "boundary":
		return KindBoundary, nil
	default:
		return KindBoundary, errors.Newf("unknown intersection kind %q", s)
	}
}

// Record is one intersection between two glaciers. Glaciers is ordered by
// identifier and Segments follows the same order.
type Record struct {
	Glaciers [2]string
	Kind     Kind
	Geometry orb.Geometry
	Points   []orb.Point
	Segments [2]glacier.SegmentRef
}

// Involves reports whether id is one of the two glaciers.
func (r Record) Involves(id string) bool {
	return r.Glaciers[0] == id || r.Glaciers[1] == id
}

// Segment returns the connecting segment on glacier id.
func (r Record) Segment(id string) (glacier.SegmentRef, bool) {
	for _, s := range r.Segments {
		if s.Glacier == id {
			return s, true
		}
	}
	return glacier.SegmentRef{}, false
}

// Detector finds the intersections between two glaciers and reports the
// contact distance it used for the pair.
type Detector interface {
	Detect(a, b glacier.Glacier) ([]Record, error)
	Tolerance(a, b glacier.Glacier) float64
}

// Intersector computes intersections with GEOS. The tolerance is Cells
// grid cells of the coarser of the two domains.
type Intersector struct {
	Cells float64
}

// Tolerance returns the contact distance for the pair.
func (x Intersector) Tolerance(a, b glacier.Glacier) float64 {
	return x.Cells * math.Max(a.Frame.Dx, b.Frame.Dx)
}

// Detect returns every intersection between a and b; nil when there is
// none. Detect(a, b) and Detect(b, a) return identical records.
func (x Intersector) Detect(a, b glacier.Glacier) ([]Record, error) {
	if x.Cells < 0 {
		return nil, errors.Newf("negative tolerance %g cells", x.Cells)
	}
	if a.ID() == b.ID() {
		return nil, nil
	}
	if !a.Frame.Compatible(b.Frame) {
		return nil, errors.Wrapf(glacier.ErrAttributeConflict, "glaciers %s (%s) and %s (%s) use different frames",
			a.ID(), a.Frame.CRS, b.ID(), b.Frame.CRS)
	}
	if a.ID() > b.ID() {
		a, b = b, a
	}
	tol := x.Tolerance(a, b)

	var records []Record
	if r, ok, err := boundary(a, b, tol); err != nil {
		return nil, err
	} else if ok {
		records = append(records, r)
	}
	flows, err := flowConnections(a, b, tol)
	if err != nil {
		return nil, err
	}
	records = append(records, flows...)

	SortRecords(records)
	return records, nil
}

func boundary(a, b glacier.Glacier, tol float64) (Record, bool, error) {
	if len(a.Shape) == 0 || len(b.Shape) == 0 {
		return Record{}, false, nil
	}
	for _, g := range []glacier.Glacier{a, b} {
		if err := ValidateRings(g.Shape); err != nil {
			return Record{}, false, errors.Wrapf(err, "glacier %s shape", g.ID())
		}
	}
	pa := PolygonToGeos(a.Shape)
	defer pa.Destroy()
	pb := PolygonToGeos(b.Shape)
	defer pb.Destroy()

	if pa.Distance(pb) > tol {
		return Record{}, false, nil
	}

	ba := pa.Boundary()
	defer ba.Destroy()
	buf := pb.Buffer(tol, 8)
	defer buf.Destroy()
	shared := ba.Intersection(buf)
	defer shared.Destroy()

	var geom orb.Geometry
	var pts []orb.Point
	if shared.IsEmpty() {
		np := pa.NearestPoints(pb)
		p := midpoint(np)
		geom, pts = p, []orb.Point{p}
	} else {
		geom = FromGeos(shared)
		pts = Vertices(shared)
	}
	return NewRecord(a, b, KindBoundary, geom, pts), true, nil
}

// flowConnections finds where the downstream line of one glacier meets
// the downstream line of the other, or where the downstream continuation
// of one enters the other's outline.
func flowConnections(a, b glacier.Glacier, tol float64) ([]Record, error) {
	var records []Record

	la := LineToGeos(a.DownstreamLine())
	lb := LineToGeos(b.DownstreamLine())
	if la != nil && lb != nil {
		if la.Distance(lb) <= tol {
			pts := contactPoints(la, lb)
			records = append(records, NewRecord(a, b, KindFlow, pointsGeometry(pts), pts))
		}
	}
	if la != nil {
		la.Destroy()
	}
	if lb != nil {
		lb.Destroy()
	}

	for _, pair := range [][2]glacier.Glacier{{a, b}, {b, a}} {
		p, ok, err := entry(pair[0], pair[1], tol)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, NewRecord(a, b, KindFlow, p, []orb.Point{p}))
		}
	}
	return records, nil
}

// entry returns the first point where from's downstream continuation
// enters the ε-buffer of into's outline.
func entry(from, into glacier.Glacier, tol float64) (orb.Point, bool, error) {
	ext := LineToGeos(from.Downstream)
	if ext == nil || len(into.Shape) == 0 {
		return orb.Point{}, false, nil
	}
	defer ext.Destroy()
	if err := ValidateRings(into.Shape); err != nil {
		return orb.Point{}, false, errors.Wrapf(err, "glacier %s shape", into.ID())
	}
	poly := PolygonToGeos(into.Shape)
	defer poly.Destroy()
	buf := poly.Buffer(tol, 8)
	defer buf.Destroy()
	if !ext.Intersects(buf) {
		return orb.Point{}, false, nil
	}
	inside := ext.Intersection(buf)
	defer inside.Destroy()

	best, bestAt := orb.Point{}, math.Inf(1)
	for _, p := range Vertices(inside) {
		pt := PointToGeos(p)
		at := ext.Project(pt)
		pt.Destroy()
		if at < bestAt {
			best, bestAt = p, at
		}
	}
	return best, !math.IsInf(bestAt, 1), nil
}

func contactPoints(la, lb *geos.Geom) []orb.Point {
	if la.Intersects(lb) {
		inter := la.Intersection(lb)
		defer inter.Destroy()
		if pts := dedupe(Vertices(inter)); len(pts) > 0 {
			return pts
		}
	}
	return []orb.Point{midpoint(la.NearestPoints(lb))}
}

func midpoint(np [][]float64) orb.Point {
	if len(np) < 2 {
		return orb.Point{}
	}
	return orb.Point{(np[0][0] + np[1][0]) / 2, (np[0][1] + np[1][1]) / 2}
}

func dedupe(pts []orb.Point) []orb.Point {
	out := pts[:0:0]
	for _, p := range pts {
		dup := false
		for _, q := range out {
			if p.Equal(q) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func pointsGeometry(pts []orb.Point) orb.Geometry {
	if len(pts) == 1 {
		return pts[0]
	}
	return orb.MultiPoint(pts)
}

// NewRecord builds a record for the ordered pair a, b. A nil geom is
// replaced by the contact points.
func NewRecord(a, b glacier.Glacier, kind Kind, geom orb.Geometry, pts []orb.Point) Record {
	if geom == nil && len(pts) > 0 {
		geom = pointsGeometry(pts)
	}
	r := Record{
		Glaciers: [2]string{a.ID(), b.ID()},
		Kind:     kind,
		Geometry: geom,
		Points:   pts,
	}
	if len(pts) > 0 {
		r.Segments = [2]glacier.SegmentRef{a.Nearest(pts[0]), b.Nearest(pts[0])}
	}
	return r
}

// SortRecords orders the records of one pair by kind, then by first
// contact point.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i], records[j]
		if ri.Kind != rj.Kind {
			return ri.Kind < rj.Kind
		}
		if len(ri.Points) == 0 || len(rj.Points) == 0 {
			return len(ri.Points) < len(rj.Points)
		}
		pi, pj := ri.Points[0], rj.Points[0]
		if pi[0] != pj[0] {
			return pi[0] < pj[0]
		}
		return pi[1] < pj[1]
	})
}
