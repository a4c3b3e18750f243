package glacier

import (
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Frame describes the computational domain a glacier's flowlines and
// shape are expressed in.
type Frame struct {
	CRS string  // projected CRS of the map grid
	Dx  float64 // grid resolution, metres
}

// Compatible reports whether geometry in f and o can be compared directly.
func (f Frame) Compatible(o Frame) bool {
	return f.CRS == o.CRS
}

// Glacier is an immutable value record: the inventory outline, the
// domain frame, the outline projected into that frame and the flowline
// tree. Derived rasters live in a Domains side-table.
type Glacier struct {
	Outline    Outline
	Frame      Frame
	Shape      orb.Polygon
	Flowlines  []Flowline
	Downstream orb.LineString
}

// SegmentRef identifies a point on one flowline of one glacier. For the
// terminus flowline Point indexes the downstream line, so it may run past
// the end of the glacierised part.
type SegmentRef struct {
	Glacier  string `json:"glacier" yaml:"glacier"`
	Flowline int    `json:"flowline" yaml:"flowline"`
	Point    int    `json:"point" yaml:"point"`
}

// ID is the inventory identifier.
func (g Glacier) ID() string {
	return g.Outline.ID
}

// Main returns the index of the terminus flowline.
func (g Glacier) Main() (int, error) {
	main := -1
	for i, fl := range g.Flowlines {
		if !fl.IsTerminus() {
			continue
		}
		if main >= 0 {
			return -1, errors.Wrapf(ErrMalformedGeometry, "glacier %s has more than one terminus flowline", g.ID())
		}
		main = i
	}
	if main < 0 {
		if len(g.Flowlines) == 0 {
			return -1, errors.Wrapf(ErrMalformedGeometry, "glacier %s has no flowlines", g.ID())
		}
		return -1, errors.Wrapf(ErrCyclicTopology, "glacier %s has no terminus flowline", g.ID())
	}
	return main, nil
}

// CheckTree verifies that the flowlines form a tree rooted at the single
// terminus flowline.
func (g Glacier) CheckTree() error {
	main, err := g.Main()
	if err != nil {
		return err
	}
	if len(g.Flowlines[main].Points) < 2 {
		return errors.Wrapf(ErrMalformedGeometry, "glacier %s: terminus flowline has %d points", g.ID(), len(g.Flowlines[main].Points))
	}

	n := len(g.Flowlines)
	for i, fl := range g.Flowlines {
		if fl.IsTerminus() {
			continue
		}
		if fl.FlowsTo < 0 || fl.FlowsTo >= n || fl.FlowsTo == i {
			if fl.FlowsTo == i {
				return errors.Wrapf(ErrCyclicTopology, "glacier %s: flowline %d flows into itself", g.ID(), i)
			}
			return errors.Wrapf(ErrMalformedGeometry, "glacier %s: flowline %d flows into unknown flowline %d", g.ID(), i, fl.FlowsTo)
		}
		target := g.Flowlines[fl.FlowsTo]
		if fl.FlowsToPoint < 0 || fl.FlowsToPoint >= len(target.Points) {
			return errors.Wrapf(ErrMalformedGeometry, "glacier %s: flowline %d joins flowline %d at point %d out of range", g.ID(), i, fl.FlowsTo, fl.FlowsToPoint)
		}
	}

	// 0 unvisited, 1 on current path, 2 reaches the terminus
	state := make([]int, n)
	for start := range g.Flowlines {
		path := []int{}
		cur := start
		for cur != Terminus && state[cur] == 0 {
			state[cur] = 1
			path = append(path, cur)
			cur = g.Flowlines[cur].FlowsTo
		}
		if cur != Terminus && state[cur] == 1 {
			return errors.Wrapf(ErrCyclicTopology, "glacier %s: flowline %d is part of a cycle", g.ID(), cur)
		}
		for _, p := range path {
			state[p] = 2
		}
	}
	return nil
}

// DownstreamLine is the terminus flowline continued by the downstream
// extension.
func (g Glacier) DownstreamLine() orb.LineString {
	main, err := g.Main()
	if err != nil {
		return nil
	}
	line := append(orb.LineString(nil), g.Flowlines[main].Points...)
	for i, p := range g.Downstream {
		if i == 0 && len(line) > 0 && line[len(line)-1].Equal(p) {
			continue
		}
		line = append(line, p)
	}
	return line
}

// Nearest returns the flowline point closest to p.
func (g Glacier) Nearest(p orb.Point) SegmentRef {
	best := SegmentRef{Glacier: g.ID(), Flowline: -1, Point: -1}
	bestDist := -1.0
	main, _ := g.Main()
	for i, fl := range g.Flowlines {
		pts := fl.Points
		if i == main {
			pts = g.DownstreamLine()
		}
		for j, q := range pts {
			d := planar.DistanceSquared(p, q)
			if bestDist < 0 || d < bestDist {
				bestDist = d
				best.Flowline = i
				best.Point = j
			}
		}
	}
	return best
}

// Clone returns a deep copy sharing no slices with g.
func (g Glacier) Clone() Glacier {
	c := Glacier{
		Outline:    g.Outline.Clone(),
		Frame:      g.Frame,
		Shape:      g.Shape.Clone(),
		Downstream: g.Downstream.Clone(),
	}
	if g.Flowlines != nil {
		c.Flowlines = make([]Flowline, len(g.Flowlines))
		for i, fl := range g.Flowlines {
			c.Flowlines[i] = fl.Clone()
		}
	}
	return c
}
