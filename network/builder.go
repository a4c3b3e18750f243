package network

import (
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
)

// Rejection explains why a candidate is not part of the network.
type Rejection struct {
	Glacier string       `json:"glacier" yaml:"glacier"`
	Kind    glacier.Kind `json:"kind" yaml:"kind"`
	Reason  string       `json:"reason" yaml:"reason"`
}

// Attachment records where a tributary joined its parent.
type Attachment struct {
	Glacier  string             `json:"glacier" yaml:"glacier"`
	Parent   string             `json:"parent" yaml:"parent"`
	Junction orb.Point          `json:"junction" yaml:"junction"`
	Target   glacier.SegmentRef `json:"target" yaml:"target"`
}

// Build is the outcome of attaching candidates to a root glacier.
type Build struct {
	Network *Network
	Root    glacier.Glacier
	// Accepted holds the effective tributaries in attachment order: main
	// flowline truncated at the junction, downstream line consumed.
	Accepted    []glacier.Glacier
	Attachments []Attachment
	Rejected    []Rejection
}

// AcceptedIDs lists the accepted glacier ids in attachment order.
func (b Build) AcceptedIDs() []string {
	return lo.Map(b.Accepted, func(g glacier.Glacier, _ int) string { return g.ID() })
}

// Junctions returns every attachment point.
func (b Build) Junctions() []orb.Point {
	return lo.Map(b.Attachments, func(a Attachment, _ int) orb.Point { return a.Junction })
}

// Builder assembles drainage networks.
type Builder struct {
	Detector geometry.Detector
	Logger   *log.Logger
}

func (b Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}

// Build attaches every candidate that drains, directly or through other
// candidates, into root. Parents are visited breadth-first and each one
// is tested against the unattached candidates in identifier order, so
// the result does not depend on the order of candidates. A candidate
// attaches at the flow contact furthest downstream on its parent, and
// only through contacts on its own path below its terminus.
//
// Candidates with broken geometry or topology, or without a flow
// connection, are returned in Rejected. An invalid root or a candidate
// in a different frame fails the whole build.
func (b Builder) Build(root glacier.Glacier, candidates []glacier.Glacier) (Build, error) {
	logger := b.logger()
	if b.Detector == nil {
		return Build{}, errors.New("builder has no intersection detector")
	}
	if err := root.CheckTree(); err != nil {
		return Build{}, errors.Wrapf(err, "root glacier %s", root.ID())
	}
	if err := geometry.ValidateOutline(root); err != nil {
		return Build{}, errors.Wrapf(err, "root glacier %s", root.ID())
	}
	for _, c := range candidates {
		if !root.Frame.Compatible(c.Frame) {
			return Build{}, errors.Wrapf(glacier.ErrAttributeConflict, "candidate %s frame %q differs from root %s frame %q",
				c.ID(), c.Frame.CRS, root.ID(), root.Frame.CRS)
		}
	}

	out := Build{Root: root.Clone()}
	rejected := make(map[string]bool)
	reject := func(id string, err error) {
		rejected[id] = true
		out.Rejected = append(out.Rejected, Rejection{Glacier: id, Kind: glacier.KindOf(err), Reason: err.Error()})
		logger.Warn("rejected candidate", "glacier", id, "reason", err)
	}

	seen := map[string]bool{root.ID(): true}
	var pending []glacier.Glacier
	for _, c := range candidates {
		if seen[c.ID()] {
			logger.Debug("ignoring repeated candidate", "glacier", c.ID())
			continue
		}
		seen[c.ID()] = true
		if err := c.CheckTree(); err != nil {
			reject(c.ID(), err)
			continue
		}
		if err := geometry.ValidateOutline(c); err != nil {
			reject(c.ID(), err)
			continue
		}
		pending = append(pending, c)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID() < pending[j].ID() })

	attached := make(map[string]bool)
	boundaryOnly := make(map[string]bool)
	upstreamOnly := make(map[string]bool)
	ice := make(map[string]int)

	queue := []glacier.Glacier{out.Root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		parentLine := parent.DownstreamLine()

		for _, cand := range pending {
			id := cand.ID()
			if attached[id] || rejected[id] {
				continue
			}
			records, err := b.Detector.Detect(parent, cand)
			if err != nil {
				if errors.Is(err, glacier.ErrAttributeConflict) {
					return Build{}, err
				}
				reject(id, err)
				continue
			}
			flows := flowPoints(records)
			junction, ok := downstreamMost(parentLine, inflow(cand, flows, b.Detector.Tolerance(parent, cand)))
			if !ok {
				switch {
				case len(flows) > 0:
					upstreamOnly[id] = true
				case len(records) > 0:
					boundaryOnly[id] = true
				}
				continue
			}
			eff, n, err := truncate(cand, junction)
			if err != nil {
				reject(id, err)
				continue
			}

			attached[id] = true
			ice[id] = n
			out.Accepted = append(out.Accepted, eff)
			out.Attachments = append(out.Attachments, Attachment{
				Glacier:  id,
				Parent:   parent.ID(),
				Junction: junction,
				Target:   parent.Nearest(junction),
			})
			queue = append(queue, eff)
			logger.Debug("attached tributary", "glacier", id, "parent", parent.ID(), "junction", junction)
		}
	}

	for _, cand := range pending {
		id := cand.ID()
		if attached[id] || rejected[id] {
			continue
		}
		reason := errors.Wrapf(glacier.ErrNoConnection, "glacier %s has no flow-connecting intersection with the network", id)
		switch {
		case upstreamOnly[id]:
			reason = errors.Wrapf(glacier.ErrNoConnection, "glacier %s receives flow from the network but does not drain into it", id)
		case boundaryOnly[id]:
			reason = errors.Wrapf(glacier.ErrNoConnection, "glacier %s only touches the network along its boundary", id)
		}
		reject(id, reason)
	}
	sort.SliceStable(out.Rejected, func(i, j int) bool { return out.Rejected[i].Glacier < out.Rejected[j].Glacier })

	net, err := assemble(out.Root, out.Accepted, out.Attachments, ice)
	if err != nil {
		return Build{}, err
	}
	out.Network = net

	logger.Info("built drainage network", "root", root.ID(),
		"accepted", len(out.Accepted), "rejected", len(out.Rejected), "nodes", net.Len())
	return out, nil
}

func flowPoints(records []geometry.Record) []orb.Point {
	var pts []orb.Point
	for _, r := range records {
		if r.Kind == geometry.KindFlow {
			pts = append(pts, r.Points...)
		}
	}
	return pts
}

// inflow keeps the contacts through which cand drains: those on its own
// flow path at or below its terminus. A parent's continuation running
// into cand's body is flow the other way.
func inflow(cand glacier.Glacier, pts []orb.Point, tol float64) []orb.Point {
	main, err := cand.Main()
	if err != nil {
		return nil
	}
	line := cand.DownstreamLine()
	terminus := planar.Length(cand.Flowlines[main].Points)
	slack := tol * (1 + 1e-9)
	return lo.Filter(pts, func(p orb.Point, _ int) bool {
		return geometry.Distance(line, p) <= slack && geometry.Locate(line, p) >= terminus-slack
	})
}

// downstreamMost returns the point whose projection lies furthest along
// line.
func downstreamMost(line orb.LineString, pts []orb.Point) (orb.Point, bool) {
	if len(pts) == 0 {
		return orb.Point{}, false
	}
	best, bestAt := pts[0], geometry.Locate(line, pts[0])
	for _, p := range pts[1:] {
		if at := geometry.Locate(line, p); at > bestAt {
			best, bestAt = p, at
		}
	}
	return best, true
}

// mainOverDownstream returns the terminus flowline of g extended over the
// downstream line, and the number of glacierised points. Widths of the
// extension are zero and its shapes repeat the last one.
func mainOverDownstream(g glacier.Glacier) (int, glacier.Flowline, int) {
	main, _ := g.Main()
	fl := g.Flowlines[main].Clone()
	n := len(fl.Points)
	fl.Points = g.DownstreamLine()
	if len(fl.Widths) == n {
		for i := n; i < len(fl.Points); i++ {
			fl.Widths = append(fl.Widths, 0)
		}
	}
	if len(fl.Shapes) == n && n > 0 {
		for i := n; i < len(fl.Points); i++ {
			fl.Shapes = append(fl.Shapes, fl.Shapes[n-1])
		}
	}
	return main, fl, n
}

// truncate cuts the downstream line of g at junction and returns the
// effective glacier and the number of glacierised points of its
// terminus flowline.
func truncate(g glacier.Glacier, junction orb.Point) (glacier.Glacier, int, error) {
	main, full, n := mainOverDownstream(g)
	s := geometry.Locate(full.Points, junction)
	cut := full.Truncate(geometry.VertexBefore(full.Points, s), junction)
	if len(cut.Points) < 2 {
		return glacier.Glacier{}, 0, errors.Wrapf(glacier.ErrDegenerateSegment,
			"glacier %s joins its parent at its head", g.ID())
	}

	eff := g.Clone()
	eff.Flowlines[main] = cut
	eff.Downstream = nil
	last := len(cut.Points) - 1
	for i := range eff.Flowlines {
		if eff.Flowlines[i].FlowsTo == main && eff.Flowlines[i].FlowsToPoint > last {
			eff.Flowlines[i].FlowsToPoint = last
		}
	}
	return eff, min(len(cut.Points), n), nil
}

func assemble(root glacier.Glacier, accepted []glacier.Glacier, attachments []Attachment, ice map[string]int) (*Network, error) {
	var nodes []Node
	var edges []Edge

	addGlacier := func(g glacier.Glacier, main int, mainLine glacier.Flowline, mainIce int) {
		for i, fl := range g.Flowlines {
			id := NodeID{Glacier: g.ID(), Flowline: i}
			node := Node{ID: id, Line: fl, Ice: len(fl.Points)}
			if i == main {
				node.Line, node.Ice = mainLine, mainIce
			}
			nodes = append(nodes, node)
			if !fl.IsTerminus() {
				edges = append(edges, Edge{From: id, To: NodeID{Glacier: g.ID(), Flowline: fl.FlowsTo}, Point: fl.FlowsToPoint})
			}
		}
	}

	rootMain, rootLine, rootIce := mainOverDownstream(root)
	addGlacier(root, rootMain, rootLine, rootIce)

	for i, g := range accepted {
		main, _ := g.Main()
		addGlacier(g, main, g.Flowlines[main], ice[g.ID()])
		a := attachments[i]
		edges = append(edges, Edge{
			From:  NodeID{Glacier: g.ID(), Flowline: main},
			To:    NodeID{Glacier: a.Target.Glacier, Flowline: a.Target.Flowline},
			Point: a.Target.Point,
		})
	}

	return New(NodeID{Glacier: root.ID(), Flowline: rootMain}, nodes, edges)
}
