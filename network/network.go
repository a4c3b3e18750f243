package network

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/glacier"
)

// NodeID names one flowline of one glacier.
type NodeID struct {
	Glacier  string `json:"glacier" yaml:"glacier"`
	Flowline int    `json:"flowline" yaml:"flowline"`
}

func (id NodeID) String() string {
	return fmt.Sprintf("%s/%d", id.Glacier, id.Flowline)
}

// Node is a flowline segment of the merged network. Points [0, Ice) are
// glacierised.
type Node struct {
	ID   NodeID
	Line glacier.Flowline
	Ice  int
}

// Edge says From flows into To at point index Point of To's line.
type Edge struct {
	From  NodeID `json:"from" yaml:"from"`
	To    NodeID `json:"to" yaml:"to"`
	Point int    `json:"point" yaml:"point"`
}

// Network is an immutable drainage DAG with a single root. Every other
// node has exactly one outgoing edge.
type Network struct {
	root  NodeID
	nodes []Node
	down  map[NodeID]Edge
	index map[NodeID]int
}

// New validates nodes and edges and returns a network owning copies of
// them.
func New(root NodeID, nodes []Node, edges []Edge) (*Network, error) {
	n := &Network{
		root:  root,
		nodes: make([]Node, 0, len(nodes)),
		down:  make(map[NodeID]Edge, len(edges)),
		index: make(map[NodeID]int, len(nodes)),
	}
	for _, node := range nodes {
		if _, dup := n.index[node.ID]; dup {
			return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "duplicate node %s", node.ID)
		}
		node.Line = node.Line.Clone()
		n.index[node.ID] = len(n.nodes)
		n.nodes = append(n.nodes, node)
	}
	if _, ok := n.index[root]; !ok {
		return nil, errors.Wrapf(glacier.ErrEmptyInput, "root %s is not a node", root)
	}
	for _, e := range edges {
		if _, ok := n.index[e.From]; !ok {
			return nil, errors.Newf("edge from unknown node %s", e.From)
		}
		to, ok := n.index[e.To]
		if !ok {
			return nil, errors.Newf("edge into unknown node %s", e.To)
		}
		if e.From == root {
			return nil, errors.Wrapf(glacier.ErrCyclicTopology, "root %s has an outgoing edge", root)
		}
		if _, dup := n.down[e.From]; dup {
			return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "node %s flows into two nodes", e.From)
		}
		if last := len(n.nodes[to].Line.Points) - 1; e.Point < 0 || e.Point > last {
			return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "edge %s -> %s at point %d out of range", e.From, e.To, e.Point)
		}
		n.down[e.From] = e
	}
	for _, node := range n.nodes {
		if node.ID != root {
			if _, ok := n.down[node.ID]; !ok {
				return nil, errors.Newf("node %s has no receiver", node.ID)
			}
		}
	}
	if err := n.checkAcyclic(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) checkAcyclic() error {
	reaches := map[NodeID]bool{n.root: true}
	for _, node := range n.nodes {
		seen := map[NodeID]bool{}
		path := []NodeID{}
		cur := node.ID
		for !reaches[cur] {
			if seen[cur] {
				return errors.Wrapf(glacier.ErrCyclicTopology, "node %s is part of a cycle", cur)
			}
			seen[cur] = true
			path = append(path, cur)
			cur = n.down[cur].To
		}
		for _, id := range path {
			reaches[id] = true
		}
	}
	return nil
}

// Root is the terminus node of the whole network.
func (n *Network) Root() NodeID {
	return n.root
}

// Len is the number of nodes.
func (n *Network) Len() int {
	return len(n.nodes)
}

// Nodes returns copies of the nodes in insertion order.
func (n *Network) Nodes() []Node {
	out := make([]Node, len(n.nodes))
	for i, node := range n.nodes {
		node.Line = node.Line.Clone()
		out[i] = node
	}
	return out
}

// Node returns a copy of node id.
func (n *Network) Node(id NodeID) (Node, bool) {
	i, ok := n.index[id]
	if !ok {
		return Node{}, false
	}
	node := n.nodes[i]
	node.Line = node.Line.Clone()
	return node, true
}

// Edges returns every edge ordered like the nodes they leave.
func (n *Network) Edges() []Edge {
	out := make([]Edge, 0, len(n.down))
	for _, node := range n.nodes {
		if e, ok := n.down[node.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Downstream returns the edge leaving id; false for the root.
func (n *Network) Downstream(id NodeID) (Edge, bool) {
	e, ok := n.down[id]
	return e, ok
}

// Upstream returns the edges entering id.
func (n *Network) Upstream(id NodeID) []Edge {
	return lo.Filter(n.Edges(), func(e Edge, _ int) bool { return e.To == id })
}

// Glaciers lists the glacier ids present, in node order.
func (n *Network) Glaciers() []string {
	return lo.Uniq(lo.Map(n.nodes, func(node Node, _ int) string { return node.ID.Glacier }))
}

// Contains reports whether any node belongs to glacier id.
func (n *Network) Contains(id string) bool {
	return lo.ContainsBy(n.nodes, func(node Node) bool { return node.ID.Glacier == id })
}

// Order returns node ids so that every node comes before the node it
// flows into; the root is last.
func (n *Network) Order() []NodeID {
	up := make(map[NodeID][]NodeID)
	for _, node := range n.nodes {
		if e, ok := n.down[node.ID]; ok {
			up[e.To] = append(up[e.To], node.ID)
		}
	}
	order := make([]NodeID, 0, len(n.nodes))
	queue := []NodeID{n.root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		queue = append(queue, up[id]...)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Without returns a network lacking the given nodes. Edges into a
// removed node are rerouted to that node's receiver at the same
// junction. The root cannot be removed.
func (n *Network) Without(ids ...NodeID) (*Network, error) {
	drop := lo.SliceToMap(ids, func(id NodeID) (NodeID, bool) { return id, true })
	if drop[n.root] {
		return nil, errors.Newf("cannot remove root %s", n.root)
	}
	nodes := lo.Filter(n.nodes, func(node Node, _ int) bool { return !drop[node.ID] })

	edges := make([]Edge, 0, len(nodes))
	for _, node := range nodes {
		e, ok := n.down[node.ID]
		if !ok {
			continue
		}
		for drop[e.To] {
			next := n.down[e.To]
			e.To, e.Point = next.To, next.Point
		}
		edges = append(edges, e)
	}
	return New(n.root, nodes, edges)
}

// Map returns a network whose node lines are replaced by fn. fn must
// keep the number of points of every line.
func (n *Network) Map(fn func(Node) glacier.Flowline) (*Network, error) {
	nodes := make([]Node, len(n.nodes))
	for i, node := range n.nodes {
		line := fn(Node{ID: node.ID, Line: node.Line.Clone(), Ice: node.Ice})
		if len(line.Points) != len(node.Line.Points) {
			return nil, errors.Newf("node %s: mapped line has %d points, want %d", node.ID, len(line.Points), len(node.Line.Points))
		}
		node.Line = line
		nodes[i] = node
	}
	return New(n.root, nodes, n.Edges())
}
