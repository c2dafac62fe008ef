// Package graph holds the in-memory node and edge tables.
//
// Nodes and edges live in flat maps keyed by id; adjacency is a per-node set of
// neighbor ids, so no node ever owns another. A Graph is not safe for
// concurrent use: the engine serializes access.
package graph

import (
	"errors"
	"sort"
)

var (
	ErrEmptyID      = errors.New("id must not be empty")
	ErrNodeNotFound = errors.New("node not found")
)

// Graph is the node table, edge table and adjacency index.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	// adj[a][b] counts edges between a and b in either direction.
	adj map[string]map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		adj:   make(map[string]map[string]int),
	}
}

// PutNode inserts n or replaces the node with the same id. A replaced node
// keeps its adjacency and its position in iteration order.
func (g *Graph) PutNode(n *Node) (replaced bool, err error) {
	if n.ID == "" {
		return false, ErrEmptyID
	}
	if _, ok := g.nodes[n.ID]; ok {
		replaced = true
	} else {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n
	return replaced, nil
}

// Node returns the node with id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// PutEdge inserts e or replaces the edge with the same id, updating both
// endpoints' adjacency in the same step. Both endpoints must exist.
func (g *Graph) PutEdge(e *Edge) (replaced bool, err error) {
	if e.ID == "" {
		return false, ErrEmptyID
	}
	if _, ok := g.nodes[e.From]; !ok {
		return false, ErrNodeNotFound
	}
	if _, ok := g.nodes[e.To]; !ok {
		return false, ErrNodeNotFound
	}

	if old, ok := g.edges[e.ID]; ok {
		replaced = true
		g.unlink(old.From, old.To)
	} else {
		g.edgeOrder = append(g.edgeOrder, e.ID)
	}
	g.edges[e.ID] = e
	g.link(e.From, e.To)
	return replaced, nil
}

// Edge returns the edge with id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// DeleteEdge removes the edge and its adjacency entries. Returns false if the
// edge did not exist.
func (g *Graph) DeleteEdge(id string) bool {
	e, ok := g.edges[id]
	if !ok {
		return false
	}
	delete(g.edges, id)
	for i, eid := range g.edgeOrder {
		if eid == id {
			g.edgeOrder = append(g.edgeOrder[:i], g.edgeOrder[i+1:]...)
			break
		}
	}
	g.unlink(e.From, e.To)
	return true
}

// Connected reports whether any edge joins a and b in either direction.
func (g *Graph) Connected(a, b string) bool {
	return g.adj[a][b] > 0
}

// Neighbors returns the ids adjacent to id, sorted.
func (g *Graph) Neighbors(id string) []string {
	set := g.adj[id]
	out := make([]string, 0, len(set))
	for nb := range set {
		out = append(out, nb)
	}
	sort.Strings(out)
	return out
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) link(a, b string) {
	g.bump(a, b, 1)
	if a != b {
		g.bump(b, a, 1)
	}
}

func (g *Graph) unlink(a, b string) {
	g.bump(a, b, -1)
	if a != b {
		g.bump(b, a, -1)
	}
}

func (g *Graph) bump(a, b string, delta int) {
	set := g.adj[a]
	if set == nil {
		set = make(map[string]int)
		g.adj[a] = set
	}
	set[b] += delta
	if set[b] <= 0 {
		delete(set, b)
	}
	if len(set) == 0 {
		delete(g.adj, a)
	}
}
