// Package graph holds the dependency graph the resolver accumulates while it
// validates references, follows imports and walks slots.
//
// Graph node ids are top-level Flow node ids, dotted slot paths
// (page.header), source file paths and external file references. A Graph is
// immutable once built; Builder is the mutable accumulator that a resolver and
// all of its import children share.
package graph

import (
	"sort"
	"strings"
)

// EdgeKind classifies an edge.
type EdgeKind string

const (
	BackwardRef EdgeKind = "backward-ref"
	ForwardRef  EdgeKind = "forward-ref"
	Import      EdgeKind = "import"
	SlotRef     EdgeKind = "slot-ref"
	ContextRef  EdgeKind = "context-ref"
)

// Edge is a directed (From, To, Kind) triple. Edges are compared by value.
type Edge struct {
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Kind EdgeKind `json:"kind" yaml:"kind"`
}

// Graph is an immutable dependency graph.
type Graph struct {
	nodes map[string]struct{}
	edges map[Edge]struct{}
	files map[string]struct{}
}

// Nodes returns the node ids in sorted order.
func (g *Graph) Nodes() []string { return sortedKeys(g.nodes) }

// Files returns the participating source files in sorted order.
func (g *Graph) Files() []string { return sortedKeys(g.files) }

// Edges returns every edge sorted by From, To, Kind.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

// HasNode reports whether id is in the node set.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether the exact edge is present.
func (g *Graph) HasEdge(from, to string, kind EdgeKind) bool {
	_, ok := g.edges[Edge{From: from, To: to, Kind: kind}]
	return ok
}

// IsFile reports whether id names a source file or an external file reference.
func (g *Graph) IsFile(id string) bool {
	if _, ok := g.files[id]; ok {
		return true
	}
	for e := range g.edges {
		if e.Kind == ContextRef && e.To == id {
			return true
		}
	}
	return false
}

// Merge returns the set union of the given graphs. Nil graphs are skipped.
func Merge(graphs ...*Graph) *Graph {
	b := NewBuilder()
	for _, g := range graphs {
		if g == nil {
			continue
		}
		for id := range g.nodes {
			b.nodes[id] = struct{}{}
		}
		for e := range g.edges {
			b.edges[e] = struct{}{}
		}
		for f := range g.files {
			b.files[f] = struct{}{}
		}
	}
	return b.Build()
}

// Builder accumulates nodes, edges and files. It is not safe for concurrent use.
type Builder struct {
	nodes map[string]struct{}
	edges map[Edge]struct{}
	files map[string]struct{}
}

func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]struct{}),
		edges: make(map[Edge]struct{}),
		files: make(map[string]struct{}),
	}
}

// AddNode records a node id.
func (b *Builder) AddNode(id string) {
	if id != "" {
		b.nodes[id] = struct{}{}
	}
}

// AddFile records a participating source file.
func (b *Builder) AddFile(path string) {
	if path != "" {
		b.files[path] = struct{}{}
	}
}

// AddEdge records an edge. Reference and slot endpoints are added to the
// node set; import endpoints are files and context targets are external
// paths, so the caller registers those itself.
func (b *Builder) AddEdge(from, to string, kind EdgeKind) {
	if from == "" || to == "" {
		return
	}
	b.edges[Edge{From: from, To: to, Kind: kind}] = struct{}{}
	switch kind {
	case Import:
	case ContextRef:
		b.AddNode(from)
	default:
		b.AddNode(from)
		b.AddNode(to)
	}
}

// Build snapshots the builder into an immutable Graph. The builder stays usable.
func (b *Builder) Build() *Graph {
	g := &Graph{
		nodes: make(map[string]struct{}, len(b.nodes)),
		edges: make(map[Edge]struct{}, len(b.edges)),
		files: make(map[string]struct{}, len(b.files)),
	}
	for k := range b.nodes {
		g.nodes[k] = struct{}{}
	}
	for k := range b.edges {
		g.edges[k] = struct{}{}
	}
	for k := range b.files {
		g.files[k] = struct{}{}
	}
	return g
}

// Owner returns the top-level node id for a dotted slot path.
func Owner(id string) string {
	owner, _, _ := strings.Cut(id, ".")
	return owner
}

// IsSlot reports whether id is a dotted slot path. Flow identifiers never
// contain dots, so any dotted member of the node set is a slot.
func (g *Graph) IsSlot(id string) bool {
	_, ok := g.nodes[id]
	return ok && strings.Contains(id, ".")
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
}
