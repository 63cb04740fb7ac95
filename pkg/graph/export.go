package graph

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options control what an export shows.
type Options struct {
	// Tier 0 hides slot nodes and edges internal to one node, folding slot
	// endpoints into their owner. Tier 1 shows everything.
	Tier int
	// Badges annotate collapsed nodes at tier 0. Nodes without an entry get
	// a slot count.
	Badges map[string]string
	// Primary is the main source file. File names are shown relative to its
	// directory when possible.
	Primary string
}

// Node categories used by View.
const (
	KindNode     = "node"
	KindSlot     = "slot"
	KindFile     = "file"
	KindExternal = "external"
)

type NodeView struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Kind  string `json:"kind" yaml:"kind"`
	Badge string `json:"badge,omitempty" yaml:"badge,omitempty"`
}

// View is the filtered, display-ready form shared by every export format.
type View struct {
	Nodes []NodeView `json:"nodes" yaml:"nodes"`
	Edges []Edge     `json:"edges" yaml:"edges"`
	Files []string   `json:"files" yaml:"files"`
}

// ShortName shows path relative to the primary file's directory, falling
// back to the base name when that is not possible.
func ShortName(path, primary string) string {
	if primary != "" {
		rel, err := filepath.Rel(filepath.Dir(primary), path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

// View applies opts to the graph.
func (g *Graph) View(opts Options) View {
	collapse := opts.Tier == 0
	fold := func(id string) string {
		if collapse && g.IsSlot(id) {
			return Owner(id)
		}
		return id
	}

	hidden := make(map[string]int)
	var v View
	seen := make(map[string]bool)
	add := func(id, kind, label string) {
		if seen[id] {
			return
		}
		seen[id] = true
		v.Nodes = append(v.Nodes, NodeView{ID: id, Label: label, Kind: kind})
	}

	for _, id := range g.Nodes() {
		if g.IsSlot(id) {
			if collapse {
				hidden[Owner(id)]++
				continue
			}
			add(id, KindSlot, id)
			continue
		}
		add(id, KindNode, id)
	}
	for _, f := range g.Files() {
		add(f, KindFile, ShortName(f, opts.Primary))
		v.Files = append(v.Files, ShortName(f, opts.Primary))
	}

	edgeSeen := make(map[Edge]bool)
	for _, e := range g.Edges() {
		folded := Edge{From: fold(e.From), To: fold(e.To), Kind: e.Kind}
		if folded.From == folded.To || edgeSeen[folded] {
			continue
		}
		edgeSeen[folded] = true
		if e.Kind == ContextRef {
			add(folded.To, KindExternal, ShortName(folded.To, opts.Primary))
		}
		v.Edges = append(v.Edges, folded)
	}

	if collapse {
		for i := range v.Nodes {
			n := hidden[v.Nodes[i].ID]
			if n == 0 {
				continue
			}
			if badge, ok := opts.Badges[v.Nodes[i].ID]; ok {
				v.Nodes[i].Badge = badge
			} else if n == 1 {
				v.Nodes[i].Badge = "1 slot"
			} else {
				v.Nodes[i].Badge = fmt.Sprintf("%d slots", n)
			}
		}
	}
	if v.Nodes == nil {
		v.Nodes = []NodeView{}
	}
	if v.Edges == nil {
		v.Edges = []Edge{}
	}
	if v.Files == nil {
		v.Files = []string{}
	}
	return v
}

// DOT renders the graph as a Graphviz node diagram.
func (g *Graph) DOT(opts Options) string {
	v := g.View(opts)
	var sb strings.Builder
	sb.WriteString("digraph flow {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box];\n")
	for _, n := range v.Nodes {
		label := n.Label
		if n.Badge != "" {
			label += "\n(" + n.Badge + ")"
		}
		attrs := "label=" + strconv.Quote(label)
		switch n.Kind {
		case KindSlot:
			attrs += ", style=rounded"
		case KindFile:
			attrs += ", shape=note"
		case KindExternal:
			attrs += ", shape=component"
		}
		fmt.Fprintf(&sb, "  %s [%s];\n", strconv.Quote(n.ID), attrs)
	}
	for _, e := range v.Edges {
		attrs := "label=" + strconv.Quote(string(e.Kind))
		switch e.Kind {
		case ForwardRef:
			attrs += ", style=dashed"
		case Import:
			attrs += ", style=bold"
		case SlotRef:
			attrs += ", style=dotted"
		case ContextRef:
			attrs += ", style=dashed, color=gray"
		}
		fmt.Fprintf(&sb, "  %s -> %s [%s];\n", strconv.Quote(e.From), strconv.Quote(e.To), attrs)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func mermaidText(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// Mermaid renders the graph as a Mermaid flow chart.
func (g *Graph) Mermaid(opts Options) string {
	v := g.View(opts)
	ids := make(map[string]string, len(v.Nodes))
	var sb strings.Builder
	sb.WriteString("flowchart LR\n")
	for i, n := range v.Nodes {
		id := fmt.Sprintf("n%d", i)
		ids[n.ID] = id
		label := mermaidText(n.Label)
		if n.Badge != "" {
			label += "<br/>(" + mermaidText(n.Badge) + ")"
		}
		switch n.Kind {
		case KindSlot:
			fmt.Fprintf(&sb, "  %s(\"%s\")\n", id, label)
		case KindFile:
			fmt.Fprintf(&sb, "  %s[/\"%s\"/]\n", id, label)
		case KindExternal:
			fmt.Fprintf(&sb, "  %s[(\"%s\")]\n", id, label)
		default:
			fmt.Fprintf(&sb, "  %s[\"%s\"]\n", id, label)
		}
	}
	for _, e := range v.Edges {
		arrow := "-->"
		switch e.Kind {
		case ForwardRef, ContextRef:
			arrow = "-.->"
		case Import:
			arrow = "==>"
		}
		fmt.Fprintf(&sb, "  %s %s|%s| %s\n", ids[e.From], arrow, e.Kind, ids[e.To])
	}
	return sb.String()
}

// JSON renders the filtered view as indented JSON.
func (g *Graph) JSON(opts Options) ([]byte, error) {
	return json.MarshalIndent(g.View(opts), "", "  ")
}

// YAML renders the filtered view as YAML.
func (g *Graph) YAML(opts Options) ([]byte, error) {
	return yaml.Marshal(g.View(opts))
}

// Export renders the graph in the named format: dot, mermaid, json or yaml.
func (g *Graph) Export(format string, opts Options) ([]byte, error) {
	switch strings.ToLower(format) {
	case "dot", "graphviz":
		return []byte(g.DOT(opts)), nil
	case "mermaid":
		return []byte(g.Mermaid(opts)), nil
	case "json":
		return g.JSON(opts)
	case "yaml", "yml":
		return g.YAML(opts)
	}
	return nil, fmt.Errorf("unknown graph format %q (want dot, mermaid, json or yaml)", format)
}
