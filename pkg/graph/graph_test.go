package graph

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// sample mirrors what the resolver records for
//
//	+lib.flow
//	@page |@header |$logo|.|@body |.|++notes.md|.
//	@out |$page.header|^footer|.
//	@footer |.
func sample() *Graph {
	b := NewBuilder()
	b.AddFile("/proj/main.flow")
	b.AddFile("/proj/lib.flow")
	b.AddEdge("/proj/main.flow", "/proj/lib.flow", Import)
	b.AddNode("logo")
	b.AddNode("page")
	b.AddEdge("page", "page.header", SlotRef)
	b.AddEdge("page", "page.body", SlotRef)
	b.AddEdge("page.header", "logo", BackwardRef)
	b.AddEdge("page", "notes.md", ContextRef)
	b.AddEdge("out", "page.header", BackwardRef)
	b.AddEdge("out", "footer", ForwardRef)
	return b.Build()
}

func TestBuilder(t *testing.T) {
	g := sample()

	assert.Equal(t, []string{"footer", "logo", "out", "page", "page.body", "page.header"}, g.Nodes())
	assert.Equal(t, []string{"/proj/lib.flow", "/proj/main.flow"}, g.Files())
	assert.True(t, g.HasEdge("out", "footer", ForwardRef))
	assert.False(t, g.HasEdge("out", "footer", BackwardRef))
	assert.False(t, g.HasNode("/proj/lib.flow"), "import endpoints are files, not nodes")
	assert.False(t, g.HasNode("notes.md"), "context targets are not nodes")

	assert.True(t, g.IsSlot("page.header"))
	assert.False(t, g.IsSlot("page"))
	assert.False(t, g.IsSlot("notes.md"))
	assert.True(t, g.IsFile("notes.md"))
	assert.True(t, g.IsFile("/proj/main.flow"))
	assert.False(t, g.IsFile("page"))

	edges := g.Edges()
	require.Len(t, edges, 7)
	assert.Equal(t, Edge{From: "/proj/main.flow", To: "/proj/lib.flow", Kind: Import}, edges[0])
}

func TestBuilderIgnoresEmpty(t *testing.T) {
	b := NewBuilder()
	b.AddNode("")
	b.AddFile("")
	b.AddEdge("", "x", BackwardRef)
	g := b.Build()
	assert.Empty(t, g.Nodes())
	assert.Empty(t, g.Files())
	assert.Empty(t, g.Edges())
}

func TestBuildSnapshots(t *testing.T) {
	b := NewBuilder()
	b.AddNode("a")
	g := b.Build()
	b.AddNode("b")
	assert.Equal(t, []string{"a"}, g.Nodes())
	assert.Equal(t, []string{"a", "b"}, b.Build().Nodes())
}

func TestMerge(t *testing.T) {
	one := NewBuilder()
	one.AddFile("/one.flow")
	one.AddEdge("out", "a", BackwardRef)
	two := NewBuilder()
	two.AddFile("/two.flow")
	two.AddEdge("out", "a", BackwardRef)
	two.AddEdge("out", "b", ForwardRef)

	g := Merge(one.Build(), nil, two.Build())
	assert.Equal(t, []string{"a", "b", "out"}, g.Nodes())
	assert.Equal(t, []string{"/one.flow", "/two.flow"}, g.Files())
	assert.Len(t, g.Edges(), 2)
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "page", Owner("page.header.logo"))
	assert.Equal(t, "page", Owner("page"))
}

func TestShortName(t *testing.T) {
	tests := []struct {
		path, primary, want string
	}{
		{"/proj/main.flow", "/proj/main.flow", "main.flow"},
		{"/proj/lib/common.flow", "/proj/main.flow", "lib/common.flow"},
		{"/other/x.flow", "/proj/main.flow", "x.flow"},
		{"/proj/lib/common.flow", "", "common.flow"},
		{"notes.md", "", "notes.md"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortName(tt.path, tt.primary))
		})
	}
}

func TestViewTiers(t *testing.T) {
	g := sample()

	t.Run("Tier 1 shows slots", func(t *testing.T) {
		v := g.View(Options{Tier: 1, Primary: "/proj/main.flow"})
		kinds := map[string]string{}
		for _, n := range v.Nodes {
			kinds[n.ID] = n.Kind
			assert.Empty(t, n.Badge)
		}
		assert.Equal(t, KindSlot, kinds["page.header"])
		assert.Equal(t, KindNode, kinds["page"])
		assert.Equal(t, KindFile, kinds["/proj/lib.flow"])
		assert.Equal(t, KindExternal, kinds["notes.md"])
		assert.Len(t, v.Edges, 7)
		assert.Equal(t, []string{"lib.flow", "main.flow"}, v.Files)
	})

	t.Run("Tier 0 folds slots into owners", func(t *testing.T) {
		v := g.View(Options{Tier: 0})
		for _, n := range v.Nodes {
			assert.NotEqual(t, KindSlot, n.Kind, n.ID)
		}
		want := []Edge{
			{From: "/proj/main.flow", To: "/proj/lib.flow", Kind: Import},
			{From: "out", To: "footer", Kind: ForwardRef},
			{From: "out", To: "page", Kind: BackwardRef},
			{From: "page", To: "notes.md", Kind: ContextRef},
			{From: "page", To: "logo", Kind: BackwardRef},
		}
		if diff := cmp.Diff(want, v.Edges); diff != "" {
			t.Errorf("edges mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, "2 slots", badge(v, "page"))
		assert.Equal(t, "", badge(v, "out"))
	})

	t.Run("Custom badge", func(t *testing.T) {
		v := g.View(Options{Tier: 0, Badges: map[string]string{"page": "layout"}})
		assert.Equal(t, "layout", badge(v, "page"))
	})

	t.Run("Empty graph", func(t *testing.T) {
		v := NewBuilder().Build().View(Options{})
		assert.NotNil(t, v.Nodes)
		assert.NotNil(t, v.Edges)
		assert.NotNil(t, v.Files)
	})
}

func badge(v View, id string) string {
	for _, n := range v.Nodes {
		if n.ID == id {
			return n.Badge
		}
	}
	return "<absent>"
}

func TestSingleSlotBadge(t *testing.T) {
	b := NewBuilder()
	b.AddEdge("card", "card.body", SlotRef)
	v := b.Build().View(Options{Tier: 0})
	assert.Equal(t, "1 slot", badge(v, "card"))
}

func TestTierZeroKeepsCrossNodeSlotEdges(t *testing.T) {
	b := NewBuilder()
	b.AddEdge("card", "card.body", SlotRef)
	b.AddEdge("card.body", "text", SlotRef)
	b.AddNode("text")

	v := b.Build().View(Options{Tier: 0})
	assert.Equal(t, []Edge{{From: "card", To: "text", Kind: SlotRef}}, v.Edges)
	assert.Equal(t, "1 slot", badge(v, "card"))
}

func TestDOT(t *testing.T) {
	out := sample().DOT(Options{Tier: 1, Primary: "/proj/main.flow"})

	assert.True(t, strings.HasPrefix(out, "digraph flow {\n  rankdir=LR;\n"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, `"page.header" [label="page.header", style=rounded];`)
	assert.Contains(t, out, `"/proj/lib.flow" [label="lib.flow", shape=note];`)
	assert.Contains(t, out, `"notes.md" [label="notes.md", shape=component];`)
	assert.Contains(t, out, `"out" -> "footer" [label="forward-ref", style=dashed];`)
	assert.Contains(t, out, `"/proj/main.flow" -> "/proj/lib.flow" [label="import", style=bold];`)

	collapsed := sample().DOT(Options{Tier: 0})
	assert.Contains(t, collapsed, `"page" [label="page\n(2 slots)"];`)
	assert.NotContains(t, collapsed, "page.header")
}

func TestMermaid(t *testing.T) {
	out := sample().Mermaid(Options{Tier: 0})

	assert.True(t, strings.HasPrefix(out, "flowchart LR\n"))
	assert.Contains(t, out, `["page<br/>(2 slots)"]`)
	assert.Contains(t, out, "-.->|forward-ref|")
	assert.Contains(t, out, "==>|import|")
	assert.Contains(t, out, "-->|backward-ref|")
}

func TestStructuredExports(t *testing.T) {
	g := sample()
	opts := Options{Tier: 0, Primary: "/proj/main.flow"}

	data, err := g.Export("json", opts)
	require.NoError(t, err)
	var fromJSON View
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	if diff := cmp.Diff(g.View(opts), fromJSON); diff != "" {
		t.Errorf("json view mismatch (-want +got):\n%s", diff)
	}

	data, err = g.Export("yml", opts)
	require.NoError(t, err)
	var fromYAML View
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	if diff := cmp.Diff(g.View(opts), fromYAML); diff != "" {
		t.Errorf("yaml view mismatch (-want +got):\n%s", diff)
	}

	data, err = g.Export("Graphviz", opts)
	require.NoError(t, err)
	assert.Equal(t, g.DOT(opts), string(data))

	_, err = g.Export("svg", opts)
	assert.ErrorContains(t, err, "unknown graph format")
}
