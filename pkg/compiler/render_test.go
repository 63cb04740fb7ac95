package compiler

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowc/pkg/vfs"
)

// render resolves src in collect mode and renders whatever resolved.
func render(t *testing.T, src string) string {
	t.Helper()
	rf, _, _ := resolveOn(t, vfs.NewVirtualDisk(), src, Collect)
	require.NotNil(t, rf)
	out, err := NewCompiler(quietLogger()).Compile(rf, true)
	require.NoError(t, err)
	return out
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Round trip",
			input:    "@greeting |<<<Hello, World!>>>|.\n@out |$greeting|.",
			expected: "Hello, World!",
		},
		{
			name:     "Heading and divider",
			input:    "@intro |style.title=Intro|<<<Welcome.>>>|style.divider=true|.\n@out |$intro|.",
			expected: "# Intro\nWelcome.\n---\n",
		},
		{
			name:     "Items join with newlines",
			input:    "@out |<<<a>>>|<<<b>>>|.",
			expected: "a\nb",
		},
		{
			name:     "Preserved whitespace joins inline",
			input:    "@out |<<Hello >>|<<<World>>>|.",
			expected: "Hello World",
		},
		{
			name:     "Trim only on triple delimiters",
			input:    "@out |<<<  x  >>|.",
			expected: "x  ",
		},
		{
			name:     "Empty items are skipped",
			input:    "@out |<<<>>>|<<<x>>>|@empty |.|.",
			expected: "x",
		},
		{
			name:     "Forward reference",
			input:    "@out |^later|.\n@later |<<<L>>>|.",
			expected: "L",
		},
		{
			name:     "Slot reference",
			input:    "@page |@header |<<<Top>>>|.|<<<body>>>|.\n@out |$page.header|.",
			expected: "Top",
		},
		{
			name:     "File reference renders its path",
			input:    "@out |<<<see>>>|++docs/x.md|.",
			expected: "see\ndocs/x.md",
		},
		{
			name:     "Slot heading follows layer",
			input:    "@out |style.title=Top|@sub |style.title=Sub|<<<text>>>|.|.",
			expected: "# Top\n## Sub\ntext",
		},
		{
			name:     "Assigned slot",
			input:    "@card |@body |<<<empty>>>|.|.\n@text |<<<Hello>>>|.\n$card.body = $text\n@out |$card|.",
			expected: "Hello",
		},
		{
			name:     "Referenced node keeps its own layer",
			input:    "@note |style.title=Note|<<<n>>>|.\n@out |@wrap |$note|.|.",
			expected: "# Note\nn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, render(t, tt.input))
		})
	}
}

func TestRenderPlaceholders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Run("Missing", func(t *testing.T) {
		rf, _, _ := resolveOn(t, vfs.NewVirtualDisk(), "@out |<<<before>>>|$missing|.", Collect)
		out, err := NewCompiler(logger).Compile(rf, true)
		require.NoError(t, err)
		assert.Equal(t, "before\n[MISSING: $missing]", out)
		assert.Contains(t, buf.String(), "reference target missing")
	})

	t.Run("Missing slot", func(t *testing.T) {
		rf, _, _ := resolveOn(t, vfs.NewVirtualDisk(), "@page |.\n@out |$page.nope|.", Collect)
		out, err := NewCompiler(logger).Compile(rf, true)
		require.NoError(t, err)
		assert.Equal(t, "[MISSING: $page.nope]", out)
	})

	t.Run("Circular", func(t *testing.T) {
		rf, _, _ := resolveOn(t, vfs.NewVirtualDisk(), "@a |^b|.\n@b |$a|.\n@out |$a|.", Collect)
		out, err := NewCompiler(logger).Compile(rf, true)
		require.NoError(t, err)
		assert.Equal(t, "[CIRCULAR: @a]", out)
		assert.Contains(t, buf.String(), "circular reference while rendering")
	})
}

func TestRenderMissingEntry(t *testing.T) {
	rf, _, err := resolveOn(t, vfs.NewVirtualDisk(), "@a |<<<x>>>|.", FailFast)
	require.NoError(t, err)

	out, err := Compile(rf, false)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	_, err = Compile(rf, true)
	require.ErrorIs(t, err, ErrMissingEntry)
	assert.True(t, IsKind(err, CompilerError))
	assert.Contains(t, err.Error(), "/proj/main.flow")

	_, err = Compile(nil, true)
	require.ErrorIs(t, err, ErrMissingEntry)
}

func TestHeadingLevel(t *testing.T) {
	tests := []struct {
		name  string
		layer int
		style FlowStyle
		want  int
	}{
		{"Top level", 0, FlowStyle{}, 1},
		{"Slot", 2, FlowStyle{}, 3},
		{"Offset", 0, FlowStyle{LevelOffset: 1}, 2},
		{"Negative offset clamps", 0, FlowStyle{LevelOffset: -5}, 1},
		{"Explicit level wins", 4, FlowStyle{Level: 2, LevelOffset: 3}, 2},
		{"Explicit level clamps", 0, FlowStyle{Level: 9}, 6},
		{"Deep layer clamps", 10, FlowStyle{}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &FlowNode{Layer: tt.layer, Style: tt.style}
			assert.Equal(t, tt.want, HeadingLevel(n))
		})
	}
}

func TestRenderHeadingClamp(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("@out ")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "|@s%d ", i)
	}
	sb.WriteString("|style.title=Deep|<<<x>>>")
	for i := 0; i <= 10; i++ {
		sb.WriteString("|.")
	}

	assert.Equal(t, "###### Deep\nx", render(t, sb.String()))
}

func TestRenderLists(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Bullet",
			input:    "@out |style.list=bullet|<<<a>>>|<<<b>>>|.",
			expected: "- a\n- b",
		},
		{
			name:     "Task",
			input:    "@out |style.list=task|<<<todo>>>|.",
			expected: "- [ ] todo",
		},
		{
			name:     "Task done",
			input:    "@out |style.list=task-done|<<<done>>>|.",
			expected: "- [x] done",
		},
		{
			name:     "Continuation lines are indented",
			input:    "@out |style.list=bullet|<<<first\nsecond\n\nthird>>>|.",
			expected: "- first\n  second\n\n  third",
		},
		{
			name:     "Nested list slot",
			input:    "@out |style.list=bullet|<<<a>>>|@sub |style.list=bullet|<<<x>>>|<<<y>>>|.|.",
			expected: "- a\n  - x\n  - y",
		},
		{
			name:     "Referenced list passes through",
			input:    "@inner |style.list=numbered|<<<x>>>|.\n@out |style.list=bullet|<<<a>>>|$inner|.",
			expected: "- a\n1. x",
		},
		{
			name:     "Unknown kind renders plain",
			input:    "@out |style.list=roman|<<<a>>>|<<<b>>>|.",
			expected: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, render(t, tt.input))
		})
	}
}

func TestRenderNumberedWidth(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("@out |style.list=numbered")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "|<<<item %d\nmore %d>>>", i, i)
	}
	sb.WriteString("|.")

	lines := strings.Split(render(t, sb.String()), "\n")
	require.Len(t, lines, 20)
	assert.Equal(t, "9. item 9", lines[16])
	assert.Equal(t, "   more 9", lines[17])
	assert.Equal(t, "10. item 10", lines[18])
	assert.Equal(t, "    more 10", lines[19])
}

func TestRenderWraps(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "XML uses node id",
			input:    "@note |style.wrap=xml|<<<hi>>>|.\n@out |$note|.",
			expected: "<note>\nhi\n</note>",
		},
		{
			name:     "XML tag",
			input:    "@out |style.wrap=xml|style.tag=rules|<<<hi>>>|.",
			expected: "<rules>\nhi\n</rules>",
		},
		{
			name:     "Codeblock",
			input:    "@out |style.wrap=codeblock|style.tag=go|<<<x := 1>>>|.",
			expected: "```go\nx := 1\n```",
		},
		{
			name:     "Blockquote",
			input:    "@out |style.wrap=blockquote|<<<a\n\nb>>>|.",
			expected: "> a\n>\n> b",
		},
		{
			name:     "Details summary",
			input:    "@out |style.wrap=details|style.summary=Click|<<<hidden>>>|.",
			expected: "<details>\n<summary>Click</summary>\n\nhidden\n</details>",
		},
		{
			name:     "Details falls back to title",
			input:    "@out |style.wrap=details|style.title=More|<<<hidden>>>|.",
			expected: "# More\n<details>\n<summary>More</summary>\n\nhidden\n</details>",
		},
		{
			name:     "Heading, wrap and divider order",
			input:    "@out |style.title=T|style.wrap=blockquote|style.divider=true|<<<q>>>|.",
			expected: "# T\n> q\n---\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, render(t, tt.input))
		})
	}
}

type shoutHandler struct{ BaseHandler }

func (shoutHandler) PerItem(_ *RenderContext, items []Piece) []Piece {
	for i := range items {
		items[i].Text = strings.ToUpper(items[i].Text)
	}
	return items
}

func TestCustomHandler(t *testing.T) {
	rf, _, err := resolveOn(t, vfs.NewVirtualDisk(), "@out |style.title=t|<<<quiet>>>|.", FailFast)
	require.NoError(t, err)

	c := &Compiler{Logger: quietLogger(), Handlers: append(DefaultHandlers(), shoutHandler{})}
	out, err := c.Compile(rf, true)
	require.NoError(t, err)
	assert.Equal(t, "# t\nQUIET", out)
}

func TestRenderDeepReferenceChain(t *testing.T) {
	const depth = 5000
	var sb strings.Builder
	sb.WriteString("@n0 |<<<bottom>>>|.\n")
	for i := 1; i < depth; i++ {
		fmt.Fprintf(&sb, "@n%d |$n%d|.\n", i, i-1)
	}
	fmt.Fprintf(&sb, "@out |$n%d|.", depth-1)

	assert.Equal(t, "bottom", render(t, sb.String()))
}

// phaseRecorder notes the phase it is called in for every hook.
type phaseRecorder struct {
	seen []string
}

func (r *phaseRecorder) Pre(ctx *RenderContext) string {
	r.seen = append(r.seen, ctx.Phase.String())
	return ""
}

func (r *phaseRecorder) PerItem(ctx *RenderContext, items []Piece) []Piece {
	r.seen = append(r.seen, ctx.Phase.String())
	return items
}

func (r *phaseRecorder) Wrap(ctx *RenderContext, content string) string {
	r.seen = append(r.seen, ctx.Phase.String())
	return content
}

func (r *phaseRecorder) Post(ctx *RenderContext) string {
	r.seen = append(r.seen, ctx.Phase.String())
	return ""
}

func TestHandlerSeesPhase(t *testing.T) {
	rf, _, err := resolveOn(t, vfs.NewVirtualDisk(), "@out |<<<x>>>|.", FailFast)
	require.NoError(t, err)

	rec := &phaseRecorder{}
	c := &Compiler{Logger: quietLogger(), Handlers: []StyleHandler{rec}}
	out, err := c.Compile(rf, true)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Equal(t, []string{"PRE", "PER_ITEM", "WRAP", "POST"}, rec.seen)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "PER_ITEM", PhasePerItem.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}
