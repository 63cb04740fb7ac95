package compiler

import (
	"fmt"
	"log/slog"
	"strings"
)

// Phase names the steps a node goes through when it is rendered.
type Phase int

const (
	PhasePre Phase = iota
	PhaseContent
	PhasePerItem
	PhaseWrap
	PhasePost
)

var phaseNames = [...]string{"PRE", "CONTENT", "PER_ITEM", "WRAP", "POST"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

const maxHeadingLevel = 6

// Piece is one rendered content item before joining.
type Piece struct {
	Text string
	// PreserveLeading and PreserveTrailing record that the item's opener or
	// closer asked to keep whitespace; such boundaries join without a newline.
	PreserveLeading  bool
	PreserveTrailing bool
	// Listed marks output that is already a rendered list.
	Listed bool
}

// RenderContext is what a handler sees of the node being rendered. Phase is
// the step currently running.
type RenderContext struct {
	Node   *FlowNode
	Phase  Phase
	Logger *slog.Logger
}

func (c *RenderContext) Style() FlowStyle { return c.Node.Style }

// StyleHandler implements any of the PRE, PER_ITEM, WRAP and POST phases.
// CONTENT is the engine's own phase. Embed BaseHandler to get no-op
// defaults for the phases a handler does not care about.
type StyleHandler interface {
	Pre(ctx *RenderContext) string
	PerItem(ctx *RenderContext, items []Piece) []Piece
	Wrap(ctx *RenderContext, content string) string
	Post(ctx *RenderContext) string
}

type BaseHandler struct{}

func (BaseHandler) Pre(*RenderContext) string                       { return "" }
func (BaseHandler) PerItem(_ *RenderContext, items []Piece) []Piece { return items }
func (BaseHandler) Wrap(_ *RenderContext, content string) string    { return content }
func (BaseHandler) Post(*RenderContext) string                      { return "" }

// DefaultHandlers returns the built-in chain in application order.
func DefaultHandlers() []StyleHandler {
	return []StyleHandler{
		HeadingHandler{},
		ListHandler{},
		WrapHandler{},
		DividerHandler{},
	}
}

// HeadingHandler emits a markdown heading for titled nodes.
type HeadingHandler struct{ BaseHandler }

// HeadingLevel is the explicit level when set, otherwise layer+1 plus the
// offset, clamped to 1..6.
func HeadingLevel(n *FlowNode) int {
	level := n.Style.Level
	if level == 0 {
		level = n.Layer + 1 + n.Style.LevelOffset
	}
	return min(max(level, 1), maxHeadingLevel)
}

func (HeadingHandler) Pre(ctx *RenderContext) string {
	title := ctx.Node.Style.Title
	if title == "" {
		return ""
	}
	return strings.Repeat("#", HeadingLevel(ctx.Node)) + " " + title + "\n"
}

// ListHandler turns each item into a list entry.
type ListHandler struct{ BaseHandler }

func listMarker(kind ListKind, n int) (string, bool) {
	switch kind {
	case ListBullet:
		return "- ", true
	case ListNumbered:
		return fmt.Sprintf("%d. ", n), true
	case ListTask:
		return "- [ ] ", true
	case ListTaskDone:
		return "- [x] ", true
	}
	return "", false
}

func (ListHandler) PerItem(ctx *RenderContext, items []Piece) []Piece {
	kind := ctx.Node.Style.List
	if _, ok := listMarker(kind, 1); !ok {
		return items
	}

	indent := strings.Repeat("  ", ctx.Node.Layer)
	out := make([]Piece, 0, len(items))
	n := 0
	for _, item := range items {
		if item.Listed {
			out = append(out, item)
			continue
		}
		n++
		marker, _ := listMarker(kind, n)
		cont := indent + strings.Repeat(" ", len(marker))

		lines := strings.Split(item.Text, "\n")
		for i, line := range lines {
			switch {
			case i == 0:
				lines[i] = indent + marker + line
			case line != "":
				lines[i] = cont + line
			}
		}
		out = append(out, Piece{Text: strings.Join(lines, "\n"), Listed: true})
	}
	return out
}

// WrapHandler puts the joined content inside a container.
type WrapHandler struct{ BaseHandler }

func (WrapHandler) Wrap(ctx *RenderContext, content string) string {
	st := ctx.Node.Style
	switch st.Wrap {
	case WrapXML:
		tag := st.Tag
		if tag == "" {
			tag = ctx.Node.ID
		}
		return "<" + tag + ">\n" + content + "\n</" + tag + ">"

	case WrapCodeBlock:
		return "```" + st.Tag + "\n" + content + "\n```"

	case WrapBlockquote:
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			if line == "" {
				lines[i] = ">"
			} else {
				lines[i] = "> " + line
			}
		}
		return strings.Join(lines, "\n")

	case WrapDetails:
		summary := st.Summary
		if summary == "" {
			summary = st.Title
		}
		if summary == "" {
			summary = "Details"
		}
		return "<details>\n<summary>" + summary + "</summary>\n\n" + content + "\n</details>"
	}
	return content
}

// DividerHandler appends a horizontal rule.
type DividerHandler struct{ BaseHandler }

func (DividerHandler) Post(ctx *RenderContext) string {
	if ctx.Node.Style.Divider {
		return "\n---\n"
	}
	return ""
}
