package compiler

import (
	"log/slog"
	"strings"
)

// Compiler renders a ResolvedFlowFile to text. It keeps no state between
// calls and may be reused sequentially.
type Compiler struct {
	Logger   *slog.Logger
	Handlers []StyleHandler
}

// NewCompiler returns a compiler with the built-in handler chain.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{Logger: logger, Handlers: DefaultHandlers()}
}

// frame is one node being rendered. Rendering walks an explicit stack of
// frames so deep reference chains never grow the Go call stack.
type frame struct {
	node   *FlowNode
	next   int
	pieces []Piece
}

// Compile renders rf starting at its entry node. Without an entry node it
// returns a CompilerError when requireEntry is set and "" otherwise.
// Missing targets and cycles met while rendering become inline placeholders.
func (c *Compiler) Compile(rf *ResolvedFlowFile, requireEntry bool) (string, error) {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Handlers == nil {
		c.Handlers = DefaultHandlers()
	}

	if rf == nil || rf.Entry == nil {
		if requireEntry {
			e := newError(CompilerError, ErrMissingEntry, Position{}, "no entry node: define @out to compile this file")
			if rf != nil {
				e.Path = rf.SourcePath
			}
			return "", e
		}
		return "", nil
	}

	active := map[*FlowNode]bool{rf.Entry: true}
	stack := []*frame{{node: rf.Entry}}
	var result string

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next >= len(top.node.Content) {
			out := c.finish(top)
			stack = stack[:len(stack)-1]
			delete(active, top.node)
			if len(stack) == 0 {
				result = out.Text
				break
			}
			parent := stack[len(stack)-1]
			parent.pieces = append(parent.pieces, out)
			continue
		}

		item := top.node.Content[top.next]
		top.next++

		switch item.Kind {
		case ItemString:
			top.pieces = append(top.pieces, Piece{
				Text:             item.Str.Text(),
				PreserveLeading:  !item.Str.TrimLeading,
				PreserveTrailing: !item.Str.TrimTrailing,
			})

		case ItemFile:
			top.pieces = append(top.pieces, Piece{Text: item.File.Path})

		case ItemNode:
			if active[item.Node] {
				top.pieces = append(top.pieces, c.circular(top.node, "@"+item.Node.ID))
				continue
			}
			active[item.Node] = true
			stack = append(stack, &frame{node: item.Node})

		case ItemRef:
			target, placeholder := c.lookup(rf, top.node, item.Ref)
			if target == nil {
				top.pieces = append(top.pieces, placeholder)
				continue
			}
			if active[target] {
				top.pieces = append(top.pieces, c.circular(top.node, "@"+item.Ref.Target))
				continue
			}
			active[target] = true
			stack = append(stack, &frame{node: target})
		}
	}
	return result, nil
}

// lookup finds the node a reference renders. Slot paths are walked now so
// assignments made after binding are seen.
func (c *Compiler) lookup(rf *ResolvedFlowFile, from *FlowNode, ref *NodeRef) (*FlowNode, Piece) {
	node := ref.Resolved
	if node == nil {
		node = rf.Nodes[ref.ID()]
	}
	if node == nil {
		return nil, c.missing(from, ref)
	}
	if path := ref.SlotPath(); len(path) > 0 {
		slot, ok := node.Slot(path)
		if !ok {
			return nil, c.missing(from, ref)
		}
		node = slot
	}
	return node, Piece{}
}

func (c *Compiler) missing(from *FlowNode, ref *NodeRef) Piece {
	c.Logger.Error("reference target missing", "ref", ref.String(), "node", from.ID, "pos", ref.Pos.String())
	return Piece{Text: "[MISSING: " + ref.String() + "]"}
}

func (c *Compiler) circular(from *FlowNode, target string) Piece {
	c.Logger.Warn("circular reference while rendering", "target", target, "node", from.ID)
	return Piece{Text: "[CIRCULAR: " + target + "]"}
}

// finish runs the PRE, PER_ITEM, WRAP and POST phases over a frame whose
// content has been rendered.
func (c *Compiler) finish(f *frame) Piece {
	ctx := &RenderContext{Node: f.node, Logger: c.Logger}

	var pre, post strings.Builder
	ctx.Phase = PhasePre
	for _, h := range c.Handlers {
		pre.WriteString(h.Pre(ctx))
	}

	items := make([]Piece, 0, len(f.pieces))
	allListed := true
	for _, p := range f.pieces {
		if p.Text == "" {
			continue
		}
		items = append(items, p)
		allListed = allListed && p.Listed
	}
	c.Logger.Debug("node content rendered", "node", f.node.ID, "phase", PhaseContent, "items", len(items))

	ctx.Phase = PhasePerItem
	for _, h := range c.Handlers {
		items = h.PerItem(ctx, items)
	}

	content := joinPieces(items)
	ctx.Phase = PhaseWrap
	for _, h := range c.Handlers {
		content = h.Wrap(ctx, content)
	}
	ctx.Phase = PhasePost
	for _, h := range c.Handlers {
		post.WriteString(h.Post(ctx))
	}

	st := f.node.Style
	_, isList := listMarker(st.List, 1)
	listed := isList || (len(items) > 0 && allListed && pre.Len() == 0 && st.Wrap == WrapNone && post.Len() == 0)
	return Piece{Text: pre.String() + content + post.String(), Listed: listed}
}

// joinPieces joins with "\n", except where either side of a boundary asked
// for its whitespace to be preserved.
func joinPieces(items []Piece) string {
	var sb strings.Builder
	for i, p := range items {
		if i > 0 && !items[i-1].PreserveTrailing && !p.PreserveLeading {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Compile renders rf with the default handler chain.
func Compile(rf *ResolvedFlowFile, requireEntry bool) (string, error) {
	return NewCompiler(nil).Compile(rf, requireEntry)
}
