package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// Direction distinguishes $ (backward) from ^ (forward) references.
type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Sigil returns the source prefix for the direction.
func (d Direction) Sigil() string {
	if d == Forward {
		return "^"
	}
	return "$"
}

// ListKind is the controlled vocabulary for style.list.
type ListKind string

const (
	ListNone     ListKind = ""
	ListBullet   ListKind = "bullet"
	ListNumbered ListKind = "numbered"
	ListTask     ListKind = "task"
	ListTaskDone ListKind = "task-done"
)

// WrapKind is the controlled vocabulary for style.wrap.
type WrapKind string

const (
	WrapNone       WrapKind = ""
	WrapXML        WrapKind = "xml"
	WrapCodeBlock  WrapKind = "codeblock"
	WrapBlockquote WrapKind = "blockquote"
	WrapDetails    WrapKind = "details"
)

// FlowStyle is the typed form of a node's style.* parameters.
//
//	@intro |style.title=Intro|style.level=+1|style.divider=true| ... |.
//	        ^^^^^^^^^^^^^^^^^ ^^^^^^^^^^^^^^ ^^^^^^^^^^^^^^^^^^
type FlowStyle struct {
	Title   string
	Divider bool
	List    ListKind
	Wrap    WrapKind
	Tag     string // xml tag name or codeblock language
	Summary string // details summary

	// Level is an absolute heading level (0 = unset). LevelOffset is added
	// to the layer-derived level when Level is unset.
	Level       int
	LevelOffset int
}

// ItemKind tags a ContentItem.
type ItemKind int

const (
	ItemString ItemKind = iota
	ItemRef
	ItemFile
	ItemNode
)

func (k ItemKind) String() string {
	switch k {
	case ItemString:
		return "string"
	case ItemRef:
		return "ref"
	case ItemFile:
		return "file"
	case ItemNode:
		return "node"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// StringLit is a string block with the trim requests of its delimiters.
type StringLit struct {
	Raw          string
	TrimLeading  bool // opener was <<<
	TrimTrailing bool // closer was >>>
	Pos          Position
}

// Text returns the literal with the requested trimming applied.
func (s StringLit) Text() string {
	t := s.Raw
	if s.TrimLeading {
		t = strings.TrimLeft(t, " \t\r\n")
	}
	if s.TrimTrailing {
		t = strings.TrimRight(t, " \t\r\n")
	}
	return t
}

// NodeRef is a $ or ^ reference, optionally into a slot: $page.header.
type NodeRef struct {
	Target    string
	Direction Direction
	Pos       Position

	// Resolved is bound by the resolver to the top-level node named by the
	// first segment of Target. Slot segments are walked at render time.
	Resolved *FlowNode
}

// ID returns the top-level node id the reference points at.
func (r *NodeRef) ID() string {
	id, _, _ := strings.Cut(r.Target, ".")
	return id
}

// SlotPath returns the slot segments after the node id (nil for plain refs).
func (r *NodeRef) SlotPath() []string {
	_, rest, ok := strings.Cut(r.Target, ".")
	if !ok {
		return nil
	}
	return strings.Split(rest, ".")
}

func (r *NodeRef) String() string { return r.Direction.Sigil() + r.Target }

// FileRef is a ++path reference. The core never opens the file.
type FileRef struct {
	Path string
	Pos  Position
}

func (f *FileRef) String() string { return "++" + f.Path }

// ContentItem is one entry of a node's ordered content. Exactly one payload
// field is meaningful, selected by Kind.
type ContentItem struct {
	Kind ItemKind
	Str  StringLit
	Ref  *NodeRef
	File *FileRef
	Node *FlowNode
}

func (c ContentItem) String() string {
	switch c.Kind {
	case ItemString:
		return fmt.Sprintf("%q", c.Str.Raw)
	case ItemRef:
		return c.Ref.String()
	case ItemFile:
		return c.File.String()
	case ItemNode:
		return "@" + c.Node.ID
	}
	return "?"
}

// FlowNode is a unit of content: a top-level definition or a nested slot.
type FlowNode struct {
	ID        string
	Anonymous bool
	Style     FlowStyle
	Params    map[string]string
	Slots     map[string]*FlowNode
	Layer     int
	Content   []ContentItem
	Pos       Position
}

func newFlowNode(id string, layer int, pos Position) *FlowNode {
	return &FlowNode{
		ID:     id,
		Params: make(map[string]string),
		Slots:  make(map[string]*FlowNode),
		Layer:  layer,
		Pos:    pos,
	}
}

func (n *FlowNode) String() string {
	return fmt.Sprintf("Node(@%s layer=%d items=%v slots=%v)", n.ID, n.Layer, n.Content, n.SlotNames())
}

// SlotNames returns the node's slot names in content order.
func (n *FlowNode) SlotNames() []string {
	names := make([]string, 0, len(n.Slots))
	seen := make(map[string]bool, len(n.Slots))
	for _, item := range n.Content {
		if item.Kind == ItemNode && !seen[item.Node.ID] {
			if _, ok := n.Slots[item.Node.ID]; ok {
				names = append(names, item.Node.ID)
				seen[item.Node.ID] = true
			}
		}
	}
	// Slots not present in content (never produced by the parser) go last.
	var rest []string
	for name := range n.Slots {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Slot walks a slot path starting at n.
func (n *FlowNode) Slot(path []string) (*FlowNode, bool) {
	cur := n
	for _, name := range path {
		next, ok := cur.Slots[name]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// setSlot replaces the slot and the content item that holds it, so the slot
// map and the content list never disagree.
func (n *FlowNode) setSlot(name string, child *FlowNode) {
	old := n.Slots[name]
	n.Slots[name] = child
	for i := range n.Content {
		if n.Content[i].Kind == ItemNode && n.Content[i].Node == old {
			n.Content[i].Node = child
			return
		}
	}
	n.Content = append(n.Content, ContentItem{Kind: ItemNode, Node: child})
}

// Clone returns a deep copy of the node's owned tree: params, slots and
// content. References keep their binding since they do not own their target.
func (n *FlowNode) Clone() *FlowNode {
	c := &FlowNode{
		ID:        n.ID,
		Anonymous: n.Anonymous,
		Style:     n.Style,
		Params:    make(map[string]string, len(n.Params)),
		Slots:     make(map[string]*FlowNode, len(n.Slots)),
		Layer:     n.Layer,
		Content:   make([]ContentItem, len(n.Content)),
		Pos:       n.Pos,
	}
	for k, v := range n.Params {
		c.Params[k] = v
	}
	for i, item := range n.Content {
		switch item.Kind {
		case ItemRef:
			ref := *item.Ref
			item.Ref = &ref
		case ItemFile:
			f := *item.File
			item.File = &f
		case ItemNode:
			child := item.Node.Clone()
			if n.Slots[item.Node.ID] == item.Node {
				c.Slots[child.ID] = child
			}
			item.Node = child
		}
		c.Content[i] = item
	}
	return c
}

// relayer shifts the subtree so n sits at the given layer.
func (n *FlowNode) relayer(layer int) {
	n.Layer = layer
	for _, item := range n.Content {
		if item.Kind == ItemNode {
			item.Node.relayer(layer + 1)
		}
	}
}

// Walk visits n and every nested node in content order, passing each node's
// dotted path relative to n's id.
func (n *FlowNode) Walk(fn func(path string, node *FlowNode)) {
	type frame struct {
		path string
		node *FlowNode
	}
	stack := []frame{{n.ID, n}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.path, f.node)
		for i := len(f.node.Content) - 1; i >= 0; i-- {
			item := f.node.Content[i]
			if item.Kind == ItemNode {
				stack = append(stack, frame{f.path + "." + item.Node.ID, item.Node})
			}
		}
	}
}

// ImportNode is a +path directive with optional selectors and renames.
//
//	+lib/common.flow
//	$header
//	@intro |. = $welcome
type ImportNode struct {
	Path      string
	Selectors []string          // explicitly selected ids, source order
	Renames   map[string]string // original id -> alias
	Pos       Position
}

// Selective reports whether the import names what it wants.
func (i *ImportNode) Selective() bool {
	return len(i.Selectors) > 0 || len(i.Renames) > 0
}

func (i *ImportNode) String() string {
	return fmt.Sprintf("Import(%s, selectors=%v, renames=%v)", i.Path, i.Selectors, i.Renames)
}

// Assignment copies Source into Target's slot: $parent.slot = $child.
type Assignment struct {
	Target string
	Source string
	Pos    Position
}

// TargetNode returns the node id part of Target.
func (a *Assignment) TargetNode() string {
	id, _, _ := strings.Cut(a.Target, ".")
	return id
}

// TargetSlot returns the slot path part of Target ("" when missing).
func (a *Assignment) TargetSlot() string {
	_, slot, _ := strings.Cut(a.Target, ".")
	return slot
}

func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment($%s = $%s)", a.Target, a.Source)
}

// FlowFile is the parser's output for one source file.
type FlowFile struct {
	Imports     []*ImportNode
	Nodes       map[string]*FlowNode
	Order       []string // node ids in definition order
	Assignments []*Assignment

	// Out is the node named "out", when defined.
	Out *FlowNode
}

// Index returns the 0-based file-order position of id, or -1.
func (f *FlowFile) Index(id string) int {
	for i, name := range f.Order {
		if name == id {
			return i
		}
	}
	return -1
}

// ResolvedFlowFile is the resolver's output: every reference validated and
// bound, imports merged, assignments applied. It is not modified after
// Resolve returns.
type ResolvedFlowFile struct {
	Nodes      map[string]*FlowNode
	Entry      *FlowNode
	Order      []string // dependencies before dependents
	FileRefs   []string // deduplicated, first-seen order
	SourcePath string
}
