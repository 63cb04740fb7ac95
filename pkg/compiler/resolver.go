package compiler

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"flowc/pkg/graph"
	"flowc/pkg/vfs"
)

// Mode selects how the resolver reports errors.
type Mode int

const (
	// FailFast stops at the first error.
	FailFast Mode = iota
	// Collect records every independently discoverable error and keeps going.
	Collect
)

func (m Mode) String() string {
	if m == Collect {
		return "collect"
	}
	return "failfast"
}

// ParseMode accepts "failfast", "fail-fast" or "collect".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "failfast", "fail-fast":
		return FailFast, nil
	case "collect":
		return Collect, nil
	}
	return FailFast, fmt.Errorf("unknown resolver mode %q (want failfast or collect)", s)
}

// inputName stands in for the file id when the source has no path.
const inputName = "<input>"

// session is the state a resolver shares with every child it creates for
// imports. It is reset at the start of each Resolve call.
type session struct {
	stack  []string // import chain, outermost first
	graph  *graph.Builder
	loaded map[string]*Resolver
	errs   ErrorList
}

// Resolver turns a FlowFile and everything it imports into a
// ResolvedFlowFile. A Resolver holds per-call state and must not be used
// from two goroutines at once.
type Resolver struct {
	Mode   Mode
	FS     vfs.FS
	Logger *slog.Logger

	sess *session

	path  string
	base  string
	table *SymbolTable
	local map[*FlowNode]bool
	// owned holds imported nodes this file has taken a private copy of.
	owned map[*FlowNode]bool
}

// NewResolver returns a fail-fast resolver reading imports through fsys.
// A nil fsys reads from disk; a nil logger means slog.Default().
func NewResolver(fsys vfs.FS, logger *slog.Logger) *Resolver {
	r := &Resolver{FS: fsys, Logger: logger}
	r.defaults()
	return r
}

func (r *Resolver) defaults() {
	if r.FS == nil {
		r.FS = vfs.OSDisk{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
}

func (r *Resolver) child() *Resolver {
	return &Resolver{Mode: r.Mode, FS: r.FS, Logger: r.Logger, sess: r.sess}
}

// record is the single decision point for both modes: fail-fast hands the
// error back to abort the walk, collect keeps it and returns nil.
func (r *Resolver) record(e *Error) error {
	if e.Path == "" && r.path != "" {
		e.Path = r.path
	}
	if r.Mode == FailFast {
		return e
	}
	r.sess.errs = append(r.sess.errs, e)
	return nil
}

func (r *Resolver) fileID() string {
	if r.path == "" {
		return inputName
	}
	return r.path
}

// Resolve validates ff and returns the resolved file. basePath is the
// directory imports are relative to; when empty it defaults to the directory
// of sourcePath. In Collect mode the best-effort result is returned together
// with an ErrorList of everything found.
func (r *Resolver) Resolve(ff *FlowFile, basePath, sourcePath string) (*ResolvedFlowFile, error) {
	r.defaults()
	r.sess = &session{graph: graph.NewBuilder(), loaded: make(map[string]*Resolver)}
	rf, err := r.resolveFile(ff, basePath, sourcePath)
	if err != nil {
		return nil, err
	}
	if r.Mode == Collect {
		return rf, r.sess.errs.Err()
	}
	return rf, nil
}

// Validate resolves in Collect mode regardless of r.Mode and returns every
// error found. The resolved file is best effort when errors is non-empty.
func (r *Resolver) Validate(ff *FlowFile, basePath, sourcePath string) (*ResolvedFlowFile, []error) {
	mode := r.Mode
	r.Mode = Collect
	defer func() { r.Mode = mode }()

	rf, _ := r.Resolve(ff, basePath, sourcePath)
	return rf, r.Errors()
}

// Errors returns the errors collected by the last call.
func (r *Resolver) Errors() []error {
	if r.sess == nil {
		return nil
	}
	out := make([]error, len(r.sess.errs))
	copy(out, r.sess.errs)
	return out
}

// Symbols returns the symbol table of the file resolved by the last call.
func (r *Resolver) Symbols() *SymbolTable {
	if r.table == nil {
		return NewSymbolTable()
	}
	return r.table
}

// Graph returns the dependency graph accumulated by the last call, imports
// included.
func (r *Resolver) Graph() *graph.Graph {
	if r.sess == nil {
		return graph.NewBuilder().Build()
	}
	return r.sess.graph.Build()
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func (r *Resolver) resolveFile(ff *FlowFile, basePath, sourcePath string) (*ResolvedFlowFile, error) {
	if sourcePath != "" {
		sourcePath = absPath(sourcePath)
	}
	if basePath == "" && sourcePath != "" {
		basePath = filepath.Dir(sourcePath)
	}
	r.path = sourcePath
	r.base = basePath
	r.table = NewSymbolTable()
	r.local = make(map[*FlowNode]bool)
	r.owned = make(map[*FlowNode]bool)

	r.sess.graph.AddFile(r.fileID())
	if sourcePath != "" {
		r.sess.stack = append(r.sess.stack, sourcePath)
		defer func() { r.sess.stack = r.sess.stack[:len(r.sess.stack)-1] }()
	}

	if err := r.resolveImports(ff); err != nil {
		return nil, err
	}
	if err := r.defineLocals(ff); err != nil {
		return nil, err
	}
	if err := r.validateRefs(ff); err != nil {
		return nil, err
	}
	if err := r.applyAssignments(ff); err != nil {
		return nil, err
	}
	order, err := r.sortNodes()
	if err != nil {
		return nil, err
	}

	nodes := r.table.Nodes()
	return &ResolvedFlowFile{
		Nodes:      nodes,
		Entry:      nodes["out"],
		Order:      order,
		FileRefs:   r.collectFileRefs(),
		SourcePath: sourcePath,
	}, nil
}

// defineLocals enters the file's own definitions after the imported ones,
// so every import precedes every local node in file order.
func (r *Resolver) defineLocals(ff *FlowFile) error {
	for _, id := range ff.Order {
		node := ff.Nodes[id]
		if prev, ok := r.table.Define(id, node, ""); !ok {
			related := prev.Node.Pos
			e := newError(ResolverError, ErrDuplicateNode, node.Pos,
				"duplicate node @%s: already imported from %s (defined at %s)", id, prev.Origin, prev.Node.Pos)
			e.Related = &related
			if err := r.record(e); err != nil {
				return err
			}
			continue
		}
		r.local[node] = true
	}
	return nil
}

type refSite struct {
	from string
	ref  *NodeRef
}

// validateRefs checks every reference inside the file's own nodes, binds it
// to its target and records the graph edges for references and slots.
func (r *Resolver) validateRefs(ff *FlowFile) error {
	g := r.sess.graph
	for _, id := range ff.Order {
		owner := ff.Nodes[id]
		if !r.local[owner] {
			continue
		}
		ownerIdx := r.table.Index(id)

		var sites []refSite
		owner.Walk(func(path string, n *FlowNode) {
			g.AddNode(path)
			for _, item := range n.Content {
				switch item.Kind {
				case ItemNode:
					g.AddEdge(path, path+"."+item.Node.ID, graph.SlotRef)
				case ItemRef:
					sites = append(sites, refSite{from: path, ref: item.Ref})
				}
			}
		})
		for _, s := range sites {
			if err := r.validateRef(id, ownerIdx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) validateRef(owner string, ownerIdx int, s refSite) error {
	ref := s.ref
	sym, ok := r.table.Lookup(ref.ID())
	if !ok {
		e := newError(ResolverError, ErrUndefinedReference, ref.Pos,
			"undefined reference %s in @%s (%s lookup)", ref, owner, ref.Direction)
		e.Direction = ref.Direction
		return r.record(e)
	}

	if ref.Direction == Backward && sym.Index >= ownerIdx {
		related := sym.Node.Pos
		e := newError(ResolverError, ErrUndefinedReference, ref.Pos,
			"undefined reference %s in @%s: a backward reference must name a node defined earlier in the file, but @%s is defined at %s; use ^%s to refer forward",
			ref, owner, ref.ID(), sym.Node.Pos, ref.Target)
		e.Direction = Backward
		e.Related = &related
		return r.record(e)
	}

	if path := ref.SlotPath(); len(path) > 0 {
		if _, ok := sym.Node.Slot(path); !ok {
			e := newError(ResolverError, ErrUndefinedSlot, ref.Pos,
				"undefined slot %s in @%s: @%s has no slot %q", ref, owner, ref.ID(), strings.Join(path, "."))
			e.Direction = ref.Direction
			return r.record(e)
		}
	}

	ref.Resolved = sym.Node
	kind := graph.BackwardRef
	if ref.Direction == Forward {
		kind = graph.ForwardRef
	}
	r.sess.graph.AddEdge(s.from, ref.Target, kind)
	return nil
}

func (r *Resolver) applyAssignments(ff *FlowFile) error {
	for _, a := range ff.Assignments {
		if err := r.applyAssignment(a); err != nil {
			return err
		}
	}
	return nil
}

// applyAssignment copies the source node's whole subtree into the target
// slot. The copy takes the slot's name and sits one layer below its parent.
func (r *Resolver) applyAssignment(a *Assignment) error {
	target, ok := r.table.Lookup(a.TargetNode())
	if !ok {
		e := newError(ResolverError, ErrUndefinedReference, a.Pos,
			"assignment target @%s is not defined", a.TargetNode())
		return r.record(e)
	}

	path := strings.Split(a.TargetSlot(), ".")
	name := path[len(path)-1]
	owner := target.Node
	if _, ok := owner.Slot(path); ok {
		owner = r.ownCopy(a.TargetNode(), target)
	}
	parent, ok := owner.Slot(path[:len(path)-1])
	if ok {
		_, ok = parent.Slots[name]
	}
	if !ok {
		e := newError(ResolverError, ErrInvalidAssignment, a.Pos,
			"assignment target $%s: @%s has no slot %q", a.Target, a.TargetNode(), a.TargetSlot())
		return r.record(e)
	}

	source, ok := r.table.Lookup(a.Source)
	if !ok {
		e := newError(ResolverError, ErrUndefinedReference, a.Pos,
			"assignment source $%s is not defined", a.Source)
		return r.record(e)
	}

	cp := source.Node.Clone()
	cp.ID = name
	cp.Anonymous = false
	cp.relayer(parent.Layer + 1)
	parent.setSlot(name, cp)

	r.sess.graph.AddEdge(a.Target, a.Source, graph.SlotRef)
	r.Logger.Debug("slot assigned", "target", a.Target, "source", a.Source, "file", r.fileID())
	return nil
}

// ownCopy returns the node this file may assign into for id. Imported nodes
// are shared with every other file importing the same library, so the first
// assignment into one swaps in a copy private to this file and rebinds the
// file's references to it.
func (r *Resolver) ownCopy(id string, sym Symbol) *FlowNode {
	if !sym.Imported() || r.owned[sym.Node] {
		return sym.Node
	}
	shared := sym.Node
	cp := shared.Clone()
	r.table.Replace(id, cp)
	r.owned[cp] = true

	for _, other := range r.table.IDs() {
		s, _ := r.table.Lookup(other)
		if !r.local[s.Node] && !r.owned[s.Node] {
			continue
		}
		s.Node.Walk(func(_ string, n *FlowNode) {
			for _, item := range n.Content {
				if item.Kind == ItemRef && item.Ref.Resolved == shared {
					item.Ref.Resolved = cp
				}
			}
		})
	}
	r.Logger.Debug("copied imported node for assignment", "node", id, "origin", sym.Origin, "file", r.fileID())
	return cp
}

// deps lists the top-level nodes n depends on: every reference anywhere in
// its content or slots, in first-seen order. A reference from n into one of
// its own slots is a dependency only when it sits inside that slot.
func (r *Resolver) deps(n *FlowNode) []*FlowNode {
	var out []*FlowNode
	seen := make(map[*FlowNode]bool)
	n.Walk(func(path string, sub *FlowNode) {
		for _, item := range sub.Content {
			if item.Kind != ItemRef {
				continue
			}
			target := item.Ref.Resolved
			if target == nil {
				if sym, ok := r.table.Lookup(item.Ref.ID()); ok {
					target = sym.Node
				}
			}
			if target == n && !insideSlot(path[len(n.ID):], item.Ref.SlotPath()) {
				continue
			}
			if target != nil && !seen[target] {
				seen[target] = true
				out = append(out, target)
			}
		}
	})
	return out
}

// insideSlot reports whether the site at rel, a path relative to the owner
// such as ".s.t", lies in the slot named by slot. A plain self reference
// (no slot) always counts.
func insideSlot(rel string, slot []string) bool {
	if len(slot) == 0 {
		return true
	}
	want := "." + strings.Join(slot, ".")
	return rel == want || strings.HasPrefix(rel, want+".")
}

// sortNodes runs an iterative three-colour depth-first search over the
// depends-on relation, reporting cycles and returning the symbol table's ids
// dependencies first. Roots are taken in file order.
func (r *Resolver) sortNodes() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	type frame struct {
		node *FlowNode
		deps []*FlowNode
		next int
	}

	color := make(map[*FlowNode]int)
	var order []string

	for _, id := range r.table.IDs() {
		sym, _ := r.table.Lookup(id)
		if color[sym.Node] != white {
			continue
		}
		color[sym.Node] = gray
		stack := []*frame{{node: sym.Node, deps: r.deps(sym.Node)}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next < len(top.deps) {
				dep := top.deps[top.next]
				top.next++
				switch color[dep] {
				case white:
					color[dep] = gray
					stack = append(stack, &frame{node: dep, deps: r.deps(dep)})
				case gray:
					chain := make([]*FlowNode, 0, len(stack))
					for _, f := range stack {
						chain = append(chain, f.node)
					}
					if err := r.reportCycle(chain, dep); err != nil {
						return nil, err
					}
				}
				continue
			}

			color[top.node] = black
			stack = stack[:len(stack)-1]
			if s, ok := r.table.Lookup(top.node.ID); ok && s.Node == top.node {
				order = append(order, top.node.ID)
			}
		}
	}
	return order, nil
}

// reportCycle records the cycle closed by the back edge path -> dep. Cycles
// made only of imported nodes were already reported by the importing child.
func (r *Resolver) reportCycle(path []*FlowNode, dep *FlowNode) error {
	start := 0
	for i, n := range path {
		if n == dep {
			start = i
			break
		}
	}
	cycle := path[start:]

	mine := false
	ids := make([]string, 0, len(cycle)+1)
	for _, n := range cycle {
		ids = append(ids, n.ID)
		mine = mine || r.local[n] || r.owned[n]
	}
	ids = append(ids, dep.ID)
	if !mine {
		return nil
	}

	from := cycle[len(cycle)-1]
	e := newError(ResolverError, ErrCircularDependency, from.Pos,
		"circular dependency: %s", strings.Join(ids, " -> "))
	e.Chain = ids
	return r.record(e)
}

// collectFileRefs gathers every ++path in the symbol table, first-seen order,
// and adds a context edge from each of the file's own nodes to the paths it
// mentions.
func (r *Resolver) collectFileRefs() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, id := range r.table.IDs() {
		sym, _ := r.table.Lookup(id)
		own := !sym.Imported()
		sym.Node.Walk(func(path string, n *FlowNode) {
			for _, item := range n.Content {
				if item.Kind != ItemFile {
					continue
				}
				if own {
					r.sess.graph.AddEdge(path, item.File.Path, graph.ContextRef)
				}
				if !seen[item.File.Path] {
					seen[item.File.Path] = true
					refs = append(refs, item.File.Path)
				}
			}
		})
	}
	return refs
}
