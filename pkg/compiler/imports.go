package compiler

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"flowc/pkg/graph"
	"flowc/pkg/vfs"
)

// parseSource tokenizes and parses src.
func parseSource(src string, logger *slog.Logger) (*FlowFile, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, logger).Parse()
}

// resolveImports runs before the local symbol table is built, so imported
// nodes precede local ones for backward-reference purposes.
func (r *Resolver) resolveImports(ff *FlowFile) error {
	for _, imp := range ff.Imports {
		if err := r.resolveImport(imp); err != nil {
			return err
		}
	}
	return nil
}

// importPath resolves an import relative to the importing file's directory.
func (r *Resolver) importPath(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.base, p)
	}
	return absPath(p)
}

func (r *Resolver) resolveImport(imp *ImportNode) error {
	full := r.importPath(imp.Path)

	// A file already on the import chain would import itself.
	for i, p := range r.sess.stack {
		if p == full {
			chain := append(append([]string{}, r.sess.stack[i:]...), full)
			e := newError(ResolverError, ErrCircularImport, imp.Pos,
				"circular import: %s", strings.Join(chain, " -> "))
			e.Chain = chain
			return r.record(e)
		}
	}

	g := r.sess.graph
	child, done := r.sess.loaded[full]
	if !done {
		r.Logger.Debug("resolving import", "path", full, "from", r.fileID())

		src, err := r.FS.ReadFile(full)
		if err != nil {
			var e *Error
			if errors.Is(err, vfs.ErrFileNotFound) {
				e = newError(ResolverError, ErrImportNotFound, imp.Pos, "import %q not found (looked for %s)", imp.Path, full)
			} else {
				e = newError(ResolverError, ErrImportNotFound, imp.Pos, "import %q could not be read: %v", imp.Path, err)
			}
			return r.record(e)
		}

		ff, err := parseSource(string(src), r.Logger)
		if err != nil {
			var e *Error
			if !errors.As(err, &e) {
				return err
			}
			e.Path = full
			return r.record(e)
		}

		child = r.child()
		if _, err := child.resolveFile(ff, filepath.Dir(full), full); err != nil {
			return err
		}
		r.sess.loaded[full] = child
	}

	g.AddFile(full)
	g.AddEdge(r.fileID(), full, graph.Import)
	return r.mergeImport(imp, child, full)
}

type export struct {
	name string
	node *FlowNode
}

// exports lists what imp brings into scope. Without selectors that is every
// node the imported file defines itself, except its entry node. Selectors and
// renames may name anything visible in the imported file.
func (r *Resolver) exports(imp *ImportNode, child *Resolver) ([]export, error) {
	var out []export
	if !imp.Selective() {
		for _, id := range child.table.IDs() {
			sym, _ := child.table.Lookup(id)
			if id == "out" || sym.Imported() {
				continue
			}
			out = append(out, export{name: id, node: sym.Node})
		}
		return out, nil
	}

	unknown := func(id string) error {
		return r.record(newError(ResolverError, ErrUnknownSelector, imp.Pos,
			"import %q has no node @%s", imp.Path, id))
	}

	for _, id := range imp.Selectors {
		sym, ok := child.table.Lookup(id)
		if !ok {
			if err := unknown(id); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, export{name: id, node: sym.Node})
	}

	originals := make([]string, 0, len(imp.Renames))
	for orig := range imp.Renames {
		originals = append(originals, orig)
	}
	sort.Slice(originals, func(i, j int) bool {
		return child.table.Index(originals[i]) < child.table.Index(originals[j])
	})
	for _, orig := range originals {
		sym, ok := child.table.Lookup(orig)
		if !ok {
			if err := unknown(orig); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, export{name: imp.Renames[orig], node: sym.Node})
	}
	return out, nil
}

// mergeImport enters the exported nodes into the local symbol table. A
// renamed node is entered as a copy carrying the alias as its id; references
// already bound to the original keep pointing at it.
func (r *Resolver) mergeImport(imp *ImportNode, child *Resolver, full string) error {
	exports, err := r.exports(imp, child)
	if err != nil {
		return err
	}

	g := r.sess.graph
	for _, ex := range exports {
		node := ex.node
		if ex.name != node.ID {
			original := node.ID
			node = node.Clone()
			node.ID = ex.name
			r.owned[node] = true
			g.AddNode(ex.name)
			g.AddNode(original)
			g.AddEdge(ex.name, original, graph.Import)
		}

		prev, ok := r.table.Define(ex.name, node, full)
		if ok {
			continue
		}
		if prev.Node == node {
			// the same file reached twice through different imports
			continue
		}
		related := prev.Node.Pos
		e := newError(ResolverError, ErrDuplicateNode, imp.Pos,
			"duplicate node @%s: imported from %s but already defined by %s", ex.name, imp.Path, origin(prev))
		e.Related = &related
		if err := r.record(e); err != nil {
			return err
		}
	}
	return nil
}

func origin(s Symbol) string {
	if s.Origin == "" {
		return "this file"
	}
	return s.Origin
}
