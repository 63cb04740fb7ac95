package compiler

import (
	"fmt"
	"sort"
)

// Symbol is one top-level node visible in a file's scope.
type Symbol struct {
	Node *FlowNode
	// Index is the 0-based file-order position. Imported nodes take the
	// lowest indices so they precede every local definition.
	Index int
	// Origin is the file the node was defined in ("" for the file itself).
	Origin string
}

// Imported reports whether the symbol came in through an import.
func (s Symbol) Imported() bool { return s.Origin != "" }

// SymbolTable maps top-level node ids to their definitions. Slots are not
// entered; they are reached through dotted references from their owner.
type SymbolTable struct {
	symbols map[string]Symbol
	order   []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]Symbol)}
}

// Define adds node under id. It reports false, together with the existing
// symbol, when id is already taken.
func (s *SymbolTable) Define(id string, node *FlowNode, origin string) (Symbol, bool) {
	if prev, ok := s.symbols[id]; ok {
		return prev, false
	}
	sym := Symbol{Node: node, Index: len(s.order), Origin: origin}
	s.symbols[id] = sym
	s.order = append(s.order, id)
	return sym, true
}

// Replace swaps the node defined under id, keeping its index and origin.
func (s *SymbolTable) Replace(id string, node *FlowNode) {
	if sym, ok := s.symbols[id]; ok {
		sym.Node = node
		s.symbols[id] = sym
	}
}

func (s *SymbolTable) Lookup(id string) (Symbol, bool) {
	sym, ok := s.symbols[id]
	return sym, ok
}

// Index returns the file-order index of id, or -1.
func (s *SymbolTable) Index(id string) int {
	if sym, ok := s.symbols[id]; ok {
		return sym.Index
	}
	return -1
}

// IDs returns every defined id in file order.
func (s *SymbolTable) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Nodes returns the id -> node map of the table.
func (s *SymbolTable) Nodes() map[string]*FlowNode {
	out := make(map[string]*FlowNode, len(s.symbols))
	for id, sym := range s.symbols {
		out[id] = sym.Node
	}
	return out
}

func (s *SymbolTable) Len() int { return len(s.order) }

// Dump returns a sorted, human-readable listing of the table.
func (s *SymbolTable) Dump() []string {
	var lines []string
	for id, sym := range s.symbols {
		where := "local"
		if sym.Imported() {
			where = "import " + sym.Origin
		}
		lines = append(lines, fmt.Sprintf("%s #%d %s", id, sym.Index, where))
	}
	sort.Strings(lines)
	return lines
}
