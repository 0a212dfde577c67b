package memmodel

import "github.com/symex-go/symex"

// SymTab is the reference symex.SymbolTable: a flat map from identifier to
// its declared *symex.Symbol, grounded on glee/execution_state.go's use of
// a plain map for the dynamically generated symbol table the active path
// appends to (section 5).
type SymTab struct {
	syms map[string]*symex.Symbol
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymTab { return &SymTab{syms: make(map[string]*symex.Symbol)} }

// Insert implements symex.SymbolTable.
func (t *SymTab) Insert(sym *symex.Symbol) { t.syms[sym.Name] = sym }

// Lookup implements symex.SymbolTable.
func (t *SymTab) Lookup(id string) (*symex.Symbol, bool) {
	s, ok := t.syms[id]
	return s, ok
}

// Clone implements symex.SymbolTable. The outer table is read-only during
// execution (section 5); cloning only needs to give the fork its own
// growable copy of whatever the active path has appended so far.
func (t *SymTab) Clone() symex.SymbolTable {
	out := NewSymbolTable()
	for k, v := range t.syms {
		out.syms[k] = v
	}
	return out
}
