package memmodel

import (
	"sort"

	"github.com/symex-go/symex"
)

// Store is the reference symex.ValueSet: a classic points-to map from a
// pointer expression's canonical text form to the set of object
// expressions it may alias. Grounded on glee/execution_state.go's treatment
// of pointers (which resolves &x/array-element/struct-field lvalues
// directly) generalized into an explicit points-to relation, since the
// specification asks for Read/Merge/Filter as first-class operations glee
// never needed in single-path mode.
type Store struct {
	points map[string][]symex.Expr
}

// NewStore returns an empty points-to map.
func NewStore() *Store { return &Store{points: make(map[string][]symex.Expr)} }

func key(ptr symex.Expr) string { return ptr.String() }

// Read implements symex.ValueSet.
func (s *Store) Read(ptr symex.Expr) []symex.Expr {
	if addr, ok := ptr.(*symex.AddressOfExpr); ok {
		return []symex.Expr{addr.Operand}
	}
	return s.points[key(ptr)]
}

// Assign implements symex.ValueSet: lhs's points-to set becomes whatever
// rhs's does (or, if rhs is itself an address-of expression, the singleton
// object it addresses).
func (s *Store) Assign(lhs, rhs symex.Expr) {
	s.points[key(lhs)] = dedupe(s.Read(rhs))
}

// ApplyCondition implements symex.ValueSet. Narrowing the points-to map
// from a branch condition (e.g. p == &x) is an optional refinement the
// specification leaves to the collaborator (section 4.7); this reference
// implementation is conservative and returns the store unchanged.
func (s *Store) ApplyCondition(cond symex.Expr) symex.ValueSet { return s }

// Merge implements symex.ValueSet: pointwise set union, deduplicated
// structurally.
func (s *Store) Merge(other symex.ValueSet) symex.ValueSet {
	o, ok := other.(*Store)
	if !ok {
		return s
	}
	out := NewStore()
	for k, v := range s.points {
		out.points[k] = append(out.points[k], v...)
	}
	for k, v := range o.points {
		out.points[k] = dedupe(append(out.points[k], v...))
	}
	for k := range out.points {
		out.points[k] = dedupe(out.points[k])
	}
	return out
}

// Filter implements symex.ValueSet. Per section 4.7, filtering a
// value-set on a branch condition is an optional soundness-preserving
// optimization; this reference implementation passes taken/notTaken
// through unchanged, which is always sound (it merely forgoes pruning).
func (s *Store) Filter(cond symex.Expr, taken, notTaken symex.ValueSet) (symex.ValueSet, symex.ValueSet) {
	return taken, notTaken
}

// Clone implements symex.ValueSet.
func (s *Store) Clone() symex.ValueSet {
	out := NewStore()
	for k, v := range s.points {
		cp := make([]symex.Expr, len(v))
		copy(cp, v)
		out.points[k] = cp
	}
	return out
}

func dedupe(exprs []symex.Expr) []symex.Expr {
	if len(exprs) < 2 {
		return exprs
	}
	sorted := append([]symex.Expr{}, exprs...)
	sort.Slice(sorted, func(i, j int) bool { return symex.CompareExpr(sorted[i], sorted[j]) < 0 })
	out := sorted[:1]
	for _, e := range sorted[1:] {
		if symex.CompareExpr(out[len(out)-1], e) != 0 {
			out = append(out, e)
		}
	}
	return out
}
