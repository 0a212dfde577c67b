package symex

// ValueSet is the opaque abstract pointer store the specification treats
// as an external collaborator (section 6). The core interpreter and
// clean.go depend only on this interface; a reference byte-addressable
// implementation lives in the memmodel package (SPEC_FULL.md C11) and is
// exercised by this package's own tests via memmodel.NewStore.
type ValueSet interface {
	// Read returns the set of candidate objects ptr may target, as object
	// lvalue expressions (section 4.5 step 3: "{o1, ..., on}").
	Read(ptr Expr) []Expr

	// Assign records that lhs now may alias whatever rhs may alias (used
	// when lhs itself is pointer-typed).
	Assign(lhs, rhs Expr)

	// ApplyCondition returns a value-set refined by the knowledge that cond
	// holds on every path reaching the returned store (section 4.7).
	ApplyCondition(cond Expr) ValueSet

	// Merge unions two value-sets pointwise (section 4.8 step 3).
	Merge(other ValueSet) ValueSet

	// Filter narrows taken/notTaken per section 4.7's filtering rule. It
	// mutates neither receiver; it returns the two refined stores.
	Filter(cond Expr, taken, notTaken ValueSet) (ValueSet, ValueSet)

	// Clone returns an independent copy for Fork.
	Clone() ValueSet
}

// SymbolTable is the opaque symbol-table collaborator (section 6). The
// outer table is read-only during execution; the inner, dynamically
// generated table is appended to by the active path only (section 5).
type SymbolTable interface {
	Insert(sym *Symbol)
	Lookup(id string) (*Symbol, bool)
	Clone() SymbolTable
}

// PathStorage is the external work-list the path-exploration controller
// pushes to and pops from when doing_path_exploration is enabled (section
// 4.9). Concrete implementations (stack, priority queue, ...) correspond
// to glee's Searcher strategy interface and its DFS/BFS/Random
// implementations.
type PathStorage interface {
	Push(state *ExecutionState)
	Pop() (*ExecutionState, bool)
	Len() int
}

// Solver is the decision-procedure collaborator the equation is ultimately
// handed to (section 1: "out of scope ... the decision procedure that
// consumes the equation"). The core package never imports an
// implementation of this interface; the z3 subpackage provides one.
type Solver interface {
	// Solve reports whether the conjunction of constraints is satisfiable.
	Solve(constraints []Expr) (sat bool, err error)
}
