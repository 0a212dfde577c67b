package symex

// RenameLevel identifies which of the three cascading name transformations
// (section 4.1) a *Symbol has been put through.
type RenameLevel int

const (
	LevelL0 RenameLevel = iota
	LevelL1
	LevelL2
)

// RenameL0 replaces a bare identifier with (id, current_thread). Idempotent:
// calling it again on an already-L0 symbol for the same thread is a no-op.
func RenameL0(sym *Symbol, threadID int) *Symbol {
	if sym.Level >= LevelL0 && sym.ThreadID == threadID {
		return sym
	}
	out := *sym
	out.ThreadID = threadID
	out.Level = LevelL0
	return &out
}

// RenameL1 appends the current frame counter for a local symbol; globals
// pass through unchanged (section 4.1).
func RenameL1(sym *Symbol, st *ExecutionState) *Symbol {
	if sym.Level >= LevelL1 {
		return sym
	}
	if sym.IsGlobal {
		out := *sym
		out.Level = LevelL1
		return &out
	}
	key := L1Key{Name: sym.Name, ThreadID: sym.ThreadID}
	out := *sym
	out.Frame = st.level1[key]
	out.Level = LevelL1
	st.types[out.L1Key()] = sym.Typ
	return &out
}

// BumpFrame increments the L1 frame counter for name on the active thread,
// called on function entry so recursive/repeated frames get distinct
// locals, and returns the new counter value.
func (st *ExecutionState) BumpFrame(name string) int {
	key := L1Key{Name: name, ThreadID: st.threadID}
	st.level1[key] = st.level1[key] + 1
	return st.level1[key]
}

// RenameL2Read looks up the current SSA version of sym (which must already
// be L1-renamed) and returns either the L2-renamed symbol or, if constant
// propagation is enabled and a binding exists, the propagated constant
// directly (section 4.1's "L2 rename may return that constant").
func RenameL2Read(sym *Symbol, st *ExecutionState) Expr {
	assert(sym.Level >= LevelL1, "RenameL2Read: symbol %s not L1-renamed", sym.Name)
	key := sym.L1Key()
	if st.Config.ConstantPropagation {
		if c, ok := st.constProp[key]; ok {
			return c
		}
	}
	out := *sym
	out.Version = st.level2[key]
	out.Level = LevelL2
	return &out
}

// RenameL2Write allocates a fresh SSA version for sym and records it as the
// current version for that L1 key. The caller emits the returned symbol as
// an assignment's LHS.
func RenameL2Write(sym *Symbol, st *ExecutionState) *Symbol {
	assert(sym.Level >= LevelL1, "RenameL2Write: symbol %s not L1-renamed", sym.Name)
	key := sym.L1Key()
	next := st.level2[key] + 1
	st.level2[key] = next
	if st.Config.RunValidationChecks {
		assert(next > 0, "RenameL2Write: version did not increase for %s", sym.Name)
	}
	delete(st.constProp, key)
	out := *sym
	out.Version = next
	out.Level = LevelL2
	return &out
}

// RenameExprL0 descends into an expression tree applying RenameL0 to every
// Symbol leaf. When a subexpression is already at the target level no work
// is repeated (section 4.1).
func RenameExprL0(e Expr, threadID int) Expr {
	return mapSymbols(e, func(s *Symbol) Expr { return RenameL0(s, threadID) })
}

// RenameExprL1 descends into an expression tree applying RenameL1.
func RenameExprL1(e Expr, st *ExecutionState) Expr {
	return mapSymbols(e, func(s *Symbol) Expr { return RenameL1(s, st) })
}

// RenameExprL2 descends into an expression tree, rewriting every Symbol
// leaf as a read at the current SSA version (or its propagated constant).
func RenameExprL2(e Expr, st *ExecutionState) Expr {
	return mapSymbols(e, func(s *Symbol) Expr { return RenameL2Read(s, st) })
}

// mapSymbols rebuilds e, replacing every *Symbol leaf via fn and
// reconstructing composite nodes through the smart constructors so that
// renaming and simplification compose correctly.
func mapSymbols(e Expr, fn func(*Symbol) Expr) Expr {
	switch e := e.(type) {
	case *Symbol:
		return fn(e)
	case *Constant, *NilExpr:
		return e
	case *BinaryExpr:
		return NewBinaryExpr(e.Op, mapSymbols(e.X, fn), mapSymbols(e.Y, fn), e.Typ)
	case *UnaryExpr:
		return NewUnaryExpr(e.Op, mapSymbols(e.X, fn), e.Typ)
	case *IfExpr:
		return NewIfExpr(mapSymbols(e.Cond, fn), mapSymbols(e.Then, fn), mapSymbols(e.Else, fn))
	case *ArrayIndexExpr:
		return &ArrayIndexExpr{Array: mapSymbols(e.Array, fn), Index: mapSymbols(e.Index, fn), Typ: e.Typ}
	case *StructMemberExpr:
		return &StructMemberExpr{Struct: mapSymbols(e.Struct, fn), Field: e.Field, Typ: e.Typ}
	case *DerefExpr:
		return &DerefExpr{Ptr: mapSymbols(e.Ptr, fn), Typ: e.Typ}
	case *AddressOfExpr:
		return &AddressOfExpr{Operand: mapSymbols(e.Operand, fn), Typ: e.Typ}
	case *CastExpr:
		return NewCastExpr(mapSymbols(e.Operand, fn), e.Typ)
	case *ByteExtractExpr:
		return &ByteExtractExpr{Container: mapSymbols(e.Container, fn), Offset: mapSymbols(e.Offset, fn), Typ: e.Typ, LittleEndian: e.LittleEndian}
	case *FunctionAppExpr:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = mapSymbols(a, fn)
		}
		return &FunctionAppExpr{Function: e.Function, Args: args, Typ: e.Typ}
	case *LetExpr:
		return &LetExpr{Bound: e.Bound, Value: mapSymbols(e.Value, fn), Body: mapSymbols(e.Body, fn)}
	case *QuantifierExpr:
		return &QuantifierExpr{Kind: e.Kind, Bound: e.Bound, Body: mapSymbols(e.Body, fn)}
	case *NondetExpr:
		return e
	default:
		return e
	}
}
