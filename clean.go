package symex

// This file implements section 4.5, Clean-Expr / Dereferencing (C6): the
// pipeline every expression passes through before it is fit to appear in
// the instruction interpreter or an emitted equation step.

// CleanExpr runs the full clean-expr pipeline on a read (rvalue) position:
// lift lets, rename to L2, remove dereferences against the value-set, and
// (if enabled) simplify. eq receives any auxiliary assignments the
// let-lifting step emits.
func CleanExpr(e Expr, st *ExecutionState, eq *Equation) Expr {
	e = liftLets(e, st, eq)
	e = RenameExprL1(e, st)
	e = RenameExprL2(e, st)
	e = removeDereferences(e, st)
	if st.Config.SimplifyOpt {
		e = Simplify(e)
	}
	return e
}

// liftLets rewrites every Let(x = e_x, body) by emitting an auxiliary
// assignment of x ← e_x at the current guard and substituting the new L2
// symbol for the bound variable in body (section 4.5 step 1). The
// auxiliary is marked instruction-local via st.addPendingKill; the caller
// (the interpreter) flushes the kill list once the host instruction's own
// effect has been emitted.
func liftLets(e Expr, st *ExecutionState, eq *Equation) Expr {
	switch e := e.(type) {
	case *LetExpr:
		value := liftLets(e.Value, st, eq)
		value = RenameExprL1(value, st)
		value = RenameExprL2(value, st)
		value = removeDereferences(value, st)
		if st.Config.SimplifyOpt {
			value = Simplify(value)
		}

		bound := RenameL1(e.Bound, st)
		lhs := RenameL2Write(bound, st)
		eq.Append(&AssignmentStep{LHS: lhs, RHS: value, G: st.guard.Clone(), Kind: AssignOrdinary})
		st.addPendingKill(lhs.L1Key())

		body := substituteSymbol(e.Body, e.Bound.Name, lhs)
		return liftLets(body, st, eq)

	case *BinaryExpr:
		return NewBinaryExpr(e.Op, liftLets(e.X, st, eq), liftLets(e.Y, st, eq), e.Typ)
	case *UnaryExpr:
		return &UnaryExpr{Op: e.Op, X: liftLets(e.X, st, eq), Typ: e.Typ}
	case *IfExpr:
		return &IfExpr{Cond: liftLets(e.Cond, st, eq), Then: liftLets(e.Then, st, eq), Else: liftLets(e.Else, st, eq)}
	case *ArrayIndexExpr:
		return &ArrayIndexExpr{Array: liftLets(e.Array, st, eq), Index: liftLets(e.Index, st, eq), Typ: e.Typ}
	case *StructMemberExpr:
		return &StructMemberExpr{Struct: liftLets(e.Struct, st, eq), Field: e.Field, Typ: e.Typ}
	case *DerefExpr:
		return &DerefExpr{Ptr: liftLets(e.Ptr, st, eq), Typ: e.Typ}
	case *AddressOfExpr:
		return &AddressOfExpr{Operand: liftLets(e.Operand, st, eq), Typ: e.Typ}
	case *CastExpr:
		return &CastExpr{Operand: liftLets(e.Operand, st, eq), Typ: e.Typ}
	case *ByteExtractExpr:
		return &ByteExtractExpr{Container: liftLets(e.Container, st, eq), Offset: liftLets(e.Offset, st, eq), Typ: e.Typ, LittleEndian: e.LittleEndian}
	case *FunctionAppExpr:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = liftLets(a, st, eq)
		}
		return &FunctionAppExpr{Function: e.Function, Args: args, Typ: e.Typ}

	case *AssignExpr:
		// SideEffect(Assign) in expression position: lifted the same way as
		// LetExpr above, reusing CleanLHS so a pointer-typed target splits
		// into its guarded base components exactly like the Assign
		// statement case does.
		rhs := liftLets(e.RHS, st, eq)
		rhs = RenameExprL1(rhs, st)
		rhs = RenameExprL2(rhs, st)
		rhs = removeDereferences(rhs, st)
		if st.Config.SimplifyOpt {
			rhs = Simplify(rhs)
		}
		var result Expr = rhs
		for _, t := range CleanLHS(e.LHS, st, eq, st.guard) {
			old := RenameL2Read(t.Base, st)
			newVal := t.Write(old, rhs)
			if st.Config.SimplifyOpt {
				newVal = Simplify(newVal)
			}
			lhs := RenameL2Write(t.Base, st)
			eq.Append(&AssignmentStep{LHS: lhs, RHS: newVal, G: t.Guard.Clone(), Kind: AssignOrdinary})
			st.valueSet.Assign(lhs, newVal)
			result = newVal
		}
		return result

	case *CallExpr, *ThrowExpr, *StatementExprExpr:
		// SideEffect(Call|Throw|StatementExpr) in expression position: the
		// statement-oriented interpreter has no way to re-enter a call's
		// body, a throw's landing-pad search, or a nested statement list
		// from inside an expression rewrite, so these are conservatively
		// havocked rather than evaluated (section 9).
		return &NondetExpr{Typ: e.Type(), Tag: sideEffectTag(e)}

	default:
		return e
	}
}

func sideEffectTag(e Expr) string {
	switch e.(type) {
	case *CallExpr:
		return "call-expr"
	case *ThrowExpr:
		return "throw-expr"
	case *StatementExprExpr:
		return "statement-expr"
	default:
		return "side-effect"
	}
}

// substituteSymbol replaces every *Symbol leaf named name with replacement.
func substituteSymbol(e Expr, name string, replacement Expr) Expr {
	return mapSymbols(e, func(s *Symbol) Expr {
		if s.Name == name {
			return replacement
		}
		return s
	})
}

// removeDereferences rewrites every *DerefExpr in e into an if-then-else
// ladder over the value-set's candidate targets (section 4.5 step 3). An
// empty target set yields a designated failure object (section 4.11).
func removeDereferences(e Expr, st *ExecutionState) Expr {
	switch e := e.(type) {
	case *DerefExpr:
		ptr := removeDereferences(e.Ptr, st)
		targets := st.valueSet.Read(ptr)
		if len(targets) == 0 {
			return failedObject(e.Typ)
		}
		var ladder Expr = targets[len(targets)-1]
		for i := len(targets) - 2; i >= 0; i-- {
			o := targets[i]
			cond := NewBinaryExpr(Eq, ptr, &AddressOfExpr{Operand: o, Typ: PointerTo(o.Type())}, BoolType)
			ladder = NewIfExpr(cond, o, ladder)
		}
		return ladder
	case *BinaryExpr:
		return NewBinaryExpr(e.Op, removeDereferences(e.X, st), removeDereferences(e.Y, st), e.Typ)
	case *UnaryExpr:
		return NewUnaryExpr(e.Op, removeDereferences(e.X, st), e.Typ)
	case *IfExpr:
		return NewIfExpr(removeDereferences(e.Cond, st), removeDereferences(e.Then, st), removeDereferences(e.Else, st))
	case *ArrayIndexExpr:
		return &ArrayIndexExpr{Array: removeDereferences(e.Array, st), Index: removeDereferences(e.Index, st), Typ: e.Typ}
	case *StructMemberExpr:
		return &StructMemberExpr{Struct: removeDereferences(e.Struct, st), Field: e.Field, Typ: e.Typ}
	case *AddressOfExpr:
		return &AddressOfExpr{Operand: removeDereferences(e.Operand, st), Typ: e.Typ}
	case *CastExpr:
		return NewCastExpr(removeDereferences(e.Operand, st), e.Typ)
	case *ByteExtractExpr:
		return normalizeByteExtract(&ByteExtractExpr{
			Container:    removeDereferences(e.Container, st),
			Offset:       removeDereferences(e.Offset, st),
			Typ:          e.Typ,
			LittleEndian: e.LittleEndian,
		})
	default:
		return e
	}
}

// failedObject stands in for an unresolvable dereference target (section
// 4.11). It carries a Nondet payload tagged for diagnosis. No validity
// assertion accompanies it on the read side: executeAssign emits one only
// when an LHS dereference has no candidate target at all.
func failedObject(typ Type) Expr {
	return &NondetExpr{Typ: typ, Tag: "failed-deref"}
}

// normalizeByteExtract is a no-op for read positions; the LHS-specific
// normalization (section 4.5 step 4: "convert byte_extract(container,
// offset, T) = rhs into an equivalent update of container") happens in
// CleanLHS below, since it requires rewriting an assignment, not just an
// expression.
func normalizeByteExtract(e *ByteExtractExpr) Expr { return e }

// LHSTarget is one component of a split assignment left-hand side (section
// 4.6: "split LHS into base + selector chain"). Base is the L1-renamed
// root symbol; Write applies rhs to that base, honoring any pointer
// dereference or byte-extract the original LHS involved.
type LHSTarget struct {
	Guard *Guard
	Base  *Symbol
	Write func(base Expr, rhs Expr) Expr // builds the new whole-object value given the old one
}

// CleanLHS splits an assignment target into its guarded base-write
// components (section 4.5 step 3's LHS dereference ladder, and step 4's
// byte-extract normalization). For a plain local/global symbol LHS, it
// returns a single target with an identity-ish Write that simply threads
// rhs through. For *p with an N-way value-set, it returns N guarded
// targets, one per candidate object.
func CleanLHS(lhs Expr, st *ExecutionState, eq *Equation, baseGuard *Guard) []LHSTarget {
	switch lhs := lhs.(type) {
	case *Symbol:
		base := RenameL1(lhs, st)
		return []LHSTarget{{Guard: baseGuard, Base: base, Write: func(_, rhs Expr) Expr { return rhs }}}

	case *DerefExpr:
		ptr := CleanExpr(lhs.Ptr, st, eq)
		targets := st.valueSet.Read(ptr)
		if len(targets) == 0 {
			return nil
		}
		out := make([]LHSTarget, 0, len(targets))
		for _, o := range targets {
			o := o
			sym, ok := baseSymbol(o)
			if !ok {
				continue
			}
			cond := NewBinaryExpr(Eq, ptr, &AddressOfExpr{Operand: o, Typ: PointerTo(o.Type())}, BoolType)
			g := baseGuard.Clone()
			g.Add(cond)
			base := RenameL1(sym, st)
			// Each write is conditional: new value if the pointer targets
			// this object on this path, otherwise the object's old value
			// (section 4.6: "a[... ] <- if p==&a then 5 else a").
			out = append(out, LHSTarget{
				Guard: g,
				Base:  base,
				Write: func(old, rhs Expr) Expr { return NewIfExpr(cond, rhs, old) },
			})
		}
		return out

	case *StructMemberExpr:
		inner := CleanLHS(lhs.Struct, st, eq, baseGuard)
		out := make([]LHSTarget, len(inner))
		for i, t := range inner {
			field := lhs.Field
			inWrite := t.Write
			out[i] = LHSTarget{Guard: t.Guard, Base: t.Base, Write: func(old, rhs Expr) Expr {
				return inWrite(old, &StructMemberExpr{Struct: old, Field: field, Typ: rhs.Type()})
			}}
		}
		return out

	case *ArrayIndexExpr:
		inner := CleanLHS(lhs.Array, st, eq, baseGuard)
		idx := CleanExpr(lhs.Index, st, eq)
		out := make([]LHSTarget, len(inner))
		for i, t := range inner {
			inWrite := t.Write
			out[i] = LHSTarget{Guard: t.Guard, Base: t.Base, Write: func(old, rhs Expr) Expr {
				return inWrite(old, &ArrayIndexExpr{Array: old, Index: idx, Typ: rhs.Type()})
			}}
		}
		return out

	case *ByteExtractExpr:
		// Section 4.5 step 4: byte_extract(container, offset, T) = rhs
		// becomes an update of container that leaves bytes outside [offset,
		// offset+width) unchanged. Modeled here as a symbolic update
		// expression rather than materializing concrete bytes, since the
		// container's concrete layout is a memmodel concern.
		inner := CleanLHS(lhs.Container, st, eq, baseGuard)
		offset := CleanExpr(lhs.Offset, st, eq)
		width := lhs.Typ
		out := make([]LHSTarget, len(inner))
		for i, t := range inner {
			inWrite := t.Write
			out[i] = LHSTarget{Guard: t.Guard, Base: t.Base, Write: func(old, rhs Expr) Expr {
				return inWrite(old, &ByteExtractExpr{Container: old, Offset: offset, Typ: width, LittleEndian: lhs.LittleEndian})
			}}
		}
		return out

	default:
		return nil
	}
}

func baseSymbol(e Expr) (*Symbol, bool) {
	switch e := e.(type) {
	case *Symbol:
		return e, true
	case *StructMemberExpr:
		return baseSymbol(e.Struct)
	case *ArrayIndexExpr:
		return baseSymbol(e.Array)
	default:
		return nil, false
	}
}
