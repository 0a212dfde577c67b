package symex

import (
	"fmt"
	"log"
)

// branchOutcome is what executing one instruction hands back to the
// controller (section 4.9 drives C7, which is this file). At most one of
// Stash/Spawned is set alongside Continue; Done means the state has
// reached the end of the program and should simply be dropped (its effects
// are already in the equation).
type branchOutcome struct {
	Continue *ExecutionState
	Stash    *ExecutionState // a Goto's taken branch (forward, or backward within its unwind bound)
	Spawned  *ExecutionState
	Done     bool
}

type catchEntry struct {
	TargetPC int
	ExcVar   *Symbol
}

// catchStacks is keyed by call-stack depth so ThrowPush/ThrowPop operate on
// the current frame's own stack (section 4.6: "maintain per-frame catch
// stack").
type catchStacks map[int][]catchEntry

// executeInstruction dispatches on instr.Kind and performs the transition
// described in section 4.6. lookup resolves callees and cs holds the catch
// stacks used by ThrowPush/ThrowPop/Throw. The interpreter never solves;
// that is strictly the downstream consumer's job.
func executeInstruction(st *ExecutionState, fn *GotoFunction, eq *Equation, lookup FunctionLookup, cs catchStacks) (*branchOutcome, error) {
	instr := fn.Body[st.pc]

	if st.Config.ShowSymexSteps {
		log.Printf("symex: state#%d pc=%d %s guard=%s", st.id, st.pc, instr.Kind, st.guard)
		if st.Config.DebugLevel > 1 {
			log.Printf("symex: state#%d instr=%+v", st.id, instr)
		}
	}

	switch instr.Kind {
	case Assign:
		return executeAssign(st, instr, eq)
	case Decl:
		return executeDecl(st, instr, eq)
	case Dead:
		return executeDead(st, instr, eq)
	case Assume:
		return executeAssume(st, instr, eq)
	case Assert:
		return executeAssert(st, instr, eq)
	case Goto:
		return executeGoto(st, instr, eq)
	case FunctionCall:
		return executeCall(st, fn, instr, eq, lookup, cs)
	case Return:
		return executeReturn(st, instr, eq)
	case EndFunction:
		return executeEndFunction(st, eq)
	case StartThread:
		return executeStartThread(st, instr, eq)
	case EndThread:
		st.terminated = true
		return &branchOutcome{Done: true}, nil
	case AtomicBegin:
		st.atomicSection++
		eq.Append(&AtomicStep{G: st.guard.Clone(), Kind: AtomicStepBegin})
		return advance(st), nil
	case AtomicEnd:
		if st.atomicSection > 0 {
			st.atomicSection--
		}
		eq.Append(&AtomicStep{G: st.guard.Clone(), Kind: AtomicStepEnd})
		return advance(st), nil
	case Throw:
		return executeThrow(st, instr, eq, cs)
	case ThrowPush:
		cs[len(st.callStack)] = append(cs[len(st.callStack)], catchEntry{TargetPC: instr.Target, ExcVar: instr.Sym})
		return advance(st), nil
	case ThrowPop:
		depth := len(st.callStack)
		if n := len(cs[depth]); n > 0 {
			cs[depth] = cs[depth][:n-1]
		}
		return advance(st), nil
	case Landingpad, TryCatch, Label, Skip, VaStart, CppNew, CppDelete, Allocate, Trace:
		return executeGeneric(st, instr, eq)
	case StmtInput:
		eq.Append(&IOStep{G: st.guard.Clone(), Dir: Input, Args: cleanAll(instr.IOArgs, st, eq)})
		return advance(st), nil
	case StmtOutput:
		eq.Append(&IOStep{G: st.guard.Clone(), Dir: Output, Args: cleanAll(instr.IOArgs, st, eq)})
		return advance(st), nil
	case Printf:
		// No effect on equation semantics; emitted as trace only (section
		// 4.6, "Other").
		return advance(st), nil
	case Fkt:
		return executeFkt(st, instr, eq)
	case Other:
		return executeGeneric(st, instr, eq)
	default:
		assert(false, "executeInstruction: unhandled kind %s", instr.Kind)
		return nil, nil
	}
}

func advance(st *ExecutionState) *branchOutcome {
	st.pc++
	return &branchOutcome{Continue: st}
}

func cleanAll(args []Expr, st *ExecutionState, eq *Equation) []Expr {
	out := make([]Expr, len(args))
	for i, a := range args {
		out[i] = CleanExpr(a, st, eq)
	}
	return out
}

// executeThrow implements section 4.6's Throw case: linearly search the
// current frame's catch stack, then its callers', for the nearest landing
// pad, emitting a pop (EndFunction marker) step for every frame unwound
// along the way, and finally assign the thrown value to the landing pad's
// exception variable before jumping to it. An exception that reaches the
// bottom of the call stack with no landing pad is modeled as a refuted
// assertion rather than a panic, matching section 4.11's "modeling failures
// become equation content" rule.
func executeThrow(st *ExecutionState, instr Instruction, eq *Equation, cs catchStacks) (*branchOutcome, error) {
	var excVal Expr = &NilExpr{}
	if instr.RHS != nil {
		excVal = CleanExpr(instr.RHS, st, eq)
	}

	for {
		depth := len(st.callStack)
		stack := cs[depth]
		if len(stack) > 0 {
			entry := stack[len(stack)-1]
			if entry.ExcVar != nil {
				base := RenameL1(entry.ExcVar, st)
				lhs := RenameL2Write(base, st)
				eq.Append(&AssignmentStep{LHS: lhs, RHS: excVal, G: st.guard.Clone(), Kind: AssignOrdinary})
			}
			st.pc = entry.TargetPC
			return &branchOutcome{Continue: st}, nil
		}
		if depth == 0 {
			break
		}
		frame := st.PopFrame()
		eq.Append(&FunctionCallMarkerStep{G: st.guard.Clone(), Function: frame.FunctionID, Entering: false})
		if parent := st.CurrentFrame(); parent != nil {
			st.function = parent.FunctionID
		}
	}

	eq.Append(&AssertStep{G: st.guard.Clone(), Cond: False, Message: "uncaught exception", PropertyID: "uncaught-throw"})
	st.terminated = true
	return &branchOutcome{Done: true}, nil
}

// stringBuiltins are the Java-string-style intrinsics section 4.6's Assign
// case names. Their result is only constant-foldable when every argument is
// a fully constant character array (an *ArrayConst); otherwise the call is
// left as an unresolved FunctionAppExpr for a downstream consumer to havoc.
var stringBuiltins = map[string]bool{"concat": true, "substring": true, "empty": true}

// foldStringBuiltin implements the constant-folding half of section 4.6's
// string-builtins sentence.
func foldStringBuiltin(fa *FunctionAppExpr) (*ArrayConst, bool) {
	if !stringBuiltins[fa.Function] {
		return nil, false
	}
	switch fa.Function {
	case "concat":
		if len(fa.Args) != 2 {
			return nil, false
		}
		a, ok := fa.Args[0].(*ArrayConst)
		b, ok2 := fa.Args[1].(*ArrayConst)
		if !ok || !ok2 {
			return nil, false
		}
		elems := make([]*Constant, 0, len(a.Elems)+len(b.Elems))
		elems = append(elems, a.Elems...)
		elems = append(elems, b.Elems...)
		typ := a.Typ
		typ.Len = len(elems)
		return &ArrayConst{Typ: typ, Elems: elems}, true

	case "substring":
		if len(fa.Args) != 3 {
			return nil, false
		}
		a, ok := fa.Args[0].(*ArrayConst)
		start, ok2 := fa.Args[1].(*Constant)
		end, ok3 := fa.Args[2].(*Constant)
		if !ok || !ok2 || !ok3 {
			return nil, false
		}
		lo, hi := int(start.Value), int(end.Value)
		if lo < 0 || hi > len(a.Elems) || lo > hi {
			return nil, false
		}
		elems := append([]*Constant{}, a.Elems[lo:hi]...)
		typ := a.Typ
		typ.Len = len(elems)
		return &ArrayConst{Typ: typ, Elems: elems}, true

	case "empty":
		if len(fa.Args) != 0 {
			return nil, false
		}
		typ := fa.Typ
		typ.Len = 0
		return &ArrayConst{Typ: typ, Elems: nil}, true
	}
	return nil, false
}

// materializeStringConst assigns a constant-folded string builtin's result
// to a fresh global symbol, named deterministically from its contents so
// that folding the same value twice interns to the same object, and returns
// an expression reading that symbol back (section 4.6: "materialized as a
// fresh symbol ... its length/data pair are assigned").
func materializeStringConst(arr *ArrayConst, st *ExecutionState, eq *Equation) Expr {
	name := fmt.Sprintf("string_const$%x", hashArrayConst(arr))

	lengthSym := &Symbol{Name: name + "$length", Typ: Int32Type, IsGlobal: true}
	dataSym := &Symbol{Name: name + "$data", Typ: arr.Typ, IsGlobal: true}

	lengthLHS := RenameL2Write(RenameL1(lengthSym, st), st)
	eq.Append(&AssignmentStep{LHS: lengthLHS, RHS: IntConst(uint64(len(arr.Elems)), Int32Type), G: st.guard.Clone(), Kind: AssignOrdinary})

	dataLHS := RenameL2Write(RenameL1(dataSym, st), st)
	eq.Append(&AssignmentStep{LHS: dataLHS, RHS: arr, G: st.guard.Clone(), Kind: AssignOrdinary})

	return dataLHS
}

// hashArrayConst derives a deterministic name suffix from an ArrayConst's
// contents, using the same inline FNV-1a constants as
// ExecutionState.stackHash in state.go.
func hashArrayConst(arr *ArrayConst) uint64 {
	var h uint64 = 1469598103934665603
	for _, c := range arr.Elems {
		h ^= c.Value
		h *= 1099511628211
	}
	return h
}

// executeAssign implements section 4.6's Assign case in full: clean both
// sides, split the LHS, emit one Assignment step per base component, flush
// instruction-local kills, and update constant propagation.
func executeAssign(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	rhs := CleanExpr(instr.RHS, st, eq)
	if fa, ok := rhs.(*FunctionAppExpr); ok {
		if folded, ok := foldStringBuiltin(fa); ok {
			rhs = materializeStringConst(folded, st, eq)
		}
	}
	targets := CleanLHS(instr.LHS, st, eq, st.guard)
	if len(targets) == 0 {
		// Unresolvable LHS dereference with an empty value-set: inject a
		// validity assertion and continue without effect (section 4.11).
		if !st.Config.AllowPointerUnsoundness {
			eq.Append(&AssertStep{G: st.guard.Clone(), Cond: False, Message: "dereference failure: no candidate target", PropertyID: "pointer-validity"})
		}
		flushKills(st, eq)
		return advance(st), nil
	}

	for _, t := range targets {
		old := RenameL2Read(t.Base, st)
		newVal := t.Write(old, rhs)
		if st.Config.SimplifyOpt {
			newVal = Simplify(newVal)
		}
		lhs := RenameL2Write(t.Base, st)
		eq.Append(&AssignmentStep{LHS: lhs, RHS: newVal, G: t.Guard.Clone(), Kind: AssignOrdinary})

		if c, ok := newVal.(*Constant); ok && st.Config.ConstantPropagation {
			st.constProp[lhs.L1Key()] = c
		} else {
			delete(st.constProp, lhs.L1Key())
		}
		st.valueSet.Assign(lhs, newVal)
	}

	flushKills(st, eq)
	return advance(st), nil
}

func flushKills(st *ExecutionState, eq *Equation) {
	for _, key := range st.flushPendingKills() {
		_ = key // Dead steps for instruction-locals carry no equation content
		// unless the symbol held a still-live allocation (section 4.6,
		// Dead case); plain let-lifted temporaries never do.
	}
}

// executeDecl implements section 4.6's Decl case: bump the frame counter,
// reset the SSA version, and emit a nondet initialization. The
// initialization is always emitted; it is never deferred to a first read.
func executeDecl(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	sym := instr.Sym
	st.BumpFrame(sym.Name)
	base := RenameL1(sym, st)
	lhs := RenameL2Write(base, st)
	eq.Append(&AssignmentStep{LHS: lhs, RHS: &NondetExpr{Typ: sym.Typ}, G: st.guard.Clone(), Kind: AssignNondet})
	return advance(st), nil
}

// executeDead implements section 4.6's Dead case.
func executeDead(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	sym := RenameL1(instr.Sym, st)
	key := sym.L1Key()
	delete(st.level1, key)
	delete(st.constProp, key)
	return advance(st), nil
}

// executeAssume implements section 4.6's Assume case.
func executeAssume(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	c := CleanExpr(instr.Cond, st, eq)
	if isFalse(c) {
		st.MarkUnreachable()
		eq.Append(&AssumeStep{G: st.guard.Clone(), Cond: c})
		return &branchOutcome{Done: true}, nil
	}
	eq.Append(&AssumeStep{G: st.guard.Clone(), Cond: c})
	st.guard.Add(c)
	return advance(st), nil
}

// executeAssert implements section 4.6's Assert case: the step is emitted
// unconditionally, even when c is syntactically false — the violation is
// the whole point.
func executeAssert(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	c := CleanExpr(instr.Cond, st, eq)
	eq.Append(&AssertStep{G: st.guard.Clone(), Cond: c, Message: instr.Message, PropertyID: instr.PropID})
	return advance(st), nil
}

// executeGoto implements section 4.6's Goto case, including the
// backwards/forwards/path-exploration split. The forward-goto merge bucket
// and the path-exploration PathStorage are owned by the controller; this
// function only classifies the branch and returns both candidate
// successors for the controller to route.
func executeGoto(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	cond := CleanExpr(instr.Cond, st, eq)

	taken := st
	notTaken := st.Fork()

	gt := taken.guard.Clone()
	becameFalseT := gt.Add(cond)
	gnt := notTaken.guard.Clone()
	becameFalseNT := gnt.Add(NewUnaryExpr(LogNot, cond, BoolType))

	taken.guard = gt
	notTaken.guard = gnt

	applyCondition(cond, taken, notTaken)

	if becameFalseT {
		taken.MarkUnreachable()
	}
	if becameFalseNT {
		notTaken.MarkUnreachable()
	}

	backwards := instr.Target <= st.pc
	fallthroughPC := st.pc + 1

	if backwards {
		n := taken.BumpLoopIteration(instr.Target)
		bound := st.Config.unwindBound(instr.Target)
		selfLoop := instr.Target == st.pc

		if bound >= 0 && n > bound {
			return handleUnwindBoundBreach(taken, notTaken, selfLoop, fallthroughPC, eq)
		}
		taken.pc = instr.Target
		notTaken.pc = fallthroughPC
		return &branchOutcome{Continue: notTaken, Stash: taken}, nil
	}

	// Forwards goto.
	taken.pc = instr.Target
	notTaken.pc = fallthroughPC

	return &branchOutcome{Continue: notTaken, Stash: taken}, nil
}

// handleUnwindBoundBreach implements section 4.10's three sub-cases for a
// back-edge whose bound has been exceeded. Per DESIGN.md's resolution of
// the self_loops_to_assumptions/partial_loops open question:
// self_loops_to_assumptions is checked first and, for a true self-loop
// (instr.Target == the goto's own pc), always wins regardless of
// partial_loops; partial_loops governs only genuine multi-instruction
// loops.
func handleUnwindBoundBreach(taken, notTaken *ExecutionState, selfLoop bool, fallthroughPC int, eq *Equation) (*branchOutcome, error) {
	switch {
	case selfLoop && taken.Config.SelfLoopsToAssumptions:
		eq.Append(&AssumeStep{G: taken.guard.Clone(), Cond: False})
		notTaken.pc = fallthroughPC
		return &branchOutcome{Continue: notTaken}, nil
	case taken.Config.UnwindingAssertions:
		eq.Append(&AssertStep{G: taken.guard.Clone(), Cond: False, Message: "unwinding assertion", PropertyID: "unwind-bound"})
		notTaken.pc = fallthroughPC
		return &branchOutcome{Continue: notTaken}, nil
	case taken.Config.PartialLoops:
		// Allow continuation past the bound but stop taking the back-edge:
		// the "taken" path simply falls through instead of jumping back.
		notTaken.pc = fallthroughPC
		return &branchOutcome{Continue: notTaken}, nil
	default:
		eq.Append(&AssumeStep{G: taken.guard.Clone(), Cond: False})
		notTaken.pc = fallthroughPC
		return &branchOutcome{Continue: notTaken}, nil
	}
}

// applyCondition implements section 4.7's condition-propagation rewrite.
// It is an optional optimization: skipping it must not change the
// equation's satisfiability, only its size, so errors here are never
// fatal.
func applyCondition(cond Expr, taken, notTaken *ExecutionState) {
	if b, ok := cond.(*BinaryExpr); ok && b.Op == Eq {
		if sym, ok := b.X.(*Symbol); ok {
			if c, ok := b.Y.(*Constant); ok && taken.Config.ConstantPropagation {
				taken.constProp[sym.L1Key()] = c
				delete(notTaken.constProp, sym.L1Key())
			}
		}
	}
	refinedTaken := taken.valueSet.ApplyCondition(cond)
	refinedNotTaken := notTaken.valueSet.ApplyCondition(NewUnaryExpr(LogNot, cond, BoolType))
	taken.valueSet, notTaken.valueSet = taken.valueSet.Filter(cond, refinedTaken, refinedNotTaken)
}

// executeCall implements section 4.6's FunctionCall case.
func executeCall(st *ExecutionState, caller *GotoFunction, instr Instruction, eq *Equation, lookup FunctionLookup, cs catchStacks) (*branchOutcome, error) {
	callee, ok := lookup(instr.Function)
	if !ok {
		log.Printf("symex: missing function body for %s; havocking call site", instr.Function)
		if instr.CallLHS != nil {
			targets := CleanLHS(instr.CallLHS, st, eq, st.guard)
			for _, t := range targets {
				lhs := RenameL2Write(t.Base, st)
				retType := t.Base.Typ
				eq.Append(&AssignmentStep{LHS: lhs, RHS: &NondetExpr{Typ: retType, Tag: "missing-body:" + instr.Function}, G: t.Guard.Clone(), Kind: AssignNondet})
			}
		}
		return advance(st), nil
	}

	bound := st.Config.RecursionBound
	if bound >= 0 && st.RecursionDepth(callee.Name) > bound {
		if instr.CallLHS != nil {
			targets := CleanLHS(instr.CallLHS, st, eq, st.guard)
			for _, t := range targets {
				lhs := RenameL2Write(t.Base, st)
				eq.Append(&AssignmentStep{LHS: lhs, RHS: &NondetExpr{Typ: t.Base.Typ, Tag: "recursion-bound:" + callee.Name}, G: t.Guard.Clone(), Kind: AssignNondet})
			}
		}
		return advance(st), nil
	}

	eq.Append(&FunctionCallMarkerStep{G: st.guard.Clone(), Function: callee.Name, Entering: true})

	frame := &Frame{
		FunctionID: callee.Name,
		ReturnTarget: instr.CallLHS,
		ReturnPC:     st.pc + 1,
		CallerPC:     st.pc,
	}
	st.PushFrame(frame)
	st.function = callee.Name

	for i, param := range callee.Params {
		st.BumpFrame(param.Name)
		base := RenameL1(param, st)
		lhs := RenameL2Write(base, st)
		var argVal Expr = &NondetExpr{Typ: param.Typ}
		if i < len(instr.Args) {
			argVal = NewCastExpr(CleanExpr(instr.Args[i], st, eq), param.Typ)
		}
		eq.Append(&AssignmentStep{LHS: lhs, RHS: argVal, G: st.guard.Clone(), Kind: AssignOrdinary})
	}

	st.pc = 0
	return &branchOutcome{Continue: st}, nil
}

// executeReturn implements section 4.6's Return case.
func executeReturn(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	frame := st.CurrentFrame()
	if frame != nil && frame.ReturnTarget != nil && instr.RHS != nil {
		rv := CleanExpr(instr.RHS, st, eq)
		targets := CleanLHS(frame.ReturnTarget, st, eq, st.guard)
		for _, t := range targets {
			lhs := RenameL2Write(t.Base, st)
			eq.Append(&AssignmentStep{LHS: lhs, RHS: t.Write(RenameL2Read(t.Base, st), rv), G: t.Guard.Clone(), Kind: AssignOrdinary})
		}
	}
	return executeEndFunction(st, eq)
}

// executeEndFunction implements section 4.6's EndFunction case.
func executeEndFunction(st *ExecutionState, eq *Equation) (*branchOutcome, error) {
	if len(st.callStack) == 0 {
		st.terminated = true
		return &branchOutcome{Done: true}, nil
	}
	frame := st.PopFrame()
	eq.Append(&FunctionCallMarkerStep{G: st.guard.Clone(), Function: frame.FunctionID, Entering: false})
	if parent := st.CurrentFrame(); parent != nil {
		st.function = parent.FunctionID
	}
	st.pc = frame.ReturnPC
	return &branchOutcome{Continue: st}, nil
}

// executeStartThread implements section 4.6's StartThread case: allocate a
// new thread-local state at the target with a fresh thread id, copying
// shared state and private renaming maps (section 3).
func executeStartThread(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	child := st.Fork()
	child.threadID = st.threadID + len(st.threads) + 1
	child.pc = instr.ThreadTarget
	eq.Append(&ThreadSpawnStep{G: st.guard.Clone(), ThreadID: child.threadID})
	st.threads = append(st.threads, child)
	return &branchOutcome{Continue: advanceOnly(st), Spawned: child}, nil
}

func advanceOnly(st *ExecutionState) *ExecutionState {
	st.pc++
	return st
}

// executeGeneric handles the no-equation-effect statement kinds (Label,
// Skip, TryCatch bookkeeping already done by ThrowPush/Pop, VaStart,
// Landingpad, CppNew/CppDelete modeled as Allocate/Free, and Trace).
func executeGeneric(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	switch instr.Kind {
	case Allocate, CppNew:
		if instr.Sym != nil {
			size := uint64(instr.Sym.Typ.Width / 8)
			if size == 0 {
				size = 8
			}
			alloc := st.Alloc(instr.Sym.Typ, size)
			base := RenameL1(instr.Sym, st)
			lhs := RenameL2Write(base, st)
			eq.Append(&AssignmentStep{LHS: lhs, RHS: &Constant{Typ: PointerTo(instr.Sym.Typ), Value: alloc.Addr}, G: st.guard.Clone(), Kind: AssignAllocate})
		}
	case CppDelete:
		if instr.RHS != nil {
			if c, ok := CleanExpr(instr.RHS, st, eq).(*Constant); ok {
				st.Free(c.Value)
			}
		}
	case Landingpad:
		// No equation effect: executeThrow already assigns the exception
		// value to the landing pad's variable (ThrowPush's ExcVar) at the
		// moment it jumps here, so Landingpad itself is just the label the
		// goto program jumps to.
	}
	return advance(st), nil
}

// executeFkt implements section 4.6's Fkt case: the intrinsic catch-all.
// Only the kinds enumerated from the retrieved CBMC fragment are given
// real semantics; anything else is logged (on every execution) and havocked (DESIGN.md's
// resolution of the open question on this family).
func executeFkt(st *ExecutionState, instr Instruction, eq *Equation) (*branchOutcome, error) {
	switch instr.FktOp {
	case FktMalloc:
		var size uint64 = 8
		if len(instr.Args) > 0 {
			if c, ok := CleanExpr(instr.Args[0], st, eq).(*Constant); ok {
				size = c.Value
			}
		}
		alloc := st.Alloc(VoidType, size)
		if instr.CallLHS != nil {
			targets := CleanLHS(instr.CallLHS, st, eq, st.guard)
			for _, t := range targets {
				lhs := RenameL2Write(t.Base, st)
				eq.Append(&AssignmentStep{LHS: lhs, RHS: &Constant{Typ: PointerTo(VoidType), Value: alloc.Addr}, G: t.Guard.Clone(), Kind: AssignAllocate})
			}
		}
	case FktFree:
		if len(instr.Args) > 0 {
			if c, ok := CleanExpr(instr.Args[0], st, eq).(*Constant); ok {
				st.Free(c.Value)
			}
		}
	case FktNondet:
		if instr.CallLHS != nil {
			targets := CleanLHS(instr.CallLHS, st, eq, st.guard)
			for _, t := range targets {
				lhs := RenameL2Write(t.Base, st)
				eq.Append(&AssignmentStep{LHS: lhs, RHS: &NondetExpr{Typ: t.Base.Typ}, G: t.Guard.Clone(), Kind: AssignNondet})
			}
		}
	case FktPrintf:
		// No effect on equation semantics (section 4.6, "Other").
	default:
		log.Printf("symex: unknown Fkt intrinsic at pc=%d; havocking", st.pc)
		if instr.CallLHS != nil {
			targets := CleanLHS(instr.CallLHS, st, eq, st.guard)
			for _, t := range targets {
				lhs := RenameL2Write(t.Base, st)
				eq.Append(&AssignmentStep{LHS: lhs, RHS: &NondetExpr{Typ: t.Base.Typ, Tag: "unknown-fkt"}, G: t.Guard.Clone(), Kind: AssignNondet})
			}
		}
	}
	return advance(st), nil
}
