package symex_test

import (
	"testing"

	"github.com/symex-go/symex"
	"github.com/symex-go/symex/memmodel"
)

func newEngine() *symex.Engine {
	return &symex.Engine{
		Config:         symex.DefaultConfig(),
		NewValueSet:    func() symex.ValueSet { return memmodel.NewStore() },
		NewSymbolTable: func() symex.SymbolTable { return memmodel.NewSymbolTable() },
	}
}

// TestEngineRun_StraightLine exercises Decl/Assign/Return with no branches,
// so it stays clear of the merge-bucket machinery exercised by
// TestEngineRun_IfElse below.
func TestEngineRun_StraightLine(t *testing.T) {
	y := &symex.Symbol{Name: "y", Typ: symex.Int32Type}

	fn := &symex.GotoFunction{
		Name: "Straight",
		Body: []symex.Instruction{
			{Kind: symex.Decl, Sym: y},
			{Kind: symex.Assign, LHS: y, RHS: symex.IntConst(42, symex.Int32Type)},
			{Kind: symex.Return, RHS: y},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Straight": fn}, Entry: "Straight"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("Straight")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	steps := eq.Steps()
	if len(steps) != 2 {
		t.Fatalf("len(steps)=%d, want 2: %v", len(steps), steps)
	}

	decl, ok := steps[0].(*symex.AssignmentStep)
	if !ok || decl.Kind != symex.AssignNondet {
		t.Fatalf("steps[0] = %#v, want AssignNondet AssignmentStep", steps[0])
	}
	if _, ok := decl.RHS.(*symex.NondetExpr); !ok {
		t.Fatalf("Decl RHS = %v, want NondetExpr", decl.RHS)
	}

	assign, ok := steps[1].(*symex.AssignmentStep)
	if !ok || assign.Kind != symex.AssignOrdinary {
		t.Fatalf("steps[1] = %#v, want AssignOrdinary AssignmentStep", steps[1])
	}
	c, ok := assign.RHS.(*symex.Constant)
	if !ok || c.Value != 42 {
		t.Fatalf("Assign RHS = %v, want constant 42", assign.RHS)
	}
	if assign.LHS.Version <= decl.LHS.Version {
		t.Fatalf("Assign's L2 version %d did not advance past Decl's %d", assign.LHS.Version, decl.LHS.Version)
	}
}

// TestEngineRun_IfElse exercises the two-sequential-Goto if/else shape that
// frontend/gossa's lowerIf emits, driving the forward-goto merge-bucket
// protocol in controller.go end to end: both branches must run and rejoin
// at the merge point with a phi for x.
func TestEngineRun_IfElse(t *testing.T) {
	x := &symex.Symbol{Name: "x", Typ: symex.Int32Type}
	p := &symex.Symbol{Name: "p", Typ: symex.Int32Type, IsGlobal: true}

	cond := symex.NewBinaryExpr(symex.Sgt, p, symex.IntConst(0, symex.Int32Type), symex.BoolType)
	notCond := symex.NewUnaryExpr(symex.LogNot, cond, symex.BoolType)

	// pc layout:
	// 0: Decl x
	// 1: Goto(notCond) -> 4 (else)
	// 2: Assign x = 1   (then)
	// 3: Goto(true) -> 5 (skip over else)
	// 4: Assign x = 2   (else)
	// 5: Return x
	fn := &symex.GotoFunction{
		Name: "IfElse",
		Body: []symex.Instruction{
			{Kind: symex.Decl, Sym: x},
			{Kind: symex.Goto, Cond: notCond, Target: 4},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(1, symex.Int32Type)},
			{Kind: symex.Goto, Cond: symex.True, Target: 5},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(2, symex.Int32Type)},
			{Kind: symex.Return, RHS: x},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"IfElse": fn}, Entry: "IfElse"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("IfElse")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawThenAssign, sawElseAssign, sawPhi bool
	for _, step := range eq.Steps() {
		a, ok := step.(*symex.AssignmentStep)
		if !ok {
			continue
		}
		switch {
		case a.Kind == symex.AssignOrdinary:
			if c, ok := a.RHS.(*symex.Constant); ok {
				switch c.Value {
				case 1:
					sawThenAssign = true
				case 2:
					sawElseAssign = true
				}
			}
		case a.Kind == symex.AssignPhi:
			sawPhi = true
		}
	}

	if !sawThenAssign {
		t.Error("then-branch assignment (x = 1) never executed; forward-goto bucket starved")
	}
	if !sawElseAssign {
		t.Error("else-branch assignment (x = 2) never executed; forward-goto bucket starved")
	}
	if !sawPhi {
		t.Error("expected a phi AssignmentStep merging the two branches")
	}
}

// TestEngineRun_RecursionBoundZero exercises section 8's boundary behavior
// for recursion directly: a bound of 0 on a function calling itself
// produces exactly one call and no nested call frame, the rest havocked.
func TestEngineRun_RecursionBoundZero(t *testing.T) {
	r2 := &symex.Symbol{Name: "r2", Typ: symex.Int32Type}
	r := &symex.Symbol{Name: "r", Typ: symex.Int32Type}

	fun := &symex.GotoFunction{
		Name: "Fun",
		Body: []symex.Instruction{
			{Kind: symex.FunctionCall, Function: "Fun", CallLHS: r2},
			{Kind: symex.Return, RHS: symex.NewBinaryExpr(symex.Add, r2, symex.IntConst(1, symex.Int32Type), symex.Int32Type)},
		},
	}
	main := &symex.GotoFunction{
		Name: "Main",
		Body: []symex.Instruction{
			{Kind: symex.FunctionCall, Function: "Fun", CallLHS: r},
			{Kind: symex.EndFunction},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Fun": fun, "Main": main}, Entry: "Main"}

	engine := newEngine()
	engine.Program = prog
	engine.Config.RecursionBound = 0

	eq, err := engine.Run("Main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	callMarkers, havocs := 0, 0
	for _, step := range eq.Steps() {
		switch s := step.(type) {
		case *symex.FunctionCallMarkerStep:
			if s.Entering {
				callMarkers++
			}
		case *symex.AssignmentStep:
			if nd, ok := s.RHS.(*symex.NondetExpr); ok && nd.Tag == "recursion-bound:Fun" {
				havocs++
			}
		}
	}
	if callMarkers != 1 {
		t.Fatalf("entering call markers = %d, want exactly 1 (the recursive call must not push a second frame)", callMarkers)
	}
	if havocs != 1 {
		t.Fatalf("recursion-bound havocs = %d, want exactly 1", havocs)
	}
}

// TestEngineRun_LoopUnwindBoundEmitsAssertion exercises the loop unwind
// bound with UnwindingAssertions on (section 4.10): two taken back-edges
// within bound, a third that breaches it and emits an unwinding assertion
// instead of silently havocking the loop.
func TestEngineRun_LoopUnwindBoundEmitsAssertion(t *testing.T) {
	n := &symex.Symbol{Name: "n", Typ: symex.Int32Type}
	i := &symex.Symbol{Name: "i", Typ: symex.Int32Type}

	cond := symex.NewBinaryExpr(symex.Slt, i, n, symex.BoolType)
	notCond := symex.NewUnaryExpr(symex.LogNot, cond, symex.BoolType)

	// pc layout:
	// 0: Decl n
	// 1: Decl i
	// 2: Assign i = 0
	// 3: Goto(notCond) -> 6   (skip the loop entirely if i<n is already false)
	// 4: Assign i = i+1
	// 5: Goto(cond) -> 4      (back-edge, loop head is pc 4)
	// 6: Return i
	fn := &symex.GotoFunction{
		Name: "Loop",
		Body: []symex.Instruction{
			{Kind: symex.Decl, Sym: n},
			{Kind: symex.Decl, Sym: i},
			{Kind: symex.Assign, LHS: i, RHS: symex.IntConst(0, symex.Int32Type)},
			{Kind: symex.Goto, Cond: notCond, Target: 6},
			{Kind: symex.Assign, LHS: i, RHS: symex.NewBinaryExpr(symex.Add, i, symex.IntConst(1, symex.Int32Type), symex.Int32Type)},
			{Kind: symex.Goto, Cond: cond, Target: 4},
			{Kind: symex.Return, RHS: i},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Loop": fn}, Entry: "Loop"}

	engine := newEngine()
	engine.Program = prog
	engine.Config.UnwindingAssertions = true
	engine.Config.UnwindBounds = map[int]int{4: 2}

	eq, err := engine.Run("Loop")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawUnwindAssert bool
	for _, step := range eq.Steps() {
		if a, ok := step.(*symex.AssertStep); ok && a.PropertyID == "unwind-bound" {
			sawUnwindAssert = true
		}
	}
	if !sawUnwindAssert {
		t.Error("expected an unwinding assertion once the loop's unwind bound was exceeded")
	}
}

// TestEngineRun_PointerDerefTwoTargetLadder exercises CleanLHS's dereference
// ladder (section 4.5 step 3): p is assigned &a in one branch and &b in the
// other, merges to a two-target value-set at the join point, and *p = 5
// must emit one guarded assignment per target.
func TestEngineRun_PointerDerefTwoTargetLadder(t *testing.T) {
	a := &symex.Symbol{Name: "a", Typ: symex.Int32Type}
	b := &symex.Symbol{Name: "b", Typ: symex.Int32Type}
	p := &symex.Symbol{Name: "p", Typ: symex.PointerTo(symex.Int32Type)}
	c := &symex.Symbol{Name: "c", Typ: symex.Int32Type, IsGlobal: true}
	ptrTyp := symex.PointerTo(symex.Int32Type)

	cond := symex.NewBinaryExpr(symex.Sgt, c, symex.IntConst(0, symex.Int32Type), symex.BoolType)
	notCond := symex.NewUnaryExpr(symex.LogNot, cond, symex.BoolType)

	// pc layout:
	// 0: Decl a
	// 1: Decl b
	// 2: Decl p
	// 3: Goto(notCond) -> 6   (else)
	// 4: Assign p = &a        (then)
	// 5: Goto(true) -> 7      (skip over else)
	// 6: Assign p = &b        (else)
	// 7: Assign *p = 5        (merge point: value-set of p is {a, b} here)
	fn := &symex.GotoFunction{
		Name: "DerefLadder",
		Body: []symex.Instruction{
			{Kind: symex.Decl, Sym: a},
			{Kind: symex.Decl, Sym: b},
			{Kind: symex.Decl, Sym: p},
			{Kind: symex.Goto, Cond: notCond, Target: 6},
			{Kind: symex.Assign, LHS: p, RHS: &symex.AddressOfExpr{Operand: a, Typ: ptrTyp}},
			{Kind: symex.Goto, Cond: symex.True, Target: 7},
			{Kind: symex.Assign, LHS: p, RHS: &symex.AddressOfExpr{Operand: b, Typ: ptrTyp}},
			{Kind: symex.Assign, LHS: &symex.DerefExpr{Ptr: p, Typ: symex.Int32Type}, RHS: symex.IntConst(5, symex.Int32Type)},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"DerefLadder": fn}, Entry: "DerefLadder"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("DerefLadder")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	writesA, writesB := 0, 0
	for _, step := range eq.Steps() {
		asg, ok := step.(*symex.AssignmentStep)
		if !ok || asg.Kind != symex.AssignOrdinary {
			continue
		}
		switch asg.LHS.Name {
		case "a":
			writesA++
		case "b":
			writesB++
		}
	}
	if writesA == 0 || writesB == 0 {
		t.Fatalf("expected guarded writes to both a and b from the two-target dereference ladder, got a=%d b=%d", writesA, writesB)
	}
}

// TestEngineRun_ThreadSpawnInterleavingMarker exercises StartThread (section
// 4.6): the spawn itself becomes a ThreadSpawnStep marker, and each thread's
// write to the shared variable x lands in the equation as its own
// independent assignment rather than being merged away.
func TestEngineRun_ThreadSpawnInterleavingMarker(t *testing.T) {
	x := &symex.Symbol{Name: "x", Typ: symex.Int32Type, IsGlobal: true}

	// pc layout:
	// 0: StartThread -> 3
	// 1: Assign x = 2   (main)
	// 2: EndThread
	// 3: Assign x = 1   (spawned thread)
	// 4: EndThread
	fn := &symex.GotoFunction{
		Name: "Threaded",
		Body: []symex.Instruction{
			{Kind: symex.StartThread, ThreadTarget: 3},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(2, symex.Int32Type)},
			{Kind: symex.EndThread},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(1, symex.Int32Type)},
			{Kind: symex.EndThread},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Threaded": fn}, Entry: "Threaded"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("Threaded")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sawSpawn, spawnIdx, writesToX := false, -1, 0
	for i, step := range eq.Steps() {
		switch s := step.(type) {
		case *symex.ThreadSpawnStep:
			sawSpawn = true
			spawnIdx = i
		case *symex.AssignmentStep:
			if s.LHS.Name == "x" {
				writesToX++
			}
		}
	}
	if !sawSpawn {
		t.Fatal("expected a ThreadSpawnStep interleaving marker")
	}
	if writesToX != 2 {
		t.Fatalf("writesToX = %d, want 2 (one per thread)", writesToX)
	}
	if spawnIdx != 0 {
		t.Fatalf("ThreadSpawnStep at index %d, want 0 (emitted before either thread's write)", spawnIdx)
	}
}

// stackStorage is a minimal LIFO PathStorage, grounded on the same shape as
// glee's DFSSearcher, for exercising path-exploration pause/resume.
type stackStorage struct {
	states []*symex.ExecutionState
}

func (s *stackStorage) Push(st *symex.ExecutionState) { s.states = append(s.states, st) }

func (s *stackStorage) Pop() (*symex.ExecutionState, bool) {
	if len(s.states) == 0 {
		return nil, false
	}
	st := s.states[len(s.states)-1]
	s.states = s.states[:len(s.states)-1]
	return st, true
}

func (s *stackStorage) Len() int { return len(s.states) }

// TestEngineRun_PathExplorationPauseResume exercises section 4.9's
// branch-pause protocol: on the first branch, the engine stashes the taken
// successor in Storage and returns with ShouldPauseSymex set instead of
// exploring it inline; Resume on the stashed state appends its effects to
// the same equation.
func TestEngineRun_PathExplorationPauseResume(t *testing.T) {
	x := &symex.Symbol{Name: "x", Typ: symex.Int32Type}
	c := &symex.Symbol{Name: "c", Typ: symex.Int32Type, IsGlobal: true}

	cond := symex.NewBinaryExpr(symex.Sgt, c, symex.IntConst(0, symex.Int32Type), symex.BoolType)
	notCond := symex.NewUnaryExpr(symex.LogNot, cond, symex.BoolType)

	// pc layout:
	// 0: Decl x
	// 1: Goto(notCond) -> 4
	// 2: Assign x = 1
	// 3: EndFunction
	// 4: Assign x = 2
	fn := &symex.GotoFunction{
		Name: "Branchy",
		Body: []symex.Instruction{
			{Kind: symex.Decl, Sym: x},
			{Kind: symex.Goto, Cond: notCond, Target: 4},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(1, symex.Int32Type)},
			{Kind: symex.EndFunction},
			{Kind: symex.Assign, LHS: x, RHS: symex.IntConst(2, symex.Int32Type)},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Branchy": fn}, Entry: "Branchy"}

	storage := &stackStorage{}
	engine := newEngine()
	engine.Program = prog
	engine.Config.DoingPathExploration = true
	engine.Storage = storage

	eq, err := engine.Run("Branchy")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !engine.ShouldPauseSymex() {
		t.Fatal("expected ShouldPauseSymex after the first branch in path-exploration mode")
	}
	if storage.Len() != 1 {
		t.Fatalf("storage.Len() = %d, want 1", storage.Len())
	}
	prefixLen := eq.Len()

	saved, ok := storage.Pop()
	if !ok {
		t.Fatal("expected a stashed state to resume from")
	}
	engine.Resume(saved, eq)

	if engine.ShouldPauseSymex() {
		t.Fatal("expected ShouldPauseSymex to clear once the stashed branch ran to completion")
	}
	if eq.Len() <= prefixLen {
		t.Fatal("expected Resume to append the stashed branch's steps to the same equation")
	}
}

// TestEngineRun_ThrowAssignsLandingPadVariable exercises Throw/ThrowPush/
// ThrowPop/Landingpad end to end: the instruction between the throw and its
// landing pad must never execute, and the thrown value must reach the
// landing pad's exception variable.
func TestEngineRun_ThrowAssignsLandingPadVariable(t *testing.T) {
	exc := &symex.Symbol{Name: "exc", Typ: symex.Int32Type}
	result := &symex.Symbol{Name: "result", Typ: symex.Int32Type}

	// pc layout:
	// 0: ThrowPush(target=3, exc)
	// 1: Throw 7
	// 2: Assign result = 0   (must be skipped)
	// 3: Landingpad(exc)
	// 4: ThrowPop
	// 5: Return exc
	fn := &symex.GotoFunction{
		Name: "ThrowCatch",
		Body: []symex.Instruction{
			{Kind: symex.ThrowPush, Target: 3, Sym: exc},
			{Kind: symex.Throw, RHS: symex.IntConst(7, symex.Int32Type)},
			{Kind: symex.Assign, LHS: result, RHS: symex.IntConst(0, symex.Int32Type)},
			{Kind: symex.Landingpad, Sym: exc},
			{Kind: symex.ThrowPop},
			{Kind: symex.Return, RHS: exc},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"ThrowCatch": fn}, Entry: "ThrowCatch"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("ThrowCatch")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawExcAssign bool
	for _, step := range eq.Steps() {
		a, ok := step.(*symex.AssignmentStep)
		if !ok || a.LHS.Name != "exc" {
			continue
		}
		if c, ok := a.RHS.(*symex.Constant); ok && c.Value == 7 {
			sawExcAssign = true
		}
	}
	if !sawExcAssign {
		t.Fatal("expected the thrown value 7 to be assigned to the landing pad's exception variable")
	}

	for _, step := range eq.Steps() {
		if a, ok := step.(*symex.AssignmentStep); ok && a.LHS.Name == "result" {
			t.Fatal("the instruction between throw and its landing pad must never execute")
		}
	}
}

// TestEngineRun_StringBuiltinConcatFolds exercises the string-builtin
// constant folder wired into executeAssign (section 4.6): concat of two
// constant character arrays must materialize a length/data pair rather than
// being left as an unresolved FunctionAppExpr.
func TestEngineRun_StringBuiltinConcatFolds(t *testing.T) {
	charTyp := symex.Type{Kind: symex.TypeArray, Elem: &symex.Int8Type, Len: 1}
	a := &symex.ArrayConst{Typ: charTyp, Elems: []*symex.Constant{symex.IntConst('h', symex.Int8Type)}}
	b := &symex.ArrayConst{Typ: charTyp, Elems: []*symex.Constant{symex.IntConst('i', symex.Int8Type)}}

	s := &symex.Symbol{Name: "s", Typ: charTyp}
	fn := &symex.GotoFunction{
		Name: "Concat",
		Body: []symex.Instruction{
			{Kind: symex.Assign, LHS: s, RHS: &symex.FunctionAppExpr{Function: "concat", Args: []symex.Expr{a, b}, Typ: charTyp}},
		},
	}
	prog := &symex.GotoProgram{Functions: map[string]*symex.GotoFunction{"Concat": fn}, Entry: "Concat"}

	engine := newEngine()
	engine.Program = prog

	eq, err := engine.Run("Concat")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sawData, sawLength bool
	for _, step := range eq.Steps() {
		asg, ok := step.(*symex.AssignmentStep)
		if !ok {
			continue
		}
		if ac, ok := asg.RHS.(*symex.ArrayConst); ok && len(ac.Elems) == 2 {
			sawData = true
		}
		if c, ok := asg.RHS.(*symex.Constant); ok && c.Value == 2 {
			sawLength = true
		}
	}
	if !sawData {
		t.Error("expected concat to fold into a 2-element ArrayConst assignment")
	}
	if !sawLength {
		t.Error("expected the materialized string object's length field to be assigned 2")
	}
}
