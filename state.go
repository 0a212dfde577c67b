package symex

import (
	"github.com/benbjohnson/immutable"
)

// Frame is a call-stack entry (section 3, "Frame"): created on function
// entry, mutated during body execution, destroyed on EndFunction.
type Frame struct {
	FunctionID   string
	ReturnTarget Expr // LHS to receive the callee's return value; nil if discarded
	ReturnPC     int
	CallerPC     int
	KilledOnExit []L1Key // locals to Dead when the frame pops
	CatchDepth   int
}

// loopKey is the (loop-head pc, call-stack hash) key loop_iterations is
// indexed by (section 3).
type loopKey struct {
	head      int
	stackHash uint64
}

// Allocation records one live or freed heap object, addressed by its base
// address in the engine's flat symbolic address space. Grounded on
// glee/execution_state.go's heap of *Allocation entries keyed in an
// immutable.SortedMap.
type Allocation struct {
	Addr uint64
	Size uint64
	Typ  Type
	Live bool
}

// uint64ComparerFunc adapts uint64Comparer to immutable.Comparer, since
// this version of the immutable package has no ComparerFunc helper.
type uint64ComparerFunc func(a, b interface{}) int

func (f uint64ComparerFunc) Compare(a, b interface{}) int { return f(a, b) }

func uint64Comparer(a, b interface{}) int {
	x, y := a.(uint64), b.(uint64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// ExecutionState is the per-thread mutable carrier threaded through every
// component (section 3, "Execution state"; section 4.4, C5). A single
// active thread progresses at a time; Threads holds the others.
type ExecutionState struct {
	id int

	pc       int
	guard    *Guard
	threadID int
	function string // currently executing function, for loop/recursion keys

	level1    map[L1Key]int
	level2    map[L1Key]int
	constProp map[L1Key]Expr
	types     map[L1Key]Type // type of each known L1 symbol, for building merge.go's phi ladders

	valueSet  ValueSet
	callStack []*Frame

	loopIterations map[loopKey]int
	recursionDepth map[string]int

	atomicSection int

	heap     *immutable.SortedMap
	nextAddr uint64

	symtab SymbolTable

	reachable bool
	terminated bool

	threads []*ExecutionState // program threads spawned from this state by StartThread

	// pendingKills accumulates instruction-local symbols (lift-lets
	// auxiliaries) introduced while cleaning the current instruction's
	// expressions. executeAssign clears the list (flushKills) after its own
	// step is emitted; no equation step is emitted for the killed symbols,
	// and other instructions leave the list as it is.
	pendingKills []L1Key

	Config Config
}

// addPendingKill records an instruction-local symbol to be killed at the
// end of the current instruction.
func (st *ExecutionState) addPendingKill(key L1Key) {
	st.pendingKills = append(st.pendingKills, key)
}

// flushPendingKills returns and clears the accumulated instruction-local
// kill list.
func (st *ExecutionState) flushPendingKills() []L1Key {
	out := st.pendingKills
	st.pendingKills = nil
	return out
}

var nextStateID int

// NewExecutionState creates an initial state at pc 0, with a fresh
// value-set and symbol table; the caller sets the function to run.
func NewExecutionState(cfg Config, vs ValueSet, symtab SymbolTable) *ExecutionState {
	nextStateID++
	return &ExecutionState{
		id:             nextStateID,
		guard:          NewGuard(),
		level1:         make(map[L1Key]int),
		level2:         make(map[L1Key]int),
		constProp:      make(map[L1Key]Expr),
		types:          make(map[L1Key]Type),
		valueSet:       vs,
		loopIterations: make(map[loopKey]int),
		recursionDepth: make(map[string]int),
		heap:           immutable.NewSortedMap(uint64ComparerFunc(uint64Comparer)),
		nextAddr:       1,
		symtab:         symtab,
		reachable:      true,
		Config:         cfg,
	}
}

func (st *ExecutionState) ID() int         { return st.id }
func (st *ExecutionState) PC() int         { return st.pc }
func (st *ExecutionState) SetPC(pc int)    { st.pc = pc }
func (st *ExecutionState) Guard() *Guard   { return st.guard }
func (st *ExecutionState) Reachable() bool { return st.reachable }
func (st *ExecutionState) Terminated() bool { return st.terminated }
func (st *ExecutionState) ThreadID() int   { return st.threadID }
func (st *ExecutionState) ValueSet() ValueSet { return st.valueSet }
func (st *ExecutionState) CallStack() []*Frame { return st.callStack }

// MarkUnreachable sets reachable=false, e.g. when Assume(false) is hit.
func (st *ExecutionState) MarkUnreachable() { st.reachable = false }

// PushFrame pushes f onto the call stack (function-call entry).
func (st *ExecutionState) PushFrame(f *Frame) {
	st.callStack = append(st.callStack, f)
	st.recursionDepth[f.FunctionID]++
}

// PopFrame pops and returns the top call-stack frame (EndFunction).
func (st *ExecutionState) PopFrame() *Frame {
	n := len(st.callStack)
	assert(n > 0, "PopFrame: empty call stack")
	f := st.callStack[n-1]
	st.callStack = st.callStack[:n-1]
	st.recursionDepth[f.FunctionID]--
	return f
}

// CurrentFrame returns the top of the call stack, or nil if empty (i.e.
// execution is in the entry function).
func (st *ExecutionState) CurrentFrame() *Frame {
	if len(st.callStack) == 0 {
		return nil
	}
	return st.callStack[len(st.callStack)-1]
}

// stackHash is a cheap, deterministic summary of the call stack used as
// the loop_iterations/recursion key context, so the same loop head in two
// different call contexts is tracked independently.
func (st *ExecutionState) stackHash() uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, f := range st.callStack {
		for _, c := range f.FunctionID {
			h ^= uint64(c)
			h *= 1099511628211
		}
		h ^= uint64(f.ReturnPC)
		h *= 1099511628211
	}
	return h
}

// LoopIterationCount returns the current unwind count at loop head pc in
// the current call-stack context, without incrementing it.
func (st *ExecutionState) LoopIterationCount(head int) int {
	return st.loopIterations[loopKey{head: head, stackHash: st.stackHash()}]
}

// BumpLoopIteration increments and returns the unwind count at loop head pc
// in the current call-stack context (section 4.10).
func (st *ExecutionState) BumpLoopIteration(head int) int {
	k := loopKey{head: head, stackHash: st.stackHash()}
	st.loopIterations[k]++
	return st.loopIterations[k]
}

// RecursionDepth returns the current nesting depth of calls into fn.
func (st *ExecutionState) RecursionDepth(fn string) int { return st.recursionDepth[fn] }

// Alloc reserves size bytes of fresh address space for a new object of
// type typ and records it live in the heap table, grounded on
// glee/execution_state.go's Alloc/nextAddr bump allocator.
func (st *ExecutionState) Alloc(typ Type, size uint64) *Allocation {
	addr := st.nextAddr
	st.nextAddr += size
	if st.nextAddr == 0 {
		st.nextAddr = 1
	}
	a := &Allocation{Addr: addr, Size: size, Typ: typ, Live: true}
	st.heap = st.heap.Set(addr, a)
	return a
}

// Free marks the allocation at addr dead; it does not remove it from the
// heap table, matching copy-on-write semantics shared across forked
// states.
func (st *ExecutionState) Free(addr uint64) {
	if v, ok := st.heap.Get(addr); ok {
		a := *(v.(*Allocation))
		a.Live = false
		st.heap = st.heap.Set(addr, &a)
	}
}

// Fork returns a deep-enough copy of st for path exploration (section 4.4:
// "deep copy ... copy-on-write where practical on renaming tables"). The
// immutable.SortedMap heap is shared structurally (O(1) to fork); the
// level1/level2/constProp maps and call stack, being plain Go maps/slices,
// are copied shallowly-but-independently so mutmutating one fork's map
// never affects the other's.
func (st *ExecutionState) Fork() *ExecutionState {
	nextStateID++
	out := *st
	out.id = nextStateID
	out.guard = st.guard.Clone()
	out.level1 = copyIntMap(st.level1)
	out.level2 = copyIntMap(st.level2)
	out.constProp = copyExprMap(st.constProp)
	out.types = copyTypeMap(st.types)
	out.loopIterations = make(map[loopKey]int, len(st.loopIterations))
	for k, v := range st.loopIterations {
		out.loopIterations[k] = v
	}
	out.recursionDepth = copyIntMapStr(st.recursionDepth)
	out.callStack = make([]*Frame, len(st.callStack))
	copy(out.callStack, st.callStack)
	out.valueSet = st.valueSet.Clone()
	out.symtab = st.symtab.Clone()
	return &out
}

func copyIntMap(m map[L1Key]int) map[L1Key]int {
	out := make(map[L1Key]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMapStr(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyExprMap(m map[L1Key]Expr) map[L1Key]Expr {
	out := make(map[L1Key]Expr, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTypeMap(m map[L1Key]Type) map[L1Key]Type {
	out := make(map[L1Key]Type, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SwitchThread saves the active thread's state into Threads and activates
// the thread with the given id, per section 4.4's switch_thread. The
// caller (the controller) is responsible for scheduling policy; this only
// performs the mechanical save/restore.
func (st *ExecutionState) SwitchThread(id int) {
	for _, t := range st.threads {
		if t.threadID == id {
			st.pc, t.pc = t.pc, st.pc
			st.guard, t.guard = t.guard, st.guard
			st.threadID, t.threadID = t.threadID, st.threadID
			st.level1, t.level1 = t.level1, st.level1
			st.level2, t.level2 = t.level2, st.level2
			st.constProp, t.constProp = t.constProp, st.constProp
			st.callStack, t.callStack = t.callStack, st.callStack
			st.function, t.function = t.function, st.function
			return
		}
	}
}
