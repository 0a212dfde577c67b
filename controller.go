package symex

import "fmt"

// Engine is the path-exploration controller (section 4.9, C9): it drives
// the instruction interpreter, decides merge vs. fork at branches, and
// enforces the depth/unwind/recursion limits. It corresponds to the
// drive loop in glee's Executor.ExecuteNextState, generalized from a
// single implicit searcher to an explicit PathStorage.
type Engine struct {
	Program *GotoProgram
	Config  Config

	// Storage backs path-exploration mode (Config.DoingPathExploration).
	// It is unused, and may be nil, in single-path mode.
	Storage PathStorage

	// NewValueSet and NewSymbolTable construct the opaque collaborators
	// for a fresh run. The engine never hard-codes a concrete
	// implementation; callers typically pass memmodel.NewStore and
	// memmodel.NewSymbolTable.
	NewValueSet    func() ValueSet
	NewSymbolTable func() SymbolTable

	shouldPauseSymex bool
	totalSteps       int
}

// ShouldPauseSymex reports whether the last Run/Resume call returned with
// Storage non-empty and path-exploration mode on (section 5, "the only
// place the engine yields to its caller").
func (e *Engine) ShouldPauseSymex() bool { return e.shouldPauseSymex }

// Init creates the initial state for entry and returns it without
// scheduling it anywhere, for callers that want initialize_from_entry_point
// / resume semantics (section 6) rather than a single blocking Run.
func (e *Engine) Init(entry string) (*ExecutionState, error) {
	if _, ok := e.Program.Lookup(entry); !ok {
		return nil, fmt.Errorf("symex: entry function %q not found", entry)
	}
	st := NewExecutionState(e.Config, e.NewValueSet(), e.NewSymbolTable())
	st.function = entry
	return st, nil
}

// Run executes the whole program from entry to completion (section 6,
// symex_from_entry_point) and returns the resulting equation. Invariant
// violations raised via assert() are recovered here and returned as an
// error rather than allowed to escape as a panic (section 7, rule 3).
func (e *Engine) Run(entry string) (eq *Equation, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InvariantError); ok {
				err = ie
				return
			}
			panic(r)
		}
	}()

	initial, err := e.Init(entry)
	if err != nil {
		return nil, err
	}
	eq = NewEquation()
	e.drive(eq, []*ExecutionState{initial})
	return eq, nil
}

// Resume continues a previously paused path-exploration run, appending to
// the same equation (section 6, resume).
func (e *Engine) Resume(saved *ExecutionState, eq *Equation) {
	e.drive(eq, []*ExecutionState{saved})
}

// Step advances state by exactly one instruction, for use by tests
// (section 6, step). It does not participate in merge-bucket or
// path-storage bookkeeping; callers doing single-step testing are
// expected to handle branches themselves.
func (e *Engine) Step(st *ExecutionState, eq *Equation, cs catchStacks) (*branchOutcome, error) {
	fn, ok := e.Program.Lookup(st.function)
	if !ok {
		return nil, fmt.Errorf("symex: function %q not found", st.function)
	}
	if st.pc >= len(fn.Body) {
		return &branchOutcome{Done: true}, nil
	}
	return executeInstruction(st, fn, eq, e.Program.Lookup, cs)
}

// drive runs the worklist to completion, implementing the two modes of
// section 4.9 and the forward-goto merge-bucket protocol of section 4.8.
func (e *Engine) drive(eq *Equation, initial []*ExecutionState) {
	work := append([]*ExecutionState{}, initial...)
	buckets := map[int][]*ExecutionState{}
	cs := catchStacks{}
	e.shouldPauseSymex = false

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		for {
			if !cur.reachable || cur.terminated {
				break
			}
			if e.Config.MaxDepth > 0 && e.totalSteps >= e.Config.MaxDepth {
				eq.Append(&AssumeStep{G: cur.guard.Clone(), Cond: False})
				break
			}

			if !e.Config.DoingPathExploration {
				if pending := buckets[cur.pc]; len(pending) > 0 {
					delete(buckets, cur.pc)
					cur = Merge(append(pending, cur), eq)
				}
			}

			fn, ok := e.Program.Lookup(cur.function)
			if !ok || cur.pc >= len(fn.Body) {
				break
			}

			outcome, err := executeInstruction(cur, fn, eq, e.Program.Lookup, cs)
			if err != nil {
				return
			}
			e.totalSteps++

			if outcome.Spawned != nil {
				work = append(work, outcome.Spawned)
			}
			if outcome.Stash != nil {
				if e.Config.DoingPathExploration && e.Storage != nil {
					e.Storage.Push(outcome.Stash)
				} else {
					buckets[outcome.Stash.pc] = append(buckets[outcome.Stash.pc], outcome.Stash)
				}
			}
			if outcome.Done || outcome.Continue == nil {
				break
			}
			cur = outcome.Continue
		}

		if e.Config.DoingPathExploration && e.Storage != nil && len(work) == 0 {
			if e.Storage.Len() > 0 {
				e.shouldPauseSymex = true
				return
			}
		}

		// A forward goto's taken branch is stashed in buckets keyed by its
		// target pc rather than pushed onto work, so that a state which
		// later reaches that pc by fall-through can merge with it instead
		// of forking (section 4.8). If work empties out before any state
		// happens to fall through to a pending bucket - e.g. an
		// unconditional goto's own fallthrough is immediately unreachable,
		// as in the two-goto if/else lowering - the bucket would otherwise
		// never be revisited. Drain the earliest-targeted bucket here so
		// its merged state gets its own turn on the worklist.
		if !e.Config.DoingPathExploration && len(work) == 0 {
			if pc, ok := nextBucketPC(buckets); ok {
				pending := buckets[pc]
				delete(buckets, pc)
				work = append(work, Merge(pending, eq))
			}
		}
	}
}

// nextBucketPC returns the lowest pc with a pending bucket, for
// deterministic drain order, and false if buckets is empty.
func nextBucketPC(buckets map[int][]*ExecutionState) (int, bool) {
	first := true
	var best int
	for pc := range buckets {
		if first || pc < best {
			best = pc
			first = false
		}
	}
	return best, !first
}
