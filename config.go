package symex

// Config is the symbolic execution engine's configuration record, grounded
// on CBMC's symex_configt (confirmed against
// _examples/original_source/src/goto-symex/goto_symex.h) and on the
// specification's Configuration table (section 6). The CLI in cmd/symex
// runs with DefaultConfig; none of its flags set these fields.
type Config struct {
	// MaxDepth caps the number of instructions an Engine executes, counted
	// across all paths (the count lives on the Engine and is not reset
	// between runs); once it is reached, each path still being driven is
	// cut off with an Assume(false). 0 means unlimited.
	MaxDepth int

	// DoingPathExploration enables branch-pause mode (section 4.9).
	DoingPathExploration bool

	// AllowPointerUnsoundness suppresses the dereference-failure assertion
	// described in section 4.11.
	AllowPointerUnsoundness bool

	// ConstantPropagation enables the L2-rewrite via the constant
	// propagation map (section 4.1).
	ConstantPropagation bool

	// SelfLoopsToAssumptions rewrites a true self-loop's taken back-edge to
	// Assume(false) once its unwind bound is exceeded, ahead of the
	// UnwindingAssertions and PartialLoops handling; see DESIGN.md for the
	// interaction with PartialLoops.
	SelfLoopsToAssumptions bool

	// SimplifyOpt runs Simplify on every renamed expression before it is
	// emitted.
	SimplifyOpt bool

	// UnwindingAssertions emits an Assert at an unwind-bound breach instead
	// of a silent Assume(false) (section 4.10).
	UnwindingAssertions bool

	// PartialLoops allows continuation past the unwind bound without taking
	// the back-edge (section 4.10).
	PartialLoops bool

	// RunValidationChecks enables extra invariant checks in L2 renaming
	// (RenameL2Write). The engine does not call Equation.Validate; that
	// check is left to the equation's consumer.
	RunValidationChecks bool

	// ShowSymexSteps traces each step to the configured logger as it is
	// emitted.
	ShowSymexSteps bool

	// DebugLevel raises the verbosity of the ShowSymexSteps trace in
	// interpret.go's executeInstruction: 2 and above additionally logs the
	// raw instruction fields for every step. It has no effect when
	// ShowSymexSteps is off.
	DebugLevel int

	// DefaultUnwindBound bounds back-edges whose loop head has no entry in
	// UnwindBounds; recursive calls are bounded by RecursionBound instead.
	// A negative value means unbounded.
	DefaultUnwindBound int

	// UnwindBounds overrides DefaultUnwindBound per loop-head pc.
	UnwindBounds map[int]int

	// RecursionBound analogously bounds function-call nesting depth for a
	// function calling itself, directly or through others; a negative value
	// means unbounded.
	RecursionBound int
}

// DefaultConfig returns the configuration single-path, fully-unwound mode
// uses by default: bounded only by an unwind/recursion bound of 64,
// constant propagation and simplification on, path exploration off.
func DefaultConfig() Config {
	return Config{
		MaxDepth:               0,
		ConstantPropagation:    true,
		SimplifyOpt:            true,
		DefaultUnwindBound:     64,
		RecursionBound:         64,
		UnwindBounds:           map[int]int{},
	}
}

func (c *Config) unwindBound(head int) int {
	if c.UnwindBounds != nil {
		if b, ok := c.UnwindBounds[head]; ok {
			return b
		}
	}
	return c.DefaultUnwindBound
}
