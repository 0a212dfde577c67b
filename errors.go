package symex

import (
	"errors"
	"fmt"
)

// Widths of the scalar types the interpreter understands, in bits.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	// ErrNoStateAvailable names the condition of no path remaining to be
	// explored. The controller does not return it: Run and Resume simply
	// return nil once their worklist is empty.
	ErrNoStateAvailable = errors.New("symex: no state available")

	// ErrMissingFunctionBody names a callee whose body cannot be loaded.
	// executeCall does not return or log this value: it logs its own
	// message and havocks the call site.
	ErrMissingFunctionBody = errors.New("symex: missing function body")

	// Decision-procedure errors, surfaced unchanged by a Solver implementation.
	ErrSolverTimeout       = errors.New("symex: solver timeout")
	ErrSolverCanceled      = errors.New("symex: solver canceled")
	ErrSolverResourceLimit = errors.New("symex: solver resource limit")
	ErrSolverUnknown       = errors.New("symex: solver unknown error")
)

// InvariantError reports a violation of one of the global invariants in
// section 3 of the specification (renaming monotonicity, guard corruption,
// and similar). Invariant violations are fatal: the engine never produces a
// partial equation while claiming it is sound.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string { return "symex: invariant violation: " + e.Message }

// assert panics with an *InvariantError if condition is false. Engine.Run
// recovers this at its boundary and converts it into a returned error so
// library callers never observe a panic.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(&InvariantError{Message: fmt.Sprintf(format, args...)})
	}
}
