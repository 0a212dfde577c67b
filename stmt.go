package symex

// StmtKind enumerates the instruction kinds listed in section 3. Unlike
// Expr, a Statement is not a tagged variant of distinct Go types: CBMC's
// own goto_programt::instructiont (see
// _examples/original_source/src/goto-symex/goto_symex.h) is a single
// struct carrying a kind tag plus whichever fields that kind needs, and
// this type follows the same shape rather than inventing fourteen
// near-identical wrapper structs.
type StmtKind int

const (
	Assign StmtKind = iota
	Decl
	Dead
	Assume
	Assert
	Goto
	FunctionCall
	Return
	EndFunction
	Label
	StartThread
	EndThread
	AtomicBegin
	AtomicEnd
	Skip
	Other
	Throw
	ThrowPush
	ThrowPop
	Landingpad
	TryCatch
	VaStart
	Allocate
	CppNew
	CppDelete
	StmtInput
	StmtOutput
	Trace
	Printf
	Fkt
)

func (k StmtKind) String() string {
	names := [...]string{
		"Assign", "Decl", "Dead", "Assume", "Assert", "Goto", "FunctionCall",
		"Return", "EndFunction", "Label", "StartThread", "EndThread",
		"AtomicBegin", "AtomicEnd", "Skip", "Other", "Throw", "ThrowPush", "ThrowPop",
		"Landingpad", "TryCatch", "VaStart", "Allocate", "CppNew", "CppDelete",
		"Input", "Output", "Trace", "Printf", "Fkt",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// FktKind enumerates the CBMC intrinsic pseudo-calls enumerated from the
// retrieved fragment of _examples/original_source/src/util/std_code.h
// (side_effect_expr_function_callt and its ID_nondet/malloc/free/printf
// uses). Anything else is FktUnknown: logged each time it executes and havocked, per
// DESIGN.md's resolution of the open question on this family.
type FktKind int

const (
	FktMalloc FktKind = iota
	FktFree
	FktNondet
	FktPrintf
	FktUnknown
)

// Instruction is one statement in a GotoProgram, at a fixed program-counter
// slot. Fields not meaningful for Kind are left zero.
type Instruction struct {
	Kind StmtKind
	Loc  SourceLoc

	// Assign / Decl / Dead; Throw also uses RHS for the thrown value (nil
	// for a bare rethrow)
	LHS Expr
	RHS Expr
	Sym *Symbol

	// Assume / Assert / Goto condition
	Cond    Expr
	Message string
	PropID  string

	// Goto / unconditional jump targets; Goto has exactly one, matching the
	// fall-through being instr+1 implicitly.
	Target int

	// FunctionCall
	Function string
	Args     []Expr
	CallLHS  Expr // nil if the call's result is discarded

	// StartThread
	ThreadTarget int

	// Label
	LabelName string

	// Fkt
	FktOp FktKind

	// Printf / Trace / Input / Output
	IOArgs []Expr
}

// GotoFunction is the body of a single function: a flat instruction list
// addressed by program counter, plus its parameter and return-type
// signature. This mirrors goto_functiont: a GOTO program is just a
// CFG-as-instruction-list, not a tree.
type GotoFunction struct {
	Name       string
	Params     []*Symbol
	ReturnType Type
	Body       []Instruction
}

// GotoProgram is the whole translation unit: every function keyed by name,
// plus the identifier of the entry point. It is what a front end such as
// frontend/gossa produces and what the engine consumes via a
// FunctionLookup.
type GotoProgram struct {
	Functions map[string]*GotoFunction
	Entry     string
}

// FunctionLookup is the external `get_goto_function(id) → function_body`
// collaborator (section 6). It may return (nil, false) if the body is
// unavailable, in which case the interpreter havocs the call per section
// 4.11's failure semantics.
type FunctionLookup func(id string) (*GotoFunction, bool)

// Lookup adapts a GotoProgram into a FunctionLookup.
func (p *GotoProgram) Lookup(id string) (*GotoFunction, bool) {
	fn, ok := p.Functions[id]
	return fn, ok
}
