// Package z3 is the reference decision-procedure backend (SPEC_FULL.md
// C12): it discharges an Equation's assertions by translating symex.Expr
// trees into Z3 bitvector/boolean ASTs and calling the embedded solver.
// Adapted from benbjohnson/glee's z3/z3.go, which did the same translation
// for glee's own Expr variants; this version targets this package's IR
// (ir.go) instead and drops glee's counter-example-value extraction
// (Context.eval/evalArray), since generating concrete traces from a model
// is an explicit non-goal of this engine.
package z3

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/symex-go/symex"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdio.h>
*/
import "C"

var _ symex.Solver = (*Solver)(nil)

// Solver discharges constraints using an embedded Z3 solver instance.
type Solver struct {
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver with a fresh Z3 context.
func NewSolver() *Solver {
	return &Solver{ctx: NewContext()}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns solve-count/time statistics for this solver instance.
func (s *Solver) Stats() Stats { return s.stats }

// Solve implements symex.Solver: it asserts every constraint and checks
// satisfiability of their conjunction.
func (s *Solver) Solve(constraints []symex.Expr) (satisfiable bool, err error) {
	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return false, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	for _, constraint := range constraints {
		ast, err := s.ctx.toAST(constraint)
		if err != nil {
			return false, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, ast)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return false, err
		}
	}

	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return false, err
	}
	switch ret {
	case C.Z3_L_FALSE:
		return false, nil
	case C.Z3_L_UNDEF:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, symex.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return false, symex.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return false, symex.ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"):
			return false, symex.ErrSolverUnknown
		default:
			return false, fmt.Errorf("z3: %s", reason)
		}
	default:
		return true, nil
	}
}

// Context wraps a Z3 context used to construct expressions.
type Context struct {
	raw    C.Z3_context
	consts map[string]C.Z3_ast // memoized free variables, keyed by Symbol.String()
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw, consts: make(map[string]C.Z3_ast)}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toAST translates one symex.Expr node into a Z3 AST.
func (ctx *Context) toAST(expr symex.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *symex.Constant:
		return ctx.toConstantAST(expr)
	case *symex.Symbol:
		return ctx.toSymbolAST(expr)
	case *symex.NondetExpr:
		return ctx.toFreshAST(expr.Typ, expr.Tag)
	case *symex.CastExpr:
		return ctx.toCastAST(expr)
	case *symex.UnaryExpr:
		return ctx.toUnaryAST(expr)
	case *symex.BinaryExpr:
		return ctx.toBinaryAST(expr)
	case *symex.IfExpr:
		return ctx.toIfAST(expr)
	case *symex.ByteExtractExpr:
		return ctx.toByteExtractAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: unsupported expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *symex.Constant) (C.Z3_ast, error) {
	if expr.Typ.Kind == symex.TypeBool {
		if expr.Bool {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	}
	width := expr.Typ.Width
	if width <= 0 {
		width = symex.Width64
	}
	return ctx.makeUint64(uint(width), expr.Value)
}

// toSymbolAST maps a renamed *Symbol to a memoized Z3 free variable, named
// after its fully decorated L0/L1/L2 string form so that distinct SSA
// versions of the same base name are distinct Z3 constants.
func (ctx *Context) toSymbolAST(sym *symex.Symbol) (C.Z3_ast, error) {
	return ctx.toFreshAST(sym.Typ, sym.String())
}

// toFreshAST returns the memoized const for name, creating it if this is
// the first reference — the same role glee's makeArrayConst plays for
// symbolic arrays, generalized to scalar free variables since this IR's
// Symbol/Nondet nodes are themselves the symbolic leaves.
func (ctx *Context) toFreshAST(typ symex.Type, name string) (C.Z3_ast, error) {
	if ast, ok := ctx.consts[name]; ok {
		return ast, nil
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(ctx.raw, cname)

	var sort C.Z3_sort
	if typ.Kind == symex.TypeBool {
		sort = C.Z3_mk_bool_sort(ctx.raw)
	} else {
		width := typ.Width
		if width <= 0 {
			width = symex.Width64
		}
		sort = C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
	}
	if err := ctx.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}

	ast := C.Z3_mk_const(ctx.raw, symbol, sort)
	if err := ctx.err("Z3_mk_const"); err != nil {
		return nil, err
	}
	ctx.consts[name] = ast
	return ast, nil
}

func (ctx *Context) toCastAST(expr *symex.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Operand)
	if err != nil {
		return nil, err
	}
	srcType := expr.Operand.Type()

	if srcType.Kind == symex.TypeBool {
		whenTrue, err := ctx.makeUint64(uint(expr.Typ.Width), 1)
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(uint(expr.Typ.Width), 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	srcWidth := ctx.bvSize(src)
	if uint(expr.Typ.Width) <= srcWidth {
		return C.Z3_mk_extract(ctx.raw, C.uint(expr.Typ.Width-1), 0, src), ctx.err("Z3_mk_extract")
	}
	extra := C.uint(uint(expr.Typ.Width) - srcWidth)
	if srcType.Signed() {
		return C.Z3_mk_sign_ext(ctx.raw, extra, src), ctx.err("Z3_mk_sign_ext")
	}
	return C.Z3_mk_zero_ext(ctx.raw, extra, src), ctx.err("Z3_mk_zero_ext")
}

func (ctx *Context) toUnaryAST(expr *symex.UnaryExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.X)
	if err != nil {
		return nil, err
	}
	switch expr.Op {
	case symex.LogNot:
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	case symex.Not:
		return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
	default: // Neg
		return C.Z3_mk_bvneg(ctx.raw, src), ctx.err("Z3_mk_bvneg")
	}
}

func (ctx *Context) toIfAST(expr *symex.IfExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(expr.Cond)
	if err != nil {
		return nil, err
	}
	then, err := ctx.toAST(expr.Then)
	if err != nil {
		return nil, err
	}
	els, err := ctx.toAST(expr.Else)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
}

// toByteExtractAST treats an unresolved byte_extract as an opaque fresh
// variable keyed by its container+offset text — sound (it never makes two
// structurally distinct reads collide, since toFreshAST keys on the full
// String() form) but not a precise array-theory encoding of the
// container's update chain the way glee's SelectExpr/makeArrayWithUpdate
// was. Precise array-theory support is better served by handing
// memmodel.Array's own update chain to the solver directly, which a
// caller wanting byte-exact models can add without touching this file.
func (ctx *Context) toByteExtractAST(expr *symex.ByteExtractExpr) (C.Z3_ast, error) {
	return ctx.toFreshAST(expr.Typ, expr.String())
}

func (ctx *Context) toBinaryAST(expr *symex.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.X)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.Y)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case symex.Add:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case symex.Sub:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case symex.Mul:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case symex.UDiv:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case symex.SDiv:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case symex.URem:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case symex.SRem:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case symex.BitAnd:
		if expr.X.Type().Kind == symex.TypeBool {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		}
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case symex.BitOr:
		if expr.X.Type().Kind == symex.TypeBool {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		}
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case symex.BitXor:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case symex.Shl:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case symex.LShr:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case symex.AShr:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case symex.Eq:
		if expr.X.Type().Kind == symex.TypeBool {
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		}
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case symex.Ne:
		eq, err := ctx.toEq(expr.X.Type(), lhs, rhs)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case symex.Ult:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case symex.Ule:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case symex.Ugt:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case symex.Uge:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	case symex.Slt:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case symex.Sle:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case symex.Sgt:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case symex.Sge:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	case symex.LogAnd:
		args := [2]C.Z3_ast{lhs, rhs}
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case symex.LogOr:
		args := [2]C.Z3_ast{lhs, rhs}
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case symex.Implies:
		return C.Z3_mk_implies(ctx.raw, lhs, rhs), ctx.err("Z3_mk_implies")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) toEq(t symex.Type, lhs, rhs C.Z3_ast) (C.Z3_ast, error) {
	if t.Kind == symex.TypeBool {
		return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
	}
	return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.ulonglong(value), t), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) bvSize(expr C.Z3_ast) uint {
	t := C.Z3_get_sort(ctx.raw, expr)
	if err := ctx.err("Z3_get_sort"); err != nil {
		panic(err)
	}
	return uint(C.Z3_get_bv_sort_size(ctx.raw, t))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes, mirrored from Z3's Z3_error_code enum.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats reports solve-call counters for a Solver instance.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
