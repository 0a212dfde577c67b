package symex

import "reflect"

// This file is the concrete grounding for the specification's external
// `simplify(expr) → expr` pure function (section 6). Rather than a single
// recursive pass, simplification is mostly performed inline by smart
// constructors at the point an expression is built — exactly as
// glee/expr.go's NewBinaryExpr dispatches to newAddExpr/newAndExpr/etc,
// each of which folds identities and constants as it constructs the node.
// Simplify itself just re-applies those constructors to an existing tree,
// for the cases (such as front-end-constructed trees) where the
// constructors were bypassed.

// NewBinaryExpr builds a BinaryExpr, applying algebraic simplification and
// constant folding at construction time. Every constructor of a BinaryExpr
// anywhere in this package must go through here.
func NewBinaryExpr(op BinaryOp, x, y Expr, typ Type) Expr {
	cx, xIsConst := x.(*Constant)
	cy, yIsConst := y.(*Constant)

	if xIsConst && yIsConst {
		if folded := foldConstBinary(op, cx, cy, typ); folded != nil {
			return folded
		}
	}

	switch op {
	case LogAnd:
		if isFalse(x) || isFalse(y) {
			return False
		}
		if isTrue(x) {
			return y
		}
		if isTrue(y) {
			return x
		}
	case LogOr:
		if isTrue(x) || isTrue(y) {
			return True
		}
		if isFalse(x) {
			return y
		}
		if isFalse(y) {
			return x
		}
	case Implies:
		if isFalse(x) || isTrue(y) {
			return True
		}
		if isTrue(x) {
			return y
		}
	case Add:
		if isZeroConst(y) {
			return x
		}
		if isZeroConst(x) {
			return y
		}
	case Sub:
		if isZeroConst(y) {
			return x
		}
	case Mul:
		if isZeroConst(x) || isZeroConst(y) {
			return IntConst(0, typ)
		}
		if isOneConst(y) {
			return x
		}
		if isOneConst(x) {
			return y
		}
	case BitAnd:
		if isZeroConst(x) || isZeroConst(y) {
			return IntConst(0, typ)
		}
	case BitOr:
		if isZeroConst(y) {
			return x
		}
		if isZeroConst(x) {
			return y
		}
	case Eq:
		if CompareExpr(x, y) == 0 {
			return True
		}
	case Ne:
		if CompareExpr(x, y) == 0 {
			return False
		}
	}

	return &BinaryExpr{Op: op, X: x, Y: y, Typ: typ}
}

// NewUnaryExpr builds a UnaryExpr with constant folding and double-negation
// elimination.
func NewUnaryExpr(op UnaryOp, x Expr, typ Type) Expr {
	if u, ok := x.(*UnaryExpr); ok && u.Op == op {
		return u.X
	}
	if c, ok := x.(*Constant); ok {
		switch op {
		case LogNot:
			return &Constant{Typ: BoolType, Bool: !c.Bool}
		case Not:
			return IntConst(^c.Value, typ)
		case Neg:
			return IntConst(uint64(-int64(c.Value)), typ)
		}
	}
	return &UnaryExpr{Op: op, X: x, Typ: typ}
}

// NewIfExpr builds an If-Then-Else, collapsing a constant condition and a
// then==else into their common result (grounded on glee/expr.go's
// SelectExpr constant-condition handling).
func NewIfExpr(cond, then, els Expr) Expr {
	if isTrue(cond) {
		return then
	}
	if isFalse(cond) {
		return els
	}
	if CompareExpr(then, els) == 0 {
		return then
	}
	return &IfExpr{Cond: cond, Then: then, Else: els}
}

// NewCastExpr builds a width/signedness conversion, folding the constant
// case immediately.
func NewCastExpr(x Expr, typ Type) Expr {
	if reflect.DeepEqual(x.Type(), typ) {
		return x
	}
	if c, ok := x.(*Constant); ok {
		v := c.Value
		if typ.Kind != TypeBool && c.Typ.Signed() && typ.Width > c.Typ.Width {
			v = uint64(signExtend(v, c.Typ.Width))
		}
		return IntConst(v, typ)
	}
	if cast, ok := x.(*CastExpr); ok {
		return NewCastExpr(cast.Operand, typ)
	}
	return &CastExpr{Operand: x, Typ: typ}
}

func isTrue(e Expr) bool  { c, ok := e.(*Constant); return ok && c.Typ.Kind == TypeBool && c.Bool }
func isFalse(e Expr) bool { c, ok := e.(*Constant); return ok && c.Typ.Kind == TypeBool && !c.Bool }

func isZeroConst(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Typ.Kind != TypeBool && c.Value == 0
}

func isOneConst(e Expr) bool {
	c, ok := e.(*Constant)
	return ok && c.Typ.Kind != TypeBool && mask(c.Value, c.Typ.Width) == 1
}

// foldConstBinary evaluates op on two constants; returns nil for operators
// not meaningful on the given type combination (left to the caller to
// construct the general node, which will simply never fold further).
func foldConstBinary(op BinaryOp, x, y *Constant, typ Type) Expr {
	if op.IsLogical() {
		switch op {
		case LogAnd:
			return &Constant{Typ: BoolType, Bool: x.Bool && y.Bool}
		case LogOr:
			return &Constant{Typ: BoolType, Bool: x.Bool || y.Bool}
		case Implies:
			return &Constant{Typ: BoolType, Bool: !x.Bool || y.Bool}
		}
	}

	xv, yv := x.Value, y.Value
	width := x.Typ.Width
	if width == 0 {
		width = typ.Width
	}
	xs, ys := signExtend(xv, width), signExtend(yv, width)

	switch op {
	case Add:
		return IntConst(xv+yv, typ)
	case Sub:
		return IntConst(xv-yv, typ)
	case Mul:
		return IntConst(xv*yv, typ)
	case UDiv:
		if yv == 0 {
			return nil
		}
		return IntConst(xv/yv, typ)
	case SDiv:
		if ys == 0 {
			return nil
		}
		return IntConst(uint64(xs/ys), typ)
	case URem:
		if yv == 0 {
			return nil
		}
		return IntConst(xv%yv, typ)
	case SRem:
		if ys == 0 {
			return nil
		}
		return IntConst(uint64(xs%ys), typ)
	case BitAnd:
		return IntConst(xv&yv, typ)
	case BitOr:
		return IntConst(xv|yv, typ)
	case BitXor:
		return IntConst(xv^yv, typ)
	case Shl:
		return IntConst(xv<<uint(yv), typ)
	case LShr:
		return IntConst(mask(xv, width)>>uint(yv), typ)
	case AShr:
		return IntConst(uint64(xs>>uint(yv)), typ)
	case Eq:
		return &Constant{Typ: BoolType, Bool: xv == yv}
	case Ne:
		return &Constant{Typ: BoolType, Bool: xv != yv}
	case Ult:
		return &Constant{Typ: BoolType, Bool: xv < yv}
	case Ule:
		return &Constant{Typ: BoolType, Bool: xv <= yv}
	case Ugt:
		return &Constant{Typ: BoolType, Bool: xv > yv}
	case Uge:
		return &Constant{Typ: BoolType, Bool: xv >= yv}
	case Slt:
		return &Constant{Typ: BoolType, Bool: xs < ys}
	case Sle:
		return &Constant{Typ: BoolType, Bool: xs <= ys}
	case Sgt:
		return &Constant{Typ: BoolType, Bool: xs > ys}
	case Sge:
		return &Constant{Typ: BoolType, Bool: xs >= ys}
	}
	return nil
}

// Simplify re-applies the smart constructors to an existing expression
// tree, bottom-up. It is semantics-preserving and idempotent: simplifying
// an already-simplified tree returns an equal tree. Front ends that build
// expressions with bare struct literals (rather than the New* constructors)
// must call Simplify before the tree reaches the interpreter; clean.go does
// this automatically when Config.SimplifyOpt is set.
func Simplify(e Expr) Expr {
	switch e := e.(type) {
	case *BinaryExpr:
		return NewBinaryExpr(e.Op, Simplify(e.X), Simplify(e.Y), e.Typ)
	case *UnaryExpr:
		return NewUnaryExpr(e.Op, Simplify(e.X), e.Typ)
	case *IfExpr:
		return NewIfExpr(Simplify(e.Cond), Simplify(e.Then), Simplify(e.Else))
	case *CastExpr:
		return NewCastExpr(Simplify(e.Operand), e.Typ)
	case *ArrayIndexExpr:
		return &ArrayIndexExpr{Array: Simplify(e.Array), Index: Simplify(e.Index), Typ: e.Typ}
	case *StructMemberExpr:
		return &StructMemberExpr{Struct: Simplify(e.Struct), Field: e.Field, Typ: e.Typ}
	case *DerefExpr:
		return &DerefExpr{Ptr: Simplify(e.Ptr), Typ: e.Typ}
	case *AddressOfExpr:
		return &AddressOfExpr{Operand: Simplify(e.Operand), Typ: e.Typ}
	case *ByteExtractExpr:
		return &ByteExtractExpr{Container: Simplify(e.Container), Offset: Simplify(e.Offset), Typ: e.Typ, LittleEndian: e.LittleEndian}
	default:
		return e
	}
}

// exprKind gives a total order over expression kinds for CompareExpr.
func exprKind(e Expr) int {
	switch e.(type) {
	case *Symbol:
		return 0
	case *Constant:
		return 1
	case *BinaryExpr:
		return 2
	case *UnaryExpr:
		return 3
	case *IfExpr:
		return 4
	case *ArrayIndexExpr:
		return 5
	case *StructMemberExpr:
		return 6
	case *DerefExpr:
		return 7
	case *AddressOfExpr:
		return 8
	case *CastExpr:
		return 9
	case *ByteExtractExpr:
		return 10
	case *FunctionAppExpr:
		return 11
	case *LetExpr:
		return 12
	case *QuantifierExpr:
		return 13
	case *NondetExpr:
		return 14
	case *ArrayConst:
		return 15
	case *AssignExpr:
		return 16
	case *CallExpr:
		return 17
	case *ThrowExpr:
		return 18
	case *StatementExprExpr:
		return 19
	default:
		return 20
	}
}

// CompareExpr gives a structural total order over expressions, used for
// deduplication, canonicalization of commutative operands, and the
// idempotence/determinism checks in section 8.
func CompareExpr(a, b Expr) int {
	if ka, kb := exprKind(a), exprKind(b); ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch a := a.(type) {
	case *Symbol:
		b := b.(*Symbol)
		return compareStrings(a.String(), b.String())
	case *Constant:
		b := b.(*Constant)
		if a.Value != b.Value {
			if a.Value < b.Value {
				return -1
			}
			return 1
		}
		if a.Bool != b.Bool {
			if !a.Bool {
				return -1
			}
			return 1
		}
		return 0
	case *BinaryExpr:
		b := b.(*BinaryExpr)
		if a.Op != b.Op {
			if a.Op < b.Op {
				return -1
			}
			return 1
		}
		if c := CompareExpr(a.X, b.X); c != 0 {
			return c
		}
		return CompareExpr(a.Y, b.Y)
	case *UnaryExpr:
		b := b.(*UnaryExpr)
		if a.Op != b.Op {
			if a.Op < b.Op {
				return -1
			}
			return 1
		}
		return CompareExpr(a.X, b.X)
	default:
		return compareStrings(a.String(), b.String())
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
