package symex_test

import (
	"testing"

	"github.com/symex-go/symex"
)

func TestNewBinaryExpr_ConstantFolding(t *testing.T) {
	tests := []struct {
		name string
		op   symex.BinaryOp
		x, y uint64
		typ  symex.Type
		want uint64
	}{
		{"Add", symex.Add, 2, 3, symex.Int32Type, 5},
		{"Sub", symex.Sub, 10, 3, symex.Int32Type, 7},
		{"Mul", symex.Mul, 4, 5, symex.Int32Type, 20},
		{"BitAnd", symex.BitAnd, 0xFF, 0x0F, symex.Int32Type, 0x0F},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := symex.NewBinaryExpr(tt.op, symex.IntConst(tt.x, tt.typ), symex.IntConst(tt.y, tt.typ), tt.typ)
			c, ok := got.(*symex.Constant)
			if !ok {
				t.Fatalf("got %v (%T), want folded *Constant", got, got)
			}
			if c.Value != tt.want {
				t.Fatalf("value = %d, want %d", c.Value, tt.want)
			}
		})
	}
}

func TestNewBinaryExpr_Identities(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}

	if got := symex.NewBinaryExpr(symex.Add, x, symex.IntConst(0, symex.Int32Type), symex.Int32Type); got != x {
		t.Fatalf("x+0 = %v, want x unchanged", got)
	}
	if got := symex.NewBinaryExpr(symex.Mul, x, symex.IntConst(1, symex.Int32Type), symex.Int32Type); got != x {
		t.Fatalf("x*1 = %v, want x unchanged", got)
	}
	if got := symex.NewBinaryExpr(symex.Mul, x, symex.IntConst(0, symex.Int32Type), symex.Int32Type); symex.CompareExpr(got, symex.IntConst(0, symex.Int32Type)) != 0 {
		t.Fatalf("x*0 = %v, want 0", got)
	}
	if got := symex.NewBinaryExpr(symex.LogAnd, x, symex.False, symex.BoolType); got != symex.False {
		t.Fatalf("x && false = %v, want false", got)
	}
	if got := symex.NewBinaryExpr(symex.LogOr, x, symex.True, symex.BoolType); got != symex.True {
		t.Fatalf("x || true = %v, want true", got)
	}
	if got := symex.NewBinaryExpr(symex.Eq, x, x, symex.BoolType); got != symex.True {
		t.Fatalf("x == x = %v, want true", got)
	}
}

func TestNewUnaryExpr_DoubleNegation(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.BoolType}
	once := symex.NewUnaryExpr(symex.LogNot, x, symex.BoolType)
	twice := symex.NewUnaryExpr(symex.LogNot, once, symex.BoolType)
	if twice != x {
		t.Fatalf("!!x = %v, want x unchanged", twice)
	}
}

func TestNewUnaryExpr_ConstantFolding(t *testing.T) {
	got := symex.NewUnaryExpr(symex.LogNot, symex.True, symex.BoolType)
	if symex.CompareExpr(got, symex.False) != 0 {
		t.Fatalf("!true = %v, want false", got)
	}
}

func TestNewIfExpr_ConstantCondition(t *testing.T) {
	then := symex.IntConst(1, symex.Int32Type)
	els := symex.IntConst(2, symex.Int32Type)

	if got := symex.NewIfExpr(symex.True, then, els); got != then {
		t.Fatalf("if true then a else b = %v, want a", got)
	}
	if got := symex.NewIfExpr(symex.False, then, els); got != els {
		t.Fatalf("if false then a else b = %v, want b", got)
	}
}

func TestNewIfExpr_SameBranchesCollapse(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
	cond := &symex.Symbol{Name: "c", Level: symex.LevelL2, Typ: symex.BoolType}
	if got := symex.NewIfExpr(cond, x, x); got != x {
		t.Fatalf("if c then x else x = %v, want x unchanged", got)
	}
}

func TestNewCastExpr_SameTypeIsNoOp(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
	if got := symex.NewCastExpr(x, symex.Int32Type); got != x {
		t.Fatalf("cast to same type = %v, want x unchanged", got)
	}
}

func TestNewCastExpr_SignExtendsConstant(t *testing.T) {
	neg1 := symex.IntConst(0xFF, symex.Int8Type) // -1 as int8
	got := symex.NewCastExpr(neg1, symex.Int32Type)
	c, ok := got.(*symex.Constant)
	if !ok {
		t.Fatalf("got %v (%T), want folded *Constant", got, got)
	}
	if c.Value != 0xFFFFFFFF {
		t.Fatalf("sign-extended -1i8 as i32 = 0x%x, want 0xFFFFFFFF", c.Value)
	}
}

func TestSimplify_RecursesIntoBinaryExpr(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
	// Bypass NewBinaryExpr's folding by constructing the node directly, as
	// a front end that doesn't call the smart constructors would.
	tree := &symex.BinaryExpr{
		Op:  symex.Add,
		X:   &symex.BinaryExpr{Op: symex.Add, X: x, Y: symex.IntConst(0, symex.Int32Type), Typ: symex.Int32Type},
		Y:   symex.IntConst(0, symex.Int32Type),
		Typ: symex.Int32Type,
	}
	got := symex.Simplify(tree)
	if got != x {
		t.Fatalf("Simplify((x+0)+0) = %v, want x unchanged", got)
	}
}

func TestCompareExpr_TotalOrder(t *testing.T) {
	x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
	y := &symex.Symbol{Name: "y", Level: symex.LevelL2, Typ: symex.Int32Type}

	if symex.CompareExpr(x, x) != 0 {
		t.Fatal("CompareExpr(x, x) != 0")
	}
	if symex.CompareExpr(x, y) >= 0 {
		t.Fatal("CompareExpr(x, y) should be negative")
	}
	if symex.CompareExpr(y, x) <= 0 {
		t.Fatal("CompareExpr(y, x) should be positive")
	}
	c := symex.IntConst(1, symex.Int32Type)
	if symex.CompareExpr(x, c) >= 0 {
		t.Fatal("a Symbol should sort before a Constant")
	}
}
