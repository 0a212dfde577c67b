package z3_test

import (
	"testing"

	"github.com/symex-go/symex"
	"github.com/symex-go/symex/z3"
)

func MustCloseSolver(s *z3.Solver) {
	if err := s.Close(); err != nil {
		panic(err)
	}
}

func TestSolver_Solve(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		t.Run("True", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if sat, err := s.Solve([]symex.Expr{symex.True}); err != nil {
				t.Fatal(err)
			} else if !sat {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("False", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if sat, err := s.Solve([]symex.Expr{symex.False}); err != nil {
				t.Fatal(err)
			} else if sat {
				t.Fatal("expected unsatisfiable")
			}
		})
	})

	t.Run("BinaryExpr", func(t *testing.T) {
		t.Run("ADD", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			expr := &symex.BinaryExpr{
				Op:  symex.Eq,
				X:   &symex.BinaryExpr{Op: symex.Add, X: symex.IntConst(1000, symex.Int16Type), Y: symex.IntConst(200, symex.Int16Type), Typ: symex.Int16Type},
				Y:   symex.IntConst(1200, symex.Int16Type),
				Typ: symex.BoolType,
			}
			if sat, err := s.Solve([]symex.Expr{expr}); err != nil {
				t.Fatal(err)
			} else if !sat {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SLT", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			expr := &symex.BinaryExpr{Op: symex.Slt, X: symex.IntConst(0xF0, symex.Int8Type), Y: symex.IntConst(0x00, symex.Int8Type), Typ: symex.BoolType}
			if sat, err := s.Solve([]symex.Expr{expr}); err != nil {
				t.Fatal(err)
			} else if !sat {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("FreeVariable", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
		expr := &symex.BinaryExpr{Op: symex.Sgt, X: x, Y: symex.IntConst(0, symex.Int32Type), Typ: symex.BoolType}
		if sat, err := s.Solve([]symex.Expr{expr}); err != nil {
			t.Fatal(err)
		} else if !sat {
			t.Fatal("expected satisfiable")
		}
	})

	t.Run("Unsatisfiable", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		x := &symex.Symbol{Name: "y", Level: symex.LevelL2, Typ: symex.Int32Type}
		gt := &symex.BinaryExpr{Op: symex.Sgt, X: x, Y: symex.IntConst(10, symex.Int32Type), Typ: symex.BoolType}
		lt := &symex.BinaryExpr{Op: symex.Slt, X: x, Y: symex.IntConst(5, symex.Int32Type), Typ: symex.BoolType}
		if sat, err := s.Solve([]symex.Expr{gt, lt}); err != nil {
			t.Fatal(err)
		} else if sat {
			t.Fatal("expected unsatisfiable")
		}
	})

	t.Run("IfExpr", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		expr := &symex.IfExpr{Cond: symex.True, Then: symex.True, Else: symex.False}
		if sat, err := s.Solve([]symex.Expr{expr}); err != nil {
			t.Fatal(err)
		} else if !sat {
			t.Fatal("expected satisfiable")
		}
	})

	t.Run("Cast", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		expr := &symex.BinaryExpr{
			Op:  symex.Eq,
			X:   &symex.CastExpr{Operand: symex.IntConst(200, symex.Int16Type), Typ: symex.Int32Type},
			Y:   symex.IntConst(200, symex.Int32Type),
			Typ: symex.BoolType,
		}
		if sat, err := s.Solve([]symex.Expr{expr}); err != nil {
			t.Fatal(err)
		} else if !sat {
			t.Fatal("expected satisfiable")
		}
	})
}
