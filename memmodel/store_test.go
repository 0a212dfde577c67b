package memmodel_test

import (
	"testing"

	"github.com/symex-go/symex"
	"github.com/symex-go/symex/memmodel"
)

func TestStore(t *testing.T) {
	ptrType := symex.PointerTo(symex.Int32Type)

	t.Run("ReadEmpty", func(t *testing.T) {
		s := memmodel.NewStore()
		p := &symex.Symbol{Name: "p", Level: symex.LevelL2, Typ: ptrType}
		if got := s.Read(p); len(got) != 0 {
			t.Fatalf("expected no candidates, got %v", got)
		}
	})

	t.Run("AssignThenRead", func(t *testing.T) {
		s := memmodel.NewStore()
		p := &symex.Symbol{Name: "p", Level: symex.LevelL2, Typ: ptrType}
		x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
		s.Assign(p, &symex.AddressOfExpr{Operand: x, Typ: ptrType})
		got := s.Read(p)
		if len(got) != 1 {
			t.Fatalf("len(Read)=%d, expected 1", len(got))
		}
	})

	t.Run("AssignDedupes", func(t *testing.T) {
		s := memmodel.NewStore()
		p := &symex.Symbol{Name: "p", Level: symex.LevelL2, Typ: ptrType}
		x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
		s.Assign(p, &symex.AddressOfExpr{Operand: x, Typ: ptrType})
		s.Assign(p, &symex.AddressOfExpr{Operand: x, Typ: ptrType})
		if got := s.Read(p); len(got) != 1 {
			t.Fatalf("len(Read)=%d, expected 1 after re-assigning the same alias", len(got))
		}
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		s := memmodel.NewStore()
		p := &symex.Symbol{Name: "p", Level: symex.LevelL2, Typ: ptrType}
		x := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
		s.Assign(p, &symex.AddressOfExpr{Operand: x, Typ: ptrType})

		clone := s.Clone()
		y := &symex.Symbol{Name: "y", Level: symex.LevelL2, Typ: symex.Int32Type}
		clone.Assign(p, &symex.AddressOfExpr{Operand: y, Typ: ptrType})

		orig := s.Read(p)
		if len(orig) != 1 || symex.CompareExpr(orig[0], x) != 0 {
			t.Fatalf("original Store mutated by clone's Assign: %v", orig)
		}
		cloned := clone.Read(p)
		if len(cloned) != 1 || symex.CompareExpr(cloned[0], y) != 0 {
			t.Fatalf("clone should only see the reassigned alias: %v", cloned)
		}
	})
}
