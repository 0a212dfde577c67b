package memmodel_test

import (
	"testing"

	"github.com/symex-go/symex"
	"github.com/symex-go/symex/memmodel"
)

func TestSymTab(t *testing.T) {
	t.Run("LookupMiss", func(t *testing.T) {
		tab := memmodel.NewSymbolTable()
		if _, ok := tab.Lookup("x"); ok {
			t.Fatal("expected miss on empty table")
		}
	})

	t.Run("InsertThenLookup", func(t *testing.T) {
		tab := memmodel.NewSymbolTable()
		sym := &symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type}
		tab.Insert(sym)
		got, ok := tab.Lookup("x")
		if !ok {
			t.Fatal("expected hit after Insert")
		}
		if got != sym {
			t.Fatal("Lookup returned a different symbol than was inserted")
		}
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		tab := memmodel.NewSymbolTable()
		tab.Insert(&symex.Symbol{Name: "x", Level: symex.LevelL2, Typ: symex.Int32Type})

		clone := tab.Clone()
		clone.Insert(&symex.Symbol{Name: "y", Level: symex.LevelL2, Typ: symex.Int32Type})

		if _, ok := tab.Lookup("y"); ok {
			t.Fatal("original table mutated by clone's Insert")
		}
		if _, ok := clone.Lookup("x"); !ok {
			t.Fatal("clone should retain entries present at clone time")
		}
	})
}
