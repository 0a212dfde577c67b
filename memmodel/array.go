// Package memmodel is the reference ValueSet/SymbolTable implementation
// referred to by SPEC_FULL.md's component C11. The core symex package
// depends only on the symex.ValueSet and symex.SymbolTable interfaces;
// this package supplies one concrete, exercised implementation of each,
// grounded on benbjohnson/glee's Array/ArrayUpdate byte-addressable memory
// model (array.go) and ExecutionState heap.
package memmodel

import (
	"fmt"

	"github.com/symex-go/symex"
)

var (
	offsetType = symex.Type{Kind: symex.TypeUnsigned, Width: symex.Width64}
	byteType   = symex.Type{Kind: symex.TypeUnsigned, Width: symex.Width8}
)

// Array is a byte-addressable block of symbolic or concrete bytes,
// represented as a base object plus a copy-on-write chain of byte updates
// — the same shape as glee's Array/ArrayUpdate, adapted to build
// symex.Expr trees (ByteExtractExpr over an abstract container) instead of
// glee's Extract/Concat/Select expression kinds, since this IR has no
// bit-level concat primitive of its own.
type Array struct {
	ID      uint64
	Size    uint64 // width, in bytes
	Updates *ArrayUpdate
}

// ArrayUpdate is one entry of the update chain, most recent first.
type ArrayUpdate struct {
	Index Symex
	Value Symex
	Next  *ArrayUpdate
}

// Symex is a type alias kept local to this file purely so the struct
// fields above read naturally; it is exactly symex.Expr.
type Symex = symex.Expr

// NewArray returns a new zero-length-update Array of the given byte size.
func NewArray(id, size uint64) *Array {
	return &Array{ID: id, Size: size}
}

func (a *Array) String() string { return fmt.Sprintf("(array #%d %d)", a.ID, a.Size) }

// Clone returns a shallow copy; the update chain is immutable and shared
// structurally, matching glee's Array.Clone.
func (a *Array) Clone() *Array { return &Array{ID: a.ID, Size: a.Size, Updates: a.Updates} }

// containerSymbol is the abstract object a ByteExtractExpr reads through
// when no concrete update chain entry resolves a byte. It is a stable
// per-array leaf so that two reads of the same unmodified byte compare
// equal structurally.
func (a *Array) containerSymbol() symex.Expr {
	return &symex.Symbol{Name: fmt.Sprintf("$array%d", a.ID), Level: symex.LevelL2, Typ: symex.Type{Kind: symex.TypeArray, Elem: &byteType, Len: int(a.Size)}}
}

// selectByte resolves one byte, walking the update chain for a concrete
// match before falling back to a symbolic ByteExtractExpr read (mirrors
// glee's Array.selectByte).
func (a *Array) selectByte(index symex.Expr) symex.Expr {
	for upd := a.Updates; upd != nil; upd = upd.Next {
		eq := symex.NewBinaryExpr(symex.Eq, index, upd.Index, symex.BoolType)
		c, ok := eq.(*symex.Constant)
		if !ok {
			break // symbolic index: stop concretizing, as glee does
		}
		if c.Bool {
			return upd.Value
		}
	}
	return &symex.ByteExtractExpr{Container: a.containerSymbol(), Offset: index, Typ: byteType}
}

// Select reads width bits starting at offset, assembling multi-byte reads
// from individual selectByte calls via shift-and-or, honoring endianness.
func (a *Array) Select(offset symex.Expr, width int, littleEndian bool) symex.Expr {
	if width == symex.WidthBool {
		return symex.NewCastExpr(a.selectByte(offset), symex.BoolType)
	}

	resultType := symex.Type{Kind: symex.TypeUnsigned, Width: width}
	n := uint64(width) / 8
	var result symex.Expr = symex.IntConst(0, resultType)
	for i := uint64(0); i < n; i++ {
		byteOffset := i
		if !littleEndian {
			byteOffset = n - i - 1
		}
		idx := symex.NewBinaryExpr(symex.Add, offset, symex.IntConst(byteOffset, offsetType), offsetType)
		b := symex.NewCastExpr(a.selectByte(idx), resultType)
		shifted := symex.NewBinaryExpr(symex.Shl, b, symex.IntConst(i*8, resultType), resultType)
		result = symex.NewBinaryExpr(symex.BitOr, result, shifted, resultType)
	}
	return result
}

// storeByte records a single-byte update at the head of the chain,
// pruning any now-dead update to the same concrete index (mirrors glee's
// Array.storeByte).
func (a *Array) storeByte(index, value symex.Expr) {
	a.Updates = &ArrayUpdate{Index: index, Value: value, Next: a.Updates}
	if idxConst, ok := index.(*symex.Constant); ok {
		prev := a.Updates
		for upd := prev.Next; upd != nil; upd = upd.Next {
			updConst, ok := upd.Index.(*symex.Constant)
			if !ok {
				break
			}
			if updConst.Value == idxConst.Value {
				prev.Next = upd.Next
			} else {
				// Relink a copy, never upd itself: older nodes are shared
				// with every Clone of this array.
				cp := *upd
				prev.Next = &cp
				prev = &cp
			}
		}
	}
}

// Store writes value (of the given width) at offset, returning a new
// Array so forked states never observe each other's writes (copy-on-write,
// per section 4.4 of SPEC_FULL.md).
func (a *Array) Store(offset, value symex.Expr, width int, littleEndian bool) *Array {
	out := a.Clone()
	if width == symex.WidthBool {
		out.storeByte(offset, value)
		return out
	}
	n := uint64(width) / 8
	for i := uint64(0); i < n; i++ {
		byteOffset := i
		if !littleEndian {
			byteOffset = n - i - 1
		}
		idx := symex.NewBinaryExpr(symex.Add, offset, symex.IntConst(byteOffset, offsetType), offsetType)
		shifted := symex.NewBinaryExpr(symex.LShr, value, symex.IntConst(i*8, value.Type()), value.Type())
		b := symex.NewCastExpr(shifted, byteType)
		out.storeByte(idx, b)
	}
	return out
}
