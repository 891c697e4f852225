// Copyright 2024 The Fakeptr Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fakeptr

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// accessMatch holds everything the rewrite needs to replace one read or
// write idiom, collected during the read-only traversal so the rewrite
// itself never has to re-discover it.
type accessMatch struct {
	block      *ir.Block
	outer      ir.Instruction // *ir.InstLoad or *ir.InstStore
	fieldAddr  *ir.InstGetElementPtr
	handleLoad *ir.InstLoad
	field      int64
	structName string
}

// RewriteAccessSites rewrites every field-access idiom in fn (the
// replacement function produced by RewriteSignature, after FixPrologue
// has run) into a foreign accessor call. It returns the number of read
// and write sites rewritten.
func RewriteAccessSites(m *ir.Module, fn *ir.Func, protected []string, diags *Diagnostics) (reads, writes int) {
	table := NewFFITable(m)

	var readMatches, writeMatches []accessMatch

	// Single traversal, no edits: collecting first avoids invalidating
	// iterators and lets one match's eventual rewrite not hide another.
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			switch outer := inst.(type) {
			case *ir.InstLoad:
				if m, ok := recognizeAccess(b, outer, outer.Src, protected, diags, fn.Name()); ok {
					readMatches = append(readMatches, m)
				}
			case *ir.InstStore:
				if m, ok := recognizeAccess(b, outer, outer.Dst, protected, diags, fn.Name()); ok {
					writeMatches = append(writeMatches, m)
				}
			}
		}
	}

	for _, match := range readMatches {
		if rewriteRead(table, match) {
			reads++
		} else {
			diags.Record(Diagnostic{Func: fn.Name(), Reason: SkipFFISignatureMismatch})
		}
	}
	for _, match := range writeMatches {
		if rewriteWrite(table, match) {
			writes++
		} else {
			diags.Record(Diagnostic{Func: fn.Name(), Reason: SkipFFISignatureMismatch})
		}
	}

	return reads, writes
}

// recognizeAccess classifies addr (the address operand of a load or
// store) as the canonical "load handle -> address-of-field -> load/store
// field" idiom.
func recognizeAccess(b *ir.Block, outer ir.Instruction, addr value.Value, protected []string, diags *Diagnostics, fname string) (accessMatch, bool) {
	fieldAddr, ok := addr.(*ir.InstGetElementPtr)
	if !ok {
		return accessMatch{}, false
	}
	if !IsStructPtrWithName(fieldAddr.Src.Type(), protected) {
		return accessMatch{}, false
	}

	handleLoad, ok := fieldAddr.Src.(*ir.InstLoad)
	if !ok {
		return accessMatch{}, false
	}

	if !isHandlePointer(handleLoad.Src.Type()) {
		diags.Record(Diagnostic{Func: fname, Reason: SkipNonHandlePointerLoad})
		return accessMatch{}, false
	}

	field, ok := constantFieldIndex(fieldAddr)
	if !ok {
		diags.Record(Diagnostic{Func: fname, Reason: SkipNonConstantFieldIndex})
		return accessMatch{}, false
	}

	return accessMatch{
		block:      b,
		outer:      outer,
		fieldAddr:  fieldAddr,
		handleLoad: handleLoad,
		field:      field,
		structName: StrippedStructName(fieldAddr.Src.Type()),
	}, true
}

func isHandlePointer(t types.Type) bool {
	pt, ok := t.(*types.PointerType)
	if !ok {
		return false
	}
	st, ok := pt.ElemType.(*types.StructType)
	return ok && st.Name() == HandleTypeName
}

// constantFieldIndex extracts G's trailing index operand as a compile-time
// constant integer.
func constantFieldIndex(g *ir.InstGetElementPtr) (int64, bool) {
	if len(g.Indices) == 0 {
		return 0, false
	}
	last := g.Indices[len(g.Indices)-1]
	ci, ok := last.(*constant.Int)
	if !ok {
		return 0, false
	}
	return ci.X.Int64(), true
}

// rewriteRead replaces a recognized field-read idiom with a call to its
// foreign getter. It reports whether the rewrite committed (it is
// skipped if the foreign accessor table reports a signature mismatch).
func rewriteRead(table *FFITable, m accessMatch) bool {
	load := m.outer.(*ir.InstLoad)

	fn, err := table.GetOrInsert(GetterName(m.structName, m.field), load.Type(), types.I32)
	if err != nil {
		return false
	}

	gPrime, lPrime := newHandleFieldRead(m.handleLoad.Src)

	call := &ir.InstCall{
		Callee: fn,
		Args:   []value.Value{lPrime},
	}
	call.Typ = load.Type()

	idx := instIndex(m.block, m.outer)
	m.block.Insts = insertInstAt(m.block.Insts, idx, gPrime)
	idx = instIndex(m.block, m.outer)
	m.block.Insts = insertInstAt(m.block.Insts, idx, lPrime)
	idx = instIndex(m.block, m.outer)
	m.block.Insts[idx] = call

	replaceValueInFunc(m.block.Parent, load, call)
	eraseFromBlockIfUnused(m.block, m.fieldAddr)
	eraseFromBlockIfUnused(m.block, m.handleLoad)

	return true
}

// rewriteWrite replaces a recognized field-write idiom with a call to
// its foreign setter.
func rewriteWrite(table *FFITable, m accessMatch) bool {
	store := m.outer.(*ir.InstStore)
	valType := store.Src.Type()

	fn, err := table.GetOrInsert(SetterName(m.structName, m.field), types.Void, types.I32, valType)
	if err != nil {
		return false
	}

	gPrime, lPrime := newHandleFieldRead(m.handleLoad.Src)

	call := &ir.InstCall{
		Callee: fn,
		Args:   []value.Value{lPrime, store.Src},
	}
	call.Typ = types.Void

	idx := instIndex(m.block, m.outer)
	m.block.Insts = insertInstAt(m.block.Insts, idx, gPrime)
	idx = instIndex(m.block, m.outer)
	m.block.Insts = insertInstAt(m.block.Insts, idx, lPrime)
	idx = instIndex(m.block, m.outer)
	m.block.Insts[idx] = call

	eraseFromBlockIfUnused(m.block, m.fieldAddr)
	eraseFromBlockIfUnused(m.block, m.handleLoad)

	return true
}

// newHandleFieldRead synthesizes the address-of-field into the handle's
// sole integer field, and the load of that field's value, both operating
// on slot (the stack slot that now holds the handle aggregate).
func newHandleFieldRead(slot value.Value) (*ir.InstGetElementPtr, *ir.InstLoad) {
	elemType := handleElemType(slot.Type())

	gPrime := &ir.InstGetElementPtr{
		ElemType: elemType,
		Src:      slot,
		Indices: []value.Value{
			constant.NewInt(types.I32, 0),
			constant.NewInt(types.I32, 0),
		},
		InBounds: true,
	}
	gPrime.Typ = types.NewPointer(types.I32)

	lPrime := &ir.InstLoad{
		ElemType: types.I32,
		Src:      gPrime,
	}

	return gPrime, lPrime
}

func handleElemType(t types.Type) types.Type {
	if pt, ok := t.(*types.PointerType); ok {
		return pt.ElemType
	}
	return t
}

// eraseFromBlockIfUnused removes inst from b if nothing else in the
// function still refers to it. The access-site rewriter only ever widens
// one handle load's fan-out by at most the number of access sites sharing
// it, so by the time all matches for a block have been rewritten any
// *ir.InstGetElementPtr / *ir.InstLoad that fed exactly one access site is
// safe to erase.
func eraseFromBlockIfUnused(b *ir.Block, inst ir.Instruction) {
	v, ok := inst.(value.Value)
	if !ok {
		removeInst(b, inst)
		return
	}
	if countUsesInFunc(b.Parent, v) > 0 {
		return
	}
	removeInst(b, inst)
}

func removeInst(b *ir.Block, inst ir.Instruction) {
	for i, x := range b.Insts {
		if x == inst {
			b.Insts = append(b.Insts[:i], b.Insts[i+1:]...)
			return
		}
	}
}
