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
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// handleSlotFunc builds a module with a single function whose entry block
// already looks like the output of FixPrologue: a stack slot of type
// *FakePtr holding the handle, ready for the access-site rewriter to work
// on. readField/writeField control whether a read, a write, or both
// idioms are appended against field index 0 of "MyStruct".
func handleSlotFunc(name string, readField, writeField bool) (*ir.Module, *ir.Func, *ir.InstAlloca) {
	m := &ir.Module{}
	handle := InternHandleType(m)
	handlePtr := types.NewPointer(handle)
	structPtr := types.NewPointer(namedStruct("MyStruct"))

	f := m.NewFunc(name, types.Void)
	block := f.NewBlock("entry")

	slot := &ir.InstAlloca{ElemType: handle}
	slot.Typ = handlePtr
	slot.SetName("p.addr")
	insts := []ir.Instruction{slot}

	// The "inner load": L reads the slot, and despite the slot's new
	// *FakePtr type, L's own result type is left stale at the protected
	// pointer type, exactly as FixPrologue leaves it.
	handleLoad := &ir.InstLoad{ElemType: structPtr, Src: slot}
	insts = append(insts, handleLoad)

	fieldAddr := &ir.InstGetElementPtr{
		ElemType: namedStructElem(structPtr),
		Src:      handleLoad,
		Indices:  []value.Value{constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0)},
		InBounds: true,
	}
	fieldAddr.Typ = types.NewPointer(types.I32)
	insts = append(insts, fieldAddr)

	if readField {
		load := &ir.InstLoad{ElemType: types.I32, Src: fieldAddr}
		insts = append(insts, load)
	}
	if writeField {
		store := &ir.InstStore{Src: constant.NewInt(types.I32, 7), Dst: fieldAddr}
		insts = append(insts, store)
	}

	block.Insts = insts
	block.Term = &ir.TermRet{X: nil}
	return m, f, slot
}

func namedStructElem(ptr *types.PointerType) types.Type {
	return ptr.ElemType
}

func TestRewriteAccessSitesRewritesRead(t *testing.T) {
	m, f, _ := handleSlotFunc("readIt", true, false)
	diags := &Diagnostics{}

	reads, writes := RewriteAccessSites(m, f, []string{"MyStruct"}, diags)
	if reads != 1 || writes != 0 {
		t.Fatalf("RewriteAccessSites = (%d, %d), want (1, 0)", reads, writes)
	}

	var call *ir.InstCall
	for _, inst := range f.Blocks[0].Insts {
		if c, ok := inst.(*ir.InstCall); ok {
			call = c
		}
	}
	if call == nil {
		t.Fatal("expected the load idiom to be replaced by a call")
	}
	if got, want := call.Callee.(*ir.Func).Name(), GetterName("MyStruct", 0); got != want {
		t.Errorf("callee = %q, want %q", got, want)
	}
	if len(call.Args) != 1 {
		t.Fatalf("len(Args) = %d, want 1", len(call.Args))
	}
}

func TestRewriteAccessSitesRewritesWrite(t *testing.T) {
	m, f, _ := handleSlotFunc("writeIt", false, true)
	diags := &Diagnostics{}

	reads, writes := RewriteAccessSites(m, f, []string{"MyStruct"}, diags)
	if reads != 0 || writes != 1 {
		t.Fatalf("RewriteAccessSites = (%d, %d), want (0, 1)", reads, writes)
	}

	var call *ir.InstCall
	for _, inst := range f.Blocks[0].Insts {
		if c, ok := inst.(*ir.InstCall); ok {
			call = c
		}
	}
	if call == nil {
		t.Fatal("expected the store idiom to be replaced by a call")
	}
	if got, want := call.Callee.(*ir.Func).Name(), SetterName("MyStruct", 0); got != want {
		t.Errorf("callee = %q, want %q", got, want)
	}
	if len(call.Args) != 2 {
		t.Fatalf("len(Args) = %d, want 2", len(call.Args))
	}
}

func TestRewriteAccessSitesReadAndWriteOnSameField(t *testing.T) {
	m, f, _ := handleSlotFunc("both", true, true)
	diags := &Diagnostics{}

	reads, writes := RewriteAccessSites(m, f, []string{"MyStruct"}, diags)
	if reads != 1 || writes != 1 {
		t.Fatalf("RewriteAccessSites = (%d, %d), want (1, 1)", reads, writes)
	}

	want := map[string]bool{
		GetterName("MyStruct", 0): true,
		SetterName("MyStruct", 0): true,
	}
	for _, fn := range m.Funcs {
		delete(want, fn.Name())
	}
	if len(want) != 0 {
		t.Errorf("missing expected foreign accessors: %v", want)
	}
	if got, want := len(m.Funcs), 3; got != want { // the rewritten function plus the two accessors
		t.Errorf("len(m.Funcs) = %d, want %d", got, want)
	}
}

func TestRewriteAccessSitesReusesFFIDeclarationAcrossSites(t *testing.T) {
	m, f, slot := handleSlotFunc("twoReads", true, false)

	// Append a second, independent read of the same field so the
	// rewriter must see two candidate access sites that both resolve to
	// GetterName("MyStruct", 0).
	fieldAddr := &ir.InstGetElementPtr{
		ElemType: namedStructElem(types.NewPointer(namedStruct("MyStruct"))),
		Src:      f.Blocks[0].Insts[1], // the original handle load
		Indices:  []value.Value{constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0)},
		InBounds: true,
	}
	fieldAddr.Typ = types.NewPointer(types.I32)
	load2 := &ir.InstLoad{ElemType: types.I32, Src: fieldAddr}
	f.Blocks[0].Insts = append(f.Blocks[0].Insts, fieldAddr, load2)
	_ = slot

	diags := &Diagnostics{}
	reads, writes := RewriteAccessSites(m, f, []string{"MyStruct"}, diags)
	if reads != 2 || writes != 0 {
		t.Fatalf("RewriteAccessSites = (%d, %d), want (2, 0)", reads, writes)
	}

	getters := 0
	for _, fn := range m.Funcs {
		if fn.Name() == GetterName("MyStruct", 0) {
			getters++
		}
	}
	if getters != 1 {
		t.Errorf("found %d declarations of %s, want exactly 1", getters, GetterName("MyStruct", 0))
	}
}

func TestRewriteAccessSitesLeavesUnrelatedLoadsAlone(t *testing.T) {
	m := &ir.Module{}
	f := m.NewFunc("plain", types.I32)
	block := f.NewBlock("entry")
	slot := &ir.InstAlloca{ElemType: types.I32}
	slot.Typ = types.NewPointer(types.I32)
	load := &ir.InstLoad{ElemType: types.I32, Src: slot}
	block.Insts = []ir.Instruction{slot, load}
	block.Term = &ir.TermRet{X: load}

	diags := &Diagnostics{}
	reads, writes := RewriteAccessSites(m, f, []string{"MyStruct"}, diags)
	if reads != 0 || writes != 0 {
		t.Fatalf("RewriteAccessSites = (%d, %d), want (0, 0) for an unrelated load", reads, writes)
	}
	if len(diags.Entries()) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags.Entries())
	}
}
