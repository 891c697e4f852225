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

package verify

import (
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func namedStruct(name string) *types.StructType {
	st := types.NewStruct(types.I32)
	st.SetName(name)
	return st
}

func TestModuleAcceptsWellFormedFunction(t *testing.T) {
	m := &ir.Module{}
	f := m.NewFunc("f", types.I32, ir.NewParam("n", types.I32))
	block := f.NewBlock("entry")
	alloca := &ir.InstAlloca{ElemType: types.I32}
	alloca.Typ = types.NewPointer(types.I32)
	store := &ir.InstStore{Src: f.Params[0], Dst: alloca}
	load := &ir.InstLoad{ElemType: types.I32, Src: alloca}
	block.Insts = []ir.Instruction{alloca, store, load}
	block.Term = &ir.TermRet{X: load}

	if err := Module(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModuleRejectsDuplicateFunctionNames(t *testing.T) {
	m := &ir.Module{}
	m.NewFunc("f", types.Void)
	m.NewFunc("f", types.Void)

	if err := Module(m); err == nil {
		t.Fatal("expected an error for duplicate function names")
	}
}

func TestModuleRejectsUseBeforeDefinition(t *testing.T) {
	m := &ir.Module{}
	f := m.NewFunc("f", types.Void)
	block := f.NewBlock("entry")

	// A load of an alloca that appears later in program order.
	laterAlloca := &ir.InstAlloca{ElemType: types.I32}
	laterAlloca.Typ = types.NewPointer(types.I32)
	load := &ir.InstLoad{ElemType: types.I32, Src: laterAlloca}
	load.Typ = types.I32

	block.Insts = []ir.Instruction{load, laterAlloca}
	block.Term = &ir.TermRet{X: nil}

	if err := Module(m); err == nil {
		t.Fatal("expected an error when an instruction uses a value defined later")
	}
}

func TestNoProtectedFieldAddrAcceptsHandleOnlyFunction(t *testing.T) {
	m := &ir.Module{}
	handle := types.NewStruct(types.I32)
	handle.SetName("FakePtr")
	f := m.NewFunc("f", types.Void, ir.NewParam("h", types.NewPointer(handle)))
	block := f.NewBlock("entry")
	fieldAddr := &ir.InstGetElementPtr{ElemType: handle, Src: f.Params[0], InBounds: true}
	fieldAddr.Typ = types.NewPointer(types.I32)
	block.Insts = []ir.Instruction{fieldAddr}
	block.Term = &ir.TermRet{X: nil}

	if err := NoProtectedFieldAddr(f, []string{"MyStruct"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNoProtectedFieldAddrRejectsRemainingProtectedGEP(t *testing.T) {
	m := &ir.Module{}
	// Clang-lowered IR names structs struct.MyStruct; the protected list
	// passed in, by the time it reaches this check, has already had that
	// qualifier stripped (config.ProtectedNames does the stripping).
	elem := namedStruct("struct.MyStruct")
	ptr := types.NewPointer(elem)
	f := m.NewFunc("f", types.Void, ir.NewParam("p", ptr))
	block := f.NewBlock("entry")
	fieldAddr := &ir.InstGetElementPtr{ElemType: elem, Src: f.Params[0], InBounds: true}
	fieldAddr.Typ = types.NewPointer(types.I32)
	block.Insts = []ir.Instruction{fieldAddr}
	block.Term = &ir.TermRet{X: nil}

	if err := NoProtectedFieldAddr(f, []string{"MyStruct"}); err == nil {
		t.Fatal("expected an error: a protected-pointer field address must not survive the pass")
	}
}
