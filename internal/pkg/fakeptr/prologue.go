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

// FixPrologue retypes, for every changed parameter index in plan, the
// stack slot that the entry prologue stores the argument into from
// "pointer to record" to the handle aggregate, and redirects the
// original store at the handle's sole integer field.
//
// The canonical front-end lowering for a by-pointer parameter is
// `alloca T*; store %arg, %slot; ...loads from %slot...`. Retyping the
// slot and pointing the initial store at the handle's integer field means
// every later `load` from %slot observes a well-formed handle value.
func FixPrologue(m *ir.Module, plan *RewritePlan, diags *Diagnostics) {
	handle := InternHandleType(m)

	for _, i := range plan.ChangedArgs {
		arg := plan.New.Params[i]

		block, store := findFirstStoreOf(plan.New, arg)
		if store == nil {
			diags.Record(Diagnostic{Func: plan.New.Name(), Reason: SkipNoPrologueStore})
			continue
		}

		alloca, aBlock, aIdx := findAllocaOf(plan.New, store.Dst)
		if alloca == nil {
			diags.Record(Diagnostic{Func: plan.New.Name(), Reason: SkipNonAllocaPrologue})
			continue
		}

		alloca.ElemType = handle
		alloca.Typ = types.NewPointer(handle)
		alloca.Align = 4
		alloca.SetName(handleSlotName(arg.Name()))
		_ = aBlock
		_ = aIdx

		fieldPtrType := types.NewPointer(types.I32)
		fieldAddr := &ir.InstGetElementPtr{
			ElemType: handle,
			Src:      alloca,
			Indices: []value.Value{
				constant.NewInt(types.I32, 0),
				constant.NewInt(types.I32, 0),
			},
			InBounds: true,
		}
		fieldAddr.Typ = fieldPtrType

		storeIdx := instIndex(block, store)
		block.Insts = insertInstAt(block.Insts, storeIdx, fieldAddr)

		store.Dst = fieldAddr
		store.Src = arg
		store.Align = 4
	}
}

func handleSlotName(argName string) string {
	if argName == "" {
		return "handle.addr"
	}
	return argName + ".handle.addr"
}

// findFirstStoreOf returns the first instruction, in program order, that
// stores v's value somewhere, along with the block it lives in.
func findFirstStoreOf(f *ir.Func, v value.Value) (*ir.Block, *ir.InstStore) {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			if st, ok := inst.(*ir.InstStore); ok && st.Src == v {
				return b, st
			}
		}
	}
	return nil, nil
}

// findAllocaOf returns the *ir.InstAlloca that dst refers to, along with
// its block and index within that block's instruction list, or nil if dst
// is not (directly) a stack allocation.
func findAllocaOf(f *ir.Func, dst value.Value) (*ir.InstAlloca, *ir.Block, int) {
	alloca, ok := dst.(*ir.InstAlloca)
	if !ok {
		return nil, nil, -1
	}
	for _, b := range f.Blocks {
		for idx, inst := range b.Insts {
			if inst == alloca {
				return alloca, b, idx
			}
		}
	}
	return nil, nil, -1
}

func instIndex(b *ir.Block, inst ir.Instruction) int {
	for i, x := range b.Insts {
		if x == inst {
			return i
		}
	}
	return -1
}

// insertInstAt inserts inst into insts at position idx, shifting later
// instructions down by one.
func insertInstAt(insts []ir.Instruction, idx int, inst ir.Instruction) []ir.Instruction {
	insts = append(insts, nil)
	copy(insts[idx+1:], insts[idx:])
	insts[idx] = inst
	return insts
}
