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
	"github.com/llir/llvm/ir/value"
)

// operandRefs returns pointers to every value.Value operand slot of inst
// that this pass ever produces or consumes. llir/llvm keeps no use-list,
// so "replace every use of X" and "count uses of X" are both implemented
// by walking operand slots directly; this is the single place that knows
// the operand layout of each instruction and terminator kind this pass
// touches.
func operandRefs(inst ir.Instruction) []*value.Value {
	switch x := inst.(type) {
	case *ir.InstLoad:
		return []*value.Value{&x.Src}
	case *ir.InstStore:
		return []*value.Value{&x.Src, &x.Dst}
	case *ir.InstGetElementPtr:
		refs := []*value.Value{&x.Src}
		for i := range x.Indices {
			refs = append(refs, &x.Indices[i])
		}
		return refs
	case *ir.InstCall:
		refs := []*value.Value{&x.Callee}
		for i := range x.Args {
			refs = append(refs, &x.Args[i])
		}
		return refs
	case *ir.InstPhi:
		refs := make([]*value.Value, len(x.Incs))
		for i := range x.Incs {
			refs[i] = &x.Incs[i].X
		}
		return refs
	}
	return nil
}

func termOperandRefs(term ir.Terminator) []*value.Value {
	switch x := term.(type) {
	case *ir.TermRet:
		if x.X == nil {
			return nil
		}
		return []*value.Value{&x.X}
	case *ir.TermBr:
		return nil
	case *ir.TermCondBr:
		return []*value.Value{&x.Cond}
	case *ir.TermSwitch:
		return []*value.Value{&x.X}
	}
	return nil
}

// replaceValueInFunc rewrites every operand slot in f that currently holds
// old to instead hold repl.
func replaceValueInFunc(f *ir.Func, old, repl value.Value) {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			for _, ref := range operandRefs(inst) {
				if *ref == old {
					*ref = repl
				}
			}
		}
		if b.Term != nil {
			for _, ref := range termOperandRefs(b.Term) {
				if *ref == old {
					*ref = repl
				}
			}
		}
	}
}

// countUsesInFunc counts the operand slots in f that currently hold v.
func countUsesInFunc(f *ir.Func, v value.Value) int {
	n := 0
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			for _, ref := range operandRefs(inst) {
				if *ref == v {
					n++
				}
			}
		}
		if b.Term != nil {
			for _, ref := range termOperandRefs(b.Term) {
				if *ref == v {
					n++
				}
			}
		}
	}
	return n
}
