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
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// RewritePlan is the per-function output of the signature rewriter: the
// old function, the new function it was replaced by, and which parameter
// indices were actually retyped.
type RewritePlan struct {
	Old         *ir.Func
	New         *ir.Func
	ChangedArgs []int
}

// RewriteSignature returns a nil plan (and no error) when f is
// declaration-only or when correcting its parameter types leaves the
// signature unchanged — both are skips, not errors.
//
// RewriteSignature moves Old's blocks onto New but does not delete Old:
// the prologue fixer and the access-site rewriter operate on New first,
// and Old is only deleted once both have run, by FinishRewrite from the
// pass driver.
func RewriteSignature(m *ir.Module, f *ir.Func, protected []string, diags *Diagnostics) *RewritePlan {
	if len(f.Blocks) == 0 {
		diags.Record(Diagnostic{Func: f.Name(), Reason: SkipDeclarationOnly})
		return nil
	}

	newParamTypes := make([]types.Type, len(f.Params))
	newAttrs := make([][]ir.ParamAttribute, len(f.Params))
	var changed []int

	for i, p := range f.Params {
		corrected := CorrectType(p.Typ, protected, types.I32)
		newParamTypes[i] = corrected
		newAttrs[i] = append([]ir.ParamAttribute{}, p.Attrs...)
		if !types.Equal(corrected, p.Typ) {
			changed = append(changed, i)
		}
	}

	if len(changed) == 0 {
		diags.Record(Diagnostic{Func: f.Name(), Reason: SkipSignatureUnchanged})
		return nil
	}

	newParams := make([]*ir.Param, len(f.Params))
	for i, t := range newParamTypes {
		np := ir.NewParam(f.Params[i].Name(), t)
		np.Attrs = newAttrs[i]
		newParams[i] = np
	}

	newFunc := &ir.Func{
		Sig: types.NewFunc(f.Sig.RetType, newParamTypes...),
	}
	newFunc.Sig.Variadic = f.Sig.Variadic
	newFunc.Params = newParams
	newFunc.Linkage = f.Linkage
	newFunc.Preemption = f.Preemption
	newFunc.Visibility = f.Visibility
	newFunc.DLLStorageClass = f.DLLStorageClass
	newFunc.CallingConv = f.CallingConv
	newFunc.ReturnAttrs = append([]ir.ReturnAttribute{}, f.ReturnAttrs...)
	newFunc.UnnamedAddr = f.UnnamedAddr
	newFunc.AddrSpace = f.AddrSpace
	newFunc.FuncAttrs = append([]ir.FuncAttribute{}, f.FuncAttrs...)
	newFunc.Section = f.Section
	newFunc.Partition = f.Partition
	newFunc.Comdat = f.Comdat
	newFunc.GC = f.GC
	newFunc.Prefix = f.Prefix
	newFunc.Prologue = f.Prologue
	newFunc.Personality = f.Personality
	newFunc.Metadata = append(ir.Metadata{}, f.Metadata...)
	newFunc.SetName(f.Name())

	insertFuncBefore(m, f, newFunc)

	// Move, not copy, the basic block list.
	newFunc.Blocks = f.Blocks
	for _, b := range newFunc.Blocks {
		b.Parent = newFunc
	}
	f.Blocks = nil

	// Rewrite every use of each old argument to the corresponding new
	// argument: no instruction in New may still reference an Old
	// argument value.
	for i, old := range f.Params {
		replaceValueInFunc(newFunc, old, newParams[i])
	}

	return &RewritePlan{Old: f, New: newFunc, ChangedArgs: changed}
}

// insertFuncBefore inserts newFunc into m.Funcs immediately before old:
// the new function takes the old function's position. It already carries
// the old function's name, so both share it until FinishRewrite removes
// old.
func insertFuncBefore(m *ir.Module, old, newFunc *ir.Func) {
	idx := 0
	for i, f := range m.Funcs {
		if f == old {
			idx = i
			break
		}
	}
	m.Funcs = append(m.Funcs, nil)
	copy(m.Funcs[idx+1:], m.Funcs[idx:])
	m.Funcs[idx] = newFunc
}

// FinishRewrite strips the OptimizeNone attribute from the new function
// and deletes the old one. Called by the pass driver only after the
// prologue fixer and access-site rewriter have finished with plan.New.
func FinishRewrite(m *ir.Module, plan *RewritePlan) {
	plan.New.FuncAttrs = stripOptnone(plan.New.FuncAttrs)
	removeFunc(m, plan.Old)
}

func stripOptnone(attrs []ir.FuncAttribute) []ir.FuncAttribute {
	out := attrs[:0:0]
	for _, a := range attrs {
		if isOptnone(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func isOptnone(a ir.FuncAttribute) bool {
	s, ok := a.(fmt.Stringer)
	return ok && s.String() == "optnone"
}

func removeFunc(m *ir.Module, f *ir.Func) {
	for i, fn := range m.Funcs {
		if fn == f {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			return
		}
	}
}
