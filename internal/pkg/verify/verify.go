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

// Package verify implements the module well-formedness checks the pass
// driver runs after rewriting.
//
// No off-the-shelf LLVM-module verifier is available for this IR
// library, so this is one of the few components in this repository with
// no third-party library to lean on; it is hand written against the
// same ir/types vocabulary the rest of the pass uses.
package verify

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// Module checks m for the subset of well-formedness properties this pass
// cares about: no two functions share a name, and every instruction's
// value operands are defined before they are used. It exists to catch
// the rewriter corrupting structure, not to be a general LLVM verifier.
func Module(m *ir.Module) error {
	seen := make(map[string]bool, len(m.Funcs))
	for _, f := range m.Funcs {
		if seen[f.Name()] {
			return fmt.Errorf("verify: duplicate function name %q", f.Name())
		}
		seen[f.Name()] = true

		if len(f.Blocks) == 0 {
			continue
		}

		if err := checkDefBeforeUse(f); err != nil {
			return fmt.Errorf("verify: function %s: %w", f.Name(), err)
		}
	}
	return nil
}

// checkDefBeforeUse enforces straight-line def-before-use within each
// block, plus "defined by a parameter or an earlier block" across blocks.
// It does not compute dominance over arbitrary control flow; that is out
// of scope for this pass's own correctness checks (see Module).
func checkDefBeforeUse(f *ir.Func) error {
	defined := make(map[ir.Instruction]bool)
	known := make(map[interface{}]bool)

	for _, p := range f.Params {
		known[p] = true
	}

	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			for _, src := range instSources(inst) {
				if srcInst, ok := src.(ir.Instruction); ok {
					if !defined[srcInst] && !known[src] {
						return fmt.Errorf("use of %v before definition", srcInst)
					}
				}
			}
			defined[inst] = true
			known[inst] = true
		}
	}
	return nil
}

// instSources returns the instruction-valued operands of inst worth
// checking for def-before-use. Constants, globals, and parameters are
// always "known" and are filtered out by the caller.
func instSources(inst ir.Instruction) []interface{} {
	switch x := inst.(type) {
	case *ir.InstLoad:
		return []interface{}{x.Src}
	case *ir.InstStore:
		return []interface{}{x.Src, x.Dst}
	case *ir.InstGetElementPtr:
		out := []interface{}{x.Src}
		for _, idx := range x.Indices {
			out = append(out, idx)
		}
		return out
	case *ir.InstCall:
		out := []interface{}{x.Callee}
		for _, a := range x.Args {
			out = append(out, a)
		}
		return out
	}
	return nil
}

// NoProtectedFieldAddr reports an error if f still contains a
// GetElementPtr whose source operand is a pointer to one of the named
// protected structs. Called separately from Module by the pass, scoped
// to just the function it rewrote, because a module may legitimately
// contain protected-pointer GEPs in functions the pass was never asked
// to touch.
func NoProtectedFieldAddr(f *ir.Func, protected []string) error {
	for _, b := range f.Blocks {
		for _, inst := range b.Insts {
			g, ok := inst.(*ir.InstGetElementPtr)
			if !ok {
				continue
			}
			if isProtectedPtr(g.Src.Type(), protected) {
				return fmt.Errorf("verify: function %s still addresses a protected-pointer field directly", f.Name())
			}
		}
	}
	return nil
}

// structPrefix mirrors the struct. qualifier fakeptr.StrippedStructName
// strips: protected names arrive here already stripped (config.go strips
// it on load), but a clang-lowered struct type's own Name() has not been,
// so both sides must be normalized before comparing.
const structPrefix = "struct."

func isProtectedPtr(t types.Type, protected []string) bool {
	pt, ok := t.(*types.PointerType)
	if !ok {
		return false
	}
	st, ok := pt.ElemType.(*types.StructType)
	if !ok || st.Name() == "" {
		return false
	}
	stripped := strings.TrimPrefix(st.Name(), structPrefix)
	for _, n := range protected {
		if strings.TrimPrefix(n, structPrefix) == stripped {
			return true
		}
	}
	return false
}
