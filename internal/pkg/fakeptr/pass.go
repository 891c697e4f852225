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

	"github.com/go-fakeptr/fakeptr/internal/pkg/verify"
)

// Pass is the module-transform entry point: given a module, mutate it in
// place and report whether anything changed. It is safe to run at
// optimization level 0 as well as within a normal pipeline, because it
// performs no analysis that depends on prior optimization having run.
type Pass struct {
	// Name is the identifier this pass is registered under.
	Name string
	// Doc is a short, human-readable description.
	Doc string
	// Protected is the ordered list of qualified struct names this run
	// treats as protected records.
	Protected []string
}

// NewPass constructs the fakeptr pass over the given protected-record
// names.
func NewPass(protected []string) *Pass {
	return &Pass{
		Name:      "fakeptr",
		Doc:       "FakePtr protection",
		Protected: protected,
	}
}

// Run iterates m's function list with a defensive "capture next, then
// visit" pattern so that replacing the just-visited function cannot
// invalidate the cursor, skips declaration-only functions, and finishes
// by verifying m.
func (p *Pass) Run(m *ir.Module, diags *Diagnostics) (changed bool, err error) {
	if diags == nil {
		diags = &Diagnostics{}
	}

	funcs := make([]*ir.Func, len(m.Funcs))
	copy(funcs, m.Funcs)

	for _, f := range funcs {
		if len(f.Blocks) == 0 {
			continue
		}

		plan := RewriteSignature(m, f, p.Protected, diags)
		if plan == nil {
			continue
		}

		FixPrologue(m, plan, diags)

		reads, writes := RewriteAccessSites(m, plan.New, p.Protected, diags)
		_ = reads
		_ = writes

		FinishRewrite(m, plan)
		changed = true

		if verr := verify.NoProtectedFieldAddr(plan.New, p.Protected); verr != nil {
			return changed, verr
		}
	}

	if verr := verify.Module(m); verr != nil {
		return changed, verr
	}

	return changed, nil
}
