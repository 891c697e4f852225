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
	"github.com/llir/llvm/ir/types"
)

// HandleTypeName is the stable name under which the handle aggregate is
// interned in a module's type context.
const HandleTypeName = "FakePtr"

// InternHandleType returns the module's FakePtr handle type, creating it on
// first use. The handle is a named, unpacked, single-field aggregate
// wrapping a 32-bit integer: calling InternHandleType twice on the same
// module returns the identical *types.StructType both times, so the
// handle stays structurally unique and is never accidentally interchangeable
// with a raw record pointer.
func InternHandleType(m *ir.Module) *types.StructType {
	for _, t := range m.TypeDefs {
		if st, ok := t.(*types.StructType); ok && st.Name() == HandleTypeName {
			return st
		}
	}

	st := types.NewStruct(types.I32)
	st.SetName(HandleTypeName)
	st.Packed = false
	m.TypeDefs = append(m.TypeDefs, st)
	return st
}
