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

// Package fakeptr implements the FakePtr protection pass: it retypes
// pointer parameters to a configured set of record types into 32-bit
// handles and redirects field access on those handles through foreign
// get_field_i_in_T / set_field_i_in_T calls.
package fakeptr

import (
	"strings"

	"github.com/llir/llvm/ir/types"
)

// structPrefix is the qualifier some frontends (clang's IR, in particular)
// prepend to named struct types. Isolating the convention here means the
// rest of the pass only ever deals in bare, qualified struct names.
const structPrefix = "struct."

// StrippedStructName returns the qualified name of t with any struct.
// prefix removed, or the empty string if t is not a named aggregate (or a
// pointer to one).
func StrippedStructName(t types.Type) string {
	st := asStructType(t)
	if st == nil {
		return ""
	}
	return strings.TrimPrefix(st.Name(), structPrefix)
}

// asStructType returns the named struct type underlying t, looking through
// exactly one level of pointer indirection, or nil if t is neither a named
// struct nor a pointer to one.
func asStructType(t types.Type) *types.StructType {
	switch tt := t.(type) {
	case *types.StructType:
		if tt.Name() == "" {
			return nil
		}
		return tt
	case *types.PointerType:
		if st, ok := tt.ElemType.(*types.StructType); ok && st.Name() != "" {
			return st
		}
	}
	return nil
}

// IsStructWithName reports whether t is a named aggregate whose
// (prefix-stripped) name matches an entry of names.
func IsStructWithName(t types.Type, names []string) bool {
	st, ok := t.(*types.StructType)
	if !ok {
		return false
	}
	return nameMatches(st, names)
}

// IsStructPtrWithName reports whether t is a pointer whose pointee is a
// named aggregate matching an entry of names.
func IsStructPtrWithName(t types.Type, names []string) bool {
	pt, ok := t.(*types.PointerType)
	if !ok {
		return false
	}
	st, ok := pt.ElemType.(*types.StructType)
	if !ok {
		return false
	}
	return nameMatches(st, names)
}

func nameMatches(st *types.StructType, names []string) bool {
	if st.Name() == "" {
		return false
	}
	stripped := strings.TrimPrefix(st.Name(), structPrefix)
	for _, n := range names {
		if strings.TrimPrefix(n, structPrefix) == stripped {
			return true
		}
	}
	return false
}

// CorrectType returns replacement when t is a pointer to a protected
// record named in names, and t unchanged otherwise.
func CorrectType(t types.Type, names []string, replacement types.Type) types.Type {
	if IsStructPtrWithName(t, names) {
		return replacement
	}
	return t
}
