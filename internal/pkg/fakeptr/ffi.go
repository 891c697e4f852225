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
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// FFITable is the module-level table of foreign accessor declarations the
// access-site rewriter calls into. It is keyed by symbol name so that two
// rewrites that need the same accessor resolve to the one module-level
// declaration.
type FFITable struct {
	m     *ir.Module
	funcs map[string]*ir.Func
}

// NewFFITable builds a table over m, indexing any accessor declarations
// that already exist in the module, so re-running the pass against a
// module produced by a prior run is idempotent.
func NewFFITable(m *ir.Module) *FFITable {
	t := &FFITable{m: m, funcs: make(map[string]*ir.Func)}
	for _, f := range m.Funcs {
		t.funcs[f.Name()] = f
	}
	return t
}

// GetOrInsert returns the foreign function named name with the given
// return and argument types, declaring it on first use. A second request
// for the same name with a different signature returns a non-nil error
// instead of silently reusing the mismatched declaration.
func (t *FFITable) GetOrInsert(name string, retType types.Type, argTypes ...types.Type) (*ir.Func, error) {
	if f, ok := t.funcs[name]; ok {
		if !sameSignature(f, retType, argTypes) {
			return nil, fmt.Errorf("fakeptr: foreign accessor %s already declared with a different signature", name)
		}
		return f, nil
	}

	params := make([]*ir.Param, len(argTypes))
	for i, at := range argTypes {
		params[i] = ir.NewParam("", at)
	}

	f := t.m.NewFunc(name, retType, params...)
	f.Linkage = enum.LinkageExternal
	t.funcs[name] = f
	return f, nil
}

func sameSignature(f *ir.Func, retType types.Type, argTypes []types.Type) bool {
	if !types.Equal(f.Sig.RetType, retType) {
		return false
	}
	if len(f.Params) != len(argTypes) {
		return false
	}
	for i, p := range f.Params {
		if !types.Equal(p.Typ, argTypes[i]) {
			return false
		}
	}
	return true
}

// GetterName returns the canonical get_field_<k>_in_<S>_ffi symbol name.
func GetterName(structName string, field int64) string {
	return fmt.Sprintf("get_field_%d_in_%s_ffi", field, structName)
}

// SetterName returns the canonical set_field_<k>_in_<S>_ffi symbol name.
func SetterName(structName string, field int64) string {
	return fmt.Sprintf("set_field_%d_in_%s_ffi", field, structName)
}
