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
	"io"
)

// SkipReason enumerates the benign conditions under which a function,
// argument, or access site is left unchanged. Every skip taken by the
// pass carries one of these rather than a free-form sentinel string.
type SkipReason int

const (
	// SkipDeclarationOnly marks a function with no instructions.
	SkipDeclarationOnly SkipReason = iota
	// SkipSignatureUnchanged marks a function whose corrected signature
	// equals its original signature.
	SkipSignatureUnchanged
	// SkipNoPrologueStore marks a changed argument for which no store of
	// its value into any location could be found.
	SkipNoPrologueStore
	// SkipNonAllocaPrologue marks a changed argument whose first store's
	// destination is not a stack allocation.
	SkipNonAllocaPrologue
	// SkipNonHandlePointerLoad marks a candidate access site whose inner
	// load does not produce a handle-pointer value.
	SkipNonHandlePointerLoad
	// SkipNonConstantFieldIndex marks a candidate access site whose
	// trailing index operand is not a compile-time constant integer.
	SkipNonConstantFieldIndex
	// SkipFFISignatureMismatch marks a foreign-function lookup whose
	// existing declaration does not match the signature requested by a
	// new call site. The site is left unrewritten, so the pass driver's
	// post-rewrite protected-field check then fails the run.
	SkipFFISignatureMismatch
)

func (r SkipReason) String() string {
	switch r {
	case SkipDeclarationOnly:
		return "declaration-only function"
	case SkipSignatureUnchanged:
		return "signature unchanged after type correction"
	case SkipNoPrologueStore:
		return "no store of argument value found"
	case SkipNonAllocaPrologue:
		return "entry store destination is not a stack allocation"
	case SkipNonHandlePointerLoad:
		return "inner load does not produce a handle pointer"
	case SkipNonConstantFieldIndex:
		return "field index is not a compile-time constant"
	case SkipFFISignatureMismatch:
		return "foreign accessor redeclared with a different signature"
	default:
		return "unknown skip reason"
	}
}

// Diagnostic is a single one-line note about a skipped rewrite.
type Diagnostic struct {
	Func   string
	Reason SkipReason
	Detail string
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("fakeptr: %s: %s", d.Func, d.Reason)
	}
	return fmt.Sprintf("fakeptr: %s: %s: %s", d.Func, d.Reason, d.Detail)
}

// Diagnostics accumulates the diagnostics produced by one pass run.
type Diagnostics struct {
	entries []Diagnostic
}

// Record appends a diagnostic to the sink.
func (d *Diagnostics) Record(diag Diagnostic) {
	d.entries = append(d.entries, diag)
}

// Entries returns the accumulated diagnostics in emission order.
func (d *Diagnostics) Entries() []Diagnostic {
	return d.entries
}

// WriteTo renders every accumulated diagnostic to w, one per line.
func (d *Diagnostics) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, e := range d.entries {
		m, err := fmt.Fprintln(w, e.String())
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
