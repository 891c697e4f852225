// Package fakeptr exports the fakeptr module pass.
package fakeptr

import (
	"github.com/go-fakeptr/fakeptr/internal/pkg/config"
	internal "github.com/go-fakeptr/fakeptr/internal/pkg/fakeptr"
)

// Diagnostic is a single skip/diagnostic note produced by a pass run.
type Diagnostic = internal.Diagnostic

// Diagnostics accumulates the diagnostics produced by one pass run.
type Diagnostics = internal.Diagnostics

// New constructs the fakeptr pass over the given protected-record names.
// If names is empty, the reference configuration's single protected
// name, MyStruct, is used.
func New(names ...string) *internal.Pass {
	if len(names) == 0 {
		names = config.ReferenceProtectedNames
	}
	return internal.NewPass(names)
}
