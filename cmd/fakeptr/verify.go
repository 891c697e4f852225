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

package main

import (
	"fmt"

	"github.com/llir/llvm/asm"
	"github.com/spf13/cobra"

	"github.com/go-fakeptr/fakeptr/internal/pkg/verify"
)

func newVerifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <input.ll>",
		Short: "Check that an LLVM IR module is well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := asm.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("fakeptr: parsing %s: %w", args[0], err)
			}
			if err := verify.Module(m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
