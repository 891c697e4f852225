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
	"log"
	"os"

	"github.com/llir/llvm/asm"
	"github.com/spf13/cobra"

	fakeptrcfg "github.com/go-fakeptr/fakeptr/internal/pkg/config"
	"github.com/go-fakeptr/fakeptr/pkg/fakeptr"
)

type runOptions struct {
	*rootOptions
	output string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <input.ll>",
		Short: "Run the FakePtr protection pass over an LLVM IR module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (default: stdout)")

	return cmd
}

func runPass(opts *runOptions, input string) error {
	m, err := asm.ParseFile(input)
	if err != nil {
		return fmt.Errorf("fakeptr: parsing %s: %w", input, err)
	}

	if opts.configPath != "" {
		fakeptrcfg.SetPath(opts.configPath)
	}
	conf, err := fakeptrcfg.ReadConfig()
	if err != nil {
		return fmt.Errorf("fakeptr: %w", err)
	}

	pass := fakeptr.New(conf.ProtectedNames()...)
	diags := &fakeptr.Diagnostics{}

	changed, err := pass.Run(m, diags)
	if _, werr := diags.WriteTo(os.Stderr); werr != nil {
		log.Printf("fakeptr: failed to write diagnostics: %v", werr)
	}
	if err != nil {
		return fmt.Errorf("fakeptr: %w", err)
	}

	if changed {
		log.Printf("fakeptr: rewrote module %s", input)
	} else {
		log.Printf("fakeptr: no changes to %s", input)
	}

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("fakeptr: creating %s: %w", opts.output, err)
		}
		defer f.Close()
		out = f
	}

	if _, err := fmt.Fprint(out, m); err != nil {
		return fmt.Errorf("fakeptr: writing output: %w", err)
	}
	return nil
}
