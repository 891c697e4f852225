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
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	// configPath is the path to the YAML file listing protected struct
	// names. Empty means "use the hardcoded MyStruct set".
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fakeptr",
		Short: "fakeptr - FakePtr protection IR pass",
		Long: `fakeptr rewrites pointers to a configured set of record types into
32-bit opaque handles and redirects every field access on those pointers
through foreign get_field_i_in_T / set_field_i_in_T calls.`,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a protected-set config file (default: the reference MyStruct set)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}
