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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadConfigDefaultsToReferenceSet(t *testing.T) {
	Reset()
	defer Reset()

	c, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig() returned error: %v", err)
	}

	if diff := cmp.Diff(ReferenceProtectedNames, c.ProtectedNames()); diff != "" {
		t.Errorf("ProtectedNames() diff (-want +got):\n%s", diff)
	}
}

func TestReadConfigFromFile(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "fakeptr.yaml")
	const content = "protected:\n  - name: struct.Account\n  - name: Session\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	SetPath(path)
	c, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig() returned error: %v", err)
	}

	want := []string{"Account", "Session"}
	if diff := cmp.Diff(want, c.ProtectedNames()); diff != "" {
		t.Errorf("ProtectedNames() diff (-want +got):\n%s", diff)
	}
}

func TestReadConfigIsCached(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "fakeptr.yaml")
	if err := os.WriteFile(path, []byte("protected:\n  - name: A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	SetPath(path)

	first, err := ReadConfig()
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the file after the first read must not affect the cached
	// result: ReadConfig only ever reads the file once per process.
	if err := os.WriteFile(path, []byte("protected:\n  - name: B\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := ReadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first.ProtectedNames(), second.ProtectedNames()); diff != "" {
		t.Errorf("cached ProtectedNames() diff (-want +got):\n%s", diff)
	}
}

func TestReadConfigMissingFile(t *testing.T) {
	Reset()
	defer Reset()

	SetPath(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if _, err := ReadConfig(); err == nil {
		t.Fatal("ReadConfig() with a missing file: got nil error, want non-nil")
	}
}
