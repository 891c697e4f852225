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

// Package config reads the protected-set configuration surface the
// fakeptr pass is constructed from.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"sigs.k8s.io/yaml"
)

// Protected names a single record type the pass should protect. It is
// exported as a struct, rather than a bare string, so the YAML schema has
// room to grow (per-type overrides, a comment field) without a breaking
// config format change.
type Protected struct {
	Name string `json:"name"`
}

// Config is the protected-set configuration surface: an ordered list of
// qualified struct names.
type Config struct {
	Protected []Protected `json:"protected"`
}

// ProtectedNames returns the configured names, each normalized by
// stripping a struct. qualifier if present, in file order.
func (c Config) ProtectedNames() []string {
	names := make([]string, len(c.Protected))
	for i, p := range c.Protected {
		names[i] = strings.TrimPrefix(p.Name, "struct.")
	}
	return names
}

// ReferenceProtectedNames is the protected set used when no configuration
// file is supplied: the single entry struct.MyStruct.
var ReferenceProtectedNames = []string{"MyStruct"}

var (
	readFileOnce        sync.Once
	readConfigCached     *Config
	readConfigCachedErr  error
	configPath           string
)

// SetPath overrides the path ReadConfig reads from. It must be called
// before the first ReadConfig call; the result of ReadConfig is cached
// for the lifetime of the process.
func SetPath(path string) {
	configPath = path
}

// ReadConfig reads and caches the protected-set configuration. If no path
// has been set via SetPath, it falls back to ReferenceProtectedNames
// rather than failing outright.
func ReadConfig() (*Config, error) {
	readFileOnce.Do(func() {
		if configPath == "" {
			readConfigCached = &Config{}
			for _, n := range ReferenceProtectedNames {
				readConfigCached.Protected = append(readConfigCached.Protected, Protected{Name: n})
			}
			return
		}

		bytes, err := os.ReadFile(configPath)
		if err != nil {
			readConfigCachedErr = fmt.Errorf("fakeptr: error reading config %s: %w", configPath, err)
			return
		}

		c := new(Config)
		if err := yaml.UnmarshalStrict(bytes, c); err != nil {
			readConfigCachedErr = fmt.Errorf("fakeptr: error parsing config %s: %w", configPath, err)
			return
		}
		readConfigCached = c
	})
	return readConfigCached, readConfigCachedErr
}

// Reset clears the cached configuration, for use between test cases that
// each want to call SetPath and ReadConfig independently.
func Reset() {
	readFileOnce = sync.Once{}
	readConfigCached = nil
	readConfigCachedErr = nil
	configPath = ""
}
