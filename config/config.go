// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads handler mapping files.
//
// A mapping file is YAML (.yaml, .yml) or JSON with comments and trailing
// commas (.json, .jsonc). It names the handler for each operation, and may
// also say which execution environment runs them:
//
//	environment: bash
//	script: hello.sh
//	handlers:
//	  getattr: hello_getattr
//	  readdir: hello_readdir
//
// Relative script and dir paths are relative to the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Execution environments a mapping file may name.
const (
	EnvironmentBash = "bash"
	EnvironmentExec = "exec"
)

type Mapping struct {
	// "bash" or "exec". Empty means the caller's default.
	Environment string `yaml:"environment" json:"environment"`

	// For bash: the shell binary and the script defining the functions.
	Shell  string `yaml:"shell" json:"shell"`
	Script string `yaml:"script" json:"script"`

	// Working directory for handler processes.
	Dir string `yaml:"dir" json:"dir"`

	// Operation name to handler identifier.
	Handlers map[string]string `yaml:"handlers" json:"handlers"`
}

// IsFile reports whether the mapping argument names a mapping file, as
// opposed to a bash associative array.
func IsFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	}

	return false
}

// Load reads the mapping file at the given path.
func Load(path string) (m *Mapping, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("reading %s: %w", path, err)
		return
	}

	m, err = Parse(data, filepath.Ext(path))
	if err != nil {
		err = fmt.Errorf("%s: %w", path, err)
		return
	}

	dir := filepath.Dir(path)
	m.Script = resolve(dir, m.Script)
	m.Dir = resolve(dir, m.Dir)

	return
}

// Parse decodes a mapping in the format implied by the file extension ext.
// Relative paths are left alone.
func Parse(data []byte, ext string) (m *Mapping, err error) {
	m = &Mapping{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, m)

	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), m)

	default:
		err = fmt.Errorf("unknown mapping file extension %q", ext)
	}

	if err != nil {
		m = nil
		return
	}

	if err = m.validate(); err != nil {
		m = nil
		return
	}

	return
}

func (m *Mapping) validate() error {
	switch m.Environment {
	case "", EnvironmentBash, EnvironmentExec:
	default:
		return fmt.Errorf("unknown environment %q", m.Environment)
	}

	if m.Handlers == nil {
		return fmt.Errorf("no handlers")
	}

	return nil
}

func resolve(dir string, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(dir, p)
}
