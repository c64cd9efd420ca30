// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package modinfo locates and reads the go.mod of the module being checked.
package modinfo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/mod/modfile"
)

// ErrNoModule is returned when no go.mod exists in a directory or any of
// its parents.
var ErrNoModule = errors.New("go.mod not found")

// Module is a parsed go.mod.
type Module struct {
	Dir       string // directory containing go.mod
	Path      string // module path
	GoVersion string // go directive, empty if absent

	requires map[string]string
}

// Find walks up from dir to the nearest go.mod and parses it.
func Find(dir string) (*Module, error) {
	root, err := findRoot(dir)
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(root, "go.mod"))
}

// Load parses the go.mod at path.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading go.mod")
	}
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if f.Module == nil {
		return nil, errors.Newf("%s: no module directive", path)
	}

	m := &Module{
		Dir:      filepath.Dir(path),
		Path:     f.Module.Mod.Path,
		requires: make(map[string]string, len(f.Require)),
	}
	if f.Go != nil {
		m.GoVersion = f.Go.Version
	}
	for _, r := range f.Require {
		m.requires[r.Mod.Path] = r.Mod.Version
	}
	return m, nil
}

// Requires returns the required version of the module path, if any. The
// module itself is reported as required with an empty version.
func (m *Module) Requires(path string) (string, bool) {
	if path == m.Path {
		return "", true
	}
	v, ok := m.requires[path]
	return v, ok
}

// Provides reports whether importPath belongs to the module or to one of
// its requirements, and returns the providing module's version.
func (m *Module) Provides(importPath string) (string, bool) {
	for p := importPath; p != "." && p != "/" && p != ""; p = parent(p) {
		if v, ok := m.Requires(p); ok {
			return v, true
		}
	}
	return "", false
}

// Rel returns file relative to the module root, or file unchanged if it
// lies outside the module.
func (m *Module) Rel(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		return file
	}
	rel, err := filepath.Rel(m.Dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return rel
}

func parent(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// findRoot walks up from dir until it finds go.mod.
func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolving directory")
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", ErrNoModule
		}
		dir = up
	}
}
