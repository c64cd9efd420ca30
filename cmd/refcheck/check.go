// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/sharedref/cmd/refcheck/analyze"
	"github.com/kolkov/sharedref/cmd/refcheck/modinfo"
)

// checkConfig holds parsed configuration for 'refcheck check'.
type checkConfig struct {
	paths      []string
	importPath string
	strict     bool
	skipTests  bool
	suggest    bool
}

// runCheck checks every file named by cfg.paths, writes findings to w and
// returns how many it found.
func runCheck(cfg checkConfig, w io.Writer, log logrus.FieldLogger) (int, error) {
	if len(cfg.paths) == 0 {
		cfg.paths = []string{"."}
	}
	if cfg.importPath == "" {
		cfg.importPath = analyze.DefaultImportPath
	}

	mod, err := modinfo.Find(rootOf(cfg.paths[0]))
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"module": mod.Path, "dir": mod.Dir}).Debug("module found")
		if cfg.strict {
			if _, ok := mod.Provides(cfg.importPath); !ok {
				return 0, errors.Newf("%s does not require %s", mod.Path, cfg.importPath)
			}
		}
	case errors.Is(err, modinfo.ErrNoModule) && !cfg.strict:
		log.Debug("no go.mod, reporting paths as given")
	default:
		return 0, err
	}

	files, err := collectFiles(cfg.paths, cfg.skipTests)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return total, errors.Wrapf(err, "reading %s", file)
		}
		name := file
		if mod != nil {
			name = mod.Rel(file)
		}
		findings, err := analyze.Source(name, src, cfg.importPath)
		if err != nil {
			return total, err
		}
		log.WithFields(logrus.Fields{"file": name, "findings": len(findings)}).Debug("checked")
		for _, f := range findings {
			if cfg.suggest {
				fmt.Fprintf(w, "%s\n\n", f.Long())
			} else {
				fmt.Fprintln(w, f.Error())
			}
		}
		total += len(findings)
	}
	log.WithFields(logrus.Fields{"files": len(files), "findings": total}).Info("check complete")
	return total, nil
}

// rootOf strips a trailing /... and returns a directory to start the
// go.mod search from.
func rootOf(path string) string {
	path = strings.TrimSuffix(path, "...")
	if path == "" {
		return "."
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

// collectFiles expands paths into a sorted, deduplicated list of Go files.
// A directory is checked non-recursively unless it ends in /...
func collectFiles(paths []string, skipTests bool) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(file string) {
		if !strings.HasSuffix(file, ".go") || (skipTests && strings.HasSuffix(file, "_test.go")) {
			return
		}
		if !seen[file] {
			seen[file] = true
			files = append(files, file)
		}
	}

	for _, p := range paths {
		recursive := strings.HasSuffix(p, "...")
		root := filepath.Clean(strings.TrimSuffix(strings.TrimSuffix(p, "..."), "/"))
		if root == "" {
			root = "."
		}

		info, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "checking %s", p)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == root {
					return nil
				}
				if !recursive || skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking %s", p)
		}
	}
	sort.Strings(files)
	return files, nil
}

func skipDir(name string) bool {
	return name == "vendor" || name == "testdata" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
