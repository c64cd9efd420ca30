// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/sharedref/shared"
)

const leaky = `package app

import "github.com/kolkov/sharedref/shared"

func Leak() {
	shared.Make(1)
}
`

const clean = `package app

import "github.com/kolkov/sharedref/shared"

func Clean() int {
	s := shared.Make(1)
	defer s.Reset()
	return *s.Deref()
}
`

// writeTree creates files (path → content) under a fresh module root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func module(requires string) string {
	return "module example.com/app\n\ngo 1.24\n" + requires
}

func TestCheckReportsFindings(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":               module(""),
		"leak.go":              leaky,
		"clean.go":             clean,
		"sub/leak.go":          leaky,
		"vendor/x/leak.go":     leaky,
		"testdata/leak.go":     leaky,
		"_scratch/leak.go":     leaky,
		"sub/leak_test.go":     leaky,
		"sub/notes.txt":        "shared.Make(1)",
		".hidden/leak.go":      leaky,
		"sub/deeper/x/leak.go": leaky,
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "check", root + "/..."}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "refcheck: 4 finding(s)")

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, []string{
		"leak.go:6:2: RC001 result of shared.Make(...) is discarded",
		filepath.Join("sub", "deeper", "x", "leak.go") + ":6:2: RC001 result of shared.Make(...) is discarded",
		filepath.Join("sub", "leak.go") + ":6:2: RC001 result of shared.Make(...) is discarded",
		filepath.Join("sub", "leak_test.go") + ":6:2: RC001 result of shared.Make(...) is discarded",
	}, lines)
}

func TestCheckNonRecursiveAndSkipTests(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":       module(""),
		"clean.go":     clean,
		"leak_test.go": leaky,
		"sub/leak.go":  leaky,
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "check", "--skip-tests", root}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Empty(t, stdout.String())
}

func TestCheckSuggest(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":  module(""),
		"leak.go": leaky,
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "check", "--suggest", filepath.Join(root, "leak.go")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "\n\nSuggestion: The call creates a new owner")
}

func TestCheckStrict(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":   module(""),
		"clean.go": clean,
	})
	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "check", "--strict", root}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "example.com/app does not require github.com/kolkov/sharedref/shared")

	root = writeTree(t, map[string]string{
		"go.mod":   module("\nrequire github.com/kolkov/sharedref v0.1.0\n"),
		"clean.go": clean,
	})
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"refcheck", "check", "--strict", root}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestCheckMissingPath(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "check", filepath.Join(t.TempDir(), "missing")}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "missing")
}

func TestBadLogLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "--log-level", "loud", "version"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "not a valid logrus Level")
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"refcheck", "version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "refcheck version "+shared.Version+" ("))
}

func TestRunCheckLogs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":  module(""),
		"leak.go": leaky,
	})
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	var out bytes.Buffer
	n, err := runCheck(checkConfig{paths: []string{root}}, &out, log)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "check complete", last.Message)
	assert.Equal(t, 1, last.Data["files"])
	assert.Equal(t, 1, last.Data["findings"])
}

func TestCollectFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go":        "package a",
		"a_test.go":   "package a",
		"b/b.go":      "package b",
		"b/.git/x.go": "package x",
	})

	files, err := collectFiles([]string{root, root + "/..."}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "a_test.go"),
		filepath.Join(root, "b", "b.go"),
	}, files)

	files, err = collectFiles([]string{root + "/..."}, true)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
