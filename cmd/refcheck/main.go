// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main implements the refcheck CLI tool.
//
// refcheck scans Go source for common misuse of sharedref handles:
//
//   - RC001 an owner or observer is created and discarded
//   - RC002 a Lock result is dereferenced without a Valid check
//   - RC003 a handle is copied by value
//   - RC004 a local owner is never released or handed off
//
// Usage:
//
//	refcheck check ./...          # Check every package under the module
//	refcheck check -strict .      # Also require sharedref in go.mod
//	refcheck version              # Show version information
//
// refcheck exits with status 1 when it reports findings.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/kolkov/sharedref/cmd/refcheck/analyze"
	"github.com/kolkov/sharedref/shared"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)

	app := newApp(log)
	app.Writer = stdout
	app.ErrWriter = stderr
	if err := app.Run(args); err != nil {
		if coder, ok := err.(cli.ExitCoder); ok {
			if msg := err.Error(); msg != "" {
				fmt.Fprintln(stderr, msg)
			}
			return coder.ExitCode()
		}
		fmt.Fprintf(stderr, "refcheck: %v\n", err)
		return 2
	}
	return 0
}

func newApp(log *logrus.Logger) *cli.App {
	return &cli.App{
		Name:    "refcheck",
		Usage:   "find misuse of sharedref handles",
		Version: shared.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "logrus level for diagnostics (debug, info, warn, error)",
				Value:   "warn",
				EnvVars: []string{"REFCHECK_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			log.SetLevel(level)
			return nil
		},
		// Exit codes are mapped by run, never by os.Exit inside the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			checkCommand(log),
			versionCommand(),
		},
	}
}

func checkCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "check Go source files and packages",
		ArgsUsage: "[path ...]",
		Description: `Paths are files, directories, or directories followed by /... to
recurse. Defaults to the current directory. vendor, testdata and
directories starting with . or _ are skipped.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "fail unless the enclosing go.mod provides the handle package",
			},
			&cli.StringFlag{
				Name:  "import",
				Usage: "import path of the handle package",
				Value: analyze.DefaultImportPath,
			},
			&cli.BoolFlag{
				Name:  "skip-tests",
				Usage: "do not check _test.go files",
			},
			&cli.BoolFlag{
				Name:  "suggest",
				Usage: "print a fix suggestion after each finding",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := checkConfig{
				paths:      c.Args().Slice(),
				importPath: c.String("import"),
				strict:     c.Bool("strict"),
				skipTests:  c.Bool("skip-tests"),
				suggest:    c.Bool("suggest"),
			}
			n, err := runCheck(cfg, c.App.Writer, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("refcheck: %v", err), 2)
			}
			if n > 0 {
				return cli.Exit(fmt.Sprintf("refcheck: %d finding(s)", n), 1)
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(c *cli.Context) error {
			info := shared.GetInfo()
			fmt.Fprintf(c.App.Writer, "refcheck version %s (%s %s, %s)\n",
				info.Version, shared.ModulePath, info.Counters, runtime.Version())
			return nil
		},
	}
}
