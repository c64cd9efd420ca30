// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/sharedref/internal/tracker"
)

// OptionsEnv is the environment variable read at program start to enable
// tracking, in the same "key=value key=value" form as GORACE:
//
//	SHAREDREF_OPTIONS="track=1 stacks=1 sample=10 dump=1 log=debug"
//
// Keys:
//   - track: enable tracking (bool)
//   - stacks: capture stacks for every lifetime event (bool)
//   - sample: capture lifecycle stacks for 1 in N events only (uint)
//   - dump: dump leaked payloads in the leak report (bool)
//   - log: logrus level for the lifecycle event log on stderr
const OptionsEnv = "SHAREDREF_OPTIONS"

// TrackingConfig configures checked mode.
type TrackingConfig struct {
	// Output receives violation reports, leak reports and the summary.
	// Defaults to os.Stderr.
	Output io.Writer

	// Logger receives structured lifecycle events. Nil disables them.
	Logger logrus.FieldLogger

	// CaptureStacks records the call stack of every create, destroy and
	// release. Without it reports show goroutines only.
	CaptureStacks bool

	// StackSampleRate limits lifecycle stack capture to 1 in
	// StackSampleRate events. 0 or 1 captures every event. Violation
	// stacks are always captured.
	StackSampleRate uint64

	// DumpPayloads includes each leaked payload in the leak report.
	DumpPayloads bool
}

// Summary counts the blocks observed while tracking was enabled.
type Summary = tracker.Summary

// SampleStats counts lifecycle events whose stack was or was not captured
// under TrackingConfig.StackSampleRate.
type SampleStats = tracker.SampleStats

// current is the active tracker, nil when tracking is disabled.
var current atomic.Pointer[tracker.Tracker]

// EnableTracking starts checked mode for blocks created from now on. Blocks
// created earlier stay untracked. Enabling while already enabled closes the
// previous tracker first (printing its leak report).
func EnableTracking(cfg TrackingConfig) {
	t := tracker.New(tracker.Config{
		Output:          cfg.Output,
		Logger:          cfg.Logger,
		CaptureStacks:   cfg.CaptureStacks,
		StackSampleRate: cfg.StackSampleRate,
		DumpPayloads:    cfg.DumpPayloads,
	})
	if old := current.Swap(t); old != nil {
		old.Close()
	}
}

// DisableTracking stops checked mode, writes the leak report and summary to
// the configured output and returns the summary. It returns a zero Summary
// if tracking was not enabled.
func DisableTracking() Summary {
	t := current.Swap(nil)
	if t == nil {
		return Summary{}
	}
	return t.Close()
}

// CurrentSummary returns the live summary without stopping tracking.
func CurrentSummary() Summary {
	t := current.Load()
	if t == nil {
		return Summary{}
	}
	return t.Summary()
}

// CurrentSampleStats returns the stack sampling counters of the active
// tracker, or zero if tracking is disabled or stacks are off.
func CurrentSampleStats() SampleStats {
	t := current.Load()
	if t == nil {
		return SampleStats{}
	}
	return t.SampleStats()
}

// Tracking reports whether checked mode is enabled.
func Tracking() bool {
	return current.Load() != nil
}

// ParseOptions parses an OptionsEnv value. enabled reports whether track=1
// was given.
func ParseOptions(s string) (cfg TrackingConfig, enabled bool, err error) {
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return cfg, false, errors.Newf("malformed option %q, want key=value", field)
		}
		switch key {
		case "track", "stacks", "dump":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return cfg, false, errors.Wrapf(err, "option %s", key)
			}
			switch key {
			case "track":
				enabled = b
			case "stacks":
				cfg.CaptureStacks = b
			case "dump":
				cfg.DumpPayloads = b
			}
		case "sample":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return cfg, false, errors.Wrap(err, "option sample")
			}
			cfg.StackSampleRate = n
		case "log":
			level, err := logrus.ParseLevel(value)
			if err != nil {
				return cfg, false, errors.Wrap(err, "option log")
			}
			logger := logrus.New()
			logger.SetOutput(os.Stderr)
			logger.SetLevel(level)
			cfg.Logger = logger
		default:
			return cfg, false, errors.Newf("unknown option %q", key)
		}
	}
	return cfg, enabled, nil
}

func init() {
	s := os.Getenv(OptionsEnv)
	if s == "" {
		return
	}
	cfg, enabled, err := ParseOptions(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sharedref: ignoring %s: %v\n", OptionsEnv, err)
		return
	}
	if enabled {
		EnableTracking(cfg)
	}
}
