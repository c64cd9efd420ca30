// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracker

import (
	"fmt"
	"strings"

	"github.com/go-stack/stack"
	"github.com/sirupsen/logrus"

	"github.com/kolkov/sharedref/internal/stackdepot"
)

func (t *Tracker) logEvent(r *record, msg string) {
	if t.cfg.Logger == nil {
		return
	}
	t.fields(r).Debug(msg)
}

func (t *Tracker) logLeak(r *record) {
	if t.cfg.Logger == nil {
		return
	}
	t.fields(r).WithField("phase", r.counts().Phase().String()).Warn("block leaked")
}

func (t *Tracker) logViolation(rep *Report) {
	if t.cfg.Logger == nil {
		return
	}
	t.cfg.Logger.WithFields(logrus.Fields{
		"kind":   KindName(rep.Kind),
		"op":     rep.Current.What,
		"block":  rep.Block,
		"label":  rep.Label,
		"type":   rep.Type,
		"counts": rep.Counts.String(),
		"caller": CallSite(),
	}).Error("ownership contract violated")
}

func (t *Tracker) fields(r *record) *logrus.Entry {
	return t.cfg.Logger.WithFields(logrus.Fields{
		"block":  r.id,
		"label":  r.label,
		"type":   r.typ,
		"counts": r.counts().String(),
		"caller": CallSite(),
	})
}

// CallSite returns "file.go:line" of the first caller outside the library,
// or "" if every frame belongs to the runtime or the library.
func CallSite() string {
	for _, c := range stack.Trace().TrimRuntime() {
		fn := fmt.Sprintf("%+n", c)
		file := fmt.Sprintf("%s", c)
		if stackdepot.IsLibraryFrame(fn) && !strings.HasSuffix(file, "_test.go") {
			continue
		}
		return fmt.Sprintf("%v", c)
	}
	return ""
}
