// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyze

import (
	"fmt"
	"go/token"
)

// Finding codes.
const (
	// CodeDiscarded is an owner or observer created and dropped on the
	// floor: its count is never released.
	CodeDiscarded = "RC001"

	// CodeUncheckedLock is a Lock result dereferenced without a Valid check.
	CodeUncheckedLock = "RC002"

	// CodeCopiedHandle is a handle struct copied by value (*h), which
	// duplicates ownership without counting it.
	CodeCopiedHandle = "RC003"

	// CodeUnreleased is a local owner that is never reset, moved, returned
	// or handed to anything else.
	CodeUnreleased = "RC004"
)

// Finding is one reported misuse with its source position.
//
// Example:
//
//	f := &Finding{
//	    File:       "main.go",
//	    Line:       42,
//	    Column:     2,
//	    Code:       CodeDiscarded,
//	    Message:    "result of conn.Clone() is discarded",
//	    Suggestion: "Assign the new owner and Reset it when done",
//	}
//	fmt.Println(f) // main.go:42:2: RC001 result of conn.Clone() is discarded
type Finding struct {
	File       string // Source file path
	Line       int    // Line number (1-indexed)
	Column     int    // Column number (1-indexed)
	Code       string // One of the Code* constants
	Message    string // What is wrong
	Suggestion string // How to fix it, empty if none
}

// Error implements the error interface.
//
// Format: file:line:column: code message
func (f *Finding) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s %s", f.File, f.Line, f.Column, f.Code, f.Message)
}

// Long returns the finding followed by its suggestion, if any:
//
//	main.go:42:2: RC001 result of conn.Clone() is discarded
//
//	Suggestion: Assign the new owner and Reset it when done
func (f *Finding) Long() string {
	if f.Suggestion == "" {
		return f.Error()
	}
	return f.Error() + "\n\nSuggestion: " + f.Suggestion
}

func newFinding(fset *token.FileSet, pos token.Pos, code, msg, suggestion string) *Finding {
	position := fset.Position(pos)
	return &Finding{
		File:       position.Filename,
		Line:       position.Line,
		Column:     position.Column,
		Code:       code,
		Message:    msg,
		Suggestion: suggestion,
	}
}
