// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import (
	"github.com/cockroachdb/errors"

	"github.com/kolkov/sharedref/internal/ctrl"
)

// ErrConstruct marks errors returned by MakeWith when the payload could not
// be constructed. The original cause stays reachable through errors.Is.
var ErrConstruct = errors.New("sharedref: payload construction failed")

// Contract violation kinds. A *ContractError unwraps to one of these.
var (
	// ErrEmptyHandle is a dereference of an empty handle.
	ErrEmptyHandle = ctrl.ErrEmptyHandle

	// ErrOverRelease is a release without a matching acquire, typically
	// after a handle value was copied with *a = *b.
	ErrOverRelease = ctrl.ErrOverRelease

	// ErrUseAfterFree is a count operation on a block that was already
	// deallocated.
	ErrUseAfterFree = ctrl.ErrUseAfterFree

	// ErrCountOverflow means more than 2^32-1 owners or 2^31-1 observers.
	ErrCountOverflow = ctrl.ErrCountOverflow
)

// ContractError is the panic value of every fail-fast path.
type ContractError = ctrl.Fault

// Destroyer is implemented by payloads with teardown logic. Destroy is
// called on the payload exactly once, when its last owner lets go.
type Destroyer = ctrl.Destroyer
