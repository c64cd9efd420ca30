// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shared

import "golang.org/x/mod/semver"

// Version information for sharedref.
const (
	// Version is the current version, in semver form.
	Version = "v0.1.0"

	// ModulePath is the module import path.
	ModulePath = "github.com/kolkov/sharedref"
)

// Info describes the runtime.
type Info struct {
	// Version is the library version.
	Version string

	// Counters describes the counts implementation.
	Counters string

	// Tracking reports whether checked mode is currently enabled.
	Tracking bool
}

// GetInfo returns information about the runtime.
//
// Example:
//
//	info := shared.GetInfo()
//	fmt.Printf("sharedref %s (%s)\n", info.Version, info.Counters)
func GetInfo() Info {
	return Info{
		Version:  Version,
		Counters: "atomic packed 32/31-bit",
		Tracking: Tracking(),
	}
}

// Compatible reports whether code written against version v can use this
// runtime: v must be valid semver, not newer than Version, and share its
// major version. Before v1 the minor version must match too.
func Compatible(v string) bool {
	if !semver.IsValid(v) || semver.Compare(v, Version) > 0 {
		return false
	}
	if semver.Major(Version) == "v0" {
		return semver.MajorMinor(v) == semver.MajorMinor(Version)
	}
	return semver.Major(v) == semver.Major(Version)
}
