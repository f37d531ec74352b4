// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

// Version is a classifier snapshot number. Rules carry a visibility
// interval [addVersion, removeVersion) over Versions; a lookup at version
// v observes exactly the rules whose interval contains v.
type Version uint64

const (
	// VersionMin is the default version to use when the caller does not
	// care about versioning at all.
	VersionMin Version = 0

	// VersionMax is the largest version usable as a real lookup version.
	VersionMax Version = Version(1<<64 - 2)

	// VersionNotRemoved is the removeVersion sentinel meaning "never
	// removed".
	VersionNotRemoved Version = Version(1<<64 - 1)
)
