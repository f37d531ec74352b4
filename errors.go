// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "errors"

// Failures that are recoverable per the classifier's error-handling design:
// invariant violations (a duplicate rule passed to Insert, for example)
// are programmer errors and panic rather than returning one of these.
var (
	// ErrOutOfMemory names the out-of-memory failure of an insert. No
	// function in this package returns it: an allocation failure in
	// Insert or Replace is a Go runtime panic, not an error value.
	ErrOutOfMemory = errors.New("classify: out of memory")

	// ErrTooManyTrieFields is returned by SetPrefixFields when more than
	// MaxTries fields are requested. The existing trie configuration is
	// retained unchanged.
	ErrTooManyTrieFields = errors.New("classify: too many trie fields")

	// ErrTooManyFlowSegments is returned by NewClassifier when more than
	// MaxIndices segment boundaries are given.
	ErrTooManyFlowSegments = errors.New("classify: too many flow segments")

	// ErrRuleNotFound is returned by Remove and Replace when the given
	// Rule pointer was never installed, or has already been removed.
	ErrRuleNotFound = errors.New("classify: rule not found")
)
