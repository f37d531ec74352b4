// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package classify provides a flow classifier: a concurrent, versioned
// store of prioritized packet-matching rules that, given a header vector,
// returns the highest-priority rule accepting it along with a wildcard
// mask describing which header bits were actually consulted.
//
// A Classifier partitions its rules into Subtables by exact mask equality,
// keeps those Subtables in a priority-sorted vector for early-exit
// scanning, tracks per-field address prefixes in a Trie to prune Subtables
// that cannot possibly match, and groups Subtables by metadata value in a
// Partition map for the same reason.
//
// Readers call Lookup, iterate with All or AllMatching, or look rules up exactly;
// none of these ever block and all may run concurrently with each other
// and with at most one concurrent writer. The writer mutates through
// Insert, Replace, Remove, Defer and Publish; Defer/Publish bracket a
// batch of changes so that auxiliary pruning structures (the trie, the
// priority vector, the partition map) become visible to readers atomically
// rather than one mutation at a time.
//
// Rules carry a visibility interval over a monotonically increasing
// version number, so that a single writer can add or soft-delete rules
// for a specific future version without disturbing concurrent lookups
// pinned to an earlier version.
package classify
