// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "sync/atomic"

// partitionEntry names the set of subtables that currently hold at least
// one rule matching a specific metadata value exactly, plus a reference
// count per subtable so that a subtable's membership is only dropped once
// its last rule carrying this metadata value is gone.
type partitionEntry struct {
	refs map[*subtable]int
}

func newPartitionEntry() *partitionEntry {
	return &partitionEntry{refs: make(map[*subtable]int)}
}

func (e *partitionEntry) clone() *partitionEntry {
	c := newPartitionEntry()
	for st, n := range e.refs {
		c.refs[st] = n
	}
	return c
}

// has reports whether st is a member of the entry, treating a nil entry
// (no rule anywhere carries this metadata value) as empty.
func (e *partitionEntry) has(st *subtable) bool {
	if e == nil {
		return false
	}
	return e.refs[st] > 0
}

// partition maps metadata values to the subtables worth consulting for
// that value (component D), each with a reference count of how many
// currently installed rules in that subtable carry the value. Subtables
// whose mask does not constrain the metadata field at all are never
// partitioned and are always consulted directly by the caller,
// independent of this structure.
//
// classifier.h implements the equivalent with a per-subtable bitmask
// Bloom filter plus a reference count to save space in C; a Go port has
// no such space constraint, so this uses a plain map of subtable
// reference counts, which is simpler to reason about and just as
// effective at pruning, while keeping the reference count spec.md §4.6
// requires: a subtable drops out of the entry only once its count
// reaches zero, not on the first Remove of any rule sharing the value.
type partition struct {
	live      map[uint64]*partitionEntry
	published atomic.Pointer[map[uint64]*partitionEntry]
}

func newPartition() *partition {
	p := &partition{live: make(map[uint64]*partitionEntry)}
	p.Publish()
	return p
}

// Add records that st now holds one more rule with the given metadata
// value.
func (p *partition) Add(metadata uint64, st *subtable) {
	e, ok := p.live[metadata]
	if !ok {
		e = newPartitionEntry()
	} else {
		e = e.clone()
	}
	e.refs[st]++
	p.live[metadata] = e
}

// Remove undoes one prior Add. st's membership in the entry is only
// dropped once its reference count reaches zero; the entry itself is
// only dropped once no subtable remains with a positive count.
func (p *partition) Remove(metadata uint64, st *subtable) {
	e, ok := p.live[metadata]
	if !ok {
		return
	}
	e = e.clone()
	if e.refs[st] > 0 {
		e.refs[st]--
	}
	if e.refs[st] == 0 {
		delete(e.refs, st)
	}
	if len(e.refs) == 0 {
		delete(p.live, metadata)
		return
	}
	p.live[metadata] = e
}

// Publish makes the writer's current map visible to concurrent readers.
func (p *partition) Publish() {
	snapshot := make(map[uint64]*partitionEntry, len(p.live))
	for k, v := range p.live {
		snapshot[k] = v
	}
	p.published.Store(&snapshot)
}

// Lookup returns the published entry for a metadata value, or nil if no
// rule anywhere currently carries it.
func (p *partition) Lookup(metadata uint64) *partitionEntry {
	m := p.published.Load()
	if m == nil {
		return nil
	}
	return (*m)[metadata]
}
