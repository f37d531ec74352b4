// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import (
	"sort"
	"sync/atomic"
)

// pvector is the priority-ordered vector of a Classifier's subtables
// (component E): a snapshot of subtable pointers sorted by descending
// maxPriority, letting Lookup stop scanning as soon as no remaining
// subtable could possibly outrank the best match found so far.
//
// As with trie and partition, live is the writer's working slice and
// published is what concurrent readers see; mutations always build a new
// slice rather than mutate in place, so a reader's snapshot, once
// loaded, never changes under it.
type pvector struct {
	live      []*subtable
	published atomic.Pointer[[]*subtable]
}

func newPvector() *pvector {
	pv := &pvector{}
	pv.Publish()
	return pv
}

// Add inserts st into the working slice, re-sorts by descending
// maxPriority, and leaves the change unpublished.
func (pv *pvector) Add(st *subtable) {
	next := make([]*subtable, len(pv.live)+1)
	copy(next, pv.live)
	next[len(pv.live)] = st
	pv.live = next
	pv.resort()
}

// Remove deletes st from the working slice.
func (pv *pvector) Remove(st *subtable) {
	next := make([]*subtable, 0, len(pv.live))
	for _, s := range pv.live {
		if s != st {
			next = append(next, s)
		}
	}
	pv.live = next
}

// Resort re-sorts the working slice by descending maxPriority without
// changing membership; call after any subtable's maxPriority has changed
// since the last sort, since Add sorts only by the priorities current at
// the time of the call.
func (pv *pvector) Resort() {
	pv.resort()
}

func (pv *pvector) resort() {
	sort.SliceStable(pv.live, func(i, j int) bool {
		return pv.live[i].getMaxPriority() > pv.live[j].getMaxPriority()
	})
}

// Publish makes the writer's current ordering visible to readers.
func (pv *pvector) Publish() {
	snapshot := make([]*subtable, len(pv.live))
	copy(snapshot, pv.live)
	pv.published.Store(&snapshot)
}

// Snapshot returns the published subtable ordering for a reader to scan.
func (pv *pvector) Snapshot() []*subtable {
	s := pv.published.Load()
	if s == nil {
		return nil
	}
	return *s
}
