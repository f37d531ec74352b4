// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "sync/atomic"

// bucketCell links a clsMatch into one hash bucket's chain for a single
// generation of a bucketArray. The link lives here, outside clsMatch
// itself, precisely so that growing the array never has to rewrite a
// next pointer a concurrent reader might already be mid-traversal on:
// grow builds brand new cells for the new generation and never stores
// into an old cell's next field (see grow below). A clsMatch's identity
// is unaffected by which cell(s) currently reference it, so Remove can
// still unlink by comparing m against cell.m regardless of how many
// times the surrounding array has been resized.
type bucketCell struct {
	m    *clsMatch
	next atomic.Pointer[bucketCell]
}

// insertCell links cell into the chain rooted at head, ordered by
// priority descending with newer insertions placed before existing
// entries of equal priority (the spec's documented newest-first
// tie-break).
func insertCell(head *atomic.Pointer[bucketCell], cell *bucketCell) {
	cur := head
	for {
		node := cur.Load()
		if node == nil || cell.m.priority >= node.m.priority {
			cell.next.Store(node)
			cur.Store(cell)
			return
		}
		cur = &node.next
	}
}

// removeCell unlinks the cell holding m from the chain rooted at head.
// Reports whether m was found. If m's cell was the head, the bucket's
// head pointer is atomically swapped to its successor (possibly nil),
// the "promote the next-highest-priority tail entry to head" step of
// classifier.h's removal algorithm.
func removeCell(head *atomic.Pointer[bucketCell], m *clsMatch) bool {
	cur := head
	for {
		node := cur.Load()
		if node == nil {
			return false
		}
		if node.m == m {
			cur.Store(node.next.Load())
			return true
		}
		cur = &node.next
	}
}

// bucketArray is a fixed-size open chaining hash table of bucketCell
// chains, keyed by the full masked-flow digest. Resizing builds an
// entirely new bucketArray of fresh cells and atomically swaps the
// subtable's pointer to it; between resizes, individual chain heads are
// mutated in place through their own atomic.Pointer cells (see
// insertCell/removeCell), which is safe for lock-free concurrent readers
// without touching the array pointer at all.
//
// Grounded on the bucket-chained hash table technique used by the Go
// runtime's own map implementation (surveyed among the retrieved
// examples), adapted here to mask-equality chains instead of
// interface-keyed buckets.
type bucketArray struct {
	mask  uint64
	heads []atomic.Pointer[bucketCell]
}

func newBucketArray(n int) *bucketArray {
	return &bucketArray{mask: uint64(n - 1), heads: make([]atomic.Pointer[bucketCell], n)}
}

const minBuckets = 16

// subtable holds every rule sharing one exact mask (component C).
// Staged lookup first consults stages, one set of partial digests
// per configured segment boundary, to cheaply rule out a subtable that
// cannot possibly contain a match before paying for the full digest and
// a bucket walk.
type subtable struct {
	mask     Match
	segments []int // byte offsets, ascending, each < FlowLen; len <= MaxIndices

	metadataPartitioned bool // true if mask.Mask's metadata field is non-zero

	buckets atomic.Pointer[bucketArray]

	stages atomic.Pointer[[MaxIndices]map[uint64]int32]

	maxPriority atomic.Int32
	nRules      atomic.Int32
}

func newSubtable(mask Match, segments []int) *subtable {
	st := &subtable{mask: mask, segments: segments}
	st.buckets.Store(newBucketArray(minBuckets))
	var stages [MaxIndices]map[uint64]int32
	for i := range stages {
		stages[i] = make(map[uint64]int32)
	}
	st.stages.Store(&stages)

	meta := fieldTable[FieldMetadata]
	for _, b := range mask.Mask[meta.offset : meta.offset+meta.length] {
		if b != 0 {
			st.metadataPartitioned = true
			break
		}
	}
	return st
}

func (st *subtable) getMaxPriority() int32 { return st.maxPriority.Load() }

// bumpMaxPriority raises maxPriority to p if p is larger; it is safe to
// call concurrently and may only ever move the value upward, satisfying
// the "may lag upward transiently, never downward" invariant. Lowering
// it back down after the highest-priority rule is removed happens in
// recomputeMaxPriority, called during Classifier.Publish.
func (st *subtable) bumpMaxPriority(p int32) {
	for {
		cur := st.maxPriority.Load()
		if p <= cur {
			return
		}
		if st.maxPriority.CompareAndSwap(cur, p) {
			return
		}
	}
}

// recomputeMaxPriority rescans every live bucket head and sets
// maxPriority exactly. Called by the writer only, after a removal that
// may have lowered the true maximum.
func (st *subtable) recomputeMaxPriority() {
	ba := st.buckets.Load()
	var max int32 = -1
	for i := range ba.heads {
		if h := ba.heads[i].Load(); h != nil && h.m.priority > max {
			max = h.m.priority
		}
	}
	st.maxPriority.Store(max)
}

// grow doubles the bucket array and rehashes every live rule into it.
// It only ever reads an old cell's next pointer, never stores into one:
// a concurrent reader that loaded the old array before this runs keeps
// walking cells nothing here ever mutates, so it either sees the array
// from before the resize or (once the writer publishes next) the array
// from after, never a chain spliced between the two. This is the
// bucket-array analogue of trie.go's clone-along-path copy-on-write.
func (st *subtable) grow() {
	old := st.buckets.Load()
	next := newBucketArray(len(old.heads) * 2)
	for i := range old.heads {
		for cell := old.heads[i].Load(); cell != nil; cell = cell.next.Load() {
			idx := fullDigest(&cell.m.rule.Match.Value, &st.mask.Mask) & next.mask
			insertCell(&next.heads[idx], &bucketCell{m: cell.m})
		}
	}
	st.buckets.Store(next)
}

// Insert adds m to the subtable's bucket and stage indices. m.rule.Match
// is expected to already be masked consistently with st.mask.
func (st *subtable) Insert(m *clsMatch) {
	ba := st.buckets.Load()
	if int(st.nRules.Load()) >= len(ba.heads)*3/4 {
		st.grow()
		ba = st.buckets.Load()
	}

	flow, mask := &m.rule.Match.Value, &st.mask.Mask
	idx := fullDigest(flow, mask) & ba.mask
	insertCell(&ba.heads[idx], &bucketCell{m: m})
	st.nRules.Add(1)
	st.bumpMaxPriority(m.priority)

	st.addStageDigests(flow, mask)
}

func (st *subtable) addStageDigests(flow, mask *Flow) {
	old := st.stages.Load()
	var next [MaxIndices]map[uint64]int32
	for i := range next {
		next[i] = make(map[uint64]int32, len(old[i]))
		for k, v := range old[i] {
			next[i][k] = v
		}
	}
	for i, boundary := range st.segments {
		if i >= MaxIndices {
			break
		}
		d := segmentDigest(flow, mask, 0, boundary)
		next[i][d]++
	}
	st.stages.Store(&next)
}

func (st *subtable) removeStageDigests(flow, mask *Flow) {
	old := st.stages.Load()
	var next [MaxIndices]map[uint64]int32
	for i := range next {
		next[i] = make(map[uint64]int32, len(old[i]))
		for k, v := range old[i] {
			next[i][k] = v
		}
	}
	for i, boundary := range st.segments {
		if i >= MaxIndices {
			break
		}
		d := segmentDigest(flow, mask, 0, boundary)
		if c := next[i][d]; c <= 1 {
			delete(next[i], d)
		} else {
			next[i][d] = c - 1
		}
	}
	st.stages.Store(&next)
}

// Remove unlinks m from its bucket chain. Caller must call
// recomputeMaxPriority (batched by Classifier.Publish) if m may have
// been the subtable's highest-priority rule.
func (st *subtable) Remove(m *clsMatch) bool {
	ba := st.buckets.Load()
	flow, mask := &m.rule.Match.Value, &st.mask.Mask
	idx := fullDigest(flow, mask) & ba.mask
	if !removeCell(&ba.heads[idx], m) {
		return false
	}
	st.nRules.Add(-1)
	st.removeStageDigests(flow, mask)
	return true
}

// isEmpty reports whether the subtable currently holds no rules.
func (st *subtable) isEmpty() bool {
	return st.nRules.Load() == 0
}

// lookupStaged reports whether, based solely on the partial-digest stage
// indices, this subtable could possibly contain a match for flow. It
// also ORs the mask bits of every stage byte range it consulted, up to
// and including a stage that missed, into w; the rest of the mask is
// left to lookupExact.
func (st *subtable) lookupStaged(flow, w *Flow) bool {
	stages := st.stages.Load()
	lastBoundary := 0
	for i, boundary := range st.segments {
		if i >= MaxIndices {
			break
		}
		d := segmentDigest(flow, &st.mask.Mask, 0, boundary)
		unwildcardRange(w, &st.mask.Mask, lastBoundary, boundary)
		lastBoundary = boundary
		if _, ok := stages[i][d]; !ok {
			return false
		}
	}
	return true
}

// lookupExact walks the bucket chain for flow and returns the
// highest-priority visible, masked-equal match at version v, or nil.
// Every byte of st.mask not already un-wildcarded by lookupStaged is
// OR'd into w.
func (st *subtable) lookupExact(flow, w *Flow, v Version) *clsMatch {
	unwildcardRange(w, &st.mask.Mask, 0, FlowLen)

	ba := st.buckets.Load()
	idx := fullDigest(flow, &st.mask.Mask) & ba.mask
	for cell := ba.heads[idx].Load(); cell != nil; cell = cell.next.Load() {
		if cell.m.visibleAt(v) && cell.m.rule.Match.maskedEqual(flow) {
			return cell.m
		}
	}
	return nil
}

// allVisible returns every visible clsMatch in the subtable at version
// v, used by Classifier.Lookup's conjunctive-match fallback path and by
// the All/AllMatching iterators. Order is unspecified.
func (st *subtable) allVisible(v Version) []*clsMatch {
	ba := st.buckets.Load()
	var out []*clsMatch
	for i := range ba.heads {
		for cell := ba.heads[i].Load(); cell != nil; cell = cell.next.Load() {
			if cell.m.visibleAt(v) {
				out = append(out, cell.m)
			}
		}
	}
	return out
}
