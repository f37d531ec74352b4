// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "github.com/cespare/xxhash/v2"

// segmentDigest hashes flow masked by mask, restricted to byte range
// [lo, hi). The staged lookup in Subtable calls it with lo = 0 for every
// stage, so each stage's digest covers every byte up to its boundary,
// including the bytes an earlier stage already hashed; no digest is
// carried forward from one stage to the next.
//
// Correctness depends only on the mapping (mask, bytes) -> digest being
// a stable function of the bytes actually examined, which it is.
func segmentDigest(flow, mask *Flow, lo, hi int) uint64 {
	var buf [FlowLen]byte
	for i := lo; i < hi; i++ {
		buf[i] = flow[i] & mask[i]
	}
	return xxhash.Sum64(buf[lo:hi])
}

// fullDigest hashes the entire masked flow, used as the primary index
// key of a Subtable.
func fullDigest(flow, mask *Flow) uint64 {
	return segmentDigest(flow, mask, 0, FlowLen)
}
