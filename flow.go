// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "encoding/binary"

// FieldID names one field of a Flow header vector. Field identity is
// stable: the numeric value, not position, is what callers and the
// classifier agree on.
type FieldID uint8

const (
	FieldMetadata FieldID = iota
	FieldInPort
	FieldEthDst
	FieldEthSrc
	FieldEthType
	FieldVlanVID
	FieldIPSrc
	FieldIPDst
	FieldIPProto
	FieldIPTos
	FieldTCPSrc
	FieldTCPDst
	FieldIPv6Src
	FieldIPv6Dst

	numFields
)

// fieldSpec gives the byte offset and length of a field within a Flow.
type fieldSpec struct {
	offset int
	length int
}

// fieldTable is the fixed layout of a Flow. Ordering follows
// classifier.h's staged-lookup ranges: metadata, then in_port, then L2,
// L3, and finally L4 ports, with two wide address fields appended for
// IPv6 prefix tracking.
var fieldTable = [numFields]fieldSpec{
	FieldMetadata: {0, 8},
	FieldInPort:   {8, 4},
	FieldEthDst:   {12, 6},
	FieldEthSrc:   {18, 6},
	FieldEthType:  {24, 2},
	FieldVlanVID:  {26, 2},
	FieldIPSrc:    {28, 4},
	FieldIPDst:    {32, 4},
	FieldIPProto:  {36, 1},
	FieldIPTos:    {37, 1},
	FieldTCPSrc:   {38, 2},
	FieldTCPDst:   {40, 2},
	FieldIPv6Src:  {42, 16},
	FieldIPv6Dst:  {58, 16},
}

// FlowLen is the fixed width, in bytes, of a Flow header vector.
const FlowLen = 74

// MaxIndices is the maximum number of secondary hash indices a Subtable
// may have, and so the maximum length of flowSegments passed to
// NewClassifier.
const MaxIndices = 3

// MaxTries is the maximum number of prefix-tracking fields a Classifier
// may be configured with.
const MaxTries = 3

// DefaultFlowSegments are reasonable stage boundaries separating
// metadata, L2, and L3/L4 header bytes, usable as the flowSegments
// argument to NewClassifier when the caller has no stronger opinion.
var DefaultFlowSegments = []int{
	fieldTable[FieldMetadata].offset + fieldTable[FieldMetadata].length, // 8
	fieldTable[FieldVlanVID].offset + fieldTable[FieldVlanVID].length,   // 28
	fieldTable[FieldIPProto].offset + fieldTable[FieldIPProto].length,   // 37
}

// Flow is an opaque, fixed-width header vector: a flat sequence of fields
// keyed by FieldID. The zero value represents an all-wildcard (all-zero)
// flow.
type Flow [FlowLen]byte

// Field returns the byte range of f within the Flow.
func (fl *Flow) Field(f FieldID) []byte {
	sp := fieldTable[f]
	return fl[sp.offset : sp.offset+sp.length]
}

// Metadata returns the 8-byte metadata field as a uint64, the key used by
// the Partition map.
func (fl *Flow) Metadata() uint64 {
	return binary.BigEndian.Uint64(fl.Field(FieldMetadata))
}

// Match is a (value, mask) pair over the Flow field space: a packet F
// matches if F&mask == value&mask, i.e. Masked(value, mask).
type Match struct {
	Value Flow
	Mask  Flow
}

// maskedEqual reports whether flow, restricted by m.Mask, equals
// m.Value restricted by m.Mask.
func (m *Match) maskedEqual(flow *Flow) bool {
	for i := range m.Mask {
		if flow[i]&m.Mask[i] != m.Value[i]&m.Mask[i] {
			return false
		}
	}
	return true
}

// IsCatchAll reports whether m matches every possible Flow, i.e. its mask
// is all zero bits.
func (m *Match) IsCatchAll() bool {
	for _, b := range m.Mask {
		if b != 0 {
			return false
		}
	}
	return true
}

// Contains implements "loose match" containment: it reports whether every
// flow matched by other is also matched by m. This holds when m's mask is
// a subset of other's mask (m examines no bit other doesn't) and m's
// value agrees with other's value on every bit m examines.
//
// Used by AllMatching, both for its target-specific subtable skipping and
// for its per-rule test. RuleOverlaps uses intersects instead.
func (m *Match) Contains(other *Match) bool {
	for i := range m.Mask {
		if m.Mask[i]&^other.Mask[i] != 0 {
			return false
		}
		if m.Value[i]&m.Mask[i] != other.Value[i]&m.Mask[i] {
			return false
		}
	}
	return true
}

// intersects reports whether some flow could satisfy both matches, i.e.
// whether the two value/mask pairs agree on every bit both examine.
func (m *Match) intersects(other *Match) bool {
	for i := range m.Mask {
		common := m.Mask[i] & other.Mask[i]
		if m.Value[i]&common != other.Value[i]&common {
			return false
		}
	}
	return true
}

// prefixLen reports, for field f, whether m.Mask is a valid CIDR-style
// prefix mask on that field (a run of 1-bits followed by a run of
// 0-bits, MSB first) and if so its length in bits. Masks that are not
// prefix-shaped on f (arbitrary bitmasks) report ok=false: such masks get
// no benefit from the prefix trie and must always be consulted in full.
func (m *Match) prefixLen(f FieldID) (plen int, ok bool) {
	sp := fieldTable[f]
	maskBytes := m.Mask[sp.offset : sp.offset+sp.length]

	i := 0
	for ; i < len(maskBytes) && maskBytes[i] == 0xff; i++ {
		plen += 8
	}
	if i < len(maskBytes) {
		b := maskBytes[i]
		for b&0x80 != 0 {
			plen++
			b <<= 1
		}
		if b != 0 {
			// residual set bits after the leading run: not prefix-shaped.
			return 0, false
		}
		i++
	}
	for ; i < len(maskBytes); i++ {
		if maskBytes[i] != 0 {
			return 0, false
		}
	}
	return plen, true
}

// fieldBits returns field f's value as an MSB-first bit string, and its
// width in bits.
func fieldBits(fl *Flow, f FieldID) (value []byte, nbits int) {
	sp := fieldTable[f]
	return fl[sp.offset : sp.offset+sp.length], sp.length * 8
}

// unwildcardRange ORs mask's bits, in byte range [lo, hi), into w. This is
// the "un-wildcarding" operation of classifier.h: every bit actually
// consulted during a lookup step must be recorded, including bits
// consulted by a hash that produced a miss.
func unwildcardRange(w, mask *Flow, lo, hi int) {
	for i := lo; i < hi; i++ {
		w[i] |= mask[i]
	}
}

// unwildcardField ORs mask's bits for field f into w.
func unwildcardField(w, mask *Flow, f FieldID) {
	sp := fieldTable[f]
	unwildcardRange(w, mask, sp.offset, sp.offset+sp.length)
}

// unwildcardFieldPrefix ORs a field's own address bits into w, rather
// than the mask's, for the first nbits bits of field f. Used by trie
// pruning, which consults flow's value bits directly while descending
// and must un-wildcard exactly the bits it examined rather than a
// caller-supplied mask.
func unwildcardFieldPrefix(w *Flow, f FieldID, nbits int) {
	sp := fieldTable[f]
	full := nbits / 8
	for i := 0; i < full; i++ {
		w[sp.offset+i] = 0xff
	}
	if rem := nbits % 8; rem > 0 {
		w[sp.offset+full] |= ^byte(0) << uint(8-rem)
	}
}
