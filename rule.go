// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "sync/atomic"

// Conjunction marks a Rule as one disjunct of a conjunctive match: the
// rule only counts as a hit once rules from n_clauses distinct Clause
// values, all sharing ID, have all matched the same flow.
type Conjunction struct {
	ID       uint32
	Clause   uint8
	NClauses uint8
}

// Rule is a match specification plus priority, owned and allocated by the
// caller. The classifier never frees a Rule; it only stops referencing
// one once the caller has observed its removal complete (see clsMatch).
// Conjunction clauses are not a Rule field: they are supplied to Insert
// directly, mirroring classifier.h's separate cls_rule_set_conjunctions
// step without duplicating the same list in two places.
type Rule struct {
	Match    Match
	Priority int32
}

// IsCatchAll reports whether r matches every possible flow.
func (r *Rule) IsCatchAll() bool {
	return r.Match.IsCatchAll()
}

// clsMatch is the classifier's internal, shared image of an installed
// Rule, one per Insert. Rules with identical match in one subtable are
// chained in the same hash bucket, highest priority first, but the chain
// linkage itself lives in the subtable's bucketCell, not here (see subtable.go),
// so that a bucket array resize never has to rewrite a field shared with
// a concurrent reader's in-flight chain walk. clsMatch itself is never
// mutated in place after publication except through atomic fields, so
// that concurrent readers always see either the value before a write or
// the value after, never a half-written record.
type clsMatch struct {
	rule     *Rule
	priority int32

	subtable *subtable // non-owning back-reference

	addVersion    Version
	removeVersion atomic.Uint64 // Version; VersionNotRemoved until removed

	conjunctions []Conjunction
}

func newClsMatch(r *Rule, version Version, conj []Conjunction, st *subtable) *clsMatch {
	m := &clsMatch{
		rule:     r,
		priority: r.Priority,
		subtable: st,

		addVersion:   version,
		conjunctions: conj,
	}
	m.removeVersion.Store(uint64(VersionNotRemoved))
	return m
}

// visibleAt reports whether m is visible to a lookup at version v, i.e.
// addVersion <= v < removeVersion.
func (m *clsMatch) visibleAt(v Version) bool {
	return m.addVersion <= v && v < Version(m.removeVersion.Load())
}

// makeInvisibleAt records that m stops being visible at version v. Each
// call overwrites the removeVersion stored by any earlier call; callers
// are expected to call this at most once per rule per classifier.h's
// documented usage.
func (m *clsMatch) makeInvisibleAt(v Version) {
	m.removeVersion.Store(uint64(v))
}

// restoreVisibility undoes makeInvisibleAt, provided the rule has not
// been physically unlinked from its subtable yet. This supplements
// classifier.h's cls_rule_restore_visibility, used to abort an in-flight
// versioned transaction without visible effect.
func (m *clsMatch) restoreVisibility() {
	m.removeVersion.Store(uint64(VersionNotRemoved))
}

// The duplicate chain linking together identical-match, differing-priority
// clsMatch records - priority-descending with a newest-first tie-break,
// per classifier.h - is implemented by subtable.go's bucketCell/insertCell/
// removeCell, not here; see subtable.go for why the chain link is kept out
// of clsMatch itself.
