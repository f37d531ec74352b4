// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

// All returns an iterator over every rule visible at version, in
// unspecified order. It consults the immediate (non-deferred)
// subtablesByMask index directly, so a rule Inserted but not yet
// Published is still visited, matching classifier.h's documented
// "rules are immediately available to classifier iterators" guarantee.
//
// Written in the Go 1.23 range-over-func style, following the teacher's
// own table_iter.go All/AllSorted pattern: callers range directly over
// the result, e.g. for r := range cls.All(version) { ... }.
func (c *Classifier) All(version Version) func(yield func(*Rule) bool) {
	return func(yield func(*Rule) bool) {
		for _, st := range c.subtablesByMask {
			for _, m := range st.allVisible(version) {
				if !yield(m.rule) {
					return
				}
			}
		}
	}
}

// AllMatching returns an iterator over every rule visible at version
// whose Match contains target, i.e. every flow target could match, the
// rule would also match. A Subtable whose mask examines some bit that
// target's mask leaves wildcarded is skipped outright, since none of its
// rules (which all share that mask) could satisfy the containment test
// either; this is the cursor's target-specific subtable skipping.
func (c *Classifier) AllMatching(target Match, version Version) func(yield func(*Rule) bool) {
	return func(yield func(*Rule) bool) {
		for _, st := range c.subtablesByMask {
			stMask := Match{Mask: st.mask.Mask, Value: target.Value}
			if !stMask.Contains(&target) {
				continue
			}
			for _, m := range st.allVisible(version) {
				if !m.rule.Match.Contains(&target) {
					continue
				}
				if !yield(m.rule) {
					return
				}
			}
		}
	}
}
