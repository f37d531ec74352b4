// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "sync/atomic"

// Classifier is a concurrent, versioned, priority-ordered store of
// Match/priority rules (component F). A single goroutine is expected to
// call the mutating methods (Insert, Replace, Remove, Defer, Publish,
// SetPrefixFields); Lookup, FindRuleExactly, FindMatchExactly,
// RuleOverlaps and the All/AllMatching iterators may run concurrently with each other
// and with that one writer, without blocking.
type Classifier struct {
	segments []int

	subtablesByMask map[Flow]*subtable // immediately consistent, consulted by All/AllMatching/FindXExactly
	ruleToMatch     map[*Rule]*clsMatch

	trieFields []FieldID
	tries      [MaxTries]*trie

	pv   *pvector
	part *partition

	deferred bool
	deferrer Deferrer

	nRules    atomic.Int64
	conjRules atomic.Int64
}

// NewClassifier returns an empty Classifier. flowSegments gives the
// staged-lookup byte boundaries shared by every Subtable; it may have at
// most MaxIndices entries, each less than FlowLen. A nil or empty slice
// disables staged pruning (every Subtable always computes its full
// digest directly).
func NewClassifier(flowSegments []int) (*Classifier, error) {
	if len(flowSegments) > MaxIndices {
		return nil, ErrTooManyFlowSegments
	}
	segs := make([]int, len(flowSegments))
	copy(segs, flowSegments)

	c := &Classifier{
		segments:        segs,
		subtablesByMask: make(map[Flow]*subtable),
		ruleToMatch:     make(map[*Rule]*clsMatch),
		pv:              newPvector(),
		part:            newPartition(),
		deferrer:        SyncDeferrer{},
	}
	return c, nil
}

// SetDeferrer installs the Deferrer used to postpone the physical
// unlinking of removed rules. The default, installed by NewClassifier,
// is SyncDeferrer.
func (c *Classifier) SetDeferrer(d Deferrer) {
	c.deferrer = d
}

// SetPrefixFields configures which fields the Classifier tracks in a
// prefix trie for pruning, replacing any previous configuration. Every
// currently installed rule is re-indexed against the new field set.
func (c *Classifier) SetPrefixFields(fields []FieldID) error {
	if len(fields) > MaxTries {
		return ErrTooManyTrieFields
	}

	c.trieFields = append([]FieldID(nil), fields...)
	var tries [MaxTries]*trie
	for i, f := range fields {
		tries[i] = newTrie(f)
	}
	c.tries = tries

	for _, st := range c.subtablesByMask {
		for i, f := range c.trieFields {
			plen, ok := st.mask.prefixLen(f)
			if !ok {
				continue
			}
			for _, m := range st.allVisible(VersionMax) {
				val, _ := fieldBits(&m.rule.Match.Value, f)
				c.tries[i].Insert(val, plen)
			}
		}
	}

	if !c.deferred {
		c.publishAux()
	}
	return nil
}

func (c *Classifier) subtableFor(mask *Match) *subtable {
	if st, ok := c.subtablesByMask[mask.Mask]; ok {
		return st
	}
	st := newSubtable(*mask, c.segments)
	c.subtablesByMask[mask.Mask] = st
	c.pv.Add(st)
	return st
}

// Insert adds r to the Classifier, visible to lookups from version
// onward. conj may be nil for an ordinary (non-conjunctive) rule.
//
// Per classifier.h and spec §4.1/§7, inserting a rule whose (match,
// priority) exactly duplicates an already-installed rule is a
// programmer error, not a runtime condition to recover from: it panics
// rather than silently chaining a second identical entry. Replace is
// the documented way to swap one rule for another at the same priority.
func (c *Classifier) Insert(r *Rule, version Version, conj []Conjunction) error {
	mask := Match{Mask: r.Match.Mask}
	st := c.subtableFor(&mask)

	for _, existing := range st.allVisible(VersionMax) {
		if existing.priority == r.Priority && existing.rule.Match.Value == r.Match.Value {
			panic("classify: duplicate (match, priority) rule already installed; use Replace instead")
		}
	}

	m := newClsMatch(r, version, conj, st)
	st.Insert(m)
	c.ruleToMatch[r] = m
	c.nRules.Add(1)
	if len(conj) > 0 {
		c.conjRules.Add(1)
	}

	if st.metadataPartitioned {
		c.part.Add(r.Match.Value.Metadata(), st)
	}
	for i, f := range c.trieFields {
		plen, ok := r.Match.prefixLen(f)
		if !ok {
			continue
		}
		val, _ := fieldBits(&r.Match.Value, f)
		c.tries[i].Insert(val, plen)
	}

	if !c.deferred {
		c.publishAux()
	}
	return nil
}

// RemovedRule is a handle to a rule made logically invisible by Remove,
// retained only for a possible follow-up RestoreVisibility call before
// the installed Deferrer has run the rule's physical cleanup.
type RemovedRule struct {
	rule *Rule
	m    *clsMatch
}

// Remove makes r invisible to lookups from version onward. The rule's
// physical storage (bucket chain entry, trie and Partition membership)
// is unlinked through the installed Deferrer, so that a Lookup already
// in flight when Remove is called still completes correctly.
func (c *Classifier) Remove(r *Rule, version Version) (*RemovedRule, error) {
	m, ok := c.ruleToMatch[r]
	if !ok {
		return nil, ErrRuleNotFound
	}
	m.makeInvisibleAt(version)
	delete(c.ruleToMatch, r)
	c.nRules.Add(-1)
	if len(m.conjunctions) > 0 {
		c.conjRules.Add(-1)
	}

	c.deferrer.Postpone(func() {
		if Version(m.removeVersion.Load()) == VersionNotRemoved {
			return // RestoreVisibility undid this removal
		}
		st := m.subtable
		if !st.Remove(m) {
			return // already unlinked by an earlier cleanup of the same rule
		}
		if st.metadataPartitioned {
			c.part.Remove(r.Match.Value.Metadata(), st)
		}
		for i, f := range c.trieFields {
			plen, ok := r.Match.prefixLen(f)
			if !ok {
				continue
			}
			val, _ := fieldBits(&r.Match.Value, f)
			c.tries[i].Remove(val, plen)
		}
		if st.isEmpty() {
			c.pv.Remove(st)
			delete(c.subtablesByMask, st.mask.Mask)
		}
		if !c.deferred {
			c.publishAux()
		}
	})
	return &RemovedRule{rule: r, m: m}, nil
}

// Replace removes old as of version, exactly as Remove does, and then
// inserts new visible from version. The two steps are not one atomic
// swap: a Lookup or RuleOverlaps at version or later may observe neither
// rule between them, but never observes both. Replace does not return
// the old rule; it returns ErrRuleNotFound if old is not installed.
// This implementation otherwise preserves every invariant (no headless
// or doubly-linked bucket) regardless of how it is called.
func (c *Classifier) Replace(old, new *Rule, version Version, conj []Conjunction) error {
	if _, ok := c.ruleToMatch[old]; !ok {
		return ErrRuleNotFound
	}
	if _, err := c.Remove(old, version); err != nil {
		return err
	}
	return c.Insert(new, version, conj)
}

// RestoreVisibility undoes a Remove that has not yet had its physical
// cleanup run by the Deferrer, aborting an in-flight versioned removal
// without visible effect. It is an error to call this after the
// Deferrer has already unlinked the rule.
func (c *Classifier) RestoreVisibility(rr *RemovedRule) {
	rr.m.restoreVisibility()
	c.ruleToMatch[rr.rule] = rr.m
	c.nRules.Add(1)
	if len(rr.m.conjunctions) > 0 {
		c.conjRules.Add(1)
	}
}

// Defer begins a batch of mutations whose effect on the pruning
// structures (the prefix tries, the priority vector, the Partition map)
// becomes visible to Lookup all at once, at the next Publish, rather
// than one mutation at a time. Rule visibility itself (version
// intervals) is unaffected by deferral.
func (c *Classifier) Defer() {
	c.deferred = true
}

// Publish ends a Defer batch, making every pruning-structure change
// since the matching Defer visible to concurrent Lookups. Calling
// Publish without a preceding Defer is harmless.
func (c *Classifier) Publish() {
	c.deferred = false
	c.publishAux()
}

func (c *Classifier) publishAux() {
	for _, st := range c.subtablesByMask {
		st.recomputeMaxPriority()
	}
	c.pv.Resort()
	c.pv.Publish()
	for _, t := range c.tries {
		if t != nil {
			t.Publish()
		}
	}
	c.part.Publish()
}

// Lookup returns the highest-priority rule visible at version that
// accepts flow, and the set of header bits actually consulted while
// deciding so (every bit of every Subtable mask examined, whether or
// not that Subtable produced a match). If no rule matches, rule is nil
// but wildcards still reports every bit consulted.
func (c *Classifier) Lookup(flow *Flow, version Version) (rule *Rule, wildcards Flow) {
	if c.conjRules.Load() > 0 {
		return c.lookupWithConjunctions(flow, version)
	}

	var best *clsMatch
	for _, st := range c.pv.Snapshot() {
		if best != nil && st.getMaxPriority() <= best.priority {
			break
		}
		if c.pruneByPartition(st, flow, &wildcards) {
			continue
		}
		if c.pruneByTrie(st, flow, &wildcards) {
			continue
		}
		if !st.lookupStaged(flow, &wildcards) {
			continue
		}
		if m := st.lookupExact(flow, &wildcards, version); m != nil {
			if best == nil || m.priority > best.priority {
				best = m
			}
		}
	}
	if best == nil {
		return nil, wildcards
	}
	return best.rule, wildcards
}

// pruneByPartition reports whether st can be skipped because no rule in
// st carries flow's metadata value.
func (c *Classifier) pruneByPartition(st *subtable, flow *Flow, w *Flow) bool {
	if !st.metadataPartitioned {
		return false
	}
	entry := c.part.Lookup(flow.Metadata())
	if entry.has(st) {
		return false
	}
	unwildcardField(w, &st.mask.Mask, FieldMetadata)
	return true
}

// pruneByTrie reports whether st can be skipped because the prefix
// tries show no rule matching flow's value at the prefix length st's
// mask requires on any configured field.
func (c *Classifier) pruneByTrie(st *subtable, flow *Flow, w *Flow) bool {
	for i, f := range c.trieFields {
		plen, ok := st.mask.prefixLen(f)
		if !ok {
			continue
		}
		val, _ := fieldBits(flow, f)
		maxPlen, consumed := c.tries[i].Lookup(val)
		unwildcardFieldPrefix(w, f, consumed)
		if maxPlen < plen {
			return true
		}
	}
	return false
}

// lookupWithConjunctions is the fallback path used whenever at least
// one installed rule carries conjunctive clauses: it scans every
// Subtable without early exit or pruning, since a later, lower-maxPriority
// Subtable might complete a conjunction that outranks any single plain
// match found so far.
func (c *Classifier) lookupWithConjunctions(flow *Flow, version Version) (rule *Rule, wildcards Flow) {
	type conjState struct {
		satisfied map[uint8]bool
		maxPrio   int32
		sample    *Rule
	}
	conj := make(map[uint32]*conjState)

	var best *clsMatch
	for _, st := range c.pv.Snapshot() {
		unwildcardRange(&wildcards, &st.mask.Mask, 0, FlowLen)
		for _, n := range st.allVisible(version) {
			if !n.rule.Match.maskedEqual(flow) {
				continue
			}
			if len(n.conjunctions) == 0 {
				if best == nil || n.priority > best.priority {
					best = n
				}
				continue
			}
			for _, cj := range n.conjunctions {
				cs, ok := conj[cj.ID]
				if !ok {
					cs = &conjState{satisfied: make(map[uint8]bool)}
					conj[cj.ID] = cs
				}
				cs.satisfied[cj.Clause] = true
				if cs.sample == nil || n.priority > cs.maxPrio {
					cs.maxPrio = n.priority
					cs.sample = n.rule
				}
				if len(cs.satisfied) == int(cj.NClauses) {
					if best == nil || cs.maxPrio > best.priority {
						best = &clsMatch{rule: cs.sample, priority: cs.maxPrio}
					}
				}
			}
		}
	}
	if best == nil {
		return nil, wildcards
	}
	return best.rule, wildcards
}

// FindRuleExactly returns the installed rule whose mask, value and
// priority exactly match, visible at version, or nil.
func (c *Classifier) FindRuleExactly(match Match, priority int32, version Version) *Rule {
	st, ok := c.subtablesByMask[match.Mask]
	if !ok {
		return nil
	}
	for _, m := range st.allVisible(version) {
		if m.priority == priority && m.rule.Match.Value == match.Value {
			return m.rule
		}
	}
	return nil
}

// FindMatchExactly returns the installed rule whose mask and value
// exactly match, visible at version, regardless of priority, or nil.
func (c *Classifier) FindMatchExactly(match Match, version Version) *Rule {
	st, ok := c.subtablesByMask[match.Mask]
	if !ok {
		return nil
	}
	for _, m := range st.allVisible(version) {
		if m.rule.Match.Value == match.Value {
			return m.rule
		}
	}
	return nil
}

// RuleOverlaps reports whether any installed rule visible at version
// shares priority and could match some flow that match could also
// match.
func (c *Classifier) RuleOverlaps(match Match, priority int32, version Version) bool {
	for _, st := range c.subtablesByMask {
		for _, m := range st.allVisible(version) {
			if m.priority == priority && match.intersects(&m.rule.Match) {
				return true
			}
		}
	}
	return false
}

// Count returns the number of rules currently installed (logically not
// yet removed), regardless of whether their physical cleanup has run.
func (c *Classifier) Count() int {
	return int(c.nRules.Load())
}

// IsEmpty reports whether the Classifier currently holds no rules.
func (c *Classifier) IsEmpty() bool {
	return c.Count() == 0
}
