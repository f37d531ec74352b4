// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

// TestConcurrentLookupDuringMutation exercises the single-writer,
// many-reader contract: one goroutine repeatedly inserts and removes
// rules while several others run Lookup concurrently. It never asserts
// a particular match (the reader's view is intentionally a moving
// target) but the race detector and any panic would fail the test;
// the goal is the same one as the teacher's
// example_fast_concurrent_test.go, adapted from a single atomic.Pointer
// swap to this package's multi-structure (trie/pvector/partition)
// publication.
func TestConcurrentLookupDuringMutation(t *testing.T) {
	c, err := NewClassifier(DefaultFlowSegments)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetPrefixFields([]FieldID{FieldIPDst}); err != nil {
		t.Fatal(err)
	}

	const nRules = 64
	const nIterations = 200
	const nReaders = 8

	rules := make([]*Rule, nRules)
	for i := range rules {
		rules[i] = &Rule{
			Match:    makeMatch(6, [4]byte{10, 0, byte(i), 0}, 24),
			Priority: int32(i),
		}
	}

	var g errgroup.Group

	g.Go(func() error {
		version := Version(1)
		for iter := 0; iter < nIterations; iter++ {
			r := rules[iter%nRules]
			if err := c.Insert(r, version, nil); err != nil {
				return err
			}
			version++
			if _, err := c.Remove(r, version); err != nil {
				return err
			}
			version++
		}
		return nil
	})

	for i := 0; i < nReaders; i++ {
		g.Go(func() error {
			flow := newTestFlow(6, [4]byte{10, 0, byte(i), 42})
			for iter := 0; iter < nIterations; iter++ {
				c.Lookup(&flow, Version(1<<62))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// TestConcurrentDeferredPublishBatch exercises Defer/Publish under
// concurrent readers: a batch of inserts becomes visible to Lookup only
// at the Publish boundary, never partially.
func TestConcurrentDeferredPublishBatch(t *testing.T) {
	c, _ := NewClassifier(nil)

	const nRules = 32
	rules := make([]*Rule, nRules)
	for i := range rules {
		rules[i] = &Rule{
			Match:    makeMatch(6, [4]byte{10, 1, byte(i), 0}, 24),
			Priority: int32(i),
		}
	}

	var g errgroup.Group
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		c.Defer()
		for _, r := range rules {
			if err := c.Insert(r, VersionMin, nil); err != nil {
				return err
			}
		}
		c.Publish()
		return nil
	})

	for i := 0; i < 4; i++ {
		g.Go(func() error {
			flow := newTestFlow(6, [4]byte{10, 1, 0, 7})
			for {
				c.Lookup(&flow, VersionMin)
				select {
				case <-done:
					return nil
				default:
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	flow := newTestFlow(6, [4]byte{10, 1, 0, 7})
	got, _ := c.Lookup(&flow, VersionMin)
	if got != rules[0] {
		t.Fatal("expected the batch to be fully visible after Publish")
	}
}
