// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "testing"

func TestTrieInsertLookup(t *testing.T) {
	tr := newTrie(FieldIPDst)

	v24 := []byte{10, 0, 0, 0}
	tr.Insert(v24, 24)
	tr.Publish()

	maxPlen, consumed := tr.Lookup([]byte{10, 0, 0, 77})
	if maxPlen != 24 {
		t.Fatalf("expected maxPlen=24, got %d", maxPlen)
	}
	if consumed < 24 {
		t.Fatalf("expected at least 24 bits consumed, got %d", consumed)
	}

	maxPlen, _ = tr.Lookup([]byte{11, 0, 0, 77})
	if maxPlen != -1 {
		t.Fatalf("expected no match for disjoint address, got maxPlen=%d", maxPlen)
	}
}

func TestTrieOverlappingPrefixes(t *testing.T) {
	tr := newTrie(FieldIPDst)
	tr.Insert([]byte{10, 0, 0, 0}, 8)
	tr.Insert([]byte{10, 0, 0, 0}, 24)
	tr.Publish()

	maxPlen, _ := tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != 24 {
		t.Fatalf("expected the more specific /24 to win, got %d", maxPlen)
	}

	maxPlen, _ = tr.Lookup([]byte{10, 5, 5, 5})
	if maxPlen != 8 {
		t.Fatalf("expected fallback to /8 outside the /24, got %d", maxPlen)
	}
}

func TestTrieRemove(t *testing.T) {
	tr := newTrie(FieldIPDst)
	tr.Insert([]byte{10, 0, 0, 0}, 24)
	tr.Insert([]byte{10, 0, 1, 0}, 24)
	tr.Publish()

	if !tr.Remove([]byte{10, 0, 0, 0}, 24) {
		t.Fatal("expected remove of existing prefix to succeed")
	}
	tr.Publish()

	maxPlen, _ := tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != -1 {
		t.Fatalf("expected removed /24 to no longer match, got %d", maxPlen)
	}
	maxPlen, _ = tr.Lookup([]byte{10, 0, 1, 5})
	if maxPlen != 24 {
		t.Fatalf("expected sibling /24 to remain, got %d", maxPlen)
	}

	if tr.Remove([]byte{192, 168, 0, 0}, 24) {
		t.Fatal("expected remove of absent prefix to report false")
	}
}

func TestTrieDuplicateInsertRefcounts(t *testing.T) {
	tr := newTrie(FieldIPDst)
	tr.Insert([]byte{10, 0, 0, 0}, 24)
	tr.Insert([]byte{10, 0, 0, 0}, 24)
	tr.Publish()

	if !tr.Remove([]byte{10, 0, 0, 0}, 24) {
		t.Fatal("first remove should succeed")
	}
	tr.Publish()
	maxPlen, _ := tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != 24 {
		t.Fatal("expected the /24 to still be tracked after removing one of two duplicate inserts")
	}

	if !tr.Remove([]byte{10, 0, 0, 0}, 24) {
		t.Fatal("second remove should succeed")
	}
	tr.Publish()
	maxPlen, _ = tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != -1 {
		t.Fatal("expected the /24 to be gone after removing both inserts")
	}
}

func TestTrieLiveVsPublished(t *testing.T) {
	tr := newTrie(FieldIPDst)
	tr.Insert([]byte{10, 0, 0, 0}, 24)
	// not yet published: readers must still see no match.
	maxPlen, _ := tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != -1 {
		t.Fatal("unpublished insert must not be visible to Lookup")
	}
	tr.Publish()
	maxPlen, _ = tr.Lookup([]byte{10, 0, 0, 5})
	if maxPlen != 24 {
		t.Fatal("published insert must be visible to Lookup")
	}
}
