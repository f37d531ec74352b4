// Copyright (c) 2026 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package classify

import "testing"

func setField(fl *Flow, f FieldID, bytes ...byte) {
	copy(fl.Field(f), bytes)
}

func TestMatchMaskedEqual(t *testing.T) {
	var m Match
	setField(&m.Mask, FieldIPDst, 0xff, 0xff, 0xff, 0x00)
	setField(&m.Value, FieldIPDst, 10, 0, 0, 0)

	var f Flow
	setField(&f, FieldIPDst, 10, 0, 0, 77)
	if !m.maskedEqual(&f) {
		t.Fatal("expected masked flow to match /24")
	}

	setField(&f, FieldIPDst, 10, 0, 1, 77)
	if m.maskedEqual(&f) {
		t.Fatal("expected masked flow outside /24 to not match")
	}
}

func TestMatchIsCatchAll(t *testing.T) {
	var m Match
	if !m.IsCatchAll() {
		t.Fatal("zero-mask match should be catch-all")
	}
	setField(&m.Mask, FieldIPProto, 0xff)
	if m.IsCatchAll() {
		t.Fatal("non-zero mask should not be catch-all")
	}
}

func TestMatchContains(t *testing.T) {
	var broad, narrow Match
	setField(&broad.Mask, FieldIPDst, 0xff, 0xff, 0x00, 0x00)
	setField(&broad.Value, FieldIPDst, 10, 0, 0, 0)

	setField(&narrow.Mask, FieldIPDst, 0xff, 0xff, 0xff, 0x00)
	setField(&narrow.Value, FieldIPDst, 10, 0, 5, 0)

	if !broad.Contains(&narrow) {
		t.Fatal("/16 should contain /24 within it")
	}
	if narrow.Contains(&broad) {
		t.Fatal("/24 should not contain the broader /16")
	}

	setField(&narrow.Value, FieldIPDst, 11, 0, 5, 0)
	if broad.Contains(&narrow) {
		t.Fatal("/16 for 10.0.0.0 should not contain a disjoint 11.0.5.0/24")
	}
}

func TestMatchIntersects(t *testing.T) {
	var a, b Match
	setField(&a.Mask, FieldIPDst, 0xff, 0xff, 0xff, 0x00)
	setField(&a.Value, FieldIPDst, 10, 0, 0, 0)

	setField(&b.Mask, FieldIPDst, 0xff, 0x00, 0x00, 0x00)
	setField(&b.Value, FieldIPDst, 10, 0, 0, 0)
	if !a.intersects(&b) {
		t.Fatal("10.0.0.0/24 and 10.0.0.0/8 should intersect")
	}

	setField(&b.Value, FieldIPDst, 11, 0, 0, 0)
	if a.intersects(&b) {
		t.Fatal("10.0.0.0/24 and 11.0.0.0/8 should not intersect")
	}
}

func TestMatchPrefixLen(t *testing.T) {
	var m Match
	setField(&m.Mask, FieldIPDst, 0xff, 0xff, 0xff, 0x00)
	plen, ok := m.prefixLen(FieldIPDst)
	if !ok || plen != 24 {
		t.Fatalf("expected plen=24 ok=true, got plen=%d ok=%v", plen, ok)
	}

	setField(&m.Mask, FieldIPDst, 0xff, 0x0f, 0xff, 0x00)
	if _, ok := m.prefixLen(FieldIPDst); ok {
		t.Fatal("expected non-contiguous mask to report ok=false")
	}
}

func TestUnwildcardField(t *testing.T) {
	var w, mask Flow
	setField(&mask, FieldIPProto, 0xff)
	unwildcardField(&w, &mask, FieldIPProto)
	if w.Field(FieldIPProto)[0] != 0xff {
		t.Fatal("expected IPProto byte to be un-wildcarded")
	}
	for _, b := range w.Field(FieldIPDst) {
		if b != 0 {
			t.Fatal("unrelated field must remain wildcarded")
		}
	}
}
