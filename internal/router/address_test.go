package router

import "testing"

func TestAddressTableGetOrCreateReusesEntry(t *testing.T) {
	tbl := NewAddressTable()
	a := tbl.GetOrCreate("m/one", SemanticsMulticastOnce, 8)
	b := tbl.GetOrCreate("m/one", SemanticsAnycastClosest, 8)
	if a != b {
		t.Fatal("GetOrCreate should return the existing entry on a repeat hash")
	}
	if a.Semantics != SemanticsMulticastOnce {
		t.Fatal("second GetOrCreate must not overwrite the entry's semantics")
	}
}

func TestAddressEligibleAndGC(t *testing.T) {
	tbl := NewAddressTable()
	addr := tbl.GetOrCreate("m/gc", SemanticsMulticastFlood, 8)
	if !addr.Eligible() {
		t.Fatal("a fresh address with no links, routes or remotes should be eligible")
	}

	l := &Link{}
	addr.AddLocalLink(l)
	if addr.Eligible() {
		t.Fatal("address with a local link must not be eligible")
	}
	addr.RemoveLocalLink(l)
	if !addr.Eligible() {
		t.Fatal("address should become eligible again once its only link is removed")
	}

	addr.SetRemote(3)
	if addr.Eligible() {
		t.Fatal("address advertised by a remote router must not be eligible")
	}
	addr.ClearRemote(3)

	addr.Ref()
	if addr.Eligible() {
		t.Fatal("a held reference must block eligibility")
	}
	addr.Unref()
	if !addr.Eligible() {
		t.Fatal("address should be eligible once its reference is released")
	}

	removed := tbl.CollectGarbage()
	if len(removed) != 1 || removed[0] != "m/gc" {
		t.Fatalf("expected m/gc collected, got %v", removed)
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected empty table after GC, got %d entries", tbl.Len())
	}
}

func TestAddressRoundRobinCursorWraps(t *testing.T) {
	addr := NewAddress("m/rr", SemanticsAnycastBalanced, 8)
	seen := make([]int, 6)
	for i := range seen {
		seen[i] = addr.NextRoundRobin(3)
	}
	want := []int{0, 1, 2, 0, 1, 2}
	for i, v := range want {
		if seen[i] != v {
			t.Fatalf("cursor[%d] = %d, want %d (sequence %v)", i, seen[i], v, seen)
		}
	}
}

func TestAddressRemoteMaskIsolatesCopy(t *testing.T) {
	addr := NewAddress("m/mask", SemanticsMulticastFlood, 8)
	addr.SetRemote(2)
	snap := addr.RemoteMask()
	snap.Set(5)
	if addr.RemoteMask().IsSet(5) {
		t.Fatal("RemoteMask must return an independent copy, not a live reference")
	}
	if !addr.HasRemote() {
		t.Fatal("HasRemote should report true once a remote bit is set")
	}
}

func TestAddressTableRemoveUnconditional(t *testing.T) {
	tbl := NewAddressTable()
	addr := tbl.GetOrCreate("m/x", SemanticsMulticastFlood, 8)
	addr.AddLocalLink(&Link{})
	tbl.Remove("m/x")
	if _, ok := tbl.Lookup("m/x"); ok {
		t.Fatal("Remove must delete the entry even when not eligible")
	}
}
