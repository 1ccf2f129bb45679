package router

import (
	"sync"

	"github.com/flowmesh/routercore/internal/bitmask"
)

// Semantics selects the forwarding strategy bound to an address.
type Semantics int

const (
	SemanticsMulticastFlood Semantics = iota
	SemanticsMulticastOnce
	SemanticsAnycastClosest
	SemanticsAnycastBalanced
	SemanticsLinkBalanced
)

// Address is one entry in the mobile address table: a destination
// identity bound to zero or more local consumers, zero or more
// link-routed destinations, and a bitmask of remote routers known to
// have reachable consumers.
type Address struct {
	Hash string

	Semantics Semantics

	mu sync.Mutex

	localLinks []*Link          // directly attached consumers, guarded by mu
	linkRouted []*Link          // link-routed destinations, guarded by mu
	remoteMask *bitmask.Bitmask // bit set per remote router advertising this address
	rrCursor   int              // anycast round-robin cursor into localLinks+linkRouted

	refCount int // number of outstanding reasons this entry must survive (links, routes, in-flight work)
}

// NewAddress creates an address table entry for hash with the given
// forwarding semantics, sized to support maskSize remote routers.
func NewAddress(hash string, sem Semantics, maskSize int) *Address {
	return &Address{
		Hash:       hash,
		Semantics:  sem,
		remoteMask: bitmask.New(maskSize),
	}
}

// AddLocalLink attaches link as a local consumer or producer of this
// address.
func (a *Address) AddLocalLink(l *Link) {
	a.mu.Lock()
	a.localLinks = append(a.localLinks, l)
	a.mu.Unlock()
}

// RemoveLocalLink detaches link from the address's local-consumer
// list.
func (a *Address) RemoveLocalLink(l *Link) {
	a.mu.Lock()
	for i, x := range a.localLinks {
		if x == l {
			a.localLinks = append(a.localLinks[:i], a.localLinks[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
}

// AddLinkRouted registers a link-routed destination for this address.
func (a *Address) AddLinkRouted(l *Link) {
	a.mu.Lock()
	a.linkRouted = append(a.linkRouted, l)
	a.mu.Unlock()
}

// RemoveLinkRouted removes a link-routed destination.
func (a *Address) RemoveLinkRouted(l *Link) {
	a.mu.Lock()
	for i, x := range a.linkRouted {
		if x == l {
			a.linkRouted = append(a.linkRouted[:i], a.linkRouted[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
}

// LocalLinks returns a snapshot of the local consumer/producer links.
func (a *Address) LocalLinks() []*Link {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Link, len(a.localLinks))
	copy(out, a.localLinks)
	return out
}

// LinkRoutedLinks returns a snapshot of the link-routed destinations.
func (a *Address) LinkRoutedLinks() []*Link {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Link, len(a.linkRouted))
	copy(out, a.linkRouted)
	return out
}

// SetRemote marks router as advertising reachability to this address.
func (a *Address) SetRemote(router int) {
	a.mu.Lock()
	a.remoteMask.Set(router)
	a.mu.Unlock()
}

// ClearRemote clears router's reachability bit.
func (a *Address) ClearRemote(router int) {
	a.mu.Lock()
	a.remoteMask.Clear(router)
	a.mu.Unlock()
}

// HasRemote reports whether any remote router advertises this
// address.
func (a *Address) HasRemote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.remoteMask.IsZero()
}

// RemoteMask returns a copy of the remote reachability mask.
func (a *Address) RemoteMask() *bitmask.Bitmask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remoteMask.Clone()
}

// NextRoundRobin advances and returns the round-robin cursor used by
// ANYCAST_CLOSEST's local-link choice and LINK_BALANCED, modulo n
// candidates.
func (a *Address) NextRoundRobin(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n == 0 {
		return 0
	}
	c := a.rrCursor % n
	a.rrCursor = (a.rrCursor + 1) % n
	return c
}

// Eligible reports whether the address entry is eligible for
// garbage collection: no local links, no link-routed destinations, no
// remote advertisers and no outstanding references.
func (a *Address) Eligible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.localLinks) == 0 && len(a.linkRouted) == 0 && a.remoteMask.IsZero() && a.refCount == 0
}

// Ref/Unref track transient reasons (e.g. a forwarding action
// in-flight that holds a reference) that must delay GC even when all
// links have gone away.
func (a *Address) Ref()   { a.mu.Lock(); a.refCount++; a.mu.Unlock() }
func (a *Address) Unref() { a.mu.Lock(); a.refCount--; a.mu.Unlock() }

// AddressTable is the mobile address table: hash string to Address,
// core-goroutine owned (no internal locking — callers serialize access
// via the core action queue).
type AddressTable struct {
	byHash map[string]*Address
}

// NewAddressTable creates an empty address table.
func NewAddressTable() *AddressTable {
	return &AddressTable{byHash: make(map[string]*Address)}
}

// Lookup returns the address entry for hash, if any.
func (t *AddressTable) Lookup(hash string) (*Address, bool) {
	a, ok := t.byHash[hash]
	return a, ok
}

// GetOrCreate returns the existing entry for hash, or creates one with
// the given default semantics and mask size.
func (t *AddressTable) GetOrCreate(hash string, sem Semantics, maskSize int) *Address {
	if a, ok := t.byHash[hash]; ok {
		return a
	}
	a := NewAddress(hash, sem, maskSize)
	t.byHash[hash] = a
	return a
}

// Remove deletes hash's entry unconditionally. Callers are expected to
// have checked Eligible() first, except in teardown paths.
func (t *AddressTable) Remove(hash string) {
	delete(t.byHash, hash)
}

// CollectGarbage removes every eligible entry and returns the removed
// hashes, so callers can emit mobile_removed control updates for each.
func (t *AddressTable) CollectGarbage() []string {
	var removed []string
	for hash, a := range t.byHash {
		if a.Eligible() {
			delete(t.byHash, hash)
			removed = append(removed, hash)
		}
	}
	return removed
}

// Len returns the number of entries currently in the table.
func (t *AddressTable) Len() int { return len(t.byHash) }
