package router

import "github.com/flowmesh/routercore/internal/bitmask"

// RouterNode represents one peer in the mesh. Invariants: a
// non-neighbor node has a non-nil NextHop; a neighbor has both
// ControlLink and DataLink set.
type RouterNode struct {
	MaskBit int

	// NextHop is the adjacent router through which traffic to this
	// node travels, or nil if this node is itself a direct neighbor.
	NextHop *RouterNode

	ControlLink *Link // set only when this node is a direct neighbor
	DataLink    *Link // set only when this node is a direct neighbor

	// ValidOrigins is indexed by origin mask bit: bit i set means a
	// message whose trace-derived origin is router i may be forwarded
	// on to this node without looping back toward it.
	ValidOrigins *bitmask.Bitmask

	RouterID string
}

// IsNeighbor reports whether this node is a direct neighbor (its
// traffic does not transit another router first).
func (n *RouterNode) IsNeighbor() bool { return n.NextHop == nil }

// RouteTable is the core-goroutine-owned collection of known router
// nodes plus the mobile-address control-plane operations that mutate
// each Address's remote-owner mask.
type RouteTable struct {
	maskSize int
	nodes    map[int]*RouterNode // keyed by MaskBit
	byID     map[string]*RouterNode

	addrs *AddressTable
}

// NewRouteTable creates a route table sized for maskSize routers,
// operating against the given address table.
func NewRouteTable(maskSize int, addrs *AddressTable) *RouteTable {
	return &RouteTable{
		maskSize: maskSize,
		nodes:    make(map[int]*RouterNode),
		byID:     make(map[string]*RouterNode),
		addrs:    addrs,
	}
}

// AddNeighbor installs or updates a direct-neighbor node, setting its
// control/data link pointers atomically with respect to forwarding —
// safe because this method, like all RouteTable methods, only ever
// runs on the core goroutine.
func (rt *RouteTable) AddNeighbor(bit int, routerID string, control, data *Link, validOrigins *bitmask.Bitmask) *RouterNode {
	n := &RouterNode{
		MaskBit:      bit,
		RouterID:     routerID,
		ControlLink:  control,
		DataLink:     data,
		ValidOrigins: validOrigins,
	}
	rt.nodes[bit] = n
	rt.byID[routerID] = n
	return n
}

// AddRemote installs or updates a non-neighbor node reached via
// nextHop.
func (rt *RouteTable) AddRemote(bit int, routerID string, nextHop *RouterNode, validOrigins *bitmask.Bitmask) *RouterNode {
	n := &RouterNode{
		MaskBit:      bit,
		RouterID:     routerID,
		NextHop:      nextHop,
		ValidOrigins: validOrigins,
	}
	rt.nodes[bit] = n
	rt.byID[routerID] = n
	return n
}

// Node returns the router node at the given mask bit, if known.
func (rt *RouteTable) Node(bit int) (*RouterNode, bool) {
	n, ok := rt.nodes[bit]
	return n, ok
}

// NodeByID returns the router node with the given router ID, if
// known.
func (rt *RouteTable) NodeByID(routerID string) (*RouterNode, bool) {
	n, ok := rt.byID[routerID]
	return n, ok
}

// RemoveNode drops the router node at mask bit, e.g. on neighbor loss.
// It does not touch route entries or address remote-owner bits that
// reference the node.
func (rt *RouteTable) RemoveNode(bit int) {
	if n, ok := rt.nodes[bit]; ok {
		delete(rt.byID, n.RouterID)
		delete(rt.nodes, bit)
	}
}

// InvalidateNeighborLoss clears bit from every address's remote-owner
// mask and removes any router nodes whose next hop was the lost
// neighbor: losing a link invalidates every route entry that referenced
// it. It returns the set of address hashes that changed, so the caller
// can run GC and emit mobile_removed updates.
func (rt *RouteTable) InvalidateNeighborLoss(bit int) []string {
	lost, ok := rt.nodes[bit]
	if !ok {
		return nil
	}

	for b, n := range rt.nodes {
		if n.NextHop == lost {
			delete(rt.nodes, b)
			delete(rt.byID, n.RouterID)
		}
	}
	rt.RemoveNode(bit)

	var changed []string
	for hash, addr := range rt.addrs.byHash {
		if addr.RemoteMask().IsSet(bit) {
			addr.ClearRemote(bit)
			changed = append(changed, hash)
		}
	}
	return changed
}

// MobileAdded records that the router at mask bit owns a consumer for
// addr.
func (rt *RouteTable) MobileAdded(addr *Address, bit int) {
	addr.SetRemote(bit)
}

// MobileRemoved clears the record that the router at mask bit owns a
// consumer for addr.
func (rt *RouteTable) MobileRemoved(addr *Address, bit int) {
	addr.ClearRemote(bit)
}
