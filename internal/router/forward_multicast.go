package router

// multicastFloodForwarder implements SemanticsMulticastFlood: deliver
// to every local consumer link and, without origin filtering, to
// every peer router advertising the address. Used for control-plane
// flooding where the protocol itself prevents loops.
type multicastFloodForwarder struct{}

func (multicastFloodForwarder) Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool {
	delivered := false
	for _, link := range addr.LocalLinks() {
		if exclude.excludesLink(link) {
			continue
		}
		deliverLocal(link, dlv, true)
		c.Stats.IncDeliveriesEgress()
		delivered = true
	}

	mask := addr.RemoteMask()
	mask.EachSet(func(bit int) {
		node, ok := c.Routes.Node(bit)
		if !ok || node.DataLink == nil {
			return
		}
		if exclude.excludesLink(node.DataLink) {
			return
		}
		deliverLocal(node.DataLink, dlv, true)
		c.Stats.IncDeliveriesTransit()
		delivered = true
	})
	return delivered
}

// multicastOnceForwarder implements SemanticsMulticastOnce: the same
// local delivery as flood, but peer fanout is loop-filtered by
// consulting each candidate router's valid_origins bitmask against the
// message's origin mask bit, and coalesced so a router reachable by
// more than one path receives exactly one wire copy.
type multicastOnceForwarder struct{}

func (multicastOnceForwarder) Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool {
	delivered := false
	for _, link := range addr.LocalLinks() {
		if exclude.excludesLink(link) {
			continue
		}
		deliverLocal(link, dlv, true)
		c.Stats.IncDeliveriesEgress()
		delivered = true
	}

	originBit, hasOrigin := originMaskBit(c, dlv)

	seen := make(map[uint64]bool)
	mask := addr.RemoteMask()
	mask.EachSet(func(bit int) {
		if exclude.excludesRouter(bit) {
			return
		}
		node, ok := c.Routes.Node(bit)
		if !ok || node.DataLink == nil {
			return
		}
		if hasOrigin && node.ValidOrigins != nil {
			if node.ValidOrigins.Size() > originBit && !node.ValidOrigins.IsSet(originBit) {
				return
			}
		}
		if seen[node.DataLink.ID()] {
			return
		}
		seen[node.DataLink.ID()] = true
		deliverLocal(node.DataLink, dlv, true)
		c.Stats.IncDeliveriesTransit()
		delivered = true
	})
	return delivered
}

// originMaskBit computes the ingress router's mask bit from the
// delivery's recorded origin by hashing it into the address table and,
// if the resulting origin-address's rnodes has cardinality one,
// reading that single set bit.
func originMaskBit(c *Core, dlv *Delivery) (int, bool) {
	if !dlv.HasOrigin {
		return -1, false
	}
	originAddr, ok := c.Addresses.Lookup(dlv.Origin)
	if !ok {
		return -1, false
	}
	mask := originAddr.RemoteMask()
	return mask.SingleBit()
}
