package router

// anycastClosestForwarder implements SemanticsAnycastClosest: a local
// consumer link (round-robinned), else the first peer router
// advertising the address. In-process subscribers get no preference
// of their own: they are reached only as entries in the address's
// local link list. Link-exclusion masks are ignored, matching
// anycast's point-to-point (not loop-prone) delivery model.
type anycastClosestForwarder struct{}

func (anycastClosestForwarder) Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool {
	links := addr.LocalLinks()
	if len(links) > 0 {
		idx := addr.NextRoundRobin(len(links))
		link := links[idx]
		deliverLocal(link, dlv, !dlv.IsSettled())
		if !dlv.IsSettled() {
			dlv.Settle(DispositionAccepted)
		}
		c.Stats.IncDeliveriesEgress()
		return true
	}

	mask := addr.RemoteMask()
	bit := mask.FirstSet()
	if bit < 0 {
		return false
	}
	node, ok := c.Routes.Node(bit)
	if !ok {
		return false
	}
	link := pickTrafficLink(node, dlv)
	if link == nil {
		return false
	}
	deliverLocal(link, dlv, true)
	c.Stats.IncDeliveriesTransit()
	return true
}

// anycastBalancedForwarder implements SemanticsAnycastBalanced:
// load-aware selection across every candidate destination (local
// links and reachable peer data links), choosing whichever currently
// carries the smallest undelivered queue depth, tie-breaking by the
// lowest mask bit or lowest link identifier.
type anycastBalancedForwarder struct{}

func (anycastBalancedForwarder) Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool {
	type candidate struct {
		link   *Link
		local  bool
		weight int
		tie    uint64
	}
	var best *candidate

	consider := func(l *Link, local bool, tie uint64) {
		l.Conn.Lock()
		w := l.UndeliveredLen()
		l.Conn.Unlock()
		if best == nil || w < best.weight || (w == best.weight && tie < best.tie) {
			best = &candidate{link: l, local: local, weight: w, tie: tie}
		}
	}

	for _, link := range addr.LocalLinks() {
		consider(link, true, link.ID())
	}

	mask := addr.RemoteMask()
	mask.EachSet(func(bit int) {
		node, ok := c.Routes.Node(bit)
		if !ok || node.DataLink == nil {
			return
		}
		consider(node.DataLink, false, uint64(bit))
	})

	if best == nil {
		return false
	}
	deliverLocal(best.link, dlv, true)
	if best.local {
		c.Stats.IncDeliveriesEgress()
	} else {
		c.Stats.IncDeliveriesTransit()
	}
	return true
}

// pickTrafficLink chooses a neighbor's control or data link depending
// on the delivery's traffic class; router-control messages travel the
// control link, ordinary application traffic the data link.
func pickTrafficLink(node *RouterNode, dlv *Delivery) *Link {
	if dlv.Link != nil && dlv.Link.Type == LinkRouterControl {
		if node.ControlLink != nil {
			return node.ControlLink
		}
	}
	if node.DataLink != nil {
		return node.DataLink
	}
	return node.ControlLink
}
