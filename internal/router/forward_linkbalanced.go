package router

// linkBalancedForwarder implements LINK_BALANCED, the degenerate
// forwarder used at attach time rather than message time: it picks a
// peer link to route an incoming attach toward. Forward is never
// called for this semantics; SelectRoute is what the attach handler
// (protocol.go) calls instead.
type linkBalancedForwarder struct{}

func (linkBalancedForwarder) Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool {
	return false
}

// SelectRoute chooses which link-routed destination a newly attaching
// link should be routed to, round-robinning across the address's
// registered link-routed destinations.
func (linkBalancedForwarder) SelectRoute(addr *Address) (*Link, bool) {
	dests := addr.LinkRoutedLinks()
	if len(dests) == 0 {
		return nil, false
	}
	idx := addr.NextRoundRobin(len(dests))
	return dests[idx], true
}
