package router

import (
	"go.uber.org/zap"

	"github.com/flowmesh/routercore/internal/message"
)

// handleConnectionOpened registers a newly opened connection.
func (c *Core) handleConnectionOpened(a Action) {
	if a.Conn == nil {
		return
	}
	c.registerConnection(a.Conn)
	c.Stats.IncConnectionsCurrent()
}

// handleConnectionClosed tears down every link still owned by the
// connection and releases the connection itself.
func (c *Core) handleConnectionClosed(a Action) {
	if a.Conn == nil {
		return
	}
	c.connMu.Lock()
	_, wasOpen := c.connections[a.Conn.ID()]
	c.connMu.Unlock()

	a.Conn.MarkClosed()
	for _, l := range a.Conn.Links() {
		c.detachLink(l, false, &Transient{Reason: "connection closed"})
	}
	c.unregisterConnection(a.Conn)
	// A connection closed before its Open was admitted was never
	// counted as current, so it must not be decremented either —
	// otherwise a denied Open underflows the counter.
	if wasOpen {
		c.Stats.DecConnectionsCurrent()
	}
}

// handleLinkFirstAttach creates the link object for an inbound
// first-attach and schedules the second-attach callback; for a
// core-initiated outbound link it instead schedules the driver's
// first-attach push.
func (c *Core) handleLinkFirstAttach(a Action) {
	if a.Link == nil {
		return
	}
	l := a.Link
	l.State = LinkAttaching
	l.Conn.Lock()
	l.Conn.AddLink(l)
	l.Conn.Unlock()
	c.registerLink(l)

	if l.Dir == DirectionIn {
		c.callbacks.LinkSecondAttach(l)
	} else {
		c.callbacks.LinkFirstAttach(l)
	}
	l.State = LinkAttached
}

// handleLinkSecondAttach finalizes an attach the core itself
// initiated outbound, advancing the link to ATTACHED.
func (c *Core) handleLinkSecondAttach(a Action) {
	if a.Link == nil {
		return
	}
	a.Link.State = LinkAttached
}

// handleLinkDetach implements the two-sided detach protocol: first
// detach closes the local side and waits for the remote echo;
// non-first (or a LOST cascade) performs final teardown.
func (c *Core) handleLinkDetach(a Action) {
	if a.Link == nil {
		return
	}
	var cause error
	if a.Addr != "" {
		cause = &ProtocolError{Reason: a.Addr}
	}
	c.detachLink(a.Link, a.First, cause)
}

func (c *Core) detachLink(l *Link, first bool, cause error) {
	l.Conn.Lock()
	l.detachCount++
	count := l.detachCount
	l.Conn.Unlock()

	if first && count < 2 {
		l.State = LinkDetaching
		c.callbacks.LinkDetach(l, true, cause)
		return
	}

	l.State = LinkDetached
	if l.Addr != nil {
		l.Addr.RemoveLocalLink(l)
		l.Addr.RemoveLinkRouted(l)
		if l.Addr.Eligible() {
			c.Addresses.Remove(l.Addr.Hash)
		}
	}
	l.Conn.Lock()
	l.Conn.RemoveLink(l)
	l.Conn.Unlock()
	c.unregisterLink(l)
	c.callbacks.LinkDetach(l, false, cause)
}

// handleLinkFlow updates the link's credit/drain state and, if the
// link now has both credit and undelivered work, asks the I/O bridge
// to push.
func (c *Core) handleLinkFlow(a Action) {
	if a.Link == nil {
		return
	}
	l := a.Link
	l.SetCredit(a.Credit)
	l.SetDrain(a.Drain)

	l.Conn.Lock()
	hasWork := l.UndeliveredLen() > 0
	if a.Credit > 0 {
		l.Conn.MarkHasCredit(l)
	} else {
		l.Conn.ClearHasCredit(l)
	}
	l.Conn.Unlock()

	if hasWork && a.Credit > 0 {
		c.callbacks.LinkPush(l)
	}
	if a.Drain {
		c.callbacks.LinkDrain(l)
	}
}

// handleLinkDeliver processes an inbound message already bound to a
// resolved address (link-routed inbound case): apply the annotation
// pipeline, then forward per the address's semantics.
func (c *Core) handleLinkDeliver(a Action) {
	msg, ok := a.Msg.(*message.Message)
	if !ok || msg == nil || a.Link == nil {
		return
	}
	c.deliverToAddress(a.Link, msg, a.Link.Addr, a.Dlv)
}

// handleLinkDeliverTo resolves `to` against the address table (or
// creates an entry for it) and forwards the inbound delivery.
func (c *Core) handleLinkDeliverTo(a Action) {
	msg, ok := a.Msg.(*message.Message)
	if !ok || msg == nil {
		return
	}
	addr := c.resolveAddress(a.Addr)
	c.deliverToAddress(a.Link, msg, addr, a.Dlv)
}

// handleLinkDeliverToRoutedLink bypasses address resolution entirely
// and forwards straight to the named link-routed destination, the
// path taken once an attach has already been LINK_BALANCED-routed.
func (c *Core) handleLinkDeliverToRoutedLink(a Action) {
	msg, ok := a.Msg.(*message.Message)
	if !ok || msg == nil || a.Link == nil || a.Dlv == nil {
		return
	}
	_ = msg
	deliverLocal(a.Link, a.Dlv, true)
	c.Stats.IncDeliveriesEgress()
}

// resolveAddress looks up or lazily creates the address table entry
// for hash with the configuration-default semantics. A production
// deployment seeds explicit semantics from configured address
// patterns before any traffic arrives; lazily created entries default
// to multicast-once, matching the safest (loop-free) fanout.
func (c *Core) resolveAddress(hash string) *Address {
	return c.Addresses.GetOrCreate(hash, SemanticsMulticastOnce, c.MaskSize)
}

func (c *Core) deliverToAddress(inbound *Link, msg *message.Message, addr *Address, dlv *Delivery) {
	if addr == nil {
		if dlv != nil {
			dlv.Settle(DispositionReleased)
		}
		c.log.Debug("unroutable delivery", zap.String("reason", "nil address"))
		return
	}

	_, ingress, stamped, linkExclusion := msg.ApplyAnnotationPipeline(c.RouterID, c.neighborLinkBit)
	if dlv != nil {
		if !stamped {
			dlv.Origin = ingress
			dlv.HasOrigin = true
		}
	}

	excl := newLinkExclusion(inbound, linkExclusion)

	fwd, ok := c.forwarders[addr.Semantics]
	if !ok {
		if dlv != nil {
			dlv.Settle(DispositionReleased)
		}
		return
	}
	delivered := fwd.Forward(c, addr, dlv, excl)
	if !delivered && dlv != nil {
		dlv.Settle(DispositionReleased)
	}
}

// neighborLinkBit resolves a router ID appearing in a message trace to
// its direct-neighbor mask bit, used by the annotation pipeline to
// compute loop-suppressing link exclusions.
func (c *Core) neighborLinkBit(routerID string) (int, bool) {
	n, ok := c.Routes.NodeByID(routerID)
	if !ok || !n.IsNeighbor() {
		return -1, false
	}
	return n.MaskBit, true
}

// handleDeliveryUpdateDisposition mirrors a disposition update to the
// delivery's peer and, once both sides are settled, unlinks and
// releases it from its link's unsettled table.
func (c *Core) handleDeliveryUpdateDisposition(a Action) {
	if a.Dlv == nil {
		return
	}
	d := a.Dlv
	d.SetDisposition(a.Disposition)
	if a.Settled {
		d.Settle(a.Disposition)
	}

	peer := d.Peer
	if peer != nil {
		peer.SetDisposition(a.Disposition)
		if a.Settled {
			peer.Settle(a.Disposition)
			c.callbacks.DeliveryUpdate(peer)
		}
	}

	if d.IsSettled() && (peer == nil || peer.IsSettled()) {
		d.Link.Conn.Lock()
		d.Link.RemoveUnsettled(d.ID())
		d.Unlink()
		if peer != nil {
			peer.Unlink()
		}
		d.Link.Conn.Unlock()
	}
}

// runQuery takes a management-agent entity snapshot on the core
// goroutine and delivers the reply through the general-work queue.
func (c *Core) runQuery(a Action) {
	if a.Query == nil || a.Query.Reply == nil {
		return
	}
	var v interface{}
	switch a.Query.Entity {
	case "router.address":
		v = c.snapshotAddresses()
	case "router.link":
		v = c.snapshotLinks()
	case "router.node":
		v = c.snapshotNodes()
	}
	reply := a.Query.Reply
	c.SubmitGeneralWork(func() { reply(v) })
}

func (c *Core) snapshotAddresses() []string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	out := make([]string, 0, c.Addresses.Len())
	for hash := range c.Addresses.byHash {
		out = append(out, hash)
	}
	return out
}

func (c *Core) snapshotLinks() []uint64 {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	out := make([]uint64, 0, len(c.links))
	for id := range c.links {
		out = append(out, id)
	}
	return out
}

func (c *Core) snapshotNodes() []int {
	out := make([]int, 0, len(c.Routes.nodes))
	for bit := range c.Routes.nodes {
		out = append(out, bit)
	}
	return out
}
