package router

// Forwarder implements one address-semantics' delivery-fanout
// strategy. A Core holds one Forwarder per Semantics value and
// dispatches every inbound delivery to Forward based on the address
// record's bound semantics.
type Forwarder interface {
	// Forward delivers msg, already wrapped in an inbound Delivery, to
	// every local and remote destination addr's semantics dictate.
	// exclude carries the link-level loop-suppression set computed by
	// the annotation pipeline (never re-deliver back out the link or
	// router the message just arrived from). It returns true if at
	// least one destination accepted the delivery.
	Forward(c *Core, addr *Address, dlv *Delivery, exclude *LinkExclusion) bool
}

// LinkExclusion names the inbound link (if any) and the set of
// neighbor router mask bits a forwarder must not re-deliver back out
// to, mirroring message.ApplyAnnotationPipeline's link-exclusion
// output (loop suppression for multicast-once).
type LinkExclusion struct {
	Link *Link
	Bits map[int]bool
}

func newLinkExclusion(link *Link, bits []int) *LinkExclusion {
	e := &LinkExclusion{Link: link}
	if len(bits) > 0 {
		e.Bits = make(map[int]bool, len(bits))
		for _, b := range bits {
			e.Bits[b] = true
		}
	}
	return e
}

func (e *LinkExclusion) excludesLink(l *Link) bool {
	return e != nil && e.Link != nil && e.Link == l
}

func (e *LinkExclusion) excludesRouter(bit int) bool {
	return e != nil && e.Bits[bit]
}

// forwarders maps each Semantics value to the Forwarder implementing
// it. Built once at Core construction.
func defaultForwarders() map[Semantics]Forwarder {
	return map[Semantics]Forwarder{
		SemanticsMulticastFlood:  multicastFloodForwarder{},
		SemanticsMulticastOnce:   multicastOnceForwarder{},
		SemanticsAnycastClosest:  anycastClosestForwarder{},
		SemanticsAnycastBalanced: anycastBalancedForwarder{},
		SemanticsLinkBalanced:    linkBalancedForwarder{},
	}
}

// deliverLocal pushes dlv onto link's undelivered queue and activates
// its connection's work, linking the peer so settlement can propagate
// back. Shared by every forwarder's local-link fanout step.
func deliverLocal(link *Link, dlv *Delivery, settleImmediately bool) *Delivery {
	out := NewDelivery(dlv.ID(), link, dlv.Msg, dlv.Tag, settleImmediately)
	dlv.LinkPeer(out)

	conn := link.Conn
	conn.Lock()
	link.AppendUndelivered(out)
	link.AddUnsettled(out)
	conn.MarkHasDeliveries(link)
	conn.Unlock()

	conn.PushWork(WorkItem{Kind: WorkPush, Link: link})
	return out
}
