package router

import (
	"sync"
	"sync/atomic"

	"github.com/flowmesh/routercore/internal/message"
)

// Disposition is the AMQP delivery-state outcome code.
type Disposition uint64

// AMQP-defined terminal disposition codes.
const (
	DispositionUnknown  Disposition = 0x00
	DispositionAccepted Disposition = 0x24
	DispositionRejected Disposition = 0x25
	DispositionReleased Disposition = 0x26
	DispositionModified Disposition = 0x27
)

// Delivery identifies one message traversal over one link. Disposition/
// peer mutation happens only on the core goroutine; `settled` is
// additionally exposed as an atomic so I/O goroutines can safely read
// it (e.g. Sender.send's style of polling link liveness without taking
// the core lock) without racing the writer.
type Delivery struct {
	id uint64

	Link *Link

	// Peer is the other side of a two-sided delivery pairing: the
	// inbound delivery that produced this outbound one, or vice versa.
	// Mutated only on the core goroutine. A multicast fanout's peer
	// back-pointer holds only the most recently created outbound
	// delivery, not every fanned-out copy.
	Peer *Delivery

	Msg *message.Message

	// Tag is the monotonically-assigned delivery tag.
	Tag uint64

	disposition int64 // Disposition, atomic
	settled     int32 // atomic bool

	// Origin is a snapshot of the ingress annotation at delivery
	// creation time, used by multicast-once to determine the origin
	// router's mask bit.
	Origin    string
	HasOrigin bool

	mu sync.Mutex
}

// NewDelivery creates a delivery for msg on link. settled determines
// the initial settlement: true when the delivery has no peer yet, or
// its peer is already settled, at creation time.
func NewDelivery(id uint64, link *Link, msg *message.Message, tag uint64, settled bool) *Delivery {
	d := &Delivery{
		id:   id,
		Link: link,
		Msg:  msg,
		Tag:  tag,
	}
	if settled {
		atomic.StoreInt32(&d.settled, 1)
	}
	return d
}

// ID returns the delivery's allocator-assigned identity.
func (d *Delivery) ID() uint64 { return d.id }

// IsSettled reports whether the delivery has reached a terminal,
// settled state. Safe to call from any goroutine.
func (d *Delivery) IsSettled() bool {
	return atomic.LoadInt32(&d.settled) != 0
}

// Disposition returns the current disposition code. Safe to call from
// any goroutine.
func (d *Delivery) Disposition() Disposition {
	return Disposition(atomic.LoadInt64(&d.disposition))
}

// SetDisposition updates the disposition code. Must only be called
// from the core goroutine (or before the delivery is published to any
// other goroutine).
func (d *Delivery) SetDisposition(disp Disposition) {
	atomic.StoreInt64(&d.disposition, int64(disp))
}

// Settle marks the delivery settled with the given disposition. Core
// goroutine only.
func (d *Delivery) Settle(disp Disposition) {
	d.SetDisposition(disp)
	atomic.StoreInt32(&d.settled, 1)
}

// LinkPeer establishes the bidirectional peer linkage between d and
// other. Multicast fanout calls this once per outbound copy with the
// same inbound d, so d.Peer is always overwritten to track only the
// most recently created outbound copy; the copy it displaces has its
// own back-pointer to d cleared rather than left dangling. Core
// goroutine only.
func (d *Delivery) LinkPeer(other *Delivery) {
	d.mu.Lock()
	prev := d.Peer
	d.Peer = other
	d.mu.Unlock()

	if prev != nil && prev != other {
		prev.mu.Lock()
		if prev.Peer == d {
			prev.Peer = nil
		}
		prev.mu.Unlock()
	}

	other.mu.Lock()
	other.Peer = d
	other.mu.Unlock()
}

// Unlink clears d's peer pointer, e.g. when a delivery is released
// after both sides have reached a terminal disposition. Core goroutine
// only. It never touches the peer's own pointer: if the peer is still
// live it must observe Peer==nil as "broken", never a dangling
// pointer to a freed delivery.
func (d *Delivery) Unlink() {
	d.mu.Lock()
	d.Peer = nil
	d.mu.Unlock()
}
