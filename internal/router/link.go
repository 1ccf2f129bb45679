package router

import "sync/atomic"

// LinkDirection is the local role of a link endpoint.
type LinkDirection int

const (
	DirectionIn LinkDirection = iota
	DirectionOut
)

// LinkType classifies what kind of traffic a link carries.
type LinkType int

const (
	LinkNormal LinkType = iota
	LinkControl
	LinkInterRouterData
	LinkRouterControl
)

// LinkState is the attach/detach lifecycle.
type LinkState int

const (
	LinkInit LinkState = iota
	LinkAttaching
	LinkAttached
	LinkDetaching
	LinkDetached
)

// Link reference-list membership bits: the four global lists a link
// may simultaneously belong to.
type LinkRefBits uint32

const (
	RefAddress LinkRefBits = 1 << iota
	RefDelivery
	RefFlow
	RefConnection
)

// Link is one attached AMQP link. The undelivered/unsettled queues and
// the four ref-list memberships are mutated only while holding the
// owning Connection's work lock (see Connection.Lock/Unlock).
type Link struct {
	id     uint64
	Conn   *Connection
	Name   string
	Dir    LinkDirection
	Type   LinkType
	State  LinkState

	Capacity int

	deliveryCount uint32 // atomic: sender's sequence number
	linkCredit    uint32 // atomic: receiver-granted credit
	drain         int32  // atomic bool
	q2Blocked     int32  // atomic bool: Q2 backpressure currently withholding credit

	// Addr is the address this link is bound to as a local consumer or
	// producer, if any (nil for link-routed or not-yet-bound links).
	Addr *Address

	undelivered []*Delivery          // FIFO; guarded by Conn's work lock
	unsettled   map[uint64]*Delivery // guarded by Conn's work lock

	refBits LinkRefBits // guarded by Conn's work lock

	detachCount int // 0, 1 or 2; guarded by Conn's work lock

	totalDeliveries uint64 // atomic, for management-agent statistics
}

// NewLink creates a link owned by conn.
func NewLink(id uint64, conn *Connection, name string, dir LinkDirection, typ LinkType, capacity int) *Link {
	return &Link{
		id:        id,
		Conn:      conn,
		Name:      name,
		Dir:       dir,
		Type:      typ,
		State:     LinkInit,
		Capacity:  capacity,
		unsettled: make(map[uint64]*Delivery),
	}
}

// ID returns the link's allocator-assigned identity.
func (l *Link) ID() uint64 { return l.id }

// Credit returns the link's current credit, safe from any goroutine.
func (l *Link) Credit() uint32 { return atomic.LoadUint32(&l.linkCredit) }

// SetCredit sets the link's credit (core goroutine only; exposed as
// atomic because Credit() is read from the I/O push path).
func (l *Link) SetCredit(c uint32) { atomic.StoreUint32(&l.linkCredit, c) }

// Drain reports whether the peer has requested drain semantics.
func (l *Link) Drain() bool { return atomic.LoadInt32(&l.drain) != 0 }

// SetDrain sets the drain flag.
func (l *Link) SetDrain(v bool) {
	if v {
		atomic.StoreInt32(&l.drain, 1)
	} else {
		atomic.StoreInt32(&l.drain, 0)
	}
}

// IsQ2Blocked reports whether Q2 backpressure is currently withholding
// credit on this link.
func (l *Link) IsQ2Blocked() bool { return atomic.LoadInt32(&l.q2Blocked) != 0 }

// SetQ2Blocked sets the Q2 backpressure state.
func (l *Link) SetQ2Blocked(v bool) {
	if v {
		atomic.StoreInt32(&l.q2Blocked, 1)
	} else {
		atomic.StoreInt32(&l.q2Blocked, 0)
	}
}

// DeliveryCount returns the sender's delivery-count sequence number.
func (l *Link) DeliveryCount() uint32 { return atomic.LoadUint32(&l.deliveryCount) }

// IncDeliveryCount increments and returns the new delivery count.
func (l *Link) IncDeliveryCount() uint32 { return atomic.AddUint32(&l.deliveryCount, 1) }

// TotalDeliveries returns the running count of deliveries that have
// passed through this link, for the management agent.
func (l *Link) TotalDeliveries() uint64 { return atomic.LoadUint64(&l.totalDeliveries) }

// --- The following methods assume the caller holds Conn's work lock. ---

// AppendUndelivered appends dlv to the undelivered queue (caller holds
// Conn's lock).
func (l *Link) AppendUndelivered(dlv *Delivery) {
	l.undelivered = append(l.undelivered, dlv)
	atomic.AddUint64(&l.totalDeliveries, 1)
}

// PopUndelivered removes and returns the head of the undelivered
// queue, or (nil, false) if empty. Caller holds Conn's lock. Used by
// the I/O bridge's drain-on-push path; deliveries leave in the order
// they arrived.
func (l *Link) PopUndelivered() (*Delivery, bool) {
	if len(l.undelivered) == 0 {
		return nil, false
	}
	d := l.undelivered[0]
	l.undelivered = l.undelivered[1:]
	return d, true
}

// UndeliveredLen returns the current undelivered depth; used by
// ANYCAST_BALANCED's load comparison.
func (l *Link) UndeliveredLen() int {
	return len(l.undelivered)
}

// AddUnsettled registers dlv in the unsettled table.
func (l *Link) AddUnsettled(dlv *Delivery) {
	l.unsettled[dlv.ID()] = dlv
}

// RemoveUnsettled removes a delivery from the unsettled table once it
// reaches a terminal, settled state on both sides.
func (l *Link) RemoveUnsettled(id uint64) {
	delete(l.unsettled, id)
}

// HasRef reports whether the link currently appears on the named ref
// list.
func (l *Link) HasRef(bit LinkRefBits) bool {
	return l.refBits&bit != 0
}

// SetRef marks the link present on the named ref list.
func (l *Link) SetRef(bit LinkRefBits) {
	l.refBits |= bit
}

// ClearRef marks the link absent from the named ref list.
func (l *Link) ClearRef(bit LinkRefBits) {
	l.refBits &^= bit
}
