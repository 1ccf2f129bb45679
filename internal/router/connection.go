package router

import "sync"

// ConnectionRole classifies the peer at the other end of a connection.
type ConnectionRole int

const (
	RoleNormal ConnectionRole = iota
	RoleInterRouter
	RoleRouteContainer
)

// WorkItem is one unit of connection-scoped work the I/O side must
// perform (e.g. "this link has deliveries to push", "this link's
// credit changed"). The core never executes WorkItems itself — it only
// enqueues them and activates the connection; the I/O bridge drains
// them on the connection's own goroutine/thread.
type WorkItem struct {
	Kind WorkKind
	Link *Link
}

// WorkKind enumerates the connection work-list item kinds.
type WorkKind int

const (
	WorkFirstAttach WorkKind = iota
	WorkSecondAttach
	WorkDetach
	WorkPush
	WorkFlow
	WorkDeliveryUpdate
)

// Connection is one AMQP transport-level connection. Its work list,
// undelivered/unsettled cursors and link-ref lists are guarded by mu;
// an activated flag set under the same lock records whether work has
// been pushed since the last DrainWork. Keeping the draining to one
// I/O goroutine at a time is left to DrainWork's caller.
type Connection struct {
	id uint64

	Role        ConnectionRole
	Inbound     bool
	Cost        int
	Vhost       string
	ContainerID string
	User        string
	HostIP      string

	StripAnnotations bool
	LinkCapacity     int

	Policy interface{} // *policy.Settings; kept as interface{} to avoid an import cycle with the policy package

	mu         sync.Mutex
	workList   []WorkItem
	links      map[uint64]*Link
	linksWithDeliveries map[uint64]*Link
	linksWithCredit     map[uint64]*Link
	activated  bool

	// activateFn is invoked (outside mu) whenever new work is posted;
	// its awaken argument is true only when the connection was not
	// already activated.
	activateFn func(conn *Connection, awaken bool)

	closed bool
}

// NewConnection creates a Connection. activateFn may be nil in tests
// that do not need activation side effects.
func NewConnection(id uint64, role ConnectionRole, inbound bool, activateFn func(*Connection, bool)) *Connection {
	return &Connection{
		id:                  id,
		Role:                role,
		Inbound:             inbound,
		links:               make(map[uint64]*Link),
		linksWithDeliveries: make(map[uint64]*Link),
		linksWithCredit:     make(map[uint64]*Link),
		activateFn:          activateFn,
	}
}

// ID returns the connection's allocator-assigned identity.
func (c *Connection) ID() uint64 { return c.id }

// Lock acquires the connection's work lock. Exported so Link's
// queue-mutating methods (documented as "caller holds Conn's lock")
// can be driven directly by core.go and protocol.go without every call
// site re-deriving the lock from the link.
func (c *Connection) Lock() { c.mu.Lock() }

// Unlock releases the connection's work lock.
func (c *Connection) Unlock() { c.mu.Unlock() }

// AddLink registers link under this connection (caller holds the
// lock).
func (c *Connection) AddLink(l *Link) {
	c.links[l.ID()] = l
	l.SetRef(RefConnection)
}

// RemoveLink removes link from this connection's ref lists (caller
// holds the lock).
func (c *Connection) RemoveLink(l *Link) {
	delete(c.links, l.ID())
	delete(c.linksWithDeliveries, l.ID())
	delete(c.linksWithCredit, l.ID())
	l.ClearRef(RefConnection | RefDelivery | RefFlow)
}

// MarkHasDeliveries ensures link is on the links_with_deliveries ref
// list (caller holds the lock).
func (c *Connection) MarkHasDeliveries(l *Link) {
	if !l.HasRef(RefDelivery) {
		l.SetRef(RefDelivery)
		c.linksWithDeliveries[l.ID()] = l
	}
}

// ClearHasDeliveries removes link from links_with_deliveries (caller
// holds the lock), typically once its undelivered queue drains empty.
func (c *Connection) ClearHasDeliveries(l *Link) {
	l.ClearRef(RefDelivery)
	delete(c.linksWithDeliveries, l.ID())
}

// MarkHasCredit ensures link is on the links_with_credit ref list
// (caller holds the lock).
func (c *Connection) MarkHasCredit(l *Link) {
	if !l.HasRef(RefFlow) {
		l.SetRef(RefFlow)
		c.linksWithCredit[l.ID()] = l
	}
}

// ClearHasCredit removes link from links_with_credit (caller holds the
// lock).
func (c *Connection) ClearHasCredit(l *Link) {
	l.ClearRef(RefFlow)
	delete(c.linksWithCredit, l.ID())
}

// PushWork appends item to the work list and activates the connection
// if it was not already activated. Safe to call from any goroutine;
// this is the one entry point external threads use to hand work to a
// connection, pushing onto the work queue under its own mutex.
func (c *Connection) PushWork(item WorkItem) {
	c.mu.Lock()
	c.workList = append(c.workList, item)
	awaken := !c.activated
	c.activated = true
	fn := c.activateFn
	c.mu.Unlock()

	if fn != nil {
		fn(c, awaken)
	}
}

// DrainWork removes and returns all pending work items and clears the
// activation flag, ready for the next PushWork to re-activate.
// Intended to be called by exactly one I/O goroutine per connection at
// a time; the caller is responsible for that serialization (processed
// by at most one I/O goroutine at a time), which this package cannot
// itself enforce without knowledge of the driver's goroutine pool.
func (c *Connection) DrainWork() []WorkItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.workList
	c.workList = nil
	c.activated = false
	return items
}

// Links returns a snapshot slice of the connection's current links
// (caller holds the lock, or accepts a racy snapshot for diagnostics).
func (c *Connection) Links() []*Link {
	out := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	return out
}

// Closed reports whether the connection has been marked closed.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// MarkClosed marks the connection closed; pending actions that carry
// this connection must check Closed() before touching its state.
func (c *Connection) MarkClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
