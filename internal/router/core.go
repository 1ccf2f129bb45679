package router

import (
	"sync"

	"go.uber.org/zap"
)

// Core is the router's single-goroutine engine: one core goroutine
// drains an action queue fed by any number of I/O goroutines, plus a
// non-blocking general-work queue for deferred follow-up (management
// agent replies). All mutation of the address table, route
// table and forwarder array happens exclusively on this goroutine.
type Core struct {
	RouterID string
	MaskSize int

	Addresses *AddressTable
	Routes    *RouteTable
	IDs       IDAllocator
	Stats     Stats

	forwarders map[Semantics]Forwarder
	callbacks  Callbacks
	log        *zap.Logger

	actionMu   sync.Mutex
	actionCond *sync.Cond
	actionList []Action
	running    bool

	generalMu   sync.Mutex
	generalWork []func()

	connMu      sync.Mutex
	connections map[uint64]*Connection
	links       map[uint64]*Link
}

// NewCore constructs a Core. callbacks must be non-nil; log may be
// nil, in which case a no-op logger is used.
func NewCore(routerID string, maskSize int, callbacks Callbacks, log *zap.Logger) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Core{
		RouterID:    routerID,
		MaskSize:    maskSize,
		callbacks:   callbacks,
		log:         log,
		connections: make(map[uint64]*Connection),
		links:       make(map[uint64]*Link),
	}
	c.Addresses = NewAddressTable()
	c.Routes = NewRouteTable(maskSize, c.Addresses)
	c.forwarders = defaultForwarders()
	c.actionCond = sync.NewCond(&c.actionMu)
	return c
}

// Submit enqueues an action for the core goroutine. Safe to call from
// any goroutine.
func (c *Core) Submit(a Action) {
	c.actionMu.Lock()
	c.actionList = append(c.actionList, a)
	c.actionCond.Signal()
	c.actionMu.Unlock()
}

// SubmitGeneralWork enqueues fn to run on the core goroutine between
// action batches. General work never blocks the core thread waiting
// for new work: an empty queue is simply skipped.
func (c *Core) SubmitGeneralWork(fn func()) {
	c.generalMu.Lock()
	c.generalWork = append(c.generalWork, fn)
	c.generalMu.Unlock()
}

// Run drives the core goroutine's loop until Stop is called. Callers
// run this in its own goroutine: `go core.Run()`.
func (c *Core) Run() {
	c.actionMu.Lock()
	c.running = true
	c.actionMu.Unlock()

	for {
		c.actionMu.Lock()
		for len(c.actionList) == 0 && c.running {
			c.actionCond.Wait()
		}
		if !c.running && len(c.actionList) == 0 {
			c.actionMu.Unlock()
			return
		}
		batch := c.actionList
		c.actionList = nil
		discard := !c.running
		c.actionMu.Unlock()

		for _, a := range batch {
			c.dispatchSafely(a, discard)
		}

		c.drainGeneralWork()
	}
}

// dispatchSafely recovers only long enough to log a fatal-level entry
// naming the offending action; zap's Fatal then exits the process. A
// panic in a handler means an invariant the rest of the core goroutine
// depends on no longer holds, and per policy that is fatal to the
// process rather than something to continue past.
func (c *Core) dispatchSafely(a Action, discard bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Fatal("action handler panic", zap.Any("recover", r), zap.Int("kind", int(a.Kind)))
		}
	}()
	if discard {
		c.discard(a)
		return
	}
	c.dispatch(a)
}

// discard frees only resources an action owns, per the graceful
// shutdown contract: no forwarding or policy work runs once the core
// is stopping.
func (c *Core) discard(a Action) {
	if a.Query != nil && a.Query.Reply != nil {
		a.Query.Reply(nil)
	}
}

// Stop requests the core goroutine to exit after draining (and
// discarding) any actions already queued.
func (c *Core) Stop() {
	c.actionMu.Lock()
	c.running = false
	c.actionCond.Signal()
	c.actionMu.Unlock()
}

func (c *Core) drainGeneralWork() {
	for {
		c.generalMu.Lock()
		if len(c.generalWork) == 0 {
			c.generalMu.Unlock()
			return
		}
		fn := c.generalWork[0]
		c.generalWork = c.generalWork[1:]
		c.generalMu.Unlock()
		fn()
	}
}

func (c *Core) dispatch(a Action) {
	switch a.Kind {
	case ActionConnectionOpened:
		c.handleConnectionOpened(a)
	case ActionConnectionClosed:
		c.handleConnectionClosed(a)
	case ActionLinkFirstAttach:
		c.handleLinkFirstAttach(a)
	case ActionLinkSecondAttach:
		c.handleLinkSecondAttach(a)
	case ActionLinkDetach:
		c.handleLinkDetach(a)
	case ActionLinkFlow:
		c.handleLinkFlow(a)
	case ActionLinkDeliver:
		c.handleLinkDeliver(a)
	case ActionLinkDeliverTo:
		c.handleLinkDeliverTo(a)
	case ActionLinkDeliverToRoutedLink:
		c.handleLinkDeliverToRoutedLink(a)
	case ActionDeliveryUpdateDisposition:
		c.handleDeliveryUpdateDisposition(a)
	case ActionAgentQuery:
		c.runQuery(a)
	}
}

// registerConnection and registerLink/unregisterLink back the
// management agent's router.link / connection enumeration and must
// only be called from the core goroutine.
func (c *Core) registerConnection(conn *Connection) {
	c.connMu.Lock()
	c.connections[conn.ID()] = conn
	c.connMu.Unlock()
}

func (c *Core) unregisterConnection(conn *Connection) {
	c.connMu.Lock()
	delete(c.connections, conn.ID())
	c.connMu.Unlock()
}

func (c *Core) registerLink(l *Link) {
	c.connMu.Lock()
	c.links[l.ID()] = l
	c.connMu.Unlock()
}

func (c *Core) unregisterLink(l *Link) {
	c.connMu.Lock()
	delete(c.links, l.ID())
	c.connMu.Unlock()
}
