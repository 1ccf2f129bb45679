package router

// Action is one unit of work submitted to the core goroutine by any
// I/O goroutine, or by the core itself (e.g. a deferred follow-up).
// Handlers run exclusively on the core goroutine and must not block.
type Action struct {
	Kind ActionKind

	Conn *Connection
	Link *Link
	Dlv  *Delivery

	Addr string // resolved "to" address, for link_deliver_to

	Msg interface{} // *message.Message, kept untyped here to avoid a forward reference on every action kind

	Disposition Disposition
	Settled     bool
	GiveRef     bool

	Credit uint32
	Drain  bool

	First bool // for link_detach: first=true local close, first=false final teardown

	// Query carries a management-agent request; handled by Core.runQuery.
	Query *AgentQuery
}

// ActionKind enumerates the driver→core action vocabulary.
type ActionKind int

const (
	ActionConnectionOpened ActionKind = iota
	ActionConnectionClosed
	ActionLinkFirstAttach
	ActionLinkSecondAttach
	ActionLinkDetach
	ActionLinkFlow
	ActionLinkDeliver
	ActionLinkDeliverTo
	ActionLinkDeliverToRoutedLink
	ActionDeliveryUpdateDisposition
	ActionAgentQuery
)

// AgentQuery is a management-agent entity request, answered
// synchronously on the core goroutine and returned via general work.
type AgentQuery struct {
	Entity   string // "router.node", "router.address", "router.link"
	Reply    func(interface{})
}
