package router

// Callbacks is the set of non-blocking handlers the core invokes, from
// the core goroutine only, to schedule real work on the I/O side. It
// is defined here — in the package that calls it — rather than in the
// bridge package that implements it, so router never imports its own
// driver and no import cycle can form.
type Callbacks interface {
	// ConnectionActivate signals that conn has new work; awaken is true
	// the first time this fires since the connection's work list was
	// last drained (the I/O side should wake a suspended poller only in
	// that case).
	ConnectionActivate(conn *Connection, awaken bool)

	LinkFirstAttach(link *Link)
	LinkSecondAttach(link *Link)
	LinkDetach(link *Link, first bool, cause error)
	LinkFlow(link *Link, credit uint32, drain bool)
	LinkOffer(link *Link, count int)
	LinkDrained(link *Link)
	LinkDrain(link *Link)
	LinkPush(link *Link)
	LinkDeliver(link *Link, dlv *Delivery)
	DeliveryUpdate(dlv *Delivery)
}
