package router

import "sync/atomic"

// Stats holds the router's lock-free global counters. Every field is
// mutated exclusively with atomic fetch-add/fetch-sub, matching the
// concurrency model's "acquire-release ordering for counter reads that
// gate policy decisions".
type Stats struct {
	connectionsProcessed uint32
	connectionsDenied    uint32
	connectionsCurrent   int32

	sessionDenied  uint32
	senderDenied   uint32
	receiverDenied uint32

	deliveriesEgress      uint64
	deliveriesTransit     uint64
	deliveriesToContainer uint64
}

func (s *Stats) IncConnectionsProcessed() { atomic.AddUint32(&s.connectionsProcessed, 1) }
func (s *Stats) IncConnectionsDenied()    { atomic.AddUint32(&s.connectionsDenied, 1) }
func (s *Stats) IncConnectionsCurrent()   { atomic.AddInt32(&s.connectionsCurrent, 1) }
func (s *Stats) DecConnectionsCurrent()   { atomic.AddInt32(&s.connectionsCurrent, -1) }

func (s *Stats) IncSessionDenied()  { atomic.AddUint32(&s.sessionDenied, 1) }
func (s *Stats) IncSenderDenied()   { atomic.AddUint32(&s.senderDenied, 1) }
func (s *Stats) IncReceiverDenied() { atomic.AddUint32(&s.receiverDenied, 1) }

func (s *Stats) IncDeliveriesEgress()      { atomic.AddUint64(&s.deliveriesEgress, 1) }
func (s *Stats) IncDeliveriesTransit()     { atomic.AddUint64(&s.deliveriesTransit, 1) }
func (s *Stats) IncDeliveriesToContainer() { atomic.AddUint64(&s.deliveriesToContainer, 1) }

// Snapshot is a point-in-time copy of every counter, for the
// management agent and for prometheus collection.
type Snapshot struct {
	ConnectionsProcessed uint32
	ConnectionsDenied    uint32
	ConnectionsCurrent   int32

	SessionDenied  uint32
	SenderDenied   uint32
	ReceiverDenied uint32

	DeliveriesEgress      uint64
	DeliveriesTransit     uint64
	DeliveriesToContainer uint64
}

// Snapshot reads every counter without synchronizing with each other;
// an exact instant-in-time consistency is not required for statistics.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsProcessed:  atomic.LoadUint32(&s.connectionsProcessed),
		ConnectionsDenied:     atomic.LoadUint32(&s.connectionsDenied),
		ConnectionsCurrent:    atomic.LoadInt32(&s.connectionsCurrent),
		SessionDenied:         atomic.LoadUint32(&s.sessionDenied),
		SenderDenied:          atomic.LoadUint32(&s.senderDenied),
		ReceiverDenied:        atomic.LoadUint32(&s.receiverDenied),
		DeliveriesEgress:      atomic.LoadUint64(&s.deliveriesEgress),
		DeliveriesTransit:     atomic.LoadUint64(&s.deliveriesTransit),
		DeliveriesToContainer: atomic.LoadUint64(&s.deliveriesToContainer),
	}
}
