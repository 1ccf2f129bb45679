// Package metrics defines the Prometheus collectors exposing the
// router's policy and forwarding counters, and the HTTP exposition
// surface used by cmd/routercore.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowmesh/routercore/internal/router"
)

// Registry bundles every gauge/counter this module exports plus the
// core whose Stats they read.
type Registry struct {
	core *router.Core

	connectionsProcessed prometheus.GaugeFunc
	connectionsDenied    prometheus.GaugeFunc
	connectionsCurrent   prometheus.GaugeFunc
	sessionDenied        prometheus.GaugeFunc
	senderDenied         prometheus.GaugeFunc
	receiverDenied       prometheus.GaugeFunc
	deliveriesEgress     prometheus.GaugeFunc
	deliveriesTransit    prometheus.GaugeFunc
	deliveriesToInproc   prometheus.GaugeFunc
}

// NewRegistry builds collectors backed by core's statistics and
// registers them with reg.
func NewRegistry(reg prometheus.Registerer, core *router.Core) *Registry {
	snap := func() router.Snapshot { return core.Stats.Snapshot() }

	r := &Registry{core: core}

	r.connectionsProcessed = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_connections_processed_total", Help: "Total connections accepted by the socket-accept gate."},
		func() float64 { return float64(snap().ConnectionsProcessed) },
	)
	r.connectionsDenied = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_connections_denied_total", Help: "Total connections rejected by any policy gate."},
		func() float64 { return float64(snap().ConnectionsDenied) },
	)
	r.connectionsCurrent = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_connections_current", Help: "Currently open connections."},
		func() float64 { return float64(snap().ConnectionsCurrent) },
	)
	r.sessionDenied = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_session_denied_total", Help: "Sessions denied by the session-begin gate."},
		func() float64 { return float64(snap().SessionDenied) },
	)
	r.senderDenied = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_sender_denied_total", Help: "Sender links denied by the link-attach gate."},
		func() float64 { return float64(snap().SenderDenied) },
	)
	r.receiverDenied = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_receiver_denied_total", Help: "Receiver links denied by the link-attach gate."},
		func() float64 { return float64(snap().ReceiverDenied) },
	)
	r.deliveriesEgress = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_deliveries_egress_total", Help: "Deliveries forwarded to a local consumer link."},
		func() float64 { return float64(snap().DeliveriesEgress) },
	)
	r.deliveriesTransit = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_deliveries_transit_total", Help: "Deliveries forwarded to a peer router."},
		func() float64 { return float64(snap().DeliveriesTransit) },
	)
	r.deliveriesToInproc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "routercore_deliveries_to_container_total", Help: "Deliveries forwarded to an in-process subscriber."},
		func() float64 { return float64(snap().DeliveriesToContainer) },
	)

	reg.MustRegister(
		r.connectionsProcessed, r.connectionsDenied, r.connectionsCurrent,
		r.sessionDenied, r.senderDenied, r.receiverDenied,
		r.deliveriesEgress, r.deliveriesTransit, r.deliveriesToInproc,
	)
	return r
}
