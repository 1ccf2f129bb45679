// Package agent implements the management agent's read-only entity
// query surface: router.node, router.address, router.link plus the
// policy statistics counters. Queries run as core actions and their
// results are returned via the core's general-work queue, so no
// caller ever touches router-core state off the core goroutine.
package agent

import (
	"github.com/flowmesh/routercore/internal/policy"
	"github.com/flowmesh/routercore/internal/router"
)

// Agent answers management queries against a running Core and policy
// Gate.
type Agent struct {
	core *router.Core
	gate *policy.Gate
}

// New constructs an Agent.
func New(core *router.Core, gate *policy.Gate) *Agent {
	return &Agent{core: core, gate: gate}
}

// EntityResult is the paginated-in-spirit (here, whole-result) answer
// to one entity query.
type EntityResult struct {
	Entity string
	Items  []interface{}
}

// Query submits an entity query to the core and blocks until the
// core's general-work queue has delivered a reply. Entity is one of
// "router.node", "router.address", "router.link".
func (a *Agent) Query(entity string) EntityResult {
	reply := make(chan interface{}, 1)
	a.core.Submit(router.Action{
		Kind: router.ActionAgentQuery,
		Query: &router.AgentQuery{
			Entity: entity,
			Reply: func(v interface{}) {
				reply <- v
			},
		},
	})

	var items []interface{}
	switch v := (<-reply).(type) {
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []uint64:
		for _, id := range v {
			items = append(items, id)
		}
	case []int:
		for _, bit := range v {
			items = append(items, bit)
		}
	}
	return EntityResult{Entity: entity, Items: items}
}

// Statistics is the policy/connection counter snapshot the management
// agent exposes alongside the entity queries.
type Statistics struct {
	router.Snapshot
	GroupDenials map[string]policy.DenialSnapshot
}

// Stats returns the current global connection/delivery counters plus
// per-group denial counters for every group named in groups.
func (a *Agent) Stats(groups []string) Statistics {
	s := Statistics{
		Snapshot:     a.core.Stats.Snapshot(),
		GroupDenials: make(map[string]policy.DenialSnapshot, len(groups)),
	}
	for _, g := range groups {
		s.GroupDenials[g] = a.gate.GroupDenials(g)
	}
	return s
}
