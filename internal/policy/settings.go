// Package policy implements the connection-admission and link-attach
// gate: per-vhost group settings, pattern-based source and target
// approval, and the denial counters the management agent reports.
package policy

import (
	"github.com/flowmesh/routercore/internal/pattern"
)

// Settings is one compiled policy group, resolved by vhost + group
// name from the rule engine.
type Settings struct {
	GroupName string
	Vhost     string

	MaxFrameSize int
	MaxSessions  int
	MaxSenders   int
	MaxReceivers int

	AllowAnonymousSender bool
	AllowDynamicSource   bool
	AllowUserIDProxy     bool

	Sources     string // CSV form
	Targets     string // CSV form
	SourceTree  *pattern.Tree
	TargetTree  *pattern.Tree
}

// ChannelMax returns the AMQP channel-max value derived from
// MaxSessions, per the transport-level policy application at Open:
// channel-max = maxSessions - 1.
func (s *Settings) ChannelMax() int {
	if s.MaxSessions <= 0 {
		return 0
	}
	return s.MaxSessions - 1
}

// ApproveSource reports whether a receiver attaching with the given
// source address is approved, preferring the compiled tree when
// present and falling back to the CSV list.
func (s *Settings) ApproveSource(user, source string) bool {
	if s.SourceTree != nil {
		return s.SourceTree.Match(user, source)
	}
	return pattern.MatchCSV(user, s.Sources, source)
}

// ApproveTarget reports whether a sender attaching with the given
// target address is approved.
func (s *Settings) ApproveTarget(user, target string) bool {
	if s.TargetTree != nil {
		return s.TargetTree.Match(user, target)
	}
	return pattern.MatchCSV(user, s.Targets, target)
}
