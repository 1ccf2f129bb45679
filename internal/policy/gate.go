package policy

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DenialCounts are the per-policy-group counters the management agent
// reports alongside the global connection counters in router.Stats.
type DenialCounts struct {
	sessionDenied  uint32
	senderDenied   uint32
	receiverDenied uint32
}

func (d *DenialCounts) IncSession()  { atomic.AddUint32(&d.sessionDenied, 1) }
func (d *DenialCounts) IncSender()   { atomic.AddUint32(&d.senderDenied, 1) }
func (d *DenialCounts) IncReceiver() { atomic.AddUint32(&d.receiverDenied, 1) }

// DenialSnapshot is a point-in-time read of DenialCounts.
type DenialSnapshot struct {
	SessionDenied  uint32
	SenderDenied   uint32
	ReceiverDenied uint32
}

func (d *DenialCounts) Snapshot() DenialSnapshot {
	return DenialSnapshot{
		SessionDenied:  atomic.LoadUint32(&d.sessionDenied),
		SenderDenied:   atomic.LoadUint32(&d.senderDenied),
		ReceiverDenied: atomic.LoadUint32(&d.receiverDenied),
	}
}

// DenyReason is the AMQP condition/description pair a caller should
// put on the wire after a gate denial.
type DenyReason struct {
	Condition   string
	Description string
}

// Each admission point puts its own wire description on a denial: the
// condition names the reason, the description names what was denied.
var (
	reasonOpenDenied        = DenyReason{Condition: "resource-limit-exceeded", Description: "connection disallowed by local policy"}
	reasonSessionDenied     = DenyReason{Condition: "resource-limit-exceeded", Description: "session disallowed by local policy"}
	reasonLinkResourceLimit = DenyReason{Condition: "resource-limit-exceeded", Description: "link disallowed by local policy"}
	reasonLinkUnauthorized  = DenyReason{Condition: "unauthorized-access", Description: "link disallowed by local policy"}
)

// Gate implements the three admission points (socket accept, connection
// open, link attach), backed by an Engine and a set of per-group
// DenialCounts.
type Gate struct {
	engine Engine
	log    *zap.Logger

	maxConnections int32
	connCount      int32

	groupsMu sync.Mutex
	groups   map[string]*DenialCounts
}

// NewGate constructs a Gate. log may be nil.
func NewGate(engine Engine, maxConnections int, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		engine:         engine,
		log:            log,
		maxConnections: int32(maxConnections),
		groups:         make(map[string]*DenialCounts),
	}
}

func (g *Gate) countersFor(group string) *DenialCounts {
	g.groupsMu.Lock()
	defer g.groupsMu.Unlock()
	if d, ok := g.groups[group]; ok {
		return d
	}
	d := &DenialCounts{}
	g.groups[group] = d
	return d
}

// AcceptSocket is the socket-accept gate: a pure integer compare
// against maxConnections with no policy-engine call.
func (g *Gate) AcceptSocket() bool {
	if g.maxConnections > 0 && atomic.LoadInt32(&g.connCount) >= g.maxConnections {
		return false
	}
	atomic.AddInt32(&g.connCount, 1)
	return true
}

// ReleaseSocket decrements the live-connection count on connection
// close.
func (g *Gate) ReleaseSocket() {
	atomic.AddInt32(&g.connCount, -1)
}

// OpenDecision is the outcome of the AMQP-Open gate.
type OpenDecision struct {
	Allowed  bool
	Settings *Settings
	Reason   DenyReason
}

// AdmitOpen implements the AMQP-Open gate: resolve (user, host-ip,
// vhost, connection-name) to a group, then to its compiled settings.
func (g *Gate) AdmitOpen(user, hostIP, vhost, connName, connID string) OpenDecision {
	group := g.engine.LookupUser(user, hostIP, vhost, connName, connID)
	if group == "" {
		g.log.Info("policy denied connection", zap.String("user", user), zap.String("host", hostIP), zap.String("vhost", vhost))
		return OpenDecision{Reason: reasonOpenDenied}
	}
	settings, ok := g.engine.LookupSettings(vhost, group)
	if !ok {
		g.log.Info("policy denied connection: no settings for group", zap.String("group", group))
		return OpenDecision{Reason: reasonOpenDenied}
	}
	return OpenDecision{Allowed: true, Settings: settings}
}

// AdmitSession implements the Session-Begin gate: deny once current
// equals maxSessions.
func (g *Gate) AdmitSession(settings *Settings, current int) (bool, DenyReason) {
	if settings.MaxSessions > 0 && current >= settings.MaxSessions {
		g.countersFor(settings.GroupName).IncSession()
		return false, reasonSessionDenied
	}
	return true, DenyReason{}
}

// AdmitSender implements the sender half of the Link-Attach gate.
func (g *Gate) AdmitSender(settings *Settings, user string, currentSenders int, target string, hasTarget bool) (bool, DenyReason) {
	if settings.MaxSenders > 0 && currentSenders >= settings.MaxSenders {
		g.countersFor(settings.GroupName).IncSender()
		return false, reasonLinkResourceLimit
	}
	if !hasTarget {
		if settings.AllowAnonymousSender {
			return true, DenyReason{}
		}
		g.countersFor(settings.GroupName).IncSender()
		return false, reasonLinkUnauthorized
	}
	if settings.ApproveTarget(user, target) {
		return true, DenyReason{}
	}
	g.countersFor(settings.GroupName).IncSender()
	return false, reasonLinkUnauthorized
}

// AdmitReceiver implements the receiver half of the Link-Attach gate.
func (g *Gate) AdmitReceiver(settings *Settings, user string, currentReceivers int, source string, hasSource, dynamic bool) (bool, DenyReason) {
	if settings.MaxReceivers > 0 && currentReceivers >= settings.MaxReceivers {
		g.countersFor(settings.GroupName).IncReceiver()
		return false, reasonLinkResourceLimit
	}
	if dynamic {
		if settings.AllowDynamicSource {
			return true, DenyReason{}
		}
		g.countersFor(settings.GroupName).IncReceiver()
		return false, reasonLinkUnauthorized
	}
	if !hasSource || !settings.ApproveSource(user, source) {
		g.countersFor(settings.GroupName).IncReceiver()
		return false, reasonLinkUnauthorized
	}
	return true, DenyReason{}
}

// CheckUserIDProxy implements the user-id proxy check: a non-empty
// user-id property that does not equal the authenticated user is
// rejected when the settings forbid proxying.
func (g *Gate) CheckUserIDProxy(settings *Settings, authenticatedUser, messageUserID string) bool {
	if settings.AllowUserIDProxy {
		return true
	}
	if messageUserID == "" {
		return true
	}
	return messageUserID == authenticatedUser
}

// GroupDenials returns a snapshot of one group's denial counters for
// the management agent.
func (g *Gate) GroupDenials(group string) DenialSnapshot {
	return g.countersFor(group).Snapshot()
}
