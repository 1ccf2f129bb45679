package router

import "fmt"

// ConfigError signals an invalid compiled policy or unknown semantics
// encountered at init time. It is fatal; callers at the process
// boundary (cmd/routercore) log it and exit rather than recovering.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }

// ProtocolError signals malformed AMQP or a depth-check INVALID
// result. The offending delivery is rejected and settled; the link
// and connection remain open.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %s", e.Reason) }

// PolicyDeny signals an admission failure at one of the three gates
// (socket accept, connection open, link attach). Condition/Description
// match the AMQP close/detach condition the caller should send on the
// wire.
type PolicyDeny struct {
	Action      string
	User        string
	Host        string
	Vhost       string
	Condition   string
	Description string
}

func (e *PolicyDeny) Error() string {
	return fmt.Sprintf("policy denied %s for user=%s host=%s vhost=%s: %s", e.Action, e.User, e.Host, e.Vhost, e.Description)
}

// Unroutable signals no address binding was found; the delivery is
// released with disposition RELEASED and the link remains open.
type Unroutable struct {
	Address string
}

func (e *Unroutable) Error() string { return fmt.Sprintf("no route to address %q", e.Address) }

// Transient signals a connection drop or write failure; it triggers a
// LOST detach cascade. No retry happens at this layer.
type Transient struct {
	Reason string
}

func (e *Transient) Error() string { return fmt.Sprintf("transient failure: %s", e.Reason) }

// InternalError signals an invariant violation and aborts the process.
// InternalError itself only panics (it never calls os.Exit), keeping
// this package testable. The core loop is the only place that turns
// such a panic into process termination (see Core.dispatchSafely).
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %s", e.Reason) }
