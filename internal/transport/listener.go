package transport

import (
	"net"

	"go.uber.org/zap"

	"github.com/flowmesh/routercore/internal/policy"
	"github.com/flowmesh/routercore/internal/router"
)

// Listener accepts inbound AMQP connections, applying the socket-level
// admission gate before spawning a Conn's serve loop on its own
// goroutine — one goroutine per connection, each running its own read
// loop independently of the others.
type Listener struct {
	ln      net.Listener
	core    *router.Core
	gate    *policy.Gate
	bridge  *Bridge
	log     *zap.Logger
	q2Lower int
	q2Upper int
}

// Listen starts accepting connections on addr. q2Lower/q2Upper are the
// Q2 backpressure watermarks applied to every connection's inbound
// links; passing 0 for both disables Q2 holdoff.
func Listen(addr string, core *router.Core, gate *policy.Gate, bridge *Bridge, log *zap.Logger, q2Lower, q2Upper int) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, core: core, gate: gate, bridge: bridge, log: log, q2Lower: q2Lower, q2Upper: q2Upper}, nil
}

// Serve runs the accept loop until the listener is closed.
func (l *Listener) Serve() error {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			return err
		}
		if !l.gate.AcceptSocket() {
			nc.Close()
			continue
		}
		c := newConn(nc, l.core, l.gate, l.bridge, l.log)
		c.q2Lower, c.q2Upper = l.q2Lower, l.q2Upper
		go c.serve()
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
