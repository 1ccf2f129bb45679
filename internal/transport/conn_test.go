package transport

import (
	"net"
	"testing"
	"time"

	"github.com/flowmesh/routercore/internal/policy"
	"github.com/flowmesh/routercore/internal/router"
)

type permissiveEngine struct{}

func (permissiveEngine) LookupUser(user, hostIP, vhost, connName, connID string) string {
	return "default"
}

func (permissiveEngine) LookupSettings(vhost, group string) (*policy.Settings, bool) {
	return &policy.Settings{
		GroupName:            group,
		MaxSenders:           10,
		MaxReceivers:         10,
		AllowAnonymousSender: true,
		AllowDynamicSource:   true,
		Sources:              "*",
		Targets:              "*",
	}, true
}

func (permissiveEngine) CloseConnection(connID string) {}

func newTestConnPair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	bridge := NewBridge(nil)
	core := router.NewCore("router-1", 8, bridge, nil)
	go core.Run()
	t.Cleanup(core.Stop)

	gate := policy.NewGate(permissiveEngine{}, 0, nil)
	serverSide, clientSide := net.Pipe()
	c := newConn(serverSide, core, gate, bridge, nil)
	return c, clientSide
}

func readFrameWithDeadline(t *testing.T, nc net.Conn) frame {
	t.Helper()
	nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	fr, err := readFrame(nc)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	return fr
}

func TestConnHandshakeAndAttachEchoesLinkName(t *testing.T) {
	c, client := newTestConnPair(t)
	go c.serve()

	if err := writeProtoHeader(client); err != nil {
		t.Fatalf("writeProtoHeader: %v", err)
	}
	if err := readProtoHeader(client); err != nil {
		t.Fatalf("readProtoHeader: %v", err)
	}

	open := (&performOpen{ContainerID: "test-client", Hostname: "vhost-a"}).marshal()
	if err := writeFrame(client, frame{body: open}); err != nil {
		t.Fatalf("writeFrame(open): %v", err)
	}

	replyOpen := readFrameWithDeadline(t, client)
	decoded, _, err := decodePerformative(replyOpen.body)
	if err != nil {
		t.Fatalf("decodePerformative(open reply): %v", err)
	}
	if _, ok := decoded.(*performOpen); !ok {
		t.Fatalf("expected *performOpen reply, got %T", decoded)
	}

	replyBegin := readFrameWithDeadline(t, client)
	decoded, _, err = decodePerformative(replyBegin.body)
	if err != nil {
		t.Fatalf("decodePerformative(begin reply): %v", err)
	}
	if _, ok := decoded.(*performBegin); !ok {
		t.Fatalf("expected *performBegin reply, got %T", decoded)
	}

	attach := (&performAttach{Name: "recv-1", Handle: 0, Role: true, Source: "a/work", HasSource: true}).marshal()
	if err := writeFrame(client, frame{body: attach}); err != nil {
		t.Fatalf("writeFrame(attach): %v", err)
	}

	replyAttach := readFrameWithDeadline(t, client)
	decoded, _, err = decodePerformative(replyAttach.body)
	if err != nil {
		t.Fatalf("decodePerformative(attach reply): %v", err)
	}
	got, ok := decoded.(*performAttach)
	if !ok {
		t.Fatalf("expected *performAttach reply, got %T", decoded)
	}
	if got.Name != "recv-1" {
		t.Fatalf("expected echoed link name, got %q", got.Name)
	}
}

func TestConnOpenDeniedByPolicyClosesConnection(t *testing.T) {
	bridge := NewBridge(nil)
	core := router.NewCore("router-1", 8, bridge, nil)
	go core.Run()
	t.Cleanup(core.Stop)

	gate := policy.NewGate(denyAllEngine{}, 0, nil)
	serverSide, client := net.Pipe()
	c := newConn(serverSide, core, gate, bridge, nil)
	go c.serve()

	if err := writeProtoHeader(client); err != nil {
		t.Fatalf("writeProtoHeader: %v", err)
	}
	if err := readProtoHeader(client); err != nil {
		t.Fatalf("readProtoHeader: %v", err)
	}

	open := (&performOpen{ContainerID: "test-client", Hostname: "vhost-a"}).marshal()
	if err := writeFrame(client, frame{body: open}); err != nil {
		t.Fatalf("writeFrame(open): %v", err)
	}

	reply := readFrameWithDeadline(t, client)
	decoded, _, err := decodePerformative(reply.body)
	if err != nil {
		t.Fatalf("decodePerformative(close reply): %v", err)
	}
	if _, ok := decoded.(*performClose); !ok {
		t.Fatalf("expected the denied open to be answered with a close, got %T", decoded)
	}
}

type denyAllEngine struct{}

func (denyAllEngine) LookupUser(user, hostIP, vhost, connName, connID string) string { return "" }
func (denyAllEngine) LookupSettings(vhost, group string) (*policy.Settings, bool)    { return nil, false }
func (denyAllEngine) CloseConnection(connID string)                                 {}
