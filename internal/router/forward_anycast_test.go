package router

import (
	"testing"

	"github.com/flowmesh/routercore/internal/message"
)

func TestAnycastClosestRoundRobinsLocalLinks(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("a/work", SemanticsAnycastClosest, 8)
	l1 := newTestLink(1, "w1")
	l2 := newTestLink(2, "w2")
	addr.AddLocalLink(l1)
	addr.AddLocalLink(l2)

	f := anycastClosestForwarder{}
	for i := 0; i < 2; i++ {
		in := NewDelivery(uint64(i), newTestLink(99, "pub"), message.New(), uint64(i), false)
		if !f.Forward(c, addr, in, nil) {
			t.Fatal("expected a delivery to be accepted")
		}
	}
	if l1.UndeliveredLen() != 1 || l2.UndeliveredLen() != 1 {
		t.Fatalf("expected round-robin to spread one delivery to each link, got %d/%d", l1.UndeliveredLen(), l2.UndeliveredLen())
	}
}

func TestAnycastClosestSettlesUnsettledInbound(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("a/settle", SemanticsAnycastClosest, 8)
	l1 := newTestLink(1, "w1")
	addr.AddLocalLink(l1)

	in := NewDelivery(1, newTestLink(99, "pub"), message.New(), 1, false)
	f := anycastClosestForwarder{}
	f.Forward(c, addr, in, nil)
	if !in.IsSettled() {
		t.Fatal("an unsettled inbound delivery with a local destination must settle immediately")
	}
	if in.Disposition() != DispositionAccepted {
		t.Fatalf("expected DispositionAccepted, got %v", in.Disposition())
	}
}

func TestAnycastBalancedPrefersShortestQueue(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("a/balanced", SemanticsAnycastBalanced, 8)
	busy := newTestLink(1, "busy")
	idle := newTestLink(2, "idle")
	addr.AddLocalLink(busy)
	addr.AddLocalLink(idle)

	busy.Conn.Lock()
	busy.AppendUndelivered(NewDelivery(100, busy, message.New(), 100, true))
	busy.Conn.Unlock()

	in := NewDelivery(1, newTestLink(99, "pub"), message.New(), 1, true)
	f := anycastBalancedForwarder{}
	if !f.Forward(c, addr, in, nil) {
		t.Fatal("expected delivery to be accepted")
	}
	if idle.UndeliveredLen() != 1 {
		t.Fatalf("expected the idle (shorter-queue) link to receive the delivery, got idle=%d busy=%d", idle.UndeliveredLen(), busy.UndeliveredLen()-1)
	}
}

func TestAnycastClosestNoDestinationsReturnsFalse(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("a/empty", SemanticsAnycastClosest, 8)
	in := NewDelivery(1, newTestLink(99, "pub"), message.New(), 1, true)
	f := anycastClosestForwarder{}
	if f.Forward(c, addr, in, nil) {
		t.Fatal("expected no delivery when there are no local or remote destinations")
	}
}
