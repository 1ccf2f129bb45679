package router

import (
	"testing"

	"github.com/flowmesh/routercore/internal/message"
)

func newTestLink(id uint64, name string) *Link {
	conn := NewConnection(id, RoleNormal, true, func(*Connection, bool) {})
	return NewLink(id, conn, name, DirectionOut, LinkNormal, 10)
}

func TestMulticastFloodDeliversToEveryLocalLink(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("m/topic", SemanticsMulticastFlood, 8)

	l1 := newTestLink(1, "sub1")
	l2 := newTestLink(2, "sub2")
	addr.AddLocalLink(l1)
	addr.AddLocalLink(l2)

	in := NewDelivery(1, newTestLink(99, "pub"), message.New(), 1, true)
	f := multicastFloodForwarder{}
	if !f.Forward(c, addr, in, nil) {
		t.Fatal("expected flood forward to report delivered=true")
	}
	if l1.UndeliveredLen() != 1 || l2.UndeliveredLen() != 1 {
		t.Fatalf("expected exactly one undelivered item per local link, got %d/%d", l1.UndeliveredLen(), l2.UndeliveredLen())
	}
}

func TestMulticastFloodExcludesInboundLink(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("m/topic2", SemanticsMulticastFlood, 8)

	inboundLink := newTestLink(1, "both-ends")
	other := newTestLink(2, "sub")
	addr.AddLocalLink(inboundLink)
	addr.AddLocalLink(other)

	in := NewDelivery(1, inboundLink, message.New(), 1, true)
	exclude := newLinkExclusion(inboundLink, nil)

	f := multicastFloodForwarder{}
	if !f.Forward(c, addr, in, exclude) {
		t.Fatal("expected delivery to the non-excluded link")
	}
	if inboundLink.UndeliveredLen() != 0 {
		t.Fatal("the inbound link itself must never receive its own delivery back")
	}
	if other.UndeliveredLen() != 1 {
		t.Fatal("the other local link must still receive the delivery")
	}
}

func TestMulticastFloodNoDestinationsReturnsFalse(t *testing.T) {
	c := NewCore("R1", 8, noopCallbacksForTest{}, nil)
	addr := c.Addresses.GetOrCreate("m/empty", SemanticsMulticastFlood, 8)
	in := NewDelivery(1, newTestLink(1, "pub"), message.New(), 1, true)

	f := multicastFloodForwarder{}
	if f.Forward(c, addr, in, nil) {
		t.Fatal("expected no delivery when the address has no local or remote destinations")
	}
}

type noopCallbacksForTest struct{}

func (noopCallbacksForTest) ConnectionActivate(conn *Connection, awaken bool) {}
func (noopCallbacksForTest) LinkFirstAttach(link *Link)                      {}
func (noopCallbacksForTest) LinkSecondAttach(link *Link)                     {}
func (noopCallbacksForTest) LinkDetach(link *Link, first bool, cause error)  {}
func (noopCallbacksForTest) LinkFlow(link *Link, credit uint32, drain bool)  {}
func (noopCallbacksForTest) LinkOffer(link *Link, count int)                 {}
func (noopCallbacksForTest) LinkDrained(link *Link)                         {}
func (noopCallbacksForTest) LinkDrain(link *Link)                           {}
func (noopCallbacksForTest) LinkPush(link *Link)                            {}
func (noopCallbacksForTest) LinkDeliver(link *Link, dlv *Delivery)          {}
func (noopCallbacksForTest) DeliveryUpdate(dlv *Delivery)                   {}
