package transport

import "testing"

func TestOpenRoundTrip(t *testing.T) {
	o := &performOpen{ContainerID: "router-1", Hostname: "vhost-a", MaxFrameSize: 4096}
	body := o.marshal()
	decoded, trailing, err := decodePerformative(body)
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	if len(trailing) != 0 {
		t.Fatalf("expected no trailing bytes for open, got %d", len(trailing))
	}
	got, ok := decoded.(*performOpen)
	if !ok {
		t.Fatalf("expected *performOpen, got %T", decoded)
	}
	if got.ContainerID != "router-1" || got.Hostname != "vhost-a" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestBeginRoundTrip(t *testing.T) {
	b := &performBegin{NextOutgoingID: 1, IncomingWindow: 2147483647, OutgoingWindow: 2147483647}
	decoded, _, err := decodePerformative(b.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got, ok := decoded.(*performBegin)
	if !ok {
		t.Fatalf("expected *performBegin, got %T", decoded)
	}
	if got.NextOutgoingID != 1 || got.IncomingWindow != 2147483647 || got.OutgoingWindow != 2147483647 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestAttachRoundTripRoleAndOptionalFields(t *testing.T) {
	a := &performAttach{Name: "link-1", Handle: 7, Role: true, Target: "orders.new", HasTarget: true}
	decoded, _, err := decodePerformative(a.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got := decoded.(*performAttach)
	if got.Name != "link-1" || got.Handle != 7 || !got.Role {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if !got.HasTarget || got.Target != "orders.new" {
		t.Fatalf("expected target to round trip, got %+v", got)
	}
	if got.HasSource {
		t.Fatalf("expected HasSource=false when no source was set, got %+v", got)
	}
}

func TestFlowRoundTripDrainFlag(t *testing.T) {
	f := &performFlow{Handle: 2, HasHandle: true, DeliveryCount: 5, LinkCredit: 100, Drain: true}
	decoded, _, err := decodePerformative(f.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got := decoded.(*performFlow)
	if !got.HasHandle || got.Handle != 2 || got.LinkCredit != 100 || !got.Drain {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestTransferRoundTripCarriesPayload(t *testing.T) {
	payload := []byte{0x00, 0x53, 0x70, 0x40} // a minimal described-null-ish body, content is opaque to this layer
	tr := &performTransfer{Handle: 1, DeliveryID: 9, Settled: true, Payload: payload}
	decoded, trailing, err := decodePerformative(tr.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got := decoded.(*performTransfer)
	if got.Handle != 1 || got.DeliveryID != 9 || !got.Settled {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if string(got.Payload) != string(payload) || string(trailing) != string(payload) {
		t.Fatalf("expected payload to survive as trailing bytes, got payload=%x trailing=%x", got.Payload, trailing)
	}
}

func TestDispositionRoundTrip(t *testing.T) {
	d := &performDisposition{Role: true, First: 3, Settled: true, State: uint32(0x24)}
	decoded, _, err := decodePerformative(d.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got := decoded.(*performDisposition)
	if !got.Role || got.First != 3 || !got.Settled || got.State != 0x24 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestDetachRoundTrip(t *testing.T) {
	d := &performDetach{Handle: 4, Closed: true}
	decoded, _, err := decodePerformative(d.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got := decoded.(*performDetach)
	if got.Handle != 4 || !got.Closed {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestCloseWithoutErrorHasNoErrorField(t *testing.T) {
	cl := &performClose{}
	body := cl.marshal()
	decoded, _, err := decodePerformative(body)
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got, ok := decoded.(*performClose)
	if !ok {
		t.Fatalf("expected *performClose, got %T", decoded)
	}
	if got.HasError {
		t.Fatalf("expected no error field on a plain close, got %+v", got)
	}
}

func TestCloseWithErrorRoundTripsCondition(t *testing.T) {
	cl := &performClose{Condition: "amqp:not-found", Description: "no such address", HasError: true}
	decoded, _, err := decodePerformative(cl.marshal())
	if err != nil {
		t.Fatalf("decodePerformative: %v", err)
	}
	got, ok := decoded.(*performClose)
	if !ok {
		t.Fatalf("expected *performClose, got %T", decoded)
	}
	if !got.HasError || got.Condition != "amqp:not-found" || got.Description != "no such address" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestDecodePerformativeRejectsUnknownDescriptor(t *testing.T) {
	if _, _, err := decodePerformative([]byte{0x00, 0x53, 0x99, 0x45}); err == nil {
		t.Fatal("expected an error for an unsupported performative descriptor")
	}
}
