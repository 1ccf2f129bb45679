package message

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flowmesh/routercore/internal/wireenc"
)

func header(desc byte, typeByte byte, body []byte) []byte {
	out := []byte{0x00, 0x53, desc, typeByte}
	return append(out, body...)
}

// map32 body: 4-byte size + 4-byte count + elements, matching
// wireenc.EncodeMap's own layout (minus the leading type byte, which
// header() supplies).
func map32Body(elements []byte, count int) []byte {
	body := make([]byte, 8)
	binaryPutU32(body[0:4], uint32(4+len(elements)))
	binaryPutU32(body[4:8], uint32(count))
	return append(body, elements...)
}

func binaryPutU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func TestCheckDepthIncompleteThenOK(t *testing.T) {
	m := New()
	// First 4 bytes of a delivery-annotations section: constructor +
	// type byte only, no size field yet.
	m.AppendChunk([]byte{0x00, 0x53, byte(wireenc.DescriptorDeliveryAnnotations), 0xd1})

	if got := m.CheckDepth(DepthDeliveryAnnotations); got != DepthIncomplete {
		t.Fatalf("got %v want INCOMPLETE", got)
	}

	// Feed the remainder: an empty map (size=4, count=0).
	m.AppendChunk([]byte{0, 0, 0, 4, 0, 0, 0, 0})
	m.MarkReceiveComplete()

	if got := m.CheckDepth(DepthDeliveryAnnotations); got != DepthOK {
		t.Fatalf("got %v want OK", got)
	}
}

func TestCheckDepthInvalidTagMismatch(t *testing.T) {
	m := New()
	// Header (list-required) encoded with a map type byte (0xc1).
	m.AppendChunk(header(byte(wireenc.DescriptorHeader), 0xc1, map32Body(nil, 0)))
	m.MarkReceiveComplete()

	if got := m.CheckDepth(DepthHeader); got != DepthInvalid {
		t.Fatalf("got %v want INVALID", got)
	}
}

func TestCheckDepthIsIdempotent(t *testing.T) {
	m := New()
	m.AppendChunk(header(byte(wireenc.DescriptorHeader), 0xd0, map32Body(nil, 0)))
	// header is declared list-required but encoded as a list type byte
	// (0xd0 is list32) so this one is valid.
	m.MarkReceiveComplete()

	first := m.CheckDepth(DepthHeader)
	second := m.CheckDepth(DepthHeader)
	if first != second {
		t.Fatalf("CheckDepth not idempotent: %v then %v", first, second)
	}
}

func TestCheckDepthAbsentOptionalSectionsAreOK(t *testing.T) {
	m := New()
	m.MarkReceiveComplete() // empty message: every section absent
	if got := m.CheckDepth(DepthApplicationProperties); got != DepthOK {
		t.Fatalf("got %v want OK for an empty complete message", got)
	}
}

func TestAnnotationPipelineLoopSuppressionAndTraceAppend(t *testing.T) {
	// Inbound trace=["R2"], this router is R1, and R2 is a direct
	// neighbor on link bit 3.
	m := New()
	m.Annotations.Trace = []string{"R2"}

	neighborBit := func(id string) (int, bool) {
		if id == "R2" {
			return 3, true
		}
		return -1, false
	}

	trace, ingress, stamped, excl := m.ApplyAnnotationPipeline("R1", neighborBit)

	if len(trace) != 2 || trace[0] != "R2" || trace[1] != "R1" {
		t.Fatalf("unexpected outbound trace: %v", trace)
	}
	if !stamped || ingress != "R1" {
		t.Fatalf("expected ingress stamped to R1, got %q stamped=%v", ingress, stamped)
	}
	if len(excl) != 1 || excl[0] != 3 {
		t.Fatalf("expected link exclusion {3}, got %v", excl)
	}
}

func TestAnnotationPipelinePreservesExistingIngress(t *testing.T) {
	m := New()
	m.Annotations.Trace = []string{"R3"}
	m.Annotations.Ingress = "R3"
	m.Annotations.HasIngress = true

	_, ingress, stamped, _ := m.ApplyAnnotationPipeline("R1", func(string) (int, bool) { return -1, false })
	if stamped || ingress != "R3" {
		t.Fatalf("expected preserved ingress R3, got %q stamped=%v", ingress, stamped)
	}
}

func TestQ2HoldoffSensing(t *testing.T) {
	const lower, upper = 5, 8

	m := New()
	for nbufs := 1; nbufs <= upper; nbufs++ {
		m.AppendChunk([]byte{byte(nbufs)})
		if got, want := m.ShouldBlock(upper), nbufs >= upper; got != want {
			t.Fatalf("at %d buffers: ShouldBlock = %v, want %v", nbufs, got, want)
		}
		if got, want := m.ShouldUnblock(lower), nbufs < lower; got != want {
			t.Fatalf("at %d buffers: ShouldUnblock = %v, want %v", nbufs, got, want)
		}
	}
}

func TestParseInboundAnnotationsRoundTrip(t *testing.T) {
	raw := wireenc.EncodeMap(map[string]wireenc.Value{
		KeyTrace:   wireenc.StringListValue([]string{"R2"}),
		KeyIngress: wireenc.StringValue("R2"),
		KeyPhase:   wireenc.UintValue(1),
	})
	m := New()
	m.AppendChunk(header(byte(wireenc.DescriptorMessageAnnotations), raw[0], raw[1:]))
	m.MarkReceiveComplete()

	m.ParseInboundAnnotations()

	if len(m.Annotations.Trace) != 1 || m.Annotations.Trace[0] != "R2" {
		t.Fatalf("unexpected trace: %v", m.Annotations.Trace)
	}
	if !m.Annotations.HasIngress || m.Annotations.Ingress != "R2" {
		t.Fatalf("unexpected ingress: %+v", m.Annotations)
	}
	if !m.Annotations.HasPhase || m.Annotations.Phase != 1 {
		t.Fatalf("unexpected phase: %+v", m.Annotations)
	}

	want := Annotations{
		Trace:      []string{"R2"},
		Ingress:    "R2",
		HasIngress: true,
		Phase:      1,
		HasPhase:   true,
	}
	if diff := cmp.Diff(want, m.Annotations); diff != "" {
		t.Fatalf("unexpected annotations (-want +got):\n%s", diff)
	}
}
