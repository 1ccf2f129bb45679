package message

import "github.com/flowmesh/routercore/internal/wireenc"

// Router-owned message-annotation keys.
const (
	KeyTrace      = "x-opt-qd.trace"
	KeyIngress    = "x-opt-qd.ingress"
	KeyToOverride = "x-opt-qd.to"
	KeyPhase      = "x-opt-qd.phase"
)

var knownSectionDescs = map[byte]bool{
	byte(wireenc.DescriptorHeader):             true,
	byte(wireenc.DescriptorDeliveryAnnotations): true,
	byte(wireenc.DescriptorMessageAnnotations):  true,
	byte(wireenc.DescriptorProperties):          true,
	byte(wireenc.DescriptorApplicationProps):    true,
}

// sections walks every recognised section from the start of the buffer
// and returns the value bytes (starting at the type byte, as expected
// by wireenc.DecodeValue) for each one present, keyed by descriptor.
// It stops at the first unrecognised descriptor (the body) or the
// first section it cannot fully resolve (absent or still incomplete);
// callers that need this information should only call it once
// CheckDepth(DepthApplicationProperties) has returned OK.
func (m *Message) sections() map[byte][]byte {
	out := map[byte][]byte{}
	cursor := 0
	for {
		head, ok := m.buf.sliceAt(cursor, 4)
		if !ok || len(head) < 4 || head[0] != 0x00 {
			break
		}
		desc := head[2]
		typeByte := head[3]
		width, zero, known := wireenc.SizeFieldWidth(typeByte)
		if !known {
			break
		}
		total := 4
		if !zero {
			sizeBytes, ok := m.buf.sliceAt(cursor+4, width)
			if !ok || len(sizeBytes) < width {
				break
			}
			size, ok := wireenc.ReadSize(sizeBytes, width)
			if !ok {
				break
			}
			total = 4 + width + int(size)
		}
		valBuf, ok := m.buf.sliceAt(cursor+3, total-3)
		if !ok || len(valBuf) < total-3 {
			break
		}
		if !knownSectionDescs[desc] {
			break
		}
		out[desc] = valBuf
		cursor += total
	}
	return out
}

// ParseInboundAnnotations extracts the router's existing overlay
// fields (if any) from the message's message-annotations section and
// populates m.Annotations accordingly, and extracts the properties
// "to" field into m.To. It is safe to call multiple times; each call
// re-derives the fields from the buffer (which never changes once
// written).
func (m *Message) ParseInboundAnnotations() {
	secs := m.sections()

	if raw, ok := secs[byte(wireenc.DescriptorMessageAnnotations)]; ok {
		if v, _, err := wireenc.DecodeValue(raw); err == nil {
			if mp, ok := v.(map[string]interface{}); ok {
				if tv, ok := mp[KeyTrace]; ok {
					if items, ok := tv.([]interface{}); ok {
						trace := make([]string, 0, len(items))
						for _, it := range items {
							if s, ok := it.(string); ok {
								trace = append(trace, s)
							}
						}
						m.Annotations.Trace = trace
					}
				}
				if iv, ok := mp[KeyIngress]; ok {
					if s, ok := iv.(string); ok {
						m.Annotations.Ingress = s
						m.Annotations.HasIngress = true
					}
				}
				if tv, ok := mp[KeyToOverride]; ok {
					if s, ok := tv.(string); ok {
						m.Annotations.ToOverride = s
						m.Annotations.HasTo = true
					}
				}
				if pv, ok := mp[KeyPhase]; ok {
					if u, ok := pv.(uint32); ok {
						m.Annotations.Phase = int32(u)
						m.Annotations.HasPhase = true
					}
				}
			}
		}
	}

	if raw, ok := secs[byte(wireenc.DescriptorProperties)]; ok {
		if v, _, err := wireenc.DecodeValue(raw); err == nil {
			if list, ok := v.([]interface{}); ok && len(list) > 2 {
				if s, ok := list[2].(string); ok {
					m.To = s
				}
			}
		}
	}
}

// UserID returns the properties' user-id field (list index 1) and
// whether it was present, for the policy gate's user-id proxy check.
// Only a string-encoded user-id is recognised: wireenc.DecodeValue
// does not decode AMQP binary, so a binary user-id makes the
// properties section undecodable here and is reported as absent.
func (m *Message) UserID() (string, bool) {
	secs := m.sections()
	raw, ok := secs[byte(wireenc.DescriptorProperties)]
	if !ok {
		return "", false
	}
	v, _, err := wireenc.DecodeValue(raw)
	if err != nil {
		return "", false
	}
	list, ok := v.([]interface{})
	if !ok || len(list) < 2 {
		return "", false
	}
	switch uid := list[1].(type) {
	case string:
		return uid, uid != ""
	default:
		return "", false
	}
}

// ApplyAnnotationPipeline implements the inbound annotation rewrite:
// append thisRouter to the trace, preserve or stamp ingress, leave
// to-override/phase untouched, and return the set of
// neighbor link mask bits that must be excluded from outbound
// forwarding because they already appear in the inbound trace (loop
// suppression). neighborLinkBit resolves a router ID in the trace to its
// neighbor link mask bit, or (-1, false) if it is not a direct
// neighbor (only direct neighbors need exclusion: a non-neighbor
// appearing in the trace was relayed through one, and that relay's
// own bit is what must be excluded).
//
// It returns the outbound trace (to be handed to the wire driver for
// re-encoding) and the resolved ingress value: per spec, downstream
// MULTICAST_ONCE treats a stamped (as opposed to preserved) ingress as
// origin 0, so the returned `stamped` flag tells the caller whether to
// treat origin as absent.
func (m *Message) ApplyAnnotationPipeline(thisRouter string, neighborLinkBit func(routerID string) (int, bool)) (outboundTrace []string, ingress string, stamped bool, linkExclusion []int) {
	for _, r := range m.Annotations.Trace {
		if bit, ok := neighborLinkBit(r); ok {
			linkExclusion = append(linkExclusion, bit)
		}
	}

	outboundTrace = append(append([]string{}, m.Annotations.Trace...), thisRouter)

	if m.Annotations.HasIngress {
		return outboundTrace, m.Annotations.Ingress, false, linkExclusion
	}
	return outboundTrace, thisRouter, true, linkExclusion
}
