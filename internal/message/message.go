// Package message implements the router's buffered AMQP message
// representation: a zero-copy chained buffer plus lazy, idempotent
// depth-checking of its section boundaries, and the annotation
// overlay (trace, ingress, to-override, phase) the router stamps onto
// every message it forwards.
package message

import (
	"sync"

	"github.com/flowmesh/routercore/internal/wireenc"
)

// Depth identifies how far into a message's section list the caller
// wants parsing validated.
type Depth int

const (
	DepthHeader Depth = iota
	DepthDeliveryAnnotations
	DepthMessageAnnotations
	DepthProperties
	DepthApplicationProperties
	DepthBody
)

// DepthResult is the three-valued outcome of CheckDepth.
type DepthResult int

const (
	DepthOK DepthResult = iota
	DepthIncomplete
	DepthInvalid
)

func (r DepthResult) String() string {
	switch r {
	case DepthOK:
		return "OK"
	case DepthIncomplete:
		return "INCOMPLETE"
	case DepthInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

type sectionKind int

const (
	sectionList sectionKind = iota
	sectionMap
)

type sectionSpec struct {
	depth Depth
	desc  byte
	kind  sectionKind
}

// order is the fixed AMQP 1.0 section ordering the depth-check walker
// relies on: header, delivery-annotations, message-annotations,
// properties, application-properties. Every section is optional; the
// body (depth DepthBody) follows and its encoding is not constrained
// by this component.
var order = []sectionSpec{
	{DepthHeader, byte(wireenc.DescriptorHeader), sectionList},
	{DepthDeliveryAnnotations, byte(wireenc.DescriptorDeliveryAnnotations), sectionMap},
	{DepthMessageAnnotations, byte(wireenc.DescriptorMessageAnnotations), sectionMap},
	{DepthProperties, byte(wireenc.DescriptorProperties), sectionList},
	{DepthApplicationProperties, byte(wireenc.DescriptorApplicationProps), sectionMap},
}

// Annotations holds the router-owned overlay fields: trace (path of
// router IDs), ingress (first router ID), to-override (effective
// destination) and phase.
type Annotations struct {
	Trace      []string
	Ingress    string
	HasIngress bool
	ToOverride string
	HasTo      bool
	Phase      int32
	HasPhase   bool
}

// Message is the router's in-flight representation of one AMQP
// message: the raw chained buffer received off the wire plus the
// router's own annotation overlay and a small parsed-properties cache
// used for address resolution (the "to" field).
type Message struct {
	mu              sync.Mutex
	buf             *Buffer
	receiveComplete bool

	// depthCache records a conclusive (OK or INVALID) result once
	// reached for a given depth, so CheckDepth is idempotent.
	depthCache map[Depth]DepthResult

	Annotations Annotations

	// To is the properties' "to" field, used as the address-resolution
	// fallback when Annotations.ToOverride is unset.
	To string
}

// New returns an empty Message ready to receive buffer chunks.
func New() *Message {
	return &Message{
		buf:        &Buffer{},
		depthCache: make(map[Depth]DepthResult),
	}
}

// AppendChunk appends raw bytes to the message's buffer chain. Must
// only be called before MarkReceiveComplete.
func (m *Message) AppendChunk(chunk []byte) {
	m.buf.AppendChunk(chunk)
}

// MarkReceiveComplete sets receive_complete. It is monotonic: calling
// it twice is a no-op, matching "becomes true exactly once".
func (m *Message) MarkReceiveComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveComplete = true
}

// ReceiveComplete reports whether the full message has been received.
func (m *Message) ReceiveComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receiveComplete
}

// Buffer exposes the underlying chained buffer (used by forwarders
// that need the total segment count for Q2 accounting).
func (m *Message) Buffer() *Buffer {
	return m.buf
}

// ShouldBlock implements the Q2 backpressure high watermark: once the
// message's buffered segment count reaches upper, the receiving link
// must stop granting the sender credit.
func (m *Message) ShouldBlock(upper int) bool {
	return m.buf.SegmentCount() >= upper
}

// ShouldUnblock implements the Q2 backpressure low watermark: once the
// message has drained below lower, the receiving link may resume
// granting credit. lower must be less than upper.
func (m *Message) ShouldUnblock(lower int) bool {
	return m.buf.SegmentCount() < lower
}

// CheckDepth walks the buffer chain from the start, validating the
// encoding tag of every optional section up to and including d. It
// returns INVALID as soon as a present section's tag does not match
// what AMQP 1.0 mandates (e.g. a map where a list is required),
// INCOMPLETE if the chain runs out before d can be conclusively
// resolved and receive_complete is still false, and OK otherwise —
// including when some sections up to d are simply absent, since every
// section in `order` is optional.
//
// The result for a given (message, depth) is stable once reached: a
// conclusive result is cached and returned directly on repeat calls.
func (m *Message) CheckDepth(d Depth) DepthResult {
	m.mu.Lock()
	if cached, ok := m.depthCache[d]; ok {
		m.mu.Unlock()
		return cached
	}
	complete := m.receiveComplete
	m.mu.Unlock()

	result := m.scanTo(d, complete)
	if result != DepthIncomplete {
		m.mu.Lock()
		m.depthCache[d] = result
		m.mu.Unlock()
	}
	return result
}

func (m *Message) scanTo(d Depth, complete bool) DepthResult {
	cursor := 0
	idx := 0
	for idx < len(order) && order[idx].depth <= d {
		head, ok := m.buf.sliceAt(cursor, 4)
		if !ok || len(head) < 4 {
			if !complete {
				return DepthIncomplete
			}
			return DepthOK
		}
		if head[0] != 0x00 {
			// Not a described-constructor section at all: treat the
			// remainder as the body (or malformed trailing data we
			// don't police here).
			return DepthOK
		}
		desc := head[2]
		if desc != order[idx].desc {
			found := -1
			for j := idx + 1; j < len(order); j++ {
				if order[j].desc == desc {
					found = j
					break
				}
			}
			if found == -1 {
				// Section belongs to the body/footer or is unknown:
				// every remaining annotation section is absent.
				return DepthOK
			}
			idx = found
			continue
		}

		typeByte := head[3]
		if !tagMatches(order[idx].kind, typeByte) {
			return DepthInvalid
		}

		width, zero, known := wireenc.SizeFieldWidth(typeByte)
		if !known {
			return DepthInvalid
		}
		if zero {
			cursor += 4
			idx++
			continue
		}
		sizeBytes, ok := m.buf.sliceAt(cursor+4, width)
		if !ok || len(sizeBytes) < width {
			if !complete {
				return DepthIncomplete
			}
			return DepthInvalid
		}
		size, ok := wireenc.ReadSize(sizeBytes, width)
		if !ok {
			return DepthInvalid
		}
		total := 4 + width + int(size)
		if b, ok := m.buf.sliceAt(cursor, total); !ok || len(b) < total {
			if !complete {
				return DepthIncomplete
			}
			return DepthInvalid
		}
		cursor += total
		idx++
	}
	return DepthOK
}

func tagMatches(kind sectionKind, typeByte byte) bool {
	switch kind {
	case sectionList:
		return wireenc.IsListCode(typeByte)
	case sectionMap:
		return wireenc.IsMapCode(typeByte)
	default:
		return false
	}
}
