package message

import "sync"

// segment is one chunk of the raw AMQP byte stream. Segments are never
// mutated once appended; Buffer only ever grows by appending a new
// segment.
type segment struct {
	data []byte
}

// Buffer is a zero-copy chained buffer: the raw bytes of one message
// are held as an ordered list of segments rather than copied into one
// contiguous slice, since the router never owns the full encode/decode
// path — it only appends segments as they arrive off the wire and
// walks them for section boundaries.
type Buffer struct {
	mu       sync.Mutex
	segments []segment
	size     int
}

// AppendChunk appends a new segment to the chain. The caller must not
// reuse or mutate chunk afterward.
func (b *Buffer) AppendChunk(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = append(b.segments, segment{data: chunk})
	b.size += len(chunk)
}

// Len returns the total number of bytes across all segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// SegmentCount returns the number of chained segments (used by the Q2
// buffer-depth watermark, which counts segments, not bytes).
func (b *Buffer) SegmentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

// Flatten returns the full byte stream as one contiguous slice. It
// copies; callers on the hot forwarding path should prefer walking
// segments directly (see byteAt/sliceAt) rather than flattening.
func (b *Buffer) Flatten() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, s := range b.segments {
		out = append(out, s.data...)
	}
	return out
}

// byteAt returns the byte at logical offset off and true, or (0,
// false) if off is beyond what has been received so far.
func (b *Buffer) byteAt(off int) (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 {
		return 0, false
	}
	for _, s := range b.segments {
		if off < len(s.data) {
			return s.data[off], true
		}
		off -= len(s.data)
	}
	return 0, false
}

// sliceAt returns up to n bytes starting at logical offset off. It may
// return fewer than n bytes if the chain does not yet hold that many;
// the bool result indicates whether at least one byte was available.
func (b *Buffer) sliceAt(off, n int) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || n <= 0 {
		return nil, false
	}
	out := make([]byte, 0, n)
	skip := off
	for _, s := range b.segments {
		if skip >= len(s.data) {
			skip -= len(s.data)
			continue
		}
		chunk := s.data[skip:]
		skip = 0
		take := n - len(out)
		if take > len(chunk) {
			take = len(chunk)
		}
		out = append(out, chunk[:take]...)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
