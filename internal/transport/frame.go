// Package transport provides the router's minimal concrete AMQP 1.0
// wire driver: enough of the protocol header exchange and the
// open/begin/attach/flow/transfer/disposition/detach performatives to
// drive internal/router's Callbacks interface end to end, without
// taking on the full wire codec the router core itself is
// deliberately ignorant of.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// protoHeader is the fixed AMQP 1.0 protocol header exchanged before
// any frames: "AMQP" + protocol-id(0) + major(1) + minor(0) + revision(0).
var protoHeader = [8]byte{'A', 'M', 'Q', 'P', 0, 1, 0, 0}

// writeProtoHeader writes the protocol header to w.
func writeProtoHeader(w io.Writer) error {
	_, err := w.Write(protoHeader[:])
	return err
}

// readProtoHeader reads and validates the peer's protocol header.
func readProtoHeader(r io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("transport: read protocol header: %w", err)
	}
	if buf != protoHeader {
		return fmt.Errorf("transport: unsupported protocol header % x", buf)
	}
	return nil
}

// frame is the decoded representation of one AMQP frame: a fixed
// 8-byte header (size, data offset, type, channel) followed by the
// described-list performative body.
type frame struct {
	channel uint16
	body    []byte // the described-list encoding of the performative
}

const frameTypeAMQP = 0

// writeFrame writes fr to w in the standard AMQP frame layout.
func writeFrame(w io.Writer, fr frame) error {
	size := 8 + len(fr.body)
	header := make([]byte, 8, size)
	binary.BigEndian.PutUint32(header[0:4], uint32(size))
	header[4] = 2 // data offset, in 4-byte words
	header[5] = frameTypeAMQP
	binary.BigEndian.PutUint16(header[6:8], fr.channel)
	header = append(header, fr.body...)
	_, err := w.Write(header)
	return err
}

// readFrame reads one frame from r.
func readFrame(r io.Reader) (frame, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}
	size := binary.BigEndian.Uint32(header[0:4])
	doff := header[4]
	if size < 8 || doff < 2 {
		return frame{}, fmt.Errorf("transport: malformed frame header")
	}
	channel := binary.BigEndian.Uint16(header[6:8])
	extLen := int(doff)*4 - 8
	if extLen > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extLen)); err != nil {
			return frame{}, err
		}
	}
	bodyLen := int(size) - int(doff)*4
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return frame{}, err
		}
	}
	return frame{channel: channel, body: body}, nil
}
