package wireenc

import "encoding/binary"

// typeCodeDescribed marks a described-constructor value: 0x00 followed
// by a descriptor value (here always a small ulong) and the described
// value itself. This is the encoding every AMQP composite type — every
// performative and every message section — uses.
const typeCodeDescribed byte = 0x00

// WriteDescribedList encodes a described list: the composite types
// used for performatives (open, begin, attach, flow, transfer,
// disposition, detach, close) and for the message sections the depth
// walker already recognises. fields are pre-encoded AMQP values,
// trailing nulls may be omitted by passing fewer fields than the
// composite's full arity.
func WriteDescribedList(descriptor uint64, fields [][]byte) []byte {
	var body []byte
	for _, f := range fields {
		body = append(body, f...)
	}
	var out []byte
	out = append(out, typeCodeDescribed)
	out = WriteULong(out, descriptor)
	out = append(out, byte(typeCodeList32))
	sizeIdx := len(out)
	out = append(out, 0, 0, 0, 0)
	preLen := len(out)
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(fields)))
	out = append(out, cnt[:]...)
	out = append(out, body...)
	size := uint32(len(out) - preLen)
	binary.BigEndian.PutUint32(out[sizeIdx:], size)
	return out
}

// WriteULong appends the AMQP encoding of v to buf, using the smallest
// applicable width.
func WriteULong(buf []byte, v uint64) []byte {
	switch {
	case v == 0:
		return append(buf, byte(typeCodeUlong0))
	case v < 256:
		return append(buf, byte(typeCodeSmallUlong), byte(v))
	default:
		buf = append(buf, byte(typeCodeUlong))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		return append(buf, b[:]...)
	}
}

// DecodeDescribed decodes a described-list composite from the front of
// buf: its descriptor code and its list-encoded fields, each still in
// their raw encoded form ready for DecodeValue.
func DecodeDescribed(buf []byte) (descriptor uint64, fields []interface{}, n int, err error) {
	if len(buf) == 0 || buf[0] != typeCodeDescribed {
		return 0, nil, 0, errShortBuffer
	}
	desc, dn, err := decodeULong(buf[1:])
	if err != nil {
		return 0, nil, 0, err
	}
	rest := buf[1+dn:]
	v, vn, err := DecodeValue(rest)
	if err != nil {
		return 0, nil, 0, err
	}
	list, ok := v.([]interface{})
	if !ok {
		return 0, nil, 0, errShortBuffer
	}
	return desc, list, 1 + dn + vn, nil
}

func decodeULong(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, errShortBuffer
	}
	switch typeCode(buf[0]) {
	case typeCodeUlong0:
		return 0, 1, nil
	case typeCodeSmallUlong:
		if len(buf) < 2 {
			return 0, 0, errShortBuffer
		}
		return uint64(buf[1]), 2, nil
	case typeCodeUlong:
		if len(buf) < 9 {
			return 0, 0, errShortBuffer
		}
		return binary.BigEndian.Uint64(buf[1:9]), 9, nil
	default:
		return 0, 0, errShortBuffer
	}
}

// Performative descriptor codes, per the AMQP 1.0 transport layer.
const (
	DescriptorOpen       uint64 = 0x10
	DescriptorBegin      uint64 = 0x11
	DescriptorAttach     uint64 = 0x12
	DescriptorFlow       uint64 = 0x13
	DescriptorTransfer   uint64 = 0x14
	DescriptorDisposition uint64 = 0x15
	DescriptorDetach     uint64 = 0x16
	DescriptorEnd        uint64 = 0x17
	DescriptorClose      uint64 = 0x18
)
