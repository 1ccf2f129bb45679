// Package wireenc implements the small slice of the AMQP 1.0 type
// encoding needed by the router core itself: the message-annotation
// values it reads and rewrites (trace, ingress, to-override, phase) and
// the section descriptors used by the depth-check walker, plus the
// described-list encoding (composite.go) that the transport package
// builds its performatives on. It is not a general-purpose AMQP codec.
package wireenc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// typeCode identifies one AMQP primitive encoding, named the way the
// AMQP 1.0 type system itself names them.
type typeCode byte

const (
	typeCodeNull      typeCode = 0x40
	typeCodeBoolTrue  typeCode = 0x41
	typeCodeBoolFalse typeCode = 0x42
	typeCodeUint0     typeCode = 0x43
	typeCodeSmallUint typeCode = 0x52
	typeCodeUint      typeCode = 0x70
	typeCodeSmallUlong typeCode = 0x53
	typeCodeUlong0    typeCode = 0x44
	typeCodeUlong     typeCode = 0x80
	typeCodeStr8      typeCode = 0xa1
	typeCodeStr32     typeCode = 0xb1
	typeCodeSym8      typeCode = 0xa3
	typeCodeSym32     typeCode = 0xb3
	typeCodeList0     typeCode = 0x45
	typeCodeList8     typeCode = 0xc0
	typeCodeList32    typeCode = 0xd0
	typeCodeMap8      typeCode = 0xc1
	typeCodeMap32     typeCode = 0xd1
)

// Descriptor codes for the AMQP message sections the depth-check walker
// (message.CheckDepth) must recognise, per the AMQP 1.0 message format:
// header, delivery-annotations, message-annotations, properties,
// application-properties, data, amqp-sequence, amqp-value, footer.
const (
	DescriptorHeader              uint64 = 0x70
	DescriptorDeliveryAnnotations uint64 = 0x71
	DescriptorMessageAnnotations  uint64 = 0x72
	DescriptorProperties          uint64 = 0x73
	DescriptorApplicationProps    uint64 = 0x74
	DescriptorData                uint64 = 0x75
	DescriptorAMQPSequence        uint64 = 0x76
	DescriptorAMQPValue           uint64 = 0x77
	DescriptorFooter              uint64 = 0x78
)

// Symbol is an AMQP symbol, the type used for annotation map keys such
// as "x-opt-qd.trace".
type Symbol string

// WriteSymbol appends the AMQP encoding of s to buf.
func WriteSymbol(buf []byte, s Symbol) []byte {
	l := len(s)
	if l < 256 {
		buf = append(buf, byte(typeCodeSym8), byte(l))
	} else {
		buf = append(buf, byte(typeCodeSym32))
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(l))
		buf = append(buf, sz[:]...)
	}
	return append(buf, s...)
}

// WriteString appends the AMQP encoding of s to buf.
func WriteString(buf []byte, s string) []byte {
	l := len(s)
	if l < 256 {
		buf = append(buf, byte(typeCodeStr8), byte(l))
	} else {
		buf = append(buf, byte(typeCodeStr32))
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(l))
		buf = append(buf, sz[:]...)
	}
	return append(buf, s...)
}

// WriteUint appends the AMQP encoding of v to buf.
func WriteUint(buf []byte, v uint32) []byte {
	switch {
	case v == 0:
		return append(buf, byte(typeCodeUint0))
	case v < 256:
		return append(buf, byte(typeCodeSmallUint), byte(v))
	default:
		buf = append(buf, byte(typeCodeUint))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		return append(buf, b[:]...)
	}
}

// WriteStringList appends an AMQP list of strings (used for the trace
// annotation) to buf.
func WriteStringList(buf []byte, items []string) []byte {
	if len(items) == 0 {
		return append(buf, byte(typeCodeList0))
	}
	buf = append(buf, byte(typeCodeList32))
	sizeIdx := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	preLen := len(buf)
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(items)))
	buf = append(buf, cnt[:]...)
	for _, it := range items {
		buf = WriteString(buf, it)
	}
	size := uint32(len(buf) - preLen)
	binary.BigEndian.PutUint32(buf[sizeIdx:], size)
	return buf
}

// ReadStringList decodes an AMQP list of strings previously written by
// WriteStringList (or an empty/absent list) starting at buf[0]. It
// returns the decoded items and the number of bytes consumed.
func ReadStringList(buf []byte) ([]string, int, error) {
	if len(buf) == 0 {
		return nil, 0, errors.New("wireenc: empty buffer")
	}
	switch typeCode(buf[0]) {
	case typeCodeNull:
		return nil, 1, nil
	case typeCodeList0:
		return nil, 1, nil
	case typeCodeList32:
		if len(buf) < 9 {
			return nil, 0, errShortBuffer
		}
		size := binary.BigEndian.Uint32(buf[1:5])
		count := binary.BigEndian.Uint32(buf[5:9])
		total := 1 + 4 + int(size)
		if len(buf) < total {
			return nil, 0, errShortBuffer
		}
		pos := 9
		items := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			s, n, err := readString(buf[pos:])
			if err != nil {
				return nil, 0, err
			}
			items = append(items, s)
			pos += n
		}
		return items, total, nil
	default:
		return nil, 0, fmt.Errorf("wireenc: unsupported list encoding 0x%02x", buf[0])
	}
}

var errShortBuffer = errors.New("wireenc: short buffer")

func readString(buf []byte) (string, int, error) {
	if len(buf) == 0 {
		return "", 0, errShortBuffer
	}
	switch typeCode(buf[0]) {
	case typeCodeStr8, typeCodeSym8:
		if len(buf) < 2 {
			return "", 0, errShortBuffer
		}
		l := int(buf[1])
		if len(buf) < 2+l {
			return "", 0, errShortBuffer
		}
		return string(buf[2 : 2+l]), 2 + l, nil
	case typeCodeStr32, typeCodeSym32:
		if len(buf) < 5 {
			return "", 0, errShortBuffer
		}
		l := int(binary.BigEndian.Uint32(buf[1:5]))
		if l < 0 || uint(l) > math.MaxInt32 || len(buf) < 5+l {
			return "", 0, errShortBuffer
		}
		return string(buf[5 : 5+l]), 5 + l, nil
	default:
		return "", 0, fmt.Errorf("wireenc: unsupported string encoding 0x%02x", buf[0])
	}
}

// ReadString decodes a single AMQP string or symbol at buf[0].
func ReadString(buf []byte) (string, int, error) {
	return readString(buf)
}

// IsMapCode reports whether code is one of the map type codes; used by
// CheckDepth to detect a map encoded where a list is mandated.
func IsMapCode(code byte) bool {
	return typeCode(code) == typeCodeMap8 || typeCode(code) == typeCodeMap32
}

// IsListCode reports whether code is one of the list type codes.
func IsListCode(code byte) bool {
	switch typeCode(code) {
	case typeCodeList0, typeCodeList8, typeCodeList32:
		return true
	default:
		return false
	}
}

// SizeFieldWidth describes how many bytes follow a compound type code
// before its elements begin, for the depth-check walker's skip logic.
// zero reports a fixed-size-zero encoding (list0, no further fields);
// ok is false for a type code this package does not recognise as a
// compound (list/map) encoding.
func SizeFieldWidth(code byte) (width int, zero bool, ok bool) {
	switch typeCode(code) {
	case typeCodeList0:
		return 0, true, true
	case typeCodeList8, typeCodeMap8:
		return 1, false, true
	case typeCodeList32, typeCodeMap32:
		return 4, false, true
	default:
		return 0, false, false
	}
}

// ReadSize reads a size field of the given width (1 or 4 bytes) from
// buf[0:width] as an unsigned integer.
func ReadSize(buf []byte, width int) (uint32, bool) {
	if len(buf) < width {
		return 0, false
	}
	switch width {
	case 1:
		return uint32(buf[0]), true
	case 4:
		return binary.BigEndian.Uint32(buf[0:4]), true
	default:
		return 0, false
	}
}
