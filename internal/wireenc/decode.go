package wireenc

import (
	"encoding/binary"
	"fmt"
)

// DecodeValue decodes one AMQP primitive value from the front of buf
// and returns it along with the number of bytes consumed. It covers
// the subset of the AMQP type system the router's own annotation
// overlay and application-properties lookups need: null, booleans,
// the fixed and variable-width integers, strings/symbols, lists and
// maps (decoded recursively into []interface{} / map[string]interface{}).
// Anything else is reported as an error rather than silently skipped,
// since the router never needs to parse message bodies.
func DecodeValue(buf []byte) (interface{}, int, error) {
	if len(buf) == 0 {
		return nil, 0, errShortBuffer
	}
	code := typeCode(buf[0])
	switch code {
	case typeCodeNull:
		return nil, 1, nil
	case typeCodeBoolTrue:
		return true, 1, nil
	case typeCodeBoolFalse:
		return false, 1, nil
	case typeCodeUint0:
		return uint32(0), 1, nil
	case typeCodeSmallUint:
		if len(buf) < 2 {
			return nil, 0, errShortBuffer
		}
		return uint32(buf[1]), 2, nil
	case typeCodeUint:
		if len(buf) < 5 {
			return nil, 0, errShortBuffer
		}
		return binary.BigEndian.Uint32(buf[1:5]), 5, nil
	case typeCodeUlong0:
		return uint64(0), 1, nil
	case typeCodeSmallUlong:
		if len(buf) < 2 {
			return nil, 0, errShortBuffer
		}
		return uint64(buf[1]), 2, nil
	case typeCodeUlong:
		if len(buf) < 9 {
			return nil, 0, errShortBuffer
		}
		return binary.BigEndian.Uint64(buf[1:9]), 9, nil
	case typeCodeStr8, typeCodeSym8, typeCodeStr32, typeCodeSym32:
		s, n, err := readString(buf)
		return s, n, err
	case typeCodeList0:
		return []interface{}{}, 1, nil
	case typeCodeList8, typeCodeList32:
		return decodeCompound(buf, false)
	case typeCodeMap8, typeCodeMap32:
		return decodeCompound(buf, true)
	case typeCode(typeCodeDescribed):
		// a described value nested inside a list field, e.g. the error
		// composite carried by close/detach. The descriptor is dropped;
		// callers that care about it use DecodeDescribed directly.
		_, fields, n, err := DecodeDescribed(buf)
		return fields, n, err
	default:
		return nil, 0, fmt.Errorf("wireenc: unsupported value type 0x%02x", code)
	}
}

func decodeCompound(buf []byte, isMap bool) (interface{}, int, error) {
	width, zero, ok := SizeFieldWidth(buf[0])
	if !ok {
		return nil, 0, fmt.Errorf("wireenc: not a compound type 0x%02x", buf[0])
	}
	if zero {
		if isMap {
			return map[string]interface{}{}, 1, nil
		}
		return []interface{}{}, 1, nil
	}
	if len(buf) < 1+width {
		return nil, 0, errShortBuffer
	}
	size, ok := ReadSize(buf[1:], width)
	if !ok {
		return nil, 0, errShortBuffer
	}
	total := 1 + width + int(size)
	if len(buf) < total {
		return nil, 0, errShortBuffer
	}
	var count uint32
	switch width {
	case 1:
		count = uint32(buf[1+width])
	case 4:
		count = binary.BigEndian.Uint32(buf[1+width : 1+width+4])
	}
	pos := 1 + width + width // past size field and count field (same width)
	elems := make([]interface{}, 0, count)
	for i := uint32(0); i < count; i++ {
		v, n, err := DecodeValue(buf[pos:total])
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, v)
		pos += n
	}
	if !isMap {
		return elems, total, nil
	}
	if len(elems)%2 != 0 {
		return nil, 0, fmt.Errorf("wireenc: map with odd element count")
	}
	m := make(map[string]interface{}, len(elems)/2)
	for i := 0; i < len(elems); i += 2 {
		key, ok := elems[i].(string)
		if !ok {
			return nil, 0, fmt.Errorf("wireenc: map key is not a string/symbol")
		}
		m[key] = elems[i+1]
	}
	return m, total, nil
}

// EncodeMap encodes m (string/symbol keys, values limited to the types
// the Write* helpers in this package support) as an AMQP map32.
func EncodeMap(m map[string]Value) []byte {
	var body []byte
	for k, v := range m {
		body = WriteSymbol(body, Symbol(k))
		body = v.encode(body)
	}
	var out []byte
	out = append(out, byte(typeCodeMap32))
	sizeIdx := len(out)
	out = append(out, 0, 0, 0, 0)
	preLen := len(out)
	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(m)*2))
	out = append(out, cnt[:]...)
	out = append(out, body...)
	size := uint32(len(out) - preLen)
	binary.BigEndian.PutUint32(out[sizeIdx:], size)
	return out
}

// Value is a tagged union used only to encode annotation-map values
// with EncodeMap; DecodeValue is used for reading arbitrary maps.
type Value struct {
	str    string
	isStr  bool
	strs   []string
	isList bool
	u      uint32
	isUint bool
}

// StringValue wraps a string/symbol value for EncodeMap.
func StringValue(s string) Value { return Value{str: s, isStr: true} }

// StringListValue wraps a list-of-strings value for EncodeMap.
func StringListValue(items []string) Value { return Value{strs: items, isList: true} }

// UintValue wraps a uint value for EncodeMap.
func UintValue(v uint32) Value { return Value{u: v, isUint: true} }

func (v Value) encode(buf []byte) []byte {
	switch {
	case v.isStr:
		return WriteString(buf, v.str)
	case v.isList:
		return WriteStringList(buf, v.strs)
	case v.isUint:
		return WriteUint(buf, v.u)
	default:
		return append(buf, byte(typeCodeNull))
	}
}
