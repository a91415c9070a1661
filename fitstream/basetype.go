package fitstream

import (
	"encoding/binary"
	"math"
)

type baseType uint8

const (
	baseEnum    baseType = 0x00
	baseSint8   baseType = 0x01
	baseUint8   baseType = 0x02
	baseSint16  baseType = 0x83
	baseUint16  baseType = 0x84
	baseSint32  baseType = 0x85
	baseUint32  baseType = 0x86
	baseString  baseType = 0x07
	baseFloat32 baseType = 0x88
	baseFloat64 baseType = 0x89
	baseUint8z  baseType = 0x0A
	baseUint16z baseType = 0x8B
	baseUint32z baseType = 0x8C
	baseByte    baseType = 0x0D
	baseSint64  baseType = 0x8E
	baseUint64  baseType = 0x8F
	baseUint64z baseType = 0x90
)

var baseSizes = map[baseType]int{
	baseEnum:    1,
	baseSint8:   1,
	baseUint8:   1,
	baseSint16:  2,
	baseUint16:  2,
	baseSint32:  4,
	baseUint32:  4,
	baseString:  1,
	baseFloat32: 4,
	baseFloat64: 8,
	baseUint8z:  1,
	baseUint16z: 2,
	baseUint32z: 4,
	baseByte:    1,
	baseSint64:  8,
	baseUint64:  8,
	baseUint64z: 8,
}

// normalizeBaseType maps the low five bits of a definition's base type byte
// onto the canonical base type, ignoring the endian-ability flag.
func normalizeBaseType(b byte) baseType {
	switch b & 0x1F {
	case 0x03:
		return baseSint16
	case 0x04:
		return baseUint16
	case 0x05:
		return baseSint32
	case 0x06:
		return baseUint32
	case 0x08:
		return baseFloat32
	case 0x09:
		return baseFloat64
	case 0x0B:
		return baseUint16z
	case 0x0C:
		return baseUint32z
	case 0x0E:
		return baseSint64
	case 0x0F:
		return baseUint64
	case 0x10:
		return baseUint64z
	default:
		return baseType(b & 0x1F)
	}
}

// decodeValue decodes one field. ok is false when the field holds only
// invalid values; such fields are left out of the message. Arrays keep their
// invalid elements so parallel arrays stay aligned.
func decodeValue(raw []byte, bt baseType, order binary.ByteOrder) (v any, ok bool) {
	switch bt {
	case baseString:
		s := cString(raw)
		return s, s != ""
	case baseByte:
		if allBytes(raw, 0xFF) {
			return nil, false
		}
		return append([]byte(nil), raw...), true
	}

	size, known := baseSizes[bt]
	if !known || size == 0 || len(raw)%size != 0 {
		return nil, false
	}
	count := len(raw) / size
	if count == 1 {
		return decodeScalar(raw, bt, order)
	}

	values := make([]any, 0, count)
	valid := 0
	for i := 0; i < count; i++ {
		x, ok := decodeScalar(raw[i*size:(i+1)*size], bt, order)
		if ok {
			valid++
		}
		values = append(values, x)
	}
	return values, valid > 0
}

func decodeScalar(raw []byte, bt baseType, order binary.ByteOrder) (any, bool) {
	switch bt {
	case baseEnum, baseUint8:
		return raw[0], raw[0] != 0xFF
	case baseSint8:
		v := int8(raw[0])
		return v, v != math.MaxInt8
	case baseUint8z:
		return raw[0], raw[0] != 0
	case baseSint16:
		v := int16(order.Uint16(raw))
		return v, v != math.MaxInt16
	case baseUint16:
		v := order.Uint16(raw)
		return v, v != math.MaxUint16
	case baseUint16z:
		v := order.Uint16(raw)
		return v, v != 0
	case baseSint32:
		v := int32(order.Uint32(raw))
		return v, v != math.MaxInt32
	case baseUint32:
		v := order.Uint32(raw)
		return v, v != math.MaxUint32
	case baseUint32z:
		v := order.Uint32(raw)
		return v, v != 0
	case baseFloat32:
		bits := order.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits != math.MaxUint32
	case baseFloat64:
		bits := order.Uint64(raw)
		return math.Float64frombits(bits), bits != math.MaxUint64
	case baseSint64:
		v := int64(order.Uint64(raw))
		return v, v != math.MaxInt64
	case baseUint64:
		v := order.Uint64(raw)
		return v, v != math.MaxUint64
	case baseUint64z:
		v := order.Uint64(raw)
		return v, v != 0
	default:
		return nil, false
	}
}

func cString(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func allBytes(raw []byte, value byte) bool {
	if len(raw) == 0 {
		return false
	}
	for _, b := range raw {
		if b != value {
			return false
		}
	}
	return true
}
