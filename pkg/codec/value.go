// Package codec holds the pure encoding functions shared by every protocol adapter: typed
// register values, engineering-unit scaling, the Modbus CRC and Modbus RTU/TCP frames.
package codec

import (
	"errors"
	"fmt"
	"math"

	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/utils/binutil"
)

var ErrShortBuffer = errors.New("buffer shorter than data type")

// CheckLength reports whether buf carries enough bytes for dt.
func CheckLength(buf []byte, dt constant.DataType) error {
	if len(buf) < dt.Bytes() {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortBuffer, dt, dt.Bytes(), len(buf))
	}
	return nil
}

// ParseValue decodes buf as dt. A buffer shorter than dt requires yields 0; callers that need
// strict validation use CheckLength first.
func ParseValue(buf []byte, dt constant.DataType, byteOrder, wordOrder constant.ByteOrder) float64 {
	if CheckLength(buf, dt) != nil {
		return 0
	}
	switch dt {
	case constant.UINT16, constant.CONTROL_WORD, constant.STATUS_WORD:
		return float64(word(buf, byteOrder))
	case constant.INT16:
		return float64(int16(word(buf, byteOrder)))
	case constant.UINT32:
		return float64(dword(buf, byteOrder, wordOrder))
	case constant.INT32:
		return float64(int32(dword(buf, byteOrder, wordOrder)))
	case constant.FLOAT32:
		if byteOrder == constant.LittleEndian {
			return float64(binutil.ParseFloat32LittleEndian(buf))
		}
		return float64(binutil.ParseFloat32(buf))
	default:
		return 0
	}
}

// EncodeValue is the inverse of ParseValue. Integer types are rounded half away from zero and
// truncated to their width.
func EncodeValue(value float64, dt constant.DataType, byteOrder, wordOrder constant.ByteOrder) []byte {
	buf := make([]byte, dt.Bytes())
	switch dt {
	case constant.UINT16, constant.CONTROL_WORD, constant.STATUS_WORD, constant.INT16:
		putWord(buf, uint16(int64(math.Round(value))), byteOrder)
	case constant.UINT32, constant.INT32:
		v := uint32(int64(math.Round(value)))
		high, low := uint16(v>>16), uint16(v)
		if wordOrder == constant.LittleEndian {
			high, low = low, high
		}
		putWord(buf[0:2], high, byteOrder)
		putWord(buf[2:4], low, byteOrder)
	case constant.FLOAT32:
		if byteOrder == constant.LittleEndian {
			binutil.WriteFloat32LittleEndian(buf, float32(value))
		} else {
			binutil.WriteFloat32(buf, float32(value))
		}
	}
	return buf
}

func word(buf []byte, order constant.ByteOrder) uint16 {
	if order == constant.LittleEndian {
		return binutil.ParseUint16LittleEndian(buf)
	}
	return binutil.ParseUint16(buf)
}

func putWord(buf []byte, v uint16, order constant.ByteOrder) {
	if order == constant.LittleEndian {
		binutil.WriteUint16LittleEndian(buf, v)
		return
	}
	binutil.WriteUint16(buf, v)
}

// dword composes (high<<16)|low where wordOrder decides which word comes first on the wire.
func dword(buf []byte, byteOrder, wordOrder constant.ByteOrder) uint32 {
	first, second := word(buf[0:2], byteOrder), word(buf[2:4], byteOrder)
	high, low := first, second
	if wordOrder == constant.LittleEndian {
		high, low = second, first
	}
	return uint32(high)<<16 | uint32(low)
}
