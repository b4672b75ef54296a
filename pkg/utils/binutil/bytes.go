package binutil

import "math"

// ParseUint16 AB
func ParseUint16(buf []byte) uint16 {
	return uint16(buf[0])<<8 + uint16(buf[1])
}

// ParseUint16LittleEndian BA
func ParseUint16LittleEndian(buf []byte) uint16 {
	return uint16(buf[1])<<8 + uint16(buf[0])
}

// ParseUint32 ABCD
func ParseUint32(buf []byte) uint32 {
	return uint32(buf[0])<<24 +
		uint32(buf[1])<<16 +
		uint32(buf[2])<<8 +
		uint32(buf[3])
}

// ParseUint32LittleEndian DCBA
func ParseUint32LittleEndian(buf []byte) uint32 {
	return uint32(buf[3])<<24 +
		uint32(buf[2])<<16 +
		uint32(buf[1])<<8 +
		uint32(buf[0])
}

func ParseFloat32(buf []byte) float32 {
	return math.Float32frombits(ParseUint32(buf))
}

func ParseFloat32LittleEndian(buf []byte) float32 {
	return math.Float32frombits(ParseUint32LittleEndian(buf))
}

// WriteUint16 AB
func WriteUint16(buf []byte, value uint16) {
	buf[0] = byte(value >> 8)
	buf[1] = byte(value)
}

// WriteUint16LittleEndian BA
func WriteUint16LittleEndian(buf []byte, value uint16) {
	buf[1] = byte(value >> 8)
	buf[0] = byte(value)
}

// WriteUint32 ABCD
func WriteUint32(buf []byte, value uint32) {
	buf[0] = byte(value >> 24)
	buf[1] = byte(value >> 16)
	buf[2] = byte(value >> 8)
	buf[3] = byte(value)
}

// WriteUint32LittleEndian DCBA
func WriteUint32LittleEndian(buf []byte, value uint32) {
	buf[3] = byte(value >> 24)
	buf[2] = byte(value >> 16)
	buf[1] = byte(value >> 8)
	buf[0] = byte(value)
}

func WriteFloat32(buf []byte, value float32) {
	WriteUint32(buf, math.Float32bits(value))
}

func WriteFloat32LittleEndian(buf []byte, value float32) {
	WriteUint32LittleEndian(buf, math.Float32bits(value))
}

// Dup returns a copy of buf.
func Dup(buf []byte) []byte {
	b := make([]byte, len(buf))
	copy(b, buf)
	return b
}

// Registers splits a big-endian register image into 16-bit words. A trailing odd byte is dropped.
func Registers(buf []byte) []uint16 {
	words := make([]uint16, len(buf)/2)
	for i := range words {
		words[i] = ParseUint16(buf[i*2:])
	}
	return words
}
