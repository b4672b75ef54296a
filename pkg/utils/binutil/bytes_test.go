package binutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	WriteUint32(buf, 0x01020304)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	assert.Equal(t, uint32(0x01020304), ParseUint32(buf))

	WriteUint32LittleEndian(buf, 0x01020304)
	assert.Equal(t, []byte{4, 3, 2, 1}, buf)
	assert.Equal(t, uint32(0x01020304), ParseUint32LittleEndian(buf))
}

func TestFloat32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	WriteFloat32(buf, 49.5)
	assert.Equal(t, float32(49.5), ParseFloat32(buf))
	WriteFloat32LittleEndian(buf, -12.25)
	assert.Equal(t, float32(-12.25), ParseFloat32LittleEndian(buf))
}

func TestRegisters(t *testing.T) {
	assert.Equal(t, []uint16{0x0102, 0x0304}, Registers([]byte{1, 2, 3, 4, 5}))
}
