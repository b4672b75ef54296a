package codec

import (
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 returns the Modbus RTU CRC (poly 0xA001 reflected, seed 0xFFFF) with its bytes swapped,
// so writing the result big-endian puts the low byte of the register on the wire first.
func CRC16(buf []byte) uint16 {
	crc := crc16.Checksum(buf, crcTable)
	return crc<<8 | crc>>8
}
