package transport

import (
	"encoding/binary"
	"errors"
)

// CANFrameLength is sizeof(struct can_frame) on Linux.
const CANFrameLength = 16

var ErrCANFrame = errors.New("malformed can frame")

// CANFrame is a classic CAN 2.0A/B frame.
type CANFrame struct {
	ID   uint32
	Data []byte
}

// Marshal lays the frame out as struct can_frame: id (host order, little-endian hosts), dlc,
// three pad bytes, eight data bytes.
func (f CANFrame) Marshal() []byte {
	buf := make([]byte, CANFrameLength)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID)
	n := len(f.Data)
	if n > 8 {
		n = 8
	}
	buf[4] = byte(n)
	copy(buf[8:], f.Data[:n])
	return buf
}

func UnmarshalCANFrame(buf []byte) (CANFrame, error) {
	if len(buf) < CANFrameLength || buf[4] > 8 {
		return CANFrame{}, ErrCANFrame
	}
	n := int(buf[4])
	return CANFrame{
		ID:   binary.LittleEndian.Uint32(buf[0:4]),
		Data: append([]byte(nil), buf[8:8+n]...),
	}, nil
}
