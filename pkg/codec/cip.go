package codec

import (
	"errors"
	"fmt"

	"vfdgateway/pkg/utils/binutil"
)

/*
CIP request path, logical segments:
  class     20 cc
  instance  24 ii | 25 00 ii ii | 26 00 ii ii ii ii
  attribute 30 aa
*/

const (
	CIPGetAttributeSingle       = 0x0E
	CIPSetAttributeSingle       = 0x10
	CIPClassAssembly            = 0x04
	CIPClassParameter           = 0x0F
	CIPAttributeAssemblyData    = 3
	CIPAttributeParameter       = 1
	CIPStatusSuccess            = 0x00
	CIPStatusPathUnknown        = 0x05
	CIPStatusServiceUnsupported = 0x08
	CIPStatusInvalidValue       = 0x09
	CIPStatusNotSettable        = 0x0E
	CIPStatusNotEnoughData      = 0x13
	CIPStatusAttrUnsupported    = 0x14
	CIPStatusTooMuchData        = 0x15
	segmentClass8               = 0x20
	segmentInstance8            = 0x24
	segmentInstance16           = 0x25
	segmentInstance32           = 0x26
	segmentAttribute8           = 0x30
)

var ErrCIPMalformed = errors.New("malformed cip message")

var cipStatusText = map[uint8]string{
	CIPStatusPathUnknown:        "path destination unknown",
	CIPStatusServiceUnsupported: "service not supported",
	CIPStatusInvalidValue:       "invalid attribute value",
	CIPStatusNotSettable:        "attribute not settable",
	CIPStatusNotEnoughData:      "not enough data",
	CIPStatusAttrUnsupported:    "attribute not supported",
	CIPStatusTooMuchData:        "too much data",
	0x10:                        "device state conflict",
}

// CIPError is a CIP general status other than success.
type CIPError struct {
	Service uint8
	Status  uint8
}

func (e *CIPError) Error() string {
	text, ok := cipStatusText[e.Status]
	if !ok {
		text = "unknown status"
	}
	return fmt.Sprintf("cip service 0x%02X failed with status 0x%02X (%s)", e.Service, e.Status, text)
}

// Path addresses class/instance/attribute with logical segments.
type Path struct {
	Class     uint8
	Instance  uint32
	Attribute uint8
}

// Marshal encodes p as a padded logical segment path.
func (p Path) Marshal() []byte {
	buf := []byte{segmentClass8, p.Class}
	switch {
	case p.Instance > 0xFFFF:
		buf = append(buf, segmentInstance32, 0, 0, 0, 0, 0)
		binutil.WriteUint32LittleEndian(buf[len(buf)-4:], p.Instance)
	case p.Instance > 0xFF:
		buf = append(buf, segmentInstance16, 0, byte(p.Instance), byte(p.Instance>>8))
	default:
		buf = append(buf, segmentInstance8, byte(p.Instance))
	}
	return append(buf, segmentAttribute8, p.Attribute)
}

func ParsePath(buf []byte) (Path, error) {
	var p Path
	for i := 0; i < len(buf); {
		switch buf[i] {
		case segmentClass8:
			if i+1 >= len(buf) {
				return p, ErrCIPMalformed
			}
			p.Class = buf[i+1]
			i += 2
		case segmentInstance8:
			if i+1 >= len(buf) {
				return p, ErrCIPMalformed
			}
			p.Instance = uint32(buf[i+1])
			i += 2
		case segmentInstance16:
			if i+3 >= len(buf) {
				return p, ErrCIPMalformed
			}
			p.Instance = uint32(binutil.ParseUint16LittleEndian(buf[i+2:]))
			i += 4
		case segmentInstance32:
			if i+5 >= len(buf) {
				return p, ErrCIPMalformed
			}
			p.Instance = binutil.ParseUint32LittleEndian(buf[i+2:])
			i += 6
		case segmentAttribute8:
			if i+1 >= len(buf) {
				return p, ErrCIPMalformed
			}
			p.Attribute = buf[i+1]
			i += 2
		default:
			return p, fmt.Errorf("%w: segment 0x%02X", ErrCIPMalformed, buf[i])
		}
	}
	return p, nil
}
