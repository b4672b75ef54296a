package codec

import (
	"errors"
	"fmt"
	"math"

	"vfdgateway/pkg/utils/binutil"
)

/*
BACnet/IP  = BVLC(4) + NPDU
BVLC       = 81 0A length(2)             original unicast npdu
NPDU       = 01 04                       version, expecting reply
APDU read  = 00 05 invoke 0C             confirmed request, service ReadProperty
             0C oid(4) 19 pid            context tags 0 and 1
APDU ack   = 30 invoke 0C 0C oid(4) 19 pid 3E value 3F
MS/TP frames carry the NPDU without BVLC.
*/

const (
	BVLCType              = 0x81
	BVLCOriginalUnicast   = 0x0A
	bvlcHeaderLength      = 4
	npduVersion           = 0x01
	npduExpectingReply    = 0x04
	PropertyPresentValue  = 85
	ServiceReadProperty   = 12
	ServiceWriteProperty  = 15
	MaxObjectInstance     = 0x3FFFFF
	pduConfirmedRequest   = 0x00
	pduSimpleAck          = 0x20
	pduComplexAck         = 0x30
	pduError              = 0x50
	pduReject             = 0x60
	pduAbort              = 0x70
	maxAPDU1476           = 0x05
	tagOpening3           = 0x3E
	tagClosing3           = 0x3F
	appTagNull            = 0
	appTagBoolean         = 1
	appTagUnsigned        = 2
	appTagSigned          = 3
	appTagReal            = 4
	appTagEnumerated      = 9
	contextObjectID       = 0x0C
	contextPropertyID     = 0x19
	contextWritePriority4 = 0x49
)

// Object types used by drives.
const (
	ObjectAnalogInput      uint16 = 0
	ObjectAnalogOutput     uint16 = 1
	ObjectAnalogValue      uint16 = 2
	ObjectBinaryInput      uint16 = 3
	ObjectBinaryOutput     uint16 = 4
	ObjectBinaryValue      uint16 = 5
	ObjectDevice           uint16 = 8
	ObjectMultiStateInput  uint16 = 13
	ObjectMultiStateOutput uint16 = 14
	ObjectMultiStateValue  uint16 = 19
)

var (
	ErrBACnetMalformed = errors.New("malformed bacnet frame")
	ErrBACnetInvoke    = errors.New("bacnet invoke id mismatch")
	ErrBACnetService   = errors.New("unexpected bacnet service")
	ErrBACnetValue     = errors.New("unsupported bacnet application value")
)

// BACnetError is an Error, Reject or Abort PDU.
type BACnetError struct {
	PDU   uint8
	Class uint8
	Code  uint8
}

func (e *BACnetError) Error() string {
	switch e.PDU {
	case pduReject:
		return fmt.Sprintf("bacnet reject reason %d", e.Code)
	case pduAbort:
		return fmt.Sprintf("bacnet abort reason %d", e.Code)
	default:
		return fmt.Sprintf("bacnet error class %d code %d", e.Class, e.Code)
	}
}

// ObjectID packs a 10 bit type and a 22 bit instance.
type ObjectID struct {
	Type     uint16
	Instance uint32
}

func (o ObjectID) encode() uint32 {
	return uint32(o.Type)<<22 | o.Instance&MaxObjectInstance
}

func decodeObjectID(v uint32) ObjectID {
	return ObjectID{Type: uint16(v >> 22), Instance: v & MaxObjectInstance}
}

func (o ObjectID) String() string {
	return fmt.Sprintf("%d:%d", o.Type, o.Instance)
}

// Value is a Present-Value: REAL for analog objects, ENUMERATED for binary, UNSIGNED for
// multi-state.
type Value struct {
	Tag   uint8
	Float float64
}

// ValueFor picks the application type an object of type t expects.
func ValueFor(t uint16, v float64) Value {
	switch t {
	case ObjectBinaryInput, ObjectBinaryOutput, ObjectBinaryValue:
		return Value{Tag: appTagEnumerated, Float: v}
	case ObjectMultiStateInput, ObjectMultiStateOutput, ObjectMultiStateValue:
		return Value{Tag: appTagUnsigned, Float: v}
	default:
		return Value{Tag: appTagReal, Float: v}
	}
}

func appendUnsigned(buf []byte, tag uint8, v uint32) []byte {
	switch {
	case v <= 0xFF:
		return append(buf, tag<<4|1, byte(v))
	case v <= 0xFFFF:
		return append(buf, tag<<4|2, byte(v>>8), byte(v))
	case v <= 0xFFFFFF:
		return append(buf, tag<<4|3, byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(buf, tag<<4|4, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

func (v Value) appendTo(buf []byte) []byte {
	switch v.Tag {
	case appTagReal:
		b := make([]byte, 4)
		binutil.WriteFloat32(b, float32(v.Float))
		return append(append(buf, appTagReal<<4|4), b...)
	case appTagSigned:
		n := int32(math.Round(v.Float))
		return append(buf, appTagSigned<<4|4, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	case appTagBoolean:
		if v.Float != 0 {
			return append(buf, appTagBoolean<<4|1)
		}
		return append(buf, appTagBoolean<<4)
	default:
		f := math.Round(v.Float)
		if f < 0 {
			f = 0
		}
		return appendUnsigned(buf, v.Tag, uint32(f))
	}
}

func decodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrBACnetMalformed
	}
	tag := buf[0] >> 4
	n := int(buf[0] & 0x07)
	if buf[0]&0x08 != 0 {
		return Value{}, 0, ErrBACnetValue
	}
	if tag == appTagBoolean {
		return Value{Tag: tag, Float: float64(n)}, 1, nil
	}
	if tag == appTagNull {
		return Value{Tag: tag}, 1, nil
	}
	if n > 4 || len(buf) < 1+n {
		return Value{}, 0, ErrBACnetMalformed
	}
	data := buf[1 : 1+n]
	switch tag {
	case appTagReal:
		if n != 4 {
			return Value{}, 0, ErrBACnetMalformed
		}
		return Value{Tag: tag, Float: float64(binutil.ParseFloat32(data))}, 1 + n, nil
	case appTagUnsigned, appTagEnumerated:
		var u uint32
		for _, b := range data {
			u = u<<8 | uint32(b)
		}
		return Value{Tag: tag, Float: float64(u)}, 1 + n, nil
	case appTagSigned:
		var s int32
		if n > 0 && data[0]&0x80 != 0 {
			s = -1
		}
		for _, b := range data {
			s = s<<8 | int32(b)
		}
		return Value{Tag: tag, Float: float64(s)}, 1 + n, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: tag %d", ErrBACnetValue, tag)
	}
}

func appendObjectProperty(buf []byte, oid ObjectID, property uint8) []byte {
	b := make([]byte, 4)
	binutil.WriteUint32(b, oid.encode())
	buf = append(buf, contextObjectID)
	buf = append(buf, b...)
	return append(buf, contextPropertyID, property)
}

func confirmedRequest(invoke, service uint8) []byte {
	return []byte{pduConfirmedRequest, maxAPDU1476, invoke, service}
}

// ReadPropertyAPDU requests the Present-Value of oid.
func ReadPropertyAPDU(invoke uint8, oid ObjectID) []byte {
	return appendObjectProperty(confirmedRequest(invoke, ServiceReadProperty), oid, PropertyPresentValue)
}

// WritePropertyAPDU writes the Present-Value of oid at priority when priority is 1..16.
func WritePropertyAPDU(invoke uint8, oid ObjectID, v Value, priority uint8) []byte {
	buf := appendObjectProperty(confirmedRequest(invoke, ServiceWriteProperty), oid, PropertyPresentValue)
	buf = append(buf, tagOpening3)
	buf = v.appendTo(buf)
	buf = append(buf, tagClosing3)
	if priority >= 1 && priority <= 16 {
		buf = append(buf, contextWritePriority4, priority)
	}
	return buf
}

// NPDU prefixes an APDU with the network layer header.
func NPDU(apdu []byte, expectReply bool) []byte {
	control := byte(0)
	if expectReply {
		control = npduExpectingReply
	}
	return append([]byte{npduVersion, control}, apdu...)
}

// BVLC wraps an NPDU for BACnet/IP.
func BVLC(npdu []byte) []byte {
	buf := make([]byte, bvlcHeaderLength, bvlcHeaderLength+len(npdu))
	buf[0] = BVLCType
	buf[1] = BVLCOriginalUnicast
	binutil.WriteUint16(buf[2:], uint16(len(npdu)+bvlcHeaderLength))
	return append(buf, npdu...)
}

// StripBVLC returns the NPDU carried by a BACnet/IP datagram.
func StripBVLC(buf []byte) ([]byte, error) {
	if len(buf) < bvlcHeaderLength || buf[0] != BVLCType {
		return nil, ErrBACnetMalformed
	}
	if int(binutil.ParseUint16(buf[2:])) != len(buf) {
		return nil, ErrBACnetMalformed
	}
	return buf[bvlcHeaderLength:], nil
}

// APDU strips the network header. Routed NPDUs (with DNET/SNET) are not supported.
func APDU(npdu []byte) ([]byte, error) {
	if len(npdu) < 3 || npdu[0] != npduVersion || npdu[1]&0x28 != 0 {
		return nil, ErrBACnetMalformed
	}
	return npdu[2:], nil
}

// InvokeID of a confirmed request or of any reply to one.
func InvokeID(apdu []byte) (uint8, bool) {
	if len(apdu) < 3 {
		return 0, false
	}
	if apdu[0]&0xF0 == pduConfirmedRequest {
		return apdu[2], true
	}
	return apdu[1], true
}

func checkReply(req, resp []byte, service uint8) error {
	if len(resp) < 2 {
		return ErrBACnetMalformed
	}
	if resp[1] != req[2] {
		return ErrBACnetInvoke
	}
	switch resp[0] & 0xF0 {
	case pduError:
		if len(resp) < 7 {
			return ErrBACnetMalformed
		}
		// 91 class 91 code
		return &BACnetError{PDU: pduError, Class: resp[4], Code: resp[6]}
	case pduReject, pduAbort:
		if len(resp) < 3 {
			return ErrBACnetMalformed
		}
		return &BACnetError{PDU: resp[0] & 0xF0, Code: resp[2]}
	}
	if len(resp) < 3 || resp[2] != service {
		return ErrBACnetService
	}
	return nil
}

// ParseReadPropertyAck returns the Present-Value carried by a ComplexACK.
func ParseReadPropertyAck(req, resp []byte) (Value, error) {
	if err := checkReply(req, resp, ServiceReadProperty); err != nil {
		return Value{}, err
	}
	// 30 invoke 0C 0C oid(4) 19 pid 3E
	const valueAt = 11
	if resp[0]&0xF0 != pduComplexAck || len(resp) < valueAt+2 || resp[valueAt-1] != tagOpening3 {
		return Value{}, ErrBACnetMalformed
	}
	v, n, err := decodeValue(resp[valueAt:])
	if err != nil {
		return Value{}, err
	}
	if len(resp) < valueAt+n+1 || resp[valueAt+n] != tagClosing3 {
		return Value{}, ErrBACnetMalformed
	}
	return v, nil
}

func ParseWritePropertyAck(req, resp []byte) error {
	if err := checkReply(req, resp, ServiceWriteProperty); err != nil {
		return err
	}
	if resp[0]&0xF0 != pduSimpleAck {
		return ErrBACnetMalformed
	}
	return nil
}

// PropertyRequest is a decoded ReadProperty or WriteProperty request.
type PropertyRequest struct {
	Invoke   uint8
	Service  uint8
	Object   ObjectID
	Property uint8
	Value    Value
	Priority uint8
}

// ParsePropertyRequest is the device side of ReadPropertyAPDU and WritePropertyAPDU.
func ParsePropertyRequest(apdu []byte) (*PropertyRequest, error) {
	// 00 05 invoke service 0C oid(4) 19 pid
	if len(apdu) < 11 || apdu[0]&0xF0 != pduConfirmedRequest || apdu[4] != contextObjectID || apdu[9] != contextPropertyID {
		return nil, ErrBACnetMalformed
	}
	r := &PropertyRequest{
		Invoke:   apdu[2],
		Service:  apdu[3],
		Object:   decodeObjectID(binutil.ParseUint32(apdu[5:])),
		Property: apdu[10],
	}
	switch r.Service {
	case ServiceReadProperty:
		return r, nil
	case ServiceWriteProperty:
		if len(apdu) < 14 || apdu[11] != tagOpening3 {
			return nil, ErrBACnetMalformed
		}
		v, n, err := decodeValue(apdu[12:])
		if err != nil {
			return nil, err
		}
		end := 12 + n
		if len(apdu) <= end || apdu[end] != tagClosing3 {
			return nil, ErrBACnetMalformed
		}
		r.Value = v
		if len(apdu) >= end+3 && apdu[end+1] == contextWritePriority4 {
			r.Priority = apdu[end+2]
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBACnetService, r.Service)
	}
}

func ReadPropertyAck(invoke uint8, oid ObjectID, property uint8, v Value) []byte {
	buf := []byte{pduComplexAck, invoke, ServiceReadProperty}
	buf = appendObjectProperty(buf, oid, property)
	buf = append(buf, tagOpening3)
	buf = v.appendTo(buf)
	return append(buf, tagClosing3)
}

func SimpleAck(invoke, service uint8) []byte {
	return []byte{pduSimpleAck, invoke, service}
}

// ErrorPDU answers with an error class and code, both ENUMERATED.
func ErrorPDU(invoke, service, class, code uint8) []byte {
	return []byte{pduError, invoke, service, appTagEnumerated<<4 | 1, class, appTagEnumerated<<4 | 1, code}
}

// Error classes and codes answered for unknown objects and properties.
const (
	ErrorClassObject         = 1
	ErrorClassProperty       = 2
	ErrorCodeUnknownObject   = 31
	ErrorCodeUnknownProperty = 32
)
