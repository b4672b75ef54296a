package codec

import (
	"errors"
	"fmt"

	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/utils/binutil"
)

/*
Modbus RTU ADU = slave(1) + pdu + crc16(2)
Modbus TCP ADU = MBAP(7) + pdu
MBAP = transaction(2) + protocol(2, always 0) + length(2, unit+pdu) + unit(1)

01 03 00 00 00 0A C5 CD
01    slave
03    function code
00 00 start address
00 0A register count
C5 CD crc16
*/

const (
	MBAPHeaderLength      = 7
	MaxReadRegisters      = 125
	rtuReadResponseHeader = 3
	rtuExceptionLength    = 5
	rtuWriteLength        = 8
	exceptionFlag         = 0x80
)

var (
	ErrMessageTooShort       = errors.New("modbus message too short")
	ErrCRC16                 = errors.New("modbus rtu crc16 mismatch")
	ErrMessageSlave          = errors.New("modbus response slave mismatch")
	ErrMessageFunctionCode   = errors.New("modbus response function code mismatch")
	ErrMessageTransaction    = errors.New("modbus tcp transaction id mismatch")
	ErrMessageProtocol       = errors.New("modbus tcp protocol id is not zero")
	ErrMessageByteCount      = errors.New("modbus response byte count mismatch")
	ErrMessageEcho           = errors.New("modbus write response does not echo request")
	ErrUnsupportedRequestPDU = errors.New("unsupported modbus request")
)

var exceptionText = map[uint8]string{
	0x01: "illegal function",
	0x02: "illegal data address",
	0x03: "illegal data value",
	0x04: "server device failure",
	0x05: "acknowledge",
	0x06: "server device busy",
	0x08: "memory parity error",
	0x0A: "gateway path unavailable",
	0x0B: "gateway target failed to respond",
}

// ExceptionError is a Modbus exception response (function code with the high bit set).
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	text, ok := exceptionText[e.Code]
	if !ok {
		text = "unknown exception"
	}
	return fmt.Sprintf("modbus exception 0x%02X (%s) on function 0x%02X", e.Code, text, e.FunctionCode)
}

// Request is a decoded read or write-single request PDU.
type Request struct {
	Unit         uint8
	Transaction  uint16
	FunctionCode uint8
	Address      uint16
	// Quantity for reads, the register value for FunctionCodeWriteSingleRegister.
	Value uint16
}

func pdu(fc uint8, a, b uint16) []byte {
	p := make([]byte, 5)
	p[0] = fc
	binutil.WriteUint16(p[1:], a)
	binutil.WriteUint16(p[3:], b)
	return p
}

func rtuFrame(slave uint8, p []byte) []byte {
	frame := make([]byte, 0, len(p)+3)
	frame = append(frame, slave)
	frame = append(frame, p...)
	crc := make([]byte, 2)
	binutil.WriteUint16(crc, CRC16(frame))
	return append(frame, crc...)
}

func tcpFrame(transaction uint16, unit uint8, p []byte) []byte {
	frame := make([]byte, MBAPHeaderLength, MBAPHeaderLength+len(p))
	binutil.WriteUint16(frame[0:], transaction)
	binutil.WriteUint16(frame[4:], uint16(len(p)+1))
	frame[6] = unit
	return append(frame, p...)
}

// ReadRequestRTU builds an 8 byte RTU read request.
func ReadRequestRTU(slave, fc uint8, start, quantity uint16) []byte {
	return rtuFrame(slave, pdu(fc, start, quantity))
}

func WriteSingleRegisterRTU(slave uint8, address, value uint16) []byte {
	return rtuFrame(slave, pdu(constant.FunctionCodeWriteSingleRegister, address, value))
}

// ReadRequestTCP builds a 12 byte Modbus TCP read request.
func ReadRequestTCP(transaction uint16, unit, fc uint8, start, quantity uint16) []byte {
	return tcpFrame(transaction, unit, pdu(fc, start, quantity))
}

func WriteSingleRegisterTCP(transaction uint16, unit uint8, address, value uint16) []byte {
	return tcpFrame(transaction, unit, pdu(constant.FunctionCodeWriteSingleRegister, address, value))
}

// ReadResponseLengthRTU is the length of a successful RTU read response for quantity registers.
func ReadResponseLengthRTU(quantity uint16) int {
	return int(quantity)*2 + 5
}

// VerifyCRC checks the trailing two bytes of an RTU frame.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	n := len(frame) - 2
	return CRC16(frame[:n]) == binutil.ParseUint16(frame[n:])
}

func exception(fc, code uint8) error {
	return &ExceptionError{FunctionCode: fc &^ exceptionFlag, Code: code}
}

// ParseReadResponseRTU validates resp against req and returns the register bytes.
func ParseReadResponseRTU(req, resp []byte) ([]byte, error) {
	if len(resp) < rtuExceptionLength {
		return nil, ErrMessageTooShort
	}
	if resp[0] != req[0] {
		return nil, ErrMessageSlave
	}
	if resp[1]&exceptionFlag != 0 {
		if !VerifyCRC(resp[:rtuExceptionLength]) {
			return nil, ErrCRC16
		}
		return nil, exception(resp[1], resp[2])
	}
	if resp[1] != req[1] {
		return nil, ErrMessageFunctionCode
	}
	byteCount := int(resp[2])
	if byteCount != int(binutil.ParseUint16(req[4:]))*2 {
		return nil, ErrMessageByteCount
	}
	end := rtuReadResponseHeader + byteCount
	if len(resp) < end+2 {
		return nil, ErrMessageTooShort
	}
	if !VerifyCRC(resp[:end+2]) {
		return nil, ErrCRC16
	}
	return binutil.Dup(resp[rtuReadResponseHeader:end]), nil
}

// ParseWriteResponseRTU checks that resp echoes a write single register request.
func ParseWriteResponseRTU(req, resp []byte) error {
	if len(resp) >= rtuExceptionLength && resp[1]&exceptionFlag != 0 {
		if !VerifyCRC(resp[:rtuExceptionLength]) {
			return ErrCRC16
		}
		return exception(resp[1], resp[2])
	}
	if len(resp) < rtuWriteLength {
		return ErrMessageTooShort
	}
	if !VerifyCRC(resp[:rtuWriteLength]) {
		return ErrCRC16
	}
	for i := 0; i < rtuWriteLength-2; i++ {
		if resp[i] != req[i] {
			return ErrMessageEcho
		}
	}
	return nil
}

func checkMBAP(req, resp []byte) error {
	if len(resp) < MBAPHeaderLength+2 {
		return ErrMessageTooShort
	}
	if binutil.ParseUint16(resp[0:]) != binutil.ParseUint16(req[0:]) {
		return ErrMessageTransaction
	}
	if binutil.ParseUint16(resp[2:]) != 0 {
		return ErrMessageProtocol
	}
	if resp[6] != req[6] {
		return ErrMessageSlave
	}
	if resp[7]&exceptionFlag != 0 {
		return exception(resp[7], resp[8])
	}
	if resp[7] != req[7] {
		return ErrMessageFunctionCode
	}
	return nil
}

// ParseReadResponseTCP validates the MBAP header and byte count and returns the register bytes.
func ParseReadResponseTCP(req, resp []byte) ([]byte, error) {
	if err := checkMBAP(req, resp); err != nil {
		return nil, err
	}
	byteCount := int(resp[8])
	if byteCount != int(binutil.ParseUint16(req[10:]))*2 {
		return nil, ErrMessageByteCount
	}
	if len(resp) < MBAPHeaderLength+2+byteCount {
		return nil, ErrMessageTooShort
	}
	return binutil.Dup(resp[MBAPHeaderLength+2 : MBAPHeaderLength+2+byteCount]), nil
}

func ParseWriteResponseTCP(req, resp []byte) error {
	if err := checkMBAP(req, resp); err != nil {
		return err
	}
	if len(resp) < len(req) {
		return ErrMessageTooShort
	}
	for i := MBAPHeaderLength; i < len(req); i++ {
		if resp[i] != req[i] {
			return ErrMessageEcho
		}
	}
	return nil
}

// ParseRequestRTU decodes a read or write single register request, the slave side of
// ReadRequestRTU and WriteSingleRegisterRTU.
func ParseRequestRTU(frame []byte) (*Request, error) {
	if len(frame) < rtuWriteLength {
		return nil, ErrMessageTooShort
	}
	if !VerifyCRC(frame[:rtuWriteLength]) {
		return nil, ErrCRC16
	}
	return &Request{
		Unit:         frame[0],
		FunctionCode: frame[1],
		Address:      binutil.ParseUint16(frame[2:]),
		Value:        binutil.ParseUint16(frame[4:]),
	}, nil
}

func ParseRequestTCP(frame []byte) (*Request, error) {
	if len(frame) < MBAPHeaderLength+5 {
		return nil, ErrMessageTooShort
	}
	if binutil.ParseUint16(frame[2:]) != 0 {
		return nil, ErrMessageProtocol
	}
	return &Request{
		Transaction:  binutil.ParseUint16(frame[0:]),
		Unit:         frame[6],
		FunctionCode: frame[7],
		Address:      binutil.ParseUint16(frame[8:]),
		Value:        binutil.ParseUint16(frame[10:]),
	}, nil
}

func readResponsePDU(fc uint8, registers []byte) []byte {
	p := make([]byte, 0, len(registers)+2)
	p = append(p, fc, byte(len(registers)))
	return append(p, registers...)
}

// ReadResponseRTU builds a successful read response carrying registers.
func ReadResponseRTU(slave, fc uint8, registers []byte) []byte {
	return rtuFrame(slave, readResponsePDU(fc, registers))
}

func ReadResponseTCP(transaction uint16, unit, fc uint8, registers []byte) []byte {
	return tcpFrame(transaction, unit, readResponsePDU(fc, registers))
}

func WriteResponseRTU(slave uint8, address, value uint16) []byte {
	return WriteSingleRegisterRTU(slave, address, value)
}

func WriteResponseTCP(transaction uint16, unit uint8, address, value uint16) []byte {
	return WriteSingleRegisterTCP(transaction, unit, address, value)
}

func ExceptionResponseRTU(slave, fc, code uint8) []byte {
	return rtuFrame(slave, []byte{fc | exceptionFlag, code})
}

func ExceptionResponseTCP(transaction uint16, unit, fc, code uint8) []byte {
	return tcpFrame(transaction, unit, []byte{fc | exceptionFlag, code})
}

// FrameLengthRTU reports the length of the RTU response starting with buf, or 0 when more bytes
// are needed. It delimits responses on serial links where no length prefix exists.
func FrameLengthRTU(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	fc := buf[1]
	switch {
	case fc&exceptionFlag != 0:
		return rtuExceptionLength, nil
	case fc == constant.FunctionCodeReadHoldingRegisters || fc == constant.FunctionCodeReadInputRegisters:
		if len(buf) < rtuReadResponseHeader {
			return 0, nil
		}
		return rtuReadResponseHeader + int(buf[2]) + 2, nil
	case fc == constant.FunctionCodeWriteSingleRegister:
		return rtuWriteLength, nil
	default:
		return 0, fmt.Errorf("%w: function 0x%02X", ErrUnsupportedRequestPDU, fc)
	}
}
