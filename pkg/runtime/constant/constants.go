package constant

import "errors"

var (
	ErrProtocol            = errors.New("unsupported protocol")
	ErrBrand               = errors.New("unsupported brand")
	ErrConnectDevice       = errors.New("unable to connect to device")
	ErrDeviceServerClosed  = errors.New("device server closed")
	ErrDeviceEmptyVariable = errors.New("device has no readable parameters")
	ErrTransportClosed     = errors.New("transport closed")
)

// Function codes shared by every adapter. Fieldbus adapters reuse the Modbus read codes for
// cyclic process data and FunctionCodeParameter for their acyclic parameter service.
const (
	FunctionCodeReadHoldingRegisters uint8 = 0x03
	FunctionCodeReadInputRegisters   uint8 = 0x04
	FunctionCodeWriteSingleRegister  uint8 = 0x06
	FunctionCodeParameter            uint8 = 0x40
)
