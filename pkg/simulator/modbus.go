package simulator

import (
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/utils/binutil"
)

const (
	exceptionIllegalFunction = 0x01
	exceptionIllegalAddress  = 0x02
	exceptionIllegalValue    = 0x03
	exceptionGatewayTarget   = 0x0B
)

// serveModbus executes a decoded request and returns the response PDU fields.
func (d *Drive) serveModbus(r *codec.Request) (registers []byte, exception uint8) {
	switch r.FunctionCode {
	case constant.FunctionCodeReadHoldingRegisters, constant.FunctionCodeReadInputRegisters:
		if r.Value == 0 || r.Value > codec.MaxReadRegisters {
			return nil, exceptionIllegalValue
		}
		words, ok := d.getRange(uint32(r.Address), int(r.Value))
		if !ok {
			return nil, exceptionIllegalAddress
		}
		buf := make([]byte, len(words)*2)
		for i, w := range words {
			binutil.WriteUint16(buf[i*2:], w)
		}
		return buf, 0
	case constant.FunctionCodeWriteSingleRegister:
		d.Set(uint32(r.Address), r.Value)
		return nil, 0
	default:
		return nil, exceptionIllegalFunction
	}
}

func (d *Drive) modbusRTU(req []byte) ([]byte, bool) {
	r, err := codec.ParseRequestRTU(req)
	if err != nil || !d.answers(r.Unit) {
		// a slave ignores corrupt frames and frames for other slaves
		return nil, false
	}
	registers, exc := d.serveModbus(r)
	switch {
	case exc != 0:
		return codec.ExceptionResponseRTU(r.Unit, r.FunctionCode, exc), true
	case r.FunctionCode == constant.FunctionCodeWriteSingleRegister:
		return codec.WriteResponseRTU(r.Unit, r.Address, r.Value), true
	default:
		return codec.ReadResponseRTU(r.Unit, r.FunctionCode, registers), true
	}
}

func (d *Drive) modbusTCP(req []byte) ([]byte, bool) {
	r, err := codec.ParseRequestTCP(req)
	if err != nil {
		return nil, false
	}
	if !d.answers(r.Unit) && r.Unit != 0xFF {
		return codec.ExceptionResponseTCP(r.Transaction, r.Unit, r.FunctionCode, exceptionGatewayTarget), true
	}
	registers, exc := d.serveModbus(r)
	switch {
	case exc != 0:
		return codec.ExceptionResponseTCP(r.Transaction, r.Unit, r.FunctionCode, exc), true
	case r.FunctionCode == constant.FunctionCodeWriteSingleRegister:
		return codec.WriteResponseTCP(r.Transaction, r.Unit, r.Address, r.Value), true
	default:
		return codec.ReadResponseTCP(r.Transaction, r.Unit, r.FunctionCode, registers), true
	}
}
