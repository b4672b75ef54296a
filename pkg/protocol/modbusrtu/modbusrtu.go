// Package modbusrtu reaches drives over RS-485 with Modbus RTU framing.
package modbusrtu

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

var (
	ErrAddressRange = errors.New("modbus register range outside 0..65535")
	ErrQuantity     = errors.New("modbus read quantity must be 1..125")
	ErrFunctionCode = errors.New("modbus read function code must be 3 or 4")
)

type Adapter struct {
	*adapter.Base
}

func New(dialer transport.Dialer, opts ...adapter.Option) *Adapter {
	return &Adapter{Base: adapter.NewBase(&driver{dialer: dialer}, opts...)}
}

type driver struct {
	dialer transport.Dialer
}

func (d *driver) Protocol() constant.Protocol { return constant.ModbusRTU }
func (d *driver) Schema() *adapter.Schema     { return schema }
func (d *driver) Batching() bool              { return true }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	client, err := transport.Dial(ctx, d.dialer, c.endpoint(), c.Retries)
	if err != nil {
		return nil, err
	}
	return &session{client: client, slave: c.SlaveID, config: c}, nil
}

type session struct {
	client *transport.Client
	slave  uint8
	config Config
}

// CheckRead validates a read before it is framed.
func CheckRead(address uint32, count uint16, functionCode uint8) error {
	if functionCode != constant.FunctionCodeReadHoldingRegisters && functionCode != constant.FunctionCodeReadInputRegisters {
		return fmt.Errorf("%w: 0x%02X", ErrFunctionCode, functionCode)
	}
	if count == 0 || count > codec.MaxReadRegisters {
		return fmt.Errorf("%w: %d", ErrQuantity, count)
	}
	if address+uint32(count) > 0x10000 {
		return fmt.Errorf("%w: %d+%d", ErrAddressRange, address, count)
	}
	return nil
}

// permanent stops retries on device exceptions: the drive answered and would answer the same.
func permanent(err error) error {
	var exc *codec.ExceptionError
	if errors.As(err, &exc) {
		return transport.Permanent(err)
	}
	return err
}

func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	if err := CheckRead(address, count, functionCode); err != nil {
		return nil, err
	}
	var registers []byte
	_, err := s.client.Do(ctx,
		func() []byte { return codec.ReadRequestRTU(s.slave, functionCode, uint16(address), count) },
		func(req, resp []byte) error {
			buf, err := codec.ParseReadResponseRTU(req, resp)
			if err != nil {
				return permanent(err)
			}
			registers = buf
			return nil
		})
	return registers, err
}

func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	if address > 0xFFFF {
		return fmt.Errorf("%w: %d", ErrAddressRange, address)
	}
	_, err := s.client.Do(ctx,
		func() []byte { return codec.WriteSingleRegisterRTU(s.slave, uint16(address), value) },
		func(req, resp []byte) error { return permanent(codec.ParseWriteResponseRTU(req, resp)) })
	return err
}

// Probe reads holding register 0. An exception still proves the slave is alive.
func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	buf, err := s.ReadRegisters(ctx, 0, 1, constant.FunctionCodeReadHoldingRegisters)
	var exc *codec.ExceptionError
	if errors.As(err, &exc) {
		return []uint16{}, nil
	}
	if err != nil {
		return nil, err
	}
	return binutil.Registers(buf), nil
}

func (s *session) Metadata() map[string]string {
	return map[string]string{
		"serialPort": s.config.SerialPort,
		"slaveId":    strconv.Itoa(int(s.slave)),
		"baudRate":   strconv.Itoa(s.config.BaudRate),
	}
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
