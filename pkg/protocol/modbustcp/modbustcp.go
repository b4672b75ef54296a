// Package modbustcp reaches drives over Ethernet with Modbus TCP (MBAP) framing.
package modbustcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/atomic"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/protocol/modbusrtu"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
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

func (d *driver) Protocol() constant.Protocol { return constant.ModbusTCP }
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
	return &session{client: client, config: c}, nil
}

type session struct {
	client      *transport.Client
	config      Config
	transaction atomic.Uint32
}

// nextTransaction increments the MBAP transaction id, wrapping at 65536.
func (s *session) nextTransaction() uint16 {
	return uint16(s.transaction.Inc())
}

func permanent(err error) error {
	var exc *codec.ExceptionError
	if errors.As(err, &exc) {
		return transport.Permanent(err)
	}
	return err
}

func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	if err := modbusrtu.CheckRead(address, count, functionCode); err != nil {
		return nil, err
	}
	var registers []byte
	_, err := s.client.Do(ctx,
		func() []byte {
			return codec.ReadRequestTCP(s.nextTransaction(), s.config.UnitID, functionCode, uint16(address), count)
		},
		func(req, resp []byte) error {
			buf, err := codec.ParseReadResponseTCP(req, resp)
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
		return fmt.Errorf("%w: %d", modbusrtu.ErrAddressRange, address)
	}
	_, err := s.client.Do(ctx,
		func() []byte {
			return codec.WriteSingleRegisterTCP(s.nextTransaction(), s.config.UnitID, uint16(address), value)
		},
		func(req, resp []byte) error { return permanent(codec.ParseWriteResponseTCP(req, resp)) })
	return err
}

// Probe reads holding register 0; a Modbus exception still proves the unit answers.
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
		"address": s.client.Endpoint().Address,
		"unitId":  strconv.Itoa(int(s.config.UnitID)),
	}
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
