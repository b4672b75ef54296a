// Package bacnet reads and writes drive objects with the ReadProperty and WriteProperty services
// over BACnet/IP or MS/TP. A register address names an object: type address/1000, instance
// address%1000, always property Present-Value.
package bacnet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/atomic"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

const maxObjectType = 1023

var (
	ErrObjectType = errors.New("object type exceeds 1023")
	ErrValueRange = errors.New("present value does not fit a 16-bit register")
)

type Adapter struct {
	*adapter.Base
}

// New serves BACnetIP or BACnetMSTP; the data link can still be overridden by the transport field.
func New(p constant.Protocol, dialer transport.Dialer, opts ...adapter.Option) *Adapter {
	s := ipSchema
	if p == constant.BACnetMSTP {
		s = mstpSchema
	}
	return &Adapter{Base: adapter.NewBase(&driver{protocol: p, schema: s, dialer: dialer}, opts...)}
}

type driver struct {
	protocol constant.Protocol
	schema   *adapter.Schema
	dialer   transport.Dialer
}

func (d *driver) Protocol() constant.Protocol { return d.protocol }
func (d *driver) Schema() *adapter.Schema     { return d.schema }
func (d *driver) Batching() bool              { return false }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	client, err := transport.Dial(ctx, d.dialer, c.endpoint(d.protocol), c.Retries)
	if err != nil {
		return nil, err
	}
	return &session{client: client, config: c}, nil
}

// ObjectOf maps a register address to the object it names.
func ObjectOf(address uint32) (codec.ObjectID, error) {
	t := address / 1000
	if t > maxObjectType {
		return codec.ObjectID{}, fmt.Errorf("%w: address %d", ErrObjectType, address)
	}
	return codec.ObjectID{Type: uint16(t), Instance: address % 1000}, nil
}

// Word rounds a Present-Value to a register, two's complement for negative values.
func Word(v float64) (uint16, error) {
	r := math.Round(v)
	if r < math.MinInt16 || r > math.MaxUint16 || math.IsNaN(r) {
		return 0, fmt.Errorf("%w: %v", ErrValueRange, v)
	}
	if r < 0 {
		return uint16(int16(r)), nil
	}
	return uint16(r), nil
}

type session struct {
	client *transport.Client
	config Config
	invoke atomic.Uint32
}

func (s *session) frame(apdu []byte) []byte {
	npdu := codec.NPDU(apdu, true)
	if s.config.Transport == TransportIP {
		return codec.BVLC(npdu)
	}
	return npdu
}

func (s *session) apdu(frame []byte) ([]byte, error) {
	npdu := frame
	if s.config.Transport == TransportIP {
		var err error
		if npdu, err = codec.StripBVLC(frame); err != nil {
			return nil, err
		}
	}
	return codec.APDU(npdu)
}

func check(err error) error {
	var be *codec.BACnetError
	if errors.As(err, &be) {
		return transport.Permanent(err)
	}
	return err
}

// confirmed sends one confirmed request built around a fresh invoke id and hands the answering
// APDUs to parse.
func (s *session) confirmed(ctx context.Context, build func(invoke uint8) []byte, parse func(req, resp []byte) error) error {
	var req []byte
	_, err := s.client.Do(ctx,
		func() []byte {
			req = build(uint8(s.invoke.Inc()))
			return s.frame(req)
		},
		func(_, resp []byte) error {
			apdu, err := s.apdu(resp)
			if err != nil {
				return err
			}
			return check(parse(req, apdu))
		})
	return err
}

func (s *session) readProperty(ctx context.Context, oid codec.ObjectID) (codec.Value, error) {
	var v codec.Value
	err := s.confirmed(ctx,
		func(invoke uint8) []byte { return codec.ReadPropertyAPDU(invoke, oid) },
		func(req, resp []byte) error {
			var err error
			v, err = codec.ParseReadPropertyAck(req, resp)
			return err
		})
	return v, err
}

// ReadRegisters reads one object per register. Two registers read a single REAL as float32 bits.
func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, _ uint8) ([]byte, error) {
	out := make([]byte, int(count)*2)
	if count == 2 {
		oid, err := ObjectOf(address)
		if err != nil {
			return nil, err
		}
		v, err := s.readProperty(ctx, oid)
		if err != nil {
			return nil, err
		}
		binutil.WriteFloat32(out, float32(v.Float))
		return out, nil
	}
	for i := 0; i < int(count); i++ {
		oid, err := ObjectOf(address + uint32(i))
		if err != nil {
			return nil, err
		}
		v, err := s.readProperty(ctx, oid)
		if err != nil {
			return nil, err
		}
		word, err := Word(v.Float)
		if err != nil {
			return nil, err
		}
		binutil.WriteUint16(out[i*2:], word)
	}
	return out, nil
}

func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	oid, err := ObjectOf(address)
	if err != nil {
		return err
	}
	v := codec.ValueFor(oid.Type, float64(value))
	return s.confirmed(ctx,
		func(invoke uint8) []byte { return codec.WritePropertyAPDU(invoke, oid, v, s.config.WritePriority) },
		codec.ParseWritePropertyAck)
}

// Probe reads analog-input 0. An error PDU still proves the device answers.
func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	v, err := s.readProperty(ctx, codec.ObjectID{Type: codec.ObjectAnalogInput})
	var be *codec.BACnetError
	if errors.As(err, &be) {
		return []uint16{}, nil
	}
	if err != nil {
		return nil, err
	}
	word, err := Word(v.Float)
	if err != nil {
		return []uint16{}, nil
	}
	return []uint16{word}, nil
}

func (s *session) Metadata() map[string]string {
	md := map[string]string{
		"transport":      s.config.Transport,
		"deviceInstance": strconv.FormatUint(uint64(s.config.DeviceInstance), 10),
		"address":        s.config.address(),
	}
	if s.config.Transport == TransportMSTP && s.config.MACAddress != nil {
		md["macAddress"] = strconv.Itoa(*s.config.MACAddress)
		md["baudRate"] = strconv.Itoa(s.config.BaudRate)
	}
	return md
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
