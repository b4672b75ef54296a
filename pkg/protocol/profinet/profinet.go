// Package profinet exchanges cyclic IO data and acyclic records with PROFINET IO devices. The RT
// controller stack is reached through an injected transport.Dialer.
package profinet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

var (
	ErrOffset = errors.New("io data offset outside the process image")
	ErrIndex  = errors.New("record index outside 0..0x7FFF")
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

func (d *driver) Protocol() constant.Protocol { return constant.Profinet }
func (d *driver) Schema() *adapter.Schema     { return schema }
func (d *driver) Batching() bool              { return false }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	client, err := transport.Dial(ctx, d.dialer, c.endpoint(), c.Retries)
	if err != nil {
		return nil, err
	}
	return &session{client: client, config: c, ar: uuid.New(), outputs: make([]uint16, c.IODataWords)}, nil
}

type session struct {
	client *transport.Client
	config Config
	// ar identifies the application relationship records are exchanged in.
	ar       uuid.UUID
	sequence atomic.Uint32

	mux     sync.Mutex
	outputs []uint16
	cycle   uint16
}

func (s *session) cyclic(ctx context.Context) ([]uint16, error) {
	s.mux.Lock()
	s.cycle++
	out := &codec.RTFrame{FrameID: codec.FrameIDOutput, Data: append([]uint16(nil), s.outputs...), CycleCounter: s.cycle, DataStatus: codec.DataStatusRun}
	s.mux.Unlock()

	req := out.Marshal()
	var inputs []uint16
	_, err := s.client.Do(ctx, func() []byte { return req }, func(_, resp []byte) error {
		f, err := codec.ParseInputFrame(resp)
		if err != nil {
			return err
		}
		inputs = f.Data
		return nil
	})
	return inputs, err
}

// record addresses index on the configured submodule under a fresh sequence number.
func (s *session) record(index uint32) *codec.Record {
	return &codec.Record{
		Sequence: uint16(s.sequence.Inc()),
		AR:       s.ar,
		Slot:     s.config.Slot,
		Subslot:  s.config.Subslot,
		Index:    uint16(index),
	}
}

func recordCheck(err error) error {
	var pe *codec.PNIOError
	if errors.As(err, &pe) {
		return transport.Permanent(err)
	}
	return err
}

func (s *session) readRecord(ctx context.Context, index uint32, length int) ([]byte, error) {
	var data []byte
	_, err := s.client.Do(ctx,
		func() []byte { return codec.ReadRecordRequest(s.record(index), length) },
		func(req, resp []byte) error {
			buf, err := codec.ParseReadRecordResponse(req, resp)
			if err != nil {
				return recordCheck(err)
			}
			if len(buf) != length {
				return fmt.Errorf("%w: %d bytes for %d", codec.ErrRecordMalformed, len(buf), length)
			}
			data = buf
			return nil
		})
	return data, err
}

func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	if functionCode == constant.FunctionCodeParameter {
		if address+uint32(count)-1 > codec.MaxRecordIndex {
			return nil, fmt.Errorf("%w: %d", ErrIndex, address)
		}
		return s.readRecord(ctx, address, int(count)*2)
	}
	off := int(address % 100)
	inputs, err := s.cyclic(ctx)
	if err != nil {
		return nil, err
	}
	if off+int(count) > len(inputs) {
		return nil, fmt.Errorf("%w: word %d+%d of %d", ErrOffset, off, count, len(inputs))
	}
	buf := make([]byte, int(count)*2)
	for i, w := range inputs[off : off+int(count)] {
		binutil.WriteUint16(buf[i*2:], w)
	}
	return buf, nil
}

// WriteRegister updates the cyclic output image; addresses past it are written as records.
func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	off := int(address % 100)
	if address >= 100 || off >= len(s.outputs) {
		if address > codec.MaxRecordIndex {
			return fmt.Errorf("%w: %d", ErrIndex, address)
		}
		data := []byte{byte(value >> 8), byte(value)}
		_, err := s.client.Do(ctx,
			func() []byte {
				r := s.record(address)
				r.Data = data
				return codec.WriteRecordRequest(r)
			},
			func(req, resp []byte) error { return recordCheck(codec.ParseWriteRecordResponse(req, resp)) })
		return err
	}
	s.mux.Lock()
	prev := s.outputs[off]
	s.outputs[off] = value
	s.mux.Unlock()
	if _, err := s.cyclic(ctx); err != nil {
		s.mux.Lock()
		s.outputs[off] = prev
		s.mux.Unlock()
		return err
	}
	return nil
}

func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	return s.cyclic(ctx)
}

func (s *session) Metadata() map[string]string {
	return map[string]string{
		"host":        s.config.Host,
		"deviceName":  s.config.DeviceName,
		"ar":          s.ar.String(),
		"cycleTimeUs": strconv.FormatInt(s.config.CycleTime().Microseconds(), 10),
		"watchdogMs":  strconv.FormatInt(s.config.Watchdog().Milliseconds(), 10),
	}
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
