// Package profibus exchanges PROFIdrive PPO telegrams with drives on a PROFIBUS DP segment. The
// DP master itself is hardware reached through an injected transport.Dialer.
package profibus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var (
	ErrOffset = errors.New("process data offset outside the ppo")
	ErrPNU    = errors.New("parameter number out of range")
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

func (d *driver) Protocol() constant.Protocol { return constant.ProfibusDP }
func (d *driver) Schema() *adapter.Schema     { return schema }

// Batching is off: one Data_Exchange already carries the whole process image.
func (d *driver) Batching() bool { return false }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	ppo, err := codec.PPOType(c.PPOType)
	if err != nil {
		return nil, err
	}
	client, err := transport.Dial(ctx, d.dialer, c.endpoint(), c.Retries)
	if err != nil {
		return nil, err
	}
	return &session{client: client, config: c, ppo: ppo, outputs: make([]uint16, ppo.PZDWords)}, nil
}

type session struct {
	client *transport.Client
	config Config
	ppo    codec.PPO

	mux     sync.Mutex
	outputs []uint16
	fcb     bool
}

// offset is the PZD word a cyclic address lands on.
func offset(address uint32) int {
	return int(address % 100)
}

// dataExchange sends the output image with k on the parameter channel and returns the answer.
func (s *session) dataExchange(ctx context.Context, k codec.PKW) (*codec.Telegram, error) {
	s.mux.Lock()
	out := append([]uint16(nil), s.outputs...)
	s.fcb = !s.fcb
	fc := uint8(codec.FCDataExchange)
	if s.fcb {
		fc |= codec.FCFrameCountBit
	}
	s.mux.Unlock()

	req := (&codec.Telegram{DA: s.config.StationAddress, SA: s.config.MasterAddress, FC: fc, PKW: k, PZD: out}).MarshalSD2(s.ppo)
	var answer *codec.Telegram
	_, err := s.client.Do(ctx, func() []byte { return req }, func(req, resp []byte) error {
		t, err := codec.ParseDataExchange(req, resp, s.ppo)
		if err != nil {
			return err
		}
		answer = t
		return nil
	})
	return answer, err
}

func (s *session) parameter(ctx context.Context, k codec.PKW) (uint16, error) {
	if !s.ppo.PKW {
		return 0, fmt.Errorf("%w: ppo %d", codec.ErrNoPKW, s.ppo.Type)
	}
	if k.PNU > codec.MaxPNU {
		return 0, fmt.Errorf("%w: %d", ErrPNU, k.PNU)
	}
	t, err := s.dataExchange(ctx, k)
	if err != nil {
		return 0, err
	}
	return codec.ParameterResult(k, t.PKW)
}

func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	buf := make([]byte, 0, int(count)*2)
	if functionCode == constant.FunctionCodeParameter {
		for i := uint32(0); i < uint32(count); i++ {
			if address+i > codec.MaxPNU {
				return nil, fmt.Errorf("%w: %d", ErrPNU, address+i)
			}
			v, err := s.parameter(ctx, codec.PKW{AK: codec.AKRequestWord, PNU: uint16(address + i)})
			if err != nil {
				return nil, err
			}
			buf = append(buf, byte(v>>8), byte(v))
		}
		return buf, nil
	}

	off := offset(address)
	if off+int(count) > s.ppo.PZDWords {
		return nil, fmt.Errorf("%w: word %d+%d of %d", ErrOffset, off, count, s.ppo.PZDWords)
	}
	t, err := s.dataExchange(ctx, codec.PKW{AK: codec.AKNone})
	if err != nil {
		return nil, err
	}
	for _, w := range t.PZD[off : off+int(count)] {
		buf = append(buf, byte(w>>8), byte(w))
	}
	return buf, nil
}

// WriteRegister latches value into the output PZD. Addresses beyond the PZD are parameters
// changed through the PKW channel.
func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	off := offset(address)
	if address >= 100 || off >= s.ppo.PZDWords {
		if address > codec.MaxPNU {
			return fmt.Errorf("%w: %d", ErrPNU, address)
		}
		_, err := s.parameter(ctx, codec.PKW{AK: codec.AKChangeWord, PNU: uint16(address), Value: uint32(value)})
		return err
	}
	s.mux.Lock()
	prev := s.outputs[off]
	s.outputs[off] = value
	s.mux.Unlock()
	if _, err := s.dataExchange(ctx, codec.PKW{AK: codec.AKNone}); err != nil {
		s.mux.Lock()
		s.outputs[off] = prev
		s.mux.Unlock()
		return err
	}
	return nil
}

// Probe runs one Data_Exchange and returns the input PZD.
func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	t, err := s.dataExchange(ctx, codec.PKW{AK: codec.AKNone})
	if err != nil {
		return nil, err
	}
	return t.PZD, nil
}

func (s *session) Metadata() map[string]string {
	return map[string]string{
		"interface":      s.config.Interface,
		"stationAddress": strconv.Itoa(int(s.config.StationAddress)),
		"ppoType":        strconv.Itoa(s.ppo.Type),
		"baudRate":       strconv.Itoa(s.config.BaudRate),
	}
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
