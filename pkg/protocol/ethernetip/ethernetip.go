// Package ethernetip talks to drives over EtherNet/IP explicit messaging: unconnected CIP
// Get/Set_Attribute_Single requests to the drive's assembly and parameter objects, carried by a
// gologix client session.
package ethernetip

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/danomagnum/gologix"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

var (
	ErrOffset   = errors.New("assembly offset outside the image")
	ErrInstance = errors.New("parameter instance outside 1..65535")
)

type Adapter struct {
	*adapter.Base
}

// New builds the adapter. Dialers implementing transport.CIPDialer supply the CIP sessions;
// any other dialer gets a gologix client.
func New(dialer transport.Dialer, opts ...adapter.Option) *Adapter {
	return &Adapter{Base: adapter.NewBase(&driver{dialer: dialer}, opts...)}
}

type driver struct {
	dialer transport.Dialer
}

func (d *driver) Protocol() constant.Protocol { return constant.EthernetIP }
func (d *driver) Schema() *adapter.Schema     { return schema }

// Batching is off: an assembly read returns the whole image and parameters have one
// instance each, so there is nothing to merge.
func (d *driver) Batching() bool { return false }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	client, err := transport.DialCIP(d.dialer, c.endpoint())
	if err != nil {
		return nil, err
	}
	s := &session{client: client, config: c}
	// the output image starts from what the drive currently holds
	words, err := s.assembly(ctx, c.OutputAssembly)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("reading output assembly %d: %w", c.OutputAssembly, err)
	}
	s.outputs = words
	return s, nil
}

type session struct {
	client transport.CIPClient
	config Config

	mux       sync.Mutex
	connected bool

	outMux  sync.Mutex
	outputs []uint16
}

// run bounds a blocking client call by ctx and timeout. An abandoned call is left to fail once
// the client disconnects.
func run(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) disconnect() {
	if err := s.client.Disconnect(); err != nil {
		klog.V(4).InfoS("Failed to disconnect cip session", "host", s.config.Host, "err", err)
	}
	s.connected = false
}

// do sends one request, connecting first when needed. CIP status errors are returned at once;
// anything else drops the session and retries on a fresh one.
func (s *session) do(ctx context.Context, request func() (*gologix.CIPItem, error)) ([]byte, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	var lastErr error
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.connected {
			if err := run(ctx, s.config.connectionTimeout(), s.client.Connect); err != nil {
				lastErr = err
				klog.V(3).InfoS("Failed to connect cip session", "host", s.config.Host, "attempt", attempt, "err", err)
				s.disconnect()
				continue
			}
			s.connected = true
		}
		var item *gologix.CIPItem
		err := run(ctx, s.config.responseTimeout(), func() (err error) {
			item, err = request()
			return err
		})
		if err == nil {
			if item == nil || item.Pos > len(item.Data) {
				return nil, codec.ErrCIPMalformed
			}
			return binutil.Dup(item.Data[item.Pos:]), nil
		}
		var ce *codec.CIPError
		if errors.As(err, &ce) {
			return nil, err
		}
		lastErr = err
		klog.V(2).InfoS("CIP request failed, reconnecting", "host", s.config.Host, "attempt", attempt, "err", err)
		s.disconnect()
	}
	return nil, lastErr
}

func (s *session) get(ctx context.Context, path codec.Path) ([]byte, error) {
	return s.do(ctx, func() (*gologix.CIPItem, error) {
		return s.client.GetAttrSingle(gologix.CIPClass(path.Class), gologix.CIPInstance(path.Instance), gologix.CIPAttribute(path.Attribute))
	})
}

func (s *session) set(ctx context.Context, path codec.Path, data []byte) error {
	_, err := s.do(ctx, func() (*gologix.CIPItem, error) {
		return s.client.GenericCIPMessage(gologix.CIPService(codec.CIPSetAttributeSingle), path.Marshal(), data)
	})
	return err
}

func assemblyPath(instance uint16) codec.Path {
	return codec.Path{Class: codec.CIPClassAssembly, Instance: uint32(instance), Attribute: codec.CIPAttributeAssemblyData}
}

// assembly reads an assembly instance as words.
func (s *session) assembly(ctx context.Context, instance uint16) ([]uint16, error) {
	buf, err := s.get(ctx, assemblyPath(instance))
	if err != nil {
		return nil, err
	}
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("%w: odd assembly length %d", codec.ErrCIPMalformed, len(buf))
	}
	words := make([]uint16, len(buf)/2)
	for i := range words {
		words[i] = binutil.ParseUint16LittleEndian(buf[i*2:])
	}
	return words, nil
}

func parameterPath(address uint32) (codec.Path, error) {
	if address == 0 || address > 0xFFFF {
		return codec.Path{}, fmt.Errorf("%w: %d", ErrInstance, address)
	}
	return codec.Path{Class: codec.CIPClassParameter, Instance: address, Attribute: codec.CIPAttributeParameter}, nil
}

func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	out := make([]byte, int(count)*2)
	if functionCode == constant.FunctionCodeParameter {
		for i := 0; i < int(count); i++ {
			path, err := parameterPath(address + uint32(i))
			if err != nil {
				return nil, err
			}
			buf, err := s.get(ctx, path)
			if err != nil {
				return nil, err
			}
			if len(buf) < 2 {
				return nil, fmt.Errorf("%w: parameter %d returned %d bytes", codec.ErrCIPMalformed, path.Instance, len(buf))
			}
			binutil.WriteUint16(out[i*2:], binutil.ParseUint16LittleEndian(buf))
		}
		return out, nil
	}

	words, err := s.assembly(ctx, s.config.InputAssembly)
	if err != nil {
		return nil, err
	}
	off := int(address % 100)
	if off+int(count) > len(words) {
		return nil, fmt.Errorf("%w: word %d+%d of %d", ErrOffset, off, count, len(words))
	}
	for i, w := range words[off : off+int(count)] {
		binutil.WriteUint16(out[i*2:], w)
	}
	return out, nil
}

// WriteRegister sets a word of the output assembly; addresses past it go to the parameter object.
func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	s.outMux.Lock()
	defer s.outMux.Unlock()

	off := int(address % 100)
	if address >= 100 || off >= len(s.outputs) {
		path, err := parameterPath(address)
		if err != nil {
			return err
		}
		data := make([]byte, 2)
		binutil.WriteUint16LittleEndian(data, value)
		return s.set(ctx, path, data)
	}

	image := append([]uint16(nil), s.outputs...)
	image[off] = value
	data := make([]byte, len(image)*2)
	for i, w := range image {
		binutil.WriteUint16LittleEndian(data[i*2:], w)
	}
	if err := s.set(ctx, assemblyPath(s.config.OutputAssembly), data); err != nil {
		return err
	}
	s.outputs = image
	return nil
}

func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	return s.assembly(ctx, s.config.InputAssembly)
}

func (s *session) Metadata() map[string]string {
	return map[string]string{
		"host":           s.config.Host,
		"port":           transport.CIPPort,
		"inputAssembly":  strconv.Itoa(int(s.config.InputAssembly)),
		"outputAssembly": strconv.Itoa(int(s.config.OutputAssembly)),
		"rpiMs":          strconv.Itoa(s.config.RPI),
	}
}

func (s *session) Close(context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.client.Disconnect()
}
