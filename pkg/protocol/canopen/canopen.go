// Package canopen reads and writes CiA 402 drive objects with expedited SDO transfers over
// SocketCAN. Connecting starts the node with NMT and waits for its operational heartbeat.
package canopen

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

const (
	profileBase = 0x6000
	// statusword is the CiA 402 object read by connection tests.
	statusword = 0x6041
)

var ErrNotOperational = errors.New("node did not report operational")

type Adapter struct {
	*adapter.Base
}

func New(dialer transport.Dialer, opts ...adapter.Option) *Adapter {
	return &Adapter{Base: adapter.NewBase(&driver{dialer: dialer}, opts...)}
}

type driver struct {
	dialer transport.Dialer
}

func (d *driver) Protocol() constant.Protocol { return constant.CANopen }
func (d *driver) Schema() *adapter.Schema     { return schema }
func (d *driver) Batching() bool              { return false }

func (d *driver) Open(ctx context.Context, cfg runtime.Configuration) (adapter.Session, error) {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil, err
	}
	s := &session{config: c}
	client, err := transport.Dial(ctx, d.dialer, c.endpoint(), c.Retries, transport.WithHandshake(s.start))
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// Index maps a register address onto the CiA 402 profile area. Parameter reads with an address
// of 0x1000 or above name the object index directly.
func Index(address uint32, functionCode uint8) uint16 {
	if functionCode == constant.FunctionCodeParameter && address >= 0x1000 && address <= 0xFFFF {
		return uint16(address)
	}
	return uint16(profileBase + address%256)
}

type session struct {
	client *transport.Client
	config Config
}

// start puts a freshly opened link's node into OPERATIONAL. With the heartbeat producer off the
// NMT command is sent without waiting for confirmation.
func (s *session) start(ctx context.Context, conn transport.Conn) error {
	req := transport.CANFrame{ID: codec.NMTCommandID, Data: codec.NMTStart(s.config.NodeID)}.Marshal()
	resp, err := conn.Exchange(ctx, req)
	if err != nil {
		if s.config.HeartbeatMs == 0 && transport.IsTimeout(err) {
			return nil
		}
		return fmt.Errorf("nmt start node %d: %w", s.config.NodeID, err)
	}
	f, err := transport.UnmarshalCANFrame(resp)
	if err != nil {
		return err
	}
	if len(f.Data) != 1 || f.Data[0] != codec.NMTStateOperable {
		return fmt.Errorf("%w: node %d state %v", ErrNotOperational, s.config.NodeID, f.Data)
	}
	return nil
}

func (s *session) frame(sdo []byte) []byte {
	return transport.CANFrame{ID: codec.SDORequestBase + uint32(s.config.NodeID), Data: sdo}.Marshal()
}

func check(err error) error {
	var abort *codec.SDOAbortError
	if errors.As(err, &abort) {
		return transport.Permanent(err)
	}
	return err
}

func payload(resp []byte) ([]byte, error) {
	f, err := transport.UnmarshalCANFrame(resp)
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}

func (s *session) upload(ctx context.Context, index uint16) (uint16, error) {
	sdo := codec.UploadRequest(index, 0)
	var word uint16
	_, err := s.client.Do(ctx, func() []byte { return s.frame(sdo) }, func(_, resp []byte) error {
		data, err := payload(resp)
		if err != nil {
			return err
		}
		value, err := codec.ParseUploadResponse(sdo, data)
		if err != nil {
			return check(err)
		}
		if len(value) < 2 {
			return transport.Permanent(fmt.Errorf("%w: object 0x%04X holds %d bytes", codec.ErrSDOMalformed, index, len(value)))
		}
		word = binutil.ParseUint16LittleEndian(value)
		return nil
	})
	return word, err
}

// ReadRegisters uploads one object per register and returns them as big-endian words.
func (s *session) ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error) {
	out := make([]byte, int(count)*2)
	for i := 0; i < int(count); i++ {
		word, err := s.upload(ctx, Index(address+uint32(i), functionCode))
		if err != nil {
			return nil, err
		}
		binutil.WriteUint16(out[i*2:], word)
	}
	return out, nil
}

func (s *session) WriteRegister(ctx context.Context, address uint32, value uint16) error {
	data := make([]byte, 2)
	binutil.WriteUint16LittleEndian(data, value)
	sdo := codec.DownloadRequest(Index(address, 0), 0, data)
	_, err := s.client.Do(ctx, func() []byte { return s.frame(sdo) }, func(_, resp []byte) error {
		data, err := payload(resp)
		if err != nil {
			return err
		}
		return check(codec.ParseDownloadResponse(sdo, data))
	})
	return err
}

func (s *session) Probe(ctx context.Context) ([]uint16, error) {
	word, err := s.upload(ctx, statusword)
	if err != nil {
		return nil, err
	}
	return []uint16{word}, nil
}

func (s *session) Metadata() map[string]string {
	return map[string]string{
		"interface": s.config.Interface,
		"nodeId":    strconv.Itoa(int(s.config.NodeID)),
		"bitrate":   strconv.Itoa(s.config.Bitrate),
		"nmtState":  "operational",
	}
}

func (s *session) Close(context.Context) error {
	return s.client.Close()
}
