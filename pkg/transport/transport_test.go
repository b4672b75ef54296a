package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/danomagnum/gologix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/runtime/constant"
)

// lengthPrefixed frames are one length byte followed by that many bytes.
func lengthPrefixed(buf []byte) (int, error) {
	return int(buf[0]) + 1, nil
}

type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func TestReadFrame(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{{3, 1}, {2}, {3, 9, 9}}}
	frame, err := readFrame(r, lengthPrefixed, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1, 2, 3}, frame)

	_, err = readFrame(bytes.NewReader([]byte{200}), lengthPrefixed, 16)
	assert.ErrorIs(t, err, ErrFrameTooLong)

	_, err = readFrame(bytes.NewReader([]byte{5, 1}), lengthPrefixed, 16)
	assert.ErrorIs(t, err, io.EOF)
}

type scriptedConn struct {
	replies []func(req []byte) ([]byte, error)
	closed  bool
}

func (s *scriptedConn) Exchange(_ context.Context, req []byte) ([]byte, error) {
	if len(s.replies) == 0 {
		return nil, context.DeadlineExceeded
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next(req)
}

func (s *scriptedConn) Close() error {
	s.closed = true
	return nil
}

func TestClientRedialsBrokenLink(t *testing.T) {
	dials := 0
	first := &scriptedConn{replies: []func([]byte) ([]byte, error){
		func([]byte) ([]byte, error) { return nil, ErrBadConn },
	}}
	second := &scriptedConn{replies: []func([]byte) ([]byte, error){
		func(req []byte) ([]byte, error) { return req, nil },
	}}
	dialer := DialerFunc(func(context.Context, Endpoint) (Conn, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	})

	c, err := Dial(context.Background(), dialer, Endpoint{Address: "x"}, 2)
	require.NoError(t, err)
	builds := 0
	resp, err := c.Do(context.Background(), func() []byte { builds++; return []byte{byte(builds)} }, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, resp)
	assert.Equal(t, 2, dials)
	assert.True(t, first.closed)
}

func TestClientRetriesAndPermanent(t *testing.T) {
	bad := errors.New("crc")
	calls := 0
	conn := &scriptedConn{}
	for i := 0; i < 5; i++ {
		conn.replies = append(conn.replies, func(req []byte) ([]byte, error) { calls++; return req, nil })
	}
	c, err := Dial(context.Background(), DialerFunc(func(context.Context, Endpoint) (Conn, error) { return conn, nil }), Endpoint{}, 2)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), func() []byte { return []byte{1} }, func(_, _ []byte) error { return bad })
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 3, calls)

	exception := errors.New("exception")
	_, err = c.Do(context.Background(), func() []byte { return []byte{1} }, func(_, _ []byte) error { return Permanent(exception) })
	assert.Equal(t, exception, err)
	assert.Equal(t, 4, calls)
}

func TestClientHandshake(t *testing.T) {
	var handshakes []Conn
	conns := []*scriptedConn{
		{replies: []func([]byte) ([]byte, error){
			func(req []byte) ([]byte, error) { return req, nil },
		}},
		{replies: []func([]byte) ([]byte, error){
			func(req []byte) ([]byte, error) { return req, nil },
		}},
	}
	dials := 0
	dialer := DialerFunc(func(context.Context, Endpoint) (Conn, error) {
		conn := conns[dials]
		dials++
		return conn, nil
	})
	c, err := Dial(context.Background(), dialer, Endpoint{}, 1, WithHandshake(func(_ context.Context, conn Conn) error {
		handshakes = append(handshakes, conn)
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, handshakes, 1)

	// a broken check result forces a redial and a second handshake
	attempt := 0
	_, err = c.Do(context.Background(), func() []byte { return []byte{1} }, func(_, _ []byte) error {
		attempt++
		if attempt == 1 {
			return ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, handshakes, 2)
	assert.True(t, conns[0].closed)

	refused := errors.New("refused")
	_, err = Dial(context.Background(), DialerFunc(func(context.Context, Endpoint) (Conn, error) { return &scriptedConn{}, nil }), Endpoint{}, 0,
		WithHandshake(func(context.Context, Conn) error { return refused }))
	assert.ErrorIs(t, err, refused)
}

func TestIsBroken(t *testing.T) {
	assert.True(t, IsBroken(io.EOF))
	assert.True(t, IsBroken(ErrBadConn))
	assert.False(t, IsBroken(context.DeadlineExceeded))
	assert.False(t, IsBroken(nil))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
}

func TestCANFrame(t *testing.T) {
	f := CANFrame{ID: 0x605, Data: []byte{0x40, 0x41, 0x60, 0x00, 0, 0, 0, 0}}
	buf := f.Marshal()
	require.Len(t, buf, CANFrameLength)
	assert.Equal(t, byte(8), buf[4])

	back, err := UnmarshalCANFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, f, back)

	_, err = UnmarshalCANFrame(buf[:10])
	assert.ErrorIs(t, err, ErrCANFrame)
}

func TestRouter(t *testing.T) {
	hit := ""
	r := NewRouter(DialerFunc(func(context.Context, Endpoint) (Conn, error) { hit = "fallback"; return nil, nil }))
	r.Handle(constant.ProfibusDP, DialerFunc(func(context.Context, Endpoint) (Conn, error) { hit = "profibus"; return nil, nil }))

	_, _ = r.Dial(context.Background(), Endpoint{Protocol: constant.ProfibusDP})
	assert.Equal(t, "profibus", hit)
	_, _ = r.Dial(context.Background(), Endpoint{Protocol: constant.ModbusTCP})
	assert.Equal(t, "fallback", hit)
}

func TestDefaultDialerRejectsFieldbus(t *testing.T) {
	_, err := DefaultDialer.Dial(context.Background(), Endpoint{Network: NetworkFieldbus})
	assert.ErrorIs(t, err, ErrNoTransport)
}

type cipDialer struct {
	Dialer
	client CIPClient
}

func (d cipDialer) DialCIP(Endpoint) (CIPClient, error) { return d.client, nil }

func TestDialCIP(t *testing.T) {
	c, err := DialCIP(DefaultDialer, Endpoint{Protocol: constant.EthernetIP, Address: "10.1.4.30:44818"})
	require.NoError(t, err)
	assert.IsType(t, &gologix.Client{}, c)

	_, err = DialCIP(DefaultDialer, Endpoint{Protocol: constant.EthernetIP, Address: "10.1.4.30:2222"})
	assert.ErrorIs(t, err, ErrNoTransport)
	_, err = DialCIP(DefaultDialer, Endpoint{Protocol: constant.EthernetIP, Address: "10.1.4.30"})
	assert.Error(t, err)

	own := gologix.NewClient("10.9.9.9")
	r := NewRouter(nil)
	r.Handle(constant.EthernetIP, cipDialer{client: own})
	c, err = DialCIP(r, Endpoint{Protocol: constant.EthernetIP, Address: "10.1.4.30:44818"})
	require.NoError(t, err)
	assert.Same(t, own, c)
}
