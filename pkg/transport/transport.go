// Package transport carries request frames to devices. Adapters build and check frames; a Conn
// only moves bytes and knows where a response ends.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"vfdgateway/pkg/runtime/constant"
)

var (
	ErrNoTransport  = errors.New("no transport for endpoint; a fieldbus dialer must be injected")
	ErrFrameTooLong = errors.New("response frame exceeds buffer")
	ErrBadConn      = errors.New("transport connection broken")
)

type Network string

const (
	NetworkModbusTCP Network = "modbus-tcp"
	NetworkUDP       Network = "udp"
	NetworkSerial    Network = "serial"
	NetworkCAN       Network = "can"
	// NetworkFieldbus needs dedicated master hardware behind an injected Dialer.
	NetworkFieldbus Network = "fieldbus"
)

// Framer reports the total length of the frame that starts with buf, or 0 when more bytes are
// needed to tell.
type Framer func(buf []byte) (int, error)

type SerialOptions struct {
	BaudRate int
	DataBits int
	Parity   constant.Parity
	StopBits constant.StopBits
}

// Endpoint describes one device link.
type Endpoint struct {
	Protocol        constant.Protocol
	Network         Network
	Address         string
	Serial          *SerialOptions
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
	// Framer delimits responses on stream and serial links.
	Framer Framer
	// Accept filters datagram and CAN traffic; frames it rejects are dropped.
	Accept func(req, resp []byte) bool
}

// Conn is one request/response channel to a device.
type Conn interface {
	// Exchange writes req and returns the complete response. The context deadline bounds the
	// whole exchange.
	Exchange(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

type DialerFunc func(ctx context.Context, ep Endpoint) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// IsBroken reports whether err means the link must be redialed.
func IsBroken(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, constant.ErrTransportClosed)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks a response check failure that retrying cannot fix, such as a device exception.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// permanentCause returns the error wrapped by Permanent, or nil.
func permanentCause(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return nil
}

// readFrame reads from r until framer reports a complete frame.
func readFrame(r io.Reader, framer Framer, max int) ([]byte, error) {
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 256)
	for {
		if len(buf) > 0 {
			total, err := framer(buf)
			if err != nil {
				return nil, err
			}
			if total > max {
				return nil, ErrFrameTooLong
			}
			if total > 0 && len(buf) >= total {
				return buf[:total], nil
			}
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// serial ports return 0 bytes on read timeout
			return nil, context.DeadlineExceeded
		}
	}
}
