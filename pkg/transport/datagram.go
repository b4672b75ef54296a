package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

const maxDatagram = 1500

type datagramConn struct {
	conn   net.Conn
	accept func(req, resp []byte) bool
}

// DialDatagram opens a connected UDP socket; replies from other peers are filtered by the kernel
// and unrelated replies from the peer by ep.Accept.
func DialDatagram(ctx context.Context, ep Endpoint) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", ep.Address)
	if err != nil {
		return nil, err
	}
	return &datagramConn{conn: conn, accept: ep.Accept}, nil
}

func setDeadline(ctx context.Context, conn net.Conn) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	return conn.SetDeadline(deadline)
}

func (d *datagramConn) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	if err := setDeadline(ctx, d.conn); err != nil {
		return nil, err
	}
	if _, err := d.conn.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, maxDatagram)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
		resp := append([]byte(nil), buf[:n]...)
		if d.accept == nil || d.accept(req, resp) {
			return resp, nil
		}
	}
}

func (d *datagramConn) Close() error {
	return d.conn.Close()
}
