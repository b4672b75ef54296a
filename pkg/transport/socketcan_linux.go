//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type canConn struct {
	mux    sync.Mutex
	fd     int
	accept func(req, resp []byte) bool
}

// DialCAN binds a raw SocketCAN socket to the interface named by ep.Address (for example can0).
func DialCAN(_ context.Context, ep Endpoint) (Conn, error) {
	ifi, err := net.InterfaceByName(ep.Address)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("can socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("can bind %s: %w", ep.Address, err)
	}
	return &canConn{fd: fd, accept: ep.Accept}, nil
}

func (c *canConn) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, err
	}
	if _, err := unix.Write(c.fd, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConn, err)
	}
	buf := make([]byte, CANFrameLength)
	for {
		n, err := unix.Read(c.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return nil, context.DeadlineExceeded
			}
			return nil, fmt.Errorf("%w: %w", ErrBadConn, err)
		}
		if n < CANFrameLength {
			continue
		}
		resp := append([]byte(nil), buf...)
		if c.accept == nil || c.accept(req, resp) {
			return resp, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (c *canConn) Close() error {
	return unix.Close(c.fd)
}
