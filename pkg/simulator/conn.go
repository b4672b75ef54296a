package simulator

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/transport"
)

// handler answers one request frame; ok is false when the drive stays silent.
type handler func(req []byte) (resp []byte, ok bool)

type conn struct {
	drive  *Drive
	handle handler
	closed atomic.Bool
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, net.ErrClosed
	}
	c.drive.requests.Inc()
	drop, broken := c.drive.fault()
	if broken {
		c.closed.Store(true)
		return nil, fmt.Errorf("%w: %w", transport.ErrBadConn, syscall.ECONNRESET)
	}
	klog.V(5).InfoS("Simulated drive received frame", "id", c.drive.ID, "bytes", req)
	resp, ok := []byte(nil), false
	if !drop {
		resp, ok = c.handle(req)
	}
	if !ok {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return resp, nil
}

func (c *conn) Close() error {
	c.closed.Store(true)
	return nil
}
