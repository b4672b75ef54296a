package transport

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Client owns one Conn, redials it when broken and retries failed exchanges.
type Client struct {
	dialer  Dialer
	ep      Endpoint
	retries int

	handshake func(ctx context.Context, conn Conn) error

	mux  sync.Mutex
	conn Conn
}

type Option func(*Client)

// WithHandshake runs fn on every new connection before it carries requests, e.g. to open a
// protocol session. A failing handshake discards the connection.
func WithHandshake(fn func(ctx context.Context, conn Conn) error) Option {
	return func(c *Client) {
		c.handshake = fn
	}
}

// Dial opens the first connection eagerly so configuration errors surface on connect.
func Dial(ctx context.Context, dialer Dialer, ep Endpoint, retries int, opts ...Option) (*Client, error) {
	c := &Client{dialer: dialer, ep: ep, retries: retries}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.redial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Endpoint() Endpoint {
	return c.ep
}

func (c *Client) redial(ctx context.Context) error {
	if c.ep.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ep.DialTimeout)
		defer cancel()
	}
	conn, err := c.dialer.Dial(ctx, c.ep)
	if err != nil {
		return err
	}
	if c.handshake != nil {
		// the handshake is part of connecting and shares the dial deadline when there is one
		hctx, cancel := ctx, context.CancelFunc(func() {})
		if c.ep.DialTimeout <= 0 {
			hctx, cancel = context.WithTimeout(ctx, c.responseTimeout())
		}
		err = c.handshake(hctx, conn)
		cancel()
		if err != nil {
			_ = conn.Close()
			return err
		}
	}
	c.conn = conn
	return nil
}

// Do sends build() and passes the response to check, up to retries+1 times. build runs on every
// attempt so per-request counters advance. A check error wrapped with Permanent is returned at once.
func (c *Client) Do(ctx context.Context, build func() []byte, check func(req, resp []byte) error) ([]byte, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.conn == nil {
			if err := c.redial(ctx); err != nil {
				lastErr = err
				klog.V(3).InfoS("Failed to redial device", "address", c.ep.Address, "attempt", attempt, "err", err)
				continue
			}
		}
		req := build()
		resp, err := c.exchange(ctx, req)
		if err != nil {
			lastErr = err
			if IsBroken(err) {
				klog.V(2).InfoS("Device link broken, redialing", "address", c.ep.Address, "err", err)
				_ = c.conn.Close()
				c.conn = nil
			} else {
				klog.V(3).InfoS("Device exchange failed", "address", c.ep.Address, "attempt", attempt, "err", err)
			}
			continue
		}
		if check != nil {
			if err := check(req, resp); err != nil {
				if cause := permanentCause(err); cause != nil {
					return nil, cause
				}
				lastErr = err
				if IsBroken(err) {
					_ = c.conn.Close()
					c.conn = nil
				}
				klog.V(3).InfoS("Invalid device response", "address", c.ep.Address, "attempt", attempt, "err", err)
				continue
			}
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) responseTimeout() time.Duration {
	if c.ep.ResponseTimeout <= 0 {
		return time.Second
	}
	return c.ep.ResponseTimeout
}

func (c *Client) exchange(ctx context.Context, req []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.responseTimeout())
	defer cancel()
	return c.conn.Exchange(ctx, req)
}

func (c *Client) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
