package transport

import (
	"context"
	"fmt"
	"sync"

	"vfdgateway/pkg/runtime/constant"
)

// DefaultDialer reaches every network the host can drive without extra hardware drivers.
var DefaultDialer Dialer = DialerFunc(dialDefault)

func dialDefault(ctx context.Context, ep Endpoint) (Conn, error) {
	switch ep.Network {
	case NetworkModbusTCP:
		return DialModbusTCP(ctx, ep)
	case NetworkUDP:
		return DialDatagram(ctx, ep)
	case NetworkSerial:
		return DialSerial(ctx, ep)
	case NetworkCAN:
		return DialCAN(ctx, ep)
	default:
		return nil, fmt.Errorf("%w: %s via %s", ErrNoTransport, ep.Protocol, ep.Address)
	}
}

// Router picks a Dialer per protocol and falls back to another for the rest.
type Router struct {
	mux      sync.RWMutex
	routes   map[constant.Protocol]Dialer
	fallback Dialer
}

func NewRouter(fallback Dialer) *Router {
	if fallback == nil {
		fallback = DefaultDialer
	}
	return &Router{routes: make(map[constant.Protocol]Dialer), fallback: fallback}
}

// Handle routes p to d, replacing any previous route.
func (r *Router) Handle(p constant.Protocol, d Dialer) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.routes[p] = d
}

func (r *Router) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	r.mux.RLock()
	d, ok := r.routes[ep.Protocol]
	r.mux.RUnlock()
	if !ok {
		d = r.fallback
	}
	return d.Dial(ctx, ep)
}
