// Package connection owns the adapter sessions of every device. Callers lease a session, use the
// adapter through the lease and release it; the pool reconnects stale sessions and reaps idle ones.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/metrics"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
)

const DefaultIdleTimeout = 60 * time.Second

var ErrPoolClosed = errors.New("connection pool closed")

// AdapterSource hands out the adapter serving a protocol.
type AdapterSource interface {
	Get(p constant.Protocol) adapter.Adapter
}

type Option func(*Pool)

func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.idleTimeout = d
		}
	}
}

type Pool struct {
	adapters    AdapterSource
	idleTimeout time.Duration

	mux      sync.Mutex
	sessions map[string]*session
	closed   bool

	leases     atomic.Int64
	reconnects atomic.Int64
}

type session struct {
	// sem holds one token while the session is leased.
	sem      chan struct{}
	adapter  adapter.Adapter
	handle   *adapter.ConnectionHandle
	protocol constant.Protocol
	config   runtime.Configuration
}

func NewPool(adapters AdapterSource, opts ...Option) *Pool {
	p := &Pool{
		adapters:    adapters,
		idleTimeout: DefaultIdleTimeout,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lease is the exclusive use of one device session until Release.
type Lease struct {
	Adapter adapter.Adapter
	Handle  *adapter.ConnectionHandle

	s    *session
	once sync.Once
}

func (l *Lease) HandleID() string {
	return l.Handle.ID
}

func (l *Lease) Release() {
	l.once.Do(func() {
		<-l.s.sem
	})
}

func (p *Pool) entry(deviceID string) (*session, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	s, ok := p.sessions[deviceID]
	if !ok {
		s = &session{sem: make(chan struct{}, 1)}
		p.sessions[deviceID] = s
		metrics.PoolSessions.Set(float64(len(p.sessions)))
	}
	return s, nil
}

// Lease waits for the device session, connecting or reconnecting it when it is missing, broken,
// idle longer than the idle timeout or configured differently from d.
func (p *Pool) Lease(ctx context.Context, d *runtime.Device) (*Lease, error) {
	var s *session
	for {
		var err error
		if s, err = p.entry(d.ID); err != nil {
			return nil, err
		}
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if p.current(d.ID, s) {
			break
		}
		// evicted or closed while waiting for the token
		<-s.sem
	}

	if s.handle != nil && !p.usable(s, d) {
		p.reconnects.Inc()
		metrics.PoolReconnects.Inc()
		klog.V(3).InfoS("Reconnecting device session", "deviceId", d.ID, "handle", s.handle.ID)
		p.disconnect(ctx, s)
	}
	if s.handle == nil {
		a := p.adapters.Get(d.Protocol)
		h, err := a.Connect(ctx, d.Configuration)
		if err != nil {
			<-s.sem
			return nil, err
		}
		s.adapter, s.handle = a, h
		s.protocol, s.config = d.Protocol, d.Configuration.DeepCopy()
	}
	p.leases.Inc()
	return &Lease{Adapter: s.adapter, Handle: s.handle, s: s}, nil
}

// current reports whether s is still the tracked session of deviceID.
func (p *Pool) current(deviceID string, s *session) bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	return !p.closed && p.sessions[deviceID] == s
}

func (p *Pool) usable(s *session, d *runtime.Device) bool {
	if !s.handle.IsConnected() {
		return false
	}
	if time.Since(s.handle.LastActivity()) > p.idleTimeout {
		return false
	}
	// both sides through the same JSON round trip, so 502 and 502.0 compare equal
	return s.protocol == d.Protocol && equality.Semantic.DeepEqual(s.config, d.Configuration.DeepCopy())
}

// disconnect closes the session's handle. The caller holds the session token.
func (p *Pool) disconnect(ctx context.Context, s *session) {
	if s.handle == nil {
		return
	}
	if err := s.adapter.Disconnect(ctx, s.handle.ID); err != nil && !errors.Is(err, adapter.ErrNotConnected) {
		klog.V(2).InfoS("Failed to disconnect session", "handle", s.handle.ID, "err", err)
	}
	s.adapter, s.handle = nil, nil
}

// Evict disconnects and forgets the session of deviceID, waiting for a running lease to finish.
func (p *Pool) Evict(ctx context.Context, deviceID string) error {
	p.mux.Lock()
	s, ok := p.sessions[deviceID]
	if ok {
		delete(p.sessions, deviceID)
		metrics.PoolSessions.Set(float64(len(p.sessions)))
	}
	p.mux.Unlock()
	if !ok {
		return nil
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	p.disconnect(ctx, s)
	return nil
}

// Reap disconnects every unleased session idle longer than the idle timeout.
func (p *Pool) Reap(ctx context.Context) int {
	p.mux.Lock()
	candidates := make(map[string]*session, len(p.sessions))
	for id, s := range p.sessions {
		candidates[id] = s
	}
	p.mux.Unlock()

	reaped := 0
	for id, s := range candidates {
		select {
		case s.sem <- struct{}{}:
		default:
			continue
		}
		if s.handle != nil && (!s.handle.IsConnected() || time.Since(s.handle.LastActivity()) > p.idleTimeout) {
			klog.V(4).InfoS("Reaping idle device session", "deviceId", id, "handle", s.handle.ID)
			p.disconnect(ctx, s)
			reaped++
		}
		<-s.sem
	}
	return reaped
}

// Run reaps idle sessions until stopCh closes, then disconnects everything.
func (p *Pool) Run(stopCh <-chan struct{}) {
	period := p.idleTimeout / 2
	if period < time.Second {
		period = time.Second
	}
	wait.Until(func() { p.Reap(context.Background()) }, period, stopCh)
	p.Close(context.Background())
}

// Close disconnects every session; later leases fail with ErrPoolClosed.
func (p *Pool) Close(ctx context.Context) {
	p.mux.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*session)
	p.closed = true
	p.mux.Unlock()
	metrics.PoolSessions.Set(0)

	for _, s := range sessions {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		p.disconnect(ctx, s)
		<-s.sem
	}
}

// Connected reports whether deviceID has a live session.
func (p *Pool) Connected(deviceID string) bool {
	p.mux.Lock()
	s, ok := p.sessions[deviceID]
	p.mux.Unlock()
	if !ok {
		return false
	}
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
		return s.handle != nil && s.handle.IsConnected()
	default:
		return true
	}
}

type Stats struct {
	Sessions   int   `json:"sessions"`
	Leases     int64 `json:"leases"`
	Reconnects int64 `json:"reconnects"`
}

func (p *Pool) Stats() Stats {
	p.mux.Lock()
	n := len(p.sessions)
	p.mux.Unlock()
	return Stats{Sessions: n, Leases: p.leases.Load(), Reconnects: p.reconnects.Load()}
}
