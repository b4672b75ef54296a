package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"vfdgateway/pkg/generic"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/simulator"
)

func newDevice(id, host string) *runtime.Device {
	return &runtime.Device{
		ObjectMeta:    runtime.ObjectMeta{ID: id, Name: id},
		Brand:         constant.ABB,
		Protocol:      constant.ModbusTCP,
		Configuration: runtime.Configuration{"host": host, "responseTimeout": 50, "retries": 0},
	}
}

func setup(t *testing.T, opts ...Option) (*Pool, *simulator.Bus) {
	t.Helper()
	bus := simulator.NewBus()
	bus.Attach("10.0.0.1:502", simulator.NewDrive(1))
	bus.Attach("10.0.0.2:502", simulator.NewDrive(1))
	p := NewPool(generic.NewAdapters(bus), opts...)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p, bus
}

func TestLeaseReusesSession(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")

	l1, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	first := l1.HandleID()
	l1.Release()
	l1.Release()

	l2, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	defer l2.Release()
	assert.Equal(t, first, l2.HandleID())
	assert.Equal(t, Stats{Sessions: 1, Leases: 2, Reconnects: 0}, p.Stats())
}

func TestIdleSessionIsReconnected(t *testing.T) {
	p, _ := setup(t, WithIdleTimeout(20*time.Millisecond))
	d := newDevice("d1", "10.0.0.1")

	l, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	first := l.HandleID()
	l.Release()

	time.Sleep(50 * time.Millisecond)
	l, err = p.Lease(context.Background(), d)
	require.NoError(t, err)
	defer l.Release()
	assert.NotEqual(t, first, l.HandleID())
	assert.Equal(t, int64(1), p.Stats().Reconnects)
}

func TestConfigurationChangeReconnects(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")
	l, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	first := l.HandleID()
	l.Release()

	d.Configuration["host"] = "10.0.0.2"
	l, err = p.Lease(context.Background(), d)
	require.NoError(t, err)
	defer l.Release()
	assert.NotEqual(t, first, l.HandleID())
	assert.Equal(t, "10.0.0.2:502", l.Handle.Metadata["address"])
}

func TestLeasesAreSerializedPerDevice(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")

	held, err := p.Lease(context.Background(), d)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Lease(ctx, d)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := p.Lease(context.Background(), newDevice("d2", "10.0.0.2"))
	require.NoError(t, err)
	other.Release()
	held.Release()

	var inUse, overlaps atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := p.Lease(context.Background(), d)
			if err != nil {
				return
			}
			if inUse.Inc() > 1 {
				overlaps.Inc()
			}
			time.Sleep(time.Millisecond)
			inUse.Dec()
			l.Release()
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestFailedConnectFreesSession(t *testing.T) {
	p, bus := setup(t)
	d := newDevice("d3", "10.0.0.3")

	_, err := p.Lease(context.Background(), d)
	require.Error(t, err)

	bus.Attach("10.0.0.3:502", simulator.NewDrive(1))
	l, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	l.Release()
}

func TestReapDisconnectsIdleSessions(t *testing.T) {
	p, _ := setup(t, WithIdleTimeout(20*time.Millisecond))
	idle := newDevice("d1", "10.0.0.1")
	busy := newDevice("d2", "10.0.0.2")

	l, err := p.Lease(context.Background(), idle)
	require.NoError(t, err)
	l.Release()
	held, err := p.Lease(context.Background(), busy)
	require.NoError(t, err)
	defer held.Release()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.Reap(context.Background()))
	assert.False(t, p.Connected("d1"))
	assert.True(t, p.Connected("d2"))
}

func TestEvictAndClose(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")
	l, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	l.Release()

	require.NoError(t, p.Evict(context.Background(), "d1"))
	assert.Equal(t, 0, p.Stats().Sessions)
	assert.NoError(t, p.Evict(context.Background(), "missing"))

	p.Close(context.Background())
	_, err = p.Lease(context.Background(), d)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestEvictWhileLeaseWaits(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")

	held, err := p.Lease(context.Background(), d)
	require.NoError(t, err)
	old := held.Handle

	waiting := make(chan *Lease, 1)
	go func() {
		l, err := p.Lease(context.Background(), d)
		assert.NoError(t, err)
		waiting <- l
	}()
	evicted := make(chan error, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		evicted <- p.Evict(context.Background(), d.ID)
	}()

	time.Sleep(30 * time.Millisecond)
	held.Release()
	require.NoError(t, <-evicted)
	l := <-waiting
	require.NotNil(t, l)
	defer l.Release()

	assert.False(t, old.IsConnected())
	assert.NotEqual(t, old.ID, l.HandleID())
	assert.True(t, l.Handle.IsConnected())
	assert.Equal(t, 1, p.Stats().Sessions)
	assert.True(t, p.Connected(d.ID))
}

func TestCloseWhileLeaseWaits(t *testing.T) {
	p, _ := setup(t)
	d := newDevice("d1", "10.0.0.1")

	held, err := p.Lease(context.Background(), d)
	require.NoError(t, err)

	waiting := make(chan error, 1)
	go func() {
		l, err := p.Lease(context.Background(), d)
		if l != nil {
			l.Release()
		}
		waiting <- err
	}()
	closed := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Close(context.Background())
		close(closed)
	}()

	time.Sleep(30 * time.Millisecond)
	held.Release()
	<-closed
	assert.ErrorIs(t, <-waiting, ErrPoolClosed)
	assert.False(t, held.Handle.IsConnected())
	assert.Zero(t, p.Stats().Sessions)
}
