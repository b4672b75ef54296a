package simulator

import (
	"context"
	"fmt"
	"sync"
	"syscall"

	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

// Bus is a transport.Dialer that reaches simulated drives by endpoint address.
type Bus struct {
	mux    sync.RWMutex
	drives map[string]*Drive
	// Factory, when set, creates a drive for addresses nothing is attached to.
	Factory func(ep transport.Endpoint) *Drive
}

var _ transport.Dialer = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{drives: make(map[string]*Drive)}
}

// Attach places d at address. Several drives may share a serial or CAN address only through
// distinct buses.
func (b *Bus) Attach(address string, d *Drive) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.drives[address] = d
}

func (b *Bus) Detach(address string) {
	b.mux.Lock()
	defer b.mux.Unlock()
	delete(b.drives, address)
}

func (b *Bus) Drive(address string) (*Drive, bool) {
	b.mux.RLock()
	defer b.mux.RUnlock()
	d, ok := b.drives[address]
	return d, ok
}

func (b *Bus) lookup(ep transport.Endpoint) (*Drive, bool) {
	b.mux.Lock()
	defer b.mux.Unlock()
	if d, ok := b.drives[ep.Address]; ok {
		return d, true
	}
	if b.Factory == nil {
		return nil, false
	}
	d := b.Factory(ep)
	if d == nil {
		return nil, false
	}
	klog.V(2).InfoS("Simulated drive created", "protocol", ep.Protocol, "address", ep.Address, "id", d.ID)
	b.drives[ep.Address] = d
	return d, true
}

func (b *Bus) Dial(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := b.lookup(ep)
	if !ok {
		return nil, fmt.Errorf("dial %s %s: %w", ep.Network, ep.Address, syscall.ECONNREFUSED)
	}
	h, err := d.handler(ep.Protocol)
	if err != nil {
		return nil, err
	}
	return &conn{drive: d, handle: h}, nil
}

func (d *Drive) handler(p constant.Protocol) (handler, error) {
	switch p {
	case constant.ModbusRTU:
		return d.modbusRTU, nil
	case constant.ModbusTCP:
		return d.modbusTCP, nil
	case constant.ProfibusDP:
		return d.profibus, nil
	case constant.Profinet:
		return d.profinet(), nil
	case constant.CANopen:
		return d.canopen, nil
	case constant.BACnetIP:
		return d.bacnet(true), nil
	case constant.BACnetMSTP:
		return d.bacnet(false), nil
	default:
		return nil, fmt.Errorf("%w: %s", constant.ErrProtocol, p)
	}
}
