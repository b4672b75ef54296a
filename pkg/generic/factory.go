package generic

import (
	"fmt"
	"sync"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/protocol/bacnet"
	"vfdgateway/pkg/protocol/canopen"
	"vfdgateway/pkg/protocol/ethernetip"
	"vfdgateway/pkg/protocol/modbusrtu"
	"vfdgateway/pkg/protocol/modbustcp"
	"vfdgateway/pkg/protocol/profibus"
	"vfdgateway/pkg/protocol/profinet"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

// CreateAdapter builds the adapter for p. It panics on a protocol without an adapter.
func CreateAdapter(p constant.Protocol, dialer transport.Dialer, opts ...adapter.Option) adapter.Adapter {
	switch p {
	case constant.ModbusRTU:
		return modbusrtu.New(dialer, opts...)
	case constant.ModbusTCP:
		return modbustcp.New(dialer, opts...)
	case constant.ProfibusDP:
		return profibus.New(dialer, opts...)
	case constant.Profinet:
		return profinet.New(dialer, opts...)
	case constant.EthernetIP:
		return ethernetip.New(dialer, opts...)
	case constant.CANopen:
		return canopen.New(dialer, opts...)
	case constant.BACnetIP, constant.BACnetMSTP:
		return bacnet.New(p, dialer, opts...)
	default:
		panic(fmt.Sprintf("no adapter for protocol %s", p))
	}
}

// Adapters keeps one adapter per protocol for the life of the process, created on first use.
type Adapters struct {
	mux      sync.Mutex
	dialer   transport.Dialer
	opts     []adapter.Option
	adapters map[constant.Protocol]adapter.Adapter
}

func NewAdapters(dialer transport.Dialer, opts ...adapter.Option) *Adapters {
	if dialer == nil {
		dialer = transport.DefaultDialer
	}
	return &Adapters{
		dialer:   dialer,
		opts:     opts,
		adapters: make(map[constant.Protocol]adapter.Adapter),
	}
}

func (a *Adapters) Get(p constant.Protocol) adapter.Adapter {
	a.mux.Lock()
	defer a.mux.Unlock()
	if ad, ok := a.adapters[p]; ok {
		return ad
	}
	ad := CreateAdapter(p, a.dialer, a.opts...)
	a.adapters[p] = ad
	return ad
}
