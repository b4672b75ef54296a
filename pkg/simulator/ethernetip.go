package simulator

import (
	"context"
	"fmt"
	"syscall"

	"github.com/danomagnum/gologix"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

var _ transport.CIPDialer = (*Bus)(nil)

// DialCIP returns an explicit messaging session to the drive at ep.Address.
func (b *Bus) DialCIP(ep transport.Endpoint) (transport.CIPClient, error) {
	d, ok := b.lookup(ep)
	if !ok {
		return nil, fmt.Errorf("dial cip %s: %w", ep.Address, syscall.ECONNREFUSED)
	}
	return &cipClient{drive: d}, nil
}

// cipClient answers Get/Set_Attribute_Single on the assembly and parameter objects. Assembly
// words travel little-endian.
type cipClient struct {
	drive     *Drive
	connected atomic.Bool
}

func (c *cipClient) Connect() error {
	c.connected.Store(true)
	return nil
}

func (c *cipClient) Disconnect() error {
	c.connected.Store(false)
	return nil
}

func (c *cipClient) GetAttrSingle(cls gologix.CIPClass, inst gologix.CIPInstance, attr gologix.CIPAttribute) (*gologix.CIPItem, error) {
	path := codec.Path{Class: uint8(cls), Instance: uint32(inst), Attribute: uint8(attr)}
	return c.serve(codec.CIPGetAttributeSingle, path, nil)
}

func (c *cipClient) GenericCIPMessage(service gologix.CIPService, path, data []byte) (*gologix.CIPItem, error) {
	p, err := codec.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return c.serve(uint8(service), p, data)
}

func (c *cipClient) serve(service uint8, p codec.Path, data []byte) (*gologix.CIPItem, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("%w: cip session not connected", transport.ErrBadConn)
	}
	d := c.drive
	d.requests.Inc()
	drop, broken := d.fault()
	if broken {
		c.connected.Store(false)
		return nil, fmt.Errorf("%w: %w", transport.ErrBadConn, syscall.ECONNRESET)
	}
	if drop {
		return nil, fmt.Errorf("cip service 0x%02X: %w", service, context.DeadlineExceeded)
	}
	klog.V(5).InfoS("Simulated drive received cip request", "id", d.ID, "service", service, "class", p.Class, "instance", p.Instance)
	status, reply := d.serveCIP(service, p, data)
	if status != codec.CIPStatusSuccess {
		return nil, &codec.CIPError{Service: service, Status: status}
	}
	return &gologix.CIPItem{Data: reply}, nil
}

func (d *Drive) serveCIP(service uint8, p codec.Path, data []byte) (uint8, []byte) {
	switch {
	case p.Class == codec.CIPClassAssembly && p.Attribute == codec.CIPAttributeAssemblyData:
		return d.serveAssembly(service, p, data)
	case p.Class == codec.CIPClassParameter && p.Attribute == codec.CIPAttributeParameter:
		switch service {
		case codec.CIPGetAttributeSingle:
			v, ok := d.Get(p.Instance)
			if !ok {
				return codec.CIPStatusPathUnknown, nil
			}
			buf := make([]byte, 2)
			binutil.WriteUint16LittleEndian(buf, v)
			return codec.CIPStatusSuccess, buf
		case codec.CIPSetAttributeSingle:
			if len(data) < 2 {
				return codec.CIPStatusNotEnoughData, nil
			}
			d.Set(p.Instance, binutil.ParseUint16LittleEndian(data))
			return codec.CIPStatusSuccess, nil
		}
		return codec.CIPStatusServiceUnsupported, nil
	default:
		return codec.CIPStatusPathUnknown, nil
	}
}

func (d *Drive) serveAssembly(service uint8, p codec.Path, data []byte) (uint8, []byte) {
	var image []uint16
	switch p.Instance {
	case uint32(d.InputAssembly):
		if service != codec.CIPGetAttributeSingle {
			return codec.CIPStatusNotSettable, nil
		}
		image = d.inputImage(processImageWords)
	case uint32(d.OutputAssembly):
		if service == codec.CIPSetAttributeSingle {
			if len(data) < processImageWords*2 {
				return codec.CIPStatusNotEnoughData, nil
			}
			if len(data) > processImageWords*2 {
				return codec.CIPStatusTooMuchData, nil
			}
			words := make([]uint16, processImageWords)
			for i := range words {
				words[i] = binutil.ParseUint16LittleEndian(data[i*2:])
			}
			d.setOutputs(words)
			return codec.CIPStatusSuccess, nil
		}
		image = d.outputImage()
	default:
		return codec.CIPStatusPathUnknown, nil
	}
	buf := make([]byte, len(image)*2)
	for i, w := range image {
		binutil.WriteUint16LittleEndian(buf[i*2:], w)
	}
	return codec.CIPStatusSuccess, buf
}
