package simulator

import (
	"math"

	"vfdgateway/pkg/codec"
)

// bacnet answers Present-Value reads and writes. Object type*1000+instance keys the register.
func (d *Drive) bacnet(ip bool) handler {
	return func(req []byte) ([]byte, bool) {
		npdu := req
		if ip {
			var err error
			if npdu, err = codec.StripBVLC(req); err != nil {
				return nil, false
			}
		}
		apdu, err := codec.APDU(npdu)
		if err != nil {
			return nil, false
		}
		r, err := codec.ParsePropertyRequest(apdu)
		if err != nil {
			invoke, ok := codec.InvokeID(apdu)
			if !ok || len(apdu) < 4 {
				return nil, false
			}
			return d.frame(ip, codec.ErrorPDU(invoke, apdu[3], codec.ErrorClassObject, codec.ErrorCodeUnknownObject)), true
		}
		return d.frame(ip, d.serveProperty(r)), true
	}
}

func (d *Drive) serveProperty(r *codec.PropertyRequest) []byte {
	if r.Property != codec.PropertyPresentValue {
		return codec.ErrorPDU(r.Invoke, r.Service, codec.ErrorClassProperty, codec.ErrorCodeUnknownProperty)
	}
	key := uint32(r.Object.Type)*1000 + r.Object.Instance
	if r.Service == codec.ServiceWriteProperty {
		v := math.Round(r.Value.Float)
		if v < 0 {
			v += 1 << 16
		}
		d.Set(key, uint16(v))
		return codec.SimpleAck(r.Invoke, r.Service)
	}
	v, ok := d.Get(key)
	if !ok {
		return codec.ErrorPDU(r.Invoke, r.Service, codec.ErrorClassObject, codec.ErrorCodeUnknownObject)
	}
	return codec.ReadPropertyAck(r.Invoke, r.Object, r.Property, codec.ValueFor(r.Object.Type, float64(v)))
}

func (d *Drive) frame(ip bool, apdu []byte) []byte {
	npdu := codec.NPDU(apdu, false)
	if ip {
		return codec.BVLC(npdu)
	}
	return npdu
}
