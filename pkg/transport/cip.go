package transport

import (
	"fmt"
	"net"

	"github.com/danomagnum/gologix"
)

// CIPPort is the EtherNet/IP port every explicit messaging target listens on.
const CIPPort = "44818"

// CIPClient is an EtherNet/IP explicit messaging session. *gologix.Client implements it.
type CIPClient interface {
	Connect() error
	Disconnect() error
	GetAttrSingle(cls gologix.CIPClass, inst gologix.CIPInstance, attr gologix.CIPAttribute) (*gologix.CIPItem, error)
	GenericCIPMessage(service gologix.CIPService, path, data []byte) (*gologix.CIPItem, error)
}

var _ CIPClient = (*gologix.Client)(nil)

// CIPDialer is implemented by dialers that supply their own CIP sessions instead of gologix.
type CIPDialer interface {
	DialCIP(ep Endpoint) (CIPClient, error)
}

// DialCIP returns an unconnected CIP session for ep.
func DialCIP(d Dialer, ep Endpoint) (CIPClient, error) {
	if cd, ok := d.(CIPDialer); ok {
		return cd.DialCIP(ep)
	}
	host, port, err := net.SplitHostPort(ep.Address)
	if err != nil {
		return nil, err
	}
	if port != CIPPort {
		return nil, fmt.Errorf("%w: cip targets listen on %s, not %s", ErrNoTransport, CIPPort, port)
	}
	return gologix.NewClient(host), nil
}

// DialCIP hands ep to the routed dialer when it supplies CIP sessions.
func (r *Router) DialCIP(ep Endpoint) (CIPClient, error) {
	r.mux.RLock()
	d, ok := r.routes[ep.Protocol]
	r.mux.RUnlock()
	if !ok {
		d = r.fallback
	}
	return DialCIP(d, ep)
}
