package transport

import (
	"context"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

type modbusTCPConn struct {
	mux     sync.Mutex
	handler *modbus.TCPClientHandler
}

// DialModbusTCP connects through goburrow's TCP transporter, which reads MBAP framed responses.
func DialModbusTCP(_ context.Context, ep Endpoint) (Conn, error) {
	handler := modbus.NewTCPClientHandler(ep.Address)
	if ep.ResponseTimeout > 0 {
		handler.Timeout = ep.ResponseTimeout
	}
	// idle reaping belongs to the connection pool
	handler.IdleTimeout = 0
	if err := handler.Connect(); err != nil {
		return nil, err
	}
	return &modbusTCPConn{handler: handler}, nil
}

func (m *modbusTCPConn) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		m.handler.Timeout = time.Until(deadline)
		if m.handler.Timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	return m.handler.Send(req)
}

func (m *modbusTCPConn) Close() error {
	return m.handler.Close()
}
