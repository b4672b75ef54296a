package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime/constant"
)

// RTU frames top out at 256 bytes.
const maxSerialFrame = 256

var parityToParity = map[constant.Parity]serial.Parity{
	constant.NoParity:    serial.NoParity,
	constant.OddParity:   serial.OddParity,
	constant.EvenParity:  serial.EvenParity,
	constant.MarkParity:  serial.MarkParity,
	constant.SpaceParity: serial.SpaceParity,
}

var stopBitsToStopBits = map[constant.StopBits]serial.StopBits{
	constant.OneStopBit:           serial.OneStopBit,
	constant.OnePointFiveStopBits: serial.OnePointFiveStopBits,
	constant.TwoStopBits:          serial.TwoStopBits,
}

type serialConn struct {
	mux    sync.Mutex
	port   serial.Port
	framer Framer
}

// DialSerial opens an RS-485/RS-232 port. Several devices on one bus each get their own Conn,
// so exchanges on the same path are serialised by the caller's per-device lease.
func DialSerial(_ context.Context, ep Endpoint) (Conn, error) {
	if ep.Framer == nil {
		return nil, fmt.Errorf("serial endpoint %s has no framer", ep.Address)
	}
	opts := ep.Serial
	if opts == nil {
		opts = &SerialOptions{BaudRate: 9600, DataBits: 8}
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   parityToParity[opts.Parity],
		StopBits: stopBitsToStopBits[opts.StopBits],
	}
	port, err := serial.Open(ep.Address, mode)
	if err != nil {
		klog.V(2).InfoS("Failed to open serial port", "address", ep.Address, "err", err)
		return nil, err
	}
	return &serialConn{port: port, framer: ep.Framer}, nil
}

func (sc *serialConn) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	sc.mux.Lock()
	defer sc.mux.Unlock()

	// drop bytes left over from an earlier timed out exchange
	if err := sc.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConn, err)
	}
	n, err := sc.port.Write(req)
	if err != nil {
		klog.V(2).InfoS("Failed to write byte to serial port", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrBadConn, err)
	}
	klog.V(5).InfoS("Succeed to write byte to serial port", "bytes", req, "length", n)

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	if err := sc.port.SetReadTimeout(timeout); err != nil {
		return nil, err
	}
	return readFrame(sc.port, sc.framer, maxSerialFrame)
}

func (sc *serialConn) Close() error {
	return sc.port.Close()
}
