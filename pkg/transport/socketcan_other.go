//go:build !linux

package transport

import (
	"context"
	"fmt"
)

func DialCAN(_ context.Context, ep Endpoint) (Conn, error) {
	return nil, fmt.Errorf("%w: socketcan is linux only (%s)", ErrNoTransport, ep.Address)
}
