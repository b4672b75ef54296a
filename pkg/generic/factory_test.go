package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

func TestCreateAdapterCoversEveryProtocol(t *testing.T) {
	for _, p := range constant.Protocols() {
		a := CreateAdapter(p, transport.DefaultDialer)
		require.NotNil(t, a, p.String())
		assert.Equal(t, p, a.Protocol())
		assert.NotNil(t, a.ConfigurationSchema(), p.String())
	}
}

func TestCreateAdapterPanicsOnUnknownProtocol(t *testing.T) {
	assert.Panics(t, func() {
		CreateAdapter(constant.Protocol(42), transport.DefaultDialer)
	})
}

func TestAdaptersAreShared(t *testing.T) {
	as := NewAdapters(nil)
	first := as.Get(constant.ModbusTCP)
	assert.Same(t, first, as.Get(constant.ModbusTCP))
	assert.NotSame(t, first, as.Get(constant.ModbusRTU))
	assert.Equal(t, constant.BACnetMSTP, as.Get(constant.BACnetMSTP).Protocol())
}
