package modbusrtu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/planner"
	"vfdgateway/pkg/registry"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/simulator"
)

const port = "/dev/ttyUSB0"

func setup(t *testing.T) (*Adapter, *simulator.Drive, *adapter.ConnectionHandle) {
	t.Helper()
	bus := simulator.NewBus()
	drive := simulator.NewDrive(1)
	bus.Attach(port, drive)
	a := New(bus)
	h, err := a.Connect(context.Background(), runtime.Configuration{"serialPort": port, "slaveId": 1, "responseTimeout": 50, "retries": 1})
	require.NoError(t, err)
	return a, drive, h
}

func TestValidateConfiguration(t *testing.T) {
	a := New(simulator.NewBus())
	v := a.ValidateConfiguration(runtime.Configuration{"slaveId": 0, "baudRate": 1234, "parity": "mark"})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 4)

	v = a.ValidateConfiguration(runtime.Configuration{"serialPort": port, "slaveId": 247.0})
	assert.True(t, v.Valid, v.Errors)

	defaults := a.DefaultConfiguration()
	assert.Equal(t, 9600, defaults["baudRate"])
	assert.Equal(t, "none", defaults["parity"])
	assert.NotContains(t, defaults, "slaveId")
	assert.Contains(t, a.ConfigurationSchema().Required, "slaveId")
}

func TestReadParametersBatches(t *testing.T) {
	a, drive, h := setup(t)
	drive.ZeroFill = true
	drive.Load(map[uint32]uint16{3: 0x0637, 4: 5000, 150: 0x0001, 151: 0x0002})

	mappings, err := registry.Default().MappingsForBrand(constant.ABB)
	require.NoError(t, err)
	readable, _ := registry.Default().ReadableMappings(constant.ABB)
	before := drive.Requests()

	result, err := a.ReadParameters(context.Background(), h.ID, mappings)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(len(planner.DefaultOptions().Plan(readable))), drive.Requests()-before)
	assert.Len(t, result.Parameters, len(readable))
	assert.InDelta(t, 50.0, result.Parameters["output_frequency"], 1e-9)
	// word order little: low word first
	assert.InDelta(t, float64(0x00020001)*0.1, result.Parameters["energy_consumption"], 1e-6)
	assert.True(t, result.StatusBits["operationEnabled"])
}

func TestReadRegisterException(t *testing.T) {
	a, drive, h := setup(t)
	drive.Set(10, 7)

	buf, err := a.ReadRegister(context.Background(), h.ID, 10, 1, constant.FunctionCodeReadHoldingRegisters)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 7}, buf)

	before := drive.Requests()
	_, err = a.ReadRegister(context.Background(), h.ID, 11, 1, constant.FunctionCodeReadHoldingRegisters)
	var exc *codec.ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, int64(1), drive.Requests()-before, "exceptions are not retried")
	assert.True(t, h.IsConnected())

	_, err = a.ReadRegister(context.Background(), h.ID, 65535, 2, constant.FunctionCodeReadHoldingRegisters)
	assert.ErrorIs(t, err, ErrAddressRange)
	_, err = a.ReadRegister(context.Background(), h.ID, 0, 1, 0x01)
	assert.ErrorIs(t, err, ErrFunctionCode)
}

func TestRetryAfterTimeout(t *testing.T) {
	a, drive, h := setup(t)
	drive.Set(0, 1)
	drive.Drop(1)

	res := a.WriteControlWord(context.Background(), h.ID, 0x000F, 0)
	require.True(t, res.Success, res.Error)
	v, _ := drive.Get(0)
	assert.Equal(t, uint16(0x000F), v)
}

func TestTestConnection(t *testing.T) {
	bus := simulator.NewBus()
	bus.Attach(port, simulator.NewDrive(1))
	a := New(bus)

	res := a.TestConnection(context.Background(), runtime.Configuration{"serialPort": port, "slaveId": 1})
	assert.True(t, res.Success, res.Error)
	assert.Empty(t, res.SampleData)

	res = a.TestConnection(context.Background(), runtime.Configuration{"serialPort": "/dev/ttyUSB9", "slaveId": 1})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "refused")
}
